package alsa

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// CardInfo describes a sound card as reported by its control device.
type CardInfo struct {
	Card       int32
	ID         string
	Driver     string
	Name       string
	LongName   string
	Mixername  string
	Components string
}

func newCardInfo(info *sndCtlCardInfo) *CardInfo {
	return &CardInfo{
		Card:       info.Card,
		ID:         cString(info.Id[:]),
		Driver:     cString(info.Driver[:]),
		Name:       cString(info.Name[:]),
		LongName:   cString(info.Longname[:]),
		Mixername:  cString(info.Mixername[:]),
		Components: cString(info.Components[:]),
	}
}

// CtlElemId identifies a single control element on a card.
type CtlElemId struct {
	Numid     uint32
	Iface     CtlElemIface
	Device    uint32
	Subdevice uint32
	Name      string
	Index     uint32
}

func newCtlElemId(id *sndCtlElemId) CtlElemId {
	return CtlElemId{
		Numid:     id.Numid,
		Iface:     CtlElemIface(id.Iface),
		Device:    id.Device,
		Subdevice: id.Subdevice,
		Name:      cString(id.Name[:]),
		Index:     id.Index,
	}
}

// toNative fills a kernel element id struct from the exported one.
func (id *CtlElemId) toNative(native *sndCtlElemId) {
	native.Numid = id.Numid
	native.Iface = int32(id.Iface)
	native.Device = id.Device
	native.Subdevice = id.Subdevice
	copy(native.Name[:], id.Name)
	native.Index = id.Index
}

// CtlElemInfo describes the type, value count, access rights and value range
// of a control element.
type CtlElemInfo struct {
	ID     CtlElemId
	Type   MixerCtlType
	Access CtlAccessFlag
	Count  uint32
	Owner  int32

	// Valid when Type is SNDRV_CTL_ELEM_TYPE_INTEGER.
	Min, Max, Step int
	// Valid when Type is SNDRV_CTL_ELEM_TYPE_INTEGER64.
	Min64, Max64, Step64 int64
	// Valid when Type is SNDRV_CTL_ELEM_TYPE_ENUMERATED.
	Items uint32
}

func newCtlElemInfo(info *sndCtlElemInfo) *CtlElemInfo {
	out := &CtlElemInfo{
		ID:     newCtlElemId(&info.Id),
		Type:   MixerCtlType(info.Typ),
		Access: CtlAccessFlag(info.Access),
		Count:  info.Count,
		Owner:  info.Owner,
	}

	switch out.Type {
	case SNDRV_CTL_ELEM_TYPE_INTEGER:
		rng := (*integer)(unsafe.Pointer(&info.Value[0]))
		out.Min = int(rng.Min)
		out.Max = int(rng.Max)
		out.Step = int(rng.Step)
	case SNDRV_CTL_ELEM_TYPE_INTEGER64:
		rng := (*integer64)(unsafe.Pointer(&info.Value[0]))
		out.Min64 = rng.Min
		out.Max64 = rng.Max
		out.Step64 = rng.Step
	case SNDRV_CTL_ELEM_TYPE_ENUMERATED:
		enum := (*sndCtlEnum)(unsafe.Pointer(&info.Value[0]))
		out.Items = enum.Items
	}

	return out
}

// CtlEvent is a control element notification read from the control device.
type CtlEvent struct {
	Mask MixerEventType
	ID   CtlElemId
}

// CtlElemValue carries the value payload of a control element for ElemRead
// and ElemWrite, with typed per-index accessors over the kernel value union.
type CtlElemValue struct {
	native sndCtlElemValue
}

// ID returns the element id the value belongs to.
func (v *CtlElemValue) ID() CtlElemId {
	return newCtlElemId(&v.native.Id)
}

// SetID selects the element the value should be read from or written to.
func (v *CtlElemValue) SetID(id *CtlElemId) {
	v.native.Id = sndCtlElemId{}
	id.toNative(&v.native.Id)
}

func (v *CtlElemValue) longAt(idx uint) *clong {
	size := uint(unsafe.Sizeof(clong(0)))
	if (idx+1)*size > uint(len(v.native.Value)) {
		return nil
	}

	return (*clong)(unsafe.Pointer(&v.native.Value[idx*size]))
}

// Boolean returns the boolean value at the given index.
func (v *CtlElemValue) Boolean(idx uint) bool {
	p := v.longAt(idx)

	return p != nil && *p != 0
}

// SetBoolean sets the boolean value at the given index.
func (v *CtlElemValue) SetBoolean(idx uint, val bool) {
	if p := v.longAt(idx); p != nil {
		if val {
			*p = 1
		} else {
			*p = 0
		}
	}
}

// Integer returns the integer value at the given index.
func (v *CtlElemValue) Integer(idx uint) int {
	p := v.longAt(idx)
	if p == nil {
		return 0
	}

	return int(*p)
}

// SetInteger sets the integer value at the given index.
func (v *CtlElemValue) SetInteger(idx uint, val int) {
	if p := v.longAt(idx); p != nil {
		*p = clong(val)
	}
}

// Integer64 returns the 64-bit integer value at the given index.
func (v *CtlElemValue) Integer64(idx uint) int64 {
	if (idx+1)*8 > uint(len(v.native.Value)) {
		return 0
	}

	return *(*int64)(unsafe.Pointer(&v.native.Value[idx*8]))
}

// SetInteger64 sets the 64-bit integer value at the given index.
func (v *CtlElemValue) SetInteger64(idx uint, val int64) {
	if (idx+1)*8 > uint(len(v.native.Value)) {
		return
	}

	*(*int64)(unsafe.Pointer(&v.native.Value[idx*8])) = val
}

// Enumerated returns the selected item index at the given value index.
func (v *CtlElemValue) Enumerated(idx uint) uint32 {
	if (idx+1)*4 > uint(len(v.native.Value)) {
		return 0
	}

	return *(*uint32)(unsafe.Pointer(&v.native.Value[idx*4]))
}

// SetEnumerated selects an item for the enumerated value at the given index.
func (v *CtlElemValue) SetEnumerated(idx uint, item uint32) {
	if (idx+1)*4 > uint(len(v.native.Value)) {
		return
	}

	*(*uint32)(unsafe.Pointer(&v.native.Value[idx*4])) = item
}

// Byte returns the raw byte at the given index.
func (v *CtlElemValue) Byte(idx uint) byte {
	if idx >= uint(len(v.native.Value)) {
		return 0
	}

	return v.native.Value[idx]
}

// SetByte sets the raw byte at the given index.
func (v *CtlElemValue) SetByte(idx uint, val byte) {
	if idx < uint(len(v.native.Value)) {
		v.native.Value[idx] = val
	}
}

// Bytes returns a copy of the first count bytes of the value payload.
func (v *CtlElemValue) Bytes(count uint) []byte {
	if count > uint(len(v.native.Value)) {
		count = uint(len(v.native.Value))
	}

	out := make([]byte, count)
	copy(out, v.native.Value[:count])

	return out
}

// SetBytes fills the value payload with the given data.
func (v *CtlElemValue) SetBytes(data []byte) {
	copy(v.native.Value[:], data)
}

// Ctl is a handle to a raw ALSA control device node (/dev/snd/controlC*).
// It exposes the element API, card-level device cursors, and the control
// event stream; Mixer and HCtl are layered on top of it.
type Ctl struct {
	file *os.File
	fd   uintptr // Raw descriptor; File.Fd() may toggle O_NONBLOCK, so it is cached once at open
	card uint
}

// CtlOpen opens the control device of a card. With nonblock set, event reads
// return EAGAIN instead of blocking.
func CtlOpen(card uint, nonblock bool) (*Ctl, error) {
	path := fmt.Sprintf("/dev/snd/controlC%d", card)

	// Always open non-blocking to avoid getting stuck on busy hardware,
	// then clear the flag if blocking mode was requested. The raw
	// descriptor is adjusted before it is handed to os.NewFile and cached
	// for all further calls.
	rawFd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open control device %s: %w", path, err)
	}

	if !nonblock {
		currentFlags, err := unix.FcntlInt(uintptr(rawFd), unix.F_GETFL, 0)
		if err != nil {
			_ = unix.Close(rawFd)

			return nil, fmt.Errorf("fcntl F_GETFL for %s failed: %w", path, err)
		}
		if _, err = unix.FcntlInt(uintptr(rawFd), unix.F_SETFL, currentFlags&^unix.O_NONBLOCK); err != nil {
			_ = unix.Close(rawFd)

			return nil, fmt.Errorf("failed to set blocking mode on %s: %w", path, err)
		}
	}

	return &Ctl{file: os.NewFile(uintptr(rawFd), path), fd: uintptr(rawFd), card: card}, nil
}

// CtlOpenByName opens a control device by its name, in the format "hw:C".
func CtlOpenByName(name string, nonblock bool) (*Ctl, error) {
	if !strings.HasPrefix(name, "hw:") {
		return nil, fmt.Errorf("invalid control name format: missing 'hw:' prefix")
	}

	card, err := strconv.ParseUint(strings.TrimPrefix(name, "hw:"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid card number '%s': %w", strings.TrimPrefix(name, "hw:"), err)
	}

	return CtlOpen(uint(card), nonblock)
}

// IsReady checks if the control handle is valid.
func (c *Ctl) IsReady() bool {
	return c != nil && c.file != nil
}

// Close closes the control device handle.
func (c *Ctl) Close() error {
	if !c.IsReady() {
		return nil
	}

	err := c.file.Close()
	c.file = nil

	return err
}

// Card returns the card number the handle was opened on.
func (c *Ctl) Card() uint {
	if c == nil {
		return 0
	}

	return c.card
}

// Fd returns the underlying file descriptor for the control device.
func (c *Ctl) Fd() uintptr {
	if !c.IsReady() {
		return ^uintptr(0) // Invalid FD
	}

	return c.fd
}

// PollDescriptors returns the poll descriptors for the control device.
// Control nodes signal readability when an element event is pending.
// The returned slice is a fresh copy, valid only while the handle is open.
func (c *Ctl) PollDescriptors() []unix.PollFd {
	if !c.IsReady() {
		return nil
	}

	return []unix.PollFd{
		{Fd: int32(c.fd), Events: unix.POLLIN | unix.POLLERR | unix.POLLNVAL},
	}
}

// Wait waits for a control event to become pending or until a timeout occurs.
// A negative timeout blocks indefinitely. Returns true if an event is
// pending, false on timeout.
func (c *Ctl) Wait(timeoutMs int) (bool, error) {
	if !c.IsReady() {
		return false, fmt.Errorf("control handle is not valid")
	}

	pfd := c.PollDescriptors()

	n, err := poll(pfd, timeoutMs)
	if err != nil {
		return false, err
	}

	if n == 0 {
		return false, nil // Timeout
	}

	if (pfd[0].Revents & (unix.POLLERR | unix.POLLNVAL)) != 0 {
		return false, fmt.Errorf("control device error: %w", syscall.EIO)
	}

	return true, nil
}

// CardInfo returns the identification strings of the card.
func (c *Ctl) CardInfo() (*CardInfo, error) {
	if !c.IsReady() {
		return nil, fmt.Errorf("control handle is not valid")
	}

	var info sndCtlCardInfo
	if err := ioctl(c.fd, SNDRV_CTL_IOCTL_CARD_INFO, uintptr(unsafe.Pointer(&info))); err != nil {
		return nil, fmt.Errorf("ioctl CARD_INFO failed: %w", err)
	}

	return newCardInfo(&info), nil
}

// elemCount returns the number of control elements on the card.
func (c *Ctl) elemCount() (uint32, error) {
	list := &sndCtlElemList{}
	if err := ioctl(c.fd, SNDRV_CTL_IOCTL_ELEM_LIST, uintptr(unsafe.Pointer(list))); err != nil {
		return 0, fmt.Errorf("ioctl ELEM_LIST (get count) failed: %w", err)
	}

	return list.Count, nil
}

// elemIDs fills native element ids starting at offset. The returned slice is
// trimmed to the number of ids the kernel actually reported.
func (c *Ctl) elemIDs(offset, space uint32) ([]sndCtlElemId, error) {
	if space == 0 {
		return nil, nil
	}

	ids := make([]sndCtlElemId, space)
	list := &sndCtlElemList{
		Offset: offset,
		Space:  space,
		Pids:   uintptr(unsafe.Pointer(&ids[0])),
	}

	if err := ioctl(c.fd, SNDRV_CTL_IOCTL_ELEM_LIST, uintptr(unsafe.Pointer(list))); err != nil {
		return nil, fmt.Errorf("ioctl ELEM_LIST (get ids) failed: %w", err)
	}

	return ids[:list.Used], nil
}

// ElemList enumerates every control element on the card, in kernel order.
func (c *Ctl) ElemList() ([]CtlElemId, error) {
	if !c.IsReady() {
		return nil, fmt.Errorf("control handle is not valid")
	}

	count, err := c.elemCount()
	if err != nil {
		return nil, err
	}

	if count == 0 {
		return nil, nil
	}

	ids, err := c.elemIDs(0, count)
	if err != nil {
		return nil, err
	}

	out := make([]CtlElemId, len(ids))
	for i := range ids {
		out[i] = newCtlElemId(&ids[i])
	}

	return out, nil
}

// elemInfoNative queries element info into a caller-provided kernel struct.
// The id inside the struct must be filled (numid, or iface+name+index).
func (c *Ctl) elemInfoNative(info *sndCtlElemInfo) error {
	if err := ioctl(c.fd, SNDRV_CTL_IOCTL_ELEM_INFO, uintptr(unsafe.Pointer(info))); err != nil {
		return fmt.Errorf("ioctl ELEM_INFO failed: %w", err)
	}

	return nil
}

// ElemInfo returns type, value count, access rights and value range for the
// element identified by id.
func (c *Ctl) ElemInfo(id *CtlElemId) (*CtlElemInfo, error) {
	if !c.IsReady() {
		return nil, fmt.Errorf("control handle is not valid")
	}

	if id == nil {
		return nil, fmt.Errorf("element id is nil: %w", syscall.EINVAL)
	}

	info := sndCtlElemInfo{}
	id.toNative(&info.Id)

	if err := c.elemInfoNative(&info); err != nil {
		return nil, err
	}

	return newCtlElemInfo(&info), nil
}

// ElemRead reads the current value of the element selected by value.SetID.
func (c *Ctl) ElemRead(value *CtlElemValue) error {
	if !c.IsReady() {
		return fmt.Errorf("control handle is not valid")
	}

	if value == nil {
		return fmt.Errorf("element value is nil: %w", syscall.EINVAL)
	}

	if err := ioctl(c.fd, SNDRV_CTL_IOCTL_ELEM_READ, uintptr(unsafe.Pointer(&value.native))); err != nil {
		return fmt.Errorf("ioctl ELEM_READ failed: %w", err)
	}

	return nil
}

// ElemWrite writes the value to the element selected by value.SetID.
func (c *Ctl) ElemWrite(value *CtlElemValue) error {
	if !c.IsReady() {
		return fmt.Errorf("control handle is not valid")
	}

	if value == nil {
		return fmt.Errorf("element value is nil: %w", syscall.EINVAL)
	}

	if err := ioctl(c.fd, SNDRV_CTL_IOCTL_ELEM_WRITE, uintptr(unsafe.Pointer(&value.native))); err != nil {
		return fmt.Errorf("ioctl ELEM_WRITE failed: %w", err)
	}

	return nil
}

// ElemLock takes the write lock on an element so other processes cannot
// change it.
func (c *Ctl) ElemLock(id *CtlElemId) error {
	if !c.IsReady() {
		return fmt.Errorf("control handle is not valid")
	}

	if id == nil {
		return fmt.Errorf("element id is nil: %w", syscall.EINVAL)
	}

	var native sndCtlElemId
	id.toNative(&native)

	if err := ioctl(c.fd, SNDRV_CTL_IOCTL_ELEM_LOCK, uintptr(unsafe.Pointer(&native))); err != nil {
		return fmt.Errorf("ioctl ELEM_LOCK failed: %w", err)
	}

	return nil
}

// ElemUnlock releases the write lock on an element.
func (c *Ctl) ElemUnlock(id *CtlElemId) error {
	if !c.IsReady() {
		return fmt.Errorf("control handle is not valid")
	}

	if id == nil {
		return fmt.Errorf("element id is nil: %w", syscall.EINVAL)
	}

	var native sndCtlElemId
	id.toNative(&native)

	if err := ioctl(c.fd, SNDRV_CTL_IOCTL_ELEM_UNLOCK, uintptr(unsafe.Pointer(&native))); err != nil {
		return fmt.Errorf("ioctl ELEM_UNLOCK failed: %w", err)
	}

	return nil
}

// SubscribeEvents enables or disables element event generation for this
// handle.
func (c *Ctl) SubscribeEvents(enable bool) error {
	if !c.IsReady() {
		return fmt.Errorf("control handle is not valid")
	}

	var val int32
	if enable {
		val = 1
	}

	if err := ioctl(c.fd, SNDRV_CTL_IOCTL_SUBSCRIBE_EVENTS, uintptr(unsafe.Pointer(&val))); err != nil {
		return fmt.Errorf("ioctl SUBSCRIBE_EVENTS failed: %w", err)
	}

	return nil
}

// ReadEvent reads a single pending event from the control device. Only
// element events are reported; any other event category is an error.
func (c *Ctl) ReadEvent() (*CtlEvent, error) {
	if !c.IsReady() {
		return nil, fmt.Errorf("control handle is not valid")
	}

	var ev sndCtlEvent
	evSize := unsafe.Sizeof(ev)
	buffer := make([]byte, evSize)

	n, err := unix.Read(int(c.fd), buffer)
	if err != nil {
		return nil, err
	}

	if n < int(evSize) {
		return nil, fmt.Errorf("short read for event: got %d bytes, want %d", n, evSize)
	}

	ev = *(*sndCtlEvent)(unsafe.Pointer(&buffer[0]))

	if ev.Typ != SNDRV_CTL_EVENT_ELEM {
		return nil, fmt.Errorf("received non-element event type: %d", ev.Typ)
	}

	return &CtlEvent{
		Mask: MixerEventType(ev.Elem.Mask),
		ID:   newCtlElemId(&ev.Elem.Id),
	}, nil
}

// PcmNextDevice advances the PCM device cursor on this card. Pass -1 to get
// the first device; after the last device the cursor is set back to -1.
func (c *Ctl) PcmNextDevice(device *int32) error {
	if !c.IsReady() {
		return fmt.Errorf("control handle is not valid")
	}

	if device == nil {
		return fmt.Errorf("device cursor is nil: %w", syscall.EINVAL)
	}

	if err := ioctl(c.fd, SNDRV_CTL_IOCTL_PCM_NEXT_DEVICE, uintptr(unsafe.Pointer(device))); err != nil {
		return fmt.Errorf("ioctl PCM_NEXT_DEVICE failed: %w", err)
	}

	return nil
}

// PcmInfo returns the driver identification for one PCM substream on this
// card without opening its data node.
func (c *Ctl) PcmInfo(device, subdevice uint32, stream PcmStream) (*PcmInfo, error) {
	if !c.IsReady() {
		return nil, fmt.Errorf("control handle is not valid")
	}

	info := sndPcmInfo{
		Device:    device,
		Subdevice: subdevice,
		Stream:    int32(stream),
	}

	if err := ioctl(c.fd, SNDRV_CTL_IOCTL_PCM_INFO, uintptr(unsafe.Pointer(&info))); err != nil {
		return nil, fmt.Errorf("ioctl PCM_INFO failed: %w", err)
	}

	return newPcmInfo(&info), nil
}

// PcmPreferSubdevice requests that the next PCM open by this process on this
// card picks the given subdevice. Pass -1 to clear the preference.
func (c *Ctl) PcmPreferSubdevice(subdevice int32) error {
	if !c.IsReady() {
		return fmt.Errorf("control handle is not valid")
	}

	if err := ioctl(c.fd, SNDRV_CTL_IOCTL_PCM_PREFER_SUBDEVICE, uintptr(unsafe.Pointer(&subdevice))); err != nil {
		return fmt.Errorf("ioctl PCM_PREFER_SUBDEVICE failed: %w", err)
	}

	return nil
}

// RawMidiNextDevice advances the raw MIDI device cursor on this card. Pass -1
// to get the first device; after the last device the cursor is set back
// to -1.
func (c *Ctl) RawMidiNextDevice(device *int32) error {
	if !c.IsReady() {
		return fmt.Errorf("control handle is not valid")
	}

	if device == nil {
		return fmt.Errorf("device cursor is nil: %w", syscall.EINVAL)
	}

	if err := ioctl(c.fd, SNDRV_CTL_IOCTL_RAWMIDI_NEXT_DEVICE, uintptr(unsafe.Pointer(device))); err != nil {
		return fmt.Errorf("ioctl RAWMIDI_NEXT_DEVICE failed: %w", err)
	}

	return nil
}

// RawMidiInfo returns the driver identification for one raw MIDI substream
// on this card without opening its data node.
func (c *Ctl) RawMidiInfo(device, subdevice uint32, stream RawMidiStream) (*RawMidiInfo, error) {
	if !c.IsReady() {
		return nil, fmt.Errorf("control handle is not valid")
	}

	info := sndRawMidiInfo{
		Device:    device,
		Subdevice: subdevice,
		Stream:    int32(stream),
	}

	if err := ioctl(c.fd, SNDRV_CTL_IOCTL_RAWMIDI_INFO, uintptr(unsafe.Pointer(&info))); err != nil {
		return nil, fmt.Errorf("ioctl RAWMIDI_INFO failed: %w", err)
	}

	return newRawMidiInfo(&info), nil
}

// RawMidiPreferSubdevice requests that the next raw MIDI open by this process
// on this card picks the given subdevice. Pass -1 to clear the preference.
func (c *Ctl) RawMidiPreferSubdevice(subdevice int32) error {
	if !c.IsReady() {
		return fmt.Errorf("control handle is not valid")
	}

	if err := ioctl(c.fd, SNDRV_CTL_IOCTL_RAWMIDI_PREFER_SUBDEV, uintptr(unsafe.Pointer(&subdevice))); err != nil {
		return fmt.Errorf("ioctl RAWMIDI_PREFER_SUBDEV failed: %w", err)
	}

	return nil
}
