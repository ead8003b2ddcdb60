package alsa

import (
	"bytes"
	"fmt"

	"golang.org/x/sys/unix"
)

// Mixer enumerates the control elements of a sound card and caches them for
// lookup by name, index or numid. It is a convenience layer over a Ctl
// handle; applications that need raw element access can use Ctl directly.
type Mixer struct {
	ctl      *Ctl
	cardInfo *CardInfo
	Ctls     []*MixerCtl
	ctlMap   map[string][]*MixerCtl // Maps a name to one or more controls
	ctlIdMap map[uint32]*MixerCtl   // Maps a numid to its control for O(1) access
}

// MixerOpen opens the control device of the given sound card and enumerates
// its controls.
// Note: This implementation does not support the ALSA plugin architecture and
// will only open direct hardware control devices (e.g., /dev/snd/controlC0).
func MixerOpen(card uint) (*Mixer, error) {
	ctl, err := CtlOpen(card, false)
	if err != nil {
		return nil, err
	}

	return newMixer(ctl)
}

// MixerOpenByName opens a mixer using a card name of the form "hw:card".
func MixerOpenByName(name string) (*Mixer, error) {
	ctl, err := CtlOpenByName(name, false)
	if err != nil {
		return nil, err
	}

	return newMixer(ctl)
}

func newMixer(ctl *Ctl) (*Mixer, error) {
	mixer := &Mixer{
		ctl:      ctl,
		ctlMap:   make(map[string][]*MixerCtl),
		ctlIdMap: make(map[uint32]*MixerCtl),
	}

	info, err := ctl.CardInfo()
	if err != nil {
		_ = ctl.Close()

		return nil, err
	}

	mixer.cardInfo = info

	if err := mixer.loadControls(); err != nil {
		_ = ctl.Close()

		return nil, fmt.Errorf("failed to enumerate controls: %w", err)
	}

	return mixer, nil
}

// IsReady returns true if the mixer holds an open control device.
func (m *Mixer) IsReady() bool {
	return m != nil && m.ctl.IsReady()
}

// Close closes the mixer device handle. Controls obtained from this mixer
// become invalid.
func (m *Mixer) Close() error {
	if m == nil || m.ctl == nil {
		return nil
	}

	err := m.ctl.Close()
	m.Ctls = nil
	m.ctlMap = nil
	m.ctlIdMap = nil

	return err
}

// Name returns the name of the sound card.
func (m *Mixer) Name() string {
	if m == nil {
		return ""
	}

	return m.cardInfo.Name
}

// Card returns the card number the mixer was opened on.
func (m *Mixer) Card() uint {
	if m == nil {
		return 0
	}

	return m.ctl.Card()
}

// NumCtls returns the total number of controls found on the mixer.
func (m *Mixer) NumCtls() int {
	if m == nil {
		return 0
	}

	return len(m.Ctls)
}

// NumCtlsByName returns the number of controls that match the given name.
func (m *Mixer) NumCtlsByName(name string) int {
	if m == nil {
		return 0
	}

	return len(m.ctlMap[name])
}

// Ctl returns a mixer control by its numeric ID.
func (m *Mixer) Ctl(id uint32) (*MixerCtl, error) {
	if m == nil {
		return nil, fmt.Errorf("mixer is nil")
	}

	ctl, ok := m.ctlIdMap[id]
	if !ok {
		return nil, fmt.Errorf("control with id %d not found", id)
	}

	return ctl, nil
}

// CtlByIndex returns a mixer control by its 0-based index in the enumerated list.
// The index is valid from 0 to NumCtls() - 1.
func (m *Mixer) CtlByIndex(index uint) (*MixerCtl, error) {
	if m == nil {
		return nil, fmt.Errorf("mixer is nil")
	}

	if index >= uint(m.NumCtls()) {
		return nil, fmt.Errorf("index %d is out of bounds (number of controls: %d)", index, m.NumCtls())
	}

	return m.Ctls[index], nil
}

// CtlByName returns the first mixer control found with the given name.
func (m *Mixer) CtlByName(name string) (*MixerCtl, error) {
	if m == nil {
		return nil, fmt.Errorf("mixer is nil")
	}

	return m.CtlByNameAndIndex(name, 0)
}

// CtlByNameAndIndex returns a specific mixer control handle by name and index.
func (m *Mixer) CtlByNameAndIndex(name string, index uint) (*MixerCtl, error) {
	if m == nil {
		return nil, fmt.Errorf("mixer is nil")
	}

	ctls, ok := m.ctlMap[name]
	if !ok {
		return nil, fmt.Errorf("control not found: %s", name)
	}

	if index >= uint(len(ctls)) {
		return nil, fmt.Errorf("index %d out of bounds for control %s", index, name)
	}

	return ctls[index], nil
}

// CtlByNameAndDevice returns a mixer control handle by name and device number.
func (m *Mixer) CtlByNameAndDevice(name string, device uint32) (*MixerCtl, error) {
	if m == nil {
		return nil, fmt.Errorf("mixer is nil")
	}

	ctls, ok := m.ctlMap[name]
	if !ok {
		return nil, fmt.Errorf("control not found: %s", name)
	}

	for _, ctl := range ctls {
		if ctl.Device() == device {
			return ctl, nil
		}
	}

	return nil, fmt.Errorf("control %s with device %d not found", name, device)
}

// CtlByNameAndSubdevice returns a mixer control handle by name and subdevice number.
func (m *Mixer) CtlByNameAndSubdevice(name string, subdevice uint32) (*MixerCtl, error) {
	if m == nil {
		return nil, fmt.Errorf("mixer is nil")
	}

	ctls, ok := m.ctlMap[name]
	if !ok {
		return nil, fmt.Errorf("control not found: %s", name)
	}

	for _, ctl := range ctls {
		if ctl.Subdevice() == subdevice {
			return ctl, nil
		}
	}

	return nil, fmt.Errorf("control %s with subdevice %d not found", name, subdevice)
}

// AddNewCtls scans for and adds any new controls that have appeared since the mixer was opened.
func (m *Mixer) AddNewCtls() error {
	if m == nil {
		return fmt.Errorf("mixer is nil")
	}

	count, err := m.ctl.elemCount()
	if err != nil {
		return err
	}

	currentCount := uint32(len(m.Ctls))
	if count <= currentCount {
		return nil // No new controls
	}

	ids, err := m.ctl.elemIDs(currentCount, count-currentCount)
	if err != nil {
		return err
	}

	m.addControls(ids)

	return nil
}

// SubscribeEvents enables or disables event generation for this mixer handle.
func (m *Mixer) SubscribeEvents(enable bool) error {
	if m == nil {
		return fmt.Errorf("mixer is nil")
	}

	return m.ctl.SubscribeEvents(enable)
}

// WaitEvent waits for a mixer event to occur.
// It returns true if an event is pending, false on timeout.
func (m *Mixer) WaitEvent(timeoutMs int) (bool, error) {
	if m == nil {
		return false, fmt.Errorf("mixer is nil")
	}

	return m.ctl.Wait(timeoutMs)
}

// ReadEvent reads a pending mixer event from the device. The returned event
// carries the numid of the control it refers to.
func (m *Mixer) ReadEvent() (*MixerEvent, error) {
	if m == nil {
		return nil, fmt.Errorf("mixer is nil")
	}

	ev, err := m.ctl.ReadEvent()
	if err != nil {
		return nil, err
	}

	return &MixerEvent{Type: ev.Mask, ControlID: ev.ID.Numid}, nil
}

// ConsumeEvent reads and discards a single pending mixer event.
func (m *Mixer) ConsumeEvent() error {
	if m == nil {
		return fmt.Errorf("mixer is nil")
	}

	_, err := m.ReadEvent()

	return err
}

// Fd returns the underlying file descriptor for the mixer device.
func (m *Mixer) Fd() uintptr {
	if m == nil {
		return ^uintptr(0) // Invalid FD
	}

	return m.ctl.Fd()
}

// PollDescriptors returns the poll descriptors for the mixer device. The
// descriptors signal readability when a subscribed event is pending.
func (m *Mixer) PollDescriptors() []unix.PollFd {
	if m == nil {
		return nil
	}

	return m.ctl.PollDescriptors()
}

// loadControls gets the information for every control on the mixer.
func (m *Mixer) loadControls() error {
	count, err := m.ctl.elemCount()
	if err != nil {
		return err
	}

	if count == 0 {
		return nil
	}

	ids, err := m.ctl.elemIDs(0, count)
	if err != nil {
		return err
	}

	m.Ctls = make([]*MixerCtl, 0, len(ids))
	m.addControls(ids)

	return nil
}

// addControls queries element info for each id and registers the resulting
// controls. Elements that vanish between the list and info calls are skipped.
func (m *Mixer) addControls(ids []sndCtlElemId) {
	for i := range ids {
		info := sndCtlElemInfo{}
		info.Id = ids[i] // Copy the entire ID structure

		if err := m.ctl.elemInfoNative(&info); err != nil {
			continue
		}

		ctl := &MixerCtl{
			mixer: m,
			info:  info,
		}

		name := ctl.Name()
		m.Ctls = append(m.Ctls, ctl)
		m.ctlMap[name] = append(m.ctlMap[name], ctl)
		m.ctlIdMap[ctl.ID()] = ctl
	}
}

// cString converts a C-style null-terminated byte array to a Go string.
func cString(b []byte) string {
	i := bytes.IndexByte(b, 0)
	if i == -1 {
		return string(b)
	}

	return string(b[:i])
}
