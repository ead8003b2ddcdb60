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

// RawMidiInfo describes a raw MIDI device as reported by the driver. Flags
// carries the SNDRV_RAWMIDI_INFO_* capability bits.
type RawMidiInfo struct {
	Card            int32
	Device          uint32
	Subdevice       uint32
	Stream          RawMidiStream
	Flags           uint32
	ID              string
	Name            string
	Subname         string
	SubdevicesCount uint32
	SubdevicesAvail uint32
}

func newRawMidiInfo(info *sndRawMidiInfo) *RawMidiInfo {
	return &RawMidiInfo{
		Card:            info.Card,
		Device:          info.Device,
		Subdevice:       info.Subdevice,
		Stream:          RawMidiStream(info.Stream),
		Flags:           info.Flags,
		ID:              cString(info.Id[:]),
		Name:            cString(info.Name[:]),
		Subname:         cString(info.Subname[:]),
		SubdevicesCount: info.SubdevicesCount,
		SubdevicesAvail: info.SubdevicesAvail,
	}
}

// RawMidiParams carries the buffering parameters of one direction of a raw
// MIDI substream.
type RawMidiParams struct {
	Stream          RawMidiStream
	BufferSize      uint
	AvailMin        uint
	NoActiveSensing bool
}

// RawMidiStatus is a snapshot of one direction of a raw MIDI substream. Avail
// is bytes ready to read (input) or free buffer space (output); Xruns counts
// bytes lost to buffer overruns since the handle was opened.
type RawMidiStatus struct {
	Stream RawMidiStream
	Avail  uint
	Xruns  uint
}

// RawMidi represents an open ALSA raw MIDI device handle. A handle opened
// with RAWMIDI_DUPLEX owns both the input and the output substream of the
// device node; queries that need a direction take it as an argument.
type RawMidi struct {
	file      *os.File
	fd        uintptr // Raw descriptor; File.Fd() may toggle O_NONBLOCK, so it is cached once at open
	card      uint
	device    uint
	subdevice uint32
	flags     RawMidiFlag
	outParams RawMidiParams
	inParams  RawMidiParams
}

// RawMidiOpenByName opens a raw MIDI device by its name, in the format
// "hw:C,D" or "hw:C,D,S" to target a specific subdevice.
func RawMidiOpenByName(name string, flags RawMidiFlag) (*RawMidi, error) {
	if !strings.HasPrefix(name, "hw:") {
		return nil, fmt.Errorf("invalid raw MIDI name format: missing 'hw:' prefix")
	}

	parts := strings.Split(strings.TrimPrefix(name, "hw:"), ",")
	if len(parts) != 2 && len(parts) != 3 {
		return nil, fmt.Errorf("invalid raw MIDI name format: expected 'hw:card,device' or 'hw:card,device,subdevice'")
	}

	card, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid card number '%s': %w", parts[0], err)
	}

	device, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid device number '%s': %w", parts[1], err)
	}

	var subdevice uint64
	if len(parts) == 3 {
		subdevice, err = strconv.ParseUint(parts[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid subdevice number '%s': %w", parts[2], err)
		}
	}

	return RawMidiOpen(uint(card), uint(device), uint(subdevice), flags)
}

// RawMidiOpen opens an ALSA raw MIDI device node (/dev/snd/midiC%dD%d). The
// flags select the direction (RAWMIDI_OUTPUT, RAWMIDI_INPUT or
// RAWMIDI_DUPLEX) and blocking behavior. A subdevice greater than zero is
// requested through the card's control device before the open and verified
// afterwards; the kernel hands out the first free subdevice otherwise.
func RawMidiOpen(card, device, subdevice uint, flags RawMidiFlag) (*RawMidi, error) {
	if (flags & RAWMIDI_DUPLEX) == 0 {
		return nil, fmt.Errorf("raw MIDI flags select no direction: %w", syscall.EINVAL)
	}

	// The subdevice preference only applies to opens from the same process
	// while the control handle stays open, so it is held across the open.
	var ctl *Ctl
	if subdevice > 0 {
		var err error
		ctl, err = CtlOpen(card, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open control device for subdevice selection: %w", err)
		}
		defer ctl.Close()

		if err := ctl.RawMidiPreferSubdevice(int32(subdevice)); err != nil {
			return nil, err
		}
	}

	var accMode int
	switch {
	case (flags & RAWMIDI_DUPLEX) == RAWMIDI_DUPLEX:
		accMode = unix.O_RDWR
	case (flags & RAWMIDI_INPUT) != 0:
		accMode = unix.O_RDONLY
	default:
		accMode = unix.O_WRONLY
	}

	path := fmt.Sprintf("/dev/snd/midiC%dD%d", card, device)

	// Always open non-blocking so a busy subdevice fails fast instead of
	// blocking inside open, then clear the flag if blocking I/O was
	// requested. The raw descriptor is adjusted before it is handed to
	// os.NewFile and cached for all further calls: File.Fd() can put the
	// descriptor back into blocking mode behind our back.
	rawFd, err := unix.Open(path, accMode|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw MIDI device %s: %w", path, err)
	}

	if (flags & RAWMIDI_NONBLOCK) == 0 {
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

	file := os.NewFile(uintptr(rawFd), path)

	stream := SNDRV_RAWMIDI_STREAM_OUTPUT
	if (flags & RAWMIDI_OUTPUT) == 0 {
		stream = SNDRV_RAWMIDI_STREAM_INPUT
	}

	info := sndRawMidiInfo{Stream: int32(stream)}
	if err := ioctl(uintptr(rawFd), SNDRV_RAWMIDI_IOCTL_INFO, uintptr(unsafe.Pointer(&info))); err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("ioctl INFO failed: %w", err)
	}

	if subdevice > 0 && info.Subdevice != uint32(subdevice) {
		_ = file.Close()

		return nil, fmt.Errorf("requested subdevice %d but opened %d: %w", subdevice, info.Subdevice, syscall.EBUSY)
	}

	// The kernel sizes each substream buffer to one page with a one byte
	// wakeup watermark; PARAMS cannot be read back, so these are tracked
	// here and refreshed by SetParams.
	defaults := RawMidiParams{
		BufferSize: uint(os.Getpagesize()),
		AvailMin:   1,
	}

	rm := &RawMidi{
		file:      file,
		fd:        uintptr(rawFd),
		card:      card,
		device:    device,
		subdevice: info.Subdevice,
		flags:     flags,
		outParams: defaults,
		inParams:  defaults,
	}
	rm.outParams.Stream = SNDRV_RAWMIDI_STREAM_OUTPUT
	rm.inParams.Stream = SNDRV_RAWMIDI_STREAM_INPUT

	return rm, nil
}

// IsReady checks if the raw MIDI handle is valid.
func (rm *RawMidi) IsReady() bool {
	return rm != nil && rm.file != nil
}

// Close closes the raw MIDI device handle. Pending output is discarded by the
// kernel unless Drain was called first.
func (rm *RawMidi) Close() error {
	if !rm.IsReady() {
		return nil
	}

	err := rm.file.Close()
	rm.file = nil

	return err
}

// Card returns the card number the device was opened on.
func (rm *RawMidi) Card() uint {
	return rm.card
}

// Device returns the device number the device was opened on.
func (rm *RawMidi) Device() uint {
	return rm.device
}

// Subdevice returns the subdevice number the kernel assigned at open.
func (rm *RawMidi) Subdevice() uint32 {
	return rm.subdevice
}

// Flags returns the open flags of the raw MIDI handle.
func (rm *RawMidi) Flags() RawMidiFlag {
	return rm.flags
}

// Fd returns the underlying file descriptor for the raw MIDI device.
func (rm *RawMidi) Fd() uintptr {
	if !rm.IsReady() {
		return ^uintptr(0) // Invalid FD
	}

	return rm.fd
}

// Read reads MIDI bytes from the input substream. A short count is a success
// value; a non-blocking handle returns EAGAIN when no bytes are pending.
func (rm *RawMidi) Read(buf []byte) (int, error) {
	if !rm.IsReady() {
		return 0, fmt.Errorf("raw MIDI handle is not valid")
	}

	if (rm.flags & RAWMIDI_INPUT) == 0 {
		return 0, fmt.Errorf("raw MIDI handle is not open for input: %w", syscall.EINVAL)
	}

	if len(buf) == 0 {
		return 0, nil
	}

	n, err := unix.Read(int(rm.fd), buf)
	if err != nil {
		return 0, fmt.Errorf("read from raw MIDI device failed: %w", err)
	}

	return n, nil
}

// Write writes MIDI bytes to the output substream. A short count is a success
// value; a non-blocking handle returns EAGAIN when the buffer is full.
func (rm *RawMidi) Write(buf []byte) (int, error) {
	if !rm.IsReady() {
		return 0, fmt.Errorf("raw MIDI handle is not valid")
	}

	if (rm.flags & RAWMIDI_OUTPUT) == 0 {
		return 0, fmt.Errorf("raw MIDI handle is not open for output: %w", syscall.EINVAL)
	}

	if len(buf) == 0 {
		return 0, nil
	}

	n, err := unix.Write(int(rm.fd), buf)
	if err != nil {
		return 0, fmt.Errorf("write to raw MIDI device failed: %w", err)
	}

	return n, nil
}

// Drain blocks until all queued output bytes have been transmitted.
func (rm *RawMidi) Drain() error {
	if !rm.IsReady() {
		return fmt.Errorf("raw MIDI handle is not valid")
	}

	if (rm.flags & RAWMIDI_OUTPUT) == 0 {
		return fmt.Errorf("raw MIDI handle is not open for output: %w", syscall.EINVAL)
	}

	stream := int32(SNDRV_RAWMIDI_STREAM_OUTPUT)
	if err := ioctl(rm.fd, SNDRV_RAWMIDI_IOCTL_DRAIN, uintptr(unsafe.Pointer(&stream))); err != nil {
		return fmt.Errorf("ioctl DRAIN failed: %w", err)
	}

	return nil
}

// Drop discards all queued output bytes without transmitting them.
func (rm *RawMidi) Drop() error {
	if !rm.IsReady() {
		return fmt.Errorf("raw MIDI handle is not valid")
	}

	if (rm.flags & RAWMIDI_OUTPUT) == 0 {
		return fmt.Errorf("raw MIDI handle is not open for output: %w", syscall.EINVAL)
	}

	stream := int32(SNDRV_RAWMIDI_STREAM_OUTPUT)
	if err := ioctl(rm.fd, SNDRV_RAWMIDI_IOCTL_DROP, uintptr(unsafe.Pointer(&stream))); err != nil {
		return fmt.Errorf("ioctl DROP failed: %w", err)
	}

	return nil
}

// Info returns the driver identification for one direction of the open
// device. A duplex handle owns two substreams, so the direction must be
// named.
func (rm *RawMidi) Info(stream RawMidiStream) (*RawMidiInfo, error) {
	if !rm.IsReady() {
		return nil, fmt.Errorf("raw MIDI handle is not valid")
	}

	if err := rm.checkStream(stream); err != nil {
		return nil, err
	}

	info := sndRawMidiInfo{Stream: int32(stream)}
	if err := ioctl(rm.fd, SNDRV_RAWMIDI_IOCTL_INFO, uintptr(unsafe.Pointer(&info))); err != nil {
		return nil, fmt.Errorf("ioctl INFO failed: %w", err)
	}

	return newRawMidiInfo(&info), nil
}

// Params returns the buffering parameters of one direction of the handle.
// The kernel offers no query for these, so the values last applied through
// SetParams (or the kernel defaults) are returned.
func (rm *RawMidi) Params(stream RawMidiStream) (*RawMidiParams, error) {
	if !rm.IsReady() {
		return nil, fmt.Errorf("raw MIDI handle is not valid")
	}

	if err := rm.checkStream(stream); err != nil {
		return nil, err
	}

	params := rm.outParams
	if stream == SNDRV_RAWMIDI_STREAM_INPUT {
		params = rm.inParams
	}

	return &params, nil
}

// SetParams applies buffering parameters to the direction named by
// params.Stream. The kernel resizes the substream buffer, which requires the
// substream to be idle, and rejects sizes outside [32, 1MiB] or a watermark
// larger than the buffer.
func (rm *RawMidi) SetParams(params *RawMidiParams) error {
	if !rm.IsReady() {
		return fmt.Errorf("raw MIDI handle is not valid")
	}

	if params == nil {
		return fmt.Errorf("params is nil: %w", syscall.EINVAL)
	}

	if err := rm.checkStream(params.Stream); err != nil {
		return err
	}

	native := sndRawMidiParams{
		Stream:     int32(params.Stream),
		BufferSize: SndPcmUframesT(params.BufferSize),
		AvailMin:   SndPcmUframesT(params.AvailMin),
	}
	if params.NoActiveSensing {
		native.NoActiveSensing = 1
	}

	if err := ioctl(rm.fd, SNDRV_RAWMIDI_IOCTL_PARAMS, uintptr(unsafe.Pointer(&native))); err != nil {
		return fmt.Errorf("ioctl PARAMS failed: %w", err)
	}

	if params.Stream == SNDRV_RAWMIDI_STREAM_INPUT {
		rm.inParams = *params
	} else {
		rm.outParams = *params
	}

	return nil
}

// Status returns a snapshot of one direction of the handle.
func (rm *RawMidi) Status(stream RawMidiStream) (*RawMidiStatus, error) {
	if !rm.IsReady() {
		return nil, fmt.Errorf("raw MIDI handle is not valid")
	}

	if err := rm.checkStream(stream); err != nil {
		return nil, err
	}

	native := sndRawMidiStatus{Stream: int32(stream)}
	if err := ioctl(rm.fd, SNDRV_RAWMIDI_IOCTL_STATUS, uintptr(unsafe.Pointer(&native))); err != nil {
		return nil, fmt.Errorf("ioctl STATUS failed: %w", err)
	}

	return &RawMidiStatus{
		Stream: stream,
		Avail:  uint(native.Avail),
		Xruns:  uint(native.Xruns),
	}, nil
}

// checkStream verifies that the handle was opened for the given direction.
func (rm *RawMidi) checkStream(stream RawMidiStream) error {
	switch stream {
	case SNDRV_RAWMIDI_STREAM_OUTPUT:
		if (rm.flags & RAWMIDI_OUTPUT) == 0 {
			return fmt.Errorf("raw MIDI handle is not open for output: %w", syscall.EINVAL)
		}
	case SNDRV_RAWMIDI_STREAM_INPUT:
		if (rm.flags & RAWMIDI_INPUT) == 0 {
			return fmt.Errorf("raw MIDI handle is not open for input: %w", syscall.EINVAL)
		}
	default:
		return fmt.Errorf("invalid raw MIDI stream %d: %w", stream, syscall.EINVAL)
	}

	return nil
}

// PollDescriptors returns the poll descriptors for the raw MIDI device, with
// the interest mask matching the open directions (duplex handles ask for
// both). The returned slice is a fresh copy, valid only while the handle is
// open; callers may combine descriptors from several handles into a single
// unix.Poll call.
func (rm *RawMidi) PollDescriptors() []unix.PollFd {
	if !rm.IsReady() {
		return nil
	}

	var events int16
	if (rm.flags & RAWMIDI_OUTPUT) != 0 {
		events |= unix.POLLOUT
	}
	if (rm.flags & RAWMIDI_INPUT) != 0 {
		events |= unix.POLLIN
	}

	return []unix.PollFd{
		{Fd: int32(rm.fd), Events: events | unix.POLLERR | unix.POLLNVAL},
	}
}

// Wait waits for the raw MIDI device to become ready for I/O or until a
// timeout occurs. A negative timeout blocks indefinitely. Returns true if
// the device is ready, false on timeout.
func (rm *RawMidi) Wait(timeoutMs int) (bool, error) {
	if !rm.IsReady() {
		return false, fmt.Errorf("raw MIDI handle is not valid")
	}

	pfd := rm.PollDescriptors()

	n, err := poll(pfd, timeoutMs)
	if err != nil {
		return false, err
	}

	if n == 0 {
		return false, nil // Timeout
	}

	if (pfd[0].Revents & (unix.POLLERR | unix.POLLNVAL)) != 0 {
		return false, fmt.Errorf("raw MIDI device error: %w", syscall.EIO)
	}

	return true, nil
}
