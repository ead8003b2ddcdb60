package alsa

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"syscall"
	"unsafe"
)

// WriteI writes up to frames of interleaved audio data to a playback PCM
// device in a single transfer. The provided `data` must be a slice of a
// supported numeric type (e.g., []int16, []float32) holding at least that
// many frames.
//
// A short write (fewer frames transferred than requested) is a success value,
// not an error; callers loop if they need the full count delivered. An xrun
// or suspend is surfaced as an error wrapping EPIPE or ESTRPIPE — WriteI
// never recovers the stream itself, that is the caller's decision (see
// Recover). On a non-blocking handle a full buffer returns EAGAIN.
func (p *PCM) WriteI(data any, frames uint32) (int, error) {
	if (p.flags & PCM_IN) != 0 {
		return 0, fmt.Errorf("cannot write to a capture device")
	}

	if (p.flags & PCM_MMAP) != 0 {
		return 0, fmt.Errorf("use MmapWrite for mmap devices")
	}

	ptr, byteLen, err := checkSliceAndGetData(data)
	if err != nil {
		return 0, fmt.Errorf("invalid data type for WriteI: %w", err)
	}

	if frames == 0 {
		return 0, fmt.Errorf("invalid frame count for WriteI")
	}

	if requiredBytes := PcmFramesToBytes(p, frames); byteLen < requiredBytes {
		return 0, fmt.Errorf("data buffer too small: needs %d bytes, got %d", requiredBytes, byteLen)
	}

	defer runtime.KeepAlive(data)

	if p.State() == SNDRV_PCM_STATE_SETUP {
		if err := p.Prepare(); err != nil {
			return 0, err
		}
	}

	return p.xferI(SNDRV_PCM_IOCTL_WRITEI_FRAMES, "WRITEI_FRAMES", uintptr(ptr), frames)
}

// ReadI reads up to frames of interleaved audio data from a capture PCM
// device in a single transfer. Short reads are success values carrying the
// actual count; xrun and suspend are surfaced, never recovered implicitly.
// On a non-blocking handle an empty buffer returns EAGAIN.
func (p *PCM) ReadI(data any, frames uint32) (int, error) {
	if (p.flags & PCM_IN) == 0 {
		return 0, fmt.Errorf("cannot read from a playback device")
	}

	if (p.flags & PCM_MMAP) != 0 {
		return 0, fmt.Errorf("use MmapRead for mmap devices")
	}

	ptr, byteLen, err := checkSliceAndGetData(data)
	if err != nil {
		return 0, fmt.Errorf("invalid buffer type for ReadI: %w", err)
	}

	if frames == 0 {
		return 0, fmt.Errorf("invalid frame count for ReadI")
	}

	if requiredBytes := PcmFramesToBytes(p, frames); byteLen < requiredBytes {
		return 0, fmt.Errorf("buffer too small: needs %d bytes, got %d", requiredBytes, byteLen)
	}

	defer runtime.KeepAlive(data)

	if p.State() == SNDRV_PCM_STATE_SETUP {
		if err := p.Prepare(); err != nil {
			return 0, err
		}
	}

	return p.xferI(SNDRV_PCM_IOCTL_READI_FRAMES, "READI_FRAMES", uintptr(ptr), frames)
}

// Write writes the entire slice of interleaved audio data to a playback PCM
// device, looping over short writes until every frame is delivered. The
// number of frames is derived from the slice length.
// Returns the number of frames actually written.
func (p *PCM) Write(data any) (int, error) {
	if (p.flags & PCM_IN) != 0 {
		return 0, fmt.Errorf("cannot write to a capture device")
	}

	if (p.flags & PCM_MMAP) != 0 {
		return 0, fmt.Errorf("use MmapWrite for mmap devices")
	}

	ptr, byteLen, err := checkSliceAndGetData(data)
	if err != nil {
		return 0, fmt.Errorf("invalid data type for Write: %w", err)
	}

	frames := PcmBytesToFrames(p, byteLen)
	if frames == 0 {
		return 0, fmt.Errorf("invalid data for Write")
	}

	defer runtime.KeepAlive(data)

	if p.State() == SNDRV_PCM_STATE_SETUP {
		if err := p.Prepare(); err != nil {
			return 0, err
		}
	}

	framesWritten := uint32(0)
	for framesWritten < frames {
		remainingFrames := frames - framesWritten
		offsetBytes := PcmFramesToBytes(p, framesWritten)

		n, err := p.xferI(SNDRV_PCM_IOCTL_WRITEI_FRAMES, "WRITEI_FRAMES", uintptr(ptr)+uintptr(offsetBytes), remainingFrames)
		framesWritten += uint32(n)

		if err != nil {
			return int(framesWritten), err
		}
	}

	return int(framesWritten), nil
}

// Read fills the entire slice with interleaved audio data from a capture PCM
// device, looping over short reads until the slice is full.
// Returns the number of frames actually read.
func (p *PCM) Read(data any) (int, error) {
	if (p.flags & PCM_IN) == 0 {
		return 0, fmt.Errorf("cannot read from a playback device")
	}

	if (p.flags & PCM_MMAP) != 0 {
		return 0, fmt.Errorf("use MmapRead for mmap devices")
	}

	ptr, byteLen, err := checkSliceAndGetData(data)
	if err != nil {
		return 0, fmt.Errorf("invalid buffer type for Read: %w", err)
	}

	frames := PcmBytesToFrames(p, byteLen)
	if frames == 0 {
		return 0, fmt.Errorf("invalid data for Read")
	}

	defer runtime.KeepAlive(data)

	if p.State() == SNDRV_PCM_STATE_SETUP {
		if err := p.Prepare(); err != nil {
			return 0, err
		}
	}

	framesRead := uint32(0)
	for framesRead < frames {
		remainingFrames := frames - framesRead
		offsetBytes := PcmFramesToBytes(p, framesRead)

		n, err := p.xferI(SNDRV_PCM_IOCTL_READI_FRAMES, "READI_FRAMES", uintptr(ptr)+uintptr(offsetBytes), remainingFrames)
		framesRead += uint32(n)

		if err != nil {
			return int(framesRead), err
		}
	}

	return int(framesRead), nil
}

// WriteN writes up to frames of non-interleaved audio data to a playback PCM
// device, one slice per channel. The stream must have been opened with
// PCM_NONINTERLEAVED. Error semantics match WriteI.
func (p *PCM) WriteN(bufs []any, frames uint32) (int, error) {
	if (p.flags & PCM_IN) != 0 {
		return 0, fmt.Errorf("cannot write to a capture device")
	}

	if (p.flags & PCM_NONINTERLEAVED) == 0 {
		return 0, fmt.Errorf("WriteN requires a stream opened with PCM_NONINTERLEAVED")
	}

	ptrs, err := p.checkChannelSlices(bufs, frames)
	if err != nil {
		return 0, fmt.Errorf("invalid data for WriteN: %w", err)
	}

	defer runtime.KeepAlive(bufs)

	if p.State() == SNDRV_PCM_STATE_SETUP {
		if err := p.Prepare(); err != nil {
			return 0, err
		}
	}

	return p.xferN(SNDRV_PCM_IOCTL_WRITEN_FRAMES, "WRITEN_FRAMES", ptrs, frames)
}

// ReadN reads up to frames of non-interleaved audio data from a capture PCM
// device, one slice per channel. The stream must have been opened with
// PCM_NONINTERLEAVED. Error semantics match ReadI.
func (p *PCM) ReadN(bufs []any, frames uint32) (int, error) {
	if (p.flags & PCM_IN) == 0 {
		return 0, fmt.Errorf("cannot read from a playback device")
	}

	if (p.flags & PCM_NONINTERLEAVED) == 0 {
		return 0, fmt.Errorf("ReadN requires a stream opened with PCM_NONINTERLEAVED")
	}

	ptrs, err := p.checkChannelSlices(bufs, frames)
	if err != nil {
		return 0, fmt.Errorf("invalid buffers for ReadN: %w", err)
	}

	defer runtime.KeepAlive(bufs)

	if p.State() == SNDRV_PCM_STATE_SETUP {
		if err := p.Prepare(); err != nil {
			return 0, err
		}
	}

	return p.xferN(SNDRV_PCM_IOCTL_READN_FRAMES, "READN_FRAMES", ptrs, frames)
}

// xferI performs a single interleaved transfer ioctl and translates the
// result into (frames, error).
func (p *PCM) xferI(req uintptr, name string, buf uintptr, frames uint32) (int, error) {
	xfer := sndXferi{
		Buf:    buf,
		Frames: SndPcmUframesT(frames),
	}

	err := ioctl(p.fd, req, uintptr(unsafe.Pointer(&xfer)))

	transferred := 0
	if xfer.Result > 0 {
		transferred = int(xfer.Result)
	}

	if err != nil {
		// For non-blocking mode, EAGAIN means the buffer is full (playback)
		// or no data is available (capture).
		if (p.flags&PCM_NONBLOCK) != 0 && errors.Is(err, syscall.EAGAIN) {
			return transferred, syscall.EAGAIN
		}

		return transferred, fmt.Errorf("ioctl %s failed: %w", name, err)
	}

	return transferred, nil
}

// xferN performs a single non-interleaved transfer ioctl against one buffer
// pointer per channel.
func (p *PCM) xferN(req uintptr, name string, ptrs []uintptr, frames uint32) (int, error) {
	xfer := sndXfern{
		Bufs:   uintptr(unsafe.Pointer(&ptrs[0])),
		Frames: SndPcmUframesT(frames),
	}

	err := ioctl(p.fd, req, uintptr(unsafe.Pointer(&xfer)))
	runtime.KeepAlive(ptrs)

	transferred := 0
	if xfer.Result > 0 {
		transferred = int(xfer.Result)
	}

	if err != nil {
		if (p.flags&PCM_NONBLOCK) != 0 && errors.Is(err, syscall.EAGAIN) {
			return transferred, syscall.EAGAIN
		}

		return transferred, fmt.Errorf("ioctl %s failed: %w", name, err)
	}

	return transferred, nil
}

// checkSlice validates that the input is a slice of a supported numeric type.
// It returns the total length of the slice data in bytes.
func checkSlice(data any) (byteLen uint32, err error) {
	if data == nil {
		return 0, errors.New("data cannot be nil")
	}

	rv := reflect.ValueOf(data)
	if rv.Kind() != reflect.Slice {
		return 0, fmt.Errorf("expected a slice, got %T", data)
	}

	if rv.Len() == 0 {
		return 0, nil
	}

	switch rv.Type().Elem().Kind() {
	case reflect.Int8, reflect.Uint8,
		reflect.Int16, reflect.Uint16,
		reflect.Int32, reflect.Uint32,
		reflect.Float32, reflect.Float64:
	default:
		return 0, fmt.Errorf("unsupported slice element type: %s", rv.Type().Elem().Kind())
	}

	return uint32(rv.Len()) * uint32(rv.Type().Elem().Size()), nil
}

// checkSliceAndGetData is a helper that combines slice validation and getting the data pointer.
func checkSliceAndGetData(data any) (ptr unsafe.Pointer, byteLen uint32, err error) {
	byteLen, err = checkSlice(data)
	if err != nil {
		return nil, 0, err
	}

	if byteLen > 0 {
		ptr = unsafe.Pointer(reflect.ValueOf(data).Index(0).Addr().Pointer())
	}

	return ptr, byteLen, nil
}

// checkChannelSlices validates one slice per channel for non-interleaved I/O
// and returns the per-channel data pointers.
func (p *PCM) checkChannelSlices(bufs []any, frames uint32) ([]uintptr, error) {
	if uint32(len(bufs)) != p.config.Channels {
		return nil, fmt.Errorf("need one buffer per channel: got %d, want %d", len(bufs), p.config.Channels)
	}

	if frames == 0 {
		return nil, fmt.Errorf("invalid frame count")
	}

	neededBytes := frames * (PcmFormatToBits(p.config.Format) / 8)

	ptrs := make([]uintptr, len(bufs))
	for i, buf := range bufs {
		byteLen, err := checkSlice(buf)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}

		if byteLen < neededBytes {
			return nil, fmt.Errorf("channel %d buffer too small: needs %d bytes, got %d", i, neededBytes, byteLen)
		}

		ptrs[i] = reflect.ValueOf(buf).Index(0).Addr().Pointer()
	}

	return ptrs, nil
}
