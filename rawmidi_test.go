package alsa_test

import (
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-alsa/alsa"
)

// findRawMidiDevice scans all cards for the first raw MIDI device. The gated
// test cards have none; snd-virmidi provides some when loaded.
func findRawMidiDevice(t *testing.T) (uint, uint, bool) {
	t.Helper()

	card := -1
	for {
		if err := alsa.CardNext(&card); err != nil || card < 0 {
			return 0, 0, false
		}

		ctl, err := alsa.CtlOpen(uint(card), false)
		if err != nil {
			continue
		}

		device := int32(-1)
		err = ctl.RawMidiNextDevice(&device)
		ctl.Close()

		if err != nil || device < 0 {
			continue
		}

		return uint(card), uint(device), true
	}
}

func TestRawMidiEnumeration(t *testing.T) {
	found := 0

	card := -1
	for {
		require.NoError(t, alsa.CardNext(&card))
		if card < 0 {
			break
		}

		ctl, err := alsa.CtlOpen(uint(card), false)
		if err != nil {
			continue
		}

		device := int32(-1)
		for {
			// Without the rawmidi core the ioctl is unknown; that card simply
			// has no MIDI devices.
			if err := ctl.RawMidiNextDevice(&device); err != nil || device < 0 {
				break
			}

			for _, stream := range []alsa.RawMidiStream{alsa.SNDRV_RAWMIDI_STREAM_OUTPUT, alsa.SNDRV_RAWMIDI_STREAM_INPUT} {
				info, err := ctl.RawMidiInfo(uint32(device), 0, stream)
				if err != nil {
					continue
				}

				assert.Equal(t, int32(card), info.Card)
				assert.Equal(t, uint32(device), info.Device)
				assert.NotEmpty(t, info.Name)

				t.Logf("card %d device %d stream %d: id=%q name=%q subdevices=%d",
					card, device, stream, info.ID, info.Name, info.SubdevicesCount)
			}

			found++
		}

		ctl.Close()
	}

	// Zero devices is a valid outcome on a machine with only the test cards.
	t.Logf("found %d raw MIDI devices", found)
}

func TestRawMidiInvalidParameters(t *testing.T) {
	// Flags must select at least one direction.
	rm, err := alsa.RawMidiOpen(0, 0, 0, 0)
	assert.ErrorIs(t, err, syscall.EINVAL, "directionless open should be rejected")
	assert.Nil(t, rm)

	_, err = alsa.RawMidiOpen(0, 0, 0, alsa.RAWMIDI_NONBLOCK)
	assert.ErrorIs(t, err, syscall.EINVAL, "NONBLOCK alone selects no direction")

	// Card without a device node.
	_, err = alsa.RawMidiOpen(1000, 0, 0, alsa.RAWMIDI_DUPLEX)
	assert.Error(t, err)

	// Malformed names.
	_, err = alsa.RawMidiOpenByName("default", alsa.RAWMIDI_DUPLEX)
	assert.Error(t, err, "name without hw: prefix should be rejected")

	_, err = alsa.RawMidiOpenByName("hw:0", alsa.RAWMIDI_DUPLEX)
	assert.Error(t, err, "name without a device number should be rejected")

	_, err = alsa.RawMidiOpenByName("hw:a,b", alsa.RAWMIDI_DUPLEX)
	assert.Error(t, err, "non-numeric card should be rejected")

	// Nil receivers never panic.
	var nilMidi *alsa.RawMidi
	assert.NotPanics(t, func() {
		assert.False(t, nilMidi.IsReady())
		assert.NoError(t, nilMidi.Close())
		assert.Equal(t, ^uintptr(0), nilMidi.Fd())
		assert.Nil(t, nilMidi.PollDescriptors())

		_, err = nilMidi.Read(make([]byte, 3))
		assert.Error(t, err)

		_, err = nilMidi.Write([]byte{0x90, 0x40, 0x7f})
		assert.Error(t, err)

		assert.Error(t, nilMidi.Drain())
		assert.Error(t, nilMidi.Drop())

		_, err = nilMidi.Info(alsa.SNDRV_RAWMIDI_STREAM_OUTPUT)
		assert.Error(t, err)

		_, err = nilMidi.Params(alsa.SNDRV_RAWMIDI_STREAM_OUTPUT)
		assert.Error(t, err)

		_, err = nilMidi.Status(alsa.SNDRV_RAWMIDI_STREAM_OUTPUT)
		assert.Error(t, err)

		assert.Error(t, nilMidi.SetParams(nil))

		_, err = nilMidi.Wait(0)
		assert.Error(t, err)
	})
}

func TestRawMidiOpenClose(t *testing.T) {
	card, device, ok := findRawMidiDevice(t)
	if !ok {
		t.Skip("no raw MIDI device found; modprobe snd-virmidi to run this test")
	}

	rm, err := alsa.RawMidiOpen(card, device, 0, alsa.RAWMIDI_DUPLEX)
	require.NoError(t, err, "RawMidiOpen should succeed")
	require.NotNil(t, rm)
	defer rm.Close()

	assert.True(t, rm.IsReady())
	assert.Equal(t, card, rm.Card())
	assert.Equal(t, device, rm.Device())
	assert.Equal(t, alsa.RAWMIDI_DUPLEX, rm.Flags()&alsa.RAWMIDI_DUPLEX)
	assert.NotEqual(t, ^uintptr(0), rm.Fd())

	// Driver identification for both directions of the duplex handle.
	outInfo, err := rm.Info(alsa.SNDRV_RAWMIDI_STREAM_OUTPUT)
	require.NoError(t, err)
	assert.Equal(t, int32(card), outInfo.Card)
	assert.Equal(t, uint32(device), outInfo.Device)
	assert.NotEmpty(t, outInfo.Name)
	assert.NotZero(t, outInfo.Flags&alsa.SNDRV_RAWMIDI_INFO_OUTPUT)

	inInfo, err := rm.Info(alsa.SNDRV_RAWMIDI_STREAM_INPUT)
	require.NoError(t, err)
	assert.NotZero(t, inInfo.Flags&alsa.SNDRV_RAWMIDI_INFO_INPUT)

	// An out-of-range direction is rejected.
	_, err = rm.Info(alsa.RawMidiStream(7))
	assert.ErrorIs(t, err, syscall.EINVAL)

	require.NoError(t, rm.Close())
	assert.False(t, rm.IsReady())
	assert.Equal(t, ^uintptr(0), rm.Fd())

	// Double close is a no-op; I/O after close fails.
	assert.NoError(t, rm.Close())

	_, err = rm.Write([]byte{0xfe})
	assert.Error(t, err)

	// By-name open.
	byName, err := alsa.RawMidiOpenByName(fmt.Sprintf("hw:%d,%d", card, device), alsa.RAWMIDI_OUTPUT)
	require.NoError(t, err)
	assert.Equal(t, card, byName.Card())
	assert.NoError(t, byName.Close())
}

func TestRawMidiDirectionEnforcement(t *testing.T) {
	card, device, ok := findRawMidiDevice(t)
	if !ok {
		t.Skip("no raw MIDI device found; modprobe snd-virmidi to run this test")
	}

	// Output-only handle: reads and input queries are rejected.
	out, err := alsa.RawMidiOpen(card, device, 0, alsa.RAWMIDI_OUTPUT)
	require.NoError(t, err)
	defer out.Close()

	_, err = out.Read(make([]byte, 3))
	assert.ErrorIs(t, err, syscall.EINVAL, "read on an output-only handle should fail")

	_, err = out.Status(alsa.SNDRV_RAWMIDI_STREAM_INPUT)
	assert.ErrorIs(t, err, syscall.EINVAL)

	require.NoError(t, out.Close())

	// Input-only handle: writes, drain and drop are rejected.
	in, err := alsa.RawMidiOpen(card, device, 0, alsa.RAWMIDI_INPUT|alsa.RAWMIDI_NONBLOCK)
	require.NoError(t, err)
	defer in.Close()

	_, err = in.Write([]byte{0x90, 0x40, 0x7f})
	assert.ErrorIs(t, err, syscall.EINVAL, "write on an input-only handle should fail")

	assert.ErrorIs(t, in.Drain(), syscall.EINVAL)
	assert.ErrorIs(t, in.Drop(), syscall.EINVAL)
}

func TestRawMidiWriteDrainDrop(t *testing.T) {
	card, device, ok := findRawMidiDevice(t)
	if !ok {
		t.Skip("no raw MIDI device found; modprobe snd-virmidi to run this test")
	}

	rm, err := alsa.RawMidiOpen(card, device, 0, alsa.RAWMIDI_OUTPUT)
	require.NoError(t, err)
	defer rm.Close()

	// Note on, note off.
	msg := []byte{0x90, 0x40, 0x7f, 0x80, 0x40, 0x00}

	n, err := rm.Write(msg)
	require.NoError(t, err, "Write should succeed")
	assert.Equal(t, len(msg), n, "the full message should be accepted")

	require.NoError(t, rm.Drain(), "Drain should flush queued output")

	// Writing nothing is a no-op.
	n, err = rm.Write(nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Drop discards whatever is still queued.
	_, err = rm.Write([]byte{0xfe})
	require.NoError(t, err)
	require.NoError(t, rm.Drop())

	// An empty output buffer has all its space available and no xruns.
	status, err := rm.Status(alsa.SNDRV_RAWMIDI_STREAM_OUTPUT)
	require.NoError(t, err)
	assert.Equal(t, alsa.SNDRV_RAWMIDI_STREAM_OUTPUT, status.Stream)
	assert.Greater(t, status.Avail, uint(0), "drained output buffer should have free space")

	// A writable output substream polls ready immediately.
	ready, err := rm.Wait(100)
	require.NoError(t, err)
	assert.True(t, ready, "an empty output buffer should be ready for writing")
}

func TestRawMidiNonblockRead(t *testing.T) {
	card, device, ok := findRawMidiDevice(t)
	if !ok {
		t.Skip("no raw MIDI device found; modprobe snd-virmidi to run this test")
	}

	rm, err := alsa.RawMidiOpen(card, device, 0, alsa.RAWMIDI_INPUT|alsa.RAWMIDI_NONBLOCK)
	require.NoError(t, err)
	defer rm.Close()

	// Nothing feeds the input substream, so a non-blocking read reports
	// EAGAIN instead of blocking.
	_, err = rm.Read(make([]byte, 16))
	assert.ErrorIs(t, err, syscall.EAGAIN)

	// Reading nothing is a no-op even with an empty buffer.
	n, err := rm.Read(nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	status, err := rm.Status(alsa.SNDRV_RAWMIDI_STREAM_INPUT)
	require.NoError(t, err)
	assert.Zero(t, status.Avail, "an idle input substream should have no pending bytes")
}

func TestRawMidiSetParams(t *testing.T) {
	card, device, ok := findRawMidiDevice(t)
	if !ok {
		t.Skip("no raw MIDI device found; modprobe snd-virmidi to run this test")
	}

	rm, err := alsa.RawMidiOpen(card, device, 0, alsa.RAWMIDI_OUTPUT)
	require.NoError(t, err)
	defer rm.Close()

	// Kernel defaults until SetParams is called.
	params, err := rm.Params(alsa.SNDRV_RAWMIDI_STREAM_OUTPUT)
	require.NoError(t, err)
	assert.Greater(t, params.BufferSize, uint(0))
	assert.Equal(t, uint(1), params.AvailMin)

	// Resize the output buffer.
	newParams := &alsa.RawMidiParams{
		Stream:     alsa.SNDRV_RAWMIDI_STREAM_OUTPUT,
		BufferSize: 8192,
		AvailMin:   64,
	}
	require.NoError(t, rm.SetParams(newParams), "SetParams should succeed")

	applied, err := rm.Params(alsa.SNDRV_RAWMIDI_STREAM_OUTPUT)
	require.NoError(t, err)
	assert.Equal(t, uint(8192), applied.BufferSize)
	assert.Equal(t, uint(64), applied.AvailMin)

	// The kernel rejects sizes outside its [32, 1MiB] window.
	bad := &alsa.RawMidiParams{
		Stream:     alsa.SNDRV_RAWMIDI_STREAM_OUTPUT,
		BufferSize: 4,
		AvailMin:   1,
	}
	assert.Error(t, rm.SetParams(bad), "a 4 byte buffer should be rejected")

	// Rejected params do not disturb the cached values.
	applied, err = rm.Params(alsa.SNDRV_RAWMIDI_STREAM_OUTPUT)
	require.NoError(t, err)
	assert.Equal(t, uint(8192), applied.BufferSize)

	assert.Error(t, rm.SetParams(nil))

	// Params for a direction the handle was not opened with.
	_, err = rm.Params(alsa.SNDRV_RAWMIDI_STREAM_INPUT)
	assert.ErrorIs(t, err, syscall.EINVAL)
}
