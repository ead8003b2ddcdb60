package alsa_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/go-alsa/alsa"
)

// pollRetry polls the descriptors, retrying on EINTR.
func pollRetry(t *testing.T, fds []unix.PollFd, timeoutMs int) int {
	t.Helper()

	for {
		n, err := unix.Poll(fds, timeoutMs)
		if err != nil && errors.Is(err, unix.EINTR) {
			continue
		}
		require.NoError(t, err)

		return n
	}
}

// toggleIntegerElem changes the value of the first read-write integer element
// on the handle and returns a function that restores it. Returns false if the
// card has no suitable element.
func toggleIntegerElem(t *testing.T, ctl *alsa.Ctl) (func(), bool) {
	t.Helper()

	ids, err := ctl.ElemList()
	require.NoError(t, err)

	readWrite := alsa.SNDRV_CTL_ELEM_ACCESS_READ | alsa.SNDRV_CTL_ELEM_ACCESS_WRITE
	for i := range ids {
		info, err := ctl.ElemInfo(&ids[i])
		if err != nil || info.Type != alsa.SNDRV_CTL_ELEM_TYPE_INTEGER ||
			info.Access&readWrite != readWrite || info.Count == 0 || info.Max <= info.Min {
			continue
		}

		value := &alsa.CtlElemValue{}
		value.SetID(&ids[i])
		if err := ctl.ElemRead(value); err != nil {
			continue
		}

		original := value.Integer(0)

		newVal := info.Min
		if original == info.Min {
			newVal = info.Max
		}

		value.SetInteger(0, newVal)
		if err := ctl.ElemWrite(value); err != nil {
			continue
		}

		return func() {
			value.SetInteger(0, original)
			_ = ctl.ElemWrite(value)
		}, true
	}

	return nil, false
}

// Descriptors from different handle types combine into a single unix.Poll
// call, and readiness is reported per descriptor.
func TestPollCombinedDescriptors(t *testing.T) {
	pcm, err := alsa.PcmOpen(uint(loopbackCard), uint(loopbackPlaybackDevice), alsa.PCM_OUT, &defaultConfig)
	require.NoError(t, err)
	defer pcm.Close()

	require.NoError(t, pcm.Prepare())

	ctl, err := alsa.CtlOpen(uint(dummyCard), false)
	require.NoError(t, err)
	defer ctl.Close()

	require.NoError(t, ctl.SubscribeEvents(true))
	defer ctl.SubscribeEvents(false)

	pcmFds := pcm.PollDescriptors()
	require.Len(t, pcmFds, 1)
	assert.NotZero(t, pcmFds[0].Events&unix.POLLOUT, "playback descriptors ask for write readiness")

	ctlFds := ctl.PollDescriptors()
	require.Len(t, ctlFds, 1)
	assert.NotZero(t, ctlFds[0].Events&unix.POLLIN, "control descriptors ask for read readiness")

	// The prepared playback buffer is writable and the control handle has no
	// events, so exactly one descriptor reports ready.
	fds := append(append([]unix.PollFd{}, pcmFds...), ctlFds...)

	n := pollRetry(t, fds, 1000)
	assert.Equal(t, 1, n, "only the PCM descriptor should be ready")
	assert.NotZero(t, fds[0].Revents&unix.POLLOUT, "prepared playback stream should be writable")
	assert.Zero(t, fds[1].Revents, "idle control handle should not be ready")

	// Queue a control event; now both descriptors report ready in a single
	// poll call.
	restore, ok := toggleIntegerElem(t, ctl)
	if !ok {
		t.Skip("no writable integer element found")
	}
	defer restore()

	fds[0].Revents = 0
	fds[1].Revents = 0

	n = pollRetry(t, fds, 1000)
	assert.Equal(t, 2, n, "both descriptors should be ready")
	assert.NotZero(t, fds[0].Revents&unix.POLLOUT)
	assert.NotZero(t, fds[1].Revents&unix.POLLIN, "a pending control event should mark the descriptor readable")

	// Drain the event so the handle closes clean.
	ev, err := ctl.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, alsa.SNDRV_CTL_EVENT_MASK_VALUE, ev.Mask)
}

func TestPollDescriptorsFresh(t *testing.T) {
	ctl, err := alsa.CtlOpen(uint(loopbackCard), false)
	require.NoError(t, err)
	defer ctl.Close()

	a := ctl.PollDescriptors()
	b := ctl.PollDescriptors()
	require.Len(t, a, 1)
	require.Len(t, b, 1)

	a[0].Revents = unix.POLLIN
	assert.Zero(t, b[0].Revents, "each call returns an independent copy")
	assert.Equal(t, a[0].Fd, b[0].Fd)

	// Closed handles hand out no descriptors.
	require.NoError(t, ctl.Close())
	assert.Nil(t, ctl.PollDescriptors())
}
