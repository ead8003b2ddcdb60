package alsa_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-alsa/alsa"
)

func TestHCtlOpenClose(t *testing.T) {
	hctl, err := alsa.HCtlOpen(uint(loopbackCard), false)
	require.NoError(t, err, "HCtlOpen on the loopback card should succeed")
	require.NotNil(t, hctl)

	assert.True(t, hctl.IsReady())
	assert.Equal(t, uint(loopbackCard), hctl.Card())
	assert.NotNil(t, hctl.Ctl(), "the underlying control handle should be exposed")
	assert.NotEqual(t, ^uintptr(0), hctl.Fd())

	require.NoError(t, hctl.Close())
	assert.False(t, hctl.IsReady())
	assert.Equal(t, ^uintptr(0), hctl.Fd())
	assert.Empty(t, hctl.Elems(), "close should drop the element list")

	// Double close is a no-op.
	assert.NoError(t, hctl.Close())

	// By-name open.
	byName, err := alsa.HCtlOpenByName(fmt.Sprintf("hw:%d", loopbackCard), false)
	require.NoError(t, err)
	assert.Equal(t, uint(loopbackCard), byName.Card())
	assert.NoError(t, byName.Close())
}

func TestHCtlInvalidParameters(t *testing.T) {
	hctl, err := alsa.HCtlOpen(1000, false)
	assert.Error(t, err, "HCtlOpen(1000) should fail")
	assert.Nil(t, hctl)

	_, err = alsa.HCtlOpenByName("default", false)
	assert.Error(t, err, "name without hw: prefix should be rejected")

	var nilHCtl *alsa.HCtl
	assert.NotPanics(t, func() {
		assert.False(t, nilHCtl.IsReady())
		assert.NoError(t, nilHCtl.Close())
		assert.Nil(t, nilHCtl.Ctl())
		assert.Equal(t, ^uintptr(0), nilHCtl.Fd())
		assert.Error(t, nilHCtl.Load())
		assert.Empty(t, nilHCtl.Elems())
		assert.Nil(t, nilHCtl.FindElem(alsa.SNDRV_CTL_ELEM_IFACE_MIXER, 0, 0, "Master Playback Volume", 0))
		assert.Nil(t, nilHCtl.PollDescriptors())

		_, err = nilHCtl.HandleEvents()
		assert.Error(t, err)

		_, err = nilHCtl.Wait(0)
		assert.Error(t, err)
	})

	var nilElem *alsa.HCtlElem
	assert.NotPanics(t, func() {
		assert.Equal(t, alsa.CtlElemId{}, nilElem.ID())

		_, err = nilElem.Info()
		assert.Error(t, err)

		_, err = nilElem.Read()
		assert.Error(t, err)

		assert.Error(t, nilElem.Write(&alsa.CtlElemValue{}))
	})

	// A loaded element rejects a nil value.
	open, err := alsa.HCtlOpen(uint(dummyCard), false)
	require.NoError(t, err)
	defer open.Close()

	require.NoError(t, open.Load())
	elems := open.Elems()
	require.NotEmpty(t, elems)
	assert.Error(t, elems[0].Write(nil))
}

func TestHCtlLoadAndElems(t *testing.T) {
	hctl, err := alsa.HCtlOpen(uint(dummyCard), false)
	require.NoError(t, err)
	defer hctl.Close()

	// Before Load the list is empty.
	assert.Empty(t, hctl.Elems())

	require.NoError(t, hctl.Load(), "Load should succeed")

	elems := hctl.Elems()
	require.NotEmpty(t, elems, "the dummy card should expose control elements")

	// The session list mirrors the raw element list.
	ids, err := hctl.Ctl().ElemList()
	require.NoError(t, err)
	require.Len(t, elems, len(ids))

	for i, elem := range elems {
		id := elem.ID()
		assert.Equal(t, ids[i].Numid, id.Numid, "elements should keep kernel enumeration order")
		assert.NotEmpty(t, id.Name)

		info, err := elem.Info()
		require.NoError(t, err, "Info for %q should succeed", id.Name)
		assert.Equal(t, id.Numid, info.ID.Numid)
	}

	// Elems hands out a copy, not the internal slice.
	elems[0] = nil
	assert.NotNil(t, hctl.Elems()[0])
}

func TestHCtlFindElem(t *testing.T) {
	hctl, err := alsa.HCtlOpen(uint(dummyCard), false)
	require.NoError(t, err)
	defer hctl.Close()

	require.NoError(t, hctl.Load())

	elems := hctl.Elems()
	require.NotEmpty(t, elems)

	for _, elem := range elems {
		id := elem.ID()

		found := hctl.FindElem(id.Iface, id.Device, id.Subdevice, id.Name, id.Index)
		assert.Same(t, elem, found, "FindElem should return the loaded element for %q", id.Name)
	}

	assert.Nil(t, hctl.FindElem(alsa.SNDRV_CTL_ELEM_IFACE_MIXER, 0, 0, "No Such Control", 0))
}

// findWritableIntegerElem scans a loaded session for a read-write integer
// element with a usable range.
func findWritableIntegerElem(t *testing.T, hctl *alsa.HCtl) (*alsa.HCtlElem, *alsa.CtlElemInfo) {
	t.Helper()

	readWrite := alsa.SNDRV_CTL_ELEM_ACCESS_READ | alsa.SNDRV_CTL_ELEM_ACCESS_WRITE
	for _, elem := range hctl.Elems() {
		info, err := elem.Info()
		if err != nil {
			continue
		}

		if info.Type == alsa.SNDRV_CTL_ELEM_TYPE_INTEGER && info.Access&readWrite == readWrite &&
			info.Count > 0 && info.Max > info.Min {
			return elem, info
		}
	}

	return nil, nil
}

func TestHCtlElemReadWrite(t *testing.T) {
	hctl, err := alsa.HCtlOpen(uint(dummyCard), false)
	require.NoError(t, err)
	defer hctl.Close()

	require.NoError(t, hctl.Load())

	elem, info := findWritableIntegerElem(t, hctl)
	if elem == nil {
		t.Skip("no writable integer element found")
	}

	value, err := elem.Read()
	require.NoError(t, err, "Read should succeed")
	require.NotNil(t, value)
	assert.Equal(t, elem.ID().Numid, value.ID().Numid)

	original := value.Integer(0)

	newVal := info.Min
	if original == info.Min {
		newVal = info.Max
	}

	value.SetInteger(0, newVal)
	require.NoError(t, elem.Write(value), "Write should succeed")

	defer func() {
		value.SetInteger(0, original)
		_ = elem.Write(value)
	}()

	// The write is visible on a fresh read.
	readBack, err := elem.Read()
	require.NoError(t, err)
	assert.Equal(t, newVal, readBack.Integer(0))
}

func TestHCtlHandleEvents(t *testing.T) {
	hctl, err := alsa.HCtlOpen(uint(dummyCard), true)
	require.NoError(t, err)
	defer hctl.Close()

	require.NoError(t, hctl.Load(), "Load should subscribe to events")

	elem, info := findWritableIntegerElem(t, hctl)
	if elem == nil {
		t.Skip("no writable integer element found")
	}

	// Drain anything already queued so the count below is ours.
	_, err = hctl.HandleEvents()
	require.NoError(t, err)

	value, err := elem.Read()
	require.NoError(t, err)

	original := value.Integer(0)

	newVal := info.Min
	if original == info.Min {
		newVal = info.Max
	}

	value.SetInteger(0, newVal)
	require.NoError(t, elem.Write(value))

	defer func() {
		value.SetInteger(0, original)
		_ = elem.Write(value)
	}()

	ready, err := hctl.Wait(1000)
	require.NoError(t, err)
	require.True(t, ready, "a value change should wake the session")

	count, err := hctl.HandleEvents()
	require.NoError(t, err, "HandleEvents should succeed")
	assert.GreaterOrEqual(t, count, 1, "the value change should be delivered as an event")

	// The element list survives value events untouched.
	assert.NotNil(t, hctl.FindElem(elem.ID().Iface, elem.ID().Device, elem.ID().Subdevice, elem.ID().Name, elem.ID().Index))
}

func TestHCtlJackScan(t *testing.T) {
	hctl, err := alsa.HCtlOpen(uint(loopbackCard), false)
	require.NoError(t, err)
	defer hctl.Close()

	require.NoError(t, hctl.Load())

	// Jack state lives in boolean elements on the CARD interface whose names
	// end in " Jack". Virtual cards have none, so this is a smoke test of the
	// scan itself.
	jacks := 0
	for _, elem := range hctl.Elems() {
		id := elem.ID()
		if id.Iface != alsa.SNDRV_CTL_ELEM_IFACE_CARD || !strings.HasSuffix(id.Name, " Jack") {
			continue
		}

		info, err := elem.Info()
		require.NoError(t, err)
		require.Equal(t, alsa.SNDRV_CTL_ELEM_TYPE_BOOLEAN, info.Type)

		value, err := elem.Read()
		require.NoError(t, err)

		t.Logf("jack %q: plugged=%v", id.Name, value.Boolean(0))
		jacks++
	}

	t.Logf("found %d jack elements on card %d", jacks, loopbackCard)
}
