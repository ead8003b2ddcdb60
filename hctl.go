package alsa

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// HCtl is a high-level control session layered on a Ctl handle. It keeps a
// cached list of the card's control elements, in kernel enumeration order,
// and refreshes it from the control event stream. Its main use case is
// element browsing and jack detection: jack state lives in boolean elements
// on the CARD interface whose names end in " Jack".
type HCtl struct {
	ctl   *Ctl
	elems []*HCtlElem
}

// HCtlElem is one control element of an HCtl session. It borrows the session
// handle, so it is valid only until the HCtl is closed.
type HCtlElem struct {
	hctl *HCtl
	id   CtlElemId
}

// HCtlOpen opens a high-level control session for a card. Call Load to
// populate the element list. With nonblock set, event reads return EAGAIN
// instead of blocking.
func HCtlOpen(card uint, nonblock bool) (*HCtl, error) {
	ctl, err := CtlOpen(card, nonblock)
	if err != nil {
		return nil, err
	}

	return &HCtl{ctl: ctl}, nil
}

// HCtlOpenByName opens a high-level control session by card name, in the
// format "hw:C".
func HCtlOpenByName(name string, nonblock bool) (*HCtl, error) {
	ctl, err := CtlOpenByName(name, nonblock)
	if err != nil {
		return nil, err
	}

	return &HCtl{ctl: ctl}, nil
}

// IsReady checks if the session handle is valid.
func (h *HCtl) IsReady() bool {
	return h != nil && h.ctl.IsReady()
}

// Close closes the session and the underlying control device.
func (h *HCtl) Close() error {
	if h == nil {
		return nil
	}

	err := h.ctl.Close()
	h.elems = nil

	return err
}

// Ctl returns the underlying control handle.
func (h *HCtl) Ctl() *Ctl {
	if h == nil {
		return nil
	}

	return h.ctl
}

// Card returns the card number the session was opened on.
func (h *HCtl) Card() uint {
	if h == nil {
		return 0
	}

	return h.ctl.Card()
}

// Fd returns the underlying file descriptor for the control device.
func (h *HCtl) Fd() uintptr {
	if !h.IsReady() {
		return ^uintptr(0) // Invalid FD
	}

	return h.ctl.Fd()
}

// Load populates the element list from the card, in kernel enumeration
// order, and subscribes to element events so HandleEvents can keep the list
// current.
func (h *HCtl) Load() error {
	if !h.IsReady() {
		return fmt.Errorf("hctl handle is not valid")
	}

	ids, err := h.ctl.ElemList()
	if err != nil {
		return err
	}

	elems := make([]*HCtlElem, len(ids))
	for i := range ids {
		elems[i] = &HCtlElem{hctl: h, id: ids[i]}
	}
	h.elems = elems

	return h.ctl.SubscribeEvents(true)
}

// Elems returns the loaded elements. The returned slice is a fresh copy; the
// elements themselves stay bound to the session.
func (h *HCtl) Elems() []*HCtlElem {
	if h == nil {
		return nil
	}

	out := make([]*HCtlElem, len(h.elems))
	copy(out, h.elems)

	return out
}

// FindElem looks up a loaded element by its stable identity (interface,
// device, subdevice, name and index; the numid is ignored because it changes
// between boots). Returns nil if no element matches.
func (h *HCtl) FindElem(iface CtlElemIface, device, subdevice uint32, name string, index uint32) *HCtlElem {
	if h == nil {
		return nil
	}

	for _, e := range h.elems {
		if e.id.Iface == iface && e.id.Device == device && e.id.Subdevice == subdevice &&
			e.id.Name == name && e.id.Index == index {
			return e
		}
	}

	return nil
}

// findElemByNumid looks up a loaded element by its numid.
func (h *HCtl) findElemByNumid(numid uint32) *HCtlElem {
	for _, e := range h.elems {
		if e.id.Numid == numid {
			return e
		}
	}

	return nil
}

// HandleEvents drains all pending element events without blocking and keeps
// the element list current: add events append the new element, remove events
// delete it, value and info changes are counted but need no list update.
// Returns the number of events handled.
func (h *HCtl) HandleEvents() (int, error) {
	if !h.IsReady() {
		return 0, fmt.Errorf("hctl handle is not valid")
	}

	count := 0
	for {
		ready, err := h.ctl.Wait(0)
		if err != nil {
			return count, err
		}
		if !ready {
			return count, nil
		}

		ev, err := h.ctl.ReadEvent()
		if err != nil {
			// A concurrent reader can win the race for the event on a
			// non-blocking handle.
			if errors.Is(err, syscall.EAGAIN) {
				return count, nil
			}

			return count, err
		}

		h.handleEvent(ev)
		count++
	}
}

// handleEvent applies one element event to the cached list.
func (h *HCtl) handleEvent(ev *CtlEvent) {
	if ev.Mask == SNDRV_CTL_EVENT_MASK_REMOVE {
		for i, e := range h.elems {
			if e.id.Numid == ev.ID.Numid {
				h.elems = append(h.elems[:i], h.elems[i+1:]...)

				break
			}
		}

		return
	}

	if (ev.Mask & SNDRV_CTL_EVENT_MASK_ADD) != 0 {
		if h.findElemByNumid(ev.ID.Numid) == nil {
			h.elems = append(h.elems, &HCtlElem{hctl: h, id: ev.ID})
		}
	}
}

// Wait waits for an element event to become pending or until a timeout
// occurs. A negative timeout blocks indefinitely. Returns true if an event
// is pending, false on timeout.
func (h *HCtl) Wait(timeoutMs int) (bool, error) {
	if !h.IsReady() {
		return false, fmt.Errorf("hctl handle is not valid")
	}

	return h.ctl.Wait(timeoutMs)
}

// PollDescriptors returns the poll descriptors for the session. The returned
// slice is a fresh copy, valid only while the handle is open.
func (h *HCtl) PollDescriptors() []unix.PollFd {
	if h == nil {
		return nil
	}

	return h.ctl.PollDescriptors()
}

// ID returns the element's identity.
func (e *HCtlElem) ID() CtlElemId {
	if e == nil {
		return CtlElemId{}
	}

	return e.id
}

// Info returns type, value count, access rights and value range of the
// element.
func (e *HCtlElem) Info() (*CtlElemInfo, error) {
	if e == nil {
		return nil, fmt.Errorf("hctl element is nil: %w", syscall.EINVAL)
	}

	return e.hctl.ctl.ElemInfo(&e.id)
}

// Read returns the element's current value.
func (e *HCtlElem) Read() (*CtlElemValue, error) {
	if e == nil {
		return nil, fmt.Errorf("hctl element is nil: %w", syscall.EINVAL)
	}

	value := &CtlElemValue{}
	value.SetID(&e.id)

	if err := e.hctl.ctl.ElemRead(value); err != nil {
		return nil, err
	}

	return value, nil
}

// Write writes the value to the element. The value's id is overwritten with
// the element's own.
func (e *HCtlElem) Write(value *CtlElemValue) error {
	if e == nil {
		return fmt.Errorf("hctl element is nil: %w", syscall.EINVAL)
	}

	if value == nil {
		return fmt.Errorf("element value is nil: %w", syscall.EINVAL)
	}

	value.SetID(&e.id)

	return e.hctl.ctl.ElemWrite(value)
}
