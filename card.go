package alsa

import (
	"fmt"
	"os"
	"syscall"
)

// maxCards mirrors the kernel's SNDRV_CARDS limit on card indexes.
const maxCards = 32

// CardNext advances the card cursor to the next sound card present on the
// system. Pass -1 to get the first card; after the last card the cursor is
// set back to -1. Presence is probed through the /dev/snd/controlC* node, so
// a card only counts once its control device exists.
func CardNext(card *int) error {
	if card == nil {
		return fmt.Errorf("card cursor is nil: %w", syscall.EINVAL)
	}

	next := *card + 1
	if next < 0 {
		next = 0
	}

	for ; next < maxCards; next++ {
		if _, err := os.Stat(fmt.Sprintf("/dev/snd/controlC%d", next)); err == nil {
			*card = next

			return nil
		}
	}

	*card = -1

	return nil
}

// Card identifies a sound card by index. The accessors resolve the card's
// identification strings through a transient control handle, so they can fail
// if the card disappears between calls.
type Card struct {
	index int
}

// NewCard returns a Card value for the given index. The index is not
// validated until an accessor opens the control device.
func NewCard(index int) *Card {
	return &Card{index: index}
}

// Index returns the card index.
func (c *Card) Index() int {
	if c == nil {
		return -1
	}

	return c.index
}

func (c *Card) info() (*CardInfo, error) {
	if c == nil {
		return nil, fmt.Errorf("card is nil")
	}

	ctl, err := CtlOpen(uint(c.index), false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ctl.Close() }()

	return ctl.CardInfo()
}

// ID returns the short identifier of the card (e.g. "Loopback").
func (c *Card) ID() (string, error) {
	info, err := c.info()
	if err != nil {
		return "", err
	}

	return info.ID, nil
}

// Name returns the name of the card.
func (c *Card) Name() (string, error) {
	info, err := c.info()
	if err != nil {
		return "", err
	}

	return info.Name, nil
}

// LongName returns the verbose name of the card.
func (c *Card) LongName() (string, error) {
	info, err := c.info()
	if err != nil {
		return "", err
	}

	return info.LongName, nil
}

// Driver returns the driver name of the card.
func (c *Card) Driver() (string, error) {
	info, err := c.info()
	if err != nil {
		return "", err
	}

	return info.Driver, nil
}

// Mixername returns the mixer name of the card.
func (c *Card) Mixername() (string, error) {
	info, err := c.info()
	if err != nil {
		return "", err
	}

	return info.Mixername, nil
}

// Components returns the component description string of the card.
func (c *Card) Components() (string, error) {
	info, err := c.info()
	if err != nil {
		return "", err
	}

	return info.Components, nil
}

// CardIter walks the sound cards present on the system in ascending index
// order. The zero value is not usable; create it with NewCardIter. Once
// exhausted the iterator stays exhausted; create a new one to restart.
type CardIter struct {
	current int
	done    bool
}

// NewCardIter returns an iterator positioned before the first card.
func NewCardIter() *CardIter {
	return &CardIter{current: -1}
}

// Next returns the next card, or false when there are no more cards.
func (it *CardIter) Next() (*Card, bool) {
	if it == nil || it.done {
		return nil, false
	}

	if err := CardNext(&it.current); err != nil || it.current < 0 {
		it.done = true

		return nil, false
	}

	return NewCard(it.current), true
}
