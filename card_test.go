package alsa_test

import (
	"bufio"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-alsa/alsa"
)

// procCardIndexes returns the card indexes listed in /proc/asound/cards, in
// file order. Card header lines start with the index followed by the id in
// brackets; continuation lines do not match the pattern.
func procCardIndexes(t *testing.T) []int {
	t.Helper()

	f, err := os.Open("/proc/asound/cards")
	require.NoError(t, err, "could not open /proc/asound/cards")
	defer f.Close()

	var cards []int

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var card int
		var id string
		if n, _ := fmt.Sscanf(scanner.Text(), " %d [%s", &card, &id); n >= 1 {
			cards = append(cards, card)
		}
	}

	require.NoError(t, scanner.Err())

	return cards
}

func TestCardNext(t *testing.T) {
	var found []int

	card := -1
	for {
		require.NoError(t, alsa.CardNext(&card), "CardNext should not fail")

		if card < 0 {
			break
		}

		found = append(found, card)
	}

	// The walk must visit exactly the cards the kernel reports, in order.
	assert.Equal(t, procCardIndexes(t), found, "card walk should match /proc/asound/cards")

	assert.Contains(t, found, loopbackCard, "card walk should include the loopback card")
	assert.Contains(t, found, dummyCard, "card walk should include the dummy card")

	// The cursor ends back at -1; advancing again restarts at the first card.
	require.Equal(t, -1, card)
	require.NoError(t, alsa.CardNext(&card))
	if len(found) > 0 {
		assert.Equal(t, found[0], card, "restarted cursor should report the first card again")
	}
}

func TestCardNextInvalidCursor(t *testing.T) {
	err := alsa.CardNext(nil)
	assert.Error(t, err, "CardNext with a nil cursor should fail")
	assert.ErrorIs(t, err, syscall.EINVAL)
}

func TestCardIter(t *testing.T) {
	iter := alsa.NewCardIter()

	var indexes []int
	for {
		card, ok := iter.Next()
		if !ok {
			break
		}

		require.NotNil(t, card)
		indexes = append(indexes, card.Index())
	}

	assert.Equal(t, procCardIndexes(t), indexes, "iterator walk should match /proc/asound/cards")

	// Exhausted iterators stay exhausted.
	card, ok := iter.Next()
	assert.False(t, ok, "exhausted iterator should keep reporting exhaustion")
	assert.Nil(t, card)

	// A fresh iterator restarts from the first card.
	fresh := alsa.NewCardIter()
	first, ok := fresh.Next()
	require.True(t, ok, "fresh iterator should find the gated test cards")
	assert.Equal(t, indexes[0], first.Index())

	// Nil iterator does not panic.
	var nilIter *alsa.CardIter
	assert.NotPanics(t, func() {
		card, ok = nilIter.Next()
	})
	assert.False(t, ok)
	assert.Nil(t, card)
}

func TestCardAccessors(t *testing.T) {
	card := alsa.NewCard(loopbackCard)
	assert.Equal(t, loopbackCard, card.Index())

	id, err := card.ID()
	require.NoError(t, err, "ID should resolve through the control device")
	assert.NotEmpty(t, id)

	name, err := card.Name()
	require.NoError(t, err)
	assert.NotEmpty(t, name)

	longName, err := card.LongName()
	require.NoError(t, err)
	assert.NotEmpty(t, longName)

	driver, err := card.Driver()
	require.NoError(t, err)
	assert.NotEmpty(t, driver)

	// Mixername and Components may be empty but must not error.
	mixerName, err := card.Mixername()
	assert.NoError(t, err)

	components, err := card.Components()
	assert.NoError(t, err)

	t.Logf("card %d: id=%q name=%q longname=%q driver=%q mixer=%q components=%q",
		card.Index(), id, name, longName, driver, mixerName, components)
}

func TestCardAccessorsInvalid(t *testing.T) {
	// Accessors on a card index without a device node report the open error.
	card := alsa.NewCard(1000)

	_, err := card.ID()
	assert.Error(t, err, "ID on a non-existent card should fail")

	_, err = card.Name()
	assert.Error(t, err, "Name on a non-existent card should fail")

	// Nil cards do not panic.
	var nilCard *alsa.Card
	assert.NotPanics(t, func() {
		assert.Equal(t, -1, nilCard.Index())

		_, err = nilCard.ID()
		assert.Error(t, err)
	})
}

func TestEnumerateCards(t *testing.T) {
	cards, err := alsa.EnumerateCards()
	require.NoError(t, err, "EnumerateCards should succeed")
	require.NotEmpty(t, cards, "EnumerateCards should report the gated test cards")

	// Sorted ascending by card ID.
	for i := 1; i < len(cards); i++ {
		assert.Greater(t, cards[i].ID, cards[i-1].ID, "cards should be sorted by ID")
	}

	// The loopback card must be present with both stream directions.
	var loopback *alsa.SoundCard
	for i := range cards {
		if cards[i].ID == loopbackCard {
			loopback = &cards[i]

			break
		}
	}

	require.NotNil(t, loopback, "EnumerateCards should report the loopback card")
	assert.NotEmpty(t, loopback.Name)
	require.NotEmpty(t, loopback.Devices, "loopback card should expose PCM devices")

	var hasPlayback, hasCapture bool
	for _, dev := range loopback.Devices {
		if dev.IsPlayback {
			hasPlayback = true
		} else {
			hasCapture = true
		}

		assert.NotEmpty(t, dev.String())
	}

	assert.True(t, hasPlayback, "loopback card should expose playback devices")
	assert.True(t, hasCapture, "loopback card should expose capture devices")

	assert.NotEmpty(t, loopback.String())

	// Raw MIDI devices are attached per card when present (snd-virmidi). The
	// loopback and dummy cards have none, so only the ordering is checked.
	for _, card := range cards {
		for i, midi := range card.MidiDevices {
			assert.NotEmpty(t, midi.String())

			if i > 0 {
				assert.Greater(t, midi.ID, card.MidiDevices[i-1].ID, "midi devices should be sorted by ID")
			}
		}
	}
}
