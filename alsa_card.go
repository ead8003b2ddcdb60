package alsa

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// SoundCardDevice represents a single PCM device on a sound card.
type SoundCardDevice struct {
	ID          int
	Name        string
	Description string
	IsPlayback  bool // True for playback, false for capture
}

// String returns a human-readable representation of the SoundCardDevice.
func (d SoundCardDevice) String() string {
	direction := "Capture"
	if d.IsPlayback {
		direction = "Playback"
	}

	return fmt.Sprintf("  Device %d: %s (%s) [%s]", d.ID, d.Name, d.Description, direction)
}

// SoundCardMidi represents a raw MIDI device on a sound card.
type SoundCardMidi struct {
	ID   int
	Name string
}

// String returns a human-readable representation of the SoundCardMidi.
func (m SoundCardMidi) String() string {
	return fmt.Sprintf("  Midi %d: %s", m.ID, m.Name)
}

// SoundCard represents an enumerated sound card with its PCM and raw MIDI
// devices.
type SoundCard struct {
	ID          int
	Name        string
	Description string
	Devices     []SoundCardDevice
	MidiDevices []SoundCardMidi
}

// String returns a human-readable representation of the SoundCard.
func (c SoundCard) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Card %d: %s (%s)\n", c.ID, c.Name, c.Description))
	for _, dev := range c.Devices {
		sb.WriteString(dev.String() + "\n")
	}

	for _, midi := range c.MidiDevices {
		sb.WriteString(midi.String() + "\n")
	}

	return sb.String()
}

// Lines in /proc/asound/cards look like:
//
//	 0 [Loopback       ]: Loopback - Loopback
var procCardLine = regexp.MustCompile(`^\s*(\d+)\s+\[\s*([^]]*?)\s*\]:\s*(.*)`)

// Lines in /proc/asound/pcm look like:
//
//	02-00: Loopback PCM : Loopback PCM : playback 8 : capture 8
var procPcmLine = regexp.MustCompile(`^(\d+)-(\d+): (.*?) :.*`)

// EnumerateCards scans /proc/asound to find all available sound cards
// together with their PCM and raw MIDI devices.
func EnumerateCards() ([]SoundCard, error) {
	cards, err := parseProcCards("/proc/asound/cards")
	if err != nil {
		return nil, err
	}

	if err := attachPcmDevices(cards, "/proc/asound/pcm"); err != nil {
		return nil, err
	}

	attachMidiDevices(cards, "/proc/asound")

	ids := make([]int, 0, len(cards))
	for id := range cards {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	result := make([]SoundCard, 0, len(ids))
	for _, id := range ids {
		result = append(result, *cards[id])
	}

	return result, nil
}

// parseProcCards reads the card index file and returns the cards keyed by
// index.
func parseProcCards(path string) (map[int]*SoundCard, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}

	cards := make(map[int]*SoundCard)
	for _, line := range strings.Split(string(content), "\n") {
		matches := procCardLine.FindStringSubmatch(line)
		if len(matches) != 4 {
			continue
		}

		id, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}

		cards[id] = &SoundCard{
			ID:          id,
			Name:        strings.TrimSpace(matches[2]),
			Description: strings.TrimSpace(matches[3]),
		}
	}

	return cards, nil
}

// attachPcmDevices parses the global PCM list and adds one device entry per
// stream direction. A missing file means no PCM devices are registered; that
// is not an error, a card can be MIDI-only.
func attachPcmDevices(cards map[int]*SoundCard, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("could not read %s: %w", path, err)
	}

	for _, line := range strings.Split(string(content), "\n") {
		matches := procPcmLine.FindStringSubmatch(line)
		if len(matches) < 4 {
			continue
		}

		cardID, _ := strconv.Atoi(matches[1])
		devID, _ := strconv.Atoi(matches[2])

		card, ok := cards[cardID]
		if !ok {
			continue
		}

		description := strings.TrimSpace(matches[3])

		// A single PCM device can have both playback and capture streams.
		// Each direction found gets its own entry.
		if strings.Contains(line, "playback") {
			card.Devices = append(card.Devices, SoundCardDevice{
				ID:          devID,
				Name:        fmt.Sprintf("pcm%dp", devID),
				Description: description,
				IsPlayback:  true,
			})
		}

		if strings.Contains(line, "capture") {
			card.Devices = append(card.Devices, SoundCardDevice{
				ID:          devID,
				Name:        fmt.Sprintf("pcm%dc", devID),
				Description: description,
				IsPlayback:  false,
			})
		}
	}

	return nil
}

// attachMidiDevices scans each card's proc directory for midi* entries. Raw
// MIDI devices have no global list, only the per-card files.
func attachMidiDevices(cards map[int]*SoundCard, root string) {
	for id, card := range cards {
		entries, err := filepath.Glob(fmt.Sprintf("%s/card%d/midi*", root, id))
		if err != nil {
			continue
		}

		for _, entry := range entries {
			devID, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(entry), "midi"))
			if err != nil {
				continue
			}

			card.MidiDevices = append(card.MidiDevices, SoundCardMidi{
				ID:   devID,
				Name: midiDeviceName(entry),
			})
		}

		sort.Slice(card.MidiDevices, func(i, j int) bool {
			return card.MidiDevices[i].ID < card.MidiDevices[j].ID
		})
	}
}

// midiDeviceName returns the first line of a /proc/asound/card*/midi* file,
// which carries the device name.
func midiDeviceName(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	line, _, _ := strings.Cut(string(content), "\n")

	return strings.TrimSpace(line)
}
