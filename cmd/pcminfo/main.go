package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/go-alsa/alsa"
)

func main() {
	var (
		card   int
		device int
		stream string
		all    bool
	)

	flag.IntVar(&card, "card", 0, "The sound card number.")
	flag.IntVar(&device, "device", 0, "The device number.")
	flag.StringVar(&stream, "stream", "playback", "The stream direction ('playback' or 'capture').")
	flag.BoolVar(&all, "all", false, "Walk every PCM device on the card instead of querying one.")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Displays information about ALSA PCM devices.")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}

	flag.Parse()

	if all {
		if err := walkCard(uint(card)); err != nil {
			fmt.Fprintf(os.Stderr, "Error walking card %d: %v\n", card, err)
			os.Exit(1)
		}

		return
	}

	var pcmFlags alsa.PcmFlag
	switch strings.ToLower(stream) {
	case "playback":
		pcmFlags = alsa.PCM_OUT
	case "capture":
		pcmFlags = alsa.PCM_IN
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid stream direction '%s'. Must be 'playback' or 'capture'.\n", stream)
		os.Exit(1)
	}

	fmt.Printf("PCM card %d, device %d, stream %s:\n", card, device, stream)

	// The refined parameters carry the full capability ranges rather than one
	// chosen configuration.
	params, err := alsa.PcmParamsGetRefined(uint(card), uint(device), pcmFlags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting PCM parameters: %v\n", err)
		os.Exit(1)
	}
	defer params.Free()

	fmt.Println(params)
}

// walkCard iterates the card's PCM devices through the control interface and
// prints the driver information for both stream directions.
func walkCard(card uint) error {
	ctl, err := alsa.CtlOpen(card, false)
	if err != nil {
		return err
	}
	defer ctl.Close()

	device := int32(-1)
	for {
		if err := ctl.PcmNextDevice(&device); err != nil {
			return err
		}

		if device < 0 {
			return nil
		}

		for _, dir := range []struct {
			stream alsa.PcmStream
			label  string
		}{
			{alsa.SNDRV_PCM_STREAM_PLAYBACK, "playback"},
			{alsa.SNDRV_PCM_STREAM_CAPTURE, "capture"},
		} {
			info, err := ctl.PcmInfo(uint32(device), 0, dir.stream)
			if err != nil {
				// A direction the device does not implement reports ENOENT.
				if errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ENXIO) {
					continue
				}

				return err
			}

			fmt.Printf("Device %d (%s): %s [%s]\n", device, dir.label, info.Name, info.ID)
			if info.Subname != "" {
				fmt.Printf("  Subdevice:  %s (%d/%d available)\n", info.Subname, info.SubdevicesAvail, info.SubdevicesCount)
			}
		}
	}
}
