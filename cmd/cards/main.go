package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-alsa/alsa"
)

func main() {
	var verbose bool

	flag.BoolVar(&verbose, "verbose", false, "List every subdevice of every PCM device.")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Lists all ALSA sound cards and their PCM devices.")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}

	flag.Parse()

	found := false

	iter := alsa.NewCardIter()
	for {
		card, ok := iter.Next()
		if !ok {
			break
		}

		found = true
		printCard(card, verbose)
	}

	if !found {
		fmt.Println("No sound cards found.")
	}
}

// printCard prints one card's identification and its PCM devices.
func printCard(card *alsa.Card, verbose bool) {
	id, err := card.ID()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot query card %d: %v\n", card.Index(), err)

		return
	}

	name, _ := card.Name()
	driver, _ := card.Driver()

	fmt.Printf("card %d: %s [%s], driver %s\n", card.Index(), id, name, driver)

	ctl, err := alsa.CtlOpen(uint(card.Index()), false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot open control device for card %d: %v\n", card.Index(), err)

		return
	}
	defer ctl.Close()

	device := int32(-1)
	for {
		if err := ctl.PcmNextDevice(&device); err != nil || device < 0 {
			break
		}

		printDevice(ctl, uint32(device), verbose)
	}

	fmt.Println()
}

// printDevice prints one PCM device with its per-direction subdevice counts.
func printDevice(ctl *alsa.Ctl, device uint32, verbose bool) {
	for _, stream := range []alsa.PcmStream{alsa.SNDRV_PCM_STREAM_PLAYBACK, alsa.SNDRV_PCM_STREAM_CAPTURE} {
		info, err := ctl.PcmInfo(device, 0, stream)
		if err != nil {
			// The device has no substream in this direction.
			continue
		}

		dir := "playback"
		if stream == alsa.SNDRV_PCM_STREAM_CAPTURE {
			dir = "capture"
		}

		fmt.Printf("  device %d: %s [%s], %s, %d/%d subdevices available\n",
			device, info.ID, info.Name, dir, info.SubdevicesAvail, info.SubdevicesCount)

		if !verbose {
			continue
		}

		for sub := uint32(0); sub < info.SubdevicesCount; sub++ {
			subInfo, err := ctl.PcmInfo(device, sub, stream)
			if err != nil {
				continue
			}

			fmt.Printf("    subdevice %d: %s\n", sub, subInfo.Subname)
		}
	}
}
