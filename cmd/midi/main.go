package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/go-alsa/alsa"
)

func main() {
	var (
		card      int
		device    int
		subdevice int
		dump      bool
		send      string
	)

	flag.IntVar(&card, "card", 0, "The card of the raw MIDI device.")
	flag.IntVar(&device, "device", 0, "The device number of the raw MIDI device.")
	flag.IntVar(&subdevice, "subdevice", 0, "The subdevice number (0 = first free).")
	flag.BoolVar(&dump, "dump", false, "Dump incoming MIDI bytes until interrupted.")
	flag.StringVar(&send, "send", "", "Send the given hex bytes (e.g. \"90 40 7f\") and exit.")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Without options, lists all raw MIDI devices.")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}

	flag.Parse()

	switch {
	case send != "":
		if err := sendBytes(uint(card), uint(device), uint(subdevice), send); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case dump:
		if err := dumpBytes(uint(card), uint(device), uint(subdevice)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		listDevices()
	}
}

// listDevices walks all cards and prints their raw MIDI devices.
func listDevices() {
	found := 0

	card := -1
	for {
		if err := alsa.CardNext(&card); err != nil || card < 0 {
			break
		}

		ctl, err := alsa.CtlOpen(uint(card), false)
		if err != nil {
			continue
		}

		device := int32(-1)
		for {
			if err := ctl.RawMidiNextDevice(&device); err != nil || device < 0 {
				break
			}

			printDevice(ctl, card, uint32(device))
			found++
		}

		ctl.Close()
	}

	if found == 0 {
		fmt.Println("No raw MIDI devices found. Try: sudo modprobe snd-virmidi")
	}
}

// printDevice prints one raw MIDI device with its per-direction subdevice
// counts.
func printDevice(ctl *alsa.Ctl, card int, device uint32) {
	var name string
	dirs := make([]string, 0, 2)

	if info, err := ctl.RawMidiInfo(device, 0, alsa.SNDRV_RAWMIDI_STREAM_OUTPUT); err == nil {
		name = info.Name
		dirs = append(dirs, fmt.Sprintf("output %d/%d", info.SubdevicesAvail, info.SubdevicesCount))
	}

	if info, err := ctl.RawMidiInfo(device, 0, alsa.SNDRV_RAWMIDI_STREAM_INPUT); err == nil {
		name = info.Name
		dirs = append(dirs, fmt.Sprintf("input %d/%d", info.SubdevicesAvail, info.SubdevicesCount))
	}

	fmt.Printf("hw:%d,%d  %s  (%s)\n", card, device, name, strings.Join(dirs, ", "))
}

// sendBytes writes the hex bytes from the argument to the device and drains
// the output queue.
func sendBytes(card, device, subdevice uint, arg string) error {
	data := make([]byte, 0, 8)
	for _, field := range strings.Fields(strings.ReplaceAll(arg, ",", " ")) {
		b, err := strconv.ParseUint(field, 16, 8)
		if err != nil {
			return fmt.Errorf("invalid hex byte %q: %w", field, err)
		}

		data = append(data, byte(b))
	}

	if len(data) == 0 {
		return fmt.Errorf("no bytes to send")
	}

	rm, err := alsa.RawMidiOpen(card, device, subdevice, alsa.RAWMIDI_OUTPUT)
	if err != nil {
		return err
	}
	defer rm.Close()

	if _, err := rm.Write(data); err != nil {
		return err
	}

	if err := rm.Drain(); err != nil {
		return err
	}

	fmt.Printf("Sent %d bytes to hw:%d,%d\n", len(data), card, device)

	return nil
}

// dumpBytes prints incoming MIDI bytes as hex until interrupted.
func dumpBytes(card, device, subdevice uint) error {
	rm, err := alsa.RawMidiOpen(card, device, subdevice, alsa.RAWMIDI_INPUT|alsa.RAWMIDI_NONBLOCK)
	if err != nil {
		return err
	}
	defer rm.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	fmt.Printf("Dumping MIDI from hw:%d,%d. Press Ctrl+C to stop.\n", card, device)

	buf := make([]byte, 256)
	for {
		select {
		case <-sigChan:
			fmt.Println()

			status, err := rm.Status(alsa.SNDRV_RAWMIDI_STREAM_INPUT)
			if err == nil && status.Xruns > 0 {
				fmt.Fprintf(os.Stderr, "Lost %d bytes to overruns.\n", status.Xruns)
			}

			return nil
		default:
		}

		ready, err := rm.Wait(100)
		if err != nil {
			return err
		}
		if !ready {
			continue
		}

		n, err := rm.Read(buf)
		if err != nil {
			// Another reader can win the race for the bytes.
			if errors.Is(err, syscall.EAGAIN) {
				continue
			}

			return err
		}

		for _, b := range buf[:n] {
			fmt.Printf("%02x ", b)
		}
	}
}
