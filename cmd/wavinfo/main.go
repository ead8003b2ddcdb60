package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"

	"github.com/go-alsa/alsa"
)

func main() {
	var (
		card   int
		device int
	)

	flag.IntVar(&card, "card", -1, "Check the file against this card's playback capabilities")
	flag.IntVar(&device, "device", 0, "The device to check against")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <wav-file>\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "\nOptions:")
		for _, name := range []string{"card", "device"} {
			f := flag.Lookup(name)
			if f != nil {
				fmt.Fprintf(os.Stderr, "  --%s\n    \t%v (default %q)\n", f.Name, f.Usage, f.DefValue)
			}
		}
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	wavPath := flag.Arg(0)

	file, err := os.Open(wavPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)

	if !decoder.IsValidFile() {
		fmt.Fprintln(os.Stderr, "Invalid WAV file")
		os.Exit(1)
	}

	// Format 1 is integer PCM, Format 3 is IEEE Float.
	formatStr := "Signed Integer PCM"
	if decoder.WavAudioFormat == 3 {
		formatStr = "IEEE Float"
	}

	duration, err := decoder.Duration()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get duration: %v\n", err)
		os.Exit(1)
	}

	// The total number of frames follows from the duration and sample rate.
	totalFrames := int(duration.Seconds() * float64(decoder.SampleRate))

	fmt.Printf("Filename:           %s\n", wavPath)
	fmt.Printf("Channels:           %d\n", decoder.NumChans)
	fmt.Printf("Sample Rate:        %d Hz\n", decoder.SampleRate)
	fmt.Printf("Bits Per Sample:    %d\n", decoder.BitDepth)
	fmt.Printf("Format:             %s\n", formatStr)
	fmt.Printf("Duration:           %s\n", formatDuration(duration))
	fmt.Printf("Frames:             %d\n", totalFrames)

	if card >= 0 {
		checkDevice(decoder, uint(card), uint(device))
	}
}

// checkDevice reports whether the decoded file fits the playback capabilities
// of the given PCM device.
func checkDevice(decoder *wav.Decoder, card, device uint) {
	params, err := alsa.PcmParamsGetRefined(card, device, alsa.PCM_OUT)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query hw:%d,%d: %v\n", card, device, err)
		os.Exit(1)
	}
	defer params.Free()

	fmt.Printf("\nPlayback on hw:%d,%d:\n", card, device)

	format, ok := wavPcmFormat(decoder)
	if !ok {
		fmt.Printf("  Format:           no ALSA equivalent for %d-bit format %d\n", decoder.BitDepth, decoder.WavAudioFormat)
	} else {
		fmt.Printf("  Format %-11s %s\n", alsa.PcmParamFormatNames[format]+":", supported(params.FormatIsSupported(format)))
	}

	fmt.Printf("  Rate %d:       %s\n", decoder.SampleRate, supported(inRange(params, alsa.SNDRV_PCM_HW_PARAM_RATE, uint32(decoder.SampleRate))))
	fmt.Printf("  Channels %d:       %s\n", decoder.NumChans, supported(inRange(params, alsa.SNDRV_PCM_HW_PARAM_CHANNELS, uint32(decoder.NumChans))))
}

// wavPcmFormat maps the WAV header onto the ALSA sample format the play tool
// would use. WAV stores 24-bit samples packed in 3 bytes.
func wavPcmFormat(decoder *wav.Decoder) (alsa.PcmFormat, bool) {
	if decoder.WavAudioFormat == 3 {
		if decoder.BitDepth == 32 {
			return alsa.SNDRV_PCM_FORMAT_FLOAT_LE, true
		}

		return alsa.SNDRV_PCM_FORMAT_INVALID, false
	}

	switch decoder.BitDepth {
	case 8:
		return alsa.SNDRV_PCM_FORMAT_U8, true
	case 16:
		return alsa.SNDRV_PCM_FORMAT_S16_LE, true
	case 24:
		return alsa.SNDRV_PCM_FORMAT_S24_3LE, true
	case 32:
		return alsa.SNDRV_PCM_FORMAT_S32_LE, true
	}

	return alsa.SNDRV_PCM_FORMAT_INVALID, false
}

// inRange reports whether val lies within the refined interval of the given
// hardware parameter.
func inRange(params *alsa.PcmParams, param alsa.PcmParam, val uint32) bool {
	minVal, err := params.Min(param)
	if err != nil {
		return false
	}

	maxVal, err := params.Max(param)
	if err != nil {
		return false
	}

	return val >= minVal && val <= maxVal
}

func supported(ok bool) string {
	if ok {
		return "supported"
	}

	return "NOT supported"
}

// formatDuration formats a time.Duration into a more readable HH:MM:SS.ms format.
func formatDuration(d time.Duration) string {
	nanos := d.Nanoseconds() % 1e9
	millis := nanos / 1e6

	seconds := int(d.Seconds()) % 60
	minutes := int(d.Minutes()) % 60
	hours := int(d.Hours())

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}
