package main

import (
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
		card  uint
		list  bool
		watch bool
	)

	flag.UintVar(&card, "card", 0, "The card number to use.")
	flag.BoolVar(&list, "list", false, "List all controls without values.")
	flag.BoolVar(&watch, "watch", false, "Watch for control changes until interrupted.")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [control] [value...]\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "\nOptions:")
		for _, name := range []string{"card", "list", "watch"} {
			f := flag.Lookup(name)
			if f != nil {
				fmt.Fprintf(os.Stderr, "  --%s\n    \t%v (default %q)\n", f.Name, f.Usage, f.DefValue)
			}
		}
		fmt.Fprintln(os.Stderr, "\nTo set a control, provide the control name or ID and the desired value(s).")
		fmt.Fprintln(os.Stderr, "Integer values may carry a % suffix to set a percentage of the range.")
		fmt.Fprintln(os.Stderr, "If no control is specified, all controls and their values are listed.")
	}

	flag.Parse()

	mixer, err := alsa.MixerOpen(card)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening mixer for card %d: %v\n", card, err)
		os.Exit(1)
	}
	defer mixer.Close()

	if watch {
		if err := watchEvents(mixer); err != nil {
			fmt.Fprintf(os.Stderr, "Error watching mixer events: %v\n", err)
			os.Exit(1)
		}

		return
	}

	args := flag.Args()

	if len(args) == 0 {
		printAllControls(mixer, list)

		return
	}

	ctl, err := resolveControl(mixer, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(args) == 1 {
		printControl(ctl, false)

		return
	}

	if err := setControlValue(ctl, args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error setting value for control '%s': %v\n", ctl.Name(), err)
		os.Exit(1)
	}

	fmt.Printf("Set control '%s' successfully.\n", ctl.Name())
}

// resolveControl accepts either a numid or a control name.
func resolveControl(mixer *alsa.Mixer, identifier string) (*alsa.MixerCtl, error) {
	if id, err := strconv.ParseUint(identifier, 10, 32); err == nil {
		ctl, err := mixer.Ctl(uint32(id))
		if err != nil {
			return nil, fmt.Errorf("cannot find control with ID %d: %w", id, err)
		}

		return ctl, nil
	}

	ctl, err := mixer.CtlByName(identifier)
	if err != nil {
		return nil, fmt.Errorf("cannot find control with name '%s': %w", identifier, err)
	}

	return ctl, nil
}

// watchEvents subscribes to the control device and prints every change until
// the process is interrupted.
func watchEvents(mixer *alsa.Mixer) error {
	if err := mixer.SubscribeEvents(true); err != nil {
		return err
	}
	defer mixer.SubscribeEvents(false)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	fmt.Printf("Watching mixer card '%s'... Press Ctrl+C to stop.\n", mixer.Name())

	for {
		select {
		case <-sigChan:
			fmt.Println("\nDone.")

			return nil
		default:
		}

		ready, err := mixer.WaitEvent(500)
		if err != nil {
			return err
		}

		if !ready {
			continue
		}

		event, err := mixer.ReadEvent()
		if err != nil {
			return err
		}

		// New controls need a rescan before their numid resolves to a name.
		if event.Type != alsa.SNDRV_CTL_EVENT_MASK_REMOVE && event.Type&alsa.SNDRV_CTL_EVENT_MASK_ADD != 0 {
			if err := mixer.AddNewCtls(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: rescan after add failed: %v\n", err)
			}
		}

		name := "?"
		if ctl, err := mixer.Ctl(event.ControlID); err == nil {
			name = ctl.Name()
		}

		fmt.Printf("[%s] %d: %s\n", eventTypeString(event.Type), event.ControlID, name)
	}
}

// eventTypeString renders an event mask. Removal is reported with every bit
// set and is matched exactly.
func eventTypeString(t alsa.MixerEventType) string {
	if t == alsa.SNDRV_CTL_EVENT_MASK_REMOVE {
		return "REMOVE"
	}

	var parts []string
	for _, m := range []struct {
		mask alsa.MixerEventType
		name string
	}{
		{alsa.SNDRV_CTL_EVENT_MASK_VALUE, "VALUE"},
		{alsa.SNDRV_CTL_EVENT_MASK_INFO, "INFO"},
		{alsa.SNDRV_CTL_EVENT_MASK_ADD, "ADD"},
		{alsa.SNDRV_CTL_EVENT_MASK_TLV, "TLV"},
	} {
		if t&m.mask != 0 {
			parts = append(parts, m.name)
		}
	}

	if len(parts) == 0 {
		return "NONE"
	}

	return strings.Join(parts, "|")
}

// printAllControls lists all available mixer controls and optionally their values.
func printAllControls(mixer *alsa.Mixer, listOnly bool) {
	numCtls := mixer.NumCtls()

	fmt.Printf("Mixer card '%s' has %d controls.\n", mixer.Name(), numCtls)
	fmt.Println("---------------------------------------")

	for i := 0; i < numCtls; i++ {
		ctl, err := mixer.CtlByIndex(uint(i))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not get control at index %d: %v\n", i, err)

			continue
		}

		printControl(ctl, listOnly)
	}
}

// printControl prints a single mixer control with its range and values.
func printControl(ctl *alsa.MixerCtl, listOnly bool) {
	if listOnly {
		fmt.Printf("%d: %s\n", ctl.ID(), ctl.Name())

		return
	}

	fmt.Printf("%d: %s (%s, %d values)\n", ctl.ID(), ctl.Name(), ctl.TypeString(), ctl.NumValues())

	if rangeStr := formatRange(ctl); rangeStr != "" {
		fmt.Printf("  Range: %s\n", rangeStr)
	}

	if ctl.Type() == alsa.SNDRV_CTL_ELEM_TYPE_ENUMERATED {
		if allEnums, err := ctl.AllEnumStrings(); err == nil {
			fmt.Printf("  Enums: %s\n", strings.Join(allEnums, ", "))
		}
	}

	fmt.Printf("  Value: %s\n", formatValues(ctl))
	fmt.Println()
}

// formatRange renders the value range of integer controls; other types have
// none.
func formatRange(ctl *alsa.MixerCtl) string {
	switch ctl.Type() {
	case alsa.SNDRV_CTL_ELEM_TYPE_INTEGER:
		minVal, errMin := ctl.RangeMin()
		maxVal, errMax := ctl.RangeMax()
		if errMin == nil && errMax == nil {
			return fmt.Sprintf("%d - %d", minVal, maxVal)
		}
	case alsa.SNDRV_CTL_ELEM_TYPE_INTEGER64:
		minVal, errMin := ctl.RangeMin64()
		maxVal, errMax := ctl.RangeMax64()
		if errMin == nil && errMax == nil {
			return fmt.Sprintf("%d - %d", minVal, maxVal)
		}
	}

	return ""
}

// formatValues renders the current values of a control, one entry per channel.
func formatValues(ctl *alsa.MixerCtl) string {
	count := uint(ctl.NumValues())

	switch ctl.Type() {
	case alsa.SNDRV_CTL_ELEM_TYPE_BYTES:
		var data []byte
		if err := ctl.Array(&data); err != nil {
			return fmt.Sprintf("<error reading bytes: %v>", err)
		}

		// For brevity, only show the first few bytes if it's long.
		if len(data) > 16 {
			return fmt.Sprintf("(first 16 bytes) %v...", data[:16])
		}

		return fmt.Sprintf("%v", data)
	case alsa.SNDRV_CTL_ELEM_TYPE_IEC958, alsa.SNDRV_CTL_ELEM_TYPE_UNKNOWN:
		return "<unsupported type>"
	}

	values := make([]string, 0, count)
	for i := uint(0); i < count; i++ {
		values = append(values, formatValueAt(ctl, i))
	}

	return strings.Join(values, ", ")
}

// formatValueAt renders a single channel value according to the control type.
func formatValueAt(ctl *alsa.MixerCtl, i uint) string {
	switch ctl.Type() {
	case alsa.SNDRV_CTL_ELEM_TYPE_BOOLEAN:
		val, err := ctl.Value(i)
		if err != nil {
			return "<error>"
		}

		if val > 0 {
			return "On"
		}

		return "Off"
	case alsa.SNDRV_CTL_ELEM_TYPE_INTEGER:
		val, err := ctl.Value(i)
		if err != nil {
			return "<error>"
		}

		if pct, err := ctl.Percent(i); err == nil {
			return fmt.Sprintf("%d (%d%%)", val, pct)
		}

		return fmt.Sprintf("%d", val)
	case alsa.SNDRV_CTL_ELEM_TYPE_INTEGER64:
		val, err := ctl.Value64(i)
		if err != nil {
			return "<error>"
		}

		return fmt.Sprintf("%d", val)
	case alsa.SNDRV_CTL_ELEM_TYPE_ENUMERATED:
		valStr, err := ctl.EnumValueString(i)
		if err != nil {
			return "<error>"
		}

		return valStr
	}

	return "<unsupported>"
}

// setControlValue parses string arguments and sets the control's value.
func setControlValue(ctl *alsa.MixerCtl, values []string) error {
	numValuesToSet := len(values)
	if numValuesToSet == 0 {
		return fmt.Errorf("no value provided")
	}

	// A single value is applied to every channel of the control.
	if numValuesToSet == 1 {
		singleValue := values[0]
		for i := uint(0); i < uint(ctl.NumValues()); i++ {
			if err := setSingleValue(ctl, i, singleValue); err != nil {
				return err
			}
		}

		return nil
	}

	if uint32(numValuesToSet) != ctl.NumValues() {
		return fmt.Errorf("provided %d values, but control has %d values", numValuesToSet, ctl.NumValues())
	}

	for i, v := range values {
		if err := setSingleValue(ctl, uint(i), v); err != nil {
			return err
		}
	}

	return nil
}

// setSingleValue sets a single value on a control at a specific index.
func setSingleValue(ctl *alsa.MixerCtl, index uint, valueStr string) error {
	switch ctl.Type() {
	case alsa.SNDRV_CTL_ELEM_TYPE_INTEGER:
		// Handle percentage suffix
		if strings.HasSuffix(valueStr, "%") {
			pctStr := strings.TrimSuffix(valueStr, "%")
			pct, err := strconv.Atoi(pctStr)
			if err != nil {
				return fmt.Errorf("invalid percentage value '%s'", valueStr)
			}

			return ctl.SetPercent(index, pct)
		}

		val, err := strconv.Atoi(valueStr)
		if err != nil {
			return fmt.Errorf("invalid integer value '%s'", valueStr)
		}

		return ctl.SetValue(index, val)

	case alsa.SNDRV_CTL_ELEM_TYPE_BOOLEAN:
		val, err := parseBool(valueStr)
		if err != nil {
			return err
		}

		return ctl.SetValue(index, val)

	case alsa.SNDRV_CTL_ELEM_TYPE_ENUMERATED:
		return ctl.SetEnumByString(valueStr)

	case alsa.SNDRV_CTL_ELEM_TYPE_INTEGER64:
		val, err := strconv.ParseInt(valueStr, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid int64 value '%s'", valueStr)
		}

		return ctl.SetValue64(index, val)

	case alsa.SNDRV_CTL_ELEM_TYPE_BYTES:
		return fmt.Errorf("setting BYTE controls via command line is not supported")

	default:
		return fmt.Errorf("cannot set value for unsupported control type %s", ctl.TypeString())
	}
}

// parseBool is a helper to interpret various string representations of a boolean.
func parseBool(s string) (int, error) {
	s = strings.ToLower(s)
	switch s {
	case "1", "on", "true", "yes":
		return 1, nil
	case "0", "off", "false", "no":
		return 0, nil
	}

	return 0, fmt.Errorf("invalid boolean value '%s'", s)
}
