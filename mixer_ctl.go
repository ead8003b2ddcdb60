package alsa

import (
	"fmt"
	"syscall"
	"unsafe"
)

// MixerCtl represents an individual mixer control handle. Instances are
// created by the owning Mixer during enumeration and stay valid until the
// mixer is closed.
type MixerCtl struct {
	mixer *Mixer
	info  sndCtlElemInfo
	ename []string // Cache for enumerated item names
}

// valid reports whether the control can talk to its card.
func (c *MixerCtl) valid() bool {
	return c != nil && c.mixer != nil && c.mixer.ctl.IsReady()
}

// intRange interprets the info value union as an integer range.
func (c *MixerCtl) intRange() *integer {
	return (*integer)(unsafe.Pointer(&c.info.Value[0]))
}

// int64Range interprets the info value union as a 64-bit integer range.
func (c *MixerCtl) int64Range() *integer64 {
	return (*integer64)(unsafe.Pointer(&c.info.Value[0]))
}

// enumInfo interprets the info value union as enumerated metadata.
func (c *MixerCtl) enumInfo() *sndCtlEnum {
	return (*sndCtlEnum)(unsafe.Pointer(&c.info.Value[0]))
}

// readValue fetches the current value payload of the control.
func (c *MixerCtl) readValue() (*CtlElemValue, error) {
	value := &CtlElemValue{}
	value.native.Id = c.info.Id

	if err := c.mixer.ctl.ElemRead(value); err != nil {
		return nil, err
	}

	return value, nil
}

// writeValue sends a value payload to the control.
func (c *MixerCtl) writeValue(value *CtlElemValue) error {
	value.native.Id = c.info.Id

	return c.mixer.ctl.ElemWrite(value)
}

// Name returns the name of the control.
func (c *MixerCtl) Name() string {
	if c == nil {
		return ""
	}

	return cString(c.info.Id.Name[:])
}

// ID returns the numid of the control. Numids are assigned by the kernel at
// card registration and are not stable across reboots.
func (c *MixerCtl) ID() uint32 {
	if c == nil {
		return ^uint32(0)
	}

	return c.info.Id.Numid
}

// Device returns the device number the control belongs to.
func (c *MixerCtl) Device() uint32 {
	if c == nil {
		return 0
	}

	return c.info.Id.Device
}

// Subdevice returns the subdevice number the control belongs to.
func (c *MixerCtl) Subdevice() uint32 {
	if c == nil {
		return 0
	}

	return c.info.Id.Subdevice
}

// Index returns the index of the control among controls sharing its name.
func (c *MixerCtl) Index() uint32 {
	if c == nil {
		return 0
	}

	return c.info.Id.Index
}

// Type returns the value type of the control.
func (c *MixerCtl) Type() MixerCtlType {
	if c == nil {
		return SNDRV_CTL_ELEM_TYPE_UNKNOWN
	}

	return MixerCtlType(c.info.Typ)
}

// TypeString returns a short name for the value type of the control.
func (c *MixerCtl) TypeString() string {
	switch c.Type() {
	case SNDRV_CTL_ELEM_TYPE_BOOLEAN:
		return "BOOL"
	case SNDRV_CTL_ELEM_TYPE_INTEGER:
		return "INT"
	case SNDRV_CTL_ELEM_TYPE_ENUMERATED:
		return "ENUM"
	case SNDRV_CTL_ELEM_TYPE_BYTES:
		return "BYTE"
	case SNDRV_CTL_ELEM_TYPE_IEC958:
		return "IEC958"
	case SNDRV_CTL_ELEM_TYPE_INTEGER64:
		return "INT64"
	}

	return "UNKNOWN"
}

// NumValues returns the number of values the control holds.
func (c *MixerCtl) NumValues() uint32 {
	if c == nil {
		return 0
	}

	return c.info.Count
}

// Access returns the access rights of the control.
func (c *MixerCtl) Access() CtlAccessFlag {
	if c == nil {
		return 0
	}

	return CtlAccessFlag(c.info.Access)
}

// Update refreshes the cached element information from the kernel. Cached
// enumerated item names are discarded.
func (c *MixerCtl) Update() error {
	if !c.valid() {
		return fmt.Errorf("mixer control is not valid")
	}

	info := sndCtlElemInfo{}
	info.Id.Numid = c.info.Id.Numid

	if err := c.mixer.ctl.elemInfoNative(&info); err != nil {
		return err
	}

	c.info = info
	c.ename = nil

	return nil
}

// Value returns the value at the given index as an int. Boolean controls
// report 0 or 1 and enumerated controls report the selected item index.
func (c *MixerCtl) Value(idx uint) (int, error) {
	if !c.valid() {
		return 0, fmt.Errorf("mixer control is not valid")
	}

	if idx >= uint(c.info.Count) {
		return 0, fmt.Errorf("value index %d out of range (count %d): %w", idx, c.info.Count, syscall.EINVAL)
	}

	value, err := c.readValue()
	if err != nil {
		return 0, err
	}

	switch MixerCtlType(c.info.Typ) {
	case SNDRV_CTL_ELEM_TYPE_BOOLEAN:
		if value.Boolean(idx) {
			return 1, nil
		}

		return 0, nil
	case SNDRV_CTL_ELEM_TYPE_INTEGER:
		return value.Integer(idx), nil
	case SNDRV_CTL_ELEM_TYPE_ENUMERATED:
		return int(value.Enumerated(idx)), nil
	case SNDRV_CTL_ELEM_TYPE_BYTES:
		return int(value.Byte(idx)), nil
	}

	return 0, fmt.Errorf("unsupported control type %s: %w", c.TypeString(), syscall.EINVAL)
}

// SetValue sets the value at the given index. The remaining indices keep
// their current values. Integer values outside the control's range are
// rejected.
func (c *MixerCtl) SetValue(idx uint, val int) error {
	if !c.valid() {
		return fmt.Errorf("mixer control is not valid")
	}

	if idx >= uint(c.info.Count) {
		return fmt.Errorf("value index %d out of range (count %d): %w", idx, c.info.Count, syscall.EINVAL)
	}

	value, err := c.readValue()
	if err != nil {
		return err
	}

	switch MixerCtlType(c.info.Typ) {
	case SNDRV_CTL_ELEM_TYPE_BOOLEAN:
		value.SetBoolean(idx, val != 0)
	case SNDRV_CTL_ELEM_TYPE_INTEGER:
		r := c.intRange()
		if val < int(r.Min) || val > int(r.Max) {
			return fmt.Errorf("value %d outside range [%d, %d]: %w", val, r.Min, r.Max, syscall.EINVAL)
		}

		value.SetInteger(idx, val)
	case SNDRV_CTL_ELEM_TYPE_ENUMERATED:
		value.SetEnumerated(idx, uint32(val))
	case SNDRV_CTL_ELEM_TYPE_BYTES:
		value.SetByte(idx, byte(val))
	default:
		return fmt.Errorf("unsupported control type %s: %w", c.TypeString(), syscall.EINVAL)
	}

	return c.writeValue(value)
}

// Value64 returns the value of a 64-bit integer control at the given index.
func (c *MixerCtl) Value64(idx uint) (int64, error) {
	if !c.valid() {
		return 0, fmt.Errorf("mixer control is not valid")
	}

	if MixerCtlType(c.info.Typ) != SNDRV_CTL_ELEM_TYPE_INTEGER64 {
		return 0, fmt.Errorf("control type %s is not a 64-bit integer: %w", c.TypeString(), syscall.EINVAL)
	}

	if idx >= uint(c.info.Count) {
		return 0, fmt.Errorf("value index %d out of range (count %d): %w", idx, c.info.Count, syscall.EINVAL)
	}

	value, err := c.readValue()
	if err != nil {
		return 0, err
	}

	return value.Integer64(idx), nil
}

// SetValue64 sets the value of a 64-bit integer control at the given index.
func (c *MixerCtl) SetValue64(idx uint, val int64) error {
	if !c.valid() {
		return fmt.Errorf("mixer control is not valid")
	}

	if MixerCtlType(c.info.Typ) != SNDRV_CTL_ELEM_TYPE_INTEGER64 {
		return fmt.Errorf("control type %s is not a 64-bit integer: %w", c.TypeString(), syscall.EINVAL)
	}

	if idx >= uint(c.info.Count) {
		return fmt.Errorf("value index %d out of range (count %d): %w", idx, c.info.Count, syscall.EINVAL)
	}

	r := c.int64Range()
	if val < r.Min || val > r.Max {
		return fmt.Errorf("value %d outside range [%d, %d]: %w", val, r.Min, r.Max, syscall.EINVAL)
	}

	value, err := c.readValue()
	if err != nil {
		return err
	}

	value.SetInteger64(idx, val)

	return c.writeValue(value)
}

// Percent returns the value at the given index scaled to 0-100 over the
// control's integer range.
func (c *MixerCtl) Percent(idx uint) (int, error) {
	if !c.valid() {
		return 0, fmt.Errorf("mixer control is not valid")
	}

	if MixerCtlType(c.info.Typ) != SNDRV_CTL_ELEM_TYPE_INTEGER {
		return 0, fmt.Errorf("control type %s does not support percent: %w", c.TypeString(), syscall.EINVAL)
	}

	val, err := c.Value(idx)
	if err != nil {
		return 0, err
	}

	r := c.intRange()
	span := int(r.Max - r.Min)
	if span == 0 {
		return 0, nil
	}

	return (val - int(r.Min)) * 100 / span, nil
}

// SetPercent sets the value at the given index from a 0-100 percentage of
// the control's integer range.
func (c *MixerCtl) SetPercent(idx uint, percent int) error {
	if !c.valid() {
		return fmt.Errorf("mixer control is not valid")
	}

	if MixerCtlType(c.info.Typ) != SNDRV_CTL_ELEM_TYPE_INTEGER {
		return fmt.Errorf("control type %s does not support percent: %w", c.TypeString(), syscall.EINVAL)
	}

	r := c.intRange()
	span := int(r.Max - r.Min)

	return c.SetValue(idx, int(r.Min)+span*percent/100)
}

// RangeMin returns the minimum value of an integer control.
func (c *MixerCtl) RangeMin() (int, error) {
	if !c.valid() {
		return 0, fmt.Errorf("mixer control is not valid")
	}

	if MixerCtlType(c.info.Typ) != SNDRV_CTL_ELEM_TYPE_INTEGER {
		return 0, fmt.Errorf("control type %s has no integer range: %w", c.TypeString(), syscall.EINVAL)
	}

	return int(c.intRange().Min), nil
}

// RangeMax returns the maximum value of an integer control.
func (c *MixerCtl) RangeMax() (int, error) {
	if !c.valid() {
		return 0, fmt.Errorf("mixer control is not valid")
	}

	if MixerCtlType(c.info.Typ) != SNDRV_CTL_ELEM_TYPE_INTEGER {
		return 0, fmt.Errorf("control type %s has no integer range: %w", c.TypeString(), syscall.EINVAL)
	}

	return int(c.intRange().Max), nil
}

// RangeMin64 returns the minimum value of a 64-bit integer control.
func (c *MixerCtl) RangeMin64() (int64, error) {
	if !c.valid() {
		return 0, fmt.Errorf("mixer control is not valid")
	}

	if MixerCtlType(c.info.Typ) != SNDRV_CTL_ELEM_TYPE_INTEGER64 {
		return 0, fmt.Errorf("control type %s has no 64-bit integer range: %w", c.TypeString(), syscall.EINVAL)
	}

	return c.int64Range().Min, nil
}

// RangeMax64 returns the maximum value of a 64-bit integer control.
func (c *MixerCtl) RangeMax64() (int64, error) {
	if !c.valid() {
		return 0, fmt.Errorf("mixer control is not valid")
	}

	if MixerCtlType(c.info.Typ) != SNDRV_CTL_ELEM_TYPE_INTEGER64 {
		return 0, fmt.Errorf("control type %s has no 64-bit integer range: %w", c.TypeString(), syscall.EINVAL)
	}

	return c.int64Range().Max, nil
}

// NumEnums returns the number of items of an enumerated control.
func (c *MixerCtl) NumEnums() (uint32, error) {
	if !c.valid() {
		return 0, fmt.Errorf("mixer control is not valid")
	}

	if MixerCtlType(c.info.Typ) != SNDRV_CTL_ELEM_TYPE_ENUMERATED {
		return 0, fmt.Errorf("control type %s is not enumerated: %w", c.TypeString(), syscall.EINVAL)
	}

	return c.enumInfo().Items, nil
}

// fillEnumStrings queries the kernel for the name of every enumerated item
// and caches the result. Each item requires its own ELEM_INFO round trip.
func (c *MixerCtl) fillEnumStrings() error {
	if c.ename != nil {
		return nil
	}

	items := c.enumInfo().Items
	names := make([]string, 0, items)

	for item := uint32(0); item < items; item++ {
		info := sndCtlElemInfo{}
		info.Id.Numid = c.info.Id.Numid
		(*sndCtlEnum)(unsafe.Pointer(&info.Value[0])).Item = item

		if err := c.mixer.ctl.elemInfoNative(&info); err != nil {
			return err
		}

		names = append(names, cString((*sndCtlEnum)(unsafe.Pointer(&info.Value[0])).Name[:]))
	}

	c.ename = names

	return nil
}

// EnumString returns the name of the enumerated item with the given index.
func (c *MixerCtl) EnumString(item uint) (string, error) {
	if !c.valid() {
		return "", fmt.Errorf("mixer control is not valid")
	}

	if MixerCtlType(c.info.Typ) != SNDRV_CTL_ELEM_TYPE_ENUMERATED {
		return "", fmt.Errorf("control type %s is not enumerated: %w", c.TypeString(), syscall.EINVAL)
	}

	if item >= uint(c.enumInfo().Items) {
		return "", fmt.Errorf("enum item %d out of range (items %d): %w", item, c.enumInfo().Items, syscall.EINVAL)
	}

	if err := c.fillEnumStrings(); err != nil {
		return "", err
	}

	return c.ename[item], nil
}

// AllEnumStrings returns the names of all enumerated items in item order.
func (c *MixerCtl) AllEnumStrings() ([]string, error) {
	if !c.valid() {
		return nil, fmt.Errorf("mixer control is not valid")
	}

	if MixerCtlType(c.info.Typ) != SNDRV_CTL_ELEM_TYPE_ENUMERATED {
		return nil, fmt.Errorf("control type %s is not enumerated: %w", c.TypeString(), syscall.EINVAL)
	}

	if err := c.fillEnumStrings(); err != nil {
		return nil, err
	}

	out := make([]string, len(c.ename))
	copy(out, c.ename)

	return out, nil
}

// EnumValueString returns the name of the item currently selected at the
// given value index.
func (c *MixerCtl) EnumValueString(idx uint) (string, error) {
	val, err := c.Value(idx)
	if err != nil {
		return "", err
	}

	return c.EnumString(uint(val))
}

// SetEnumByString selects the enumerated item with the given name on the
// first value index.
func (c *MixerCtl) SetEnumByString(name string) error {
	if !c.valid() {
		return fmt.Errorf("mixer control is not valid")
	}

	if MixerCtlType(c.info.Typ) != SNDRV_CTL_ELEM_TYPE_ENUMERATED {
		return fmt.Errorf("control type %s is not enumerated: %w", c.TypeString(), syscall.EINVAL)
	}

	if err := c.fillEnumStrings(); err != nil {
		return err
	}

	for item, ename := range c.ename {
		if ename == name {
			return c.SetValue(0, item)
		}
	}

	return fmt.Errorf("enum item %q not found: %w", name, syscall.EINVAL)
}

// Array reads every value of the control into the slice pointed to by out,
// resizing it to NumValues. Supported destinations are *[]int32 for boolean,
// integer and enumerated controls, *[]byte for byte controls and *[]int64
// for 64-bit integer controls.
func (c *MixerCtl) Array(out any) error {
	if !c.valid() {
		return fmt.Errorf("mixer control is not valid")
	}

	count := uint(c.info.Count)

	value, err := c.readValue()
	if err != nil {
		return err
	}

	switch d := out.(type) {
	case *[]int32:
		vals := make([]int32, count)

		switch MixerCtlType(c.info.Typ) {
		case SNDRV_CTL_ELEM_TYPE_BOOLEAN, SNDRV_CTL_ELEM_TYPE_INTEGER:
			for i := uint(0); i < count; i++ {
				vals[i] = int32(value.Integer(i))
			}
		case SNDRV_CTL_ELEM_TYPE_ENUMERATED:
			for i := uint(0); i < count; i++ {
				vals[i] = int32(value.Enumerated(i))
			}
		default:
			return fmt.Errorf("control type %s does not decode to []int32: %w", c.TypeString(), syscall.EINVAL)
		}

		*d = vals
	case *[]byte:
		if MixerCtlType(c.info.Typ) != SNDRV_CTL_ELEM_TYPE_BYTES {
			return fmt.Errorf("control type %s does not decode to []byte: %w", c.TypeString(), syscall.EINVAL)
		}

		*d = value.Bytes(count)
	case *[]int64:
		if MixerCtlType(c.info.Typ) != SNDRV_CTL_ELEM_TYPE_INTEGER64 {
			return fmt.Errorf("control type %s does not decode to []int64: %w", c.TypeString(), syscall.EINVAL)
		}

		vals := make([]int64, count)
		for i := uint(0); i < count; i++ {
			vals[i] = value.Integer64(i)
		}

		*d = vals
	default:
		return fmt.Errorf("unsupported destination type %T: %w", out, syscall.EINVAL)
	}

	return nil
}

// SetArray writes every value of the control from the given slice. The slice
// length must equal NumValues. Supported sources are []int32 for boolean,
// integer and enumerated controls, []byte for byte controls and []int64 for
// 64-bit integer controls.
func (c *MixerCtl) SetArray(data any) error {
	if !c.valid() {
		return fmt.Errorf("mixer control is not valid")
	}

	count := uint(c.info.Count)
	value := &CtlElemValue{}

	switch d := data.(type) {
	case []int32:
		if uint(len(d)) != count {
			return fmt.Errorf("slice length %d does not match value count %d: %w", len(d), count, syscall.EINVAL)
		}

		switch MixerCtlType(c.info.Typ) {
		case SNDRV_CTL_ELEM_TYPE_BOOLEAN:
			for i, v := range d {
				value.SetBoolean(uint(i), v != 0)
			}
		case SNDRV_CTL_ELEM_TYPE_INTEGER:
			for i, v := range d {
				value.SetInteger(uint(i), int(v))
			}
		case SNDRV_CTL_ELEM_TYPE_ENUMERATED:
			for i, v := range d {
				value.SetEnumerated(uint(i), uint32(v))
			}
		default:
			return fmt.Errorf("control type %s does not encode from []int32: %w", c.TypeString(), syscall.EINVAL)
		}
	case []byte:
		if uint(len(d)) != count {
			return fmt.Errorf("slice length %d does not match value count %d: %w", len(d), count, syscall.EINVAL)
		}

		if MixerCtlType(c.info.Typ) != SNDRV_CTL_ELEM_TYPE_BYTES {
			return fmt.Errorf("control type %s does not encode from []byte: %w", c.TypeString(), syscall.EINVAL)
		}

		value.SetBytes(d)
	case []int64:
		if uint(len(d)) != count {
			return fmt.Errorf("slice length %d does not match value count %d: %w", len(d), count, syscall.EINVAL)
		}

		if MixerCtlType(c.info.Typ) != SNDRV_CTL_ELEM_TYPE_INTEGER64 {
			return fmt.Errorf("control type %s does not encode from []int64: %w", c.TypeString(), syscall.EINVAL)
		}

		for i, v := range d {
			value.SetInteger64(uint(i), v)
		}
	default:
		return fmt.Errorf("unsupported source type %T: %w", data, syscall.EINVAL)
	}

	return c.writeValue(value)
}
