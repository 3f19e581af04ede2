package syncvar

import (
	"image/color"

	"github.com/colonyworld/replica/engine/netutil"
)

// Int is a replicated integer
type Int struct {
	base
	value    int64
	onChange func(old, new int64)
}

// NewInt creates an Int with initial value
func NewInt(initial int64) *Int {
	return &Int{value: initial}
}

// OnChange sets the callback invoked when a received delta changes the value
func (v *Int) OnChange(cb func(old, new int64)) *Int {
	v.onChange = cb
	return v
}

// Get returns the current value
func (v *Int) Get() int64 {
	return v.value
}

// Set writes the value
func (v *Int) Set(val int64) {
	if v.value == val {
		return
	}
	v.value = val
	v.markDirty()
}

// Add adds delta to the value
func (v *Int) Add(delta int64) {
	v.Set(v.value + delta)
}

func (v *Int) SerializeDelta() []byte {
	v.dirty = false
	return v.SerializeFull()
}

func (v *Int) SerializeFull() []byte {
	return encode(func(p *netutil.Packet) {
		p.AppendVarint(v.value)
	})
}

func (v *Int) ApplyDelta(data []byte) error {
	var val int64
	if err := decode(data, func(p *netutil.Packet) { val = p.ReadVarint() }); err != nil {
		return err
	}
	old := v.value
	v.value = val
	if v.onChange != nil {
		cb := v.onChange
		v.post(func() { cb(old, val) })
	}
	return nil
}

func (v *Int) Load(data []byte) error {
	return decode(data, func(p *netutil.Packet) { v.value = p.ReadVarint() })
}

// String is a replicated string
type String struct {
	base
	value    string
	onChange func(old, new string)
}

// NewString creates a String with initial value
func NewString(initial string) *String {
	return &String{value: initial}
}

// OnChange sets the callback invoked when a received delta changes the value
func (v *String) OnChange(cb func(old, new string)) *String {
	v.onChange = cb
	return v
}

// Get returns the current value
func (v *String) Get() string {
	return v.value
}

// Set writes the value
func (v *String) Set(val string) {
	if v.value == val {
		return
	}
	v.value = val
	v.markDirty()
}

func (v *String) SerializeDelta() []byte {
	v.dirty = false
	return v.SerializeFull()
}

func (v *String) SerializeFull() []byte {
	return encode(func(p *netutil.Packet) {
		p.AppendVarStr(v.value)
	})
}

func (v *String) ApplyDelta(data []byte) error {
	var val string
	if err := decode(data, func(p *netutil.Packet) { val = p.ReadVarStr() }); err != nil {
		return err
	}
	old := v.value
	v.value = val
	if v.onChange != nil {
		cb := v.onChange
		v.post(func() { cb(old, val) })
	}
	return nil
}

func (v *String) Load(data []byte) error {
	return decode(data, func(p *netutil.Packet) { v.value = p.ReadVarStr() })
}

// Color is a replicated RGBA color
type Color struct {
	base
	value    color.RGBA
	onChange func(old, new color.RGBA)
}

// NewColor creates a Color with initial value
func NewColor(initial color.RGBA) *Color {
	return &Color{value: initial}
}

// OnChange sets the callback invoked when a received delta changes the value
func (v *Color) OnChange(cb func(old, new color.RGBA)) *Color {
	v.onChange = cb
	return v
}

// Get returns the current value
func (v *Color) Get() color.RGBA {
	return v.value
}

// Set writes the value
func (v *Color) Set(val color.RGBA) {
	if v.value == val {
		return
	}
	v.value = val
	v.markDirty()
}

func (v *Color) SerializeDelta() []byte {
	v.dirty = false
	return v.SerializeFull()
}

func (v *Color) SerializeFull() []byte {
	return encode(func(p *netutil.Packet) {
		p.AppendBytes([]byte{v.value.R, v.value.G, v.value.B, v.value.A})
	})
}

func readColor(p *netutil.Packet) color.RGBA {
	b := p.ReadBytes(4)
	return color.RGBA{R: b[0], G: b[1], B: b[2], A: b[3]}
}

func (v *Color) ApplyDelta(data []byte) error {
	var val color.RGBA
	if err := decode(data, func(p *netutil.Packet) { val = readColor(p) }); err != nil {
		return err
	}
	old := v.value
	v.value = val
	if v.onChange != nil {
		cb := v.onChange
		v.post(func() { cb(old, val) })
	}
	return nil
}

func (v *Color) Load(data []byte) error {
	return decode(data, func(p *netutil.Packet) { v.value = readColor(p) })
}
