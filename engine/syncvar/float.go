package syncvar

import (
	"math"
	"time"

	"github.com/colonyworld/replica/engine/common"
	"github.com/colonyworld/replica/engine/consts"
	"github.com/colonyworld/replica/engine/netutil"
	"github.com/pkg/errors"
)

const (
	_ENC_EXACT     = 0
	_ENC_QUANTIZED = 1
)

// Float is a replicated float with optional quantization and interpolation.
//
// With a resolution, writes smaller than the resolution since the last sent value do not mark the
// variable dirty, and deltas carry the value as an integer multiple of the resolution.
// With an interpolation rate, received values become the target the current value moves toward,
// rate being the fraction of the remaining distance covered per second.
type Float struct {
	base
	value      float64
	target     float64
	lastSent   float64
	resolution float64
	rate       float64
	onChange   func(old, new float64)
}

// NewFloat creates a Float with initial value
func NewFloat(initial float64) *Float {
	return &Float{value: initial, target: initial, lastSent: initial}
}

// SetResolution sets the quantization resolution, 0 disables quantization
func (v *Float) SetResolution(resolution float64) *Float {
	v.resolution = resolution
	return v
}

// SetInterpolation sets the interpolation rate, 0 disables interpolation
func (v *Float) SetInterpolation(rate float64) *Float {
	v.rate = rate
	return v
}

// OnChange sets the callback invoked when a received delta changes the value
func (v *Float) OnChange(cb func(old, new float64)) *Float {
	v.onChange = cb
	return v
}

// Get returns the current value, which is between the previous and the target value while interpolating
func (v *Float) Get() float64 {
	return v.value
}

// Target returns the latest written or received value
func (v *Float) Target() float64 {
	return v.target
}

// Set writes the value
func (v *Float) Set(val float64) {
	v.value = val
	v.target = val
	if v.resolution > 0 {
		if math.Abs(val-v.lastSent) >= v.resolution {
			v.markDirty()
		}
	} else if val != v.lastSent {
		v.markDirty()
	}
}

// quantize returns the multiple of resolution a receiver decodes for x
func quantize(x, resolution float64) int64 {
	return int64(math.Round(x / resolution))
}

func (v *Float) SerializeDelta() []byte {
	v.dirty = false
	if v.resolution <= 0 {
		v.lastSent = v.target
		return v.SerializeFull()
	}
	q := quantize(v.target, v.resolution)
	// dirty threshold is measured from what the receiver holds
	v.lastSent = float64(q) * v.resolution
	return encode(func(p *netutil.Packet) {
		p.AppendByte(_ENC_QUANTIZED)
		p.AppendFloat64(v.resolution)
		p.AppendVarint(q)
	})
}

func (v *Float) SerializeFull() []byte {
	return encode(func(p *netutil.Packet) {
		p.AppendByte(_ENC_EXACT)
		p.AppendFloat64(v.target)
	})
}

func readFloat(p *netutil.Packet) float64 {
	switch enc := p.ReadOneByte(); enc {
	case _ENC_EXACT:
		return p.ReadFloat64()
	case _ENC_QUANTIZED:
		resolution := p.ReadFloat64()
		return float64(p.ReadVarint()) * resolution
	default:
		panic(errors.Errorf("unknown float encoding %d", enc))
	}
}

func (v *Float) ApplyDelta(data []byte) error {
	var val float64
	if err := decode(data, func(p *netutil.Packet) { val = readFloat(p) }); err != nil {
		return err
	}
	old := v.target
	v.target = val
	v.lastSent = val
	if v.rate <= 0 {
		v.value = val
	}
	if v.onChange != nil {
		cb := v.onChange
		v.post(func() { cb(old, val) })
	}
	return nil
}

func (v *Float) Load(data []byte) error {
	return decode(data, func(p *netutil.Packet) {
		val := readFloat(p)
		v.value, v.target, v.lastSent = val, val, val
	})
}

// Interpolate moves the current value toward the target
func (v *Float) Interpolate(dt time.Duration) {
	if v.value == v.target {
		return
	}
	alpha := v.rate * dt.Seconds()
	if alpha >= 1 || v.rate <= 0 {
		v.value = v.target
		return
	}
	v.value += (v.target - v.value) * alpha
	if math.Abs(v.target-v.value) < consts.INTERPOLATION_SNAP_EPSILON {
		v.value = v.target
	}
}

// Settled tells if the current value reached the target
func (v *Float) Settled() bool {
	return v.value == v.target
}

// Vector is a replicated 3D vector with optional quantization and interpolation, see Float
type Vector struct {
	base
	value      common.Vector3
	target     common.Vector3
	lastSent   common.Vector3
	resolution float64
	rate       float64
	onChange   func(old, new common.Vector3)
}

// NewVector creates a Vector with initial value
func NewVector(initial common.Vector3) *Vector {
	return &Vector{value: initial, target: initial, lastSent: initial}
}

// SetResolution sets the quantization resolution of each component, 0 disables quantization
func (v *Vector) SetResolution(resolution float64) *Vector {
	v.resolution = resolution
	return v
}

// SetInterpolation sets the interpolation rate, 0 disables interpolation
func (v *Vector) SetInterpolation(rate float64) *Vector {
	v.rate = rate
	return v
}

// OnChange sets the callback invoked when a received delta changes the value
func (v *Vector) OnChange(cb func(old, new common.Vector3)) *Vector {
	v.onChange = cb
	return v
}

// Get returns the current value
func (v *Vector) Get() common.Vector3 {
	return v.value
}

// Target returns the latest written or received value
func (v *Vector) Target() common.Vector3 {
	return v.target
}

// Set writes the value
func (v *Vector) Set(val common.Vector3) {
	v.value = val
	v.target = val
	if v.resolution > 0 {
		if val.DistanceTo(v.lastSent) >= v.resolution {
			v.markDirty()
		}
	} else if val != v.lastSent {
		v.markDirty()
	}
}

func (v *Vector) SerializeDelta() []byte {
	v.dirty = false
	if v.resolution <= 0 {
		v.lastSent = v.target
		return v.SerializeFull()
	}
	var q [3]int64
	for i, c := range [3]common.Coord{v.target.X, v.target.Y, v.target.Z} {
		q[i] = quantize(float64(c), v.resolution)
	}
	v.lastSent = common.Vector3{
		X: common.Coord(float64(q[0]) * v.resolution),
		Y: common.Coord(float64(q[1]) * v.resolution),
		Z: common.Coord(float64(q[2]) * v.resolution),
	}
	return encode(func(p *netutil.Packet) {
		p.AppendByte(_ENC_QUANTIZED)
		p.AppendFloat64(v.resolution)
		for _, n := range q {
			p.AppendVarint(n)
		}
	})
}

func (v *Vector) SerializeFull() []byte {
	return encode(func(p *netutil.Packet) {
		p.AppendByte(_ENC_EXACT)
		p.AppendVector3(v.target)
	})
}

func readVector(p *netutil.Packet) common.Vector3 {
	switch enc := p.ReadOneByte(); enc {
	case _ENC_EXACT:
		return p.ReadVector3()
	case _ENC_QUANTIZED:
		resolution := p.ReadFloat64()
		x := float64(p.ReadVarint()) * resolution
		y := float64(p.ReadVarint()) * resolution
		z := float64(p.ReadVarint()) * resolution
		return common.Vector3{X: common.Coord(x), Y: common.Coord(y), Z: common.Coord(z)}
	default:
		panic(errors.Errorf("unknown vector encoding %d", enc))
	}
}

func (v *Vector) ApplyDelta(data []byte) error {
	var val common.Vector3
	if err := decode(data, func(p *netutil.Packet) { val = readVector(p) }); err != nil {
		return err
	}
	old := v.target
	v.target = val
	v.lastSent = val
	if v.rate <= 0 {
		v.value = val
	}
	if v.onChange != nil {
		cb := v.onChange
		v.post(func() { cb(old, val) })
	}
	return nil
}

func (v *Vector) Load(data []byte) error {
	return decode(data, func(p *netutil.Packet) {
		val := readVector(p)
		v.value, v.target, v.lastSent = val, val, val
	})
}

// Interpolate moves the current value toward the target
func (v *Vector) Interpolate(dt time.Duration) {
	if v.value == v.target {
		return
	}
	alpha := v.rate * dt.Seconds()
	if alpha >= 1 || v.rate <= 0 {
		v.value = v.target
		return
	}
	v.value = v.value.Lerp(v.target, alpha)
	if v.value.DistanceTo(v.target) < consts.INTERPOLATION_SNAP_EPSILON {
		v.value = v.target
	}
}

// Settled tells if the current value reached the target
func (v *Vector) Settled() bool {
	return v.value == v.target
}
