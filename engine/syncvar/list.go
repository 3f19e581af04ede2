package syncvar

import (
	"github.com/colonyworld/replica/engine/netutil"
	"github.com/pkg/errors"
)

const (
	_OP_FULL = iota
	_OP_APPEND
	_OP_SET
	_OP_REMOVE
	_OP_CLEAR
	_OP_ADD
)

type listOp[T any] struct {
	kind  byte
	index int
	value T
}

// List is a replicated list. Elements are encoded with the message packer.
//
// Each Append, Set, Remove or Clear is one structural operation in the next delta.
// When the pending operations outnumber the elements, the delta carries the whole list instead.
type List[T any] struct {
	base
	values   []T
	ops      []listOp[T]
	full     bool
	onChange func(l *List[T])
}

// NewList creates a List with initial elements
func NewList[T any](initial ...T) *List[T] {
	return &List[T]{values: append([]T(nil), initial...)}
}

// OnChange sets the callback invoked after a received delta is applied
func (v *List[T]) OnChange(cb func(l *List[T])) *List[T] {
	v.onChange = cb
	return v
}

// Len returns the number of elements
func (v *List[T]) Len() int {
	return len(v.values)
}

// Get returns the element at index i
func (v *List[T]) Get(i int) T {
	return v.values[i]
}

// Values returns a copy of all elements
func (v *List[T]) Values() []T {
	return append([]T(nil), v.values...)
}

// Append adds elements to the end of the list
func (v *List[T]) Append(vals ...T) {
	for _, val := range vals {
		v.values = append(v.values, val)
		v.record(listOp[T]{kind: _OP_APPEND, value: val})
	}
}

// Set replaces the element at index i
func (v *List[T]) Set(i int, val T) {
	v.values[i] = val
	v.record(listOp[T]{kind: _OP_SET, index: i, value: val})
}

// Remove removes the element at index i, later elements shift down
func (v *List[T]) Remove(i int) {
	v.values = append(v.values[:i], v.values[i+1:]...)
	v.record(listOp[T]{kind: _OP_REMOVE, index: i})
}

// Clear removes all elements
func (v *List[T]) Clear() {
	v.values = nil
	v.ops = v.ops[:0]
	v.full = false
	v.record(listOp[T]{kind: _OP_CLEAR})
}

func (v *List[T]) record(op listOp[T]) {
	if !v.full {
		v.ops = append(v.ops, op)
		if len(v.ops) > len(v.values)+1 {
			v.ops = v.ops[:0]
			v.full = true
		}
	}
	v.markDirty()
}

func (v *List[T]) SerializeDelta() []byte {
	defer func() {
		v.dirty = false
		v.full = false
		v.ops = v.ops[:0]
	}()
	if v.full {
		return v.SerializeFull()
	}
	return encode(func(p *netutil.Packet) {
		p.AppendUvarint(uint64(len(v.ops)))
		for _, op := range v.ops {
			p.AppendByte(op.kind)
			switch op.kind {
			case _OP_APPEND:
				p.AppendData(op.value)
			case _OP_SET:
				p.AppendUvarint(uint64(op.index))
				p.AppendData(op.value)
			case _OP_REMOVE:
				p.AppendUvarint(uint64(op.index))
			}
		}
	})
}

func (v *List[T]) SerializeFull() []byte {
	return encode(func(p *netutil.Packet) {
		p.AppendUvarint(1)
		p.AppendByte(_OP_FULL)
		p.AppendUvarint(uint64(len(v.values)))
		for _, val := range v.values {
			p.AppendData(val)
		}
	})
}

func (v *List[T]) readOps(p *netutil.Packet, values []T) []T {
	nops := p.ReadUvarint()
	for i := uint64(0); i < nops; i++ {
		switch kind := p.ReadOneByte(); kind {
		case _OP_FULL:
			n := p.ReadUvarint()
			if n > uint64(len(p.UnreadPayload())) {
				panic(errors.Wrapf(netutil.ErrPacketTooShort, "list of length %d", n))
			}
			values = make([]T, n)
			for j := range values {
				p.ReadData(&values[j])
			}
		case _OP_APPEND:
			var val T
			p.ReadData(&val)
			values = append(values, val)
		case _OP_SET:
			idx := v.readIndex(p, len(values))
			p.ReadData(&values[idx])
		case _OP_REMOVE:
			idx := v.readIndex(p, len(values))
			values = append(values[:idx], values[idx+1:]...)
		case _OP_CLEAR:
			values = nil
		default:
			panic(errors.Errorf("unknown list operation %d", kind))
		}
	}
	return values
}

func (v *List[T]) readIndex(p *netutil.Packet, n int) int {
	idx := p.ReadUvarint()
	if idx >= uint64(n) {
		panic(errors.Errorf("list index %d out of range %d", idx, n))
	}
	return int(idx)
}

func (v *List[T]) ApplyDelta(data []byte) error {
	// operate on a copy so a malformed delta leaves the list untouched
	values := append([]T(nil), v.values...)
	if err := decode(data, func(p *netutil.Packet) { values = v.readOps(p, values) }); err != nil {
		return err
	}
	v.values = values
	if v.onChange != nil {
		cb := v.onChange
		v.post(func() { cb(v) })
	}
	return nil
}

func (v *List[T]) Load(data []byte) error {
	var values []T
	if err := decode(data, func(p *netutil.Packet) { values = v.readOps(p, nil) }); err != nil {
		return err
	}
	v.values = values
	return nil
}
