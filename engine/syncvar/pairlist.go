package syncvar

import (
	"github.com/colonyworld/replica/engine/netutil"
	"github.com/pkg/errors"
)

// Pair is one entry of a PairList
type Pair[K comparable, V any] struct {
	Key   K
	Value V
}

// PairList is a replicated list of key value pairs kept in insertion order.
// Add, Remove and Clear each serialize as a single structural delta.
type PairList[K comparable, V any] struct {
	base
	pairs    []Pair[K, V]
	ops      []listOp[Pair[K, V]]
	onChange func(l *PairList[K, V])
}

// NewPairList creates an empty PairList
func NewPairList[K comparable, V any]() *PairList[K, V] {
	return &PairList[K, V]{}
}

// OnChange sets the callback invoked after a received delta is applied
func (v *PairList[K, V]) OnChange(cb func(l *PairList[K, V])) *PairList[K, V] {
	v.onChange = cb
	return v
}

// Len returns the number of pairs
func (v *PairList[K, V]) Len() int {
	return len(v.pairs)
}

// Pairs returns a copy of all pairs
func (v *PairList[K, V]) Pairs() []Pair[K, V] {
	return append([]Pair[K, V](nil), v.pairs...)
}

// Get returns the value of key
func (v *PairList[K, V]) Get(key K) (V, bool) {
	if i := indexOfKey(v.pairs, key); i >= 0 {
		return v.pairs[i].Value, true
	}
	var zero V
	return zero, false
}

// Add sets the value of key, appending a new pair if the key is absent
func (v *PairList[K, V]) Add(key K, val V) {
	v.pairs = addPair(v.pairs, key, val)
	v.record(listOp[Pair[K, V]]{kind: _OP_ADD, value: Pair[K, V]{key, val}})
}

// Remove removes the pair of key, it returns false if the key is absent
func (v *PairList[K, V]) Remove(key K) bool {
	i := indexOfKey(v.pairs, key)
	if i < 0 {
		return false
	}
	v.pairs = append(v.pairs[:i], v.pairs[i+1:]...)
	v.record(listOp[Pair[K, V]]{kind: _OP_REMOVE, value: Pair[K, V]{Key: key}})
	return true
}

// Clear removes all pairs
func (v *PairList[K, V]) Clear() {
	v.pairs = nil
	v.ops = v.ops[:0]
	v.record(listOp[Pair[K, V]]{kind: _OP_CLEAR})
}

func (v *PairList[K, V]) record(op listOp[Pair[K, V]]) {
	v.ops = append(v.ops, op)
	v.markDirty()
}

func indexOfKey[K comparable, V any](pairs []Pair[K, V], key K) int {
	for i := range pairs {
		if pairs[i].Key == key {
			return i
		}
	}
	return -1
}

func addPair[K comparable, V any](pairs []Pair[K, V], key K, val V) []Pair[K, V] {
	if i := indexOfKey(pairs, key); i >= 0 {
		pairs[i].Value = val
		return pairs
	}
	return append(pairs, Pair[K, V]{key, val})
}

func (v *PairList[K, V]) SerializeDelta() []byte {
	defer func() {
		v.dirty = false
		v.ops = v.ops[:0]
	}()
	if len(v.ops) > len(v.pairs)+1 {
		return v.SerializeFull()
	}
	return encode(func(p *netutil.Packet) {
		p.AppendUvarint(uint64(len(v.ops)))
		for _, op := range v.ops {
			p.AppendByte(op.kind)
			switch op.kind {
			case _OP_ADD:
				p.AppendData(op.value.Key)
				p.AppendData(op.value.Value)
			case _OP_REMOVE:
				p.AppendData(op.value.Key)
			}
		}
	})
}

func (v *PairList[K, V]) SerializeFull() []byte {
	return encode(func(p *netutil.Packet) {
		p.AppendUvarint(1)
		p.AppendByte(_OP_FULL)
		p.AppendUvarint(uint64(len(v.pairs)))
		for _, pair := range v.pairs {
			p.AppendData(pair.Key)
			p.AppendData(pair.Value)
		}
	})
}

func readPairOps[K comparable, V any](p *netutil.Packet, pairs []Pair[K, V]) []Pair[K, V] {
	nops := p.ReadUvarint()
	for i := uint64(0); i < nops; i++ {
		switch kind := p.ReadOneByte(); kind {
		case _OP_FULL:
			n := p.ReadUvarint()
			if n > uint64(len(p.UnreadPayload())) {
				panic(errors.Wrapf(netutil.ErrPacketTooShort, "pair list of length %d", n))
			}
			pairs = make([]Pair[K, V], n)
			for j := range pairs {
				p.ReadData(&pairs[j].Key)
				p.ReadData(&pairs[j].Value)
			}
		case _OP_ADD:
			var key K
			var val V
			p.ReadData(&key)
			p.ReadData(&val)
			pairs = addPair(pairs, key, val)
		case _OP_REMOVE:
			var key K
			p.ReadData(&key)
			if j := indexOfKey(pairs, key); j >= 0 {
				pairs = append(pairs[:j], pairs[j+1:]...)
			}
		case _OP_CLEAR:
			pairs = nil
		default:
			panic(errors.Errorf("unknown pair list operation %d", kind))
		}
	}
	return pairs
}

func (v *PairList[K, V]) ApplyDelta(data []byte) error {
	pairs := append([]Pair[K, V](nil), v.pairs...)
	if err := decode(data, func(p *netutil.Packet) { pairs = readPairOps(p, pairs) }); err != nil {
		return err
	}
	v.pairs = pairs
	if v.onChange != nil {
		cb := v.onChange
		v.post(func() { cb(v) })
	}
	return nil
}

func (v *PairList[K, V]) Load(data []byte) error {
	var pairs []Pair[K, V]
	if err := decode(data, func(p *netutil.Packet) { pairs = readPairOps[K, V](p, nil) }); err != nil {
		return err
	}
	v.pairs = pairs
	return nil
}
