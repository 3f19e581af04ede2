package syncvar

import (
	"sort"

	"github.com/colonyworld/replica/engine/netutil"
	"github.com/pkg/errors"
)

// Counts is a replicated string to integer multiset.
// A delta carries only the new counts of the keys changed since the last delta; a count of 0 removes the key.
type Counts struct {
	base
	counts   map[string]int64
	changed  map[string]struct{}
	reset    bool
	onChange func(key string, old, new int64)
}

// NewCounts creates an empty Counts
func NewCounts() *Counts {
	return &Counts{
		counts:  map[string]int64{},
		changed: map[string]struct{}{},
	}
}

// OnChange sets the callback invoked for each key changed by a received delta
func (v *Counts) OnChange(cb func(key string, old, new int64)) *Counts {
	v.onChange = cb
	return v
}

// Get returns the count of key, 0 if absent
func (v *Counts) Get(key string) int64 {
	return v.counts[key]
}

// Len returns the number of keys with a non-zero count
func (v *Counts) Len() int {
	return len(v.counts)
}

// Total returns the sum of all counts
func (v *Counts) Total() int64 {
	var total int64
	for _, n := range v.counts {
		total += n
	}
	return total
}

// Keys returns the keys with non-zero count in ascending order
func (v *Counts) Keys() []string {
	keys := make([]string, 0, len(v.counts))
	for k := range v.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set sets the count of key, 0 removes the key
func (v *Counts) Set(key string, n int64) {
	if v.counts[key] == n {
		return
	}
	if n == 0 {
		delete(v.counts, key)
	} else {
		v.counts[key] = n
	}
	v.changed[key] = struct{}{}
	v.markDirty()
}

// Add adds delta to the count of key and returns the new count
func (v *Counts) Add(key string, delta int64) int64 {
	n := v.counts[key] + delta
	v.Set(key, n)
	return n
}

// Inc increases the count of key by 1
func (v *Counts) Inc(key string) int64 {
	return v.Add(key, 1)
}

// Dec decreases the count of key by 1
func (v *Counts) Dec(key string) int64 {
	return v.Add(key, -1)
}

// Clear removes all keys
func (v *Counts) Clear() {
	v.counts = map[string]int64{}
	v.changed = map[string]struct{}{}
	v.reset = true
	v.markDirty()
}

func (v *Counts) SerializeDelta() []byte {
	keys := make([]string, 0, len(v.changed))
	for k := range v.changed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data := v.serialize(v.reset, keys)
	v.dirty = false
	v.reset = false
	v.changed = map[string]struct{}{}
	return data
}

func (v *Counts) SerializeFull() []byte {
	return v.serialize(true, v.Keys())
}

func (v *Counts) serialize(reset bool, keys []string) []byte {
	return encode(func(p *netutil.Packet) {
		p.AppendBool(reset)
		p.AppendUvarint(uint64(len(keys)))
		for _, k := range keys {
			p.AppendVarStr(k)
			p.AppendVarint(v.counts[k])
		}
	})
}

type countChange struct {
	key      string
	old, new int64
}

func readCounts(p *netutil.Packet, current map[string]int64) (map[string]int64, []countChange) {
	reset := p.ReadBool()
	n := p.ReadUvarint()
	if n > uint64(len(p.UnreadPayload())) {
		panic(errors.Wrapf(netutil.ErrPacketTooShort, "counts of length %d", n))
	}
	updated := make(map[string]int64, len(current))
	if !reset {
		for k, c := range current {
			updated[k] = c
		}
	}
	for i := uint64(0); i < n; i++ {
		k := p.ReadVarStr()
		c := p.ReadVarint()
		if c == 0 {
			delete(updated, k)
		} else {
			updated[k] = c
		}
	}

	var changes []countChange
	for k, c := range updated {
		if current[k] != c {
			changes = append(changes, countChange{k, current[k], c})
		}
	}
	for k, c := range current {
		if _, ok := updated[k]; !ok {
			changes = append(changes, countChange{k, c, 0})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].key < changes[j].key })
	return updated, changes
}

func (v *Counts) ApplyDelta(data []byte) error {
	var updated map[string]int64
	var changes []countChange
	if err := decode(data, func(p *netutil.Packet) { updated, changes = readCounts(p, v.counts) }); err != nil {
		return err
	}
	v.counts = updated
	if v.onChange != nil {
		cb := v.onChange
		for _, c := range changes {
			c := c
			v.post(func() { cb(c.key, c.old, c.new) })
		}
	}
	return nil
}

func (v *Counts) Load(data []byte) error {
	return decode(data, func(p *netutil.Packet) { v.counts, _ = readCounts(p, nil) })
}
