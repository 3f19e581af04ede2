// Package syncvar implements the typed variables replicated between sessions.
//
// A variable is addressed on the wire by its index inside the owning entity, so every
// participant must declare the variables of a type in the same order. Local writes mark
// the variable dirty; the owner serializes the delta once per tick. Received deltas
// update the value and post the change callback to the owner's pending events queue.
package syncvar

import (
	"time"

	"github.com/colonyworld/replica/engine/gwutils"
	"github.com/colonyworld/replica/engine/netutil"
	"github.com/pkg/errors"
)

// Owner is notified by the variables it declared
type Owner interface {
	// VarDirty is called when the variable at index turns dirty
	VarDirty(index int)
	// PostEvent queues a change callback to run on the next events drain
	PostEvent(f func())
}

// Var is the interface of all replicated variables
type Var interface {
	Index() int
	Name() string
	Bind(owner Owner, index int, name string)
	IsDirty() bool
	// SerializeDelta returns the changes since the last call and clears the dirty flag
	SerializeDelta() []byte
	// SerializeFull returns the whole value, for snapshots and saves
	SerializeFull() []byte
	// ApplyDelta applies a payload produced by SerializeDelta or SerializeFull and posts the change callback
	ApplyDelta(data []byte) error
	// Load sets the value from a SerializeFull payload immediately, without callbacks or interpolation
	Load(data []byte) error
}

// Interpolated is implemented by variables which move toward received values over several ticks
type Interpolated interface {
	Var
	Interpolate(dt time.Duration)
	Settled() bool
}

type base struct {
	owner Owner
	index int
	name  string
	dirty bool
}

func (b *base) Index() int {
	return b.index
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Bind(owner Owner, index int, name string) {
	b.owner = owner
	b.index = index
	b.name = name
}

func (b *base) IsDirty() bool {
	return b.dirty
}

func (b *base) markDirty() {
	if b.dirty {
		return
	}
	b.dirty = true
	if b.owner != nil {
		b.owner.VarDirty(b.index)
	}
}

func (b *base) post(f func()) {
	if b.owner != nil {
		b.owner.PostEvent(f)
	} else {
		f()
	}
}

func encode(write func(p *netutil.Packet)) []byte {
	p := netutil.NewPacket()
	write(p)
	data := append([]byte(nil), p.Payload()...)
	p.Release()
	return data
}

func decode(data []byte, read func(p *netutil.Packet)) error {
	p := netutil.NewPacketWithPayload(data)
	defer p.Release()

	if err := gwutils.CatchPanic(func() {
		read(p)
	}); err != nil {
		return errors.Wrap(err, "malformed variable payload")
	}
	if p.HasUnreadPayload() {
		return errors.Errorf("malformed variable payload: %d trailing bytes", len(p.UnreadPayload()))
	}
	return nil
}
