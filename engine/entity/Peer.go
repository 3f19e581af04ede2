package entity

import (
	"fmt"
	"net"

	"github.com/colonyworld/replica/engine/common"
	"github.com/colonyworld/replica/engine/consts"
	"github.com/colonyworld/replica/engine/proto"
	"golang.org/x/time/rate"
)

// Peer is the remote participant at the other end of one connection.
//
// On the server there is one Peer per connected client, holding the client's viewpoint and interest set.
// On a client the only Peer is the server.
type Peer struct {
	ID   common.ParticipantID
	conn *proto.ReplicaConnection

	viewpoint     Vector3
	joined        bool
	interest      common.EntityIDSet
	errorBudget   *rate.Limiter
	createLimiter *rate.Limiter
	kicked        bool
}

func newPeer(id common.ParticipantID, conn *proto.ReplicaConnection) *Peer {
	return &Peer{
		ID:            id,
		conn:          conn,
		interest:      common.EntityIDSet{},
		errorBudget:   rate.NewLimiter(consts.PROTOCOL_ERROR_RATE, consts.PROTOCOL_ERROR_BURST),
		createLimiter: rate.NewLimiter(consts.CREATE_REQUEST_RATE, consts.CREATE_REQUEST_BURST),
	}
}

func (p *Peer) String() string {
	return fmt.Sprintf("Peer<%s@%s>", p.ID, p.RemoteAddr())
}

// Viewpoint returns the last viewpoint reported by the peer
func (p *Peer) Viewpoint() Vector3 {
	return p.viewpoint
}

// Joined returns if the peer has reported its viewpoint and received the initial snapshot
func (p *Peer) Joined() bool {
	return p.joined
}

// Knows returns if the entity is in the peer's interest set
func (p *Peer) Knows(id common.EntityID) bool {
	return p.interest.Contains(id)
}

// InterestCount returns the size of the peer's interest set
func (p *Peer) InterestCount() int {
	return len(p.interest)
}

// InterestList returns the entity IDs in the peer's interest set
func (p *Peer) InterestList() []common.EntityID {
	return p.interest.ToSortedList()
}

// RemoteAddr returns the address of the peer
func (p *Peer) RemoteAddr() net.Addr {
	return p.conn.RemoteAddr()
}

// QueuedBytes returns the bytes waiting to be flushed to the peer
func (p *Peer) QueuedBytes() int {
	return p.conn.QueuedBytes()
}

// Kick disconnects the peer on the next tick
func (p *Peer) Kick() {
	p.kicked = true
}
