package entity

import (
	"github.com/colonyworld/replica/engine/common"
	"github.com/colonyworld/replica/engine/gwerrors"
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/colonyworld/replica/engine/gwutils"
	"github.com/colonyworld/replica/engine/metrics"
	"github.com/colonyworld/replica/engine/netutil"
	"github.com/colonyworld/replica/engine/proto"
)

// AddPeer adds an accepted connection to the server session.
//
// The peer is told its participant ID at once. It receives the snapshot of its interest when it reports
// its viewpoint.
func (s *Session) AddPeer(conn netutil.Connection) *Peer {
	if !s.IsServer() {
		gwlog.Panicf("%s: AddPeer on a client session", s)
	}

	pid := s.nextParticipant
	s.nextParticipant++
	p := newPeer(pid, proto.NewReplicaConnection(conn, s.opts.DebugPackets))
	s.peers[pid] = p
	metrics.PeerCount.Inc()
	p.conn.SendHello(pid, s.ID)
	gwlog.Infof("%s: %s connected", s, p)
	return p
}

// Peer returns the connected peer of the participant
func (s *Session) Peer(pid common.ParticipantID) *Peer {
	return s.peers[pid]
}

// Peers returns the connected peers sorted by participant ID
func (s *Session) Peers() []*Peer {
	return s.sortedPeers()
}

// PeerCount returns the number of connected peers
func (s *Session) PeerCount() int {
	return len(s.peers)
}

// Kick disconnects the participant on the next tick
func (s *Session) Kick(pid common.ParticipantID) bool {
	p := s.peers[pid]
	if p == nil {
		return false
	}
	p.Kick()
	return true
}

// dropPeer closes the connection of the peer. Entities it held authority over fall back to the server.
func (s *Session) dropPeer(p *Peer, err error) {
	if s.peers[p.ID] != p {
		return
	}
	delete(s.peers, p.ID)
	metrics.PeerCount.Dec()
	if err != nil && netutil.IsConnectionError(err) {
		metrics.Errors.WithLabelValues("transport").Inc()
		gwlog.Warnf("%s: %s disconnected: %s", s, p, err)
	} else {
		gwlog.Infof("%s: %s closed", s, p)
	}
	p.conn.Close(s.opts.Linger)
	p.interest = common.EntityIDSet{}

	s.entities.traverse(func(e *Entity) bool {
		if e.authority == p.ID {
			e.authority = common.ServerParticipant
			for _, other := range s.sortedPeers() {
				if other.interest.Contains(e.ID) {
					other.conn.SendAuthority(e.ID, e.authority)
				}
			}
		}
		return true
	})

	if s.OnPeerLeft != nil {
		gwutils.RunPanicless(func() {
			s.OnPeerLeft(p, err)
		})
	}
}

func (s *Session) handleServerMessage(p *Peer, mt proto.MsgType, pkt *netutil.Packet) error {
	switch mt {
	case proto.MT_SET_VIEWPOINT:
		p.viewpoint = pkt.ReadVector3()
		if !p.joined {
			s.sendSnapshot(p)
			p.joined = true
			if s.OnPeerJoined != nil {
				gwutils.RunPanicless(func() {
					s.OnPeerJoined(p)
				})
			}
		}
		return nil
	case proto.MT_CREATE_REQUEST:
		token, info := proto.ReadCreateRequest(pkt)
		return s.handleCreateRequest(p, token, info)
	case proto.MT_VARIABLE_DELTA:
		id, index, payload := proto.ReadVariableDelta(pkt)
		e, err := s.authorizedEntity(p, id)
		if err != nil {
			return err
		}
		if err := s.applyDelta(e, index, payload); err != nil {
			return err
		}
		s.relay(p, e, func(other *Peer) {
			other.conn.SendVariableDelta(id, index, payload)
		})
		return nil
	case proto.MT_TRANSFORM:
		id := pkt.ReadEntityID()
		pos, rot := pkt.ReadVector3(), pkt.ReadVector3()
		e, err := s.authorizedEntity(p, id)
		if err != nil {
			return err
		}
		e.position, e.rotation = pos, rot
		s.relay(p, e, func(other *Peer) {
			other.conn.SendTransform(id, pos, rot)
		})
		return nil
	case proto.MT_SET_PARENT:
		id, parentID := pkt.ReadEntityID(), pkt.ReadEntityID()
		e, err := s.authorizedEntity(p, id)
		if err != nil {
			return err
		}
		if !parentID.IsNil() {
			parent := s.entities.get(parentID)
			if parent == nil {
				return gwerrors.NewProtocolError(id, "set parent to unknown entity %s", parentID)
			}
			for anc := parent; anc != nil; anc = anc.Parent() {
				if anc == e {
					return gwerrors.NewProtocolError(id, "set parent to %s makes a cycle", parentID)
				}
			}
		}
		s.setParent(e, parentID)
		s.relay(p, e, func(other *Peer) {
			other.conn.SendSetParent(id, parentID)
		})
		return nil
	case proto.MT_DELETE_REQUEST:
		id := pkt.ReadEntityID()
		e, err := s.authorizedEntity(p, id)
		if err != nil {
			return err
		}
		p.interest.Del(id) // the requester deleted it already
		s.deleteCascade(e)
		return nil
	default:
		return unexpectedMessage(mt)
	}
}

// authorizedEntity returns the entity if the peer holds authority over it
func (s *Session) authorizedEntity(p *Peer, id common.EntityID) (*Entity, error) {
	e := s.entities.get(id)
	if e == nil {
		if id >= 0 && id < s.nextEntityID {
			// deleted while the message was in flight
			return nil, gwerrors.NewTransientProtocolError(id, "entity is gone")
		}
		return nil, gwerrors.NewProtocolError(id, "entity was never created")
	}
	if e.authority != p.ID {
		return nil, gwerrors.NewProtocolError(id, "%s does not hold authority over %s (held by %s)", p.ID, e, e.authority)
	}
	return e, nil
}

// relay forwards an update received from the authority holder to the other peers knowing the entity
func (s *Session) relay(from *Peer, e *Entity, send func(other *Peer)) {
	for _, other := range s.sortedPeers() {
		if other != from && other.joined && other.interest.Contains(e.ID) {
			send(other)
		}
	}
}

// handleCreateRequest registers an entity created by a client. A refused request is answered with a nil ID
// so the client stops waiting for it.
func (s *Session) handleCreateRequest(p *Peer, token uint32, info *proto.CreateInfo) error {
	if !p.createLimiter.Allow() {
		p.conn.SendCreateAck(token, common.NilEntityID)
		return gwerrors.NewProtocolError(common.NilEntityID, "create request rate exceeded")
	}

	e, err := s.newEntityInstance(info.TypeKey)
	if err != nil {
		p.conn.SendCreateAck(token, common.NilEntityID)
		return err
	}
	e.position, e.rotation = info.Position, info.Rotation
	e.parentID = info.ParentID // an unknown parent makes it an orphan, collected during this tick
	e.authority = p.ID
	s.register(e, s.nextEntityID)
	p.interest.Add(e.ID)
	p.conn.SendCreateAck(token, e.ID)
	gwlog.Debugf("%s: created %s for %s at %s", s, e, p, e.position)

	s.events.Post(func() {
		if !e.destroyed {
			e.I.OnCreated()
		}
	})
	return nil
}
