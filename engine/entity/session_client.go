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

// Attach connects the client session to the server over conn. The current viewpoint is reported first,
// the server answers with the snapshot of the entities around it.
func (s *Session) Attach(conn netutil.Connection) error {
	if s.IsServer() {
		return s.integrityError(common.NilEntityID, "Attach on the server session")
	}
	if s.server != nil {
		return s.integrityError(common.NilEntityID, "already attached to %s", s.server)
	}

	s.server = newPeer(common.ServerParticipant, proto.NewReplicaConnection(conn, s.opts.DebugPackets))
	s.snapshotDone = false
	s.server.conn.SendSetViewpoint(s.viewpoint)
	gwlog.Infof("%s: attached to %s", s, s.server.RemoteAddr())
	return nil
}

// IsAttached returns if the client is connected to the server
func (s *Session) IsAttached() bool {
	return s.server != nil
}

// SnapshotDone returns if the initial snapshot from the server is complete
func (s *Session) SnapshotDone() bool {
	return s.snapshotDone
}

// Viewpoint returns the client viewpoint
func (s *Session) Viewpoint() Vector3 {
	return s.viewpoint
}

// SetViewpoint moves the client viewpoint, the server updates the interest set on its next tick
func (s *Session) SetViewpoint(pos Vector3) {
	if s.IsServer() {
		gwlog.Warnf("%s: SetViewpoint on the server session is ignored", s)
		return
	}
	s.viewpoint = pos
	if s.server != nil {
		s.server.conn.SendSetViewpoint(pos)
	}
}

// PendingCreates returns the number of create requests waiting for the server
func (s *Session) PendingCreates() int {
	return len(s.pendingCreates)
}

// detach closes the connection to the server and forgets all entities
func (s *Session) detach(err error) {
	p := s.server
	if p == nil {
		return
	}
	s.server = nil
	if err != nil && netutil.IsConnectionError(err) {
		metrics.Errors.WithLabelValues("transport").Inc()
		gwlog.Warnf("%s: disconnected from %s: %s", s, p.RemoteAddr(), err)
	} else {
		gwlog.Infof("%s: detached from %s", s, p.RemoteAddr())
	}
	p.conn.Close(s.opts.Linger)

	for _, e := range s.entities.list() {
		s.forget(e, false)
	}
	for token, e := range s.pendingCreates {
		e.destroyed = true
		delete(s.pendingCreates, token)
	}
	s.dirty = EntitySet{}
	s.orphans.reset()
	s.participant = common.NoParticipant
	s.snapshotDone = false

	if s.OnDisconnected != nil {
		cb := s.OnDisconnected
		s.events.Post(func() {
			cb(err)
		})
	}
}

// forget removes the entity locally and posts OnForget
func (s *Session) forget(e *Entity, deleted bool) {
	s.unregister(e, deleted)
	s.events.Post(func() {
		e.I.OnForget(deleted)
	})
}

func (s *Session) handleClientMessage(p *Peer, mt proto.MsgType, pkt *netutil.Packet) error {
	switch mt {
	case proto.MT_HELLO:
		s.participant = pkt.ReadParticipantID()
		s.ID = pkt.ReadVarStr()
		for _, e := range s.pendingCreates {
			e.authority = s.participant
		}
		gwlog.Infof("%s: joined session %s", s, s.ID)
		return nil
	case proto.MT_CREATE:
		return s.handleCreate(proto.ReadCreate(pkt))
	case proto.MT_CREATE_ACK:
		token, id := pkt.ReadUint32(), pkt.ReadEntityID()
		return s.handleCreateAck(token, id)
	case proto.MT_VARIABLE_DELTA:
		id, index, payload := proto.ReadVariableDelta(pkt)
		e := s.entities.get(id)
		if e == nil {
			if !s.orphans.add(id, index, payload, s.tickCount) {
				return gwerrors.NewProtocolError(id, "too many deltas for an entity never created")
			}
			return nil
		}
		if e.IsAuthoritative() {
			return gwerrors.NewTransientProtocolError(id, "delta for an entity held locally")
		}
		return s.applyDelta(e, index, payload)
	case proto.MT_FORGET:
		id, deleted := pkt.ReadEntityID(), pkt.ReadBool()
		if e := s.entities.get(id); e != nil {
			s.forget(e, deleted)
		} else {
			s.orphans.drop(id)
		}
		return nil
	case proto.MT_SNAPSHOT_DONE:
		s.snapshotDone = true
		gwlog.Infof("%s: snapshot done, %d entities", s, s.entities.count())
		if s.OnSnapshotDone != nil {
			s.events.Post(s.OnSnapshotDone)
		}
		return nil
	case proto.MT_TRANSFORM:
		id := pkt.ReadEntityID()
		pos, rot := pkt.ReadVector3(), pkt.ReadVector3()
		e := s.entities.get(id)
		if e == nil {
			return gwerrors.NewTransientProtocolError(id, "transform of unknown entity")
		}
		e.position, e.rotation = pos, rot
		return nil
	case proto.MT_SET_PARENT:
		id, parentID := pkt.ReadEntityID(), pkt.ReadEntityID()
		e := s.entities.get(id)
		if e == nil {
			return gwerrors.NewTransientProtocolError(id, "set parent of unknown entity")
		}
		s.setParent(e, parentID)
		return nil
	case proto.MT_AUTHORITY:
		id, holder := pkt.ReadEntityID(), pkt.ReadParticipantID()
		e := s.entities.get(id)
		if e == nil {
			return gwerrors.NewTransientProtocolError(id, "authority of unknown entity")
		}
		e.authority = holder
		return nil
	default:
		return unexpectedMessage(mt)
	}
}

func (s *Session) handleCreate(info *proto.CreateInfo) error {
	if info.ID.IsNil() {
		return gwerrors.NewProtocolError(info.ID, "create without id")
	}
	if s.entities.get(info.ID) != nil {
		return gwerrors.NewProtocolError(info.ID, "create of known entity")
	}

	e, err := s.newEntityInstance(info.TypeKey)
	if err != nil {
		return err
	}
	e.position, e.rotation = info.Position, info.Rotation
	e.parentID = info.ParentID
	e.authority = info.Authority
	s.register(e, info.ID)

	for _, d := range s.orphans.take(info.ID) {
		if err := s.applyDelta(e, d.index, d.payload); err != nil {
			gwlog.Warnf("%s: buffered delta dropped: %s", s, err)
		}
	}

	s.events.Post(func() {
		if !e.destroyed {
			e.I.OnCreated()
		}
	})
	return nil
}

func (s *Session) handleCreateAck(token uint32, id common.EntityID) error {
	e := s.pendingCreates[token]
	if e == nil {
		return gwerrors.NewProtocolError(id, "unknown create token %d", token)
	}
	delete(s.pendingCreates, token)

	if id.IsNil() {
		// refused by the server
		s.dirty.Del(e)
		if e.destroyed {
			return nil
		}
		e.destroyed = true
		gwlog.Warnf("%s: create of %s refused by the server", s, e)
		s.events.Post(func() {
			e.I.OnForget(true)
		})
		return nil
	}

	if e.destroyed {
		// deleted before the server assigned the id
		e.ID = id
		s.server.conn.SendDeleteRequest(id)
		return nil
	}

	s.register(e, id)
	gwlog.Debugf("%s: %s registered", s, e)
	gwutils.RunPanicless(e.I.OnFirstCreate)
	if !e.destroyed {
		gwutils.RunPanicless(e.I.OnCreated)
	}
	return nil
}
