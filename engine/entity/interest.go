package entity

import (
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/colonyworld/replica/engine/metrics"
)

// inInterest returns if the peer should know the entity: it is inside the type's network radius around the
// peer's viewpoint, or the peer holds authority over it
func (s *Session) inInterest(p *Peer, e *Entity) bool {
	return e.authority == p.ID || e.typeDesc.inRadius(p.viewpoint, e.position)
}

// updateInterest sends CREATE for entities entering and FORGET for entities leaving each peer's interest
func (s *Session) updateInterest() {
	peers := s.sortedPeers()
	if len(peers) == 0 {
		return
	}

	entities := s.entities.list()
	for _, p := range peers {
		if !p.joined {
			continue
		}
		for _, e := range entities {
			in := s.inInterest(p, e)
			known := p.interest.Contains(e.ID)
			if in && !known {
				s.enterInterest(p, e)
			} else if !in && known {
				s.leaveInterest(p, e)
			}
		}
	}
}

// enterInterest sends CREATE followed by the full state of every variable.
// Pending deltas go to the current audience first so the new peer does not apply them on top of the full state.
func (s *Session) enterInterest(p *Peer, e *Entity) {
	if s.dirty.Contains(e) {
		s.flushEntity(e)
	}
	p.interest.Add(e.ID)
	p.conn.SendCreate(s.createInfo(e))
	for _, v := range e.vars {
		p.conn.SendVariableDelta(e.ID, v.Index(), v.SerializeFull())
	}
	metrics.InterestChanges.WithLabelValues("enter").Inc()
	if s.opts.DebugInterest {
		gwlog.Debugf("%s: %s enters interest of %s", s, e, p)
	}
}

func (s *Session) leaveInterest(p *Peer, e *Entity) {
	p.interest.Del(e.ID)
	p.conn.SendForget(e.ID, false)
	metrics.InterestChanges.WithLabelValues("leave").Inc()
	if s.opts.DebugInterest {
		gwlog.Debugf("%s: %s leaves interest of %s", s, e, p)
	}
}

// sendSnapshot sends every entity in the peer's interest in creation order, then SNAPSHOT_DONE
func (s *Session) sendSnapshot(p *Peer) {
	n := 0
	s.entities.traverse(func(e *Entity) bool {
		if s.inInterest(p, e) {
			s.enterInterest(p, e)
			n++
		}
		return true
	})
	p.conn.SendSnapshotDone()
	gwlog.Infof("%s: sent snapshot of %d entities to %s at %s", s, n, p, p.viewpoint)
}
