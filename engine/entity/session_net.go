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

// receive handles all messages received since the last tick
func (s *Session) receive() {
	if s.IsServer() {
		for _, p := range s.sortedPeers() {
			s.receiveFrom(p)
		}
	} else if s.server != nil {
		s.receiveFrom(s.server)
	}
}

func (s *Session) isConnected(p *Peer) bool {
	if s.IsServer() {
		return s.peers[p.ID] == p
	}
	return s.server == p
}

func (s *Session) receiveFrom(p *Peer) {
	if p.kicked {
		s.disconnect(p, nil)
		return
	}

	packets, msgtypes, err := p.conn.Recv()
	for i, pkt := range packets {
		if s.isConnected(p) {
			s.handlePacket(p, msgtypes[i], pkt)
		}
		pkt.Release()
	}
	if err != nil && s.isConnected(p) {
		s.disconnect(p, err)
	}
}

func (s *Session) handlePacket(p *Peer, mt proto.MsgType, pkt *netutil.Packet) {
	var err error
	if perr := gwutils.CatchPanic(func() {
		if s.IsServer() {
			err = s.handleServerMessage(p, mt, pkt)
		} else {
			err = s.handleClientMessage(p, mt, pkt)
		}
	}); perr != nil {
		err = gwerrors.NewProtocolError(common.NilEntityID, "malformed %s: %v", mt, perr)
	}
	if err != nil {
		s.protocolError(p, mt, err)
	}
}

// protocolError drops the offending message and disconnects the peer when its error budget is exhausted
func (s *Session) protocolError(p *Peer, mt proto.MsgType, err error) {
	if gwerrors.IsTransient(err) {
		gwlog.Debugf("%s: %s from %s ignored: %s", s, mt, p, err)
		return
	}

	metrics.Errors.WithLabelValues("protocol").Inc()
	gwlog.Warnf("%s: %s from %s dropped: %s", s, mt, p, err)
	if !p.errorBudget.Allow() {
		gwlog.Errorf("%s: %s exhausted its protocol error budget, disconnecting", s, p)
		s.disconnect(p, err)
	}
}

func (s *Session) disconnect(p *Peer, err error) {
	if s.IsServer() {
		s.dropPeer(p, err)
	} else {
		s.detach(err)
	}
}

func (s *Session) flushConnections() {
	if s.IsServer() {
		for _, p := range s.sortedPeers() {
			if err := p.conn.Flush(); err != nil {
				s.dropPeer(p, err)
			}
		}
	} else if s.server != nil {
		if err := s.server.conn.Flush(); err != nil {
			s.detach(err)
		}
	}
}

func unexpectedMessage(mt proto.MsgType) error {
	return gwerrors.NewProtocolError(common.NilEntityID, "unexpected message %s", mt)
}

func (s *Session) applyDelta(e *Entity, index int, payload []byte) error {
	if index < 0 || index >= len(e.vars) {
		return gwerrors.NewProtocolError(e.ID, "variable index %d out of range, %s has %d variables", index, e.TypeKey, len(e.vars))
	}
	if err := e.vars[index].ApplyDelta(payload); err != nil {
		return gwerrors.NewProtocolError(e.ID, "variable %s: %s", e.vars[index].Name(), err)
	}
	return nil
}
