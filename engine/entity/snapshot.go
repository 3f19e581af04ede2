package entity

import (
	"time"

	"github.com/colonyworld/replica/engine/common"
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/colonyworld/replica/engine/gwutils"
	"github.com/colonyworld/replica/engine/opmon"
	"github.com/colonyworld/replica/engine/storage"
	"github.com/colonyworld/replica/engine/uuid"
	"github.com/pkg/errors"
)

// Snapshot returns the save state of the persistent entities in creation order.
// Authority is not saved: restored entities belong to the server.
func (s *Session) Snapshot() *storage.Snapshot {
	snap := &storage.Snapshot{
		ID:           uuid.GenUUID(),
		SessionID:    s.ID,
		SavedAt:      time.Now().UnixNano(),
		NextEntityID: s.nextEntityID,
	}

	s.entities.traverse(func(e *Entity) bool {
		if !e.IsPersistent() {
			return true
		}
		rec := storage.EntityRecord{
			ID:       e.ID,
			TypeKey:  e.TypeKey,
			Position: e.position,
			Rotation: e.rotation,
			ParentID: e.parentID,
			Vars:     make([][]byte, len(e.vars)),
		}
		for i, v := range e.vars {
			rec.Vars[i] = v.SerializeFull()
		}
		snap.Entities = append(snap.Entities, rec)
		return true
	})
	return snap
}

// Restore replaces all entities by the ones of the snapshot.
//
// Entities keep their saved IDs. OnFirstCreate is not run again, OnCreated runs for each restored entity.
// A saved parent which is not in the snapshot is cleared.
func (s *Session) Restore(snap *storage.Snapshot) error {
	if !s.IsServer() {
		return s.integrityError(common.NilEntityID, "restore on a client session")
	}
	monop := opmon.StartOperation("session.restore")
	defer monop.Finish(time.Second)

	for _, e := range s.entities.list() {
		if !e.destroyed {
			s.deleteCascade(e)
		}
	}

	restored := make([]*Entity, 0, len(snap.Entities))
	parents := map[*Entity]common.EntityID{}
	for i := range snap.Entities {
		rec := &snap.Entities[i]
		if rec.ID.IsNil() || s.entities.get(rec.ID) != nil {
			gwlog.Warnf("%s: restore: skipping %s<%s>, invalid or duplicate id", s, rec.TypeKey, rec.ID)
			continue
		}
		e, err := s.newEntityInstance(rec.TypeKey)
		if err != nil {
			gwlog.Warnf("%s: restore: skipping %s: %s", s, rec.ID, err)
			continue
		}
		e.position, e.rotation = rec.Position, rec.Rotation
		e.authority = common.ServerParticipant
		if len(rec.Vars) != len(e.vars) {
			gwlog.Warnf("%s: restore: %s<%s> saved %d variables, type declares %d", s, rec.TypeKey, rec.ID, len(rec.Vars), len(e.vars))
		}
		for vi := 0; vi < len(rec.Vars) && vi < len(e.vars); vi++ {
			if err := e.vars[vi].Load(rec.Vars[vi]); err != nil {
				gwlog.Warnf("%s: restore: %s<%s>.%s: %s", s, rec.TypeKey, rec.ID, e.vars[vi].Name(), err)
			}
		}
		s.register(e, rec.ID)
		restored = append(restored, e)
		if !rec.ParentID.IsNil() {
			parents[e] = rec.ParentID
		}
	}

	for _, e := range restored {
		pid, ok := parents[e]
		if !ok {
			continue
		}
		if s.entities.get(pid) == nil {
			gwlog.Warnf("%s: restore: parent %s of %s is not in the snapshot, cleared", s, pid, e)
			continue
		}
		s.setParent(e, pid)
	}

	if snap.NextEntityID > s.nextEntityID {
		s.nextEntityID = snap.NextEntityID
	}

	for _, e := range restored {
		if !e.destroyed {
			gwutils.RunPanicless(e.I.OnCreated)
		}
	}
	gwlog.Infof("%s: restored %d entities from snapshot %s", s, len(restored), snap.ID)
	return nil
}

// SaveTo writes the snapshot of the session to the storage slot, callback runs on the session tick
func (s *Session) SaveTo(svc *storage.Service, slot string, callback func(err error)) {
	snap := s.Snapshot()
	gwlog.Infof("%s: saving %d entities to slot %s", s, len(snap.Entities), slot)
	svc.Save(slot, snap, callback)
}

// LoadFrom restores the session from the storage slot, callback runs on the session tick
func (s *Session) LoadFrom(svc *storage.Service, slot string, callback func(err error)) {
	svc.Load(slot, func(snap *storage.Snapshot, err error) {
		if err == nil && snap == nil {
			err = errors.Errorf("slot %s has no snapshot", slot)
		}
		if err == nil {
			err = s.Restore(snap)
		}
		if callback != nil {
			callback(err)
		}
	})
}
