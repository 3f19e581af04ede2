package entity

import (
	"github.com/colonyworld/replica/engine/common"
	"github.com/colonyworld/replica/engine/consts"
)

// orphanDelta is a variable delta received for an entity whose CREATE has not arrived yet
type orphanDelta struct {
	index   int
	payload []byte
	tick    uint64
}

type orphanBuffer struct {
	deltas map[common.EntityID][]orphanDelta
}

func newOrphanBuffer() *orphanBuffer {
	return &orphanBuffer{
		deltas: map[common.EntityID][]orphanDelta{},
	}
}

// add buffers a copy of the payload, it returns false if the entity already has too many buffered deltas
func (ob *orphanBuffer) add(id common.EntityID, index int, payload []byte, tick uint64) bool {
	list := ob.deltas[id]
	if len(list) >= consts.ORPHAN_DELTA_MAX_PER_ENTITY {
		return false
	}
	ob.deltas[id] = append(list, orphanDelta{
		index:   index,
		payload: append([]byte(nil), payload...),
		tick:    tick,
	})
	return true
}

// take removes and returns the buffered deltas of the entity in arrival order
func (ob *orphanBuffer) take(id common.EntityID) []orphanDelta {
	list := ob.deltas[id]
	delete(ob.deltas, id)
	return list
}

func (ob *orphanBuffer) drop(id common.EntityID) {
	delete(ob.deltas, id)
}

func (ob *orphanBuffer) reset() {
	ob.deltas = map[common.EntityID][]orphanDelta{}
}

func (ob *orphanBuffer) count() int {
	n := 0
	for _, list := range ob.deltas {
		n += len(list)
	}
	return n
}

// expire drops deltas buffered for more than ORPHAN_DELTA_TTL_TICKS and returns how many were dropped
func (ob *orphanBuffer) expire(now uint64) int {
	dropped := 0
	for id, list := range ob.deltas {
		kept := list[:0]
		for _, d := range list {
			if now-d.tick > consts.ORPHAN_DELTA_TTL_TICKS {
				dropped++
			} else {
				kept = append(kept, d)
			}
		}
		if len(kept) == 0 {
			delete(ob.deltas, id)
		} else {
			ob.deltas[id] = kept
		}
	}
	return dropped
}
