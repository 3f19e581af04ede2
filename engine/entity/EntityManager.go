package entity

import (
	"github.com/colonyworld/replica/engine/common"
	"github.com/petar/GoLLRB/llrb"
)

// creationOrderItem orders entities by registration sequence in the creation index
type creationOrderItem struct {
	seq    uint64
	entity *Entity
}

func (it creationOrderItem) Less(than llrb.Item) bool {
	return it.seq < than.(creationOrderItem).seq
}

// _EntityManager indexes the registered entities of one session
type _EntityManager struct {
	entities       EntityMap
	entitiesByType map[string]EntityMap
	creationOrder  *llrb.LLRB
	children       map[common.EntityID]common.EntityIDSet
	lastSeq        uint64
}

func newEntityManager() *_EntityManager {
	return &_EntityManager{
		entities:       EntityMap{},
		entitiesByType: map[string]EntityMap{},
		creationOrder:  llrb.New(),
		children:       map[common.EntityID]common.EntityIDSet{},
	}
}

func (em *_EntityManager) put(entity *Entity) {
	em.lastSeq++
	entity.createSeq = em.lastSeq
	em.entities.Add(entity)
	etype := entity.TypeKey
	eid := entity.ID
	if entities, ok := em.entitiesByType[etype]; ok {
		entities.Add(entity)
	} else {
		em.entitiesByType[etype] = EntityMap{eid: entity}
	}
	em.creationOrder.ReplaceOrInsert(creationOrderItem{seq: entity.createSeq, entity: entity})
	if !entity.parentID.IsNil() {
		em.addChild(entity.parentID, eid)
	}
}

func (em *_EntityManager) del(e *Entity) {
	eid := e.ID
	em.entities.Del(eid)
	if entities, ok := em.entitiesByType[e.TypeKey]; ok {
		entities.Del(eid)
	}
	em.creationOrder.Delete(creationOrderItem{seq: e.createSeq})
	if !e.parentID.IsNil() {
		em.removeChild(e.parentID, eid)
	}
}

func (em *_EntityManager) get(id common.EntityID) *Entity {
	return em.entities.Get(id)
}

func (em *_EntityManager) count() int {
	return len(em.entities)
}

func (em *_EntityManager) countByType(etype string) int {
	return len(em.entitiesByType[etype])
}

func (em *_EntityManager) traverseByType(etype string, cb func(e *Entity)) {
	entities := em.entitiesByType[etype]
	for _, e := range entities {
		cb(e)
	}
}

// traverse visits entities in creation order until cb returns false
func (em *_EntityManager) traverse(cb func(e *Entity) bool) {
	em.creationOrder.AscendGreaterOrEqual(creationOrderItem{seq: 0}, func(item llrb.Item) bool {
		return cb(item.(creationOrderItem).entity)
	})
}

// list returns all entities in creation order, safe to use while entities are deleted
func (em *_EntityManager) list() []*Entity {
	entities := make([]*Entity, 0, len(em.entities))
	em.traverse(func(e *Entity) bool {
		entities = append(entities, e)
		return true
	})
	return entities
}

func (em *_EntityManager) addChild(parent, child common.EntityID) {
	children, ok := em.children[parent]
	if !ok {
		children = common.EntityIDSet{}
		em.children[parent] = children
	}
	children.Add(child)
}

func (em *_EntityManager) removeChild(parent, child common.EntityID) {
	if children, ok := em.children[parent]; ok {
		children.Del(child)
		if len(children) == 0 {
			delete(em.children, parent)
		}
	}
}

func (em *_EntityManager) childrenOf(parent common.EntityID) common.EntityIDSet {
	return em.children[parent]
}
