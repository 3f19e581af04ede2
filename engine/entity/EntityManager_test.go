package entity

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/colonyworld/replica/engine/common"
)

func TestCreationOrder(t *testing.T) {
	server := newTestServer()
	ids := []common.EntityID{}
	for i := 0; i < 10; i++ {
		ids = append(ids, mustCreate(t, server, "crate", Vector3{}, nil).ID)
	}
	assert.Equal(t, nil, server.Delete(crateEntity(server, ids[3])))
	assert.Equal(t, nil, server.Delete(crateEntity(server, ids[7])))

	var visited []common.EntityID
	server.ForEachEntity(func(e *Entity) bool {
		visited = append(visited, e.ID)
		return true
	})
	expected := append(append(append([]common.EntityID{}, ids[:3]...), ids[4:7]...), ids[8:]...)
	assert.Equal(t, expected, visited)

	n := 0
	server.ForEachEntity(func(e *Entity) bool {
		n++
		return n < 2
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, 8, server.EntityCountByType("crate"))
}

func TestChildrenIndex(t *testing.T) {
	em := newEntityManager()
	em.addChild(1, 3)
	em.addChild(1, 2)
	assert.Equal(t, []common.EntityID{2, 3}, em.childrenOf(1).ToSortedList())
	em.removeChild(1, 2)
	em.removeChild(1, 3)
	assert.Equal(t, 0, len(em.childrenOf(1)))
	assert.Equal(t, 0, len(em.children))
}

func crateEntity(s *Session, id common.EntityID) *Entity {
	e, _ := s.Lookup(id)
	return e
}
