package common

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestEntityIDSet(t *testing.T) {
	es := EntityIDSet{}
	es.Add(3)
	es.Add(1)
	es.Add(2)
	assert.T(t, es.Contains(1), "should contain 1")
	es.Del(1)
	assert.T(t, !es.Contains(1), "should not contain 1")
	assert.Equal(t, []EntityID{2, 3}, es.ToSortedList())

	n := 0
	es.ForEach(func(eid EntityID) bool {
		n++
		return false
	})
	assert.Equal(t, 1, n)
}
