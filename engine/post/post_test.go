package post

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestPost(t *testing.T) {
	var a int
	Post(func() {
		a = 1
	})
	Tick()
	if a != 1 {
		t.Errorf("t should be 1")
	}
}

func TestQueueNestedPost(t *testing.T) {
	q := NewQueue()
	var order []int
	q.Post(func() {
		order = append(order, 1)
		q.Post(func() {
			order = append(order, 3)
		})
	})
	q.Post(func() {
		order = append(order, 2)
	})
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 3, q.Tick())
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, q.Len())
}

func TestQueuePanicIsContained(t *testing.T) {
	q := NewQueue()
	ran := false
	q.Post(func() {
		panic("boom")
	})
	q.Post(func() {
		ran = true
	})
	q.Tick()
	assert.T(t, ran, "callbacks after a panicking one should still run")
}
