package storage

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/colonyworld/replica/engine/common"
	"github.com/colonyworld/replica/engine/config"
	"github.com/colonyworld/replica/engine/post"
)

func waitPosted(t *testing.T, q *post.Queue, done *bool) {
	deadline := time.Now().Add(5 * time.Second)
	for !*done {
		if time.Now().After(deadline) {
			t.Fatalf("storage callback not posted")
		}
		q.Tick()
		time.Sleep(time.Millisecond)
	}
}

func TestService(t *testing.T) {
	cfg := config.Default().Storage
	cfg.Directory = t.TempDir()
	q := post.NewQueue()
	s := NewServiceFromConfig(&cfg, q, true)
	s.Start()
	defer s.Shutdown()

	snap := &Snapshot{
		ID:           "snap",
		NextEntityID: 2,
		Entities:     []EntityRecord{{ID: 1, TypeKey: "stockpile", ParentID: common.NilEntityID, Vars: [][]byte{{1}}}},
	}

	done := false
	s.Save("manual", snap, func(err error) {
		assert.Equal(t, nil, err)
		done = true
	})
	waitPosted(t, q, &done)

	done = false
	s.Load("manual", func(loaded *Snapshot, err error) {
		assert.Equal(t, nil, err)
		assert.Equal(t, snap.Entities[0].TypeKey, loaded.Entities[0].TypeKey)
		done = true
	})
	waitPosted(t, q, &done)

	done = false
	s.Load("missing", func(loaded *Snapshot, err error) {
		assert.Equal(t, nil, err)
		assert.T(t, loaded == nil, "missing slot should load nil")
		done = true
	})
	waitPosted(t, q, &done)

	done = false
	s.List(func(slots []string, err error) {
		assert.Equal(t, []string{"manual"}, slots)
		done = true
	})
	waitPosted(t, q, &done)

	done = false
	s.Exists("manual", func(exists bool, err error) {
		assert.T(t, exists, "manual should exist")
		done = true
	})
	waitPosted(t, q, &done)
}

func TestOpenUnknownType(t *testing.T) {
	cfg := config.Default().Storage
	cfg.Type = "mysql"
	_, err := Open(&cfg, false)
	assert.T(t, err != nil, "unknown storage type should fail")
}
