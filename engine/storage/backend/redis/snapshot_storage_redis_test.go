package snapshotstorageredis

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/colonyworld/replica/engine/common"
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/colonyworld/replica/engine/uuid"
	. "github.com/colonyworld/replica/engine/storage/storage_common"
)

func TestRedisSnapshotStorage(t *testing.T) {
	ss, err := OpenRedis("redis://localhost:6379", 0)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer ss.Close()
	gwlog.Infof("TestRedisSnapshotStorage: %v", ss)

	slot := "test-" + uuid.GenUUID()
	snap, err := ss.Read(slot)
	assert.Equal(t, nil, err)
	assert.T(t, snap == nil, "should be nil")

	testSnap := &Snapshot{
		ID:           slot,
		NextEntityID: 8,
		Entities: []EntityRecord{
			{ID: 7, TypeKey: "settler", Position: common.Vector3{X: 3}, ParentID: common.NilEntityID, Vars: [][]byte{{1, 2}}},
		},
	}
	assert.Equal(t, nil, ss.Write(slot, testSnap))

	verify, err := ss.Read(slot)
	assert.Equal(t, nil, err)
	assert.Equal(t, testSnap, verify)

	exists, err := ss.Exists(slot)
	assert.T(t, err == nil && exists, "slot should exist")
	slots, err := ss.List()
	assert.Equal(t, nil, err)
	found := false
	for _, s := range slots {
		found = found || s == slot
	}
	assert.T(t, found, "slot should be listed")
}
