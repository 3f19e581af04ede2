package snapshotstoragemongodb

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/colonyworld/replica/engine/common"
	. "github.com/colonyworld/replica/engine/storage/storage_common"
	"github.com/colonyworld/replica/engine/uuid"
	"gopkg.in/mgo.v2"
)

func TestMongoDBSnapshotStorage(t *testing.T) {
	session, err := mgo.DialWithTimeout("mongodb://localhost:27017/replica", time.Second)
	if err != nil {
		t.Skipf("mongodb not available: %v", err)
	}
	session.Close()

	ss, err := OpenMongoDB("mongodb://localhost:27017/replica", "replica_test", "")
	if err != nil {
		t.Fatal(err)
	}
	defer ss.Close()

	slot := "test-" + uuid.GenUUID()
	snap, err := ss.Read(slot)
	assert.Equal(t, nil, err)
	assert.T(t, snap == nil, "should be nil")

	testSnap := &Snapshot{
		ID:           slot,
		NextEntityID: 4,
		Entities: []EntityRecord{
			{ID: 3, TypeKey: "stockpile", Position: common.Vector3{X: 1, Z: 2}, ParentID: common.NilEntityID, Vars: [][]byte{{9}}},
		},
	}
	assert.Equal(t, nil, ss.Write(slot, testSnap))
	verify, err := ss.Read(slot)
	assert.Equal(t, nil, err)
	assert.Equal(t, testSnap.Entities[0].Position, verify.Entities[0].Position)
	assert.Equal(t, testSnap.Entities[0].Vars, verify.Entities[0].Vars)

	exists, err := ss.Exists(slot)
	assert.T(t, err == nil && exists, "slot should exist")
}
