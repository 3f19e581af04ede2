package snapshotstoragefilesystem

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/colonyworld/replica/engine/common"
	. "github.com/colonyworld/replica/engine/storage/storage_common"
)

func TestFileSystemSnapshotStorage(t *testing.T) {
	ss, err := OpenDirectory(t.TempDir(), true)
	if err != nil {
		t.Fatal(err)
	}
	defer ss.Close()

	snap, err := ss.Read("slot/1")
	assert.Equal(t, nil, err)
	assert.T(t, snap == nil, "missing slot should read nil")
	exists, _ := ss.Exists("slot/1")
	assert.T(t, !exists, "slot should not exist")

	testSnap := &Snapshot{
		ID:           "id",
		NextEntityID: 3,
		Entities: []EntityRecord{
			{ID: 1, TypeKey: "stockpile", Position: common.Vector3{X: 1.5}, ParentID: common.NilEntityID, Vars: [][]byte{{0, 1}, {}}},
			{ID: 2, TypeKey: "settler", Rotation: common.Vector3{Y: 90}, ParentID: 1, Vars: [][]byte{{2}}},
		},
	}
	assert.Equal(t, nil, ss.Write("slot/1", testSnap))
	assert.Equal(t, nil, ss.Write("autosave", testSnap))

	verify, err := ss.Read("slot/1")
	assert.Equal(t, nil, err)
	assert.Equal(t, testSnap.NextEntityID, verify.NextEntityID)
	assert.Equal(t, 2, len(verify.Entities))
	assert.Equal(t, testSnap.Entities[1].ParentID, verify.Entities[1].ParentID)
	assert.Equal(t, testSnap.Entities[0].Position, verify.Entities[0].Position)
	assert.Equal(t, []byte{0, 1}, verify.Entities[0].Vars[0])

	exists, _ = ss.Exists("slot/1")
	assert.T(t, exists, "slot should exist")
	slots, err := ss.List()
	assert.Equal(t, nil, err)
	assert.Equal(t, []string{"autosave", "slot/1"}, slots)
}
