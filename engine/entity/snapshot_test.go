package entity

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/colonyworld/replica/engine/common"
	"github.com/colonyworld/replica/engine/config"
	"github.com/colonyworld/replica/engine/storage"
)

func buildColony(t *testing.T, server *Session) (*testBeacon, *testCrate) {
	beacon := mustCreate(t, server, "beacon", Vector3{X: 1, Y: 2, Z: 3}, nil).I.(*testBeacon)
	beacon.Tags.Inc("wood")
	beacon.Log.Append("founded")
	beacon.Heading.Set(45.5)
	crate := mustCreate(t, server, "crate", Vector3{X: 4}, &beacon.Entity).I.(*testCrate)
	crate.Count.Set(12)
	crate.Label.Set("stone")
	crate.SetRotation(Vector3{Y: 90})
	mustCreate(t, server, "spark", Vector3{}, nil)
	return beacon, crate
}

func TestSnapshotPersistentOnly(t *testing.T) {
	server := newTestServer()
	beacon, crate := buildColony(t, server)
	snap := server.Snapshot()

	assert.Equal(t, 2, len(snap.Entities))
	assert.Equal(t, beacon.ID, snap.Entities[0].ID)
	assert.Equal(t, "crate", snap.Entities[1].TypeKey)
	assert.Equal(t, beacon.ID, snap.Entities[1].ParentID)
	assert.Equal(t, Vector3{Y: 90}, snap.Entities[1].Rotation)
	assert.Equal(t, 2, len(snap.Entities[1].Vars))
	assert.Equal(t, common.EntityID(3), snap.NextEntityID)
	assert.Equal(t, crate.ID, snap.Entities[1].ID)
	assert.Equal(t, server.ID, snap.SessionID)
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	server := newTestServer()
	beacon, crate := buildColony(t, server)
	saved := server.Snapshot()

	// change everything after saving
	crate.Count.Set(0)
	beacon.Tags.Clear()
	assert.Equal(t, nil, server.Delete(&beacon.Entity))
	mustCreate(t, server, "crate", Vector3{}, nil)

	assert.Equal(t, nil, server.Restore(saved))
	assert.Equal(t, 2, server.EntityCount())
	assert.Equal(t, 0, server.EntityCountByType("spark"))

	restoredCrate := crateOf(server, crate.ID)
	assert.Equal(t, int64(12), restoredCrate.Count.Get())
	assert.Equal(t, "stone", restoredCrate.Label.Get())
	assert.Equal(t, beacon.ID, restoredCrate.ParentID())
	assert.T(t, restoredCrate.IsAuthoritative(), "restored entities belong to the server")
	restoredBeacon, _ := server.Lookup(beacon.ID)
	assert.Equal(t, []*Entity{&restoredCrate.Entity}, restoredBeacon.Children())
	assert.Equal(t, 45.5, restoredBeacon.I.(*testBeacon).Heading.Get())

	// saving again gives the same entities
	again := server.Snapshot()
	assert.Equal(t, saved.Entities, again.Entities)

	// ids are not reused after restore
	fresh := mustCreate(t, server, "crate", Vector3{}, nil)
	assert.T(t, fresh.ID >= saved.NextEntityID, "new ids should follow the saved ones")
}

func TestRestoreDanglingParent(t *testing.T) {
	server := newTestServer()
	snap := &storage.Snapshot{
		NextEntityID: 10,
		Entities: []storage.EntityRecord{
			{ID: 7, TypeKey: "crate", ParentID: 3},
			{ID: 8, TypeKey: "unknown_type", ParentID: common.NilEntityID},
		},
	}
	assert.Equal(t, nil, server.Restore(snap))
	assert.Equal(t, 1, server.EntityCount())
	e, ok := server.Lookup(7)
	assert.T(t, ok, "crate should be restored")
	assert.Equal(t, common.NilEntityID, e.ParentID())
	settle(server)
	assert.T(t, knows(server, 7), "restored entity without parent is not an orphan")
	assert.Equal(t, common.EntityID(10), mustCreate(t, server, "crate", Vector3{}, nil).ID)
}

func TestRestoreReachesClients(t *testing.T) {
	server := newTestServer()
	_, crate := buildColony(t, server)
	saved := server.Snapshot()
	client := connect(t, server, Vector3{})
	runUntil(t, client.SnapshotDone, server, client)

	crate.Count.Set(1)
	runUntil(t, func() bool { return crateOf(client, crate.ID).Count.Get() == 1 }, server, client)
	old := crateOf(client, crate.ID)

	assert.Equal(t, nil, server.Restore(saved))
	runUntil(t, func() bool {
		c := crateOf(client, crate.ID)
		return c != nil && c != old && c.Count.Get() == 12
	}, server, client)
	assert.Equal(t, []bool{true}, old.forgotten)
}

func TestSaveLoadThroughStorage(t *testing.T) {
	cfg := config.Default().Storage
	cfg.Directory = t.TempDir()
	server := newTestServer()
	svc := storage.NewServiceFromConfig(&cfg, server, false)
	svc.Start()
	defer svc.Shutdown()

	beacon, crate := buildColony(t, server)
	saved := server.Snapshot()

	var saveErr, loadErr error
	saveDone, loadDone := false, false
	server.SaveTo(svc, "slot1", func(err error) {
		saveErr, saveDone = err, true
	})
	runUntil(t, func() bool { return saveDone }, server)
	assert.Equal(t, nil, saveErr)

	assert.Equal(t, nil, server.Delete(&beacon.Entity))
	assert.Equal(t, 1, server.EntityCount()) // the spark

	server.LoadFrom(svc, "slot1", func(err error) {
		loadErr, loadDone = err, true
	})
	deadline := time.Now().Add(5 * time.Second)
	for !loadDone && time.Now().Before(deadline) {
		tickAll(server)
		time.Sleep(time.Millisecond)
	}
	assert.T(t, loadDone, "load should complete")
	assert.Equal(t, nil, loadErr)
	assert.Equal(t, saved.Entities, server.Snapshot().Entities)
	assert.Equal(t, int64(12), crateOf(server, crate.ID).Count.Get())

	loadDone = false
	server.LoadFrom(svc, "missing", func(err error) {
		loadErr, loadDone = err, true
	})
	runUntil(t, func() bool { return loadDone }, server)
	assert.T(t, loadErr != nil, "loading a missing slot should fail")
}
