package snapshotstoragemongodb

import (
	"io"
	"sort"

	"github.com/colonyworld/replica/engine/gwlog"
	. "github.com/colonyworld/replica/engine/storage/storage_common"
	"github.com/pkg/errors"
	"gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"
)

const (
	_DEFAULT_DB_NAME         = "replica"
	_DEFAULT_COLLECTION_NAME = "snapshots"
)

type snapshotDoc struct {
	Slot     string    `bson:"_id"`
	Snapshot *Snapshot `bson:"snapshot"`
}

type mongoDBSnapshotStorage struct {
	db  *mgo.Database
	col *mgo.Collection
}

// OpenMongoDB opens mongodb as snapshot storage, each slot is one document of the collection
func OpenMongoDB(url string, dbname string, collection string) (SnapshotStorage, error) {
	gwlog.Debugf("Connecting MongoDB ...")
	session, err := mgo.Dial(url)
	if err != nil {
		return nil, err
	}

	session.SetMode(mgo.Monotonic, true)
	if dbname == "" {
		// if db is not specified, use default
		dbname = _DEFAULT_DB_NAME
	}
	if collection == "" {
		collection = _DEFAULT_COLLECTION_NAME
	}
	db := session.DB(dbname)
	return &mongoDBSnapshotStorage{
		db:  db,
		col: db.C(collection),
	}, nil
}

func (ss *mongoDBSnapshotStorage) Write(slot string, snap *Snapshot) error {
	_, err := ss.col.UpsertId(slot, &snapshotDoc{Slot: slot, Snapshot: snap})
	return err
}

func (ss *mongoDBSnapshotStorage) Read(slot string) (*Snapshot, error) {
	var doc snapshotDoc
	err := ss.col.FindId(slot).One(&doc)
	if err == mgo.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	if doc.Snapshot == nil {
		return nil, errors.Errorf("corrupted snapshot %s", slot)
	}
	return doc.Snapshot, nil
}

func (ss *mongoDBSnapshotStorage) List() ([]string, error) {
	var docs []bson.M
	err := ss.col.Find(nil).Select(bson.M{"_id": 1}).All(&docs)
	if err != nil {
		return nil, err
	}

	slots := make([]string, 0, len(docs))
	for _, doc := range docs {
		if slot, ok := doc["_id"].(string); ok {
			slots = append(slots, slot)
		}
	}
	sort.Strings(slots)
	return slots, nil
}

func (ss *mongoDBSnapshotStorage) Exists(slot string) (bool, error) {
	n, err := ss.col.FindId(slot).Count()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (ss *mongoDBSnapshotStorage) Close() {
	ss.db.Session.Close()
}

func (ss *mongoDBSnapshotStorage) IsEOF(err error) bool {
	err = errors.Cause(err)
	return err == io.EOF || err == io.ErrUnexpectedEOF
}
