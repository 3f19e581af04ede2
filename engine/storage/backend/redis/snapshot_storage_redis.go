package snapshotstorageredis

import (
	"io"
	"sort"

	"github.com/colonyworld/replica/engine/netutil"
	. "github.com/colonyworld/replica/engine/storage/storage_common"
	"github.com/garyburd/redigo/redis"
	"github.com/pkg/errors"
)

const (
	_KEY_PREFIX = "snapshot$"
	// _SLOTS_KEY is the set of all saved slots
	_SLOTS_KEY = "snapshot_slots"
)

var (
	dataPacker = netutil.MessagePackMsgPacker{}
)

type redisSnapshotStorage struct {
	c redis.Conn
}

// OpenRedis opens redis as snapshot storage
func OpenRedis(url string, dbindex int) (SnapshotStorage, error) {
	c, err := redis.DialURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "redis dail failed")
	}

	if _, err := c.Do("SELECT", dbindex); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "redis select db failed")
	}

	return &redisSnapshotStorage{
		c: c,
	}, nil
}

func snapshotKey(slot string) string {
	return _KEY_PREFIX + slot
}

func (ss *redisSnapshotStorage) List() ([]string, error) {
	slots, err := redis.Strings(ss.c.Do("SMEMBERS", _SLOTS_KEY))
	if err != nil {
		return nil, err
	}
	sort.Strings(slots)
	return slots, nil
}

func (ss *redisSnapshotStorage) Write(slot string, snap *Snapshot) error {
	b, err := dataPacker.PackMsg(snap, nil)
	if err != nil {
		return err
	}

	if _, err = ss.c.Do("SET", snapshotKey(slot), b); err != nil {
		return err
	}
	_, err = ss.c.Do("SADD", _SLOTS_KEY, slot)
	return err
}

func (ss *redisSnapshotStorage) Read(slot string) (*Snapshot, error) {
	b, err := redis.Bytes(ss.c.Do("GET", snapshotKey(slot)))
	if err == redis.ErrNil {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err = dataPacker.UnpackMsg(b, &snap); err != nil {
		return nil, errors.Wrapf(err, "corrupted snapshot %s", slot)
	}
	return &snap, nil
}

func (ss *redisSnapshotStorage) Exists(slot string) (bool, error) {
	return redis.Bool(ss.c.Do("EXISTS", snapshotKey(slot)))
}

func (ss *redisSnapshotStorage) Close() {
	ss.c.Close()
}

func (ss *redisSnapshotStorage) IsEOF(err error) bool {
	err = errors.Cause(err)
	return err == io.EOF || err == io.ErrUnexpectedEOF
}
