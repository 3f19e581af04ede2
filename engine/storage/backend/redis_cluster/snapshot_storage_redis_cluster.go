package snapshotstoragerediscluster

import (
	"io"
	"sort"
	"time"

	rediscluster "github.com/chasex/redis-go-cluster"
	"github.com/colonyworld/replica/engine/netutil"
	. "github.com/colonyworld/replica/engine/storage/storage_common"
	"github.com/garyburd/redigo/redis"
	"github.com/pkg/errors"
)

const (
	_KEY_PREFIX = "snapshot$"
	_SLOTS_KEY  = "snapshot_slots"
)

var (
	dataPacker = netutil.MessagePackMsgPacker{}
)

type redisClusterSnapshotStorage struct {
	c *rediscluster.Cluster
}

// OpenRedisCluster opens a redis cluster as snapshot storage
func OpenRedisCluster(startNodes []string) (SnapshotStorage, error) {
	c, err := rediscluster.NewCluster(&rediscluster.Options{
		StartNodes:   startNodes,
		ConnTimeout:  10 * time.Second, // Connection timeout
		ReadTimeout:  60 * time.Second, // Read timeout
		WriteTimeout: 60 * time.Second, // Write timeout
		KeepAlive:    1,                // Maximum keep alive connecion in each node
		AliveTime:    10 * time.Minute, // Keep alive timeout
	})

	if err != nil {
		return nil, errors.Wrap(err, "connect redis cluster failed")
	}

	return &redisClusterSnapshotStorage{
		c: c,
	}, nil
}

func snapshotKey(slot string) string {
	return _KEY_PREFIX + slot
}

func (ss *redisClusterSnapshotStorage) List() ([]string, error) {
	slots, err := redis.Strings(ss.c.Do("SMEMBERS", _SLOTS_KEY))
	if err != nil {
		return nil, err
	}
	sort.Strings(slots)
	return slots, nil
}

func (ss *redisClusterSnapshotStorage) Write(slot string, snap *Snapshot) error {
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

func (ss *redisClusterSnapshotStorage) Read(slot string) (*Snapshot, error) {
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

func (ss *redisClusterSnapshotStorage) Exists(slot string) (bool, error) {
	return redis.Bool(ss.c.Do("EXISTS", snapshotKey(slot)))
}

func (ss *redisClusterSnapshotStorage) Close() {
	ss.c.Close()
}

func (ss *redisClusterSnapshotStorage) IsEOF(err error) bool {
	err = errors.Cause(err)
	return err == io.EOF || err == io.ErrUnexpectedEOF
}
