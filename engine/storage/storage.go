// Package storage saves and loads snapshots on a dedicated routine, posting the results back to the caller's queue.
package storage

import (
	"strconv"
	"time"

	"github.com/colonyworld/replica/engine/config"
	"github.com/colonyworld/replica/engine/consts"
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/colonyworld/replica/engine/opmon"
	"github.com/colonyworld/replica/engine/post"
	"github.com/colonyworld/replica/engine/storage/backend/filesystem"
	"github.com/colonyworld/replica/engine/storage/backend/mongodb"
	"github.com/colonyworld/replica/engine/storage/backend/redis"
	"github.com/colonyworld/replica/engine/storage/backend/redis_cluster"
	"github.com/colonyworld/replica/engine/storage/storage_common"
	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
)

// Snapshot is the saved state of a session
type Snapshot = storagecommon.Snapshot

// EntityRecord is the saved state of one entity
type EntityRecord = storagecommon.EntityRecord

// OpenFunc opens a snapshot storage backend
type OpenFunc func() (storagecommon.SnapshotStorage, error)

type saveRequest struct {
	Slot     string
	Snapshot *Snapshot
	Callback SaveCallbackFunc
}

type loadRequest struct {
	Slot     string
	Callback LoadCallbackFunc
}

type existsRequest struct {
	Slot     string
	Callback ExistsCallbackFunc
}

type listRequest struct {
	Callback ListCallbackFunc
}

// SaveCallbackFunc is the callback type of storage Save
type SaveCallbackFunc func(err error)

// LoadCallbackFunc is the callback type of storage Load, snap is nil if the slot does not exist
type LoadCallbackFunc func(snap *Snapshot, err error)

// ExistsCallbackFunc is the callback type of storage Exists
type ExistsCallbackFunc func(exists bool, err error)

// ListCallbackFunc is the callback type of storage List
type ListCallbackFunc func(slots []string, err error)

// Service runs snapshot storage operations on its own routine.
// Callbacks are posted to the poster, so they run on the routine draining it.
type Service struct {
	open           OpenFunc
	storageEngine  storagecommon.SnapshotStorage
	operationQueue *xnsyncutil.SyncQueue
	terminated     *xnsyncutil.OneTimeCond
	poster         post.Poster
	debug          bool

	recentWarnedQueueLen int
}

// NewService creates a storage service over the backend opened by open
func NewService(open OpenFunc, poster post.Poster, debug bool) *Service {
	return &Service{
		open:           open,
		operationQueue: xnsyncutil.NewSyncQueue(),
		terminated:     xnsyncutil.NewOneTimeCond(),
		poster:         poster,
		debug:          debug,
	}
}

// NewServiceFromConfig creates a storage service over the backend described by the [storage] config
func NewServiceFromConfig(cfg *config.StorageConfig, poster post.Poster, debug bool) *Service {
	return NewService(func() (storagecommon.SnapshotStorage, error) {
		return Open(cfg, debug)
	}, poster, debug)
}

// Open opens the snapshot storage backend described by the config
func Open(cfg *config.StorageConfig, debug bool) (storagecommon.SnapshotStorage, error) {
	switch cfg.Type {
	case "filesystem":
		return snapshotstoragefilesystem.OpenDirectory(cfg.Directory, debug)
	case "mongodb":
		return snapshotstoragemongodb.OpenMongoDB(cfg.Url, cfg.DB, cfg.Collection)
	case "redis":
		dbindex, err := strconv.Atoi(cfg.DB)
		if err != nil {
			return nil, errors.Wrap(err, "redis db must be integer")
		}
		return snapshotstorageredis.OpenRedis(cfg.Url, dbindex)
	case "redis_cluster":
		return snapshotstoragerediscluster.OpenRedisCluster(cfg.StartNodes.ToList())
	default:
		return nil, errors.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// Save saves the snapshot to the slot, replacing the previous one
func (s *Service) Save(slot string, snap *Snapshot, callback SaveCallbackFunc) {
	s.operationQueue.Push(saveRequest{
		Slot:     slot,
		Snapshot: snap,
		Callback: callback,
	})
	s.checkOperationQueueLen()
}

// Load loads the snapshot of the slot
func (s *Service) Load(slot string, callback LoadCallbackFunc) {
	s.operationQueue.Push(loadRequest{
		Slot:     slot,
		Callback: callback,
	})
	s.checkOperationQueueLen()
}

// Exists checks if the slot has a snapshot
func (s *Service) Exists(slot string, callback ExistsCallbackFunc) {
	s.operationQueue.Push(existsRequest{
		Slot:     slot,
		Callback: callback,
	})
	s.checkOperationQueueLen()
}

// List returns all saved slots
func (s *Service) List(callback ListCallbackFunc) {
	s.operationQueue.Push(listRequest{
		Callback: callback,
	})
	s.checkOperationQueueLen()
}

func (s *Service) checkOperationQueueLen() {
	qlen := s.operationQueue.Len()
	if qlen > 100 && qlen%100 == 0 && s.recentWarnedQueueLen != qlen {
		gwlog.Warnf("Storage operation queue length = %d", qlen)
		s.recentWarnedQueueLen = qlen
	}
}

// Start starts the storage routine
func (s *Service) Start() {
	go s.storageRoutine()
}

// Shutdown finishes queued operations and stops the storage routine
func (s *Service) Shutdown() {
	s.operationQueue.Close()
	s.terminated.Wait()
}

func (s *Service) assureStorageEngineReady() (err error) {
	if s.storageEngine != nil {
		return
	}
	s.storageEngine, err = s.open()
	return
}

func (s *Service) closeIfEOF(err error) {
	if err != nil && s.storageEngine != nil && s.storageEngine.IsEOF(err) {
		s.storageEngine.Close()
		s.storageEngine = nil
	}
}

// retry runs op until it succeeds or STORAGE_MAX_RETRIES is reached, reopening the backend when needed
func (s *Service) retry(opname string, op func() error) (err error) {
	for i := 0; i <= consts.STORAGE_MAX_RETRIES; i++ {
		if i > 0 {
			time.Sleep(consts.STORAGE_RETRY_INTERVAL)
		}
		if err = s.assureStorageEngineReady(); err != nil {
			gwlog.Errorf("Storage engine is not ready: %s", err)
			continue
		}
		if err = op(); err == nil {
			return nil
		}
		gwlog.Errorf("storage: %s failed: %s", opname, err)
		s.closeIfEOF(err)
	}
	return err
}

func (s *Service) storageRoutine() {
	defer func() {
		err := recover()
		if err != nil {
			gwlog.TraceError("storage routine paniced: %s, restarting ...", err)
			go s.storageRoutine() // restart the storage routine
		} else {
			// normal quit
			if s.storageEngine != nil {
				s.storageEngine.Close()
			}
			s.terminated.Signal()
		}
	}()

	for {
		op := s.operationQueue.Pop()
		if op == nil { // storage service closed
			break
		}

		switch req := op.(type) {
		case saveRequest:
			if s.debug {
				gwlog.Debugf("storage: SAVING %s: %d entities ...", req.Slot, len(req.Snapshot.Entities))
			}
			monop := opmon.StartOperation("storage.save")
			err := s.retry("save "+req.Slot, func() error {
				return s.storageEngine.Write(req.Slot, req.Snapshot)
			})
			monop.Finish(time.Millisecond * 100)
			if req.Callback != nil {
				s.poster.Post(func() {
					req.Callback(err)
				})
			}
		case loadRequest:
			if s.debug {
				gwlog.Debugf("storage: LOADING %s ...", req.Slot)
			}
			monop := opmon.StartOperation("storage.load")
			var snap *Snapshot
			err := s.retry("load "+req.Slot, func() (err error) {
				snap, err = s.storageEngine.Read(req.Slot)
				return
			})
			monop.Finish(time.Millisecond * 100)
			if req.Callback != nil {
				s.poster.Post(func() {
					req.Callback(snap, err)
				})
			}
		case existsRequest:
			monop := opmon.StartOperation("storage.exists")
			var exists bool
			err := s.retry("exists "+req.Slot, func() (err error) {
				exists, err = s.storageEngine.Exists(req.Slot)
				return
			})
			monop.Finish(time.Millisecond * 100)
			if req.Callback != nil {
				s.poster.Post(func() {
					req.Callback(exists, err)
				})
			}
		case listRequest:
			monop := opmon.StartOperation("storage.list")
			var slots []string
			err := s.retry("list", func() (err error) {
				slots, err = s.storageEngine.List()
				return
			})
			monop.Finish(time.Millisecond * 1000)
			if req.Callback != nil {
				s.poster.Post(func() {
					req.Callback(slots, err)
				})
			}
		default:
			gwlog.Panicf("storage: unknown operation: %v", op)
		}
	}
}
