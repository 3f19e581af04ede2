package snapshotstoragefilesystem

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/colonyworld/replica/engine/gwlog"
	. "github.com/colonyworld/replica/engine/storage/storage_common"
	"github.com/pkg/errors"
)

const (
	_FILE_PREFIX = "snapshot$"
	_FILE_SUFFIX = ".json"
)

type fileSystemSnapshotStorage struct {
	directory string
	debug     bool
}

func getFileName(slot string) string {
	return _FILE_PREFIX + base64.URLEncoding.EncodeToString([]byte(slot)) + _FILE_SUFFIX
}

func (ss *fileSystemSnapshotStorage) getFilePath(slot string) string {
	return filepath.Join(ss.directory, getFileName(slot))
}

func (ss *fileSystemSnapshotStorage) Write(slot string, snap *Snapshot) error {
	saveFile := ss.getFilePath(slot)
	dataBytes, err := json.MarshalIndent(snap, "", "\t")
	if err != nil {
		return err
	}

	if ss.debug {
		gwlog.Debugf("Saving to file %s: %d entities, %d bytes", saveFile, len(snap.Entities), len(dataBytes))
	}
	// write then rename, so a crash never leaves a half written save
	tmpFile := saveFile + ".tmp"
	if err := os.WriteFile(tmpFile, dataBytes, 0644); err != nil {
		return err
	}
	return os.Rename(tmpFile, saveFile)
}

func (ss *fileSystemSnapshotStorage) Read(slot string) (*Snapshot, error) {
	dataBytes, err := os.ReadFile(ss.getFilePath(slot))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var snap Snapshot
	if err = json.Unmarshal(dataBytes, &snap); err != nil {
		return nil, errors.Wrapf(err, "corrupted snapshot %s", slot)
	}
	return &snap, nil
}

func (ss *fileSystemSnapshotStorage) Exists(slot string) (bool, error) {
	_, err := os.Stat(ss.getFilePath(slot))
	if err == nil {
		return true, nil
	} else if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (ss *fileSystemSnapshotStorage) List() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(ss.directory, _FILE_PREFIX+"*"+_FILE_SUFFIX))
	if err != nil {
		return nil, err
	}
	slots := make([]string, 0, len(files))
	for _, fpath := range files {
		_, fn := filepath.Split(fpath)
		encoded := strings.TrimSuffix(strings.TrimPrefix(fn, _FILE_PREFIX), _FILE_SUFFIX)
		slot, err := base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			gwlog.Errorf("invalid snapshot file: %s", fpath)
			continue
		}
		slots = append(slots, string(slot))
	}
	sort.Strings(slots)
	return slots, nil
}

func (ss *fileSystemSnapshotStorage) Close() {
	// need to do nothing
}

func (ss *fileSystemSnapshotStorage) IsEOF(err error) bool {
	return false
}

// OpenDirectory opens a directory as snapshot storage, creating it if necessary
func OpenDirectory(directory string, debug bool) (SnapshotStorage, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, err
	}

	return &fileSystemSnapshotStorage{
		directory: directory,
		debug:     debug,
	}, nil
}
