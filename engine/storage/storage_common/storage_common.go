package storagecommon

import (
	"github.com/colonyworld/replica/engine/common"
)

// EntityRecord is the saved state of one persistent entity
type EntityRecord struct {
	ID       common.EntityID `json:"id"`
	TypeKey  string          `json:"type"`
	Position common.Vector3  `json:"pos"`
	Rotation common.Vector3  `json:"rot"`
	ParentID common.EntityID `json:"parent"`
	// Vars holds the full serialized state of every declared variable, in declaration order
	Vars [][]byte `json:"vars"`
}

// Snapshot is a save game: every persistent entity in creation order
type Snapshot struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session"`
	SavedAt      int64           `json:"saved_at"` // unix nanoseconds
	NextEntityID common.EntityID `json:"next_id"`
	Entities     []EntityRecord  `json:"entities"`
}

// SnapshotStorage defines the interface of snapshot storage backends.
// Read returns nil without error if the slot does not exist.
type SnapshotStorage interface {
	List() ([]string, error)
	Write(slot string, snap *Snapshot) error
	Read(slot string) (*Snapshot, error)
	Exists(slot string) (bool, error)
	Close()
	IsEOF(err error) bool
}
