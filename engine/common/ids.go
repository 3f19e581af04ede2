package common

import "strconv"

// EntityID identifies a replicated entity. IDs are assigned by the server and never reused.
type EntityID int64

// NilEntityID is the ID of an entity which is not registered yet
const NilEntityID EntityID = -1

// IsNil returns if EntityID is not assigned
func (id EntityID) IsNil() bool {
	return id < 0
}

func (id EntityID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParticipantID identifies a participant of a session: the server or one of the clients
type ParticipantID uint32

const (
	// ServerParticipant is the participant ID of the server itself
	ServerParticipant ParticipantID = 0
	// NoParticipant is used by clients before the server assigned them an ID
	NoParticipant ParticipantID = 0xFFFFFFFF
)

// IsServer returns if the participant is the server
func (pid ParticipantID) IsServer() bool {
	return pid == ServerParticipant
}

func (pid ParticipantID) String() string {
	if pid == ServerParticipant {
		return "server"
	} else if pid == NoParticipant {
		return "none"
	}
	return "client" + strconv.FormatUint(uint64(pid), 10)
}
