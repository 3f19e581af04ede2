package proto

// MsgType is the type of message types
type MsgType uint16

const (
	// MT_INVALID is the invalid message type
	MT_INVALID MsgType = iota
	// MT_HELLO is sent by the server to a new peer with its participant ID and the session ID
	MT_HELLO
	// MT_CREATE announces an entity entering the interest set of the receiver
	MT_CREATE
	// MT_VARIABLE_DELTA carries the serialized delta or full state of one variable of an entity
	MT_VARIABLE_DELTA
	// MT_FORGET removes an entity from the receiver, deleted tells if the entity is destroyed
	MT_FORGET
	// MT_SNAPSHOT_DONE marks the end of the initial snapshot burst
	MT_SNAPSHOT_DONE
	// MT_TRANSFORM carries the position and rotation of an entity
	MT_TRANSFORM
	// MT_SET_PARENT changes the parent of an entity
	MT_SET_PARENT
	// MT_AUTHORITY changes the authority holder of an entity
	MT_AUTHORITY
	// MT_CREATE_REQUEST is sent by clients to create an entity on the server
	MT_CREATE_REQUEST
	// MT_CREATE_ACK tells the requesting client the ID assigned to its entity
	MT_CREATE_ACK
	// MT_DELETE_REQUEST is sent by clients to delete an entity they hold authority over
	MT_DELETE_REQUEST
	// MT_SET_VIEWPOINT is sent by clients to move the center of their interest area
	MT_SET_VIEWPOINT

	_MT_COUNT
)

var msgTypeNames = [...]string{
	MT_INVALID:        "INVALID",
	MT_HELLO:          "HELLO",
	MT_CREATE:         "CREATE",
	MT_VARIABLE_DELTA: "VARIABLE_DELTA",
	MT_FORGET:         "FORGET",
	MT_SNAPSHOT_DONE:  "SNAPSHOT_DONE",
	MT_TRANSFORM:      "TRANSFORM",
	MT_SET_PARENT:     "SET_PARENT",
	MT_AUTHORITY:      "AUTHORITY",
	MT_CREATE_REQUEST: "CREATE_REQUEST",
	MT_CREATE_ACK:     "CREATE_ACK",
	MT_DELETE_REQUEST: "DELETE_REQUEST",
	MT_SET_VIEWPOINT:  "SET_VIEWPOINT",
}

func (mt MsgType) String() string {
	if mt < _MT_COUNT {
		return msgTypeNames[mt]
	}
	return "UNKNOWN"
}

// IsValid checks if the message type is known
func (mt MsgType) IsValid() bool {
	return mt > MT_INVALID && mt < _MT_COUNT
}
