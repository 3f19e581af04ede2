package consts

import "time"

// Tunable Options
const (
	// For Underlying Networking
	// BUFFERED_READ_BUFFSIZE is the read buffer size for buffered connections
	BUFFERED_READ_BUFFSIZE = 16384
	// BUFFERED_WRITE_BUFFSIZE is the write buffer size for buffered connections
	BUFFERED_WRITE_BUFFSIZE = 16384
	// SOCKET_READ_BUFFER_SIZE is the default kernel receive buffer size of socket transports
	SOCKET_READ_BUFFER_SIZE = 1024 * 1024
	// SOCKET_WRITE_BUFFER_SIZE is the default kernel send buffer size of socket transports
	SOCKET_WRITE_BUFFER_SIZE = 1024 * 1024
	// STREAM_READ_CHUNK_SIZE is the size of each chunk read by the stream pump goroutine
	STREAM_READ_CHUNK_SIZE = 8192
	// SET_TCP_NO_DELAY = true sets tcp streams to TcpNoDelay
	SET_TCP_NO_DELAY = true
	// DIAL_TIMEOUT is the timeout of transport connect
	DIAL_TIMEOUT = time.Second * 10

	// For Packets Send & Recv
	// MAX_PAYLOAD_LENGTH is the maximum payload length of one packet
	MAX_PAYLOAD_LENGTH = 32 * 1024 * 1024
	// DEFAULT_LINGER is how long a closing connection waits for queued messages to flush
	DEFAULT_LINGER = time.Second

	// For Session
	// TICK_INTERVAL is the default fixed tick interval of server and clients
	TICK_INTERVAL = time.Millisecond * 50
	// ORPHAN_DELTA_TTL_TICKS is how many ticks a delta for an unknown entity is kept waiting for its CREATE
	ORPHAN_DELTA_TTL_TICKS = 40
	// ORPHAN_DELTA_MAX_PER_ENTITY limits the buffered deltas of one unknown entity
	ORPHAN_DELTA_MAX_PER_ENTITY = 64
	// PROTOCOL_ERROR_RATE is the sustained protocol errors per second tolerated from one connection
	PROTOCOL_ERROR_RATE = 5
	// PROTOCOL_ERROR_BURST is the protocol error budget of one connection
	PROTOCOL_ERROR_BURST = 20
	// CREATE_REQUEST_RATE is the sustained entity create requests per second accepted from one client
	CREATE_REQUEST_RATE = 200
	// CREATE_REQUEST_BURST is the create request burst accepted from one client
	CREATE_REQUEST_BURST = 1000
	// INTERPOLATION_SNAP_EPSILON is the distance under which interpolated values snap to their target
	INTERPOLATION_SNAP_EPSILON = 1e-4

	// For Storage
	// STORAGE_RETRY_INTERVAL is the interval between retries of failed storage operations
	STORAGE_RETRY_INTERVAL = time.Second
	// STORAGE_MAX_RETRIES is the number of retries of one storage operation before it is reported failed
	STORAGE_MAX_RETRIES = 3
)

// Debug Options
const (
	// DEBUG_PACKETS prints packet send/recv debug logs
	DEBUG_PACKETS = false
	// DEBUG_SAVE_LOAD prints save & load debug logs
	DEBUG_SAVE_LOAD = false
	// DEBUG_INTEREST prints interest set changes
	DEBUG_INTEREST = false
)
