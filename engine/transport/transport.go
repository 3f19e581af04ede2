// Package transport provides the byte stream backends used by replica connections.
//
// Nothing above this package knows which concrete backend carries a stream.
package transport

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/colonyworld/replica/engine/consts"
	"github.com/pkg/errors"
)

// Stream is a bidirectional ordered byte stream to one remote participant
type Stream interface {
	// Read reads buffered bytes, it only blocks when Available returns false
	Read(p []byte) (int, error)
	// Write queues bytes to the peer, fails with TransportError if the peer is gone
	Write(p []byte) (int, error)
	// Flush pushes queued bytes to the underlying network
	Flush() error
	// Available reports if Read would return without blocking (data or a pending error)
	Available() bool
	// CloseLinger flushes queued bytes and closes the stream after at most linger
	CloseLinger(linger time.Duration) error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Listener accepts incoming streams
type Listener interface {
	Accept() (Stream, error)
	Close() error
	Addr() net.Addr
}

// Backend establishes and accepts streams of one kind
type Backend interface {
	Name() string
	// Dial starts connecting to address without blocking the caller
	Dial(address string) *Pending
	Listen(address string) (Listener, error)
}

// Options tunes socket based backends
type Options struct {
	ReadBufferSize  int  // kernel receive buffer size
	WriteBufferSize int  // kernel send buffer size
	NoDelay         bool // disable Nagle / enable turbo mode
	Compress        bool // snappy compress the stream
}

// DefaultOptions returns the default backend options
func DefaultOptions() Options {
	return Options{
		ReadBufferSize:  consts.SOCKET_READ_BUFFER_SIZE,
		WriteBufferSize: consts.SOCKET_WRITE_BUFFER_SIZE,
		NoDelay:         consts.SET_TCP_NO_DELAY,
	}
}

// Pending is the result of an asynchronous connect
type Pending struct {
	done   chan struct{}
	stream Stream
	err    error
}

// dialTimeout bounds the whole connect, handshakes included
var dialTimeout = consts.DIAL_TIMEOUT

func newPending(dial func(ctx context.Context) (Stream, error)) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		p.stream, p.err = dial(ctx)
		close(p.done)
	}()
	return p
}

func failedPending(err error) *Pending {
	p := &Pending{done: make(chan struct{}), err: err}
	close(p.done)
	return p
}

// Done checks if the connect finished, successfully or not
func (p *Pending) Done() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Result waits for the connect to finish and returns the stream
func (p *Pending) Result() (Stream, error) {
	<-p.done
	return p.stream, p.err
}

// Wait waits for the connect to finish or ctx to be cancelled
func (p *Pending) Wait(ctx context.Context) (Stream, error) {
	select {
	case <-p.done:
		return p.stream, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type backendFactory func(opts Options) Backend

var (
	backendsLock sync.RWMutex
	backends     = map[string]backendFactory{}
)

func register(name string, factory backendFactory) {
	backendsLock.Lock()
	backends[name] = factory
	backendsLock.Unlock()
}

// Get creates the backend of specified name
func Get(name string, opts Options) (Backend, error) {
	backendsLock.RLock()
	factory := backends[name]
	backendsLock.RUnlock()
	if factory == nil {
		return nil, errors.Errorf("unknown transport: %s", name)
	}
	return factory(opts), nil
}

// Names returns all known backend names
func Names() []string {
	backendsLock.RLock()
	defer backendsLock.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
