package transport

import (
	"context"
	"net"
	"sync"

	"github.com/colonyworld/replica/engine/gwerrors"
	"github.com/pkg/errors"
)

func init() {
	register("pipe", func(opts Options) Backend {
		return PipeBackend{}
	})
}

var (
	pipeListenersLock sync.Mutex
	pipeListeners     = map[string]*pipeListener{}
)

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }

// PipeBackend connects streams inside one process over net.Pipe, addresses are arbitrary names
type PipeBackend struct{}

func (PipeBackend) Name() string {
	return "pipe"
}

func (PipeBackend) Dial(address string) *Pending {
	pipeListenersLock.Lock()
	l := pipeListeners[address]
	pipeListenersLock.Unlock()
	if l == nil {
		return failedPending(gwerrors.NewTransportError("connect", address, errors.New("connection refused")))
	}

	return newPending(func(ctx context.Context) (Stream, error) {
		local, remote := net.Pipe()
		select {
		case l.accepted <- remote:
			return NewPipeStream(local), nil
		case <-l.closed:
			return nil, gwerrors.NewTransportError("connect", address, net.ErrClosed)
		case <-ctx.Done():
			return nil, gwerrors.NewTransportError("connect", address, ctx.Err())
		}
	})
}

func (PipeBackend) Listen(address string) (Listener, error) {
	pipeListenersLock.Lock()
	defer pipeListenersLock.Unlock()
	if pipeListeners[address] != nil {
		return nil, gwerrors.NewTransportError("listen", address, errors.New("address already in use"))
	}
	l := &pipeListener{
		addr:     pipeAddr(address),
		accepted: make(chan net.Conn),
		closed:   make(chan struct{}),
	}
	pipeListeners[address] = l
	return l, nil
}

type pipeListener struct {
	addr      pipeAddr
	accepted  chan net.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

func (l *pipeListener) Accept() (Stream, error) {
	select {
	case conn := <-l.accepted:
		return NewPipeStream(conn), nil
	case <-l.closed:
		return nil, gwerrors.NewTransportError("accept", string(l.addr), net.ErrClosed)
	}
}

func (l *pipeListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		pipeListenersLock.Lock()
		delete(pipeListeners, string(l.addr))
		pipeListenersLock.Unlock()
	})
	return nil
}

func (l *pipeListener) Addr() net.Addr {
	return l.addr
}

// NewPipeStream wraps one end of a net.Pipe (or any net.Conn) as an unbuffered Stream
func NewPipeStream(conn net.Conn) Stream {
	return newPumpedStream(conn, netConn{conn}, nil)
}

// Pipe returns two connected in-process streams
func Pipe() (Stream, Stream) {
	a, b := net.Pipe()
	return NewPipeStream(a), NewPipeStream(b)
}
