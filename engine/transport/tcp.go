package transport

import (
	"context"
	"net"
	"time"

	"github.com/colonyworld/replica/engine/gwerrors"
	"github.com/colonyworld/replica/engine/gwioutil"
	"github.com/colonyworld/replica/engine/gwlog"
)

func init() {
	register("tcp", func(opts Options) Backend {
		return NewTCPBackend(opts)
	})
}

// TCPBackend carries streams over TCP sockets
type TCPBackend struct {
	opts Options
}

// NewTCPBackend creates a TCP backend
func NewTCPBackend(opts Options) *TCPBackend {
	return &TCPBackend{opts: opts}
}

func (b *TCPBackend) Name() string {
	return "tcp"
}

func (b *TCPBackend) Dial(address string) *Pending {
	return newPending(func(ctx context.Context) (Stream, error) {
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, gwerrors.NewTransportError("connect", address, err)
		}
		return b.wrap(conn), nil
	})
}

func (b *TCPBackend) Listen(address string) (Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, gwerrors.NewTransportError("listen", address, err)
	}
	gwlog.Infof("Listening on TCP: %s ...", ln.Addr())
	return &tcpListener{ln: ln, backend: b}, nil
}

func (b *TCPBackend) wrap(conn net.Conn) Stream {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if b.opts.WriteBufferSize > 0 {
			tcpConn.SetWriteBuffer(b.opts.WriteBufferSize)
		}
		if b.opts.ReadBufferSize > 0 {
			tcpConn.SetReadBuffer(b.opts.ReadBufferSize)
		}
		tcpConn.SetNoDelay(b.opts.NoDelay)
	}
	return newBufferedStream(conn, b.opts.Compress, tcpLinger)
}

// tcpLinger lets the kernel keep sending queued bytes for up to d after close
func tcpLinger(raw net.Conn, d time.Duration) {
	if tcpConn, ok := raw.(*net.TCPConn); ok {
		secs := int((d + time.Second - 1) / time.Second)
		tcpConn.SetLinger(secs)
		tcpConn.CloseRead()
	}
	go raw.Close()
}

type tcpListener struct {
	ln      net.Listener
	backend *TCPBackend
}

func (l *tcpListener) Accept() (Stream, error) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if gwioutil.IsTimeoutError(err) {
				continue
			}
			return nil, gwerrors.NewTransportError("accept", l.ln.Addr().String(), err)
		}

		gwlog.Infof("TCP connection from: %s", conn.RemoteAddr())
		return l.backend.wrap(conn), nil
	}
}

func (l *tcpListener) Close() error {
	return l.ln.Close()
}

func (l *tcpListener) Addr() net.Addr {
	return l.ln.Addr()
}
