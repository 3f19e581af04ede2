package transport

import (
	"context"
	"net"

	"github.com/colonyworld/replica/engine/gwerrors"
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/xtaci/kcp-go"
)

const (
	_KCP_DATA_SHARDS   = 10
	_KCP_PARITY_SHARDS = 3
)

func init() {
	register("kcp", func(opts Options) Backend {
		return NewKCPBackend(opts)
	})
}

// KCPBackend carries streams over reliable UDP (KCP)
type KCPBackend struct {
	opts Options
}

// NewKCPBackend creates a KCP backend
func NewKCPBackend(opts Options) *KCPBackend {
	return &KCPBackend{opts: opts}
}

func (b *KCPBackend) Name() string {
	return "kcp"
}

func (b *KCPBackend) Dial(address string) *Pending {
	return newPending(func(ctx context.Context) (Stream, error) {
		conn, err := kcp.DialWithOptions(address, nil, _KCP_DATA_SHARDS, _KCP_PARITY_SHARDS)
		if err != nil {
			return nil, gwerrors.NewTransportError("connect", address, err)
		}
		return b.wrap(conn), nil
	})
}

func (b *KCPBackend) Listen(address string) (Listener, error) {
	ln, err := kcp.ListenWithOptions(address, nil, _KCP_DATA_SHARDS, _KCP_PARITY_SHARDS)
	if err != nil {
		return nil, gwerrors.NewTransportError("listen", address, err)
	}
	gwlog.Infof("Listening on KCP: %s ...", ln.Addr())
	return &kcpListener{ln: ln, backend: b}, nil
}

func (b *KCPBackend) wrap(conn *kcp.UDPSession) Stream {
	if b.opts.ReadBufferSize > 0 {
		conn.SetReadBuffer(b.opts.ReadBufferSize)
	}
	if b.opts.WriteBufferSize > 0 {
		conn.SetWriteBuffer(b.opts.WriteBufferSize)
	}
	// turn on turbo mode according to https://github.com/skywind3000/kcp/blob/master/README.en.md#protocol-configuration
	conn.SetStreamMode(true)
	conn.SetWriteDelay(true)
	if b.opts.NoDelay {
		conn.SetNoDelay(1, 10, 2, 1)
	}
	return newBufferedStream(conn, b.opts.Compress, delayedClose)
}

type kcpListener struct {
	ln      *kcp.Listener
	backend *KCPBackend
}

func (l *kcpListener) Accept() (Stream, error) {
	conn, err := l.ln.AcceptKCP()
	if err != nil {
		return nil, gwerrors.NewTransportError("accept", l.ln.Addr().String(), err)
	}
	gwlog.Infof("KCP connection from %s", conn.RemoteAddr())
	return l.backend.wrap(conn), nil
}

func (l *kcpListener) Close() error {
	return l.ln.Close()
}

func (l *kcpListener) Addr() net.Addr {
	return l.ln.Addr()
}
