package transport

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/colonyworld/replica/engine/gwerrors"
	"github.com/colonyworld/replica/engine/gwlog"
	"golang.org/x/net/websocket"
)

// WebSocketPath is the http path served by websocket listeners
const WebSocketPath = "/ws"

func init() {
	register("ws", func(opts Options) Backend {
		return NewWebSocketBackend(opts)
	})
}

// WebSocketBackend carries streams in binary websocket frames
type WebSocketBackend struct {
	opts Options
}

// NewWebSocketBackend creates a websocket backend
func NewWebSocketBackend(opts Options) *WebSocketBackend {
	return &WebSocketBackend{opts: opts}
}

func (b *WebSocketBackend) Name() string {
	return "ws"
}

func (b *WebSocketBackend) Dial(address string) *Pending {
	return newPending(func(ctx context.Context) (Stream, error) {
		cfg, err := websocket.NewConfig("ws://"+address+WebSocketPath, "http://"+address+"/")
		if err != nil {
			return nil, gwerrors.NewTransportError("connect", address, err)
		}
		ws, err := cfg.DialContext(ctx)
		if err != nil {
			return nil, gwerrors.NewTransportError("connect", address, err)
		}
		ws.PayloadType = websocket.BinaryFrame
		return newBufferedStream(ws, b.opts.Compress, delayedClose), nil
	})
}

func (b *WebSocketBackend) Listen(address string) (Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, gwerrors.NewTransportError("listen", address, err)
	}

	l := &wsListener{
		ln:       ln,
		backend:  b,
		accepted: make(chan Stream, 64),
		closed:   make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.Handle(WebSocketPath, websocket.Handler(l.serveWebSocket))
	l.server = &http.Server{Handler: mux}
	go func() {
		if err := l.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			gwlog.Errorf("websocket server@%s failed: %v", ln.Addr(), err)
		}
	}()
	gwlog.Infof("Listening on WebSocket: ws://%s%s ...", ln.Addr(), WebSocketPath)
	return l, nil
}

// HTTPHandler returns a handler accepting websocket streams into l, to be mounted on an existing http server
func (b *WebSocketBackend) HTTPHandler(l Listener) http.Handler {
	return websocket.Handler(l.(*wsListener).serveWebSocket)
}

type wsListener struct {
	ln        net.Listener
	backend   *WebSocketBackend
	server    *http.Server
	accepted  chan Stream
	closed    chan struct{}
	closeOnce sync.Once
}

// serveWebSocket keeps the handler running while the stream is open, since the websocket closes when it returns
func (l *wsListener) serveWebSocket(ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame
	conn := &wsServerConn{Conn: ws, done: make(chan struct{})}
	stream := newBufferedStream(conn, l.backend.opts.Compress, delayedClose)
	select {
	case l.accepted <- stream:
	case <-l.closed:
		ws.Close()
		return
	}
	gwlog.Infof("WebSocket connection from %s", ws.Request().RemoteAddr)

	select {
	case <-conn.done:
	case <-l.closed:
		conn.Close()
	}
}

func (l *wsListener) Accept() (Stream, error) {
	select {
	case stream := <-l.accepted:
		return stream, nil
	case <-l.closed:
		return nil, gwerrors.NewTransportError("accept", l.ln.Addr().String(), net.ErrClosed)
	}
}

func (l *wsListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
	})
	return l.server.Close()
}

func (l *wsListener) Addr() net.Addr {
	return l.ln.Addr()
}

type wsServerConn struct {
	*websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsServerConn) Close() error {
	err := c.Conn.Close()
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return err
}
