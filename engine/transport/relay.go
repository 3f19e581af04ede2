package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/colonyworld/replica/engine/gwerrors"
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"
)

const (
	// RelayDialerChannel carries traffic from the dialing peer to the accepting peer
	RelayDialerChannel byte = 0
	// RelayAcceptorChannel carries traffic from the accepting peer to the dialing peer
	RelayAcceptorChannel byte = 1

	_RELAY_ALPN              = "colony-replica-relay"
	_RELAY_HANDSHAKE_TIMEOUT = 10 * time.Second
	_RELAY_KEEPALIVE         = 5 * time.Second
	_RELAY_IDLE_TIMEOUT      = 30 * time.Second
	_RELAY_ACCEPT_BACKLOG    = 64
)

func init() {
	register("relay", func(opts Options) Backend {
		return NewRelayBackend(opts)
	})
}

// RelayBackend carries streams between peers over QUIC.
//
// Each direction is its own unidirectional QUIC stream tagged with a channel number,
// so either peer may send first without the two directions being confused.
// Incoming sessions are accepted from any peer without a handshake step.
type RelayBackend struct {
	opts Options
}

// NewRelayBackend creates a relay backend
func NewRelayBackend(opts Options) *RelayBackend {
	return &RelayBackend{opts: opts}
}

func (b *RelayBackend) Name() string {
	return "relay"
}

func (b *RelayBackend) quicConfig() *quic.Config {
	return &quic.Config{
		HandshakeIdleTimeout: _RELAY_HANDSHAKE_TIMEOUT,
		MaxIdleTimeout:       _RELAY_IDLE_TIMEOUT,
		KeepAlivePeriod:      _RELAY_KEEPALIVE,
	}
}

func (b *RelayBackend) Dial(address string) *Pending {
	return newPending(func(ctx context.Context) (Stream, error) {
		tlsConf := &tls.Config{
			InsecureSkipVerify: true,
			NextProtos:         []string{_RELAY_ALPN},
		}
		conn, err := quic.DialAddr(ctx, address, tlsConf, b.quicConfig())
		if err != nil {
			return nil, gwerrors.NewTransportError("connect", address, err)
		}

		rc, err := openRelayChannels(ctx, conn, RelayDialerChannel, RelayAcceptorChannel)
		if err != nil {
			conn.CloseWithError(quic.ApplicationErrorCode(1), "channel setup failed")
			return nil, gwerrors.NewTransportError("connect", address, err)
		}
		return newBufferedStream(rc, b.opts.Compress, relayLinger), nil
	})
}

func (b *RelayBackend) Listen(address string) (Listener, error) {
	tlsConf, err := relayServerTLSConfig()
	if err != nil {
		return nil, gwerrors.NewTransportError("listen", address, err)
	}
	ln, err := quic.ListenAddr(address, tlsConf, b.quicConfig())
	if err != nil {
		return nil, gwerrors.NewTransportError("listen", address, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &relayListener{
		ln:       ln,
		backend:  b,
		ctx:      ctx,
		cancel:   cancel,
		accepted: make(chan Stream, _RELAY_ACCEPT_BACKLOG),
	}
	go l.acceptLoop()
	gwlog.Infof("Listening on relay (QUIC): %s ...", ln.Addr())
	return l, nil
}

type relayListener struct {
	ln       *quic.Listener
	backend  *RelayBackend
	ctx      context.Context
	cancel   context.CancelFunc
	accepted chan Stream
}

// acceptLoop auto-accepts every incoming session and sets up its channels in the background
func (l *relayListener) acceptLoop() {
	for {
		conn, err := l.ln.Accept(l.ctx)
		if err != nil {
			if l.ctx.Err() == nil {
				gwlog.Errorf("relay listener %s accept failed: %v", l.ln.Addr(), err)
			}
			return
		}

		go func(conn quic.Connection) {
			ctx, cancel := context.WithTimeout(l.ctx, _RELAY_HANDSHAKE_TIMEOUT)
			defer cancel()
			rc, err := openRelayChannels(ctx, conn, RelayAcceptorChannel, RelayDialerChannel)
			if err != nil {
				gwlog.Warnf("relay session from %s dropped: %v", conn.RemoteAddr(), err)
				conn.CloseWithError(quic.ApplicationErrorCode(1), "channel setup failed")
				return
			}
			gwlog.Infof("Relay session from %s", conn.RemoteAddr())
			select {
			case l.accepted <- newBufferedStream(rc, l.backend.opts.Compress, relayLinger):
			case <-l.ctx.Done():
				rc.Close()
			}
		}(conn)
	}
}

func (l *relayListener) Accept() (Stream, error) {
	select {
	case stream := <-l.accepted:
		return stream, nil
	case <-l.ctx.Done():
		return nil, gwerrors.NewTransportError("accept", l.ln.Addr().String(), net.ErrClosed)
	}
}

func (l *relayListener) Close() error {
	l.cancel()
	return l.ln.Close()
}

func (l *relayListener) Addr() net.Addr {
	return l.ln.Addr()
}

// openRelayChannels opens the outbound channel and accepts the inbound one
func openRelayChannels(ctx context.Context, conn quic.Connection, sendChannel byte, recvChannel byte) (*relayConn, error) {
	send, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "open send channel")
	}
	// a unidirectional stream is only announced to the peer once data is written on it
	if _, err := send.Write([]byte{sendChannel}); err != nil {
		return nil, errors.Wrap(err, "announce send channel")
	}

	recv, err := conn.AcceptUniStream(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "accept receive channel")
	}
	tag := []byte{0}
	if deadline, ok := ctx.Deadline(); ok {
		recv.SetReadDeadline(deadline)
	}
	if _, err := recv.Read(tag); err != nil {
		return nil, errors.Wrap(err, "read receive channel")
	}
	recv.SetReadDeadline(time.Time{})
	if tag[0] != recvChannel {
		return nil, errors.Errorf("expect channel %d, but peer opened channel %d", recvChannel, tag[0])
	}

	return &relayConn{conn: conn, send: send, recv: recv}, nil
}

// relayConn presents the two channels of a relay session as one net.Conn
type relayConn struct {
	conn      quic.Connection
	send      quic.SendStream
	recv      quic.ReceiveStream
	closeOnce sync.Once
}

func (c *relayConn) Read(p []byte) (int, error) {
	return c.recv.Read(p)
}

func (c *relayConn) Write(p []byte) (int, error) {
	return c.send.Write(p)
}

func (c *relayConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.send.Close()
		err = c.conn.CloseWithError(0, "closed")
	})
	return err
}

func (c *relayConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *relayConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *relayConn) SetDeadline(t time.Time) error {
	c.recv.SetReadDeadline(t)
	return c.send.SetWriteDeadline(t)
}

func (c *relayConn) SetReadDeadline(t time.Time) error {
	return c.recv.SetReadDeadline(t)
}

func (c *relayConn) SetWriteDeadline(t time.Time) error {
	return c.send.SetWriteDeadline(t)
}

// relayLinger finishes the send channel so queued bytes are delivered, and drops the session after d
func relayLinger(raw net.Conn, d time.Duration) {
	rc := raw.(*relayConn)
	rc.send.Close()
	time.AfterFunc(d, func() {
		rc.Close()
	})
}

var (
	relayTLSOnce sync.Once
	relayTLSConf *tls.Config
	relayTLSErr  error
)

// relayServerTLSConfig generates a self-signed certificate once per process, peers are not verified
func relayServerTLSConfig() (*tls.Config, error) {
	relayTLSOnce.Do(func() {
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			relayTLSErr = err
			return
		}

		template := x509.Certificate{
			SerialNumber: big.NewInt(1),
			NotBefore:    time.Now().Add(-time.Hour),
			NotAfter:     time.Now().Add(365 * 24 * time.Hour),
			KeyUsage:     x509.KeyUsageDigitalSignature,
			ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
			DNSNames:     []string{"localhost"},
			IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		}
		der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
		if err != nil {
			relayTLSErr = err
			return
		}

		relayTLSConf = &tls.Config{
			Certificates: []tls.Certificate{{
				Certificate: [][]byte{der},
				PrivateKey:  priv,
			}},
			NextProtos: []string{_RELAY_ALPN},
		}
	})
	return relayTLSConf, relayTLSErr
}
