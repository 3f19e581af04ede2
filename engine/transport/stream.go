package transport

import (
	"io"
	"net"
	"time"

	"github.com/colonyworld/replica/engine/consts"
	"github.com/colonyworld/replica/engine/gwerrors"
	"github.com/colonyworld/replica/engine/gwioutil"
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/netconnutil"
)

// netConn adds a no-op Flush to a net.Conn
type netConn struct {
	net.Conn
}

func (n netConn) Flush() error {
	return nil
}

// pumpedStream turns a blocking net.Conn into a Stream that can be polled.
//
// A pump goroutine moves received chunks into a queue; the owner goroutine only reads what is already there.
type pumpedStream struct {
	raw    net.Conn
	conn   netconnutil.FlushableConn
	chunks *xnsyncutil.SyncQueue
	linger func(raw net.Conn, d time.Duration)

	pending []byte
	readErr error
	closed  xnsyncutil.AtomicBool
}

func newPumpedStream(raw net.Conn, conn netconnutil.FlushableConn, linger func(raw net.Conn, d time.Duration)) *pumpedStream {
	s := &pumpedStream{
		raw:    raw,
		conn:   conn,
		chunks: xnsyncutil.NewSyncQueue(),
		linger: linger,
	}
	go s.pump()
	return s
}

// newBufferedStream wraps the conn with no-temp-error and buffered layers, optionally snappy compressed
func newBufferedStream(raw net.Conn, compress bool, linger func(raw net.Conn, d time.Duration)) *pumpedStream {
	var conn netconnutil.FlushableConn = netConn{netconnutil.NewNoTempErrorConn(raw)}
	if compress {
		conn = netconnutil.NewSnappyConn(conn)
	}
	conn = netconnutil.NewBufferedConn(conn, consts.BUFFERED_READ_BUFFSIZE, consts.BUFFERED_WRITE_BUFFSIZE)
	return newPumpedStream(raw, conn, linger)
}

func (s *pumpedStream) pump() {
	for {
		buf := make([]byte, consts.STREAM_READ_CHUNK_SIZE)
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.chunks.Push(buf[:n])
		}
		if err != nil {
			if err != io.EOF && !s.closed.Load() {
				gwlog.Debugf("stream %s read failed: %v", s.raw.RemoteAddr(), err)
			}
			s.chunks.Push(err)
			return
		}
	}
}

func (s *pumpedStream) Available() bool {
	return len(s.pending) > 0 || s.readErr != nil || s.chunks.Len() > 0
}

func (s *pumpedStream) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		if s.readErr != nil {
			return 0, s.readErr
		}

		switch v := s.chunks.Pop().(type) {
		case []byte:
			s.pending = v
		case error:
			s.readErr = gwerrors.NewTransportError("read", s.raw.RemoteAddr().String(), v)
			return 0, s.readErr
		default: // queue closed
			s.readErr = gwerrors.NewTransportError("read", s.raw.RemoteAddr().String(), io.EOF)
			return 0, s.readErr
		}
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *pumpedStream) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, gwerrors.NewTransportError("write", s.raw.RemoteAddr().String(), io.ErrClosedPipe)
	}
	if err := gwioutil.WriteAll(s.conn, p); err != nil {
		return 0, gwerrors.NewTransportError("write", s.raw.RemoteAddr().String(), err)
	}
	return len(p), nil
}

func (s *pumpedStream) Flush() error {
	if s.closed.Load() {
		return gwerrors.NewTransportError("flush", s.raw.RemoteAddr().String(), io.ErrClosedPipe)
	}
	if err := s.conn.Flush(); err != nil {
		return gwerrors.NewTransportError("flush", s.raw.RemoteAddr().String(), err)
	}
	return nil
}

func (s *pumpedStream) CloseLinger(linger time.Duration) error {
	if s.closed.Load() {
		return nil
	}
	flushErr := s.conn.Flush()
	s.closed.Store(true)
	if s.linger != nil {
		s.linger(s.raw, linger)
	} else {
		go s.raw.Close()
	}
	if flushErr != nil {
		return gwerrors.NewTransportError("close", s.raw.RemoteAddr().String(), flushErr)
	}
	return nil
}

func (s *pumpedStream) LocalAddr() net.Addr {
	return s.raw.LocalAddr()
}

func (s *pumpedStream) RemoteAddr() net.Addr {
	return s.raw.RemoteAddr()
}

func (s *pumpedStream) String() string {
	return s.raw.LocalAddr().String() + " >>> " + s.raw.RemoteAddr().String()
}

// delayedClose waits up to d for the peer to drain before closing raw, without blocking the caller
func delayedClose(raw net.Conn, d time.Duration) {
	go func() {
		if d > 0 {
			raw.SetWriteDeadline(time.Now().Add(d))
			time.Sleep(d)
		}
		raw.Close()
	}()
}
