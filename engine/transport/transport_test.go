package transport

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/colonyworld/replica/engine/gwerrors"
)

// readExactly polls the stream like a tick loop would until n bytes arrived
func readExactly(t *testing.T, s Stream, n int) []byte {
	deadline := time.Now().Add(5 * time.Second)
	var got []byte
	buf := make([]byte, 1024)
	for len(got) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timeout: got %d of %d bytes", len(got), n)
		}
		if !s.Available() {
			time.Sleep(time.Millisecond)
			continue
		}
		k, err := s.Read(buf)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		got = append(got, buf[:k]...)
	}
	return got
}

func roundTrip(t *testing.T, backend Backend, address string) {
	ln, err := backend.Listen(address)
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	accepted := make(chan Stream, 1)
	go func() {
		s, err := ln.Accept()
		if err != nil {
			t.Errorf("accept failed: %v", err)
			close(accepted)
			return
		}
		accepted <- s
	}()

	pending := backend.Dial(ln.Addr().String())
	client, err := pending.Result()
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	assert.T(t, pending.Done(), "pending should be done")

	// the dialer writes first, some backends only announce the session on first data
	msg := []byte("hello colony")
	_, err = client.Write(msg)
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, client.Flush())

	server := <-accepted
	if server == nil {
		t.FailNow()
	}
	assert.T(t, bytes.Equal(msg, readExactly(t, server, len(msg))), "server received wrong bytes")

	reply := bytes.Repeat([]byte{7}, 20000)
	_, err = server.Write(reply)
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, server.Flush())
	assert.T(t, bytes.Equal(reply, readExactly(t, client, len(reply))), "client received wrong bytes")

	assert.Equal(t, nil, client.CloseLinger(100*time.Millisecond))
	deadline := time.Now().Add(5 * time.Second)
	for !server.Available() {
		if time.Now().After(deadline) {
			t.Fatalf("server never saw the close")
		}
		time.Sleep(time.Millisecond)
	}
	_, err = server.Read(make([]byte, 16))
	assert.Tf(t, gwerrors.IsTransportError(err), "read after peer close should be a transport error: %v", err)
	server.CloseLinger(0)
}

func TestPipeBackend(t *testing.T) {
	backend, err := Get("pipe", DefaultOptions())
	assert.Equal(t, nil, err)
	roundTrip(t, backend, "test-pipe")
}

func TestTCPBackend(t *testing.T) {
	roundTrip(t, NewTCPBackend(DefaultOptions()), "127.0.0.1:0")
}

func TestTCPBackendCompressed(t *testing.T) {
	opts := DefaultOptions()
	opts.Compress = true
	roundTrip(t, NewTCPBackend(opts), "127.0.0.1:0")
}

func TestRelayBackend(t *testing.T) {
	roundTrip(t, NewRelayBackend(DefaultOptions()), "127.0.0.1:0")
}

func TestWebSocketBackend(t *testing.T) {
	roundTrip(t, NewWebSocketBackend(DefaultOptions()), "127.0.0.1:0")
}

func TestWebSocketDialTimeout(t *testing.T) {
	// accepts tcp but never answers the websocket handshake
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	saved := dialTimeout
	dialTimeout = 200 * time.Millisecond
	defer func() { dialTimeout = saved }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = NewWebSocketBackend(DefaultOptions()).Dial(ln.Addr().String()).Wait(ctx)
	assert.T(t, ctx.Err() == nil, "dial should give up before the wait does")
	assert.Tf(t, gwerrors.IsTransportError(err), "stalled handshake should be a transport error: %v", err)
}

func TestGetUnknownBackend(t *testing.T) {
	_, err := Get("carrier-pigeon", DefaultOptions())
	assert.T(t, err != nil, "unknown backend should fail")
	assert.Equal(t, []string{"kcp", "pipe", "relay", "tcp", "ws"}, Names())
}

func TestDialRefused(t *testing.T) {
	pending := PipeBackend{}.Dial("nobody-listens-here")
	assert.T(t, pending.Done(), "refused dial should finish immediately")
	_, err := pending.Result()
	assert.T(t, gwerrors.IsTransportError(err), "refused dial should be a transport error")
}

func TestWriteAfterClose(t *testing.T) {
	a, b := Pipe()
	defer b.CloseLinger(0)
	a.CloseLinger(0)
	_, err := a.Write([]byte{1})
	assert.T(t, gwerrors.IsTransportError(err), "write after close should be a transport error")
}
