package main

import (
	"bufio"
	"bytes"
	"net"
	"testing"

	"github.com/bmizerany/assert"
)

func TestIsReplicaServer(t *testing.T) {
	assert.T(t, isReplicaServer("replicaserver"+BinaryExtension, nil))
	assert.T(t, isReplicaServer("main", []string{"/opt/colony/replicaserver" + BinaryExtension, "-d"}))
	assert.T(t, !isReplicaServer("replicabot"+BinaryExtension, []string{"replicabot", "-n", "10"}))
	assert.T(t, !isReplicaServer("bash", nil))
}

func TestSendConsoleCommand(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Equal(t, nil, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			conn.Write([]byte("got " + scanner.Text() + "\n"))
		}
	}()

	var out bytes.Buffer
	err = sendConsoleCommand(ln.Addr().String(), "save slot1", &out)
	assert.Equal(t, nil, err)
	assert.Equal(t, "got save slot1\n", out.String())
}
