package main

import (
	"fmt"
	"io"
	"net"
	"time"
)

const consoleDialTimeout = time.Second * 3

// runConsoleCommand sends one command line to the server console and copies the reply to out
func runConsoleCommand(port int, line string, out io.Writer) {
	if port <= 0 {
		showMsgAndQuit("console_port is not set in [server]")
	}
	err := sendConsoleCommand(fmt.Sprintf("127.0.0.1:%d", port), line, out)
	checkErrorOrQuit(err, "console command failed")
}

func sendConsoleCommand(addr string, line string, out io.Writer) error {
	conn, err := net.DialTimeout("tcp", addr, consoleDialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, line+"\n"); err != nil {
		return err
	}
	// the server replies and closes the connection once it reads EOF after the command
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.CloseWrite()
	}
	_, err = io.Copy(out, conn)
	return err
}
