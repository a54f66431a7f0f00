package ipc

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// startOwner serves handler on a fresh socket and returns its path plus a
// shutdown func that waits for Serve to return.
func startOwner(t *testing.T, handler HandlerFunc) (string, func()) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "livescribe.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, listener, handler) }()

	var stopped bool
	shutdown := func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		require.NoError(t, <-done)
	}
	t.Cleanup(shutdown)
	return socketPath, shutdown
}

// rawExchange writes line to the socket and returns the single reply line.
func rawExchange(t *testing.T, socketPath, line string) []byte {
	t.Helper()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(line))
	require.NoError(t, err)

	reply := make([]byte, 0, 256)
	buf := make([]byte, 256)
	for {
		n, readErr := conn.Read(buf)
		reply = append(reply, buf[:n]...)
		if readErr != nil || (n > 0 && buf[n-1] == '\n') {
			break
		}
	}
	return reply
}
