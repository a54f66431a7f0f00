package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning means a responsive owner already holds the socket.
var ErrAlreadyRunning = errors.New("livescribe session already running")

// SocketEnv overrides the runtime socket location.
const SocketEnv = "LIVESCRIBE_SOCKET"

// RuntimeSocketPath returns $LIVESCRIBE_SOCKET, else $XDG_RUNTIME_DIR/livescribe.sock.
func RuntimeSocketPath() (string, error) {
	if override := strings.TrimSpace(os.Getenv(SocketEnv)); override != "" {
		return override, nil
	}
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, "livescribe.sock"), nil
}

// AcquireOptions bounds stale-socket recovery in Acquire.
type AcquireOptions struct {
	// CheckTimeout limits the status request sent to an existing socket.
	CheckTimeout time.Duration
	// Retries is how many extra listen attempts follow a stale-socket removal.
	Retries int
}

// Acquire listens on path, recovering a stale socket left by a dead owner.
// It returns ErrAlreadyRunning when a live owner answers a status request.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; attempt <= opts.Retries; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		if err := clearStale(ctx, path, opts.CheckTimeout); err != nil {
			return nil, err
		}

		if attempt < opts.Retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
			}
		}
	}

	return nil, fmt.Errorf("acquire socket %s: still in use after %d retries", path, opts.Retries)
}

// clearStale removes path unless an owner still answers on it. An
// inconclusive check leaves the file in place.
func clearStale(ctx context.Context, path string, timeout time.Duration) error {
	alive, err := Responsive(ctx, path, timeout)
	if alive {
		return ErrAlreadyRunning
	}
	if err != nil {
		return fmt.Errorf("existing socket %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return nil
}
