package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// Send writes cmd to the owner at path and reads its response, all within timeout.
func Send(ctx context.Context, path string, cmd Command, timeout time.Duration) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return Response{}, fmt.Errorf("set deadline: %w", err)
		}
	}

	if err := json.NewEncoder(conn).Encode(Request{Command: cmd}); err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return Response{}, fmt.Errorf("decode response: %w", err)
		}
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// Forward sends cmd to a running owner. handled is false when nobody listens
// on path, in which case the caller may become the owner itself. A rejected
// command is handled and returned as an error.
func Forward(ctx context.Context, path string, cmd Command, timeout time.Duration) (Response, bool, error) {
	resp, err := Send(ctx, path, cmd, timeout)
	switch {
	case err == nil:
		return resp, true, resp.Err()
	case IsSocketMissing(err), IsConnectionRefused(err):
		return Response{}, false, nil
	default:
		return Response{}, true, fmt.Errorf("forward command %q: %w", cmd, err)
	}
}

// Responsive reports whether an owner answers on path. A missing socket or a
// refused connection means nobody owns it; any other failure is inconclusive
// and returned as an error.
func Responsive(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Send(ctx, path, CommandStatus, timeout)
	switch {
	case err == nil:
		return true, nil
	case IsSocketMissing(err), IsConnectionRefused(err):
		return false, nil
	default:
		return false, fmt.Errorf("check socket owner: %w", err)
	}
}

// IsSocketMissing reports a dial failure caused by an absent socket file.
func IsSocketMissing(err error) bool {
	return err != nil && (errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOENT))
}

// IsConnectionRefused reports a dial failure caused by a socket nobody listens on.
func IsConnectionRefused(err error) bool {
	return err != nil && errors.Is(err, syscall.ECONNREFUSED)
}
