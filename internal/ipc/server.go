package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// connTimeout bounds how long one client may hold a connection.
const connTimeout = 2 * time.Second

// Handler processes one validated control command.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve answers one request per connection until ctx is cancelled or the
// listener closes. Malformed requests and unknown commands are rejected
// without reaching handler. In-flight connections finish before Serve returns.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept ipc connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveConn(ctx, conn, handler)
		}()
	}
}

func serveConn(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	resp := dispatch(ctx, conn, handler)
	_ = json.NewEncoder(conn).Encode(resp)
}

// dispatch reads one request line and routes valid commands to handler.
func dispatch(ctx context.Context, r io.Reader, handler Handler) Response {
	line, err := bufio.NewReader(r).ReadBytes('\n')
	if err != nil {
		return rejected("read request: %v", err)
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return rejected("decode request: %v", err)
	}
	if !req.Command.Valid() {
		return rejected("%v: %q", ErrUnknownCommand, req.Command)
	}
	return handler.Handle(ctx, req)
}
