// Package ipc carries newline-delimited JSON control commands between
// livescribe invocations and the session owner over a unix socket.
package ipc

import (
	"errors"
	"fmt"
)

// Command is one control command understood by the session owner.
type Command string

const (
	CommandStatus Command = "status"
	CommandStop   Command = "stop"
	CommandToggle Command = "toggle"
)

// ErrUnknownCommand rejects requests outside the command set.
var ErrUnknownCommand = errors.New("unknown command")

// Valid reports whether c is part of the command set.
func (c Command) Valid() bool {
	switch c {
	case CommandStatus, CommandStop, CommandToggle:
		return true
	default:
		return false
	}
}

// Request is one control command sent to the owner.
type Request struct {
	Command Command `json:"command"`
}

// Response reports the owner's session state and, when available, the latest
// transcript text.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Err returns the owner's rejection as an error, or nil when OK.
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	if r.Error == "" {
		return errors.New("request rejected")
	}
	return errors.New(r.Error)
}

func rejected(format string, args ...any) Response {
	return Response{OK: false, Error: fmt.Sprintf(format, args...)}
}
