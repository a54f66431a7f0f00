// Package recognizer adapts a capture engine and a streaming recognition
// service into live transcription delivered to a registered observer.
package recognizer

import (
	"context"
	"fmt"
	"time"
)

// Status is the binary permission state reported to observers.
type Status int

const (
	StatusDisabled Status = iota
	StatusEnabled
)

func (s Status) String() string {
	switch s {
	case StatusEnabled:
		return "enabled"
	case StatusDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// AuthorizationOutcome is the raw answer from an Authorizer.
type AuthorizationOutcome int

const (
	AuthorizationNotDetermined AuthorizationOutcome = iota
	AuthorizationDenied
	AuthorizationRestricted
	AuthorizationAuthorized
)

func (o AuthorizationOutcome) String() string {
	switch o {
	case AuthorizationNotDetermined:
		return "not_determined"
	case AuthorizationDenied:
		return "denied"
	case AuthorizationRestricted:
		return "restricted"
	case AuthorizationAuthorized:
		return "authorized"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// Authorizer decides whether speech recognition may be used.
type Authorizer interface {
	Authorize(context.Context) (AuthorizationOutcome, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(context.Context) (AuthorizationOutcome, error)

func (f AuthorizerFunc) Authorize(ctx context.Context) (AuthorizationOutcome, error) {
	return f(ctx)
}

// Format describes signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerFrame returns the byte width of one interleaved sample frame.
func (f Format) BytesPerFrame() int {
	channels := f.Channels
	if channels <= 0 {
		channels = 1
	}
	return channels * 2
}

// Buffer is one block of captured audio delivered by a tap.
type Buffer struct {
	PCM    []byte
	Format Format
	When   time.Time
}

// TapFunc receives captured buffers on a goroutine owned by the capture engine.
type TapFunc func(Buffer)

// InputNode is the capture engine's microphone input.
type InputNode interface {
	OutputFormat(bus int) Format
	InstallTap(bus int, bufferFrames int, format Format, tap TapFunc) error
	RemoveTap(bus int)
}

// BufferFlusher is implemented by input nodes that hold a partially filled
// tap buffer. Flush delivers it to the installed tap.
type BufferFlusher interface {
	Flush(bus int)
}

// CaptureEngine produces live microphone buffers through its input node.
type CaptureEngine interface {
	InputNode() InputNode
	Prepare() error
	Start() error
	Stop()
}

// EngineFactory creates a fresh capture engine for each session.
type EngineFactory interface {
	NewEngine(context.Context) (CaptureEngine, error)
}

// EngineFactoryFunc adapts a function to the EngineFactory interface.
type EngineFactoryFunc func(context.Context) (CaptureEngine, error)

func (f EngineFactoryFunc) NewEngine(ctx context.Context) (CaptureEngine, error) {
	return f(ctx)
}

// Result is one transcription hypothesis.
type Result struct {
	Text  string
	Final bool
}

// ResultHandler receives results and errors from a recognition task. It may
// be invoked with a result, an error, or both.
type ResultHandler func(*Result, error)

// Task is one in-flight streaming recognition operation.
type Task interface {
	Cancel()
}

// Service opens streaming recognition tasks that consume a Request.
type Service interface {
	RecognitionTask(ctx context.Context, req *Request, handler ResultHandler) (Task, error)
}
