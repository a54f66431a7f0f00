// Package session owns one live-transcription session: it authorizes, starts
// the recognizer, serves IPC control commands, and collects the final result.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/livescribe/internal/fsm"
	"github.com/rbright/livescribe/internal/ipc"
	"github.com/rbright/livescribe/internal/recognizer"
)

// DefaultStopGrace bounds the wait for a final result after cancellation.
const DefaultStopGrace = 5 * time.Second

var (
	// ErrNotAuthorized indicates the authorization request did not yield enabled.
	ErrNotAuthorized = errors.New("speech recognition not authorized")
	// ErrEmptyTranscript indicates stop completed but no usable speech was recognized.
	ErrEmptyTranscript = errors.New("no speech recognized; check microphone input or mute state")
	// ErrStopTimeout indicates the final result did not arrive within the grace period.
	ErrStopTimeout = errors.New("timed out waiting for final transcript")
)

// Adapter is the recognizer surface the controller drives.
type Adapter interface {
	SetObserver(recognizer.Observer)
	RequestAuthorization(context.Context) <-chan struct{}
	StartTranscription(context.Context) error
	StopTranscription()
	CancelTranscription()
	State() fsm.State
}

// Result is the complete lifecycle output returned by one Run invocation.
type Result struct {
	State        fsm.State
	Status       recognizer.Status
	Transcript   string
	Partials     int
	Err          error
	StartedAt    time.Time
	StopAt       time.Time
	FinishedAt   time.Time
	FinalLatency time.Duration
}

// Controller runs one session against an Adapter. It is the adapter's
// registered observer and forwards every notification to a downstream observer.
type Controller struct {
	logger     *slog.Logger
	adapter    Adapter
	downstream recognizer.Observer
	grace      time.Duration

	mu       sync.Mutex
	lastText string
	partials int

	status   chan recognizer.Status
	final    chan string
	failures chan recognizer.Failure
	stops    chan struct{}
}

var _ recognizer.Observer = (*Controller)(nil)

// NewController constructs a controller; downstream may be nil.
func NewController(logger *slog.Logger, adapter Adapter, downstream recognizer.Observer) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		logger:     logger,
		adapter:    adapter,
		downstream: downstream,
		grace:      DefaultStopGrace,
		status:     make(chan recognizer.Status, 1),
		final:      make(chan string, 1),
		failures:   make(chan recognizer.Failure, 4),
		stops:      make(chan struct{}, 1),
	}
}

// SetStopGrace overrides DefaultStopGrace.
func (c *Controller) SetStopGrace(grace time.Duration) {
	if grace > 0 {
		c.grace = grace
	}
}

// State returns the adapter's session state.
func (c *Controller) State() fsm.State {
	return c.adapter.State()
}

// Run authorizes, starts transcription, and blocks until the final result,
// a failure, or cancellation followed by the stop grace period.
func (c *Controller) Run(ctx context.Context) Result {
	result := Result{StartedAt: time.Now()}
	finish := func(err error) Result {
		result.Err = err
		result.State = c.adapter.State()
		result.Partials = c.partialCount()
		result.FinishedAt = time.Now()
		if !result.StopAt.IsZero() && err == nil {
			result.FinalLatency = result.FinishedAt.Sub(result.StopAt)
		}
		return result
	}

	c.adapter.SetObserver(c)
	defer c.adapter.SetObserver(nil)

	status, err := c.authorize(ctx)
	result.Status = status
	if err != nil {
		return finish(err)
	}

	// The session outlives ctx so a cancelled run can still stop cleanly.
	if err := c.adapter.StartTranscription(context.WithoutCancel(ctx)); err != nil {
		return finish(fmt.Errorf("start transcription: %w", err))
	}
	c.logger.Info("session recording")

	var graceC <-chan time.Time
	done := ctx.Done()
	for {
		select {
		case <-done:
			done = nil
			c.logger.Info("session cancelled; stopping", "grace", c.grace.String())
			result.StopAt = time.Now()
			c.adapter.StopTranscription()
			timer := time.NewTimer(c.grace)
			defer timer.Stop()
			graceC = timer.C
		case <-graceC:
			c.adapter.CancelTranscription()
			return finish(fmt.Errorf("%w: %w", ErrStopTimeout, context.Cause(ctx)))
		case <-c.stops:
			if result.StopAt.IsZero() {
				result.StopAt = time.Now()
			}
			c.adapter.StopTranscription()
		case text := <-c.final:
			result.Transcript = text
			if strings.TrimSpace(text) == "" {
				return finish(ErrEmptyTranscript)
			}
			return finish(nil)
		case failure := <-c.failures:
			if failure.Kind == recognizer.FailureAuthorization {
				continue
			}
			return finish(failure)
		}
	}
}

// authorize requests authorization and waits for the resulting status.
func (c *Controller) authorize(ctx context.Context) (recognizer.Status, error) {
	handled := c.adapter.RequestAuthorization(ctx)

	select {
	case status := <-c.status:
		return c.checkStatus(status)
	case <-handled:
		select {
		case status := <-c.status:
			return c.checkStatus(status)
		default:
			return recognizer.StatusDisabled, ErrNotAuthorized
		}
	case <-ctx.Done():
		return recognizer.StatusDisabled, ctx.Err()
	}
}

func (c *Controller) checkStatus(status recognizer.Status) (recognizer.Status, error) {
	if status != recognizer.StatusEnabled {
		var failure recognizer.Failure
		select {
		case failure = <-c.failures:
			return status, fmt.Errorf("%w: %w", ErrNotAuthorized, failure)
		default:
			return status, ErrNotAuthorized
		}
	}
	return status, nil
}

func (c *Controller) AuthorizationStatusChanged(status recognizer.Status) {
	if c.downstream != nil {
		c.downstream.AuthorizationStatusChanged(status)
	}
	select {
	case c.status <- status:
	default:
	}
}

func (c *Controller) RecognizedText(text string, final bool) {
	c.mu.Lock()
	c.lastText = text
	if !final {
		c.partials++
	}
	c.mu.Unlock()

	if c.downstream != nil {
		c.downstream.RecognizedText(text, final)
	}
	if final {
		select {
		case c.final <- text:
		default:
		}
	}
}

func (c *Controller) TranscriptionFailed(failure recognizer.Failure) {
	if c.downstream != nil {
		c.downstream.TranscriptionFailed(failure)
	}
	select {
	case c.failures <- failure:
	default:
		c.logger.Warn("dropping failure notification", "kind", string(failure.Kind))
	}
}

// Handle serves IPC commands for the active owner session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return ipc.Response{OK: true, State: string(c.State()), Message: "status", Text: c.text()}
	case ipc.CommandToggle, ipc.CommandStop:
		return c.requestStop(req.Command)
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("%v: %q", ipc.ErrUnknownCommand, req.Command)}
	}
}

// requestStop enqueues a stop when the session is recording.
func (c *Controller) requestStop(source ipc.Command) ipc.Response {
	state := c.State()
	if state == fsm.StateTranscribing {
		return ipc.Response{OK: false, State: string(state), Error: "already transcribing"}
	}
	if state != fsm.StateRecording {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot %s from state %s", source, state)}
	}

	select {
	case c.stops <- struct{}{}:
		return ipc.Response{OK: true, State: string(state), Message: "stop requested", Text: c.text()}
	default:
		return ipc.Response{OK: true, State: string(state), Message: "stop already requested", Text: c.text()}
	}
}

func (c *Controller) text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastText
}

func (c *Controller) partialCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partials
}
