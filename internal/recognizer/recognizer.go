package recognizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/rbright/livescribe/internal/fsm"
)

const (
	// DefaultBufferFrames is the tap size used when Options.BufferFrames is unset.
	DefaultBufferFrames = 1024

	inputBus = 0
)

var (
	// ErrSessionActive rejects a start while a prior session still owns resources.
	ErrSessionActive = errors.New("transcription session already active")
	// ErrNotConfigured indicates the capture engine or recognition service is missing.
	ErrNotConfigured = errors.New("capture engine or recognition service not configured")
	// ErrNoInputNode indicates the capture engine exposes no microphone input.
	ErrNoInputNode = errors.New("capture engine has no input node")
	// ErrSessionEnded indicates the session was torn down while it was starting.
	ErrSessionEnded = errors.New("transcription session ended during start")
)

// Options wires the capabilities a Recognizer composes.
type Options struct {
	Authorizer   Authorizer
	Engines      EngineFactory
	Service      Service
	Logger       *slog.Logger
	BufferFrames int
	// Exit terminates the process on unrecognized authorization outcomes.
	Exit func(code int)
}

// Recognizer relays live transcription from a capture engine and a streaming
// recognition service to one registered observer.
type Recognizer struct {
	authorizer   Authorizer
	engines      EngineFactory
	service      Service
	logger       *slog.Logger
	bufferFrames int
	exit         func(int)

	mu       sync.Mutex
	observer Observer
	state    fsm.State
	active   *session
}

// session is the request/task pair plus the capture resources of one run.
type session struct {
	request      *Request
	task         Task
	engine       CaptureEngine
	node         InputNode
	tapInstalled bool
}

// New constructs a Recognizer. Missing capabilities surface as errors on use.
func New(opts Options) *Recognizer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	bufferFrames := opts.BufferFrames
	if bufferFrames <= 0 {
		bufferFrames = DefaultBufferFrames
	}
	exit := opts.Exit
	if exit == nil {
		exit = os.Exit
	}

	return &Recognizer{
		authorizer:   opts.Authorizer,
		engines:      opts.Engines,
		service:      opts.Service,
		logger:       logger,
		bufferFrames: bufferFrames,
		exit:         exit,
		state:        fsm.StateIdle,
	}
}

// SetObserver registers the observer; nil unregisters. The recognizer does not
// own the observer, so callers unregister it before discarding it.
func (r *Recognizer) SetObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// State returns the current session state snapshot.
func (r *Recognizer) State() fsm.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// RequestAuthorization asks the authorizer once, asynchronously, and notifies
// the observer. The returned channel closes when the request has been handled.
func (r *Recognizer) RequestAuthorization(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.authorize(ctx)
	}()
	return done
}

func (r *Recognizer) authorize(ctx context.Context) {
	if r.authorizer == nil {
		r.logger.Warn("speech recognition not authorized", "reason", "no authorizer configured")
		r.notifyStatus(StatusDisabled)
		return
	}

	outcome, err := r.authorizer.Authorize(ctx)
	if err != nil {
		r.logger.Warn("speech recognition authorization failed", "error", err.Error())
		r.notifyFailure(Failure{Kind: FailureAuthorization, Err: err})
		r.notifyStatus(StatusDisabled)
		return
	}

	switch outcome {
	case AuthorizationAuthorized:
		r.logger.Info("speech recognition authorized")
		r.notifyStatus(StatusEnabled)
	case AuthorizationDenied, AuthorizationRestricted, AuthorizationNotDetermined:
		r.logger.Info("speech recognition not authorized", "outcome", outcome.String())
		r.notifyStatus(StatusDisabled)
	default:
		r.logger.Error("unrecognized authorization outcome", "outcome", int(outcome))
		r.exit(1)
	}
}

// StartTranscription opens a recognition task and wires microphone buffers into
// it. It fails with ErrSessionActive unless the recognizer is idle.
func (r *Recognizer) StartTranscription(ctx context.Context) error {
	sess := &session{request: NewRequest()}
	sess.request.ShouldReportPartialResults = true

	r.mu.Lock()
	if r.state != fsm.StateIdle {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrSessionActive, state)
	}
	next, err := fsm.Transition(r.state, fsm.EventStart)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.state = next
	r.active = sess
	r.mu.Unlock()

	r.logger.Info("transcription starting")

	if r.engines == nil || r.service == nil {
		return r.abortStart(sess, FailureCaptureStart, ErrNotConfigured)
	}

	engine, err := r.engines.NewEngine(ctx)
	if err != nil {
		return r.abortStart(sess, FailureCaptureStart, fmt.Errorf("create capture engine: %w", err))
	}
	node := engine.InputNode()

	r.mu.Lock()
	sess.engine = engine
	sess.node = node
	r.mu.Unlock()

	if node == nil {
		return r.abortStart(sess, FailureCaptureStart, ErrNoInputNode)
	}

	format := node.OutputFormat(inputBus)
	sess.request.Format = format

	task, err := r.service.RecognitionTask(ctx, sess.request, func(result *Result, err error) {
		r.handleResult(sess, result, err)
	})
	if err != nil {
		return r.abortStart(sess, FailureRecognition, fmt.Errorf("open recognition task: %w", err))
	}
	if !r.attach(sess, func() { sess.task = task }) {
		task.Cancel()
		return ErrSessionEnded
	}

	err = node.InstallTap(inputBus, r.bufferFrames, format, func(buf Buffer) {
		r.appendBuffer(sess, buf)
	})
	if err != nil {
		return r.abortStart(sess, FailureTapInstall, fmt.Errorf("install tap: %w", err))
	}
	if !r.attach(sess, func() { sess.tapInstalled = true }) {
		node.RemoveTap(inputBus)
		return ErrSessionEnded
	}

	if err := engine.Prepare(); err != nil {
		return r.abortStart(sess, FailureCaptureStart, fmt.Errorf("prepare capture engine: %w", err))
	}
	if err := engine.Start(); err != nil {
		return r.abortStart(sess, FailureCaptureStart, fmt.Errorf("start capture engine: %w", err))
	}

	r.logger.Info("transcription started",
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"buffer_frames", r.bufferFrames,
	)
	return nil
}

// StopTranscription flushes buffered capture audio into the active request and
// signals end-of-audio. The final result arrives asynchronously and tears the
// session down. No-op when idle.
func (r *Recognizer) StopTranscription() {
	r.mu.Lock()
	sess := r.active
	if sess == nil || r.state != fsm.StateRecording {
		r.mu.Unlock()
		return
	}
	next, err := fsm.Transition(r.state, fsm.EventStop)
	if err == nil {
		r.state = next
	}
	node := sess.node
	r.mu.Unlock()

	r.logger.Info("transcription stop requested")
	if flusher, ok := node.(BufferFlusher); ok {
		flusher.Flush(inputBus)
	}
	sess.request.EndAudio()
}

// CancelTranscription abandons the active session without waiting for a
// final result and returns the recognizer to idle. No-op when idle.
func (r *Recognizer) CancelTranscription() {
	r.mu.Lock()
	sess := r.active
	r.mu.Unlock()
	if sess == nil {
		return
	}
	if r.teardown(sess, true) {
		r.logger.Warn("transcription cancelled",
			"bytes_appended", sess.request.BytesAppended(),
		)
	}
}

// handleResult relays one task callback and tears down on error or finality.
func (r *Recognizer) handleResult(sess *session, result *Result, err error) {
	if err != nil {
		r.logger.Error("recognition error", "error", err.Error())
	}

	if !r.isActive(sess) {
		r.logger.Debug("dropping result for inactive session")
		return
	}

	if result != nil {
		r.logger.Debug("transcription result", "length", len(result.Text), "final", result.Final)
		r.notifyText(result.Text, result.Final)
	}

	if err == nil && (result == nil || !result.Final) {
		return
	}

	if !r.teardown(sess, err != nil) {
		return
	}
	r.logger.Info("transcription stopped",
		"bytes_appended", sess.request.BytesAppended(),
		"error", err != nil,
	)
	if err != nil {
		r.notifyFailure(Failure{Kind: FailureRecognition, Err: err})
	}
}

// appendBuffer forwards tap audio to the session's request while it is live.
func (r *Recognizer) appendBuffer(sess *session, buf Buffer) {
	if !r.isActive(sess) {
		return
	}
	sess.request.Append(buf)
}

// abortStart releases a partially started session and reports the failure.
func (r *Recognizer) abortStart(sess *session, kind FailureKind, err error) error {
	if !r.teardown(sess, true) {
		return err
	}
	r.logger.Error("transcription start failed", "kind", string(kind), "error", err.Error())
	r.notifyFailure(Failure{Kind: kind, Err: err})
	return err
}

// teardown clears sess if it is still active and releases its resources.
// It reports false when another path already tore the session down.
func (r *Recognizer) teardown(sess *session, failed bool) bool {
	r.mu.Lock()
	if r.active != sess {
		r.mu.Unlock()
		return false
	}
	r.active = nil
	if failed {
		r.state, _ = fsm.Transition(r.state, fsm.EventFail)
		r.state, _ = fsm.Transition(r.state, fsm.EventReset)
	} else if next, err := fsm.Transition(r.state, fsm.EventTranscribed); err == nil {
		r.state = next
	} else {
		r.state = fsm.StateIdle
	}
	engine := sess.engine
	node := sess.node
	tapInstalled := sess.tapInstalled
	task := sess.task
	r.mu.Unlock()

	// Engine and tap calls may wait on the capture goroutine, which takes r.mu.
	if engine != nil {
		engine.Stop()
	}
	if node != nil && tapInstalled {
		node.RemoveTap(inputBus)
	}
	sess.request.Release()
	if task != nil {
		task.Cancel()
	}
	return true
}

// attach applies mutate to sess while it is still the active session.
func (r *Recognizer) attach(sess *session, mutate func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != sess {
		return false
	}
	mutate()
	return true
}

func (r *Recognizer) isActive(sess *session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active == sess
}

func (r *Recognizer) currentObserver() Observer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.observer
}

func (r *Recognizer) notifyStatus(status Status) {
	if o := r.currentObserver(); o != nil {
		o.AuthorizationStatusChanged(status)
	}
}

func (r *Recognizer) notifyText(text string, final bool) {
	if o := r.currentObserver(); o != nil {
		o.RecognizedText(text, final)
	}
}

func (r *Recognizer) notifyFailure(failure Failure) {
	if o := r.currentObserver(); o != nil {
		o.TranscriptionFailed(failure)
	}
}
