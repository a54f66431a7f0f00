package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/livescribe/internal/fsm"
	"github.com/rbright/livescribe/internal/ipc"
	"github.com/rbright/livescribe/internal/recognizer"
)

type fakeAdapter struct {
	status      recognizer.Status
	authFailure error
	noStatus    bool
	startErr    error
	onStart     func(*fakeAdapter)
	onStop      func(*fakeAdapter)

	mu          sync.Mutex
	observer    recognizer.Observer
	state       fsm.State
	startCalled atomic.Bool
	stopCalls   atomic.Int32
	cancelCalls atomic.Int32
}

func (a *fakeAdapter) SetObserver(o recognizer.Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observer = o
}

func (a *fakeAdapter) currentObserver() recognizer.Observer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.observer
}

func (a *fakeAdapter) RequestAuthorization(context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		o := a.currentObserver()
		if a.authFailure != nil {
			o.TranscriptionFailed(recognizer.Failure{Kind: recognizer.FailureAuthorization, Err: a.authFailure})
		}
		if !a.noStatus {
			o.AuthorizationStatusChanged(a.status)
		}
	}()
	return done
}

func (a *fakeAdapter) StartTranscription(context.Context) error {
	a.startCalled.Store(true)
	if a.startErr != nil {
		return a.startErr
	}
	if a.onStart != nil {
		a.onStart(a)
	}
	a.setState(fsm.StateRecording)
	return nil
}

func (a *fakeAdapter) StopTranscription() {
	a.stopCalls.Add(1)
	if a.State() != fsm.StateRecording {
		return
	}
	a.setState(fsm.StateTranscribing)
	if a.onStop != nil {
		go a.onStop(a)
	}
}

func (a *fakeAdapter) CancelTranscription() {
	a.cancelCalls.Add(1)
	a.setState(fsm.StateIdle)
}

func (a *fakeAdapter) State() fsm.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == "" {
		return fsm.StateIdle
	}
	return a.state
}

func (a *fakeAdapter) setState(state fsm.State) {
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
}

func (a *fakeAdapter) partial(text string) {
	a.currentObserver().RecognizedText(text, false)
}

func (a *fakeAdapter) finish(text string) {
	a.setState(fsm.StateIdle)
	a.currentObserver().RecognizedText(text, true)
}

func (a *fakeAdapter) fail(err error) {
	a.setState(fsm.StateIdle)
	a.currentObserver().TranscriptionFailed(recognizer.Failure{Kind: recognizer.FailureRecognition, Err: err})
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []recognizer.Status
	texts    []recognizer.Result
	failures []recognizer.Failure
}

func (o *recordingObserver) AuthorizationStatusChanged(status recognizer.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func (o *recordingObserver) RecognizedText(text string, final bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.texts = append(o.texts, recognizer.Result{Text: text, Final: final})
}

func (o *recordingObserver) TranscriptionFailed(failure recognizer.Failure) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, failure)
}

func runAsync(ctx context.Context, ctrl *Controller) <-chan Result {
	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Run(ctx)
	}()
	return resultCh
}

func waitForState(t *testing.T, ctrl *Controller, want fsm.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ctrl.State() == want
	}, time.Second, 5*time.Millisecond)
}

func waitResult(t *testing.T, resultCh <-chan Result) Result {
	t.Helper()
	select {
	case result := <-resultCh:
		return result
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish")
		return Result{}
	}
}

func TestRunStopViaIPCDeliversFinal(t *testing.T) {
	adapter := &fakeAdapter{
		status:  recognizer.StatusEnabled,
		onStart: func(a *fakeAdapter) { a.partial("hel") },
		onStop: func(a *fakeAdapter) {
			a.partial("hello")
			a.finish("hello")
		},
	}
	downstream := &recordingObserver{}
	ctrl := NewController(nil, adapter, downstream)

	resultCh := runAsync(context.Background(), ctrl)
	waitForState(t, ctrl, fsm.StateRecording)

	status := ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStatus})
	require.True(t, status.OK)
	require.Equal(t, "recording", status.State)
	require.Equal(t, "hel", status.Text)

	resp := ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStop})
	require.True(t, resp.OK)
	require.Equal(t, "stop requested", resp.Message)

	result := waitResult(t, resultCh)
	require.NoError(t, result.Err)
	require.Equal(t, "hello", result.Transcript)
	require.Equal(t, recognizer.StatusEnabled, result.Status)
	require.Equal(t, fsm.StateIdle, result.State)
	require.Equal(t, 2, result.Partials)
	require.False(t, result.StopAt.IsZero())
	require.GreaterOrEqual(t, result.FinalLatency, time.Duration(0))
	require.Equal(t, int32(1), adapter.stopCalls.Load())

	require.Equal(t, []recognizer.Status{recognizer.StatusEnabled}, downstream.statuses)
	require.Equal(t, []recognizer.Result{
		{Text: "hel", Final: false},
		{Text: "hello", Final: false},
		{Text: "hello", Final: true},
	}, downstream.texts)
	require.Nil(t, adapter.currentObserver())
}

func TestRunToggleStopsRecording(t *testing.T) {
	adapter := &fakeAdapter{
		status: recognizer.StatusEnabled,
		onStop: func(a *fakeAdapter) { a.finish("done") },
	}
	ctrl := NewController(nil, adapter, nil)

	resultCh := runAsync(context.Background(), ctrl)
	waitForState(t, ctrl, fsm.StateRecording)
	require.True(t, ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandToggle}).OK)

	result := waitResult(t, resultCh)
	require.NoError(t, result.Err)
	require.Equal(t, "done", result.Transcript)
}

func TestRunNotAuthorized(t *testing.T) {
	adapter := &fakeAdapter{status: recognizer.StatusDisabled}
	ctrl := NewController(nil, adapter, nil)

	result := ctrl.Run(context.Background())
	require.ErrorIs(t, result.Err, ErrNotAuthorized)
	require.Equal(t, recognizer.StatusDisabled, result.Status)
	require.False(t, adapter.startCalled.Load())
	require.False(t, result.FinishedAt.IsZero())
}

func TestRunAuthorizationFailureKeepsCause(t *testing.T) {
	cause := errors.New("gate exploded")
	adapter := &fakeAdapter{status: recognizer.StatusDisabled, authFailure: cause}
	ctrl := NewController(nil, adapter, nil)

	result := ctrl.Run(context.Background())
	require.ErrorIs(t, result.Err, ErrNotAuthorized)
	require.ErrorIs(t, result.Err, cause)

	var failure recognizer.Failure
	require.ErrorAs(t, result.Err, &failure)
	require.Equal(t, recognizer.FailureAuthorization, failure.Kind)
}

func TestRunAuthorizationWithoutStatus(t *testing.T) {
	adapter := &fakeAdapter{noStatus: true}
	ctrl := NewController(nil, adapter, nil)

	result := ctrl.Run(context.Background())
	require.ErrorIs(t, result.Err, ErrNotAuthorized)
	require.False(t, adapter.startCalled.Load())
}

func TestRunStartFailure(t *testing.T) {
	startErr := errors.New("start failed")
	adapter := &fakeAdapter{status: recognizer.StatusEnabled, startErr: startErr}
	ctrl := NewController(nil, adapter, nil)

	result := ctrl.Run(context.Background())
	require.ErrorIs(t, result.Err, startErr)
	require.Equal(t, fsm.StateIdle, result.State)
}

func TestRunRecognitionFailure(t *testing.T) {
	boom := errors.New("stream reset")
	adapter := &fakeAdapter{
		status:  recognizer.StatusEnabled,
		onStart: func(a *fakeAdapter) { go a.fail(boom) },
	}
	downstream := &recordingObserver{}
	ctrl := NewController(nil, adapter, downstream)

	result := waitResult(t, runAsync(context.Background(), ctrl))
	require.ErrorIs(t, result.Err, boom)

	var failure recognizer.Failure
	require.ErrorAs(t, result.Err, &failure)
	require.Equal(t, recognizer.FailureRecognition, failure.Kind)
	require.Len(t, downstream.failures, 1)
}

func TestRunEmptyFinalTranscript(t *testing.T) {
	adapter := &fakeAdapter{
		status: recognizer.StatusEnabled,
		onStop: func(a *fakeAdapter) { a.finish("   ") },
	}
	ctrl := NewController(nil, adapter, nil)

	resultCh := runAsync(context.Background(), ctrl)
	waitForState(t, ctrl, fsm.StateRecording)
	require.True(t, ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStop}).OK)

	result := waitResult(t, resultCh)
	require.ErrorIs(t, result.Err, ErrEmptyTranscript)
}

func TestRunContextCancelStopsAndWaitsForFinal(t *testing.T) {
	adapter := &fakeAdapter{
		status: recognizer.StatusEnabled,
		onStop: func(a *fakeAdapter) { a.finish("cut short") },
	}
	ctrl := NewController(nil, adapter, nil)

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := runAsync(ctx, ctrl)
	waitForState(t, ctrl, fsm.StateRecording)
	cancel()

	result := waitResult(t, resultCh)
	require.NoError(t, result.Err)
	require.Equal(t, "cut short", result.Transcript)
	require.Equal(t, int32(1), adapter.stopCalls.Load())
}

func TestRunContextCancelTimesOutWithoutFinal(t *testing.T) {
	adapter := &fakeAdapter{status: recognizer.StatusEnabled}
	ctrl := NewController(nil, adapter, nil)
	ctrl.SetStopGrace(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := runAsync(ctx, ctrl)
	waitForState(t, ctrl, fsm.StateRecording)
	cancel()

	result := waitResult(t, resultCh)
	require.ErrorIs(t, result.Err, ErrStopTimeout)
	require.ErrorIs(t, result.Err, context.Canceled)
	require.Equal(t, int32(1), adapter.cancelCalls.Load())
	require.Equal(t, fsm.StateIdle, result.State)
	require.Equal(t, fsm.StateIdle, adapter.State())
}

func TestRunCancelledBeforeAuthorization(t *testing.T) {
	adapter := &fakeAdapter{noStatus: true}
	ctrl := NewController(nil, adapter, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := ctrl.Run(ctx)
	require.Error(t, result.Err)
	require.False(t, adapter.startCalled.Load())
}

func TestHandleStatusAndUnknownCommand(t *testing.T) {
	ctrl := NewController(nil, &fakeAdapter{}, nil)

	status := ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStatus})
	require.True(t, status.OK)
	require.Equal(t, string(fsm.StateIdle), status.State)

	unknown := ctrl.Handle(context.Background(), ipc.Request{Command: "definitely-unknown"})
	require.False(t, unknown.OK)
	require.Contains(t, unknown.Error, "unknown command")
}

func TestRequestStopStateGuards(t *testing.T) {
	adapter := &fakeAdapter{}
	ctrl := NewController(nil, adapter, nil)

	stopFromIdle := ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStop})
	require.False(t, stopFromIdle.OK)
	require.Contains(t, stopFromIdle.Error, "cannot stop from state idle")

	adapter.setState(fsm.StateTranscribing)
	stopFromTranscribing := ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandToggle})
	require.False(t, stopFromTranscribing.OK)
	require.Contains(t, stopFromTranscribing.Error, "already transcribing")
}

func TestRequestStopAlreadyRequested(t *testing.T) {
	adapter := &fakeAdapter{}
	adapter.setState(fsm.StateRecording)
	ctrl := NewController(nil, adapter, nil)

	first := ctrl.requestStop(ipc.CommandStop)
	require.True(t, first.OK)
	require.Equal(t, "stop requested", first.Message)

	second := ctrl.requestStop(ipc.CommandStop)
	require.True(t, second.OK)
	require.Equal(t, "stop already requested", second.Message)
}
