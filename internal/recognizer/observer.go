package recognizer

import "fmt"

// FailureKind classifies a failure surfaced to observers.
type FailureKind string

const (
	FailureAuthorization FailureKind = "authorization"
	FailureCaptureStart  FailureKind = "capture_start"
	FailureTapInstall    FailureKind = "tap_install"
	FailureRecognition   FailureKind = "recognition"
)

// Failure is a session or authorization failure reported to observers.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Observer receives authorization, transcription, and failure notifications.
// Methods run on goroutines owned by the backends and must not block for long.
type Observer interface {
	AuthorizationStatusChanged(Status)
	RecognizedText(text string, final bool)
	TranscriptionFailed(Failure)
}

// ObserverFuncs adapts optional callbacks to the Observer interface.
type ObserverFuncs struct {
	OnAuthorization func(Status)
	OnText          func(text string, final bool)
	OnFailure       func(Failure)
}

func (o ObserverFuncs) AuthorizationStatusChanged(status Status) {
	if o.OnAuthorization != nil {
		o.OnAuthorization(status)
	}
}

func (o ObserverFuncs) RecognizedText(text string, final bool) {
	if o.OnText != nil {
		o.OnText(text, final)
	}
}

func (o ObserverFuncs) TranscriptionFailed(failure Failure) {
	if o.OnFailure != nil {
		o.OnFailure(failure)
	}
}

// MultiObserver fans notifications out to every non-nil observer in order.
type MultiObserver []Observer

func (m MultiObserver) AuthorizationStatusChanged(status Status) {
	for _, o := range m {
		if o != nil {
			o.AuthorizationStatusChanged(status)
		}
	}
}

func (m MultiObserver) RecognizedText(text string, final bool) {
	for _, o := range m {
		if o != nil {
			o.RecognizedText(text, final)
		}
	}
}

func (m MultiObserver) TranscriptionFailed(failure Failure) {
	for _, o := range m {
		if o != nil {
			o.TranscriptionFailed(failure)
		}
	}
}
