// Package authz decides whether live transcription may run by probing the
// local policy, the capture device, and the recognition service.
package authz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rbright/livescribe/internal/audio"
	"github.com/rbright/livescribe/internal/recognizer"
)

// Check is one readiness assertion and the outcome it implies.
type Check struct {
	Name    string
	Pass    bool
	Message string
	Outcome recognizer.AuthorizationOutcome
}

// Report is the full set of checks plus the combined outcome.
type Report struct {
	Checks  []Check
	Outcome recognizer.AuthorizationOutcome
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	b.WriteString(fmt.Sprintf("authorization: %s", r.Outcome))
	return b.String()
}

// DeviceSelector resolves the capture device the session would use.
type DeviceSelector func(ctx context.Context, input string, fallback string) (audio.Selection, error)

// HealthChecker checks the recognition service.
type HealthChecker interface {
	Endpoint() string
	Health(context.Context) (healthpb.HealthCheckResponse_ServingStatus, error)
}

// Options configures a Gate.
type Options struct {
	Enabled    bool
	ConfigPath string
	Input      string
	Fallback   string
	Devices    DeviceSelector
	Health     HealthChecker
	Logger     *slog.Logger
}

// Gate implements recognizer.Authorizer from readiness checks.
type Gate struct {
	opts   Options
	logger *slog.Logger
}

var _ recognizer.Authorizer = (*Gate)(nil)

// NewGate returns a gate; a nil Devices selector uses audio.SelectDevice.
func NewGate(opts Options) *Gate {
	if opts.Devices == nil {
		opts.Devices = audio.SelectDevice
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gate{opts: opts, logger: logger}
}

// Authorize runs every check and returns the combined outcome.
func (g *Gate) Authorize(ctx context.Context) (recognizer.AuthorizationOutcome, error) {
	report := g.Check(ctx)
	for _, check := range report.Checks {
		if !check.Pass {
			g.logger.Info("authorization check failed", "check", check.Name, "outcome", check.Outcome.String(), "message", check.Message)
		}
	}
	return report.Outcome, nil
}

// Check runs all checks. The combined outcome is the most restrictive one.
func (g *Gate) Check(ctx context.Context) Report {
	checks := []Check{}
	if path := strings.TrimSpace(g.opts.ConfigPath); path != "" {
		checks = append(checks, pass("config", fmt.Sprintf("loaded %q", path)))
	}
	checks = append(checks, g.checkPolicy())
	checks = append(checks, g.checkAudioSelection(ctx))
	checks = append(checks, g.checkHealth(ctx))

	outcome := recognizer.AuthorizationAuthorized
	for _, check := range checks {
		if severity(check.Outcome) > severity(outcome) {
			outcome = check.Outcome
		}
	}
	return Report{Checks: checks, Outcome: outcome}
}

// checkPolicy reflects recognition.enable.
func (g *Gate) checkPolicy() Check {
	if !g.opts.Enabled {
		return fail("recognition.enable", "recognition disabled by configuration", recognizer.AuthorizationRestricted)
	}
	return pass("recognition.enable", "recognition enabled")
}

// checkAudioSelection runs live device selection to surface muted or missing inputs.
func (g *Gate) checkAudioSelection(ctx context.Context) Check {
	selection, err := g.opts.Devices(ctx, g.opts.Input, g.opts.Fallback)
	if err != nil {
		if errors.Is(err, audio.ErrMuted) {
			return fail("audio.device", err.Error(), recognizer.AuthorizationDenied)
		}
		return fail("audio.device", err.Error(), recognizer.AuthorizationNotDetermined)
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return pass("audio.device", message)
}

// checkHealth queries the recognizer's gRPC health status.
func (g *Gate) checkHealth(ctx context.Context) Check {
	if g.opts.Health == nil {
		return fail("asr.health", "recognition service not configured", recognizer.AuthorizationNotDetermined)
	}

	endpoint := g.opts.Health.Endpoint()
	status, err := g.opts.Health.Health(ctx)
	if err != nil {
		return fail("asr.health", fmt.Sprintf("%s unreachable: %v", endpoint, err), recognizer.AuthorizationNotDetermined)
	}

	switch status {
	case healthpb.HealthCheckResponse_SERVING:
		return pass("asr.health", fmt.Sprintf("serving at %s", endpoint))
	case healthpb.HealthCheckResponse_NOT_SERVING:
		return fail("asr.health", fmt.Sprintf("not serving at %s", endpoint), recognizer.AuthorizationDenied)
	default:
		return fail("asr.health", fmt.Sprintf("%s at %s", status, endpoint), recognizer.AuthorizationNotDetermined)
	}
}

func pass(name string, message string) Check {
	return Check{Name: name, Pass: true, Message: message, Outcome: recognizer.AuthorizationAuthorized}
}

func fail(name string, message string, outcome recognizer.AuthorizationOutcome) Check {
	return Check{Name: name, Pass: false, Message: message, Outcome: outcome}
}

// severity orders outcomes from permissive to restrictive.
func severity(outcome recognizer.AuthorizationOutcome) int {
	switch outcome {
	case recognizer.AuthorizationAuthorized:
		return 0
	case recognizer.AuthorizationNotDetermined:
		return 1
	case recognizer.AuthorizationDenied:
		return 2
	case recognizer.AuthorizationRestricted:
		return 3
	default:
		return 4
	}
}
