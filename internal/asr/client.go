// Package asr streams microphone audio to a gRPC speech recognition service.
package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rbright/livescribe/internal/recognizer"
	"github.com/rbright/livescribe/internal/transcript"
	"github.com/rbright/livescribe/internal/version"
)

const defaultDialTimeout = 3 * time.Second

// SpeechPhrase is one vocabulary boost phrase in request-ready form.
type SpeechPhrase struct {
	Phrase string
	Boost  float32
}

// Config controls dialing and recognition behavior.
type Config struct {
	Endpoint             string
	LanguageCode         string
	Model                string
	AutomaticPunctuation bool
	SpeechPhrases        []SpeechPhrase
	DialTimeout          time.Duration
	TrailingSpace        bool
	// DebugResponseSinkJSON receives every response as one protojson line.
	DebugResponseSinkJSON io.Writer
	Logger                *slog.Logger
}

// Client opens recognition tasks against one endpoint. Each task owns its
// own connection for the lifetime of the stream.
type Client struct {
	cfg    Config
	logger *slog.Logger
}

var _ recognizer.Service = (*Client)(nil)

// New validates cfg and applies defaults. It does not dial.
func New(cfg Config) (*Client, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		return nil, errors.New("asr endpoint is empty")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if strings.TrimSpace(cfg.LanguageCode) == "" {
		cfg.LanguageCode = "en-US"
	}
	cfg.Model = strings.TrimSpace(cfg.Model)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{cfg: cfg, logger: logger}, nil
}

// Endpoint returns the configured gRPC target.
func (c *Client) Endpoint() string {
	return c.cfg.Endpoint
}

// Health asks the standard gRPC health service about the recognizer service.
func (c *Client) Health(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	defer func() { _ = conn.Close() }()

	checkCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("check asr health: %w", err)
	}
	return resp.GetStatus(), nil
}

// RecognitionTask dials the service, opens a StreamingRecognize stream, sends
// the config message, and starts pumping req into it. handler receives
// partial results as the best transcript changes and one final result when
// the server closes the stream.
func (c *Client) RecognitionTask(ctx context.Context, req *recognizer.Request, handler recognizer.ResultHandler) (recognizer.Task, error) {
	if req == nil {
		return nil, errors.New("recognition request is nil")
	}
	if handler == nil {
		return nil, errors.New("result handler is nil")
	}

	configMsg, err := configRequest(c.cfg, req.Format)
	if err != nil {
		return nil, err
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := runWithTimeout(streamCtx, c.cfg.DialTimeout, func() (grpc.ClientStream, error) {
		return conn.NewStream(streamCtx, &recognizeStreamDesc, StreamingRecognizeMethod)
	})
	if err != nil {
		cancel()
		_ = conn.Close()
		return nil, fmt.Errorf("open streaming recognizer: %w", err)
	}

	_, err = runWithTimeout(streamCtx, c.cfg.DialTimeout, func() (struct{}, error) {
		return struct{}{}, stream.SendMsg(configMsg)
	})
	if err != nil {
		cancel()
		_ = conn.Close()
		return nil, fmt.Errorf("send initial streaming config: %w", err)
	}

	t := &task{
		ctx:       streamCtx,
		cancel:    cancel,
		conn:      conn,
		stream:    stream,
		req:       req,
		handler:   handler,
		partials:  req.ShouldReportPartialResults,
		assembly:  transcript.Options{TrailingSpace: c.cfg.TrailingSpace},
		debugSink: c.cfg.DebugResponseSinkJSON,
		logger:    c.logger,
		done:      make(chan struct{}),
	}
	go t.sendLoop()
	go t.recvLoop()

	c.logger.Debug("recognition task opened", "endpoint", c.cfg.Endpoint, "partial_results", t.partials)
	return t, nil
}

// dial creates a connection and blocks until it is ready or DialTimeout expires.
func (c *Client) dial(ctx context.Context) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(
		c.cfg.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUserAgent(version.UserAgent()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial asr grpc %q: %w", c.cfg.Endpoint, err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	conn.Connect()
	if err := waitForReady(readyCtx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wait for asr grpc readiness: %w", err)
	}
	return conn, nil
}
