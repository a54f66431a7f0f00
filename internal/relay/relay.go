// Package relay publishes recognizer notifications to NATS subjects.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rbright/livescribe/internal/recognizer"
	"github.com/rbright/livescribe/internal/version"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "livescribe"

// Publisher is the subset of *nats.Conn the relay needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Event is the JSON payload published for every notification.
type Event struct {
	Kind        string    `json:"kind"`
	Status      string    `json:"status,omitempty"`
	Text        string    `json:"text,omitempty"`
	Final       bool      `json:"final,omitempty"`
	FailureKind string    `json:"failure_kind,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Relay is a recognizer.Observer that publishes each notification.
type Relay struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
	now    func() time.Time
	conn   *nats.Conn
}

var _ recognizer.Observer = (*Relay)(nil)

// New wraps an existing publisher.
func New(pub Publisher, prefix string, logger *slog.Logger) *Relay {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Relay{
		pub:    pub,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
	}
}

// Connect dials NATS at url and returns a relay owning the connection.
func Connect(url string, prefix string, logger *slog.Logger) (*Relay, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("nats url is empty")
	}

	conn, err := nats.Connect(url,
		nats.Name(version.Name),
		nats.Timeout(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	r := New(conn, prefix, logger)
	r.conn = conn
	r.logger.Info("connected to NATS", slog.String("url", url), slog.String("prefix", r.prefix))
	return r, nil
}

// Close flushes and closes an owned connection. Safe on nil.
func (r *Relay) Close() {
	if r == nil || r.conn == nil {
		return
	}
	if err := r.conn.Drain(); err != nil {
		r.logger.Warn("drain nats connection", slogError(err))
	}
	r.conn.Close()
}

// Subject returns the full subject for a suffix.
func (r *Relay) Subject(suffix string) string {
	return r.prefix + "." + suffix
}

func (r *Relay) AuthorizationStatusChanged(status recognizer.Status) {
	r.publish("authorization", Event{Kind: "authorization", Status: status.String()})
}

func (r *Relay) RecognizedText(text string, final bool) {
	suffix := "transcript.partial"
	if final {
		suffix = "transcript.final"
	}
	r.publish(suffix, Event{Kind: "transcript", Text: text, Final: final})
}

func (r *Relay) TranscriptionFailed(failure recognizer.Failure) {
	event := Event{Kind: "failure", FailureKind: string(failure.Kind)}
	if failure.Err != nil {
		event.Error = failure.Err.Error()
	}
	r.publish("failure", event)
}

func (r *Relay) publish(suffix string, event Event) {
	event.Timestamp = r.now().UTC()
	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Warn("failed to marshal relay event", slogError(err))
		return
	}
	subject := r.Subject(suffix)
	if err := r.pub.Publish(subject, data); err != nil {
		r.logger.Warn("failed to publish relay event", slog.String("subject", subject), slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
