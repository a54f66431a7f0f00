package relay

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/rbright/livescribe/internal/recognizer"
)

type published struct {
	subject string
	event   Event
}

type fakePublisher struct {
	messages []published
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return err
	}
	f.messages = append(f.messages, published{subject: subject, event: event})
	return nil
}

func TestRelayPublishesEverySubject(t *testing.T) {
	pub := &fakePublisher{}
	r := New(pub, "desk.mic", nil)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	r.AuthorizationStatusChanged(recognizer.StatusEnabled)
	r.RecognizedText("hel", false)
	r.RecognizedText("hello", true)
	r.TranscriptionFailed(recognizer.Failure{Kind: recognizer.FailureRecognition, Err: errors.New("boom")})

	require.Len(t, pub.messages, 4)
	require.Equal(t, "desk.mic.authorization", pub.messages[0].subject)
	require.Equal(t, Event{Kind: "authorization", Status: "enabled", Timestamp: fixed}, pub.messages[0].event)

	require.Equal(t, "desk.mic.transcript.partial", pub.messages[1].subject)
	require.Equal(t, "hel", pub.messages[1].event.Text)
	require.False(t, pub.messages[1].event.Final)

	require.Equal(t, "desk.mic.transcript.final", pub.messages[2].subject)
	require.Equal(t, "hello", pub.messages[2].event.Text)
	require.True(t, pub.messages[2].event.Final)

	require.Equal(t, "desk.mic.failure", pub.messages[3].subject)
	require.Equal(t, "recognition", pub.messages[3].event.FailureKind)
	require.Equal(t, "boom", pub.messages[3].event.Error)
}

func TestNewNormalizesPrefix(t *testing.T) {
	require.Equal(t, "livescribe.failure", New(&fakePublisher{}, "  ", nil).Subject("failure"))
	require.Equal(t, "a.b.failure", New(&fakePublisher{}, ".a.b.", nil).Subject("failure"))
}

func TestRelayPublishErrorIsLoggedNotPanicked(t *testing.T) {
	r := New(&fakePublisher{err: errors.New("disconnected")}, "", nil)
	r.RecognizedText("hello", true)
}

func TestConnectRejectsEmptyURL(t *testing.T) {
	_, err := Connect("  ", "", nil)
	require.Error(t, err)
}

func TestConnectFailsWhenServerMissing(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1", "", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "connect to nats")
}

func TestRelayOverEmbeddedServer(t *testing.T) {
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	go ns.Start()
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	require.True(t, ns.ReadyForConnections(5*time.Second))

	sub, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(sub.Close)

	msgs := make(chan *nats.Msg, 8)
	subscription, err := sub.ChanSubscribe("livescribe.>", msgs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = subscription.Unsubscribe() })
	require.NoError(t, sub.Flush())

	r, err := Connect(ns.ClientURL(), "livescribe", nil)
	require.NoError(t, err)

	r.RecognizedText("hello world", false)
	r.RecognizedText("hello world", true)
	r.Close()

	subjects := []string{}
	for len(subjects) < 2 {
		select {
		case msg := <-msgs:
			subjects = append(subjects, msg.Subject)
			var event Event
			require.NoError(t, json.Unmarshal(msg.Data, &event))
			require.Equal(t, "hello world", event.Text)
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for relay events; got %v", subjects)
		}
	}
	require.Equal(t, []string{"livescribe.transcript.partial", "livescribe.transcript.final"}, subjects)

	var nilRelay *Relay
	nilRelay.Close()
}
