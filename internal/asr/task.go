package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rbright/livescribe/internal/recognizer"
	"github.com/rbright/livescribe/internal/transcript"
)

// task is one StreamingRecognize stream bound to a recognition request.
type task struct {
	ctx    context.Context
	cancel context.CancelFunc
	conn   *grpc.ClientConn
	stream grpc.ClientStream

	req       *recognizer.Request
	handler   recognizer.ResultHandler
	partials  bool
	assembly  transcript.Options
	debugSink io.Writer
	logger    *slog.Logger

	// tracker is owned by recvLoop.
	tracker   transcript.Tracker
	cancelled atomic.Bool
	done      chan struct{}
}

// Cancel aborts the stream. The handler is not invoked after Cancel returns,
// except for a callback already in flight.
func (t *task) Cancel() {
	t.cancelled.Store(true)
	t.cancel()
}

// sendLoop pumps request audio into the stream and half-closes on end-of-audio.
func (t *task) sendLoop() {
	for {
		buf, err := t.req.Read(t.ctx)
		if errors.Is(err, io.EOF) {
			if err := t.stream.CloseSend(); err != nil {
				t.logger.Debug("close send failed", "error", err.Error())
			}
			return
		}
		if err != nil {
			return
		}

		msg, err := audioRequest(buf.PCM)
		if err != nil {
			t.logger.Error("drop audio buffer", "error", err.Error())
			continue
		}
		// A failed send means the stream is gone; recvLoop reports the status.
		if err := t.stream.SendMsg(msg); err != nil {
			return
		}
	}
}

// recvLoop receives responses until the server closes the stream or it fails.
func (t *task) recvLoop() {
	defer close(t.done)
	defer func() { _ = t.conn.Close() }()
	defer t.cancel()

	for {
		resp := &structpb.Struct{}
		err := t.stream.RecvMsg(resp)
		if err == nil {
			t.record(resp)
			continue
		}
		if t.cancelled.Load() {
			return
		}
		if errors.Is(err, io.EOF) {
			text := transcript.Assemble(t.tracker.Segments(), t.assembly)
			t.handler(&recognizer.Result{Text: text, Final: true}, nil)
			return
		}
		t.handler(nil, fmt.Errorf("receive recognition response: %w", err))
		return
	}
}

// record merges one response and reports a partial when the best transcript changed.
func (t *task) record(resp *structpb.Struct) {
	t.writeDebug(resp)

	changed := false
	for _, result := range decodeResults(resp) {
		if t.tracker.Record(transcript.Segment{Text: result.Transcript, Final: result.Final}) {
			changed = true
		}
		t.logger.Debug("recognition segment",
			"final", result.Final,
			"stability", result.Stability,
			"length", len(result.Transcript),
		)
	}

	if !changed || !t.partials || t.cancelled.Load() {
		return
	}
	text := transcript.Assemble(t.tracker.Segments(), t.assembly)
	t.handler(&recognizer.Result{Text: text, Final: false}, nil)
}

func (t *task) writeDebug(resp *structpb.Struct) {
	if t.debugSink == nil {
		return
	}
	b, err := protojson.Marshal(resp)
	if err != nil {
		return
	}
	_, _ = t.debugSink.Write(append(b, '\n'))
}
