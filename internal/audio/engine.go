package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"

	"github.com/rbright/livescribe/internal/recognizer"
)

const (
	captureSampleRate = 16000
	// fragmentBytes is the Pulse record fragment size (20ms of 16kHz mono s16).
	fragmentBytes = 640
)

var (
	// CaptureFormat is the only format the engine records.
	CaptureFormat = recognizer.Format{SampleRate: captureSampleRate, Channels: 1}

	errNoSuchBus     = errors.New("input node has a single bus 0")
	errTapInstalled  = errors.New("tap already installed on bus 0")
	errFormatUnmatch = errors.New("tap format does not match input format")
)

// InputNode is the engine's microphone input. Captured PCM is re-chunked into
// tap-sized buffers and handed to the installed tap.
type InputNode struct {
	format recognizer.Format

	// emit keeps tap deliveries in capture order across write and Flush.
	emit       sync.Mutex
	mu         sync.Mutex
	tap        recognizer.TapFunc
	chunkBytes int
	pending    []byte
}

func newInputNode(format recognizer.Format) *InputNode {
	return &InputNode{format: format}
}

// OutputFormat returns the capture format for bus 0 and a zero Format otherwise.
func (n *InputNode) OutputFormat(bus int) recognizer.Format {
	if bus != 0 {
		return recognizer.Format{}
	}
	return n.format
}

// InstallTap registers tap for buffers of bufferFrames frames on bus 0.
func (n *InputNode) InstallTap(bus int, bufferFrames int, format recognizer.Format, tap recognizer.TapFunc) error {
	if bus != 0 {
		return fmt.Errorf("install tap on bus %d: %w", bus, errNoSuchBus)
	}
	if tap == nil {
		return errors.New("install tap: nil tap")
	}
	if bufferFrames <= 0 {
		return fmt.Errorf("install tap: buffer frames must be > 0 (got %d)", bufferFrames)
	}
	if format != (recognizer.Format{}) && format != n.format {
		return fmt.Errorf("install tap %d Hz/%d ch: %w", format.SampleRate, format.Channels, errFormatUnmatch)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tap != nil {
		return errTapInstalled
	}
	n.tap = tap
	n.chunkBytes = bufferFrames * n.format.BytesPerFrame()
	n.pending = nil
	return nil
}

// RemoveTap detaches the tap and drops any partially filled buffer.
func (n *InputNode) RemoveTap(bus int) {
	if bus != 0 {
		return
	}
	n.mu.Lock()
	n.tap = nil
	n.pending = nil
	n.mu.Unlock()
}

// write accumulates PCM and emits full tap buffers. Without a tap the PCM is discarded.
func (n *InputNode) write(pcm []byte) {
	n.emit.Lock()
	defer n.emit.Unlock()

	n.mu.Lock()
	tap := n.tap
	if tap == nil {
		n.mu.Unlock()
		return
	}
	n.pending = append(n.pending, pcm...)
	chunks := make([][]byte, 0, len(n.pending)/n.chunkBytes)
	for len(n.pending) >= n.chunkBytes {
		chunk := make([]byte, n.chunkBytes)
		copy(chunk, n.pending[:n.chunkBytes])
		n.pending = n.pending[n.chunkBytes:]
		chunks = append(chunks, chunk)
	}
	n.mu.Unlock()

	now := time.Now()
	for _, chunk := range chunks {
		tap(recognizer.Buffer{PCM: chunk, Format: n.format, When: now})
	}
}

// Flush hands any residual partial buffer on bus to the tap.
func (n *InputNode) Flush(bus int) {
	if bus != 0 {
		return
	}
	n.emit.Lock()
	defer n.emit.Unlock()

	n.mu.Lock()
	tap := n.tap
	pending := n.pending
	n.pending = nil
	n.mu.Unlock()

	if tap == nil || len(pending) == 0 {
		return
	}
	tap(recognizer.Buffer{PCM: pending, Format: n.format, When: time.Now()})
}

// Engine records 16kHz mono s16 PCM from one Pulse source into its InputNode.
type Engine struct {
	device Device
	node   *InputNode

	mu       sync.Mutex
	client   *pulse.Client
	stream   *pulse.RecordStream
	running  bool
	stopped  bool
	inflight sync.WaitGroup
	bytes    atomic.Int64
}

// NewEngine returns an unprepared engine bound to device.
func NewEngine(device Device) *Engine {
	return &Engine{
		device: device,
		node:   newInputNode(CaptureFormat),
	}
}

// Device returns capture metadata for logging and diagnostics.
func (e *Engine) Device() Device {
	return e.device
}

// InputNode returns the microphone input node.
func (e *Engine) InputNode() recognizer.InputNode {
	return e.node
}

// BytesCaptured reports total bytes accepted from Pulse.
func (e *Engine) BytesCaptured() int64 {
	return e.bytes.Load()
}

// Prepare connects to Pulse and creates the record stream without starting it.
func (e *Engine) Prepare() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return errors.New("capture engine stopped")
	}
	if e.stream != nil {
		return nil
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	source, err := client.SourceByID(e.device.ID)
	if err != nil {
		client.Close()
		return fmt.Errorf("resolve source %q: %w", e.device.ID, err)
	}

	writer := pulse.NewWriter(writerFunc(e.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(captureSampleRate),
		pulse.RecordBufferFragmentSize(fragmentBytes),
		pulse.RecordMediaName("livescribe transcription"),
	)
	if err != nil {
		client.Close()
		return fmt.Errorf("create pulse record stream: %w", err)
	}

	e.client = client
	e.stream = stream
	return nil
}

// Start prepares the engine if needed and begins recording.
func (e *Engine) Start() error {
	if err := e.Prepare(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return errors.New("capture engine stopped")
	}
	if e.running {
		return nil
	}
	e.stream.Start()
	e.running = true
	return nil
}

// Stop halts recording, flushes residual PCM to the tap, and releases Pulse
// resources. It is safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	stream := e.stream
	client := e.client
	e.mu.Unlock()

	if stream != nil {
		stream.Stop()
		stream.Close()
	}
	if client != nil {
		client.Close()
	}

	e.inflight.Wait()
	e.node.Flush(0)
}

// onPCM receives raw Pulse frames and forwards them to the input node.
func (e *Engine) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as stopped to avoid Add/Wait races.
	e.inflight.Add(1)
	e.mu.Unlock()
	defer e.inflight.Done()

	e.bytes.Add(int64(len(buffer)))
	e.node.write(buffer)
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// EngineFactory selects a capture device per session and builds an Engine for it.
type EngineFactory struct {
	input    string
	fallback string
	logger   *slog.Logger

	selectDevice func(ctx context.Context, input string, fallback string) (Selection, error)
}

// NewEngineFactory resolves audio.input/audio.fallback on every NewEngine call.
func NewEngineFactory(input string, fallback string, logger *slog.Logger) *EngineFactory {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &EngineFactory{
		input:        input,
		fallback:     fallback,
		logger:       logger,
		selectDevice: SelectDevice,
	}
}

// NewEngine implements recognizer.EngineFactory.
func (f *EngineFactory) NewEngine(ctx context.Context) (recognizer.CaptureEngine, error) {
	selection, err := f.selectDevice(ctx, f.input, f.fallback)
	if err != nil {
		return nil, err
	}
	if selection.Warning != "" {
		f.logger.Warn("audio device fallback", "warning", selection.Warning)
	}
	f.logger.Info("audio device selected",
		"device", selection.Device.String(),
		"fallback", selection.Fallback,
	)
	return NewEngine(selection.Device), nil
}
