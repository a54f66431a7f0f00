// Package pipeline assembles a configured recognizer from runtime config.
package pipeline

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/livescribe/internal/asr"
	"github.com/rbright/livescribe/internal/audio"
	"github.com/rbright/livescribe/internal/authz"
	"github.com/rbright/livescribe/internal/config"
	"github.com/rbright/livescribe/internal/recognizer"
	"github.com/rbright/livescribe/internal/relay"
)

// Pipeline owns one recognizer and the backends wired into it.
type Pipeline struct {
	Recognizer *recognizer.Recognizer
	Gate       *authz.Gate
	Client     *asr.Client
	Relay      *relay.Relay

	partials  bool
	logger    *slog.Logger
	debugGRPC *os.File
}

// Build constructs the asr client, capture engine factory, authorization
// gate, optional relay, and recognizer described by loaded.
func Build(loaded config.Loaded, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg := loaded.Config

	p := &Pipeline{partials: cfg.Recognition.PartialResults, logger: logger}

	var sink io.Writer
	if cfg.Debug.EnableGRPCDump {
		file, err := createDebugFile("grpc", "jsonl")
		if err != nil {
			return nil, err
		}
		p.debugGRPC = file
		sink = file
		logger.Info("grpc response dump enabled", "path", file.Name())
	}

	client, err := newClient(cfg, sink, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Client = client
	p.Gate = newGate(loaded, client, logger)

	if loaded.RelayEnabled() {
		r, err := relay.Connect(cfg.Relay.NATSURL, cfg.Relay.SubjectPrefix, logger)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.Relay = r
	}

	p.Recognizer = recognizer.New(recognizer.Options{
		Authorizer:   p.Gate,
		Engines:      audio.NewEngineFactory(cfg.Audio.Input, cfg.Audio.Fallback, logger),
		Service:      client,
		Logger:       logger,
		BufferFrames: cfg.Audio.BufferFrames,
	})
	return p, nil
}

// NewGate builds only the authorization gate and its asr health client.
func NewGate(loaded config.Loaded, logger *slog.Logger) (*authz.Gate, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	client, err := newClient(loaded.Config, nil, logger)
	if err != nil {
		return nil, err
	}
	return newGate(loaded, client, logger), nil
}

func newClient(cfg config.Config, sink io.Writer, logger *slog.Logger) (*asr.Client, error) {
	speechPhrases, _, err := config.BuildSpeechPhrases(cfg)
	if err != nil {
		return nil, fmt.Errorf("build speech contexts: %w", err)
	}
	phrases := make([]asr.SpeechPhrase, 0, len(speechPhrases))
	for _, phrase := range speechPhrases {
		phrases = append(phrases, asr.SpeechPhrase{Phrase: phrase.Phrase, Boost: phrase.Boost})
	}

	return asr.New(asr.Config{
		Endpoint:              cfg.ASR.GRPC,
		LanguageCode:          cfg.ASR.LanguageCode,
		Model:                 cfg.ASR.Model,
		AutomaticPunctuation:  cfg.ASR.AutomaticPunctuation,
		SpeechPhrases:         phrases,
		DialTimeout:           time.Duration(cfg.ASR.DialTimeoutMS) * time.Millisecond,
		TrailingSpace:         cfg.Transcript.TrailingSpace,
		DebugResponseSinkJSON: sink,
		Logger:                logger,
	})
}

func newGate(loaded config.Loaded, client *asr.Client, logger *slog.Logger) *authz.Gate {
	cfg := loaded.Config
	return authz.NewGate(authz.Options{
		Enabled:    cfg.Recognition.Enable,
		ConfigPath: existingPath(loaded),
		Input:      cfg.Audio.Input,
		Fallback:   cfg.Audio.Fallback,
		Health:     client,
		Logger:     logger,
	})
}

// Observer composes console with the relay. Partials are dropped for both when
// recognition.partial_results is disabled.
func (p *Pipeline) Observer(console recognizer.Observer) recognizer.Observer {
	observers := recognizer.MultiObserver{}
	if console != nil {
		observers = append(observers, console)
	}
	if p.Relay != nil {
		observers = append(observers, p.Relay)
	}

	var out recognizer.Observer = observers
	if !p.partials {
		out = finalOnly{out}
	}
	return out
}

// Close releases the relay connection and debug artifacts.
func (p *Pipeline) Close() {
	if p == nil {
		return
	}
	p.Relay.Close()
	p.Relay = nil
	if p.debugGRPC != nil {
		if err := p.debugGRPC.Close(); err != nil {
			p.logger.Warn("close grpc dump", "error", err.Error())
		}
		p.debugGRPC = nil
	}
}

// finalOnly forwards everything except non-final text.
type finalOnly struct {
	recognizer.Observer
}

func (f finalOnly) RecognizedText(text string, final bool) {
	if !final {
		return
	}
	f.Observer.RecognizedText(text, final)
}

func existingPath(loaded config.Loaded) string {
	if !loaded.Exists {
		return ""
	}
	return loaded.Path
}

// createDebugFile creates timestamped debug artifacts under state/livescribe/debug.
func createDebugFile(prefix string, extension string) (*os.File, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return nil, err
	}
	debugDir := filepath.Join(stateDir, "livescribe", "debug")
	if err := os.MkdirAll(debugDir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(debugDir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

// resolveStateDir returns XDG_STATE_HOME or its ~/.local/state fallback.
func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}
