// Package config resolves, parses, validates, and defaults livescribe configuration.
package config

import "fmt"

// Config is the fully materialized runtime configuration used by livescribe.
type Config struct {
	ASR         ASRConfig
	Audio       AudioConfig
	Recognition RecognitionConfig
	Transcript  TranscriptConfig
	Vocab       VocabConfig
	Relay       RelayConfig
	Debug       DebugConfig
}

// ASRConfig controls the recognition service endpoint and request hints.
type ASRConfig struct {
	GRPC                 string
	LanguageCode         string
	Model                string
	AutomaticPunctuation bool
	DialTimeoutMS        int
}

// AudioConfig controls input-source selection and tap sizing.
type AudioConfig struct {
	Input        string
	Fallback     string
	BufferFrames int
}

// RecognitionConfig gates recognition and partial-result forwarding.
type RecognitionConfig struct {
	Enable         bool
	PartialResults bool
}

// TranscriptConfig controls transcript assembly formatting.
type TranscriptConfig struct {
	TrailingSpace bool
}

// VocabConfig controls enabled speech phrase sets and dedupe limits.
type VocabConfig struct {
	GlobalSets []string
	Sets       map[string]VocabSet
	MaxPhrases int
}

// VocabSet is one named phrase group with a shared boost value.
type VocabSet struct {
	Name    string
	Boost   float64
	Phrases []string
}

// RelayConfig enables NATS event publishing when NATSURL is set.
type RelayConfig struct {
	NATSURL       string
	SubjectPrefix string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableGRPCDump bool
}

// Warning is a non-fatal parse/validation message. Key names the config key
// it concerns, or "config" for file-level warnings.
type Warning struct {
	Line    int
	Key     string
	Message string
}

func (w Warning) String() string {
	msg := w.Message
	if w.Key != "" {
		msg = w.Key + ": " + msg
	}
	if w.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", w.Line, msg)
	}
	return msg
}

// SpeechPhrase is the normalized phrase payload sent to ASR adapters.
type SpeechPhrase struct {
	Phrase string
	Boost  float32
}
