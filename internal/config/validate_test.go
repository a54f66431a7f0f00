package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildSpeechPhrasesSortedAndHighestBoostWins(t *testing.T) {
	cfg := Default()
	cfg.Vocab.GlobalSets = []string{"core", "team"}
	cfg.Vocab.Sets["core"] = VocabSet{Name: "core", Boost: 10, Phrases: []string{"beta", "alpha"}}
	cfg.Vocab.Sets["team"] = VocabSet{Name: "team", Boost: 20, Phrases: []string{"alpha", "gamma"}}

	phrases, warnings, err := BuildSpeechPhrases(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Equal(t, []SpeechPhrase{
		{Phrase: "alpha", Boost: 20},
		{Phrase: "beta", Boost: 10},
		{Phrase: "gamma", Boost: 20},
	}, phrases)
}

func TestBuildSpeechPhrasesEnforcesLimits(t *testing.T) {
	cfg := Default()
	cfg.Vocab.GlobalSets = []string{"missing"}
	_, _, err := BuildSpeechPhrases(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown set")

	cfg.Vocab.GlobalSets = []string{"core"}
	cfg.Vocab.Sets["core"] = VocabSet{Name: "core", Boost: 5, Phrases: []string{"a", "b", "c"}}
	cfg.Vocab.MaxPhrases = 2
	_, _, err = BuildSpeechPhrases(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds vocab.max_phrases")
}

func TestValidateRejectsInvalidCoreFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "empty asr grpc", mutate: func(c *Config) { c.ASR.GRPC = "  " }, wantErr: "asr.grpc"},
		{name: "empty language", mutate: func(c *Config) { c.ASR.LanguageCode = "" }, wantErr: "language_code"},
		{name: "zero dial timeout", mutate: func(c *Config) { c.ASR.DialTimeoutMS = 0 }, wantErr: "dial_timeout_ms"},
		{name: "zero buffer frames", mutate: func(c *Config) { c.Audio.BufferFrames = 0 }, wantErr: "audio.buffer_frames"},
		{name: "invalid max phrases", mutate: func(c *Config) { c.Vocab.MaxPhrases = 0 }, wantErr: "vocab.max_phrases"},
		{name: "relay without prefix", mutate: func(c *Config) {
			c.Relay.NATSURL = "nats://127.0.0.1:4222"
			c.Relay.SubjectPrefix = ""
		}, wantErr: "relay.subject_prefix"},
		{name: "relay wildcard prefix", mutate: func(c *Config) {
			c.Relay.NATSURL = "nats://127.0.0.1:4222"
			c.Relay.SubjectPrefix = "desk.>"
		}, wantErr: "wildcards"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := Default()
	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Empty(t, warnings)

	cfg.Recognition.Enable = false
	cfg.Vocab.Sets["core"] = VocabSet{Name: "core", Phrases: []string{"livescribe"}}
	warnings, err = Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	require.Equal(t, "recognition.enable", warnings[0].Key)
	require.Contains(t, warnings[0].Message, "recognition.enable=false")
	require.Equal(t, "vocab.global", warnings[1].Key)
	require.Contains(t, warnings[1].Message, "vocab.global enables none")
}

func TestValidateRelayWarnings(t *testing.T) {
	cfg := Default()
	cfg.Relay.SubjectPrefix = "desk"
	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Equal(t, "relay.subject_prefix", warnings[0].Key)

	cfg.Relay.NATSURL = "nats://127.0.0.1:4222"
	cfg.Recognition.PartialResults = false
	warnings, err = Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Equal(t, "recognition.partial_results", warnings[0].Key)
	require.Contains(t, warnings[0].Message, "final transcripts only")
}

func TestWarningString(t *testing.T) {
	require.Equal(t, "plain", Warning{Message: "plain"}.String())
	require.Equal(t, "relay.nats_url: unreachable", Warning{Key: "relay.nats_url", Message: "unreachable"}.String())
	require.Equal(t, "line 4: vocab.sets: dup", Warning{Line: 4, Key: "vocab.sets", Message: "dup"}.String())
}
