package config

import (
	"fmt"
	"sort"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.ASR.GRPC) == "" {
		return nil, fmt.Errorf("asr.grpc must not be empty")
	}
	if strings.TrimSpace(cfg.ASR.LanguageCode) == "" {
		return nil, fmt.Errorf("asr.language_code must not be empty")
	}
	if cfg.ASR.DialTimeoutMS <= 0 {
		return nil, fmt.Errorf("asr.dial_timeout_ms must be > 0")
	}
	if cfg.Audio.BufferFrames <= 0 {
		return nil, fmt.Errorf("audio.buffer_frames must be > 0")
	}
	if cfg.Vocab.MaxPhrases <= 0 {
		return nil, fmt.Errorf("vocab.max_phrases must be > 0")
	}

	if strings.TrimSpace(cfg.Relay.NATSURL) != "" {
		prefix := strings.TrimSpace(cfg.Relay.SubjectPrefix)
		if prefix == "" {
			return nil, fmt.Errorf("relay.subject_prefix must not be empty when relay.nats_url is set")
		}
		if strings.ContainsAny(prefix, " \t*>") {
			return nil, fmt.Errorf("relay.subject_prefix %q must not contain whitespace or wildcards", prefix)
		}
	}

	relayEnabled := strings.TrimSpace(cfg.Relay.NATSURL) != ""
	if !cfg.Recognition.Enable {
		warnings = append(warnings, Warning{Key: "recognition.enable", Message: "recognition.enable=false; sessions will not be authorized"})
	}
	if relayEnabled && !cfg.Recognition.PartialResults {
		warnings = append(warnings, Warning{Key: "recognition.partial_results", Message: "partial results disabled; relay publishes final transcripts only"})
	}
	if !relayEnabled && strings.TrimSpace(cfg.Relay.SubjectPrefix) != DefaultSubjectPrefix {
		warnings = append(warnings, Warning{Key: "relay.subject_prefix", Message: "subject prefix set but relay.nats_url is empty; relay disabled"})
	}
	if len(cfg.Vocab.GlobalSets) == 0 && len(cfg.Vocab.Sets) > 0 {
		warnings = append(warnings, Warning{Key: "vocab.global", Message: "vocab.sets defined but vocab.global enables none"})
	}

	_, vocabWarnings, err := BuildSpeechPhrases(cfg)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, vocabWarnings...)

	return warnings, nil
}

// BuildSpeechPhrases merges enabled vocab sets into deterministic ASR phrase payloads.
func BuildSpeechPhrases(cfg Config) ([]SpeechPhrase, []Warning, error) {
	enabledSets := cfg.Vocab.GlobalSets
	if len(enabledSets) == 0 {
		return nil, nil, nil
	}

	type candidate struct {
		boost float64
		from  string
	}

	warnings := make([]Warning, 0)
	selected := make(map[string]candidate)

	for _, name := range enabledSets {
		set, ok := cfg.Vocab.Sets[name]
		if !ok {
			return nil, nil, fmt.Errorf("vocab.global references unknown set %q", name)
		}
		for _, phrase := range set.Phrases {
			phrase = strings.TrimSpace(phrase)
			if phrase == "" {
				continue
			}
			if existing, exists := selected[phrase]; exists {
				if set.Boost > existing.boost {
					warnings = append(warnings, Warning{Key: "vocab.sets", Message: fmt.Sprintf("phrase %q present in %q and %q; using higher boost %.2f", phrase, existing.from, name, set.Boost)})
					selected[phrase] = candidate{boost: set.Boost, from: name}
				}
				continue
			}
			selected[phrase] = candidate{boost: set.Boost, from: name}
		}
	}

	if len(selected) > cfg.Vocab.MaxPhrases {
		return nil, nil, fmt.Errorf("vocabulary phrase count %d exceeds vocab.max_phrases=%d", len(selected), cfg.Vocab.MaxPhrases)
	}

	phrases := make([]SpeechPhrase, 0, len(selected))
	for phrase, c := range selected {
		phrases = append(phrases, SpeechPhrase{Phrase: phrase, Boost: float32(c.boost)})
	}

	sort.Slice(phrases, func(i, j int) bool {
		return phrases[i].Phrase < phrases[j].Phrase
	})

	return phrases, warnings, nil
}
