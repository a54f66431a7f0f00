package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

type jsoncConfig struct {
	ASR         *jsoncASR         `json:"asr"`
	Audio       *jsoncAudio       `json:"audio"`
	Recognition *jsoncRecognition `json:"recognition"`
	Transcript  *jsoncTranscript  `json:"transcript"`
	Vocab       *jsoncVocab       `json:"vocab"`
	Relay       *jsoncRelay       `json:"relay"`
	Debug       *jsoncDebug       `json:"debug"`
}

type jsoncASR struct {
	GRPC                 *string `json:"grpc"`
	LanguageCode         *string `json:"language_code"`
	Model                *string `json:"model"`
	AutomaticPunctuation *bool   `json:"automatic_punctuation"`
	DialTimeoutMS        *int    `json:"dial_timeout_ms"`
}

type jsoncAudio struct {
	Input        *string `json:"input"`
	Fallback     *string `json:"fallback"`
	BufferFrames *int    `json:"buffer_frames"`
}

type jsoncRecognition struct {
	Enable         *bool `json:"enable"`
	PartialResults *bool `json:"partial_results"`
}

type jsoncTranscript struct {
	TrailingSpace *bool `json:"trailing_space"`
}

type jsoncVocab struct {
	Global     *jsoncStringList         `json:"global"`
	MaxPhrases *int                     `json:"max_phrases"`
	Sets       map[string]jsoncVocabSet `json:"sets"`
}

type jsoncVocabSet struct {
	Boost   *float64 `json:"boost"`
	Phrases []string `json:"phrases"`
}

type jsoncRelay struct {
	NATSURL       *string `json:"nats_url"`
	SubjectPrefix *string `json:"subject_prefix"`
}

type jsoncDebug struct {
	GRPCDump *bool `json:"grpc_dump"`
}

// jsoncStringList accepts either a string array or a comma-delimited string.
type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		parts := strings.Split(single, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
		*l = out
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := cloneConfig(base)
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

// cloneConfig copies base so applying a payload never mutates the caller's maps.
func cloneConfig(base Config) Config {
	cfg := base
	cfg.Vocab.GlobalSets = append([]string(nil), base.Vocab.GlobalSets...)
	cfg.Vocab.Sets = make(map[string]VocabSet, len(base.Vocab.Sets))
	for name, set := range base.Vocab.Sets {
		cfg.Vocab.Sets[name] = set
	}
	return cfg
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if asr := payload.ASR; asr != nil {
		setString(&cfg.ASR.GRPC, asr.GRPC)
		setString(&cfg.ASR.LanguageCode, asr.LanguageCode)
		setString(&cfg.ASR.Model, asr.Model)
		setBool(&cfg.ASR.AutomaticPunctuation, asr.AutomaticPunctuation)
		setInt(&cfg.ASR.DialTimeoutMS, asr.DialTimeoutMS)
	}

	if audio := payload.Audio; audio != nil {
		setString(&cfg.Audio.Input, audio.Input)
		setString(&cfg.Audio.Fallback, audio.Fallback)
		setInt(&cfg.Audio.BufferFrames, audio.BufferFrames)
	}

	if recognition := payload.Recognition; recognition != nil {
		setBool(&cfg.Recognition.Enable, recognition.Enable)
		setBool(&cfg.Recognition.PartialResults, recognition.PartialResults)
	}

	if payload.Transcript != nil {
		setBool(&cfg.Transcript.TrailingSpace, payload.Transcript.TrailingSpace)
	}

	if payload.Vocab != nil {
		if payload.Vocab.Global != nil {
			cfg.Vocab.GlobalSets = cfg.Vocab.GlobalSets[:0]
			for _, name := range *payload.Vocab.Global {
				name = strings.TrimSpace(name)
				if name == "" {
					continue
				}
				cfg.Vocab.GlobalSets = append(cfg.Vocab.GlobalSets, name)
			}
		}
		setInt(&cfg.Vocab.MaxPhrases, payload.Vocab.MaxPhrases)
		for name, set := range payload.Vocab.Sets {
			trimmedName := strings.TrimSpace(name)
			if trimmedName == "" {
				return fmt.Errorf("vocab.sets contains an empty set name")
			}

			entry := VocabSet{Name: trimmedName, Phrases: append([]string(nil), set.Phrases...)}
			if set.Boost != nil {
				entry.Boost = *set.Boost
			}
			cfg.Vocab.Sets[trimmedName] = entry
		}
	}

	if relay := payload.Relay; relay != nil {
		setString(&cfg.Relay.NATSURL, relay.NATSURL)
		setString(&cfg.Relay.SubjectPrefix, relay.SubjectPrefix)
	}

	if payload.Debug != nil {
		setBool(&cfg.Debug.EnableGRPCDump, payload.Debug.GRPCDump)
	}

	return nil
}

func setString(dst *string, value *string) {
	if value != nil {
		*dst = strings.TrimSpace(*value)
	}
}

func setBool(dst *bool, value *bool) {
	if value != nil {
		*dst = *value
	}
}

func setInt(dst *int, value *int) {
	if value != nil {
		*dst = *value
	}
}
