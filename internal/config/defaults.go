package config

// DefaultSubjectPrefix is the relay subject prefix used when none is configured.
const DefaultSubjectPrefix = "livescribe"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		ASR: ASRConfig{
			GRPC:                 "127.0.0.1:50051",
			LanguageCode:         "en-US",
			AutomaticPunctuation: true,
			DialTimeoutMS:        3000,
		},
		Audio: AudioConfig{
			Input:        "default",
			Fallback:     "default",
			BufferFrames: 1024,
		},
		Recognition: RecognitionConfig{
			Enable:         true,
			PartialResults: true,
		},
		Vocab: VocabConfig{
			Sets:       map[string]VocabSet{},
			MaxPhrases: 1024,
		},
		Relay: RelayConfig{
			SubjectPrefix: DefaultSubjectPrefix,
		},
	}
}
