package asr

import (
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rbright/livescribe/internal/recognizer"
)

const (
	// ServiceName is the fully qualified recognizer service, also used for health checks.
	ServiceName = "livescribe.asr.v1.Recognizer"
	// StreamingRecognizeMethod is the bidirectional streaming RPC.
	StreamingRecognizeMethod = "/" + ServiceName + "/StreamingRecognize"

	defaultSampleRate = 16000
)

var recognizeStreamDesc = grpc.StreamDesc{
	StreamName:    "StreamingRecognize",
	ServerStreams: true,
	ClientStreams: true,
}

// wireResult is one entry of a response's results list.
type wireResult struct {
	Transcript string
	Final      bool
	Stability  float64
}

// configRequest builds the first stream message: a Struct config wrapped in Any.
func configRequest(cfg Config, format recognizer.Format) (*anypb.Any, error) {
	sampleRate := format.SampleRate
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	channels := format.Channels
	if channels <= 0 {
		channels = 1
	}

	contexts := make([]any, 0, len(cfg.SpeechPhrases))
	for _, phrase := range cfg.SpeechPhrases {
		text := strings.TrimSpace(phrase.Phrase)
		if text == "" {
			continue
		}
		contexts = append(contexts, map[string]any{
			"phrase": text,
			"boost":  float64(phrase.Boost),
		})
	}

	fields := map[string]any{
		"language_code":         cfg.LanguageCode,
		"sample_rate_hertz":     sampleRate,
		"audio_channel_count":   channels,
		"automatic_punctuation": cfg.AutomaticPunctuation,
		"interim_results":       true,
		"speech_contexts":       contexts,
	}
	if cfg.Model != "" {
		fields["model"] = cfg.Model
	}

	config, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build streaming config: %w", err)
	}
	msg, err := anypb.New(config)
	if err != nil {
		return nil, fmt.Errorf("wrap streaming config: %w", err)
	}
	return msg, nil
}

// audioRequest wraps one PCM buffer as a BytesValue in Any.
func audioRequest(pcm []byte) (*anypb.Any, error) {
	msg, err := anypb.New(wrapperspb.Bytes(pcm))
	if err != nil {
		return nil, fmt.Errorf("wrap audio content: %w", err)
	}
	return msg, nil
}

// decodeResults extracts results entries from a response Struct. Entries
// that are not objects are skipped.
func decodeResults(resp *structpb.Struct) []wireResult {
	values := resp.GetFields()["results"].GetListValue().GetValues()
	results := make([]wireResult, 0, len(values))
	for _, value := range values {
		entry := value.GetStructValue()
		if entry == nil {
			continue
		}
		fields := entry.GetFields()
		results = append(results, wireResult{
			Transcript: fields["transcript"].GetStringValue(),
			Final:      fields["is_final"].GetBoolValue(),
			Stability:  fields["stability"].GetNumberValue(),
		})
	}
	return results
}
