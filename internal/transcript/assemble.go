// Package transcript merges streamed ASR segments into a best-guess transcript.
package transcript

import "strings"

// Options controls transcript assembly formatting behavior.
type Options struct {
	TrailingSpace bool
}

// Assemble joins ASR segments and applies configured normalization.
func Assemble(segments []string, opts Options) string {
	if len(segments) == 0 {
		return ""
	}

	joined := strings.Join(segments, " ")
	normalized := strings.Join(strings.Fields(joined), " ")
	if normalized == "" {
		return ""
	}

	if opts.TrailingSpace {
		return normalized + " "
	}
	return normalized
}
