package transcript

import "strings"

// Segment is one recognition hypothesis reported by the service.
type Segment struct {
	Text  string
	Final bool
}

// Tracker accumulates committed segments plus the live interim hypothesis.
//
// Final segments are committed immediately. An interim segment replaces the
// previous interim while it continues the same utterance; when it diverges
// the previous interim is committed first so earlier speech is not lost.
type Tracker struct {
	segments    []string
	lastInterim string
}

// Record merges one segment and reports whether the best transcript changed.
func (t *Tracker) Record(segment Segment) bool {
	before := t.Segments()

	text := cleanSegment(segment.Text)
	if text == "" {
		return false
	}

	if segment.Final {
		t.segments = appendSegment(t.segments, text)
		t.lastInterim = ""
	} else {
		if t.lastInterim != "" && !isInterimContinuation(t.lastInterim, text) {
			t.segments = appendSegment(t.segments, t.lastInterim)
		}
		t.lastInterim = text
	}

	return !equalSegments(before, t.Segments())
}

// Segments returns committed segments followed by a trailing interim when present.
func (t *Tracker) Segments() []string {
	segments := append([]string(nil), t.segments...)
	if interim := cleanSegment(t.lastInterim); interim != "" {
		segments = appendSegment(segments, interim)
	}
	return segments
}

// Reset drops all tracked segments.
func (t *Tracker) Reset() {
	t.segments = nil
	t.lastInterim = ""
}

// appendSegment merges continuation segments to avoid duplicate transcript growth.
func appendSegment(segments []string, text string) []string {
	text = cleanSegment(text)
	if text == "" {
		return segments
	}
	if len(segments) == 0 {
		return append(segments, text)
	}

	last := cleanSegment(segments[len(segments)-1])
	switch {
	case text == last:
		return segments
	case strings.HasPrefix(text, last):
		segments[len(segments)-1] = text
		return segments
	case strings.HasPrefix(last, text):
		return segments
	default:
		return append(segments, text)
	}
}

// isInterimContinuation decides whether an interim update extends prior speech.
func isInterimContinuation(previous string, current string) bool {
	previous = cleanSegment(previous)
	current = cleanSegment(current)
	if previous == "" || current == "" || previous == current {
		return true
	}
	if strings.HasPrefix(current, previous) || strings.HasPrefix(previous, current) {
		return true
	}
	// Leading words dropped by a correction.
	if strings.HasSuffix(previous, " "+current) {
		return true
	}

	prevWords := strings.Fields(previous)
	currWords := strings.Fields(current)
	shorter := min(len(prevWords), len(currWords))
	if shorter == 0 {
		return true
	}

	return commonPrefixWords(prevWords, currWords)*2 >= shorter
}

func commonPrefixWords(left []string, right []string) int {
	limit := min(len(left), len(right))
	count := 0
	for i := 0; i < limit; i++ {
		if left[i] != right[i] {
			break
		}
		count++
	}
	return count
}

func equalSegments(left []string, right []string) bool {
	if len(left) != len(right) {
		return false
	}
	for i := range left {
		if left[i] != right[i] {
			return false
		}
	}
	return true
}

// cleanSegment normalizes transcript whitespace.
func cleanSegment(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
