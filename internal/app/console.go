package app

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rbright/livescribe/internal/recognizer"
)

// console streams partial transcripts to w. The final transcript and errors
// are printed by the runner once the session returns.
type console struct {
	mu      sync.Mutex
	w       io.Writer
	last    string
	stopped bool
}

var _ recognizer.Observer = (*console)(nil)

func newConsole(w io.Writer) *console {
	return &console{w: w}
}

func (c *console) AuthorizationStatusChanged(status recognizer.Status) {
	c.printf("authorization: %s\n", status)
}

func (c *console) RecognizedText(text string, final bool) {
	if final {
		return
	}
	text = strings.TrimSpace(text)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || text == "" || text == c.last {
		return
	}
	c.last = text
	fmt.Fprintf(c.w, "… %s\n", text)
}

func (c *console) TranscriptionFailed(failure recognizer.Failure) {
	if failure.Kind == recognizer.FailureAuthorization {
		c.printf("warning: %v\n", failure)
	}
}

// finish silences late callbacks so the runner owns w afterwards.
func (c *console) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	fmt.Fprintf(c.w, format, args...)
}
