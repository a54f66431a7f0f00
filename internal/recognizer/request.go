package recognizer

import (
	"context"
	"io"
	"sync"
)

// Request is the buffered audio sink consumed by one recognition task.
//
// Append never blocks the capture goroutine. Buffers appended after EndAudio
// or Release are dropped.
type Request struct {
	ShouldReportPartialResults bool
	Format                     Format

	mu       sync.Mutex
	frames   []Buffer
	ended    bool
	released bool
	appended int64
	signal   chan struct{}
}

// NewRequest returns an empty request ready to accept audio.
func NewRequest() *Request {
	return &Request{signal: make(chan struct{}, 1)}
}

// Append queues a copy of buf for the recognition task.
func (r *Request) Append(buf Buffer) {
	if len(buf.PCM) == 0 {
		return
	}

	r.mu.Lock()
	if r.ended || r.released {
		r.mu.Unlock()
		return
	}
	buf.PCM = append([]byte(nil), buf.PCM...)
	r.frames = append(r.frames, buf)
	r.appended += int64(len(buf.PCM))
	r.mu.Unlock()

	r.notify()
}

// EndAudio marks end-of-audio; Read returns io.EOF once queued buffers drain.
func (r *Request) EndAudio() {
	r.mu.Lock()
	r.ended = true
	r.mu.Unlock()
	r.notify()
}

// Release discards queued audio and stops accepting more.
func (r *Request) Release() {
	r.mu.Lock()
	r.released = true
	r.frames = nil
	r.mu.Unlock()
	r.notify()
}

// Ended reports whether EndAudio has been called.
func (r *Request) Ended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

// BytesAppended reports total PCM bytes accepted.
func (r *Request) BytesAppended() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appended
}

// Read blocks until a buffer is available, audio has ended, or ctx is done.
// It supports a single consumer.
func (r *Request) Read(ctx context.Context) (Buffer, error) {
	for {
		r.mu.Lock()
		if len(r.frames) > 0 {
			buf := r.frames[0]
			r.frames[0] = Buffer{}
			r.frames = r.frames[1:]
			r.mu.Unlock()
			return buf, nil
		}
		if r.ended || r.released {
			r.mu.Unlock()
			return Buffer{}, io.EOF
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return Buffer{}, ctx.Err()
		case <-r.signal:
		}
	}
}

func (r *Request) notify() {
	select {
	case r.signal <- struct{}{}:
	default:
	}
}
