package runner

import (
	"strings"
	"sync"
)

// outputSink is the single interception point for everything a run writes.
// Each fragment triggers two side effects under one lock: accumulation into
// the buffer and immediate forwarding to the external observer. Doing both
// in one place guarantees the buffered copy and the streamed copy agree on
// ordering.
type outputSink struct {
	mu      sync.Mutex
	buf     strings.Builder
	forward func(string)
}

func newOutputSink(forward func(string)) *outputSink {
	return &outputSink{forward: forward}
}

// Write records one fragment and streams it to the observer. The observer
// runs on the execution's own goroutine and must not block materially.
func (s *outputSink) Write(fragment string) {
	if fragment == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.WriteString(fragment)
	if s.forward != nil {
		s.forward(fragment)
	}
}

// Snapshot returns everything accumulated so far. Safe to call while the run
// is still writing; partial output is exactly what arrived before the call.
func (s *outputSink) Snapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
