package logger

import (
	"bufio"
	"io"
	"sync"
)

// syncWriter serializes line writes and fans them out to all sinks.
type syncWriter struct {
	mu    sync.Mutex
	sinks []*bufio.Writer
}

func newSyncWriter(writers []io.Writer) *syncWriter {
	sinks := make([]*bufio.Writer, 0, len(writers))
	for _, w := range writers {
		if w == nil {
			continue
		}
		sinks = append(sinks, bufio.NewWriterSize(w, 32*1024))
	}
	return &syncWriter{sinks: sinks}
}

// Write copies the payload to every sink, returning the first error.
func (w *syncWriter) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	var firstErr error
	for _, sink := range w.sinks {
		if _, err := sink.Write(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	// Flush eagerly so lines are visible even if the process dies hard.
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Flush forces buffered content out to all sinks.
func (w *syncWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var firstErr error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
