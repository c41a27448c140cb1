package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// WriterSink writes one JSON document per event. In Lambda, stderr lines land in CloudWatch Logs.
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriterSink wraps w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

// Export encodes event as a single line.
func (s *WriterSink) Export(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(event); err != nil {
		return fmt.Errorf("write telemetry event: %w", err)
	}
	return nil
}

// MultiSink fans each event out to every sink.
type MultiSink []Sink

// Export forwards to every sink and joins their errors.
func (m MultiSink) Export(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Export(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush flushes every sink that buffers.
func (m MultiSink) Flush(ctx context.Context) error {
	var errs []error
	for _, sink := range m {
		if f, ok := sink.(Flusher); ok {
			if err := f.Flush(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
