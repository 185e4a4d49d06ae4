package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Sink receives audit records synchronously after each decision. Sink
// failures must not poison the decision path; the agent surfaces them on
// a separate error channel.
type Sink interface {
	Record(record *contracts.AuditRecord) error
}

// NullSink discards every record.
type NullSink struct{}

func (NullSink) Record(*contracts.AuditRecord) error { return nil }

// FileSink appends one canonical JSON record per line to a writer.
type FileSink struct {
	mu     sync.Mutex
	writer io.Writer
	closer io.Closer
	sync   bool
}

// NewFileSink opens (or creates) an append-only audit log at path.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open sink: %w", err)
	}
	return &FileSink{writer: f, closer: f}, nil
}

// NewFileSinkWriter wraps an arbitrary writer, for testing and custom
// destinations.
func NewFileSinkWriter(w io.Writer) *FileSink {
	return &FileSink{writer: w}
}

// WithSync enables fsync after every record when the writer is a file.
func (s *FileSink) WithSync() *FileSink {
	s.sync = true
	return s
}

func (s *FileSink) Record(record *contracts.AuditRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writer.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write record: %w", err)
	}
	if s.sync {
		if f, ok := s.writer.(*os.File); ok {
			if err := f.Sync(); err != nil {
				return fmt.Errorf("audit: sync: %w", err)
			}
		}
	}
	return nil
}

// Close closes the underlying file when the sink owns one.
func (s *FileSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// SlogSink logs each record through a structured logger.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink builds a sink over logger; nil selects slog.Default.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Record(record *contracts.AuditRecord) error {
	decision := ""
	if record.Decision != nil {
		decision = *record.Decision
	}
	s.logger.Info("audit",
		slog.String("decision", decision),
		slog.Float64("confidence", record.Confidence),
		slog.String("context_hash", record.ContextHash),
		slog.String("ruleset_hash", record.RulesetHash),
		slog.String("deterministic_hash", record.DeterministicHash),
	)
	return nil
}
