// Package output provides the audit mirror, quarantine store, and metrics
// adapters.
//
// The audit sink is the durable record: the in-process event log is only a
// hot-query cache, so anything that must survive a restart goes through
// here. Writes are buffered with a periodic flush; mirroring is
// fire-and-forget from the caller's point of view.
package output

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vigilsec/vigil/internal/domain"
	"github.com/vigilsec/vigil/pkg/ringbuf"
	"github.com/vigilsec/vigil/pkg/sanitize"
)

// JSONAuditSink appends audit entries as JSON lines to a file or stdout.
//
// Thread Safety: all methods are safe for concurrent calls.
type JSONAuditSink struct {
	bufWriter *bufio.Writer
	file      *os.File
	encoder   *json.Encoder
	mu        sync.Mutex
	stopFlush chan struct{}
	stopOnce  sync.Once
}

type JSONAuditConfig struct {
	FilePath string
	Stdout   bool
	Pretty   bool
}

// NewJSONAuditSink opens the audit destination: stdout, the given file
// (0600, append), or discard when neither is configured.
func NewJSONAuditSink(config JSONAuditConfig) (*JSONAuditSink, error) {
	var writer io.Writer
	var file *os.File

	if config.Stdout {
		writer = os.Stdout
	} else if config.FilePath != "" {
		var err error
		file, err = os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, err
		}
		writer = file
	} else {
		writer = io.Discard
	}

	const bufferSize = 64 * 1024
	bufWriter := bufio.NewWriterSize(writer, bufferSize)

	sink := &JSONAuditSink{
		bufWriter: bufWriter,
		file:      file,
		encoder:   json.NewEncoder(bufWriter),
		stopFlush: make(chan struct{}),
	}
	if config.Pretty {
		sink.encoder.SetIndent("", "  ")
	}

	go sink.periodicFlush()

	return sink, nil
}

func (s *JSONAuditSink) periodicFlush() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.Flush()
		case <-s.stopFlush:
			return
		}
	}
}

// Write encodes one audit entry. Attacker-controlled fields are sanitized
// here so a hostile payload cannot inject log lines or terminal escapes
// into the audit trail.
func (s *JSONAuditSink) Write(_ context.Context, entry domain.AuditEntry) error {
	entry.UserID = sanitize.Identifier(entry.UserID)
	entry.IP = sanitize.IP(entry.IP)
	entry.Details = sanitize.Details(entry.Details)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encoder.Encode(entry)
}

func (s *JSONAuditSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.bufWriter.Flush(); err != nil {
		return err
	}
	if s.file != nil {
		return s.file.Sync()
	}
	return nil
}

func (s *JSONAuditSink) Close() error {
	s.stopOnce.Do(func() { close(s.stopFlush) })

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.bufWriter.Flush(); err != nil {
		return err
	}
	if s.file != nil {
		if err := s.file.Sync(); err != nil {
			return err
		}
		return s.file.Close()
	}
	return nil
}

// MemoryAuditSink keeps audit entries in a bounded ring. Used by tests
// and by deployments without an external audit collaborator.
type MemoryAuditSink struct {
	entries *ringbuf.Ring[domain.AuditEntry]
	mu      sync.RWMutex
}

func NewMemoryAuditSink(capacity int) *MemoryAuditSink {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryAuditSink{entries: ringbuf.New[domain.AuditEntry](capacity)}
}

func (s *MemoryAuditSink) Write(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Push(entry)
	return nil
}

func (s *MemoryAuditSink) Flush() error { return nil }
func (s *MemoryAuditSink) Close() error { return nil }

// Entries returns a copy of all stored entries, oldest first.
func (s *MemoryAuditSink) Entries() []domain.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries.Snapshot()
}

func (s *MemoryAuditSink) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries.Len()
}

// LogNotifier is the fallback AdminNotifier: admin alerts land in the
// audit sink instead of an external paging system.
type LogNotifier struct {
	sink *JSONAuditSink
	mem  *MemoryAuditSink
}

func NewLogNotifier(sink *JSONAuditSink) *LogNotifier {
	return &LogNotifier{sink: sink}
}

func NewMemoryNotifier(mem *MemoryAuditSink) *LogNotifier {
	return &LogNotifier{mem: mem}
}

func (n *LogNotifier) Notify(ctx context.Context, subject, message string) error {
	entry := domain.AuditEntry{
		EventType: "admin_notification",
		Details: map[string]string{
			"subject": subject,
			"message": message,
		},
		Timestamp: time.Now().UTC(),
	}
	if n.sink != nil {
		return n.sink.Write(ctx, entry)
	}
	if n.mem != nil {
		return n.mem.Write(ctx, entry)
	}
	return nil
}
