package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/vigilsec/vigil/internal/domain"
	"github.com/vigilsec/vigil/internal/ports"
	"github.com/vigilsec/vigil/pkg/ringbuf"
)

const (
	defaultEventLogCapacity = 10000
	defaultMirrorBuffer     = 1000
)

// SecurityEventLog keeps the most recent security events in a fixed ring
// and mirrors each append to the audit sink from a separate goroutine.
// Appending never blocks on the mirror: when the mirror channel is full the
// audit copy is dropped and counted, the in-memory record is kept.
type SecurityEventLog struct {
	events *ringbuf.Ring[*domain.SecurityEvent]
	mu     sync.RWMutex

	sink       ports.AuditSink
	mirrorChan chan domain.AuditEntry
	dropped    int64

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

type EventLogConfig struct {
	Capacity     int
	MirrorBuffer int
}

func DefaultEventLogConfig() EventLogConfig {
	return EventLogConfig{
		Capacity:     defaultEventLogCapacity,
		MirrorBuffer: defaultMirrorBuffer,
	}
}

func NewSecurityEventLog(cfg EventLogConfig, sink ports.AuditSink) *SecurityEventLog {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultEventLogCapacity
	}
	if cfg.MirrorBuffer <= 0 {
		cfg.MirrorBuffer = defaultMirrorBuffer
	}

	l := &SecurityEventLog{
		events:     ringbuf.New[*domain.SecurityEvent](cfg.Capacity),
		sink:       sink,
		mirrorChan: make(chan domain.AuditEntry, cfg.MirrorBuffer),
		stopChan:   make(chan struct{}),
	}

	if sink != nil {
		l.wg.Add(1)
		go l.mirrorLoop()
	}

	return l
}

func (l *SecurityEventLog) mirrorLoop() {
	defer l.wg.Done()

	for {
		select {
		case entry := <-l.mirrorChan:
			if err := l.sink.Write(context.Background(), entry); err != nil {
				log.Warn().Err(err).Str("event_type", entry.EventType).Msg("Audit mirror write failed")
			}
		case <-l.stopChan:
			// Drain what is already queued before shutting down.
			for {
				select {
				case entry := <-l.mirrorChan:
					if err := l.sink.Write(context.Background(), entry); err != nil {
						log.Warn().Err(err).Msg("Audit mirror write failed during drain")
					}
				default:
					return
				}
			}
		}
	}
}

// Append stores the event and returns its id. It always succeeds: at
// capacity the oldest event is evicted.
func (l *SecurityEventLog) Append(_ context.Context, event *domain.SecurityEvent) string {
	l.mu.Lock()
	l.events.Push(event)
	l.mu.Unlock()

	if l.sink != nil {
		select {
		case l.mirrorChan <- domain.AuditEntryFor(event):
		default:
			l.mu.Lock()
			l.dropped++
			dropped := l.dropped
			l.mu.Unlock()
			log.Warn().Int64("dropped_total", dropped).Msg("Audit mirror channel full, event copy dropped")
		}
	}

	return event.ID
}

// Query returns events matching the filter, newest first. Offset skips
// matches, Limit caps the result; zero Limit means no cap.
func (l *SecurityEventLog) Query(filter domain.EventFilter) []*domain.SecurityEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*domain.SecurityEvent
	skipped := 0
	for i := l.events.Len() - 1; i >= 0; i-- {
		e := l.events.At(i)
		if !filter.Matches(e) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

func (l *SecurityEventLog) Count(filter domain.EventFilter) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := 0
	l.events.Do(func(e *domain.SecurityEvent) bool {
		if filter.Matches(e) {
			count++
		}
		return true
	})
	return count
}

func (l *SecurityEventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.events.Len()
}

// DroppedMirrors returns how many audit copies were dropped because the
// mirror channel was full.
func (l *SecurityEventLog) DroppedMirrors() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dropped
}

func (l *SecurityEventLog) Close() {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
}
