package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vigilsec/vigil/internal/domain"
	"github.com/vigilsec/vigil/internal/ports"
	"github.com/vigilsec/vigil/pkg/ringbuf"
)

// ResponseRule couples a match condition with an ordered action list.
// Cooldown is per (rule, subject): once triggered, the same rule stays
// silent for that subject until the cooldown elapses.
type ResponseRule struct {
	Name      string
	Condition func(*domain.SecurityEvent) bool
	Actions   []domain.Action
	Level     domain.ThreatLevel
	Cooldown  time.Duration
}

func (r ResponseRule) validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule has no name")
	}
	if r.Condition == nil {
		return fmt.Errorf("rule %s has no condition", r.Name)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("rule %s has no actions", r.Name)
	}
	if r.Cooldown < 0 {
		return fmt.Errorf("rule %s has negative cooldown", r.Name)
	}
	for _, a := range r.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("rule %s: %w", r.Name, err)
		}
	}
	return nil
}

type queuedResponse struct {
	rule  ResponseRule
	event *domain.SecurityEvent
}

// ResponseEngine evaluates security events against the rule table and
// executes matched actions asynchronously on a single worker.
//
// Cooldown state is mutex-guarded locally; when a shared cache is wired
// the engine additionally asserts a cooldown key with SetNX so cooldowns
// hold across processes. Cache failure degrades to the local cooldown.
type ResponseEngine struct {
	rules    []ResponseRule
	rulesMu  sync.RWMutex
	executor *ActionExecutor

	cooldowns   map[string]time.Time
	cooldownsMu sync.Mutex
	kv          ports.KVCache

	queue   chan queuedResponse
	history *ringbuf.Ring[*domain.ResponseRecord]
	histMu  sync.RWMutex

	sink     ports.AuditSink
	metrics  ports.MetricsCollector
	internal *domain.MonitorMetrics

	running  bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}

	now func() time.Time
}

type ResponseEngineConfig struct {
	QueueSize   int
	HistorySize int
}

func DefaultResponseEngineConfig() ResponseEngineConfig {
	return ResponseEngineConfig{
		QueueSize:   1000,
		HistorySize: 1000,
	}
}

func NewResponseEngine(
	cfg ResponseEngineConfig,
	executor *ActionExecutor,
	kv ports.KVCache,
	sink ports.AuditSink,
	metrics ports.MetricsCollector,
	internal *domain.MonitorMetrics,
) *ResponseEngine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 1000
	}
	return &ResponseEngine{
		executor:  executor,
		cooldowns: make(map[string]time.Time),
		kv:        kv,
		queue:     make(chan queuedResponse, cfg.QueueSize),
		history:   ringbuf.New[*domain.ResponseRecord](cfg.HistorySize),
		sink:      sink,
		metrics:   metrics,
		internal:  internal,
		stopChan:  make(chan struct{}),
		now:       time.Now,
	}
}

// RegisterRule validates and adds a rule. Malformed rules are rejected
// here so a bad rule table fails startup instead of misfiring at runtime.
func (e *ResponseEngine) RegisterRule(rule ResponseRule) error {
	if err := rule.validate(); err != nil {
		return err
	}
	e.rulesMu.Lock()
	e.rules = append(e.rules, rule)
	e.rulesMu.Unlock()
	return nil
}

func (e *ResponseEngine) RegisterRules(rules []ResponseRule) error {
	for _, r := range rules {
		if err := e.RegisterRule(r); err != nil {
			return err
		}
	}
	return nil
}

func (e *ResponseEngine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.wg.Add(1)
	go e.worker(ctx)

	e.rulesMu.RLock()
	log.Info().Int("rules", len(e.rules)).Msg("Response engine started")
	e.rulesMu.RUnlock()
}

// HandleEvent evaluates every rule against the event and queues matches
// that are not cooling down. Returns immediately; execution is async.
func (e *ResponseEngine) HandleEvent(event *domain.SecurityEvent) {
	e.rulesMu.RLock()
	rules := e.rules
	e.rulesMu.RUnlock()

	for _, rule := range rules {
		if !rule.Condition(event) {
			continue
		}
		if !e.claimCooldown(rule, event.Subject()) {
			continue
		}

		select {
		case e.queue <- queuedResponse{rule: rule, event: event}:
		default:
			log.Warn().Str("rule", rule.Name).Str("event_id", event.ID).Msg("Response queue full, dropping response")
		}
	}

	if e.metrics != nil {
		e.metrics.SetQueueDepth(len(e.queue))
	}
}

// claimCooldown atomically checks and stamps the (rule, subject) cooldown.
// The stamp happens on claim, not on execution: a rule counts as triggered
// even when its actions later fail.
func (e *ResponseEngine) claimCooldown(rule ResponseRule, subject string) bool {
	key := rule.Name + ":" + subject
	now := e.now()

	e.cooldownsMu.Lock()
	if last, ok := e.cooldowns[key]; ok && now.Sub(last) < rule.Cooldown {
		e.cooldownsMu.Unlock()
		return false
	}
	e.cooldowns[key] = now
	e.cooldownsMu.Unlock()

	if e.kv != nil && rule.Cooldown > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ok, err := e.kv.SetNX(ctx, "cooldown:"+key, now.UTC().Format(time.RFC3339), rule.Cooldown)
		if err != nil {
			log.Debug().Err(err).Str("rule", rule.Name).Msg("Cooldown cache unavailable, local cooldown only")
			return true
		}
		if !ok {
			// Another process already triggered this rule for the subject.
			return false
		}
	}
	return true
}

func (e *ResponseEngine) worker(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case qr := <-e.queue:
			e.execute(ctx, qr.rule, qr.event)
			if e.metrics != nil {
				e.metrics.SetQueueDepth(len(e.queue))
			}
		}
	}
}

// execute runs each action of the rule in order, recovering individual
// failures into the response record. One failed action never stops the
// actions behind it.
func (e *ResponseEngine) execute(ctx context.Context, rule ResponseRule, event *domain.SecurityEvent) {
	record := &domain.ResponseRecord{
		ID:        uuid.NewString(),
		Rule:      rule.Name,
		EventID:   event.ID,
		Subject:   event.Subject(),
		Results:   make([]domain.ActionResult, 0, len(rule.Actions)),
		Timestamp: e.now().UTC(),
	}

	for _, action := range rule.Actions {
		result := domain.ActionResult{Kind: action.Kind, Success: true}
		if err := e.runAction(ctx, action, event); err != nil {
			result.Success = false
			result.Err = err.Error()
			log.Error().Err(err).
				Str("rule", rule.Name).
				Str("action", string(action.Kind)).
				Str("subject", event.Subject()).
				Msg("Response action failed")
		}
		record.Results = append(record.Results, result)
	}

	e.histMu.Lock()
	e.history.Push(record)
	e.histMu.Unlock()

	if e.internal != nil {
		e.internal.IncrementResponses()
		if !record.Succeeded() {
			e.internal.IncrementFailures()
		}
	}
	if e.metrics != nil {
		e.metrics.IncrementResponses(rule.Name, record.Succeeded())
	}

	if e.sink != nil {
		entry := domain.AuditEntry{
			EventType: string(domain.EventResponseExecuted),
			UserID:    event.UserID,
			IP:        event.IP,
			Level:     string(event.Level),
			Details: map[string]string{
				"rule":        rule.Name,
				"event_id":    event.ID,
				"response_id": record.ID,
				"success":     fmt.Sprintf("%t", record.Succeeded()),
			},
			Timestamp: record.Timestamp,
		}
		if err := e.sink.Write(ctx, entry); err != nil {
			log.Warn().Err(err).Msg("Response audit write failed")
		}
	}

	log.Info().
		Str("rule", rule.Name).
		Str("subject", event.Subject()).
		Bool("success", record.Succeeded()).
		Msg("Response executed")
}

// runAction isolates a single action execution, converting panics into
// errors so one misbehaving collaborator cannot kill the worker.
func (e *ResponseEngine) runAction(ctx context.Context, action domain.Action, event *domain.SecurityEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action %s panicked: %v", action.Kind, r)
		}
	}()
	return e.executor.Execute(ctx, action, event)
}

// History returns the most recent response records, newest first.
func (e *ResponseEngine) History(n int) []*domain.ResponseRecord {
	e.histMu.RLock()
	defer e.histMu.RUnlock()

	records := e.history.Last(n)
	// Last returns oldest first; reverse for newest-first presentation.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records
}

func (e *ResponseEngine) QueueLength() int   { return len(e.queue) }
func (e *ResponseEngine) QueueCapacity() int { return cap(e.queue) }

func (e *ResponseEngine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

func (e *ResponseEngine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()

		close(e.stopChan)
		e.wg.Wait()
		log.Info().Msg("Response engine stopped")
	})
}
