// Package audit is the fire-and-forget metrics and audit sink. Recording is
// never on the critical path: events are buffered to background workers, a
// full buffer drops the event, and persistence failures are logged and
// forgotten. Nothing here can fail a request.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/serenova/aicore/services/providers"
	"go.uber.org/zap"
)

// Event is one audit/metrics record. Provider-level fields feed the
// provider_metrics table the analytics service reads; Fields carries
// free-form audit detail.
type Event struct {
	Name       string
	Provider   providers.ID
	LatencyMs  int64
	TokensUsed int
	CostUSD    float64
	Rating     *int
	Fields     map[string]any
	OccurredAt time.Time
}

// Sink handles asynchronous audit and metrics persistence
type Sink struct {
	db          *sql.DB
	logger      *zap.Logger
	eventChan   chan *Event
	workerCount int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	stopped     bool
	mu          sync.Mutex
}

// Config holds configuration for the Sink
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000,
		WorkerCount: 3,
	}
}

// NewSink creates a new Sink instance
func NewSink(db *sql.DB, logger *zap.Logger, cfg Config) *Sink {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultConfig().WorkerCount
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Sink{
		db:          db,
		logger:      logger,
		eventChan:   make(chan *Event, cfg.BufferSize),
		workerCount: cfg.WorkerCount,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (s *Sink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit sink already started")
	}
	if s.stopped {
		return fmt.Errorf("audit sink already stopped")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit sink",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", cap(s.eventChan)))

	return nil
}

// Stop gracefully stops the sink, waiting up to timeout for pending events
func (s *Sink) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.stopped = true
	// Close under the lock so a concurrent Record can never send on the
	// closed channel.
	close(s.eventChan)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("audit sink stopped")
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit sink stop timed out after %s", timeout)
	}
}

// Record enqueues an event without blocking. When the buffer is full, or
// the sink has been stopped, the event is dropped and counted against the
// log, never against the caller.
func (s *Sink) Record(event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.logger.Warn("audit sink stopped, dropping event",
			zap.String("event", event.Name))
		return
	}

	select {
	case s.eventChan <- &event:
	default:
		s.logger.Warn("audit buffer full, dropping event",
			zap.String("event", event.Name))
	}
}

// worker drains the event channel and persists events
func (s *Sink) worker(id int) {
	defer s.wg.Done()

	for event := range s.eventChan {
		if err := s.persist(event); err != nil {
			s.logger.Warn("failed to persist audit event",
				zap.Int("worker", id),
				zap.String("event", event.Name),
				zap.Error(err))
		}
	}
}

// persist writes the metrics row (when the event names a provider) and the
// audit row
func (s *Sink) persist(event *Event) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if event.Provider != "" {
		var rating sql.NullInt64
		if event.Rating != nil {
			rating = sql.NullInt64{Int64: int64(*event.Rating), Valid: true}
		}

		_, err := s.db.ExecContext(ctx, `
			INSERT INTO provider_metrics (provider, latency_ms, tokens_used, cost_usd, rating, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, string(event.Provider), event.LatencyMs, event.TokensUsed, event.CostUSD, rating, event.OccurredAt)
		if err != nil {
			return fmt.Errorf("failed to insert provider metrics: %w", err)
		}
	}

	fields, err := json.Marshal(event.Fields)
	if err != nil {
		fields = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (name, fields, created_at)
		VALUES ($1, $2, $3)
	`, event.Name, fields, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}
