package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/serenova/aicore/services/audit"
	"github.com/serenova/aicore/services/budget"
	"github.com/serenova/aicore/services/providers"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Orchestrator executes agent task batches against the provider registry.
// Every completed task is a billed call: its spend goes to the cost ledger
// and its metrics to the audit sink, same as the chat pipeline.
type Orchestrator struct {
	registry       *providers.Registry
	ledger         *budget.Ledger
	sink           *audit.Sink
	logger         *zap.Logger
	taskTimeout    time.Duration
	maxConcurrency int
	now            func() time.Time
}

// Config holds orchestrator tuning knobs
type Config struct {
	// TaskTimeout bounds each backend call. A timed-out call fails that
	// task; it never hangs the batch.
	TaskTimeout time.Duration

	// MaxConcurrency caps parallel-mode fan-out
	MaxConcurrency int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		TaskTimeout:    20 * time.Second,
		MaxConcurrency: 8,
	}
}

// New creates an orchestrator over the given registry
func New(registry *providers.Registry, ledger *budget.Ledger, sink *audit.Sink, logger *zap.Logger, cfg Config) *Orchestrator {
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultConfig().TaskTimeout
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	return &Orchestrator{
		registry:       registry,
		ledger:         ledger,
		sink:           sink,
		logger:         logger,
		taskTimeout:    cfg.TaskTimeout,
		maxConcurrency: cfg.MaxConcurrency,
		now:            time.Now,
	}
}

// Run executes a batch of tasks under the given mode. Per-task failures are
// captured as failed results; only the sequential mode's critical-type stop
// rule cuts a batch short. There is no run-wide timeout: per-task timeouts
// bound every backend call, and whatever completed is always returned.
func (o *Orchestrator) Run(ctx context.Context, tasks []Task, mode Mode) (*RunReport, error) {
	runID := uuid.New().String()
	start := o.now()

	o.logger.Info("starting orchestration run",
		zap.String("run_id", runID),
		zap.String("mode", string(mode)),
		zap.Int("task_count", len(tasks)))

	var results []Result
	switch mode {
	case ModeParallel:
		results = o.runParallel(ctx, runID, tasks)
	case ModeSequential:
		results = o.runSequential(ctx, runID, tasks)
	case ModeOrchestrated:
		results = o.runOrchestrated(ctx, runID, tasks)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	report := &RunReport{
		RunID:           runID,
		Mode:            mode,
		Results:         results,
		TotalDurationMs: time.Since(start).Milliseconds(),
	}
	for _, res := range results {
		if res.Status == StatusCompleted {
			report.SuccessCount++
		} else {
			report.ErrorCount++
		}
	}
	report.Summary = fmt.Sprintf("%d of %d tasks completed, %d failed",
		report.SuccessCount, len(tasks), report.ErrorCount)

	o.logger.Info("orchestration run finished",
		zap.String("run_id", runID),
		zap.Int("success_count", report.SuccessCount),
		zap.Int("error_count", report.ErrorCount),
		zap.Int64("duration_ms", report.TotalDurationMs))

	return report, nil
}

// runParallel dispatches every task concurrently and waits for all to
// settle. results[i] always corresponds to tasks[i] regardless of
// completion order, and no task observes another task's result.
func (o *Orchestrator) runParallel(ctx context.Context, runID string, tasks []Task) []Result {
	results := make([]Result, len(tasks))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(o.maxConcurrency)

	for i, task := range tasks {
		i, task := i, task
		eg.Go(func() error {
			results[i] = o.executeTask(egCtx, runID, task, "")
			// Failures are captured in the result; never cancel siblings.
			return nil
		})
	}

	_ = eg.Wait()
	return results
}

// runSequential executes tasks one at a time in caller order. When a
// critical-type task fails, execution stops immediately and the partial
// result list is returned; later tasks are never attempted.
func (o *Orchestrator) runSequential(ctx context.Context, runID string, tasks []Task) []Result {
	results := make([]Result, 0, len(tasks))

	for _, task := range tasks {
		res := o.executeTask(ctx, runID, task, "")
		results = append(results, res)

		if res.Status == StatusFailed && IsCritical(task.AgentType) {
			o.logger.Warn("critical task failed, stopping sequential batch",
				zap.String("run_id", runID),
				zap.String("task_id", task.ID),
				zap.String("agent_type", string(task.AgentType)))
			break
		}
	}

	return results
}

// runOrchestrated sorts tasks by descending priority (stable, so equal
// priorities keep their original relative order), then executes them one at
// a time. After a task flagged with usePreviousResults completes, the
// results so far are merged into the next task's context only; tasks
// further down run on their own input unless another flagged task precedes
// them.
func (o *Orchestrator) runOrchestrated(ctx context.Context, runID string, tasks []Task) []Result {
	ordered := make([]Task, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	results := make([]Result, 0, len(ordered))
	carryContext := ""

	for _, task := range ordered {
		res := o.executeTask(ctx, runID, task, carryContext)
		carryContext = ""
		results = append(results, res)

		if task.UsePreviousResults() {
			carryContext = priorResultsContext(results)
		}
	}

	return results
}

// executeTask runs one task against its affinity backend, converting any
// failure into a failed result. Errors never escape past the orchestrator.
func (o *Orchestrator) executeTask(ctx context.Context, runID string, task Task, priorContext string) Result {
	start := o.now()

	result := Result{
		TaskID:    task.ID,
		AgentType: task.AgentType,
		Status:    StatusRunning,
	}

	o.logger.Debug("executing task",
		zap.String("run_id", runID),
		zap.String("task_id", task.ID),
		zap.String("agent_type", string(task.AgentType)))

	provider, err := o.providerForTask(task.AgentType)
	if err != nil {
		return o.failResult(result, start, err)
	}

	taskCtx, cancel := context.WithTimeout(ctx, o.taskTimeout)
	defer cancel()

	req := &providers.CompletionRequest{
		System: agentInstruction(task.AgentType),
		Prompt: buildTaskPrompt(task, priorContext),
	}

	resp, err := provider.Complete(taskCtx, req)
	if err != nil {
		o.logger.Warn("task failed",
			zap.String("run_id", runID),
			zap.String("task_id", task.ID),
			zap.String("provider", provider.ID().String()),
			zap.Error(err))
		return o.failResult(result, start, err)
	}

	parsed := ParseAgentResponse(resp.Text)
	costUSD := resp.CostUSD(provider.CostPer1KTokens())

	if err := o.ledger.Record(ctx, provider.ID(), resp.TokensUsed, costUSD); err != nil {
		// Cost tracking is telemetry; the task already has its answer.
		o.logger.Error("failed to record task cost",
			zap.String("run_id", runID),
			zap.String("task_id", task.ID),
			zap.Error(err))
	}

	o.sink.Record(audit.Event{
		Name:       "orchestrator.task_completed",
		Provider:   provider.ID(),
		LatencyMs:  time.Since(start).Milliseconds(),
		TokensUsed: resp.TokensUsed,
		CostUSD:    costUSD,
		Fields: map[string]any{
			"run_id":     runID,
			"task_id":    task.ID,
			"agent_type": string(task.AgentType),
		},
	})

	result.Status = StatusCompleted
	result.Output = resp.Text
	result.Code = parsed.Code
	result.Suggestions = parsed.Suggestions
	result.TokensUsed = resp.TokensUsed
	result.CostUSD = costUSD
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

// providerForTask resolves the static task-type affinity table, falling
// back to the first available backend when the preferred one is down
func (o *Orchestrator) providerForTask(agentType AgentType) (providers.Provider, error) {
	preferred, ok := taskAffinity[agentType]
	if ok && o.registry.IsAvailable(preferred) {
		return o.registry.Get(preferred)
	}

	for _, id := range o.registry.List() {
		if o.registry.IsAvailable(id) {
			return o.registry.Get(id)
		}
	}

	return nil, fmt.Errorf("%w: no backend configured for agent type %s",
		providers.ErrProviderNotFound, agentType)
}

func (o *Orchestrator) failResult(result Result, start time.Time, err error) Result {
	result.Status = StatusFailed
	result.Error = err.Error()
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}
