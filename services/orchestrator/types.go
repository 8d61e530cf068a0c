// Package orchestrator executes batches of heterogeneous agent tasks
// against AI backends under one of three execution strategies: parallel,
// sequential or orchestrated (priority-ordered with result threading).
package orchestrator

import (
	"errors"
	"fmt"

	"github.com/serenova/aicore/services/providers"
)

// ErrUnknownMode is returned when a run is requested with an unrecognized
// execution mode
var ErrUnknownMode = errors.New("unknown execution mode")

// Mode is the batch execution strategy
type Mode string

const (
	// ModeParallel dispatches all tasks concurrently and waits for all to
	// settle. Result order matches input order regardless of completion
	// order.
	ModeParallel Mode = "parallel"

	// ModeSequential runs tasks one at a time in caller order. A failure
	// of a critical agent type stops the chain; later tasks never run.
	ModeSequential Mode = "sequential"

	// ModeOrchestrated runs tasks one at a time in descending priority
	// order (stable). When a flagged task completes, the results so far
	// are threaded into the next task's context, and no further.
	ModeOrchestrated Mode = "orchestrated"
)

// ParseMode validates a mode string, defaulting empty to parallel
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeParallel, ModeSequential, ModeOrchestrated:
		return Mode(s), nil
	case "":
		return ModeParallel, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// AgentType identifies the kind of analysis a task performs
type AgentType string

const (
	AgentAnalyzer      AgentType = "analyzer"
	AgentSecurity      AgentType = "security"
	AgentPerformance   AgentType = "performance"
	AgentRefactor      AgentType = "refactor"
	AgentTestWriter    AgentType = "test_writer"
	AgentDocumentation AgentType = "documentation"
	AgentResearch      AgentType = "research"
)

// criticalTypes are the agent types whose failure aborts a sequential
// batch. Analysis and security findings feed every later step, so running
// on without them produces garbage.
var criticalTypes = map[AgentType]bool{
	AgentAnalyzer: true,
	AgentSecurity: true,
}

// IsCritical reports whether a failing task of this type stops a
// sequential batch
func IsCritical(t AgentType) bool {
	return criticalTypes[t]
}

// taskAffinity maps each agent type to its preferred backend. This is a
// static table, independent of the text classifier used for chat routing.
var taskAffinity = map[AgentType]providers.ID{
	AgentAnalyzer:      providers.OpenAI,
	AgentSecurity:      providers.Anthropic,
	AgentPerformance:   providers.OpenAI,
	AgentRefactor:      providers.OpenAI,
	AgentTestWriter:    providers.OpenAI,
	AgentDocumentation: providers.Gemini,
	AgentResearch:      providers.Perplexity,
}

// OptionUsePreviousResults is the Options key that makes the orchestrated
// mode merge accumulated results into the next task's context
const OptionUsePreviousResults = "usePreviousResults"

// Task is one unit of work in a batch. The orchestrator treats it as
// read-only.
type Task struct {
	ID        string         `json:"id"`
	AgentType AgentType      `json:"agent_type"`
	Input     string         `json:"input"`
	FilePath  string         `json:"file_path,omitempty"`
	Priority  int            `json:"priority"`
	Options   map[string]any `json:"options,omitempty"`
}

// UsePreviousResults reports whether the task's options carry the
// result-threading flag
func (t *Task) UsePreviousResults() bool {
	if t.Options == nil {
		return false
	}
	flag, ok := t.Options[OptionUsePreviousResults].(bool)
	return ok && flag
}

// Status is the lifecycle state of a task's execution. It moves
// pending -> running -> {completed | failed} and is terminal once set; a
// task is never retried within a single run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Result is the outcome of one task
type Result struct {
	TaskID      string    `json:"task_id"`
	AgentType   AgentType `json:"agent_type"`
	Status      Status    `json:"status"`
	Output      string    `json:"output,omitempty"`
	Code        string    `json:"code,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
	Error       string    `json:"error,omitempty"`
	TokensUsed  int       `json:"tokens_used,omitempty"`
	CostUSD     float64   `json:"cost_usd,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
}

// RunReport is the aggregate outcome of one orchestration run
type RunReport struct {
	RunID           string   `json:"run_id"`
	Mode            Mode     `json:"mode"`
	Results         []Result `json:"results"`
	Summary         string   `json:"summary"`
	TotalDurationMs int64    `json:"total_duration_ms"`
	SuccessCount    int      `json:"success_count"`
	ErrorCount      int      `json:"error_count"`
}
