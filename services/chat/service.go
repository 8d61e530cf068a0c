// Package chat is the single-query pipeline: route the query, check the
// cache, call the chosen backend, record the spend and emit metrics.
//
// Failures that affect the answer (no provider, backend call failure)
// propagate to the caller. Failures that are pure optimization or telemetry
// (cache, ledger, audit) are absorbed and logged.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/serenova/aicore/services/audit"
	"github.com/serenova/aicore/services/budget"
	"github.com/serenova/aicore/services/cache"
	"github.com/serenova/aicore/services/classifier"
	"github.com/serenova/aicore/services/providers"
	"github.com/serenova/aicore/services/routing"
	"go.uber.org/zap"
)

// ErrBudgetExceeded is returned only when the hard-limit policy is enabled
// and the monthly budget is spent. The default policy is advisory: the
// overage is flagged in the response, never enforced.
var ErrBudgetExceeded = errors.New("monthly budget exceeded")

// Config holds chat pipeline policy
type Config struct {
	MonthlyBudgetUSD float64
	// BudgetHardLimit blocks completions once the monthly budget is
	// exceeded. Off by default.
	BudgetHardLimit bool
}

// Service executes the chat control flow
type Service struct {
	router   *routing.Router
	registry *providers.Registry
	cache    cache.Store
	ledger   *budget.Ledger
	sink     *audit.Sink
	logger   *zap.Logger
	cfg      Config
}

// NewService creates a chat service wiring the pipeline collaborators
func NewService(
	router *routing.Router,
	registry *providers.Registry,
	cacheStore cache.Store,
	ledger *budget.Ledger,
	sink *audit.Sink,
	logger *zap.Logger,
	cfg Config,
) *Service {
	return &Service{
		router:   router,
		registry: registry,
		cache:    cacheStore,
		ledger:   ledger,
		sink:     sink,
		logger:   logger,
		cfg:      cfg,
	}
}

// Request is one inbound chat query. Caller identity is resolved upstream;
// the pipeline only needs the text and the conversation length.
type Request struct {
	Text              string
	PriorMessageCount int
}

// Response is the pipeline outcome, with the routing decision surfaced as
// metadata so a fallback substitution is always visible to the caller.
type Response struct {
	Text           string              `json:"text"`
	Provider       providers.ID        `json:"provider"`
	Category       classifier.Category `json:"category"`
	RoutingReason  string              `json:"routing_reason"`
	TokensUsed     int                 `json:"tokens_used"`
	CostUSD        float64             `json:"cost_usd"`
	Cached         bool                `json:"cached"`
	LatencyMs      int64               `json:"latency_ms"`
	BudgetExceeded bool                `json:"budget_exceeded,omitempty"`
}

// Complete answers one chat query
func (s *Service) Complete(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	decision := s.router.Decide(req.Text, req.PriorMessageCount)
	if !decision.Available {
		s.logger.Warn("no provider available",
			zap.String("category", string(decision.Category)),
			zap.String("reason", decision.Reason))
		return nil, fmt.Errorf("%w: configure at least one provider", routing.ErrNoProviderAvailable)
	}

	budgetExceeded := s.checkBudget(ctx)
	if budgetExceeded && s.cfg.BudgetHardLimit {
		return nil, ErrBudgetExceeded
	}

	if entry, ok := s.cache.Get(ctx, req.Text, decision.ChosenProvider); ok {
		s.logger.Debug("cache hit",
			zap.String("provider", decision.ChosenProvider.String()))
		s.sink.Record(audit.Event{
			Name:   "chat.cache_hit",
			Fields: map[string]any{"provider": decision.ChosenProvider.String()},
		})
		return &Response{
			Text:           entry.Response,
			Provider:       decision.ChosenProvider,
			Category:       decision.Category,
			RoutingReason:  decision.Reason,
			TokensUsed:     entry.TokensUsed,
			CostUSD:        entry.CostUSD,
			Cached:         true,
			LatencyMs:      time.Since(start).Milliseconds(),
			BudgetExceeded: budgetExceeded,
		}, nil
	}

	provider, err := s.registry.Get(decision.ChosenProvider)
	if err != nil {
		return nil, err
	}

	resp, err := provider.Complete(ctx, &providers.CompletionRequest{Prompt: req.Text})
	if err != nil {
		s.logger.Error("provider call failed",
			zap.String("provider", decision.ChosenProvider.String()),
			zap.Error(err))
		return nil, fmt.Errorf("provider %s call failed: %w", decision.ChosenProvider, err)
	}

	costUSD := resp.CostUSD(provider.CostPer1KTokens())

	if err := s.ledger.Record(ctx, decision.ChosenProvider, resp.TokensUsed, costUSD); err != nil {
		// Cost tracking is telemetry; the user already has an answer.
		s.logger.Error("failed to record cost", zap.Error(err))
	}

	s.cache.Put(ctx, req.Text, decision.ChosenProvider, resp.Text, resp.TokensUsed, costUSD)

	s.sink.Record(audit.Event{
		Name:       "chat.completion",
		Provider:   decision.ChosenProvider,
		LatencyMs:  resp.Latency.Milliseconds(),
		TokensUsed: resp.TokensUsed,
		CostUSD:    costUSD,
		Fields: map[string]any{
			"category": string(decision.Category),
			"reason":   decision.Reason,
		},
	})

	return &Response{
		Text:           resp.Text,
		Provider:       decision.ChosenProvider,
		Category:       decision.Category,
		RoutingReason:  decision.Reason,
		TokensUsed:     resp.TokensUsed,
		CostUSD:        costUSD,
		LatencyMs:      time.Since(start).Milliseconds(),
		BudgetExceeded: budgetExceeded,
	}, nil
}

// checkBudget runs the advisory budget guard. Ledger errors degrade to
// "not exceeded"; the guard must never take down the answer path.
func (s *Service) checkBudget(ctx context.Context) bool {
	if s.cfg.MonthlyBudgetUSD <= 0 {
		return false
	}

	status, err := s.ledger.CheckBudget(ctx, s.cfg.MonthlyBudgetUSD)
	if err != nil {
		s.logger.Warn("budget check failed, continuing", zap.Error(err))
		return false
	}
	return status.Exceeded
}
