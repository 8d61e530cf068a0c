// Package budget accumulates per-provider per-day token and spend totals
// and exposes the monthly budget guard. Exceeding the budget is advisory by
// default: calls are flagged, never blocked, unless the hard-limit policy is
// explicitly enabled in configuration.
package budget

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/serenova/aicore/services/providers"
	"go.uber.org/zap"
)

const dayFormat = "2006-01-02"

// Ledger tracks spend using PostgreSQL. Updates are additive upserts so
// concurrent orchestration tasks racing on the same (provider, day) row
// never lose increments.
type Ledger struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewLedger creates a new Ledger instance
func NewLedger(db *sql.DB, logger *zap.Logger) *Ledger {
	return &Ledger{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// BudgetStatus is the result of a budget check
type BudgetStatus struct {
	Exceeded    bool    `json:"exceeded"`
	CurrentCost float64 `json:"current_cost"`
	BudgetUSD   float64 `json:"budget_usd"`
	Percentage  float64 `json:"percentage"`
}

// ProviderTotals aggregates one provider's usage over a reporting window
type ProviderTotals struct {
	Provider   providers.ID `json:"provider"`
	TokensUsed int64        `json:"tokens_used"`
	CostUSD    float64      `json:"cost_usd"`
	QueryCount int64        `json:"query_count"`
}

// DailyCost is one point in the day-ordered cost series
type DailyCost struct {
	Day     string  `json:"day"`
	CostUSD float64 `json:"cost_usd"`
}

// Summary is the reporting aggregate for a window
type Summary struct {
	Start        string           `json:"start"`
	End          string           `json:"end"`
	Totals       []ProviderTotals `json:"totals"`
	Daily        []DailyCost      `json:"daily"`
	TotalCostUSD float64          `json:"total_cost_usd"`
}

// Record adds a billed call to the (provider, today) row, creating it on
// the first call of the day. Totals only ever grow within a day.
func (l *Ledger) Record(ctx context.Context, provider providers.ID, tokensUsed int, costUSD float64) error {
	return l.recordOn(ctx, provider, tokensUsed, costUSD, l.now())
}

func (l *Ledger) recordOn(ctx context.Context, provider providers.ID, tokensUsed int, costUSD float64, day time.Time) error {
	query := `
		INSERT INTO cost_records (provider, day, tokens_used, cost_usd, query_count)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (provider, day)
		DO UPDATE SET
			tokens_used = cost_records.tokens_used + EXCLUDED.tokens_used,
			cost_usd = cost_records.cost_usd + EXCLUDED.cost_usd,
			query_count = cost_records.query_count + 1
	`

	_, err := l.db.ExecContext(ctx, query, string(provider), day.Format(dayFormat), tokensUsed, costUSD)
	if err != nil {
		return fmt.Errorf("failed to record cost: %w", err)
	}

	return nil
}

// CheckBudget sums the current calendar month's spend across all providers
// and compares it to the monthly budget. The result is a flag, not a veto:
// enforcement is the caller's policy decision.
func (l *Ledger) CheckBudget(ctx context.Context, monthlyBudgetUSD float64) (*BudgetStatus, error) {
	now := l.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	query := `
		SELECT COALESCE(SUM(cost_usd), 0)
		FROM cost_records
		WHERE day >= $1
	`

	var currentCost float64
	if err := l.db.QueryRowContext(ctx, query, monthStart.Format(dayFormat)).Scan(&currentCost); err != nil {
		return nil, fmt.Errorf("failed to query monthly spend: %w", err)
	}

	status := &BudgetStatus{
		CurrentCost: currentCost,
		BudgetUSD:   monthlyBudgetUSD,
	}
	if monthlyBudgetUSD > 0 {
		status.Percentage = currentCost / monthlyBudgetUSD * 100
		status.Exceeded = currentCost > monthlyBudgetUSD
	}

	if status.Exceeded {
		l.logger.Warn("monthly budget exceeded",
			zap.Float64("current_cost", currentCost),
			zap.Float64("budget_usd", monthlyBudgetUSD),
			zap.Float64("percentage", status.Percentage))
	}

	return status, nil
}

// GetSummary aggregates per-provider totals and a day-ordered cost series
// over the given window (inclusive)
func (l *Ledger) GetSummary(ctx context.Context, start, end time.Time) (*Summary, error) {
	summary := &Summary{
		Start:  start.Format(dayFormat),
		End:    end.Format(dayFormat),
		Totals: make([]ProviderTotals, 0),
		Daily:  make([]DailyCost, 0),
	}

	totalsQuery := `
		SELECT provider, SUM(tokens_used), SUM(cost_usd), SUM(query_count)
		FROM cost_records
		WHERE day >= $1 AND day <= $2
		GROUP BY provider
		ORDER BY SUM(cost_usd) DESC
	`

	rows, err := l.db.QueryContext(ctx, totalsQuery, start.Format(dayFormat), end.Format(dayFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to query provider totals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t ProviderTotals
		var provider string
		if err := rows.Scan(&provider, &t.TokensUsed, &t.CostUSD, &t.QueryCount); err != nil {
			return nil, fmt.Errorf("failed to scan provider totals: %w", err)
		}
		t.Provider = providers.ID(provider)
		summary.Totals = append(summary.Totals, t)
		summary.TotalCostUSD += t.CostUSD
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provider totals: %w", err)
	}

	dailyQuery := `
		SELECT day, SUM(cost_usd)
		FROM cost_records
		WHERE day >= $1 AND day <= $2
		GROUP BY day
		ORDER BY day ASC
	`

	dailyRows, err := l.db.QueryContext(ctx, dailyQuery, start.Format(dayFormat), end.Format(dayFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily costs: %w", err)
	}
	defer dailyRows.Close()

	for dailyRows.Next() {
		var d DailyCost
		if err := dailyRows.Scan(&d.Day, &d.CostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan daily cost: %w", err)
		}
		summary.Daily = append(summary.Daily, d)
	}
	if err := dailyRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily costs: %w", err)
	}

	return summary, nil
}
