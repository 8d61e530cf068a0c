// Package analytics is the read-only reporting path over provider metrics
// written by the chat pipeline's audit sink. It aggregates; it never writes.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/serenova/aicore/services/providers"
	"go.uber.org/zap"
)

// PerformanceStats aggregates one provider's recorded metrics over a window
type PerformanceStats struct {
	Provider     providers.ID `json:"provider"`
	RequestCount int64        `json:"request_count"`
	AvgLatencyMs float64      `json:"avg_latency_ms"`
	TotalTokens  int64        `json:"total_tokens"`
	TotalCostUSD float64      `json:"total_cost_usd"`
	// AvgRating is computed only over rated entries; nil when none exist.
	// Unrated entries never count as zero.
	AvgRating  *float64 `json:"avg_rating,omitempty"`
	RatedCount int64    `json:"rated_count"`
}

// StatsFilter narrows a stats query. Nil fields mean "no constraint".
type StatsFilter struct {
	Provider *providers.ID
	Start    *time.Time
	End      *time.Time
}

// Service aggregates provider performance data
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService creates a new analytics service
func NewService(db *sql.DB, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

// GetStats aggregates response-time, token, cost and rating data per
// provider over the filtered window
func (s *Service) GetStats(ctx context.Context, filter StatsFilter) ([]PerformanceStats, error) {
	query := `
		SELECT provider, COUNT(*), COALESCE(AVG(latency_ms), 0),
		       COALESCE(SUM(tokens_used), 0), COALESCE(SUM(cost_usd), 0),
		       AVG(rating), COUNT(rating)
		FROM provider_metrics
		WHERE 1=1
	`
	args := make([]any, 0, 3)

	if filter.Provider != nil {
		args = append(args, string(*filter.Provider))
		query += fmt.Sprintf(" AND provider = $%d", len(args))
	}
	if filter.Start != nil {
		args = append(args, *filter.Start)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.End != nil {
		args = append(args, *filter.End)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	query += " GROUP BY provider ORDER BY provider ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider stats: %w", err)
	}
	defer rows.Close()

	stats := make([]PerformanceStats, 0)
	for rows.Next() {
		var st PerformanceStats
		var provider string
		var avgRating sql.NullFloat64
		if err := rows.Scan(&provider, &st.RequestCount, &st.AvgLatencyMs,
			&st.TotalTokens, &st.TotalCostUSD, &avgRating, &st.RatedCount); err != nil {
			return nil, fmt.Errorf("failed to scan provider stats: %w", err)
		}
		st.Provider = providers.ID(provider)
		if avgRating.Valid {
			st.AvgRating = &avgRating.Float64
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provider stats: %w", err)
	}

	return stats, nil
}
