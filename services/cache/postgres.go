package cache

import (
	"context"
	"database/sql"
	"time"

	"github.com/serenova/aicore/services/providers"
	"go.uber.org/zap"
)

// PostgresStore persists cache entries in the response_cache table so hits
// survive process restarts. All database errors are logged and swallowed;
// the store degrades to always-miss rather than failing requests.
type PostgresStore struct {
	db     *sql.DB
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB, ttl time.Duration, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Get retrieves a cached response, treating expired rows as absent
func (s *PostgresStore) Get(ctx context.Context, queryText string, provider providers.ID) (*Entry, bool) {
	query := `
		SELECT response_text, tokens_used, cost_usd, created_at, expires_at
		FROM response_cache
		WHERE query_hash = $1 AND provider = $2 AND expires_at > $3
	`

	hash := QueryHash(queryText)
	entry := &Entry{
		QueryHash: hash,
		Provider:  provider,
	}

	err := s.db.QueryRowContext(ctx, query, hash, string(provider), s.now()).Scan(
		&entry.Response, &entry.TokensUsed, &entry.CostUSD, &entry.CreatedAt, &entry.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("cache read failed, treating as miss",
			zap.String("provider", string(provider)),
			zap.Error(err))
		return nil, false
	}

	return entry, true
}

// Put stores a response. Live entries are never updated in place; the
// conflict clause only replaces rows that have already expired.
func (s *PostgresStore) Put(ctx context.Context, queryText string, provider providers.ID, response string, tokensUsed int, costUSD float64) {
	query := `
		INSERT INTO response_cache (query_hash, provider, response_text, tokens_used, cost_usd, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (query_hash, provider)
		DO UPDATE SET
			response_text = EXCLUDED.response_text,
			tokens_used = EXCLUDED.tokens_used,
			cost_usd = EXCLUDED.cost_usd,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
		WHERE response_cache.expires_at <= EXCLUDED.created_at
	`

	now := s.now()
	_, err := s.db.ExecContext(ctx, query,
		QueryHash(queryText), string(provider), response, tokensUsed, costUSD, now, now.Add(s.ttl))
	if err != nil {
		s.logger.Warn("cache write failed, continuing without caching",
			zap.String("provider", string(provider)),
			zap.Error(err))
	}
}

// CleanupExpired deletes expired rows and returns how many were removed
func (s *PostgresStore) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
