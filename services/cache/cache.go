// Package cache stores AI responses keyed by (normalized query, provider)
// so identical questions share one billed answer. Sharing across users is
// intentional: it is the product's privacy/cost tradeoff, not a bug.
//
// Cache failures never fail the request that produced the answer. Both
// implementations swallow and log their errors, degrading to always-miss.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/serenova/aicore/services/providers"
)

// Entry is an immutable cached response. Entries are created on first
// computation, returned verbatim on hits, and expire by TTL; they are never
// updated in place.
type Entry struct {
	QueryHash  string
	Provider   providers.ID
	Response   string
	TokensUsed int
	CostUSD    float64
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Store is the response cache contract. Get treats expired entries as
// absent. Put is fire-and-forget: implementations log failures and return.
type Store interface {
	Get(ctx context.Context, queryText string, provider providers.ID) (*Entry, bool)
	Put(ctx context.Context, queryText string, provider providers.ID, response string, tokensUsed int, costUSD float64)
}

// Key derives the cache key for a query/provider pair. The query is trimmed
// but case-preserved before hashing.
func Key(queryText string, provider providers.ID) string {
	normalized := strings.TrimSpace(queryText)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]) + ":" + string(provider)
}

// QueryHash returns the hash component of the key without the provider
func QueryHash(queryText string) string {
	normalized := strings.TrimSpace(queryText)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
