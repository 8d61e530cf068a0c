package cache

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/serenova/aicore/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPostgresStore_Get(t *testing.T) {
	logger := zap.NewNop()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("hit", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		store := NewPostgresStore(db, time.Hour, logger)
		store.now = func() time.Time { return now }

		hash := QueryHash("hello")
		rows := sqlmock.NewRows([]string{"response_text", "tokens_used", "cost_usd", "created_at", "expires_at"}).
			AddRow("world", 42, 0.001, now.Add(-time.Minute), now.Add(time.Hour))

		mock.ExpectQuery("SELECT response_text, tokens_used, cost_usd, created_at, expires_at").
			WithArgs(hash, "openai", now).
			WillReturnRows(rows)

		entry, ok := store.Get(context.Background(), "hello", providers.OpenAI)
		require.True(t, ok)
		assert.Equal(t, "world", entry.Response)
		assert.Equal(t, 42, entry.TokensUsed)
		assert.Equal(t, hash, entry.QueryHash)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss on no rows", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		store := NewPostgresStore(db, time.Hour, logger)
		store.now = func() time.Time { return now }

		mock.ExpectQuery("SELECT response_text, tokens_used, cost_usd, created_at, expires_at").
			WillReturnRows(sqlmock.NewRows([]string{"response_text", "tokens_used", "cost_usd", "created_at", "expires_at"}))

		_, ok := store.Get(context.Background(), "hello", providers.OpenAI)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error degrades to miss", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		store := NewPostgresStore(db, time.Hour, logger)

		mock.ExpectQuery("SELECT response_text, tokens_used, cost_usd, created_at, expires_at").
			WillReturnError(assert.AnError)

		_, ok := store.Get(context.Background(), "hello", providers.OpenAI)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_Put(t *testing.T) {
	logger := zap.NewNop()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("inserts with TTL expiry", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		store := NewPostgresStore(db, 6*time.Hour, logger)
		store.now = func() time.Time { return now }

		mock.ExpectExec("INSERT INTO response_cache").
			WithArgs(QueryHash("hello"), "anthropic", "world", 42, 0.003, now, now.Add(6*time.Hour)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		store.Put(context.Background(), "hello", providers.Anthropic, "world", 42, 0.003)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("write errors are swallowed", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		store := NewPostgresStore(db, time.Hour, logger)

		mock.ExpectExec("INSERT INTO response_cache").
			WillReturnError(assert.AnError)

		// Must not panic or surface the error.
		store.Put(context.Background(), "hello", providers.OpenAI, "world", 1, 0)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_CleanupExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db, time.Hour, zap.NewNop())

	mock.ExpectExec("DELETE FROM response_cache").
		WillReturnResult(sqlmock.NewResult(0, 7))

	removed, err := store.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
