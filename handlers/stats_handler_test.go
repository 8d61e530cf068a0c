package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/serenova/aicore/services/analytics"
	"github.com/serenova/aicore/services/budget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStatsHandler(t *testing.T, monthlyUSD float64) (*StatsHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	return NewStatsHandler(
		analytics.NewService(db, logger),
		budget.NewLedger(db, logger),
		monthlyUSD,
		logger,
	), mock
}

func TestStatsHandler_GetStats(t *testing.T) {
	columns := []string{"provider", "count", "avg_latency", "total_tokens", "total_cost", "avg_rating", "rated_count"}

	t.Run("returns aggregated stats", func(t *testing.T) {
		handler, mock := newStatsHandler(t, 0)
		mock.ExpectQuery("FROM provider_metrics").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("openai", 10, 300.0, 9000, 0.05, 4.5, 3))

		req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
		w := httptest.NewRecorder()

		handler.GetStats(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var stats []analytics.PerformanceStats
		require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
		require.Len(t, stats, 1)
		assert.Equal(t, int64(10), stats[0].RequestCount)
	})

	t.Run("provider and window filters pass through", func(t *testing.T) {
		handler, mock := newStatsHandler(t, 0)
		mock.ExpectQuery(`AND provider = \$1 AND created_at >= \$2 AND created_at <= \$3`).
			WillReturnRows(sqlmock.NewRows(columns))

		req := httptest.NewRequest(http.MethodGet,
			"/v1/stats?provider=openai&start=2026-03-01&end=2026-03-31", nil)
		w := httptest.NewRecorder()

		handler.GetStats(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid date is rejected", func(t *testing.T) {
		handler, _ := newStatsHandler(t, 0)

		req := httptest.NewRequest(http.MethodGet, "/v1/stats?start=yesterday", nil)
		w := httptest.NewRecorder()

		handler.GetStats(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("query failure maps to 500", func(t *testing.T) {
		handler, mock := newStatsHandler(t, 0)
		mock.ExpectQuery("FROM provider_metrics").WillReturnError(assert.AnError)

		req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
		w := httptest.NewRecorder()

		handler.GetStats(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestStatsHandler_GetBudget(t *testing.T) {
	t.Run("status only", func(t *testing.T) {
		handler, mock := newStatsHandler(t, 100)
		mock.ExpectQuery("SELECT COALESCE").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(42.0))

		req := httptest.NewRequest(http.MethodGet, "/v1/budget", nil)
		w := httptest.NewRecorder()

		handler.GetBudget(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		var status budget.BudgetStatus
		require.NoError(t, json.Unmarshal(resp["status"], &status))
		assert.Equal(t, 42.0, status.CurrentCost)
		assert.False(t, status.Exceeded)
		assert.NotContains(t, resp, "summary")
	})

	t.Run("window adds the spend summary", func(t *testing.T) {
		handler, mock := newStatsHandler(t, 100)
		mock.ExpectQuery("SELECT COALESCE").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(42.0))
		mock.ExpectQuery("GROUP BY provider").
			WillReturnRows(sqlmock.NewRows([]string{"provider", "sum", "sum", "sum"}).
				AddRow("openai", 1000, 0.6, 10))
		mock.ExpectQuery("GROUP BY day").
			WillReturnRows(sqlmock.NewRows([]string{"day", "sum"}).
				AddRow("2026-03-01", 0.6))

		req := httptest.NewRequest(http.MethodGet,
			"/v1/budget?start=2026-03-01&end=2026-03-31", nil)
		w := httptest.NewRecorder()

		handler.GetBudget(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Contains(t, resp, "summary")

		var summary budget.Summary
		require.NoError(t, json.Unmarshal(resp["summary"], &summary))
		assert.Equal(t, "2026-03-01", summary.Start)
		assert.InDelta(t, 0.6, summary.TotalCostUSD, 1e-9)
	})

	t.Run("invalid window date is rejected", func(t *testing.T) {
		handler, mock := newStatsHandler(t, 100)
		mock.ExpectQuery("SELECT COALESCE").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(0.0))

		req := httptest.NewRequest(http.MethodGet,
			"/v1/budget?start=bad&end=2026-03-31", nil)
		w := httptest.NewRecorder()

		handler.GetBudget(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
