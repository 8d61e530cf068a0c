package handlers

import (
	"net/http"
	"time"

	"github.com/serenova/aicore/services/analytics"
	"github.com/serenova/aicore/services/budget"
	"github.com/serenova/aicore/services/providers"
	"github.com/serenova/aicore/utils"
	"go.uber.org/zap"
)

const dayFormat = "2006-01-02"

// StatsHandler serves the analytics and budget read paths
type StatsHandler struct {
	analytics  *analytics.Service
	ledger     *budget.Ledger
	monthlyUSD float64
	logger     *zap.Logger
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(analyticsService *analytics.Service, ledger *budget.Ledger, monthlyUSD float64, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		analytics:  analyticsService,
		ledger:     ledger,
		monthlyUSD: monthlyUSD,
		logger:     logger,
	}
}

// GetStats handles GET /v1/stats?provider=&start=&end=
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	filter := analytics.StatsFilter{}

	if p := r.URL.Query().Get("provider"); p != "" {
		id := providers.ID(p)
		filter.Provider = &id
	}
	if s := r.URL.Query().Get("start"); s != "" {
		t, err := time.Parse(dayFormat, s)
		if err != nil {
			utils.WriteBadRequest(w, "invalid start date, expected YYYY-MM-DD", nil)
			return
		}
		filter.Start = &t
	}
	if e := r.URL.Query().Get("end"); e != "" {
		t, err := time.Parse(dayFormat, e)
		if err != nil {
			utils.WriteBadRequest(w, "invalid end date, expected YYYY-MM-DD", nil)
			return
		}
		filter.End = &t
	}

	stats, err := h.analytics.GetStats(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query stats", zap.Error(err))
		utils.WriteInternalError(w, "failed to query stats")
		return
	}

	utils.WriteJSON(w, http.StatusOK, stats)
}

// GetBudget handles GET /v1/budget?start=&end=
func (h *StatsHandler) GetBudget(w http.ResponseWriter, r *http.Request) {
	status, err := h.ledger.CheckBudget(r.Context(), h.monthlyUSD)
	if err != nil {
		h.logger.Error("failed to check budget", zap.Error(err))
		utils.WriteInternalError(w, "failed to check budget")
		return
	}

	resp := map[string]any{"status": status}

	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")
	if startStr != "" && endStr != "" {
		start, err := time.Parse(dayFormat, startStr)
		if err != nil {
			utils.WriteBadRequest(w, "invalid start date, expected YYYY-MM-DD", nil)
			return
		}
		end, err := time.Parse(dayFormat, endStr)
		if err != nil {
			utils.WriteBadRequest(w, "invalid end date, expected YYYY-MM-DD", nil)
			return
		}

		summary, err := h.ledger.GetSummary(r.Context(), start, end)
		if err != nil {
			h.logger.Error("failed to build spend summary", zap.Error(err))
			utils.WriteInternalError(w, "failed to build spend summary")
			return
		}
		resp["summary"] = summary
	}

	utils.WriteJSON(w, http.StatusOK, resp)
}
