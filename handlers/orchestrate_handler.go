package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/serenova/aicore/services/orchestrator"
	"github.com/serenova/aicore/utils"
	"go.uber.org/zap"
)

// OrchestrateRequest is the gateway-level batch request
type OrchestrateRequest struct {
	Mode  string      `json:"mode" validate:"omitempty,oneof=parallel sequential orchestrated"`
	Tasks []TaskInput `json:"tasks" validate:"required,min=1,max=50,dive"`
}

// TaskInput is one task in a batch request
type TaskInput struct {
	ID        string         `json:"id"`
	AgentType string         `json:"agent_type" validate:"required"`
	Input     string         `json:"input" validate:"required,min=1"`
	FilePath  string         `json:"file_path,omitempty"`
	Priority  int            `json:"priority"`
	Options   map[string]any `json:"options,omitempty"`
}

// OrchestrateHandler handles batch analysis requests
type OrchestrateHandler struct {
	service *orchestrator.Orchestrator
	logger  *zap.Logger
}

// NewOrchestrateHandler creates a new OrchestrateHandler
func NewOrchestrateHandler(service *orchestrator.Orchestrator, logger *zap.Logger) *OrchestrateHandler {
	return &OrchestrateHandler{
		service: service,
		logger:  logger,
	}
}

// Run handles POST /v1/orchestrate
func (h *OrchestrateHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req OrchestrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteBadRequest(w, "invalid JSON body", nil)
		return
	}

	if err := validate.Struct(&req); err != nil {
		utils.WriteBadRequest(w, "validation failed", validationDetails(err))
		return
	}

	mode, err := orchestrator.ParseMode(req.Mode)
	if err != nil {
		utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	tasks := make([]orchestrator.Task, len(req.Tasks))
	for i, in := range req.Tasks {
		id := in.ID
		if id == "" {
			id = uuid.New().String()
		}
		tasks[i] = orchestrator.Task{
			ID:        id,
			AgentType: orchestrator.AgentType(in.AgentType),
			Input:     in.Input,
			FilePath:  in.FilePath,
			Priority:  in.Priority,
			Options:   in.Options,
		}
	}

	report, err := h.service.Run(r.Context(), tasks, mode)
	if err != nil {
		h.logger.Error("orchestration run failed", zap.Error(err))
		utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	utils.WriteJSON(w, http.StatusOK, report)
}
