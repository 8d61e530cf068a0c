// Package handlers exposes the orchestration core over HTTP. The gateway
// trusts an upstream boundary for authentication; caller identity arrives
// already resolved.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/serenova/aicore/services/chat"
	"github.com/serenova/aicore/services/routing"
	"github.com/serenova/aicore/utils"
	"go.uber.org/zap"
)

var validate = validator.New()

// ChatRequest is the gateway-level chat request
type ChatRequest struct {
	Text              string `json:"text" validate:"required,min=1,max=8000"`
	PriorMessageCount int    `json:"prior_message_count" validate:"gte=0"`
}

// ChatHandler handles single-query chat requests
type ChatHandler struct {
	service *chat.Service
	logger  *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(service *chat.Service, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		logger:  logger,
	}
}

// Complete handles POST /v1/chat
func (h *ChatHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteBadRequest(w, "invalid JSON body", nil)
		return
	}

	if err := validate.Struct(&req); err != nil {
		utils.WriteBadRequest(w, "validation failed", validationDetails(err))
		return
	}

	resp, err := h.service.Complete(r.Context(), &chat.Request{
		Text:              req.Text,
		PriorMessageCount: req.PriorMessageCount,
	})
	if err != nil {
		switch {
		case errors.Is(err, routing.ErrNoProviderAvailable):
			utils.WriteServiceUnavailable(w, "service unavailable, configure at least one provider")
		case errors.Is(err, chat.ErrBudgetExceeded):
			utils.WritePaymentRequired(w, "monthly budget exceeded")
		default:
			h.logger.Error("chat completion failed", zap.Error(err))
			utils.WriteBadGateway(w, "provider call failed")
		}
		return
	}

	utils.WriteJSON(w, http.StatusOK, resp)
}

// validationDetails flattens validator errors into a field->tag map
func validationDetails(err error) map[string]any {
	details := make(map[string]any)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
	}
	return details
}
