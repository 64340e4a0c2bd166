package rules

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers /businesses/{businessID}/rules.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/{ruleID}/active", h.SetActive)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	businessID, err := httpx.IDParam(r, "businessID")
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	rules, err := h.service.ListRules(r.Context(), businessID, r.URL.Query().Get("event_code"))
	if err != nil {
		h.logger.Error("list rules", slog.Int64("business_id", businessID), slog.Any("error", err))
		shared.Problems.Respond(w, err)
		return
	}
	if rules == nil {
		rules = []Rule{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	businessID, err := httpx.IDParam(r, "businessID")
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	var in CreateRuleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	in.BusinessID = businessID
	rule, err := h.service.CreateRule(r.Context(), in)
	if err != nil {
		h.logger.Info("create rule rejected", slog.Int64("business_id", businessID), slog.Any("error", err))
		shared.Problems.Respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rule)
}

type activeRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	businessID, err := httpx.IDParam(r, "businessID")
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	ruleID, err := httpx.IDParam(r, "ruleID")
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	var req activeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	if err := h.service.SetRuleActive(r.Context(), businessID, ruleID, *req.Active); err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
