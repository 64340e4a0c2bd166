package accounts

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	registry *Registry
	logger   *slog.Logger
}

func NewHandler(logger *slog.Logger, registry *Registry) *Handler {
	return &Handler{logger: logger, registry: registry}
}

// MountRoutes registers chart endpoints under /businesses/{businessID}/accounts.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/{accountID}/parent", h.Move)
	r.Put("/{accountID}/active", h.SetActive)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	businessID, err := httpx.IDParam(r, "businessID")
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	accounts, err := h.registry.ListAccounts(r.Context(), businessID)
	if err != nil {
		h.logger.Error("list accounts", slog.Int64("business_id", businessID), slog.Any("error", err))
		shared.Problems.Respond(w, err)
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	businessID, err := httpx.IDParam(r, "businessID")
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	var in CreateAccountInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	in.BusinessID = businessID
	account, err := h.registry.CreateAccount(r.Context(), in)
	if err != nil {
		h.logger.Info("create account rejected", slog.Int64("business_id", businessID), slog.Any("error", err))
		shared.Problems.Respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

type moveRequest struct {
	ParentID *int64 `json:"parent_id" validate:"omitempty,gt=0"`
}

func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	businessID, err := httpx.IDParam(r, "businessID")
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	accountID, err := httpx.IDParam(r, "accountID")
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	var req moveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	if err := h.registry.MoveAccount(r.Context(), businessID, accountID, req.ParentID); err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
	accountID, err := httpx.IDParam(r, "accountID")
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	var req activeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	if err := h.registry.SetAccountActive(r.Context(), businessID, accountID, *req.Active); err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
