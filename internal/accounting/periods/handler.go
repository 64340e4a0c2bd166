package periods

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, manager *Manager) *Handler {
	return &Handler{logger: logger, manager: manager}
}

// MountBusinessRoutes registers /businesses/{businessID}/periods.
func (h *Handler) MountBusinessRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
}

// MountRoutes registers /periods/{periodID} transitions.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{periodID}", h.Get)
	r.Post("/{periodID}/close", h.transition(h.manager.ClosePeriod))
	r.Post("/{periodID}/reopen", h.transition(h.manager.ReopenPeriod))
	r.Post("/{periodID}/lock", h.transition(h.manager.LockPeriod))
}

type createRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	businessID, err := httpx.IDParam(r, "businessID")
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	start, _ := time.Parse(time.DateOnly, req.StartDate)
	end, _ := time.Parse(time.DateOnly, req.EndDate)
	period, err := h.manager.CreatePeriod(r.Context(), CreatePeriodInput{BusinessID: businessID, StartDate: start, EndDate: end})
	if err != nil {
		h.logger.Info("create period rejected", slog.Int64("business_id", businessID), slog.Any("error", err))
		shared.Problems.Respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, period)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	businessID, err := httpx.IDParam(r, "businessID")
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	periods, err := h.manager.ListPeriods(r.Context(), businessID)
	if err != nil {
		h.logger.Error("list periods", slog.Int64("business_id", businessID), slog.Any("error", err))
		shared.Problems.Respond(w, err)
		return
	}
	if periods == nil {
		periods = []Period{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": periods})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	periodID, err := httpx.IDParam(r, "periodID")
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	period, err := h.manager.GetPeriod(r.Context(), periodID)
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

type transitionRequest struct {
	ActorUserID int64 `json:"actor_user_id" validate:"required,gt=0"`
}

func (h *Handler) transition(apply func(context.Context, int64, int64) (Period, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		periodID, err := httpx.IDParam(r, "periodID")
		if err != nil {
			shared.Problems.Respond(w, err)
			return
		}
		var req transitionRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			shared.Problems.Respond(w, err)
			return
		}
		period, err := apply(r.Context(), periodID, req.ActorUserID)
		if err != nil {
			h.logger.Info("period transition rejected", slog.Int64("period_id", periodID), slog.Any("error", err))
			shared.Problems.Respond(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, period)
	}
}
