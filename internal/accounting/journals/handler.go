package journals

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/event"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	engine *Engine
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{logger: logger, engine: engine}
}

// MountRoutes registers the journal endpoints below /businesses/{businessID}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/entries", h.Post)
	r.Get("/entries/{entryID}", h.Get)
	r.Post("/entries/{entryID}/reverse", h.Reverse)
	r.Get("/ledger", h.Ledger)
}

type postRequest struct {
	EventCode   string          `json:"event_code" validate:"required,max=64"`
	SourceType  string          `json:"source_type" validate:"required,max=64"`
	SourceID    string          `json:"source_id" validate:"required,max=128"`
	JournalDate string          `json:"journal_date" validate:"required,datetime=2006-01-02"`
	Description string          `json:"description" validate:"max=500"`
	Context     json.RawMessage `json:"context"`
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	businessID, err := httpx.IDParam(r, "businessID")
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	ectx := event.Context{}
	if len(req.Context) > 0 && string(req.Context) != "null" {
		ectx, err = event.ParseContext(req.Context)
		if err != nil {
			shared.Problems.Respond(w, &shared.PostingError{Err: shared.ErrInvalidContext, BusinessID: businessID, EventCode: req.EventCode, Detail: err.Error()})
			return
		}
	}
	date, _ := time.Parse(time.DateOnly, req.JournalDate)
	entry, err := h.engine.Post(r.Context(), PostInput{
		BusinessID:     businessID,
		EventCode:      req.EventCode,
		SourceType:     req.SourceType,
		SourceID:       req.SourceID,
		JournalDate:    date,
		Context:        ectx,
		Description:    req.Description,
		IdempotencyKey: idempotencyKey(r, businessID),
	})
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

// idempotencyKey scopes the optional Idempotency-Key header to the business.
func idempotencyKey(r *http.Request, businessID int64) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		return ""
	}
	return "http:" + strconv.FormatInt(businessID, 10) + ":" + key
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	businessID, err := httpx.IDParam(r, "businessID")
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	entryID, err := httpx.IDParam(r, "entryID")
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	entry, err := h.engine.GetEntry(r.Context(), businessID, entryID)
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

type reverseRequest struct {
	ActorUserID int64  `json:"actor_user_id" validate:"required,gt=0"`
	JournalDate string `json:"journal_date" validate:"omitempty,datetime=2006-01-02"`
	Description string `json:"description" validate:"max=500"`
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	businessID, err := httpx.IDParam(r, "businessID")
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	entryID, err := httpx.IDParam(r, "entryID")
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	var date time.Time
	if req.JournalDate != "" {
		date, _ = time.Parse(time.DateOnly, req.JournalDate)
	}
	entry, err := h.engine.Reverse(r.Context(), ReverseInput{
		BusinessID:  businessID,
		EntryID:     entryID,
		ActorID:     req.ActorUserID,
		JournalDate: date,
		Description: req.Description,
	})
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	businessID, err := httpx.IDParam(r, "businessID")
	if err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	q := r.URL.Query()
	filter := LedgerFilter{BusinessID: businessID, AccountCode: q.Get("account_code")}
	if filter.DateFrom, err = httpx.DateQuery(r, "from"); err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	if filter.DateTo, err = httpx.DateQuery(r, "to"); err != nil {
		shared.Problems.Respond(w, err)
		return
	}
	if raw := q.Get("limit"); raw != "" {
		size, convErr := strconv.Atoi(raw)
		if convErr != nil || size <= 0 {
			shared.Problems.Respond(w, httpx.ErrValidation)
			return
		}
		filter.PageSize = size
	}
	page, err := h.engine.LedgerPage(r.Context(), filter, q.Get("page_token"))
	if err != nil {
		if status, _ := shared.Problems.Status(err); status == http.StatusInternalServerError {
			h.logger.Error("ledger page", slog.Int64("business_id", businessID), slog.Any("error", err))
		}
		shared.Problems.Respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}
