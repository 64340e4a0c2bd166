package accounting

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/rules"
)

// Handler wires the ledger endpoints.
type Handler struct {
	accounts *accounts.Handler
	rules    *rules.Handler
	periods  *periods.Handler
	journals *journals.Handler
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		accounts: accounts.NewHandler(logger, service.Accounts),
		rules:    rules.NewHandler(logger, service.Rules),
		periods:  periods.NewHandler(logger, service.Periods),
		journals: journals.NewHandler(logger, service.Engine),
	}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/businesses/{businessID}", func(r chi.Router) {
		r.Route("/accounts", h.accounts.MountRoutes)
		r.Route("/rules", h.rules.MountRoutes)
		r.Route("/periods", h.periods.MountBusinessRoutes)
		h.journals.MountRoutes(r)
	})
	r.Route("/periods", h.periods.MountRoutes)
}
