package accounts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
)

// Registry resolves accounts per business and manages the chart.
type Registry struct {
	repo   Repository
	cache  *cache.Versioned
	logger *slog.Logger
}

func NewRegistry(repo Repository, c *cache.Versioned, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{repo: repo, cache: c, logger: logger}
}

// chart returns every account of the business, active or not.
func (r *Registry) chart(ctx context.Context, businessID int64) ([]Account, error) {
	scope := cache.BusinessScope(businessID)
	key, err := r.cache.BuildKey(ctx, scope, "accounts")
	if err != nil {
		r.logger.Warn("account cache key", slog.Int64("business_id", businessID), slog.Any("error", err))
		return r.repo.ListByBusiness(ctx, businessID)
	}
	var accounts []Account
	err = r.cache.FetchJSON(ctx, key, &accounts, func(ctx context.Context) (any, error) {
		return r.repo.ListByBusiness(ctx, businessID)
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListAccounts returns the chart ordered by code.
func (r *Registry) ListAccounts(ctx context.Context, businessID int64) ([]Account, error) {
	return r.chart(ctx, businessID)
}

// ResolveAccount returns the active account with code.
func (r *Registry) ResolveAccount(ctx context.Context, businessID int64, code string) (Account, error) {
	found, err := r.ResolveAccountsByCode(ctx, businessID, []string{code})
	if err != nil {
		return Account{}, err
	}
	return found[code], nil
}

// ResolveAccountsByCode resolves a batch of codes. Any missing or inactive code fails the batch.
func (r *Registry) ResolveAccountsByCode(ctx context.Context, businessID int64, codes []string) (map[string]Account, error) {
	accounts, err := r.chart(ctx, businessID)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]Account, len(accounts))
	for _, a := range accounts {
		if a.IsActive {
			byCode[a.Code] = a
		}
	}
	out := make(map[string]Account, len(codes))
	for _, code := range codes {
		a, ok := byCode[code]
		if !ok {
			return nil, fmt.Errorf("%w: code %q in business %d", shared.ErrAccountNotFound, code, businessID)
		}
		out[code] = a
	}
	return out, nil
}

// ResolveAccountsByID resolves a batch of ids with the same rules as ResolveAccountsByCode.
func (r *Registry) ResolveAccountsByID(ctx context.Context, businessID int64, ids []int64) (map[int64]Account, error) {
	accounts, err := r.chart(ctx, businessID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]Account, len(accounts))
	for _, a := range accounts {
		if a.IsActive {
			byID[a.ID] = a
		}
	}
	out := make(map[int64]Account, len(ids))
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: id %d in business %d", shared.ErrAccountNotFound, id, businessID)
		}
		out[id] = a
	}
	return out, nil
}

// CreateAccount adds a node to the chart. The parent must belong to the same business.
func (r *Registry) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	if in.ParentID != nil {
		accounts, err := r.chart(ctx, in.BusinessID)
		if err != nil {
			return Account{}, err
		}
		if _, ok := indexByID(accounts)[*in.ParentID]; !ok {
			return Account{}, fmt.Errorf("%w: parent %d in business %d", shared.ErrAccountNotFound, *in.ParentID, in.BusinessID)
		}
	}
	account, err := r.repo.Insert(ctx, in)
	if err != nil {
		return Account{}, err
	}
	r.invalidate(ctx, in.BusinessID)
	return account, nil
}

// MoveAccount re-parents an account, refusing moves that would create a cycle.
// A nil parent makes the account a root. The check runs against the stored
// chart, not the cached one.
func (r *Registry) MoveAccount(ctx context.Context, businessID, accountID int64, parentID *int64) error {
	if err := r.repo.MoveParent(ctx, businessID, accountID, parentID); err != nil {
		return err
	}
	r.invalidate(ctx, businessID)
	return nil
}

// SetAccountActive toggles whether the account can be resolved for posting.
func (r *Registry) SetAccountActive(ctx context.Context, businessID, accountID int64, active bool) error {
	if err := r.repo.UpdateActive(ctx, businessID, accountID, active); err != nil {
		return err
	}
	r.invalidate(ctx, businessID)
	return nil
}

func (r *Registry) invalidate(ctx context.Context, businessID int64) {
	if err := r.cache.Bump(ctx, cache.BusinessScope(businessID)); err != nil {
		r.logger.Error("bump account cache", slog.Int64("business_id", businessID), slog.Any("error", err))
	}
}

func indexByID(accounts []Account) map[int64]Account {
	out := make(map[int64]Account, len(accounts))
	for _, a := range accounts {
		out[a.ID] = a
	}
	return out
}
