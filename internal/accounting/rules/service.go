package rules

import (
	"context"
	"log/slog"
	"sort"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/event"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
)

// Matcher selects the rules that fire for an event.
type Matcher struct {
	repo   Repository
	cache  *cache.Versioned
	logger *slog.Logger
}

func NewMatcher(repo Repository, c *cache.Versioned, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{repo: repo, cache: c, logger: logger}
}

// active loads the active rule set of an event code through the cache.
func (m *Matcher) active(ctx context.Context, businessID int64, eventCode string) ([]Rule, error) {
	key, err := m.cache.BuildKey(ctx, cache.BusinessScope(businessID), "rules", eventCode)
	if err != nil {
		m.logger.Warn("rule cache key", slog.Int64("business_id", businessID), slog.Any("error", err))
		return m.repo.ListActive(ctx, businessID, eventCode)
	}
	var rules []Rule
	err = m.cache.FetchJSON(ctx, key, &rules, func(ctx context.Context) (any, error) {
		return m.repo.ListActive(ctx, businessID, eventCode)
	})
	return rules, err
}

// Match returns the active rules whose condition holds for ectx, ordered by
// priority then id. An empty result is not an error here.
func (m *Matcher) Match(ctx context.Context, businessID int64, eventCode string, ectx event.Context) ([]Rule, error) {
	candidates, err := m.active(ctx, businessID, eventCode)
	if err != nil {
		return nil, err
	}
	matched := make([]Rule, 0, len(candidates))
	for _, rule := range candidates {
		if rule.IsActive && rule.Condition.Matches(ectx) {
			matched = append(matched, rule)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return Less(matched[i], matched[j]) })
	return matched, nil
}

// AccountResolver resolves account codes for rule configuration.
type AccountResolver interface {
	ResolveAccount(ctx context.Context, businessID int64, code string) (accounts.Account, error)
}

// Service manages rule configuration.
type Service struct {
	repo     Repository
	accounts AccountResolver
	cache    *cache.Versioned
	logger   *slog.Logger
}

func NewService(repo Repository, resolver AccountResolver, c *cache.Versioned, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, accounts: resolver, cache: c, logger: logger}
}

// CreateRule validates and stores a rule, then invalidates the business cache.
func (s *Service) CreateRule(ctx context.Context, in CreateRuleInput) (Rule, error) {
	cond, err := in.Validate()
	if err != nil {
		return Rule{}, err
	}
	account, err := s.accounts.ResolveAccount(ctx, in.BusinessID, in.AccountCode)
	if err != nil {
		return Rule{}, err
	}
	rule, err := s.repo.Insert(ctx, Rule{
		BusinessID:        in.BusinessID,
		EventCode:         in.EventCode,
		RuleName:          in.RuleName,
		Priority:          in.Priority,
		Condition:         cond,
		AccountID:         account.ID,
		Direction:         in.Direction,
		AmountSource:      in.AmountSource,
		CollectorRequired: in.CollectorRequired,
		IsActive:          true,
	})
	if err != nil {
		return Rule{}, err
	}
	s.invalidate(ctx, in.BusinessID)
	return rule, nil
}

// SetRuleActive enables or disables a rule.
func (s *Service) SetRuleActive(ctx context.Context, businessID, ruleID int64, active bool) error {
	if err := s.repo.SetActive(ctx, businessID, ruleID, active); err != nil {
		return err
	}
	s.invalidate(ctx, businessID)
	return nil
}

// ListRules returns configured rules, optionally for one event code.
func (s *Service) ListRules(ctx context.Context, businessID int64, eventCode string) ([]Rule, error) {
	return s.repo.List(ctx, businessID, eventCode)
}

func (s *Service) invalidate(ctx context.Context, businessID int64) {
	if err := s.cache.Bump(ctx, cache.BusinessScope(businessID)); err != nil {
		s.logger.Error("bump rule cache", slog.Int64("business_id", businessID), slog.Any("error", err))
	}
}
