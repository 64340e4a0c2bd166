package rules

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/event"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
)

type memoryRepo struct {
	rules       []Rule
	activeCalls int
}

func (m *memoryRepo) ListActive(_ context.Context, businessID int64, eventCode string) ([]Rule, error) {
	m.activeCalls++
	var out []Rule
	for _, r := range m.rules {
		if r.BusinessID == businessID && r.EventCode == eventCode && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRepo) List(_ context.Context, businessID int64, eventCode string) ([]Rule, error) {
	var out []Rule
	for _, r := range m.rules {
		if r.BusinessID == businessID && (eventCode == "" || r.EventCode == eventCode) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRepo) Insert(_ context.Context, rule Rule) (Rule, error) {
	rule.ID = int64(len(m.rules) + 100)
	m.rules = append(m.rules, rule)
	return rule, nil
}

func (m *memoryRepo) SetActive(_ context.Context, businessID, ruleID int64, active bool) error {
	for i := range m.rules {
		if m.rules[i].ID == ruleID && m.rules[i].BusinessID == businessID {
			m.rules[i].IsActive = active
			return nil
		}
	}
	return shared.ErrInvalidRule
}

type stubAccounts map[string]accounts.Account

func (s stubAccounts) ResolveAccount(_ context.Context, _ int64, code string) (accounts.Account, error) {
	a, ok := s[code]
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return a, nil
}

func voucherRules() []Rule {
	cash := Condition{"payment_type": event.String("cash")}
	bank := Condition{"payment_type": event.String("bank")}
	return []Rule{
		{ID: 4, BusinessID: 1, EventCode: "EVT_VOUCHER_SOLD", Priority: 20, Condition: Condition{}, AccountID: 30, Direction: Credit, AmountSource: "total_amount", IsActive: true},
		{ID: 2, BusinessID: 1, EventCode: "EVT_VOUCHER_SOLD", Priority: 10, Condition: bank, AccountID: 11, Direction: Debit, AmountSource: "total_amount", IsActive: true},
		{ID: 1, BusinessID: 1, EventCode: "EVT_VOUCHER_SOLD", Priority: 10, Condition: cash, AccountID: 10, Direction: Debit, AmountSource: "total_amount", IsActive: true},
		{ID: 3, BusinessID: 1, EventCode: "EVT_VOUCHER_SOLD", Priority: 10, Condition: Condition{}, AccountID: 12, Direction: Debit, AmountSource: "fee", IsActive: true},
		{ID: 5, BusinessID: 1, EventCode: "EVT_VOUCHER_SOLD", Priority: 1, Condition: cash, AccountID: 13, Direction: Debit, AmountSource: "total_amount", IsActive: false},
		{ID: 6, BusinessID: 2, EventCode: "EVT_VOUCHER_SOLD", Priority: 1, Condition: Condition{}, AccountID: 99, Direction: Debit, AmountSource: "total_amount", IsActive: true},
	}
}

func ids(rules []Rule) []int64 {
	out := make([]int64, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.ID)
	}
	return out
}

func TestMatchOrdersByPriorityThenID(t *testing.T) {
	m := NewMatcher(&memoryRepo{rules: voucherRules()}, nil, nil)
	ctx := event.Context{"payment_type": event.String("cash"), "total_amount": event.Int(50000)}

	got, err := m.Match(context.Background(), 1, "EVT_VOUCHER_SOLD", ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3, 4}, ids(got))

	for i := 0; i < 5; i++ {
		again, err := m.Match(context.Background(), 1, "EVT_VOUCHER_SOLD", ctx)
		require.NoError(t, err)
		require.Equal(t, ids(got), ids(again))
	}
}

func TestMatchReturnsEmptyWithoutError(t *testing.T) {
	m := NewMatcher(&memoryRepo{rules: voucherRules()}, nil, nil)
	got, err := m.Match(context.Background(), 1, "EVT_UNKNOWN", event.Context{})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestMatchUsesCacheUntilRuleChange(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := cache.NewVersioned(client, time.Minute)

	repo := &memoryRepo{rules: voucherRules()}
	m := NewMatcher(repo, c, nil)
	svc := NewService(repo, stubAccounts{"1101": {ID: 10, BusinessID: 1, Code: "1101"}}, c, nil)
	ctx := context.Background()
	ectx := event.Context{"payment_type": event.String("bank")}

	got, err := m.Match(ctx, 1, "EVT_VOUCHER_SOLD", ectx)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3, 4}, ids(got))
	_, err = m.Match(ctx, 1, "EVT_VOUCHER_SOLD", ectx)
	require.NoError(t, err)
	require.Equal(t, 1, repo.activeCalls)

	require.NoError(t, svc.SetRuleActive(ctx, 1, 3, false))
	got, err = m.Match(ctx, 1, "EVT_VOUCHER_SOLD", ectx)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 4}, ids(got))
	require.Equal(t, 2, repo.activeCalls)
}

func TestCreateRuleResolvesAccountCode(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, stubAccounts{"1101": {ID: 10, BusinessID: 1, Code: "1101"}}, nil, nil)

	rule, err := svc.CreateRule(context.Background(), CreateRuleInput{
		BusinessID:   1,
		EventCode:    "EVT_VOUCHER_SOLD",
		RuleName:     "Kas",
		Priority:     10,
		Condition:    json.RawMessage(`{"payment_type":"cash"}`),
		AccountCode:  "1101",
		Direction:    Debit,
		AmountSource: "total_amount",
	})
	require.NoError(t, err)
	require.Equal(t, int64(10), rule.AccountID)
	require.True(t, rule.IsActive)
	require.True(t, rule.Condition.Matches(event.Context{"payment_type": event.String("cash")}))

	_, err = svc.CreateRule(context.Background(), CreateRuleInput{
		BusinessID: 1, EventCode: "EVT_VOUCHER_SOLD", RuleName: "x", AccountCode: "9999", Direction: Credit, AmountSource: "total_amount",
	})
	require.ErrorIs(t, err, shared.ErrAccountNotFound)

	_, err = svc.CreateRule(context.Background(), CreateRuleInput{
		BusinessID: 1, EventCode: "EVT_VOUCHER_SOLD", RuleName: "x", AccountCode: "1101", Direction: "LEFT", AmountSource: "total_amount",
	})
	require.ErrorIs(t, err, shared.ErrInvalidRule)

	_, err = svc.CreateRule(context.Background(), CreateRuleInput{
		BusinessID: 1, EventCode: "EVT_VOUCHER_SOLD", RuleName: "x", AccountCode: "1101", Direction: Credit, AmountSource: "total_amount",
		Condition: json.RawMessage(`{"payment_type":["cash"]}`),
	})
	require.ErrorIs(t, err, shared.ErrInvalidCondition)
}
