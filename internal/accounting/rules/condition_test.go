package rules

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/event"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func TestParseCondition(t *testing.T) {
	cond, err := ParseCondition([]byte(`{"payment_type":"cash","installment":false,"tier":2}`))
	require.NoError(t, err)
	require.Len(t, cond, 3)
	assert.True(t, cond["tier"].Equal(event.Int(2)))

	for _, raw := range []string{"", "null", "{}", "  "} {
		cond, err := ParseCondition([]byte(raw))
		require.NoError(t, err, raw)
		assert.Empty(t, cond)
	}
}

func TestParseConditionRejectsMalformedShapes(t *testing.T) {
	for _, raw := range []string{
		`[]`,
		`"cash"`,
		`{"payment_type":{"in":["cash","bank"]}}`,
		`{"payment_type":["cash"]}`,
		`{"payment_type":null}`,
		`{"":"x"}`,
		`{"a":1`,
	} {
		_, err := ParseCondition([]byte(raw))
		require.ErrorIs(t, err, shared.ErrInvalidCondition, raw)
	}
}

func TestConditionMatches(t *testing.T) {
	ctx := event.Context{
		"payment_type": event.String("cash"),
		"total_amount": event.Number(decimal.RequireFromString("50000.00")),
		"first_order":  event.Bool(true),
	}

	assert.True(t, Condition{}.Matches(ctx))
	assert.True(t, Condition{"payment_type": event.String("cash")}.Matches(ctx))
	assert.True(t, Condition{"total_amount": event.Int(50000)}.Matches(ctx))
	assert.True(t, Condition{"first_order": event.Bool(true), "payment_type": event.String("cash")}.Matches(ctx))

	assert.False(t, Condition{"payment_type": event.String("bank")}.Matches(ctx))
	assert.False(t, Condition{"payment_type": event.String("CASH")}.Matches(ctx))
	assert.False(t, Condition{"channel": event.String("web")}.Matches(ctx))
	assert.False(t, Condition{"first_order": event.String("true")}.Matches(ctx))
}

func TestRuleJSONRoundTripKeepsCondition(t *testing.T) {
	in := Rule{ID: 3, Condition: Condition{"payment_type": event.String("cash"), "tier": event.Int(2)}, Direction: Debit}
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out Rule
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Condition, 2)
	assert.True(t, out.Condition["tier"].Equal(event.Int(2)))
	assert.Equal(t, Debit, out.Direction)
}
