package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/event"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Condition requires each key to be present in the event context with an equal value.
type Condition map[string]event.Value

// ParseCondition decodes a stored condition. Empty input and JSON null yield the
// empty condition; anything other than a flat object of scalars is rejected.
func ParseCondition(raw []byte) (Condition, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Condition{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var members map[string]json.RawMessage
	if err := dec.Decode(&members); err != nil {
		return nil, fmt.Errorf("%w: must be a JSON object", shared.ErrInvalidCondition)
	}
	out := make(Condition, len(members))
	for key, member := range members {
		if key == "" {
			return nil, fmt.Errorf("%w: empty key", shared.ErrInvalidCondition)
		}
		var v event.Value
		if err := json.Unmarshal(member, &v); err != nil {
			if errors.Is(err, event.ErrNotScalar) {
				return nil, fmt.Errorf("%w: key %q must hold a string, number or boolean", shared.ErrInvalidCondition, key)
			}
			return nil, fmt.Errorf("%w: key %q: %v", shared.ErrInvalidCondition, key, err)
		}
		out[key] = v
	}
	return out, nil
}

// UnmarshalJSON applies the same checks as ParseCondition.
func (c *Condition) UnmarshalJSON(data []byte) error {
	parsed, err := ParseCondition(data)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Matches reports whether every condition key equals the context value.
// The empty condition matches every context.
func (c Condition) Matches(ctx event.Context) bool {
	for key, want := range c {
		got, ok := ctx.Get(key)
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}
