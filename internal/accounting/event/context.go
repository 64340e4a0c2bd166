package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Reserved context keys read by the posting engine.
const (
	KeyCollectorUserID = "collector_user_id"
	KeyChannelType     = "channel_type"
	KeyChannelID       = "channel_id"
	KeyCustomerID      = "customer_id"
)

// Context is the flat payload of a business event.
type Context map[string]Value

// Get returns the value stored under key.
func (c Context) Get(key string) (Value, bool) {
	v, ok := c[key]
	return v, ok
}

// Keys returns the keys in lexical order.
func (c Context) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PositiveID reads key as a strictly positive integer identity.
func (c Context) PositiveID(key string) (int64, bool) {
	v, ok := c[key]
	if !ok {
		return 0, false
	}
	id, ok := v.Int64()
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

// CollectorUserID returns the collecting finance user, when present and valid.
func (c Context) CollectorUserID() (int64, bool) {
	return c.PositiveID(KeyCollectorUserID)
}

// UnmarshalJSON decodes a flat JSON object. Null members are treated as absent;
// nested objects and arrays are rejected.
func (c *Context) UnmarshalJSON(data []byte) error {
	parsed, err := ParseContext(data)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseContext decodes a flat JSON object into a Context.
func ParseContext(data []byte) (Context, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("event: context must be a JSON object: %w", err)
	}
	out := make(Context, len(raw))
	for key, member := range raw {
		if member == nil {
			continue
		}
		v, err := fromRaw(member)
		if err != nil {
			return nil, fmt.Errorf("event: context key %q: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}
