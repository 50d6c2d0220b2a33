// Package wire normalizes values arriving from the HIS boundary.
//
// The HIS RPC layer encodes 64-bit integers as split words: an object with
// 32-bit "low" and "high" halves. Every numeric field read from an inbound
// payload must pass through DecodeInt64 (directly or via the Payload helpers)
// before it is stored or compared, so that no split-word representation ever
// reaches the persistence layer.
package wire

import (
	"encoding/json"
	"strconv"
	"time"
)

// DecodeInt64 normalizes a wire value into an int64. It reports false for
// nil, non-numeric values, and split-word objects whose halves do not decode.
func DecodeInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	case map[string]interface{}:
		low, lok := n["low"]
		high, hok := n["high"]
		if !lok || !hok {
			return 0, false
		}
		l, lok := DecodeInt64(low)
		h, hok := DecodeInt64(high)
		if !lok || !hok {
			return 0, false
		}
		// Reassemble the 64-bit value from its 32-bit halves. The low word
		// arrives as an unsigned quantity even when its sign bit is set.
		return int64(uint32(l)) + h*(1<<32), true
	default:
		return 0, false
	}
}

// DecodeFloat normalizes a wire value into a float64.
func DecodeFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case map[string]interface{}:
		i, ok := DecodeInt64(n)
		if !ok {
			return 0, false
		}
		return float64(i), true
	default:
		return 0, false
	}
}

// Payload is a raw HIS document as unmarshaled from JSON. The accessor
// methods return nil when the key is absent, explicitly null, or fails to
// decode, which lets callers distinguish "leave unchanged" from "clear".
type Payload map[string]interface{}

// Has reports whether the key is present, including present-as-null.
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Int64 returns the decoded numeric field, or nil.
func (p Payload) Int64(key string) *int64 {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	n, ok := DecodeInt64(v)
	if !ok {
		return nil
	}
	return &n
}

// Float returns the decoded floating-point field, or nil.
func (p Payload) Float(key string) *float64 {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	f, ok := DecodeFloat(v)
	if !ok {
		return nil
	}
	return &f
}

// String returns the field as a string, or nil for absent/null/non-string.
func (p Payload) String(key string) *string {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

// Time interprets a numeric field as unix milliseconds, the HIS timestamp
// encoding, and returns it in UTC.
func (p Payload) Time(key string) *time.Time {
	n := p.Int64(key)
	if n == nil {
		return nil
	}
	t := time.UnixMilli(*n).UTC()
	return &t
}
