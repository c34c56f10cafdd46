// Package cast implements the bidirectional value conversion between storage
// representation and in-memory representation for each declared cast kind.
// All functions are pure and total: nil passes through as nil, and a value
// that cannot be coerced degrades to the kind's lenient sentinel instead of
// producing an error.
package cast

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fennec-api/fennec/internal/orm/schema"
)

// dateLayouts are tried in order when parsing a stored date value.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FromStorage converts a raw storage value into the in-memory representation
// for the given cast kind.
func FromStorage(v any, kind schema.CastKind) any {
	if v == nil {
		return nil
	}

	switch kind {
	case schema.CastString:
		return toString(v)

	case schema.CastNumber:
		// Lenient coercion: non-numeric, non-nil input yields NaN rather
		// than an error.
		return toFloat(v)

	case schema.CastBool:
		return truthy(v)

	case schema.CastDate:
		return toTime(v)

	case schema.CastJSON:
		switch s := v.(type) {
		case string:
			return parseJSON(s)
		case []byte:
			return parseJSON(string(s))
		default:
			return v
		}

	default:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
		return v
	}
}

// ToStorage converts an in-memory value into its storage representation for
// the given cast kind.
func ToStorage(v any, kind schema.CastKind) any {
	if v == nil {
		return nil
	}

	switch kind {
	case schema.CastString:
		return toString(v)

	case schema.CastNumber:
		return toFloat(v)

	case schema.CastBool:
		if truthy(v) {
			return int64(1)
		}
		return int64(0)

	case schema.CastDate:
		t := toTime(v)
		if t == nil {
			return nil
		}
		return t.UTC().Format(time.RFC3339)

	case schema.CastJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(b)

	default:
		return v
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint64:
		return float64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		return parseFloat(n)
	case []byte:
		return parseFloat(string(n))
	default:
		return math.NaN()
	}
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int:
		return b != 0
	case int32:
		return b != 0
	case int64:
		return b != 0
	case float64:
		return b != 0
	case string:
		return truthyString(b)
	case []byte:
		return truthyString(string(b))
	default:
		return true
	}
}

func truthyString(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "f":
		return false
	default:
		return true
	}
}

// toTime returns a *time.Time or nil when the value is falsy or unparseable.
func toTime(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return nil
		}
		return &t
	case *time.Time:
		if t == nil || t.IsZero() {
			return nil
		}
		return t
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	default:
		return nil
	}
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// parseJSON returns nil on parse failure rather than propagating the error.
func parseJSON(s string) any {
	if s == "" {
		return nil
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
