package rules

import (
	"log/slog"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// EvaluateCondition reports whether a single condition holds for tx.
// It never panics: missing fields and mismatched types make the operator
// evaluate false. NOT_EQUALS and NOT_IN are the negations of EQUALS and IN,
// so they hold for an absent field.
func EvaluateCondition(tx *domain.TransactionEvent, c domain.RuleCondition) bool {
	if tx == nil {
		return false
	}
	field, ok := Resolve(tx, c.Field)

	switch c.Operator {
	case domain.OpEquals:
		return ok && strictEqual(field, c.Value)
	case domain.OpNotEquals:
		return !ok || !strictEqual(field, c.Value)
	case domain.OpGreaterThan:
		return toNumber(field, ok) > toNumber(c.Value, true)
	case domain.OpLessThan:
		return toNumber(field, ok) < toNumber(c.Value, true)
	case domain.OpGreaterThanOrEqual:
		return toNumber(field, ok) >= toNumber(c.Value, true)
	case domain.OpLessThanOrEqual:
		return toNumber(field, ok) <= toNumber(c.Value, true)
	case domain.OpIn:
		list, isList := asList(c.Value)
		return isList && ok && contains(list, field)
	case domain.OpNotIn:
		list, isList := asList(c.Value)
		return isList && (!ok || !contains(list, field))
	case domain.OpContains:
		if !ok {
			return false
		}
		return strings.Contains(toText(field), toText(c.Value))
	case domain.OpBetween:
		bounds, isList := asList(c.Value)
		if !isList || len(bounds) != 2 {
			return false
		}
		n := toNumber(field, ok)
		return n >= toNumber(bounds[0], true) && n <= toNumber(bounds[1], true)
	default:
		slog.Debug("unknown condition operator", "field", c.Field, "operator", c.Operator)
		return false
	}
}

// Resolve walks a dotted JSON path over the transaction. The second result
// is false when any segment is unknown or a nil pointer.
func Resolve(tx *domain.TransactionEvent, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	v := reflect.ValueOf(tx).Elem()
	for _, seg := range strings.Split(path, ".") {
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return nil, false
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return nil, false
		}
		idx, found := fieldIndex(v.Type())[seg]
		if !found {
			return nil, false
		}
		v = v.Field(idx)
	}
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	return scalar(v)
}

var indexCache sync.Map // reflect.Type -> map[string]int

// fieldIndex maps JSON names to struct field positions for t.
func fieldIndex(t reflect.Type) map[string]int {
	if m, ok := indexCache.Load(t); ok {
		return m.(map[string]int)
	}
	m := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		m[name] = i
	}
	indexCache.Store(t, m)
	return m
}

var timeType = reflect.TypeOf(time.Time{})

// scalar converts a resolved leaf into float64, string or bool.
func scalar(v reflect.Value) (any, bool) {
	if v.Type() == timeType {
		return v.Interface().(time.Time).UTC().Format(time.RFC3339Nano), true
	}
	switch v.Kind() {
	case reflect.String:
		return v.String(), true
	case reflect.Bool:
		return v.Bool(), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	default:
		// Structs and other composites are not comparable leaves.
		return v.Interface(), true
	}
}

// normalize maps literal values onto the same representation as scalar.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case uint:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case domain.Channel:
		return string(x)
	case domain.TransactionType:
		return string(x)
	case domain.KYCTier:
		return string(x)
	default:
		return v
	}
}

// strictEqual compares two scalars without type coercion.
func strictEqual(a, b any) bool {
	a, b = normalize(a), normalize(b)
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	default:
		return false
	}
}

// toNumber coerces v to a number. Anything that is not a number, a numeric
// string or a boolean becomes NaN, which fails every comparison.
func toNumber(v any, present bool) float64 {
	if !present {
		return math.NaN()
	}
	switch x := normalize(v).(type) {
	case float64:
		return x
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			slog.Debug("condition operand is not numeric", "value", x)
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// toText renders a scalar for substring matching.
func toText(v any) string {
	switch x := normalize(v).(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, p := range x {
			parts[i] = toText(p)
		}
		return strings.Join(parts, ",")
	case nil:
		return ""
	default:
		return ""
	}
}

// asList accepts any slice literal.
func asList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func contains(list []any, v any) bool {
	for _, item := range list {
		if strictEqual(item, v) {
			return true
		}
	}
	return false
}
