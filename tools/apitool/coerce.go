package apitool

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// MaxAnyOfDepth bounds nested anyOf resolution.
const MaxAnyOfDepth = 10

// Coercion is the outcome of converting one body value: either the
// converted value or the caller's value passed through unchanged.
type Coercion struct {
	Value     any
	Converted bool
}

func converted(v any) Coercion { return Coercion{Value: v, Converted: true} }
func unchanged(v any) Coercion { return Coercion{Value: v} }

// Coerce converts value to the type declared by schema. Conversion failures
// are not errors: the value comes back unchanged. The only error is
// ErrMaxAnyOfDepth for unions nested deeper than MaxAnyOfDepth.
func Coerce(schema FieldSchema, value any) (Coercion, error) {
	switch {
	case schema.Type != "":
		return coerceLeaf(schema.Type, value), nil
	case len(schema.AnyOf) > 0:
		return convertAnyOf(schema.AnyOf, value, MaxAnyOfDepth)
	}
	return unchanged(value), nil
}

// CoerceValue is Coerce without the tag.
func CoerceValue(schema FieldSchema, value any) (any, error) {
	c, err := Coerce(schema, value)
	if err != nil {
		return nil, err
	}
	return c.Value, nil
}

// convertAnyOf tries each candidate in declared order. remaining is the
// nesting budget left; nested unions only win if they convert.
func convertAnyOf(options []FieldSchema, value any, remaining int) (Coercion, error) {
	if remaining <= 0 {
		return Coercion{}, ErrMaxAnyOfDepth
	}
	for _, opt := range options {
		switch {
		case opt.Type != "":
			if c := coerceLeaf(opt.Type, value); c.Converted {
				return c, nil
			}
		case len(opt.AnyOf) > 0:
			c, err := convertAnyOf(opt.AnyOf, value, remaining-1)
			if err != nil {
				return Coercion{}, err
			}
			if c.Converted {
				return c, nil
			}
		}
	}
	return unchanged(value), nil
}

func coerceLeaf(typ string, value any) Coercion {
	switch typ {
	case "integer", "int":
		if n, ok := toInt(value); ok {
			return converted(n)
		}
	case "number":
		s := stringify(value)
		if strings.Contains(s, ".") {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return converted(f)
			}
		} else if n, ok := toInt(s); ok {
			return converted(n)
		}
	case "string":
		return converted(stringify(value))
	case "boolean":
		switch strings.ToLower(stringify(value)) {
		case "true", "1":
			return converted(true)
		case "false", "0":
			return converted(false)
		}
	case "null":
		if value == nil {
			return converted(nil)
		}
	case "object":
		return coerceComposite(value, reflect.Map)
	case "array":
		return coerceComposite(value, reflect.Slice)
	}
	return unchanged(value)
}

// coerceComposite parses JSON text for object and array fields. For object
// any valid JSON is taken as parsed; array text must parse to an array.
// Structured values of the right kind pass through; unparseable text stays
// text.
func coerceComposite(value any, kind reflect.Kind) Coercion {
	if s, ok := value.(string); ok {
		parsed, err := decodeOrdered([]byte(s))
		if err != nil {
			return unchanged(value)
		}
		if kind == reflect.Slice && compositeKind(parsed) != kind {
			return unchanged(value)
		}
		return converted(parsed)
	}
	if compositeKind(value) == kind {
		return converted(value)
	}
	return unchanged(value)
}

func compositeKind(v any) reflect.Kind {
	switch v.(type) {
	case nil:
		return reflect.Invalid
	case Object:
		return reflect.Map
	}
	switch k := reflect.TypeOf(v).Kind(); k {
	case reflect.Map, reflect.Struct:
		return reflect.Map
	case reflect.Slice, reflect.Array:
		return reflect.Slice
	default:
		return k
	}
}

func toInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), uint64(v) <= math.MaxInt64
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), v <= math.MaxInt64
	case float32:
		return truncate(float64(v))
	case float64:
		return truncate(v)
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return truncate(f)
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func truncate(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// stringify renders a value as text for URLs, headers, form bodies and the
// string coercion. Composite values are rendered as canonical JSON.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	case float64:
		return formatFloat(v)
	case float32:
		return formatFloat(float64(v))
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case fmt.Stringer:
		return v.String()
	}
	switch reflect.TypeOf(value).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if s, err := CanonicalJSON(value); err == nil {
			return s
		}
	}
	return fmt.Sprint(value)
}
