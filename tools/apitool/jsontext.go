package apitool

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-json-experiment/json/jsontext"
)

// member is one key/value pair of a decoded JSON object.
type member struct {
	Key   string
	Value any
}

// Object is a decoded JSON object that remembers its key order. Responses
// and caller supplied object values are re-emitted in the order they were
// received.
type Object []member

// Get returns the value stored under key.
func (o Object) Get(key string) (any, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in declaration order.
func (o Object) Keys() []string {
	keys := make([]string, len(o))
	for i, m := range o {
		keys[i] = m.Key
	}
	return keys
}

// MarshalJSON emits the object in its original key order.
func (o Object) MarshalJSON() ([]byte, error) {
	return encodeJSON(o, compactOptions)
}

// UnmarshalJSON decodes a JSON object keeping key order. null leaves o nil.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := decodeOrdered(data)
	if err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*o = nil
	case Object:
		*o = x
	default:
		return fmt.Errorf("expected JSON object, got %T", v)
	}
	return nil
}

var errTrailingData = errors.New("invalid character after top-level value")

var (
	// decodeOptions keeps the last value of a repeated name and replaces
	// invalid UTF-8 with U+FFFD.
	decodeOptions = []jsontext.Options{
		jsontext.AllowDuplicateNames(true),
		jsontext.AllowInvalidUTF8(true),
	}
	compactOptions   = decodeOptions
	canonicalOptions = []jsontext.Options{
		jsontext.AllowDuplicateNames(true),
		jsontext.AllowInvalidUTF8(true),
		jsontext.SpaceAfterColon(true),
		jsontext.SpaceAfterComma(true),
	}
	// formatOptions rejects repeated names so such documents take the
	// decode path, where the last value wins.
	formatOptions = []jsontext.Options{
		jsontext.AllowInvalidUTF8(true),
		jsontext.SpaceAfterColon(true),
		jsontext.SpaceAfterComma(true),
	}
)

// decodeOrdered parses data keeping object key order. Numbers are kept as
// json.Number so their literal form survives re-encoding.
func decodeOrdered(data []byte) (any, error) {
	dec := jsontext.NewDecoder(bytes.NewReader(data), decodeOptions...)
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.ReadToken(); err != io.EOF {
		if err == nil {
			err = errTrailingData
		}
		return nil, err
	}
	return v, nil
}

func decodeValue(dec *jsontext.Decoder) (any, error) {
	if dec.PeekKind() == '0' {
		raw, err := dec.ReadValue()
		if err != nil {
			return nil, err
		}
		return json.Number(string(raw)), nil
	}

	tok, err := dec.ReadToken()
	if err != nil {
		return nil, err
	}
	switch kind := tok.Kind(); kind {
	case 'n':
		return nil, nil
	case 't', 'f':
		return tok.Bool(), nil
	case '"':
		return tok.String(), nil
	case '{':
		obj := Object{}
		for dec.PeekKind() != '}' {
			name, err := dec.ReadToken()
			if err != nil {
				return nil, err
			}
			key := name.String()
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			obj = obj.Set(key, v)
		}
		if _, err := dec.ReadToken(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.PeekKind() != ']' {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.ReadToken(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected JSON token %v", kind)
	}
}

// Set replaces an existing key in place (last value wins) or appends.
func (o Object) Set(key string, v any) Object {
	for i := range o {
		if o[i].Key == key {
			o[i].Value = v
			return o
		}
	}
	return append(o, member{Key: key, Value: v})
}

// CanonicalJSON re-serialises v with ", " and ": " separators, key order
// preserved and non-ASCII text left unescaped.
func CanonicalJSON(v any) (string, error) {
	data, err := encodeJSON(v, canonicalOptions)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CanonicalizeJSON reformats a JSON document canonically. Number literals
// are kept as written; a repeated name keeps its first position and last
// value.
func CanonicalizeJSON(data []byte) (string, error) {
	v := jsontext.Value(bytes.Clone(data))
	if err := v.Format(formatOptions...); err == nil {
		return string(v), nil
	}
	decoded, err := decodeOrdered(data)
	if err != nil {
		return "", err
	}
	return CanonicalJSON(decoded)
}

func encodeJSON(v any, opts []jsontext.Options) ([]byte, error) {
	var buf bytes.Buffer
	enc := jsontext.NewEncoder(&buf, opts...)
	if err := encodeValue(enc, v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func encodeValue(enc *jsontext.Encoder, v any) error {
	switch x := v.(type) {
	case nil:
		return enc.WriteToken(jsontext.Null)
	case bool:
		return enc.WriteToken(jsontext.Bool(x))
	case string:
		return enc.WriteToken(jsontext.String(x))
	case json.Number:
		return enc.WriteValue(jsontext.Value(x))
	case float64:
		return writeFloat(enc, x)
	case float32:
		return writeFloat(enc, float64(x))
	case int:
		return enc.WriteToken(jsontext.Int(int64(x)))
	case int64:
		return enc.WriteToken(jsontext.Int(x))
	case int32:
		return enc.WriteToken(jsontext.Int(int64(x)))
	case uint64:
		return enc.WriteToken(jsontext.Uint(x))
	case Object:
		if err := enc.WriteToken(jsontext.BeginObject); err != nil {
			return err
		}
		for _, m := range x {
			if err := enc.WriteToken(jsontext.String(m.Key)); err != nil {
				return err
			}
			if err := encodeValue(enc, m.Value); err != nil {
				return err
			}
		}
		return enc.WriteToken(jsontext.EndObject)
	case []any:
		if err := enc.WriteToken(jsontext.BeginArray); err != nil {
			return err
		}
		for _, e := range x {
			if err := encodeValue(enc, e); err != nil {
				return err
			}
		}
		return enc.WriteToken(jsontext.EndArray)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := make(Object, 0, len(keys))
		for _, k := range keys {
			obj = append(obj, member{Key: k, Value: x[k]})
		}
		return encodeValue(enc, obj)
	default:
		return encodeReflected(enc, v)
	}
}

// writeFloat emits f in repr style. NaN and infinities have no JSON form.
func writeFloat(enc *jsontext.Encoder, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("unsupported float value %v", f)
	}
	return enc.WriteValue(jsontext.Value(formatFloat(f)))
}

// encodeReflected handles values outside the decoder's vocabulary by routing
// them through encoding/json and decoding the result in order.
func encodeReflected(enc *jsontext.Encoder, v any) error {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return enc.WriteToken(jsontext.Null)
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return encodeValue(enc, items)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %T: %w", v, err)
	}
	decoded, err := decodeOrdered(raw)
	if err != nil {
		return err
	}
	return encodeValue(enc, decoded)
}

// formatFloat renders f the way a repr-style float printer does: integral
// values keep a trailing ".0" and exponent notation is used outside
// [1e-4, 1e16).
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	if f == 0 {
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}
	e := strconv.FormatFloat(f, 'e', -1, 64)
	if exp, err := strconv.Atoi(e[strings.IndexByte(e, 'e')+1:]); err == nil && (exp < -4 || exp >= 16) {
		return e
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
