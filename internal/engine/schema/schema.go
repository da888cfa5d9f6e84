// Package schema declares per-index field mappings and coerces raw document
// values into a closed set of typed field values. Text fields are the only
// fields that feed the inverted index; keyword, integer, boolean, and date
// fields are stored verbatim and usable only in filters.
package schema

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/fastsearch/fastsearch/pkg/errors"
)

// FieldType tags how a field is indexed and filtered.
type FieldType string

const (
	TypeText    FieldType = "text"
	TypeKeyword FieldType = "keyword"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
)

// dateLayouts are the accepted textual date formats, tried in order.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// Mapping maps field names to their declared types. Immutable once the
// owning index is created.
type Mapping map[string]FieldType

// Parse validates a raw mapping specification (field name -> type tag) and
// returns a Mapping.
func Parse(spec map[string]string) (Mapping, error) {
	if len(spec) == 0 {
		return nil, errors.Schemaf("mapping must declare at least one field")
	}
	m := make(Mapping, len(spec))
	for field, tag := range spec {
		if field == "" {
			return nil, errors.Schemaf("mapping contains an empty field name")
		}
		switch ft := FieldType(tag); ft {
		case TypeText, TypeKeyword, TypeInteger, TypeBoolean, TypeDate:
			m[field] = ft
		default:
			return nil, errors.Schemaf("field %q has unknown type %q", field, tag)
		}
	}
	return m, nil
}

// Spec returns the mapping as a plain field name -> type tag map, suitable
// for snapshots and stats responses.
func (m Mapping) Spec() map[string]string {
	spec := make(map[string]string, len(m))
	for field, ft := range m {
		spec[field] = string(ft)
	}
	return spec
}

// Value is a coerced field value. Exactly the representation matching Type
// is meaningful; for dates both Str (original text) and Time (parsed) are
// populated.
type Value struct {
	Type FieldType
	Str  string
	Int  int64
	Bool bool
	Time time.Time
}

// Raw returns the native Go representation of the value, as stored documents
// expose it to callers. Dates round-trip as their original string form.
func (v Value) Raw() any {
	switch v.Type {
	case TypeInteger:
		return v.Int
	case TypeBoolean:
		return v.Bool
	default:
		return v.Str
	}
}

// Equal reports whether two values of the same type are equal.
func (v Value) Equal(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case TypeInteger:
		return v.Int == other.Int
	case TypeBoolean:
		return v.Bool == other.Bool
	case TypeDate:
		return v.Time.Equal(other.Time)
	default:
		return v.Str == other.Str
	}
}

// Compare orders two values of the same ordered type (integer or date).
// The result is negative, zero, or positive in the usual way.
func (v Value) Compare(other Value) int {
	switch v.Type {
	case TypeInteger:
		switch {
		case v.Int < other.Int:
			return -1
		case v.Int > other.Int:
			return 1
		default:
			return 0
		}
	case TypeDate:
		return v.Time.Compare(other.Time)
	default:
		return 0
	}
}

// Ordered reports whether the field type supports range comparisons.
func (ft FieldType) Ordered() bool {
	return ft == TypeInteger || ft == TypeDate
}

// Coerce validates raw against the declared type of field and returns the
// typed value. Unknown fields and uncoercible values fail with a schema
// error, before any index state is touched.
func (m Mapping) Coerce(field string, raw any) (Value, error) {
	ft, ok := m[field]
	if !ok {
		return Value{}, errors.Schemaf("field %q is not declared in the mapping", field)
	}
	v, err := coerce(ft, raw)
	if err != nil {
		return Value{}, errors.Schemaf("field %q: %v", field, err)
	}
	return v, nil
}

func coerce(ft FieldType, raw any) (Value, error) {
	switch ft {
	case TypeText, TypeKeyword:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected string for %s field, got %T", ft, raw)
		}
		return Value{Type: ft, Str: s}, nil

	case TypeInteger:
		n, err := coerceInt(raw)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: ft, Int: n}, nil

	case TypeBoolean:
		switch b := raw.(type) {
		case bool:
			return Value{Type: ft, Bool: b}, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return Value{}, fmt.Errorf("cannot coerce %q to boolean", b)
			}
			return Value{Type: ft, Bool: parsed}, nil
		default:
			return Value{}, fmt.Errorf("expected boolean, got %T", raw)
		}

	case TypeDate:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected date string, got %T", raw)
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return Value{Type: ft, Str: s, Time: t}, nil
			}
		}
		return Value{}, fmt.Errorf("cannot parse %q as a date", s)

	default:
		return Value{}, fmt.Errorf("unknown field type %q", ft)
	}
}

func coerceInt(raw any) (int64, error) {
	switch n := raw.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		// JSON numbers arrive as float64; only integral values are valid.
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("cannot coerce %v to integer", n)
		}
		return int64(n), nil
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to integer", n)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", raw)
	}
}
