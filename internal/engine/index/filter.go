package index

import (
	"github.com/fastsearch/fastsearch/internal/engine/schema"
	"github.com/fastsearch/fastsearch/pkg/errors"
)

// Filter restricts search results by one non-text field. Either Exact is set
// or at least one of Min/Max is set; range bounds are inclusive and only
// valid for ordered types (integer, date). Multiple filters combine with AND
// semantics.
type Filter struct {
	Field string `json:"field"`
	Exact any    `json:"exact,omitempty"`
	Min   any    `json:"min,omitempty"`
	Max   any    `json:"max,omitempty"`
}

// compiledFilter is a Filter whose raw values have been coerced against the
// index mapping.
type compiledFilter struct {
	field string
	exact *schema.Value
	min   *schema.Value
	max   *schema.Value
}

// compileFilters validates the filters against the mapping. Text fields are
// not filterable; unknown fields, uncoercible values, and ranges over
// unordered types are schema errors.
func compileFilters(mapping schema.Mapping, filters []Filter) ([]compiledFilter, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	compiled := make([]compiledFilter, 0, len(filters))
	for _, f := range filters {
		ft, ok := mapping[f.Field]
		if !ok {
			return nil, errors.Schemaf("filter field %q is not declared in the mapping", f.Field)
		}
		if ft == schema.TypeText {
			return nil, errors.Schemaf("field %q has type text and cannot be filtered", f.Field)
		}
		cf := compiledFilter{field: f.Field}
		if f.Exact != nil {
			v, err := mapping.Coerce(f.Field, f.Exact)
			if err != nil {
				return nil, err
			}
			cf.exact = &v
		}
		if f.Min != nil || f.Max != nil {
			if !ft.Ordered() {
				return nil, errors.Schemaf("field %q has type %s and does not support ranges", f.Field, ft)
			}
			if f.Min != nil {
				v, err := mapping.Coerce(f.Field, f.Min)
				if err != nil {
					return nil, err
				}
				cf.min = &v
			}
			if f.Max != nil {
				v, err := mapping.Coerce(f.Field, f.Max)
				if err != nil {
					return nil, err
				}
				cf.max = &v
			}
		}
		if cf.exact == nil && cf.min == nil && cf.max == nil {
			return nil, errors.Schemaf("filter on field %q supplies neither an exact value nor a range", f.Field)
		}
		compiled = append(compiled, cf)
	}
	return compiled, nil
}

// matches reports whether the document's stored fields satisfy every filter.
// A document missing a filtered field never matches.
func matches(fields map[string]schema.Value, filters []compiledFilter) bool {
	for _, f := range filters {
		v, ok := fields[f.field]
		if !ok {
			return false
		}
		if f.exact != nil && !v.Equal(*f.exact) {
			return false
		}
		if f.min != nil && v.Compare(*f.min) < 0 {
			return false
		}
		if f.max != nil && v.Compare(*f.max) > 0 {
			return false
		}
	}
	return true
}
