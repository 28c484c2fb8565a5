package winnow

import (
	"fmt"
	"reflect"
	"strings"
)

// AttributeValue reads the named attribute off a concrete host object.
// It is the host-value accessor the compiler uses when lowering
// complete results, and the filter primitive the in-memory backends
// build on.
//
// Supported shapes:
//
//   - map[string]any: direct key lookup
//   - struct or pointer to struct: exported field whose name matches
//     the attribute under snake_case/CamelCase normalization (owner_id
//     matches OwnerID), with a `winnow` struct tag taking precedence
//
// Missing attributes are reported as ErrUnknownField.
func AttributeValue(obj any, field string) (any, error) {
	if m, ok := obj.(map[string]any); ok {
		v, ok := m[field]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
		}
		return v, nil
	}

	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("%w: %q on nil object", ErrUnknownField, field)
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %q on unsupported value of type %T", ErrUnknownField, field, obj)
	}

	rt := rv.Type()
	want := normalizeFieldName(field)
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		if tag, ok := sf.Tag.Lookup("winnow"); ok {
			if tag == field {
				return rv.Field(i).Interface(), nil
			}
			continue
		}
		if normalizeFieldName(sf.Name) == want {
			return rv.Field(i).Interface(), nil
		}
	}

	return nil, fmt.Errorf("%w: %q on %s", ErrUnknownField, field, rt.Name())
}

// normalizeFieldName lowercases and strips underscores so that
// owner_id, OwnerID, and OwnerId all compare equal.
func normalizeFieldName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "")
}

// equalValues compares two host values for constraint purposes.
// Numeric values compare by magnitude across integer and float
// representations, since values decoded from wire formats arrive as
// float64 while host structs carry int fields.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	af, aNum := asFloat(a)
	bf, bNum := asFloat(b)
	if aNum && bNum {
		return af == bf
	}

	return reflect.DeepEqual(a, b)
}

// valueIn reports whether v is a member of list, which must be a slice
// or array.
func valueIn(v, list any) (bool, error) {
	rl := reflect.ValueOf(list)
	if rl.Kind() != reflect.Slice && rl.Kind() != reflect.Array {
		return false, fmt.Errorf("%w: In constraint over non-list value %T", ErrInvalidPlan, list)
	}
	for i := 0; i < rl.Len(); i++ {
		if equalValues(v, rl.Index(i).Interface()) {
			return true, nil
		}
	}
	return false, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
