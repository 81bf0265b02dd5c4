package client

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
)

const projectParam = "project_uuid"

// encodeParams validates that every value is a scalar and renders the map as
// query values. Booleans become "true"/"false"; nil values are dropped.
func encodeParams(params map[string]any) (url.Values, error) {
	values := url.Values{}
	for k, v := range params {
		if v == nil {
			continue
		}
		s, ok := scalarString(v)
		if !ok {
			return nil, &SpecificationError{
				Attribute: "params",
				Message:   fmt.Sprintf("query parameter %q must be a scalar, got %T", k, v),
			}
		}
		values.Set(k, s)
	}
	return values, nil
}

// scalarString formats v when its kind is string, bool or numeric. Structs
// are rejected even when they implement fmt.Stringer.
func scalarString(v any) (string, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	default:
		return "", false
	}
}

// scopeParams injects the active project for non-POST methods unless the
// caller already set a non-empty one.
func scopeParams(values url.Values, method, project string) {
	if method == "POST" || project == "" {
		return
	}
	if values.Get(projectParam) != "" {
		return
	}
	values.Set(projectParam, project)
}
