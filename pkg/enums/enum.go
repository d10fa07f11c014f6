package enums

import (
	"fmt"
	"slices"
)

// known reports whether v is one of values.
func known[T ~string](v T, values []T) bool {
	return slices.Contains(values, v)
}

// parse maps raw input onto one of values, naming kind in the error.
func parse[T ~string](kind, raw string, values []T) (T, error) {
	if v := T(raw); known(v, values) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
