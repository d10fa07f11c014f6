package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
)

// Int64List is a JSON array of ids stored in a jsonb column.
type Int64List []int64

func (l *Int64List) Scan(src any) error {
	if src == nil {
		*l = Int64List{}
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("Int64List: unsupported Scan type %T", src)
	}
	if len(raw) == 0 {
		*l = Int64List{}
		return nil
	}

	var out []int64
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("Int64List: decode: %w", err)
	}
	if out == nil {
		out = []int64{}
	}
	*l = Int64List(out)
	return nil
}

func (l Int64List) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]int64(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Contains reports whether id is present.
func (l Int64List) Contains(id int64) bool {
	return slices.Contains(l, id)
}

// AppendUnique returns the list with id appended unless already present.
func (l Int64List) AppendUnique(id int64) Int64List {
	if l.Contains(id) {
		return l
	}
	out := make(Int64List, 0, len(l)+1)
	out = append(out, l...)
	return append(out, id)
}
