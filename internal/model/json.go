package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// IDList is a JSON column holding numeric ids, e.g. a performer's categories
type IDList []uint64

// Value implement driver.Valuer interface
func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implement sql.Scanner interface
func (l *IDList) Scan(value interface{}) error {
	return scanJSON(value, l, "IDList")
}

// Contains reports whether id is in the list
func (l IDList) Contains(id uint64) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

// Without returns a copy of the list with every occurrence of id removed
func (l IDList) Without(id uint64) IDList {
	out := make(IDList, 0, len(l))
	for _, v := range l {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func scanJSON(value interface{}, dst interface{}, name string) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("cannot scan %T into %s", value, name)
	}
}
