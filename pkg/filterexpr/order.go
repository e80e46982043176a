package filterexpr

import (
	"errors"
	"fmt"
	"strings"
)

// OrderSchema whitelists sortable keys and the default ordering.
type OrderSchema struct {
	Fields      []string
	Default     OrderTerm
	Fallback    OrderTerm
	MaxSortKeys int
}

func (s OrderSchema) has(key string) bool {
	for _, f := range s.Fields {
		if f == key {
			return true
		}
	}
	return false
}

// OrderTerm is one sort key.
type OrderTerm struct {
	Field string
	Desc  bool
}

// ParseOrder parses "key [asc|desc], ..." into sort terms. The fallback key is
// appended when absent so that pagination is stable.
func ParseOrder(raw string, schema OrderSchema) ([]OrderTerm, error) {
	if schema.Default.Field == "" || schema.Fallback.Field == "" {
		return nil, errors.New("order schema requires default and fallback keys")
	}
	maxKeys := schema.MaxSortKeys
	if maxKeys <= 0 {
		maxKeys = 2
	}

	var terms []OrderTerm
	seen := map[string]bool{}
	for _, seg := range strings.Split(raw, ",") {
		parts := strings.Fields(seg)
		if len(parts) == 0 {
			continue
		}
		key := parts[0]
		if !schema.has(key) {
			return nil, fmt.Errorf("field %q cannot be used for ordering", key)
		}
		if seen[key] {
			return nil, fmt.Errorf("duplicate order key %q", key)
		}
		seen[key] = true

		term := OrderTerm{Field: key}
		switch len(parts) {
		case 1:
		case 2:
			switch strings.ToLower(parts[1]) {
			case "asc":
			case "desc":
				term.Desc = true
			default:
				return nil, fmt.Errorf("invalid direction %q for field %q", parts[1], key)
			}
		default:
			return nil, fmt.Errorf("invalid order segment %q", strings.TrimSpace(seg))
		}
		terms = append(terms, term)
	}
	if len(terms) > maxKeys {
		return nil, fmt.Errorf("order_by supports at most %d keys", maxKeys)
	}

	if len(terms) == 0 {
		terms = append(terms, schema.Default)
		seen[schema.Default.Field] = true
	}
	if !seen[schema.Fallback.Field] {
		terms = append(terms, schema.Fallback)
	}
	return terms, nil
}
