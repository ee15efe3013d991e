package query

import (
	"fmt"
	"net/url"
	"strconv"
)

// Pagination holds validated skip/limit parameters.
type Pagination struct {
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
}

// Limits configures pagination bounds per endpoint. The zero value falls
// back to DefaultLimit 50 and MaxLimit 200.
type Limits struct {
	DefaultLimit int
	MaxLimit     int
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

func (l Limits) withDefaults() Limits {
	if l.DefaultLimit == 0 {
		l.DefaultLimit = defaultLimit
	}
	if l.MaxLimit == 0 {
		l.MaxLimit = maxLimit
	}
	return l
}

// ParsePagination reads pagination parameters from query values.
//
// "skip" (alias "offset") must be >= 0 and defaults to 0. "limit"
// (alias "take") must be between 1 and the endpoint's maximum, and
// defaults to the endpoint's default.
func ParsePagination(values url.Values, limits Limits) (Pagination, error) {
	limits = limits.withDefaults()
	p := Pagination{Skip: 0, Limit: limits.DefaultLimit}

	if raw := firstValue(values, "skip", "offset"); raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil {
			return Pagination{}, fmt.Errorf("skip is not an integer: %q", raw)
		}
		if skip < 0 {
			return Pagination{}, fmt.Errorf("skip must not be negative, got %d", skip)
		}
		p.Skip = skip
	}

	if raw := firstValue(values, "limit", "take"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return Pagination{}, fmt.Errorf("limit is not an integer: %q", raw)
		}
		if limit < 1 || limit > limits.MaxLimit {
			return Pagination{}, fmt.Errorf("limit must be between 1 and %d, got %d", limits.MaxLimit, limit)
		}
		p.Limit = limit
	}

	return p, nil
}

// firstValue returns the first non-empty value among the named parameters.
func firstValue(values url.Values, names ...string) string {
	for _, name := range names {
		if v := values.Get(name); v != "" {
			return v
		}
	}
	return ""
}
