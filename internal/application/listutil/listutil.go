// Package listutil parses list-endpoint query parameters.
package listutil

import (
	"net/url"
	"strconv"
)

// LimitParams bounds the "limit" query parameter of one list endpoint.
type LimitParams struct {
	Default int
	Max     int
}

// Admin list endpoints share these bounds.
var (
	OutboxLimits = LimitParams{Default: 50, Max: 100}
	AuditLimits  = LimitParams{Default: 100, Max: 1000}
)

// ParseLimit extracts limit from URL query values.
// PRE: p.Default > 0 and p.Max >= p.Default
// POST: returns a value in [1, p.Max]; missing, malformed or out-of-range input yields p.Default
func ParseLimit(q url.Values, p LimitParams) int {
	n, err := strconv.Atoi(q.Get("limit"))
	if err != nil || n < 1 || n > p.Max {
		return p.Default
	}
	return n
}

// ParseFilters extracts the named exact-match filters, skipping empty ones.
// PRE: none
// POST: returns a non-nil map containing only keys present in filterKeys
func ParseFilters(q url.Values, filterKeys []string) map[string]string {
	filters := make(map[string]string)
	for _, key := range filterKeys {
		if v := q.Get(key); v != "" {
			filters[key] = v
		}
	}
	return filters
}
