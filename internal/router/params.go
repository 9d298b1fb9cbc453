package router

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"apiforge/internal/schema"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 1000
)

type ListParams struct {
	Page    int
	Limit   int
	Sort    string
	Desc    bool
	Filters []Filter
}

type Filter struct {
	Column string
	Value  string
}

func (p ListParams) Offset() int { return (p.Page - 1) * p.Limit }

var reservedParams = map[string]struct{}{
	"page": {}, "limit": {}, "sort": {}, "order": {},
}

// parseListParams reads page/limit/sort/order; every other parameter is an
// equality filter and must name a column of t. The tenant column cannot be
// filtered on: it is always pinned to the caller's tenant.
func parseListParams(q url.Values, t *schema.Table) (ListParams, error) {
	p := ListParams{Page: defaultPage, Limit: defaultLimit}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, fmt.Errorf("page must be a positive integer")
		}
		p.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLimit {
			return p, fmt.Errorf("limit must be between 1 and %d", maxLimit)
		}
		p.Limit = n
	}

	if v := strings.TrimSpace(q.Get("sort")); v != "" {
		if !t.HasColumn(v) {
			return p, fmt.Errorf("unknown sort column %q", v)
		}
		p.Sort = v
	}
	switch strings.ToLower(strings.TrimSpace(q.Get("order"))) {
	case "", "asc":
	case "desc":
		p.Desc = true
	default:
		return p, fmt.Errorf("order must be asc or desc")
	}

	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, skip := reservedParams[k]; skip || k == schema.TenantColumn {
			continue
		}
		if !t.HasColumn(k) {
			return p, fmt.Errorf("unknown filter column %q", k)
		}
		p.Filters = append(p.Filters, Filter{Column: k, Value: q.Get(k)})
	}
	return p, nil
}
