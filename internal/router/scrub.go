package router

import (
	"fmt"
	"strings"

	"apiforge/internal/schema"
)

// placeholder values clients copy verbatim from generated docs.
var placeholders = map[string]struct{}{
	"uuid-generated-by-database": {},
	"string":                     {},
	"":                           {},
}

func isPlaceholder(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, hit := placeholders[strings.TrimSpace(s)]
	return hit
}

// scrubCreate prepares an insert body: unknown fields are rejected,
// placeholder ids and timestamps are dropped so database defaults apply,
// placeholder foreign keys become null, and the tenant column is forced.
func scrubCreate(t *schema.Table, body map[string]any, tenantID string) (map[string]any, error) {
	out := make(map[string]any, len(body)+1)
	for k, v := range body {
		if !t.HasColumn(k) {
			return nil, fmt.Errorf("unknown field %q", k)
		}
		switch {
		case k == schema.TenantColumn:
			continue
		case k == schema.IDColumn:
			if v == nil || isPlaceholder(v) {
				continue
			}
		case k == schema.CreatedAtColumn || k == schema.UpdatedAtColumn:
			if v == nil || isPlaceholder(v) {
				continue
			}
		case strings.HasSuffix(k, "_id"):
			if isPlaceholder(v) {
				v = nil
			}
		}
		out[k] = v
	}
	out[schema.TenantColumn] = tenantID
	return out, nil
}

// scrubUpdate prepares an update body. The primary key and creation time are
// immutable and updated_at is maintained by the database.
func scrubUpdate(t *schema.Table, body map[string]any, tenantID string) (map[string]any, error) {
	out := make(map[string]any, len(body)+1)
	for k, v := range body {
		if !t.HasColumn(k) {
			return nil, fmt.Errorf("unknown field %q", k)
		}
		switch {
		case k == schema.IDColumn, k == schema.CreatedAtColumn, k == schema.UpdatedAtColumn, k == schema.TenantColumn:
			continue
		case strings.HasSuffix(k, "_id") && isPlaceholder(v):
			v = nil
		}
		out[k] = v
	}
	out[schema.TenantColumn] = tenantID
	return out, nil
}
