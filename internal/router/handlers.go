package router

import (
	"net/http"

	"apiforge/internal/pg"
	"apiforge/internal/schema"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// validID rejects ids the primary key column could never hold.
func validID(t *schema.Table, id string) bool {
	pk := t.PrimaryKey()
	if pk == nil || pk.BaseType() != "uuid" {
		return id != ""
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func pkName(t *schema.Table) string {
	if pk := t.PrimaryKey(); pk != nil {
		return pk.Name
	}
	return schema.IDColumn
}

// GET /{table}
func (r *Router) list(tr *tableRoutes) handler {
	return func(c *gin.Context, tenantID, _ string) {
		p, err := parseListParams(c.Request.URL.Query(), tr.table)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		q := pg.From(tr.physical).Select().Eq(schema.TenantColumn, tenantID)
		count := pg.From(tr.physical).Eq(schema.TenantColumn, tenantID)
		for _, f := range p.Filters {
			q.Eq(f.Column, f.Value)
			count.Eq(f.Column, f.Value)
		}
		if p.Sort != "" {
			q.Order(p.Sort, p.Desc)
		}
		q.Range(p.Offset(), p.Offset()+p.Limit-1)

		ctx := c.Request.Context()
		rows, err := r.db.Run(ctx, q)
		if err != nil {
			DatabaseError(c, tr.physical, err)
			return
		}
		total, err := r.db.Count(ctx, count)
		if err != nil {
			DatabaseError(c, tr.physical, err)
			return
		}
		if rows == nil {
			rows = []map[string]any{}
		}
		c.JSON(http.StatusOK, gin.H{
			"data": rows,
			"pagination": gin.H{
				"page":  p.Page,
				"limit": p.Limit,
				"total": total,
			},
		})
	}
}

// GET /{table}/:id
func (r *Router) read(tr *tableRoutes) handler {
	return func(c *gin.Context, tenantID, id string) {
		row, ok := r.findOne(c, tr, tenantID, id)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

// findOne reads a record under the tenant predicate. It writes the error
// response itself and reports whether a row was found.
func (r *Router) findOne(c *gin.Context, tr *tableRoutes, tenantID, id string) (map[string]any, bool) {
	if !validID(tr.table, id) {
		badRequest(c, "invalid id")
		return nil, false
	}
	rows, err := r.db.Run(c.Request.Context(), pg.From(tr.physical).Select().
		Eq(pkName(tr.table), id).
		Eq(schema.TenantColumn, tenantID).
		Range(0, 0))
	if err != nil {
		DatabaseError(c, tr.physical, err)
		return nil, false
	}
	if len(rows) == 0 {
		notFound(c, "record not found")
		return nil, false
	}
	return rows[0], true
}

// POST /{table}
func (r *Router) create(tr *tableRoutes) handler {
	return func(c *gin.Context, tenantID, _ string) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "Invalid JSON")
			return
		}
		values, err := scrubCreate(tr.table, body, tenantID)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		rows, err := r.db.Run(c.Request.Context(), pg.From(tr.physical).Insert(values))
		if err != nil {
			DatabaseError(c, tr.physical, err)
			return
		}
		if len(rows) == 0 {
			DatabaseError(c, tr.physical, &pg.QueryError{Table: tr.physical, Message: "insert returned no row"})
			return
		}
		c.JSON(http.StatusCreated, rows[0])
	}
}

// PUT /{table}/:id
func (r *Router) update(tr *tableRoutes) handler {
	return func(c *gin.Context, tenantID, id string) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "Invalid JSON")
			return
		}
		values, err := scrubUpdate(tr.table, body, tenantID)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		if _, ok := r.findOne(c, tr, tenantID, id); !ok {
			return
		}
		rows, err := r.db.Run(c.Request.Context(), pg.From(tr.physical).Update(values).
			Eq(pkName(tr.table), id).
			Eq(schema.TenantColumn, tenantID))
		if err != nil {
			DatabaseError(c, tr.physical, err)
			return
		}
		if len(rows) == 0 {
			notFound(c, "record not found")
			return
		}
		c.JSON(http.StatusOK, rows[0])
	}
}

// DELETE /{table}/:id
func (r *Router) remove(tr *tableRoutes) handler {
	return func(c *gin.Context, tenantID, id string) {
		if _, ok := r.findOne(c, tr, tenantID, id); !ok {
			return
		}
		rows, err := r.db.Run(c.Request.Context(), pg.From(tr.physical).Delete().
			Eq(pkName(tr.table), id).
			Eq(schema.TenantColumn, tenantID))
		if err != nil {
			DatabaseError(c, tr.physical, err)
			return
		}
		if len(rows) == 0 {
			notFound(c, "record not found")
			return
		}
		c.Status(http.StatusNoContent)
	}
}
