package router

import (
	"apiforge/internal/schema"
)

const exampleUUID = "3fa85f64-5717-4562-b3fc-2c963f66afa6"

// columnSchema maps a PostgreSQL column type to an OpenAPI schema.
func columnSchema(c schema.Column) map[string]any {
	switch c.BaseType() {
	case "integer", "int", "int2", "int4", "int8", "bigint", "smallint", "serial", "bigserial":
		return map[string]any{"type": "integer", "example": 1}
	case "numeric", "decimal", "real", "double precision", "float", "float4", "float8":
		return map[string]any{"type": "number", "example": 1.5}
	case "boolean", "bool":
		return map[string]any{"type": "boolean"}
	case "timestamp", "timestamptz", "timestamp with time zone", "timestamp without time zone", "date":
		return map[string]any{"type": "string", "format": "date-time"}
	case "uuid":
		if c.Name == schema.IDColumn {
			return map[string]any{"type": "string", "format": "uuid"}
		}
		return map[string]any{"type": "string", "format": "uuid", "example": exampleUUID}
	}
	return map[string]any{"type": "string", "example": c.Name}
}

// serverManaged columns are filled by the server and not accepted as input.
func serverManaged(name string) bool {
	switch name {
	case schema.IDColumn, schema.CreatedAtColumn, schema.UpdatedAtColumn, schema.TenantColumn:
		return true
	}
	return false
}

func tableSchema(t *schema.Table) *Document {
	props := NewDocument()
	for _, c := range t.Columns {
		props.Set(c.Name, columnSchema(c))
	}
	s := NewDocument()
	s.Set("type", "object")
	s.Set("properties", props)
	return s
}

func inputSchema(t *schema.Table) *Document {
	props := NewDocument()
	var required []string
	for _, c := range t.Columns {
		if serverManaged(c.Name) {
			continue
		}
		props.Set(c.Name, columnSchema(c))
		if _, hasDefault := c.Default(); c.Has(schema.AtomNotNull) && !hasDefault {
			required = append(required, c.Name)
		}
	}
	s := NewDocument()
	s.Set("type", "object")
	s.Set("properties", props)
	if len(required) > 0 {
		s.Set("required", required)
	}
	return s
}

func jsonContent(schemaRef map[string]any) map[string]any {
	return map[string]any{"application/json": map[string]any{"schema": schemaRef}}
}

func ref(name string) map[string]any {
	return map[string]any{"$ref": "#/components/schemas/" + name}
}

var errorResponses = map[string]any{
	"400": map[string]any{"description": "Bad Request"},
	"500": map[string]any{"description": "Database error"},
}

func idParam() map[string]any {
	return map[string]any{"name": "id", "in": "path", "required": true, "schema": map[string]any{"type": "string", "format": "uuid"}}
}

func buildOpenAPI(title string, g *schema.Graph) *Document {
	doc := NewDocument()
	doc.Set("openapi", "3.0.3")
	doc.Set("info", map[string]any{
		"title":       title,
		"version":     "1.0.0",
		"description": "Generated CRUD API. Every request is scoped to the caller's tenant.",
	})
	doc.Set("servers", []map[string]any{{"url": "/"}})

	paths := NewDocument()
	schemas := NewDocument()
	for _, t := range g.Tables {
		input := t.Name + "Input"
		schemas.Set(t.Name, tableSchema(t))
		schemas.Set(input, inputSchema(t))

		collection := NewDocument()
		collection.Set("get", map[string]any{
			"operationId": "list_" + t.Name,
			"tags":        []string{t.Name},
			"parameters": []map[string]any{
				{"name": "page", "in": "query", "schema": map[string]any{"type": "integer", "default": defaultPage}},
				{"name": "limit", "in": "query", "schema": map[string]any{"type": "integer", "default": defaultLimit}},
				{"name": "sort", "in": "query", "schema": map[string]any{"type": "string"}},
				{"name": "order", "in": "query", "schema": map[string]any{"type": "string", "enum": []string{"asc", "desc"}}},
			},
			"responses": map[string]any{
				"200": map[string]any{
					"description": "OK",
					"content": jsonContent(map[string]any{
						"type": "object",
						"properties": map[string]any{
							"data": map[string]any{"type": "array", "items": ref(t.Name)},
							"pagination": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"page":  map[string]any{"type": "integer"},
									"limit": map[string]any{"type": "integer"},
									"total": map[string]any{"type": "integer"},
								},
							},
						},
					}),
				},
				"400": errorResponses["400"],
				"500": errorResponses["500"],
			},
		})
		collection.Set("post", map[string]any{
			"operationId": "create_" + t.Name,
			"tags":        []string{t.Name},
			"requestBody": map[string]any{"required": true, "content": jsonContent(ref(input))},
			"responses": map[string]any{
				"201": map[string]any{"description": "Created", "content": jsonContent(ref(t.Name))},
				"400": errorResponses["400"],
				"500": errorResponses["500"],
			},
		})
		paths.Set("/"+t.Name, collection)

		item := NewDocument()
		item.Set("get", map[string]any{
			"operationId": "get_" + t.Name,
			"tags":        []string{t.Name},
			"parameters":  []map[string]any{idParam()},
			"responses": map[string]any{
				"200": map[string]any{"description": "OK", "content": jsonContent(ref(t.Name))},
				"404": map[string]any{"description": "Not Found"},
			},
		})
		item.Set("put", map[string]any{
			"operationId": "update_" + t.Name,
			"tags":        []string{t.Name},
			"parameters":  []map[string]any{idParam()},
			"requestBody": map[string]any{"required": true, "content": jsonContent(ref(input))},
			"responses": map[string]any{
				"200": map[string]any{"description": "OK", "content": jsonContent(ref(t.Name))},
				"404": map[string]any{"description": "Not Found"},
				"400": errorResponses["400"],
			},
		})
		item.Set("delete", map[string]any{
			"operationId": "delete_" + t.Name,
			"tags":        []string{t.Name},
			"parameters":  []map[string]any{idParam()},
			"responses": map[string]any{
				"204": map[string]any{"description": "Deleted"},
				"404": map[string]any{"description": "Not Found"},
			},
		})
		paths.Set("/"+t.Name+"/{id}", item)
	}
	doc.Set("paths", paths)

	components := NewDocument()
	components.Set("schemas", schemas)
	doc.Set("components", components)
	return doc
}
