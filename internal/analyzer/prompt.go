package analyzer

import (
	"encoding/json"
	"regexp"
	"strings"

	"apiforge/internal/schema"
)

const systemPrompt = `You are a PostgreSQL database designer. Turn the user's description into a relational schema.

Answer with ONLY a JSON object, no prose and no markdown fences, of this exact shape:
{
  "tables": [
    {
      "name": "snake_case_plural_name",
      "columns": [
        {"name": "id", "type": "uuid", "constraints": ["primary key", "default uuid_generate_v4()"]},
        {"name": "created_at", "type": "timestamp", "constraints": ["default now()"]},
        {"name": "updated_at", "type": "timestamp", "constraints": ["default now()"]}
      ],
      "relationships": [
        {"type": "many-to-one", "sourceColumn": "user_id", "targetTable": "users", "targetColumn": "id"}
      ]
    }
  ]
}

Rules:
- Allowed column types: uuid, varchar(n), text, integer, bigint, smallint, numeric, real, double precision, boolean, timestamp, timestamptz, date, time, json, jsonb.
- Constraints are plain strings drawn from: "primary key", "unique", "not null", "default <expr>".
- Never put "references", "foreign key" or "on delete" inside constraints; express links only in "relationships".
- Relationship type is one of one-to-one, one-to-many, many-to-one, many-to-many. The foreign key column lives on the "many" side.
- Every table has id (uuid primary key), created_at and updated_at.
- Do not add a tenant column; it is added automatically.`

const modificationInstruction = `

You are modifying an existing schema. Return the COMPLETE resulting schema in the same JSON shape.
Repeat every table you do not change verbatim, keeping its name, columns and relationships.
Existing schema:
`

var multiInstanceRe = regexp.MustCompile(`(?i)\b(address(es)?|contacts?|phones?|emails?|locations?|multiple|many)\b`)

const multiInstanceNote = `

Note: where an entity can have several of something (addresses, contacts, phone numbers, ...), model it as a separate child table with a back-reference instead of repeated columns. When one child table is shared by several parent types, use a polymorphic pattern: entity_type varchar(50) not null and entity_id uuid not null on the child, with no direct foreign key.`

// userPrompt enriches the caller's prompt with modelling hints.
func userPrompt(prompt string) string {
	p := strings.TrimSpace(prompt)
	if multiInstanceRe.MatchString(p) {
		p += multiInstanceNote
	}
	return p
}

func modificationSystemPrompt(existing *schema.Graph) string {
	b, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		b = []byte(`{"tables":[]}`)
	}
	return systemPrompt + modificationInstruction + string(b)
}
