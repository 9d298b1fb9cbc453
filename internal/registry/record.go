package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"apiforge/internal/schema"
)

// Record is the persisted definition of a published API. Its tables are the
// source of truth for rebuilding the router after a restart.
type Record struct {
	APIID         string          `json:"apiId"`
	TenantID      string          `json:"tenantId"`
	APIIdentifier string          `json:"apiIdentifier"`
	Tables        []*schema.Table `json:"tables"`
	Prompt        string          `json:"prompt,omitempty"`
	SQL           string          `json:"sql,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	LastAccessed  time.Time       `json:"lastAccessed"`
}

// Graph returns a copy of the stored tables as a graph.
func (r *Record) Graph() *schema.Graph {
	return (&schema.Graph{Tables: r.Tables}).Clone()
}

// Clone is a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.Tables = r.Graph().Tables
	return &c
}

// DecodeRecord accepts the metadata either as a JSON object or as a JSON
// string holding the object.
func DecodeRecord(data []byte) (*Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		data = []byte(inner)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &rec, nil
}
