package pg

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"apiforge/internal/schema"
)

type Strategy string

const (
	StrategyStandard  Strategy = "standard"
	StrategyDecoupled Strategy = "decoupled"
	StrategyAtomic    Strategy = "atomic-per-table"
)

const (
	privilegeSQL        = `select has_schema_privilege(current_schema(), 'CREATE') as ok`
	probeFoldSQL        = `select table_name from information_schema.tables where table_schema = current_schema() and lower(table_name) = lower($1)`
	probeLikeSQL        = `select table_name from information_schema.tables where table_schema = current_schema() and table_name ilike $1 order by length(table_name) limit 1`
	constraintExistsSQL = `select conname from pg_constraint where conname = $1`
)

func probeExactSQL(phys string) string {
	return "select 1 from " + sqlIdent(phys) + " limit 0"
}

type TableStatus struct {
	Name         string `json:"name"`
	PhysicalName string `json:"physicalName"`
	Exists       bool   `json:"exists"`
	CaseFolded   bool   `json:"caseFolded,omitempty"`
}

// Report describes a successful materialization.
type Report struct {
	Strategy    Strategy      `json:"strategy"`
	Tables      []TableStatus `json:"tables"`
	ForeignKeys []string      `json:"foreignKeys"`
	Warnings    []string      `json:"warnings,omitempty"`
}

// Materializer turns a normalized graph into verified physical tables,
// escalating through three strategies until every table exists.
type Materializer struct {
	exec Executor

	mu    sync.Mutex
	ready bool
}

func NewMaterializer(exec Executor) *Materializer {
	return &Materializer{exec: exec}
}

// CheckExecutor probes once that the executor may create objects. Only
// success is cached so a fixed deployment recovers without restart.
func (m *Materializer) CheckExecutor(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready {
		return nil
	}
	if m.exec == nil {
		return &ExecutorUnavailableError{Cause: errors.New("no executor configured"), Remediation: remediation}
	}
	rows, err := m.exec.Query(ctx, privilegeSQL)
	if err != nil {
		return &ExecutorUnavailableError{Cause: err, Remediation: remediation}
	}
	if len(rows) == 0 || !truthy(rows[0]["ok"]) {
		return &ExecutorUnavailableError{Cause: errors.New("missing CREATE privilege on current schema"), Remediation: remediation}
	}
	m.ready = true
	return nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x == "t" || x == "true"
	case int64:
		return x != 0
	}
	return false
}

// Materialize creates the tables of g for one API instance. On success the
// graph's prefixed names hold the physical names actually found.
func (m *Materializer) Materialize(ctx context.Context, g *schema.Graph, tenantID, apiIdentifier string) (*Report, error) {
	if err := m.CheckExecutor(ctx); err != nil {
		return nil, err
	}
	if g == nil || len(g.Tables) == 0 {
		return nil, &MaterializationError{Cause: errors.New("empty schema")}
	}

	type attempt struct {
		name Strategy
		run  func(context.Context, *schema.Graph, string, string) ([]string, error)
	}
	attempts := []attempt{
		{StrategyStandard, m.standard},
		{StrategyDecoupled, m.decoupled},
		{StrategyAtomic, m.atomic},
	}

	var (
		warnings []string
		missing  []string
		lastErr  error
	)
	for _, a := range attempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w, err := a.run(ctx, g, tenantID, apiIdentifier)
		warnings = append(warnings, w...)
		if err != nil {
			log.Printf("materialize %s_%s: strategy %s failed: %v", tenantID, apiIdentifier, a.name, err)
			warnings = append(warnings, fmt.Sprintf("%s: %v", a.name, err))
			lastErr = err
		}
		statuses, miss := m.Verify(ctx, g, tenantID, apiIdentifier)
		if len(miss) == 0 {
			for _, st := range statuses {
				if t := g.Table(st.Name); t != nil {
					t.PrefixedName = st.PhysicalName
				}
			}
			rep := &Report{
				Strategy:    a.name,
				Tables:      statuses,
				ForeignKeys: m.foreignKeys(ctx, g, tenantID, apiIdentifier),
				Warnings:    warnings,
			}
			log.Printf("materialize %s_%s: %d tables via %s", tenantID, apiIdentifier, len(statuses), a.name)
			return rep, nil
		}
		log.Printf("materialize %s_%s: strategy %s left missing: %s", tenantID, apiIdentifier, a.name, strings.Join(miss, ", "))
		missing = miss
	}
	return nil, &MaterializationError{Missing: missing, Cause: lastErr}
}

func (m *Materializer) standard(ctx context.Context, g *schema.Graph, tenantID, apiIdentifier string) ([]string, error) {
	return nil, m.exec.Exec(ctx, Emit(g, tenantID, apiIdentifier))
}

// decoupled creates tables first, then attaches each relationship on its
// own; FK failures become warnings.
func (m *Materializer) decoupled(ctx context.Context, g *schema.Graph, tenantID, apiIdentifier string) ([]string, error) {
	if err := m.exec.Exec(ctx, EmitWith(g, tenantID, apiIdentifier, EmitOptions{SkipRelationships: true})); err != nil {
		return nil, err
	}
	var warnings []string
	for _, t := range g.Tables {
		for _, rel := range t.Relationships {
			block := ForeignKeyBlock(g, t, rel, tenantID, apiIdentifier)
			if block == "" {
				continue
			}
			if err := m.exec.Exec(ctx, block); err != nil {
				warnings = append(warnings, fmt.Sprintf("relationship %s.%s -> %s: %v", t.Name, rel.SourceColumn, rel.TargetTable, err))
			}
		}
	}
	return warnings, nil
}

// atomic creates each table on its own in minimal form.
func (m *Materializer) atomic(ctx context.Context, g *schema.Graph, tenantID, apiIdentifier string) ([]string, error) {
	var warnings []string
	if err := m.exec.Exec(ctx, extensionsDDL); err != nil {
		warnings = append(warnings, fmt.Sprintf("extensions: %v", err))
	}
	failed := 0
	for _, t := range g.Tables {
		if err := m.exec.Exec(ctx, MinimalTable(t, tenantID, apiIdentifier)); err != nil {
			failed++
			warnings = append(warnings, fmt.Sprintf("table %s: %v", t.Name, err))
		}
	}
	if failed == len(g.Tables) {
		return warnings, errors.New("no table could be created")
	}
	return warnings, nil
}

// Verify checks every table with three probes: an exact select, a
// case-insensitive catalog lookup and a fuzzy ilike lookup.
func (m *Materializer) Verify(ctx context.Context, g *schema.Graph, tenantID, apiIdentifier string) ([]TableStatus, []string) {
	statuses := make([]TableStatus, 0, len(g.Tables))
	var missing []string
	for _, t := range g.Tables {
		phys := schema.PrefixedName(tenantID, apiIdentifier, t.Name)
		st := TableStatus{Name: t.Name, PhysicalName: phys}
		if actual, ok := m.probe(ctx, phys); ok {
			st.Exists = true
			if actual != phys {
				st.PhysicalName = actual
				st.CaseFolded = true
			}
		} else {
			missing = append(missing, t.Name)
		}
		statuses = append(statuses, st)
	}
	return statuses, missing
}

func (m *Materializer) probe(ctx context.Context, phys string) (string, bool) {
	if err := m.exec.Exec(ctx, probeExactSQL(phys)); err == nil {
		return phys, true
	}
	if rows, err := m.exec.Query(ctx, probeFoldSQL, phys); err == nil && len(rows) > 0 {
		if name, ok := rows[0]["table_name"].(string); ok {
			return name, true
		}
	}
	if rows, err := m.exec.Query(ctx, probeLikeSQL, "%"+phys+"%"); err == nil && len(rows) > 0 {
		if name, ok := rows[0]["table_name"].(string); ok {
			return name, true
		}
	}
	return "", false
}

func (m *Materializer) foreignKeys(ctx context.Context, g *schema.Graph, tenantID, apiIdentifier string) []string {
	out := []string{}
	for _, t := range g.Tables {
		for _, rel := range t.Relationships {
			target := g.Table(rel.TargetTable)
			if target == nil {
				continue
			}
			name := ForeignKeyName(
				schema.PrefixedName(tenantID, apiIdentifier, t.Name),
				rel.SourceColumn,
				schema.PrefixedName(tenantID, apiIdentifier, target.Name))
			rows, err := m.exec.Query(ctx, constraintExistsSQL, name)
			if err == nil && len(rows) > 0 {
				out = append(out, name)
			}
		}
	}
	return out
}
