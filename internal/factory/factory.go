// Package factory runs the creation pipeline: prompt or tables in, a
// materialized and published API out.
package factory

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"apiforge/internal/analyzer"
	"apiforge/internal/pg"
	"apiforge/internal/registry"
	"apiforge/internal/router"
	"apiforge/internal/schema"
)

// PostgreSQL truncates identifiers past this length.
const maxIdentLen = 63

var tenantRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidationError is a request the pipeline refuses before touching the
// database.
type ValidationError struct {
	Message string
	Issues  []schema.Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return e.Message
	}
	msgs := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		msgs = append(msgs, is.Message)
	}
	return e.Message + ": " + strings.Join(msgs, "; ")
}

type Factory struct {
	analyzer     *analyzer.Analyzer
	normalizer   *schema.Normalizer
	materializer *pg.Materializer
	registry     *registry.Registry
	db           pg.Querier
}

func New(a *analyzer.Analyzer, n *schema.Normalizer, m *pg.Materializer, reg *registry.Registry, db pg.Querier) *Factory {
	return &Factory{analyzer: a, normalizer: n, materializer: m, registry: reg, db: db}
}

// Result describes a published API.
type Result struct {
	APIID  string
	Router *router.Router
	Graph  *schema.Graph
	SQL    string
	Report *pg.Report
	// Fallback is set when the AI answer was replaced by a generic schema.
	Fallback bool
}

// ValidateTenant checks that a tenant id can take part in table names.
func ValidateTenant(tenantID string) error {
	if tenantID == "" {
		return &ValidationError{Message: "tenantId is required"}
	}
	if !tenantRe.MatchString(tenantID) {
		return &ValidationError{Message: fmt.Sprintf("tenantId %q may only contain letters, digits and underscores", tenantID)}
	}
	return nil
}

// GenerateSchema turns a prompt into a normalized graph without creating
// anything.
func (f *Factory) GenerateSchema(ctx context.Context, prompt string) (*analyzer.Analysis, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, &ValidationError{Message: "prompt is required"}
	}
	return f.analyzer.Analyze(ctx, prompt)
}

// ModifySchema applies a prompt to an existing graph.
func (f *Factory) ModifySchema(ctx context.Context, prompt string, existing *schema.Graph) (*schema.Graph, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, &ValidationError{Message: "prompt is required"}
	}
	if existing == nil || len(existing.Tables) == 0 {
		return nil, &ValidationError{Message: "existingTables is required"}
	}
	return f.analyzer.Modify(ctx, f.normalizer.Normalize(existing.Clone()), prompt)
}

// GenerateAPI runs the whole pipeline from a prompt.
func (f *Factory) GenerateAPI(ctx context.Context, prompt, tenantID string) (*Result, error) {
	if err := ValidateTenant(tenantID); err != nil {
		return nil, err
	}
	an, err := f.GenerateSchema(ctx, prompt)
	if err != nil {
		return nil, err
	}
	res, err := f.create(ctx, an.Graph, tenantID, prompt)
	if err != nil {
		return nil, err
	}
	res.Fallback = an.Fallback
	return res, nil
}

// CreateFromSchema publishes caller-supplied tables.
func (f *Factory) CreateFromSchema(ctx context.Context, g *schema.Graph, tenantID string) (*Result, error) {
	if err := ValidateTenant(tenantID); err != nil {
		return nil, err
	}
	if g == nil || len(g.Tables) == 0 {
		return nil, &ValidationError{Message: "tables is required"}
	}
	return f.create(ctx, f.normalizer.Normalize(g.Clone()), tenantID, "")
}

func (f *Factory) create(ctx context.Context, g *schema.Graph, tenantID, prompt string) (*Result, error) {
	if issues := schema.Lint(g); len(issues) > 0 {
		return nil, &ValidationError{Message: "invalid schema", Issues: issues}
	}
	ident := f.registry.NewIdentifier()
	g = g.WithPrefixes(tenantID, ident)
	if err := checkLengths(g); err != nil {
		return nil, err
	}

	script := pg.Emit(g, tenantID, ident)
	report, err := f.materializer.Materialize(ctx, g, tenantID, ident)
	if err != nil {
		return nil, err
	}
	for _, w := range report.Warnings {
		log.Printf("factory %s_%s: %s", tenantID, ident, w)
	}

	rt := router.New(g, tenantID, ident, f.db)
	id, err := f.registry.Publish(rt, registry.Record{Prompt: prompt, SQL: script})
	if err != nil {
		return nil, err
	}
	log.Printf("factory: published %s for tenant %s (%d tables)", id, tenantID, len(g.Tables))
	return &Result{APIID: id, Router: rt, Graph: rt.Graph(), SQL: script, Report: report}, nil
}

func checkLengths(g *schema.Graph) error {
	var issues []schema.Issue
	for _, t := range g.Tables {
		if len(t.PrefixedName) > maxIdentLen {
			issues = append(issues, schema.Issue{
				Table:   t.Name,
				Code:    "name_too_long",
				Message: fmt.Sprintf("physical name %q exceeds %d characters", t.PrefixedName, maxIdentLen),
			})
		}
	}
	if len(issues) > 0 {
		return &ValidationError{Message: "invalid schema", Issues: issues}
	}
	return nil
}
