package analyzer

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"time"

	"apiforge/internal/schema"
)

const DefaultTimeout = 30 * time.Second

// Analysis is the outcome of turning a prompt into a schema.
type Analysis struct {
	Graph *schema.Graph
	// Fallback is set when the AI answer was unusable and a generic graph
	// was synthesized from the prompt instead.
	Fallback bool
	Raw      string
}

type Analyzer struct {
	provider   Provider
	normalizer *schema.Normalizer
	timeout    time.Duration
}

func New(p Provider, n *schema.Normalizer, timeout time.Duration) *Analyzer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Analyzer{provider: p, normalizer: n, timeout: timeout}
}

func (a *Analyzer) complete(ctx context.Context, system, user string) (string, error) {
	if a.provider == nil {
		return "", &ProviderError{Message: "no AI provider configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	out, err := a.provider.Complete(ctx, system, user)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", err
	}
	return out, nil
}

// Analyze turns a prompt into a normalized graph. An unusable answer
// degrades to a fallback graph; provider failures are returned.
func (a *Analyzer) Analyze(ctx context.Context, prompt string) (*Analysis, error) {
	raw, err := a.complete(ctx, systemPrompt, userPrompt(prompt))
	if err != nil {
		return nil, err
	}
	g, err := ParseResponse(raw)
	if err != nil {
		log.Printf("analyzer: %v; using fallback schema", err)
		return &Analysis{Graph: a.normalizer.Normalize(Fallback(prompt)), Fallback: true, Raw: raw}, nil
	}
	return &Analysis{Graph: a.normalizer.Normalize(g), Raw: raw}, nil
}

// AnalyzeModification asks for an edited version of existing. When the answer
// cannot be parsed it returns existing unchanged together with ErrUnparseable.
func (a *Analyzer) AnalyzeModification(ctx context.Context, prompt string, existing *schema.Graph) (*schema.Graph, error) {
	raw, err := a.complete(ctx, modificationSystemPrompt(existing), userPrompt(prompt))
	if err != nil {
		return nil, err
	}
	g, err := ParseResponse(raw)
	if err != nil {
		return existing, err
	}
	return g, nil
}

// Modify merges the AI's edit of g back into g and normalizes the result.
// The input graph is not mutated.
func (a *Analyzer) Modify(ctx context.Context, g *schema.Graph, prompt string) (*schema.Graph, error) {
	edited, err := a.AnalyzeModification(ctx, prompt, g)
	if err != nil {
		return g, err
	}
	return a.normalizer.Normalize(Merge(g, edited)), nil
}

// Merge applies the edit to the original graph: returned tables supersede
// originals of the same name, absent tables are kept unchanged, prefixed
// names carry forward, and relationships missing fields are repaired from
// the original counterpart with the same target and type.
func Merge(original, edited *schema.Graph) *schema.Graph {
	out := &schema.Graph{}
	used := make(map[*schema.Table]bool)

	for _, orig := range original.Tables {
		upd := edited.Table(orig.Name)
		if upd == nil {
			out.Tables = append(out.Tables, orig.Clone())
			continue
		}
		used[upd] = true
		t := upd.Clone()
		t.Name = orig.Name
		if t.PrefixedName == "" {
			t.PrefixedName = orig.PrefixedName
		}
		repairRelationships(t, orig)
		out.Tables = append(out.Tables, t)
	}
	for _, t := range edited.Tables {
		if !used[t] && out.Table(t.Name) == nil {
			out.Tables = append(out.Tables, t.Clone())
		}
	}
	return out
}

func repairRelationships(t, orig *schema.Table) {
	for i := range t.Relationships {
		r := &t.Relationships[i]
		if r.Type != "" && r.TargetTable != "" && r.SourceColumn != "" && r.TargetColumn != "" {
			continue
		}
		for _, o := range orig.Relationships {
			if (r.TargetTable == "" || strings.EqualFold(r.TargetTable, o.TargetTable)) &&
				(r.Type == "" || strings.EqualFold(r.Type, o.Type)) {
				if r.Type == "" {
					r.Type = o.Type
				}
				if r.TargetTable == "" {
					r.TargetTable = o.TargetTable
				}
				if r.SourceColumn == "" {
					r.SourceColumn = o.SourceColumn
				}
				if r.TargetColumn == "" {
					r.TargetColumn = o.TargetColumn
				}
				if r.OriginalTargetTable == "" {
					r.OriginalTargetTable = o.OriginalTargetTable
				}
				break
			}
		}
	}
}

var wordRe = regexp.MustCompile(`[A-Za-z]+`)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "the": {}, "with": {}, "for": {}, "of": {}, "to": {}, "in": {},
	"on": {}, "by": {}, "or": {}, "that": {}, "which": {}, "each": {}, "their": {}, "its": {},
	"has": {}, "have": {}, "having": {}, "can": {}, "will": {}, "should": {}, "must": {}, "be": {},
	"is": {}, "are": {}, "my": {}, "our": {}, "your": {}, "some": {}, "many": {}, "multiple": {},
	"api": {}, "apis": {}, "app": {}, "application": {}, "system": {}, "simple": {}, "basic": {},
	"create": {}, "build": {}, "make": {}, "manage": {}, "management": {}, "track": {},
	"tracking": {}, "store": {}, "list": {}, "like": {}, "from": {}, "where": {}, "who": {},
	"one": {}, "two": {}, "three": {}, "belonging": {}, "belongs": {}, "want": {}, "need": {},
	"data": {}, "database": {}, "schema": {}, "table": {}, "tables": {}, "also": {}, "all": {},
}

// Fallback synthesizes up to three generic tables from noun-like tokens of
// the prompt.
func Fallback(prompt string) *schema.Graph {
	g := &schema.Graph{}
	seen := map[string]bool{}
	for _, w := range wordRe.FindAllString(prompt, -1) {
		w = strings.ToLower(w)
		if len(w) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		name := schema.Plural(schema.Singular(w))
		if seen[name] {
			continue
		}
		seen[name] = true
		g.Tables = append(g.Tables, &schema.Table{
			Name: name,
			Columns: []schema.Column{
				{Name: "name", Type: "varchar(255)", Constraints: []string{schema.AtomNotNull}},
				{Name: "description", Type: "text"},
			},
		})
		if len(g.Tables) == 3 {
			break
		}
	}
	if len(g.Tables) == 0 {
		g.Tables = append(g.Tables, &schema.Table{
			Name: "items",
			Columns: []schema.Column{
				{Name: "name", Type: "varchar(255)", Constraints: []string{schema.AtomNotNull}},
				{Name: "description", Type: "text"},
			},
		})
	}
	return g
}
