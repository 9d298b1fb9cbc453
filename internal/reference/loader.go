package reference

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadCatalog reads every *.yaml / *.yml file in dir and merges them over the
// default catalog. A missing directory yields the defaults.
func LoadCatalog(dir string) (Catalog, error) {
	result := Default()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result, nil
		}
		return result, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return result, err
		}
		var part Catalog
		if err := yaml.Unmarshal(data, &part); err != nil {
			return result, fmt.Errorf("parse %s: %w", path, err)
		}
		result = merge(result, part)
	}
	return result, nil
}

// merge replaces types by name and unions polymorphic stems.
func merge(base, over Catalog) Catalog {
	idx := make(map[string]int, len(base.Types))
	for i, t := range base.Types {
		idx[strings.ToLower(t.Name)] = i
	}
	for _, t := range over.Types {
		name := strings.ToLower(strings.TrimSpace(t.Name))
		if name == "" {
			continue
		}
		t.Name = name
		if i, ok := idx[name]; ok {
			base.Types[i] = t
			continue
		}
		idx[name] = len(base.Types)
		base.Types = append(base.Types, t)
	}
	seen := make(map[string]struct{}, len(base.Polymorphic))
	for _, p := range base.Polymorphic {
		seen[p] = struct{}{}
	}
	for _, p := range over.Polymorphic {
		p = strings.ToLower(strings.TrimSpace(p))
		if _, ok := seen[p]; ok || p == "" {
			continue
		}
		seen[p] = struct{}{}
		base.Polymorphic = append(base.Polymorphic, p)
	}
	return base
}
