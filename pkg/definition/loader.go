package definition

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formwizard/pkg/model"
)

// Registry holds normalised wizard definitions keyed by id.
type Registry struct {
	defs    map[string]model.Definition
	sources map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:    make(map[string]model.Definition),
		sources: make(map[string]string),
	}
}

// LoadFS walks fsys and parses every JSON/YAML file as one definition.
// Decorators run in order before normalisation. When fsys is nil the
// returned registry is empty.
func LoadFS(fsys fs.FS, decorators ...model.Decorator) (*Registry, error) {
	reg := NewRegistry()
	if err := reg.LoadFS(fsys, decorators...); err != nil {
		return nil, err
	}
	return reg, nil
}

// LoadFS adds every definition found in fsys to the registry.
func (r *Registry) LoadFS(fsys fs.FS, decorators ...model.Decorator) error {
	if fsys == nil {
		return nil
	}
	return fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !isDefinitionFile(path) {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("definition: read %s: %w", path, err)
		}
		def, err := Parse(data, path)
		if err != nil {
			return err
		}
		return r.Add(def, path, decorators...)
	})
}

// Add decorates, normalises and stores def. Duplicate ids are rejected.
func (r *Registry) Add(def model.Definition, source string, decorators ...model.Decorator) error {
	working := def.Clone()
	for _, decorator := range decorators {
		if decorator == nil {
			continue
		}
		if err := decorator.Decorate(&working); err != nil {
			return fmt.Errorf("definition: decorate %s: %w", source, err)
		}
	}
	normalized, err := working.Normalize()
	if err != nil {
		return fmt.Errorf("definition: %s: %w", source, err)
	}
	if prev, exists := r.sources[normalized.ID]; exists {
		return fmt.Errorf("definition: duplicate id %q (files %s and %s)", normalized.ID, prev, source)
	}
	r.defs[normalized.ID] = normalized
	r.sources[normalized.ID] = source
	return nil
}

// Get returns a copy of the definition with the given id.
func (r *Registry) Get(id string) (model.Definition, bool) {
	if r == nil {
		return model.Definition{}, false
	}
	def, ok := r.defs[id]
	if !ok {
		return model.Definition{}, false
	}
	return def.Clone(), true
}

// Source returns the file a definition was loaded from.
func (r *Registry) Source(id string) string {
	if r == nil {
		return ""
	}
	return r.sources[id]
}

// IDs lists the registered ids in sorted order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.defs))
	for id := range r.defs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of registered definitions.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.defs)
}

// Parse decodes a single definition from JSON or YAML.
func Parse(data []byte, source string) (model.Definition, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return model.Definition{}, fmt.Errorf("definition: file %s is empty", source)
	}
	var def model.Definition
	if err := json.Unmarshal(data, &def); err == nil {
		return def, nil
	}
	def = model.Definition{}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return model.Definition{}, fmt.Errorf("definition: parse %s: invalid JSON or YAML: %w", source, err)
	}
	return def, nil
}

// Finding is the lint result for one file.
type Finding struct {
	Source   string   `json:"source"`
	ID       string   `json:"id,omitempty"`
	Problems []string `json:"problems"`
}

// Lint parses and normalises every definition file in fsys, collecting all
// problems instead of stopping at the first one. Only files with problems
// are reported.
func Lint(fsys fs.FS) ([]Finding, error) {
	if fsys == nil {
		return nil, nil
	}
	var findings []Finding
	seen := make(map[string]string)

	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !isDefinitionFile(path) {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("definition: read %s: %w", path, err)
		}

		finding := LintData(data, path)
		if prev, dup := seen[finding.ID]; dup && finding.ID != "" {
			finding.Problems = append(finding.Problems, fmt.Sprintf("duplicate id %q (also in %s)", finding.ID, prev))
		}
		if finding.ID != "" {
			seen[finding.ID] = path
		}
		if len(finding.Problems) > 0 {
			findings = append(findings, finding)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return findings, nil
}

// LintData checks a single definition document.
func LintData(data []byte, source string) Finding {
	finding := Finding{Source: source}
	def, err := Parse(data, source)
	if err != nil {
		finding.Problems = append(finding.Problems, err.Error())
		return finding
	}
	finding.ID = def.ID
	if _, err := def.Normalize(); err != nil {
		var defErr *model.DefinitionError
		if errors.As(err, &defErr) {
			finding.Problems = append(finding.Problems, defErr.Problems...)
		} else {
			finding.Problems = append(finding.Problems, err.Error())
		}
	}
	return finding
}

func isDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
