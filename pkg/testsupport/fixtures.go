package testsupport

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/model"
)

// MustReadFixture reads a fixture file and fails the test when it is missing.
func MustReadFixture(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

// MustLoadDefinition loads a JSON golden file into a Definition.
func MustLoadDefinition(t *testing.T, path string) model.Definition {
	t.Helper()

	def, err := LoadDefinition(path)
	if err != nil {
		t.Fatalf("load definition: %v", err)
	}
	return def
}

// LoadDefinition reads a JSON fixture into a Definition, returning an error
// for callers managing setup outside of *testing.T.
func LoadDefinition(path string) (model.Definition, error) {
	if path == "" {
		return model.Definition{}, errors.New("testsupport: definition path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Definition{}, fmt.Errorf("testsupport: read definition: %w", err)
	}
	var out model.Definition
	if err := json.Unmarshal(data, &out); err != nil {
		return model.Definition{}, fmt.Errorf("testsupport: unmarshal definition: %w", err)
	}
	return out, nil
}

// WriteGolden writes value as indented JSON when UPDATE_GOLDENS is set.
// Returns true if the golden was written.
func WriteGolden(t *testing.T, path string, value any) bool {
	t.Helper()

	if os.Getenv("UPDATE_GOLDENS") == "" {
		return false
	}
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		t.Fatalf("marshal golden: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir golden dir: %v", err)
	}
	if err := os.WriteFile(path, append(payload, '\n'), 0o644); err != nil {
		t.Fatalf("write golden: %v", err)
	}
	return true
}

// CompareGolden returns a diff string if the values differ.
func CompareGolden(want, got any) string {
	return cmp.Diff(want, got)
}
