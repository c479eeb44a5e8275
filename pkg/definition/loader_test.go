package definition

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/model"
)

const yamlDefinition = `
id: savings
kind: savings
thresholds:
  min_deposit: 1000
steps:
  - id: basics
    fields:
      - name: full_name
        required: true
      - name: deposit
        kind: number
        business:
          - name: minimum_deposit
            threshold: min_deposit
`

const jsonDefinition = `{
  "id": "insurance",
  "applicationType": "term_insurance",
  "steps": [
    {"id": "holder", "fields": [{"name": "mobile", "format": "mobile", "required": true}]}
  ],
  "otp": {"contactField": "mobile"}
}`

func TestLoadFSParsesJSONAndYAML(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"savings.yaml":    {Data: []byte(yamlDefinition)},
		"nested/ins.json": {Data: []byte(jsonDefinition)},
		"README.md":       {Data: []byte("# not a definition")},
	}

	reg, err := LoadFS(fsys)
	if err != nil {
		t.Fatalf("LoadFS returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"insurance", "savings"}, reg.IDs()); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}

	savings, ok := reg.Get("savings")
	if !ok {
		t.Fatalf("expected savings definition")
	}
	if savings.ApplicationType != "savings" {
		t.Fatalf("expected application type to default to id, got %q", savings.ApplicationType)
	}
	rule := savings.Steps[0].Fields[1].Business[0]
	if rule.Min == nil || *rule.Min != 1000 {
		t.Fatalf("expected threshold resolved into business rule, got %+v", rule)
	}
	if savings.Steps[0].Fields[0].Kind != model.FieldKindText {
		t.Fatalf("expected default field kind text, got %q", savings.Steps[0].Fields[0].Kind)
	}

	insurance, _ := reg.Get("insurance")
	if insurance.Kind != "insurance" || insurance.ApplicationType != "term_insurance" {
		t.Fatalf("unexpected insurance kind/type: %q/%q", insurance.Kind, insurance.ApplicationType)
	}
	if got := reg.Source("insurance"); got != "nested/ins.json" {
		t.Fatalf("unexpected source %q", got)
	}
}

func TestLoadFSAppliesDecoratorsBeforeNormalize(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{"savings.yaml": {Data: []byte(yamlDefinition)}}
	reg, err := LoadFS(fsys, model.ThresholdOverrides(map[string]map[string]float64{
		"savings": {"min_deposit": 5000},
	}))
	if err != nil {
		t.Fatalf("LoadFS returned error: %v", err)
	}
	def, _ := reg.Get("savings")
	if got := *def.Steps[0].Fields[1].Business[0].Min; got != 5000 {
		t.Fatalf("expected override threshold 5000, got %v", got)
	}
}

func TestLoadFSRejectsDuplicatesAndInvalid(t *testing.T) {
	t.Parallel()

	dup := fstest.MapFS{
		"a.yaml": {Data: []byte(yamlDefinition)},
		"b.yaml": {Data: []byte(yamlDefinition)},
	}
	if _, err := LoadFS(dup); err == nil || !strings.Contains(err.Error(), "duplicate id") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}

	broken := fstest.MapFS{"bad.yaml": {Data: []byte("id: x\nsteps: []\n")}}
	if _, err := LoadFS(broken); err == nil || !strings.Contains(err.Error(), "at least one step") {
		t.Fatalf("expected normalisation error, got %v", err)
	}

	empty := fstest.MapFS{"empty.json": {Data: []byte("  ")}}
	if _, err := LoadFS(empty); err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Fatalf("expected empty file error, got %v", err)
	}
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	t.Parallel()

	reg, err := LoadFS(fstest.MapFS{"savings.yaml": {Data: []byte(yamlDefinition)}})
	if err != nil {
		t.Fatalf("LoadFS returned error: %v", err)
	}
	def, _ := reg.Get("savings")
	def.Steps[0].Fields[0].Name = "mutated"

	again, _ := reg.Get("savings")
	if again.Steps[0].Fields[0].Name != "full_name" {
		t.Fatalf("registry definition was mutated through Get")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Fatalf("expected missing id to report false")
	}
}

const brokenDefinition = `
id: broken
thresholds: {}
steps:
  - id: one
    fields:
      - name: income
        kind: number
        business:
          - name: minimum_income
            threshold: min_income
      - name: city
        visibleIf: country == "IN"
`

func TestLintCollectsProblems(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"good.yaml":    {Data: []byte(yamlDefinition)},
		"bad.yaml":     {Data: []byte(brokenDefinition)},
		"garbage.json": {Data: []byte("{not json")},
	}

	findings, err := Lint(fsys)
	if err != nil {
		t.Fatalf("Lint returned error: %v", err)
	}
	want := []Finding{
		{
			Source: "bad.yaml",
			ID:     "broken",
			Problems: []string{
				`field "income" business rule "minimum_income" references unknown threshold "min_income"`,
				`field "city" visibleIf references unknown field "country"`,
			},
		},
	}
	if len(findings) != 2 {
		t.Fatalf("expected 2 findings, got %d: %+v", len(findings), findings)
	}
	if diff := cmp.Diff(want, findings[:1]); diff != "" {
		t.Fatalf("lint findings mismatch (-want +got):\n%s", diff)
	}
	if findings[1].Source != "garbage.json" || len(findings[1].Problems) != 1 {
		t.Fatalf("expected parse failure for garbage.json, got %+v", findings[1])
	}
}

func TestDefaultsLoad(t *testing.T) {
	t.Parallel()

	reg, err := Defaults()
	if err != nil {
		t.Fatalf("Defaults returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"credit-card", "kyc", "personal-loan"}, reg.IDs()); diff != "" {
		t.Fatalf("default ids mismatch (-want +got):\n%s", diff)
	}

	loan, _ := reg.Get("personal-loan")
	card, _ := reg.Get("credit-card")
	if loan.Thresholds["min_annual_income"] == card.Thresholds["min_annual_income"] {
		t.Fatalf("expected products to carry different income thresholds")
	}
	for _, id := range reg.IDs() {
		def, _ := reg.Get(id)
		if def.OTP.ContactField != "mobile" {
			t.Fatalf("definition %s: expected mobile otp contact, got %q", id, def.OTP.ContactField)
		}
	}
}
