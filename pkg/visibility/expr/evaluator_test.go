package expr

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/visibility"
)

func TestEvaluatorEquality(t *testing.T) {
	t.Parallel()

	eval := New()
	ctx := visibility.FromAnswers(map[string]string{"employment_type": "salaried"})

	ok, err := eval.Eval("employer_name", `employment_type == "salaried"`, ctx)
	if err != nil {
		t.Fatalf("Eval returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected rule to hold")
	}

	ok, err = eval.Eval("business_name", `employment_type == 'self_employed'`, ctx)
	if err != nil {
		t.Fatalf("Eval returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected rule to fail for a different employment type")
	}

	ok, err = eval.Eval("employer_name", `employment_type == salaried`, ctx)
	if err != nil {
		t.Fatalf("Eval returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected bare word literal to compare as string")
	}
}

func TestEvaluatorTruthyAndNot(t *testing.T) {
	t.Parallel()

	eval := New()

	cases := []struct {
		rule    string
		answers map[string]string
		want    bool
	}{
		{rule: "has_coapplicant", answers: map[string]string{"has_coapplicant": "true"}, want: true},
		{rule: "has_coapplicant", answers: map[string]string{"has_coapplicant": "false"}, want: false},
		{rule: "has_coapplicant", answers: map[string]string{}, want: false},
		{rule: "!has_coapplicant", answers: map[string]string{"has_coapplicant": "false"}, want: true},
		{rule: "nickname", answers: map[string]string{"nickname": "  "}, want: false},
	}

	for _, tc := range cases {
		got, err := eval.Eval("field", tc.rule, visibility.FromAnswers(tc.answers))
		if err != nil {
			t.Fatalf("%s: Eval returned error: %v", tc.rule, err)
		}
		if got != tc.want {
			t.Fatalf("%s with %v: got %v want %v", tc.rule, tc.answers, got, tc.want)
		}
	}
}

func TestEvaluatorOrderingAndMembership(t *testing.T) {
	t.Parallel()

	eval := New()
	ctx := visibility.FromAnswers(map[string]string{
		"loan_amount":     "7,50,000",
		"employment_type": "self_employed",
	})

	cases := map[string]bool{
		"loan_amount >= 500000":                                 true,
		"loan_amount < 500000":                                  false,
		"loan_amount > 750000":                                  false,
		"loan_amount <= 750000":                                 true,
		`employment_type in ["salaried", "self_employed"]`:      true,
		`employment_type in ["retired"]`:                        false,
		`loan_amount > 100 && employment_type != "salaried"`:    true,
		`(loan_amount > 1000000 || employment_type == retired)`: false,
		"missing_value > 3":                                     false,
		"missing_value == null":                                 true,
	}

	for rule, want := range cases {
		got, err := eval.Eval("field", rule, ctx)
		if err != nil {
			t.Fatalf("%s: Eval returned error: %v", rule, err)
		}
		if got != want {
			t.Fatalf("%s: got %v want %v", rule, got, want)
		}
	}
}

func TestEvaluatorExtras(t *testing.T) {
	t.Parallel()

	eval := New()
	ok, err := eval.Eval("gst_number", `extras.product == "business_loan"`, visibility.Context{
		Extras: map[string]any{"product": "business_loan"},
	})
	if err != nil {
		t.Fatalf("Eval returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected extras lookup to match")
	}
}

func TestParseIdentifiers(t *testing.T) {
	t.Parallel()

	program, err := Parse(`employment_type == "salaried" && (income > 10 || employment_type in [a, b]) && !extras.flag`)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want := []string{"employment_type", "income", "extras.flag"}
	if diff := cmp.Diff(want, program.Identifiers()); diff != "" {
		t.Fatalf("identifiers mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	rules := []string{
		"a = 1",
		"a & b",
		"a | b",
		`a == "unterminated`,
		"(a == 1",
		"a in []",
		"a in [1, 2",
		`a > "text"`,
		"== 1",
		"a == 1 b",
	}
	for _, rule := range rules {
		if _, err := Parse(rule); err == nil {
			t.Fatalf("expected parse error for %q", rule)
		}
	}
}

func TestEmptyRuleHolds(t *testing.T) {
	t.Parallel()

	ok, err := New().Eval("field", "   ", visibility.Context{})
	if err != nil {
		t.Fatalf("Eval returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected blank rule to hold")
	}
}
