package validation

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/model"
)

func fixedClock() time.Time {
	return time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC)
}

func newEngine() *Engine {
	return New(WithClock(fixedClock))
}

func TestMobileFormat(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	field := model.Field{Name: "mobile", Label: "Mobile number", Required: true, Format: model.FormatMobile}

	errs := engine.ValidateField(field, "98765432", nil)
	if len(errs) != 1 || errs[0].Rule != RuleFormat || errs[0].Kind != KindFormat {
		t.Fatalf("expected single format failure, got %+v", errs)
	}

	for _, ok := range []string{"9876543210", "98765 43210", "6123456789"} {
		if errs := engine.ValidateField(field, ok, nil); !errs.Empty() {
			t.Fatalf("expected %q to pass, got %+v", ok, errs)
		}
	}
	for _, bad := range []string{"5876543210", "98765432101", "98765abcde"} {
		if errs := engine.ValidateField(field, bad, nil); errs.Empty() {
			t.Fatalf("expected %q to fail", bad)
		}
	}
}

func TestPostalCodeAndTaxID(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	postal := model.Field{Name: "pincode", Format: model.FormatPostalCode}
	taxID := model.Field{Name: "pan", Format: model.FormatTaxID}

	cases := []struct {
		field model.Field
		value string
		valid bool
	}{
		{postal, "560001", true},
		{postal, "060001", false},
		{postal, "56001", false},
		{taxID, "ABCDE1234F", true},
		{taxID, "abcde1234f", true},
		{taxID, "ABCD1234F", false},
		{taxID, "ABCDE12345", false},
	}
	for _, tc := range cases {
		errs := engine.ValidateField(tc.field, tc.value, nil)
		if errs.Empty() != tc.valid {
			t.Fatalf("%s=%q: valid=%v, errors=%+v", tc.field.Name, tc.value, tc.valid, errs)
		}
	}

	if got := Normalize(taxID, " abcde1234f "); got != "ABCDE1234F" {
		t.Fatalf("expected tax id to normalise to upper case, got %v", got)
	}
}

func TestMarkupIsReportedNotStripped(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	field := model.Field{Name: "business_name", Label: "Business name", Required: true}

	for _, bad := range []string{
		"A<B Traders",
		"Flat 3 <Block C>",
		"<b>Acme</b>",
		"&lt;script&gt;alert(1)&lt;/script&gt;",
	} {
		errs := engine.ValidateField(field, bad, nil)
		want := Errors{{Field: "business_name", Rule: RuleMarkup, Kind: KindFormat, Message: "Business name must not contain HTML markup"}}
		if diff := cmp.Diff(want, errs); diff != "" {
			t.Fatalf("%q: errors mismatch (-want +got):\n%s", bad, diff)
		}
	}
	for _, ok := range []string{"A & B Traders", "O'Brien \"Exports\"", "AT&T", "5 > 3 Holdings"} {
		if errs := engine.ValidateField(field, ok, nil); !errs.Empty() {
			t.Fatalf("expected %q to pass, got %+v", ok, errs)
		}
	}
}

func TestDateOfBirth(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	dob := model.Field{Name: "dob", Kind: model.FieldKindDate, Format: model.FormatDateOfBirth, Required: true, Min: model.Float(18)}

	cases := map[string]string{
		"2023-02-30": RuleFormat,
		"not a date": RuleFormat,
		"2030-01-01": RuleFuture,
		"2010-01-01": RuleMin,
		"":           RuleRequired,
	}
	for value, rule := range cases {
		errs := engine.ValidateField(dob, value, nil)
		if len(errs) != 1 || errs[0].Rule != rule {
			t.Fatalf("%q: expected rule %s, got %+v", value, rule, errs)
		}
	}

	for _, ok := range []string{"1990-05-20", "20/05/1990", "2006-06-15"} {
		if errs := engine.ValidateField(dob, ok, nil); !errs.Empty() {
			t.Fatalf("expected %q to pass, got %+v", ok, errs)
		}
	}
}

func TestIncomeBusinessRule(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	income := model.Field{
		Name:     "annual_income",
		Label:    "Annual income",
		Kind:     model.FieldKindNumber,
		Required: true,
		Business: []model.BusinessRule{{Name: "minimum_income", Min: model.Float(200000), Message: "Annual income below minimum"}},
	}

	errs := engine.ValidateField(income, "150000", nil)
	want := Errors{{Field: "annual_income", Rule: "minimum_income", Kind: KindBusiness, Message: "Annual income below minimum"}}
	if diff := cmp.Diff(want, errs); diff != "" {
		t.Fatalf("business failure mismatch (-want +got):\n%s", diff)
	}
	if !errs.HasBusiness() {
		t.Fatalf("expected business kind to be distinguishable")
	}

	if errs := engine.ValidateField(income, "250000", nil); !errs.Empty() {
		t.Fatalf("expected 250000 to pass, got %+v", errs)
	}
	if errs := engine.ValidateField(income, "2,50,000", nil); !errs.Empty() {
		t.Fatalf("expected grouped digits to pass, got %+v", errs)
	}

	errs = engine.ValidateField(income, "12.5", nil)
	if len(errs) != 1 || errs[0].Rule != RuleFormat || errs[0].Kind != KindFormat {
		t.Fatalf("expected format failure for decimals, got %+v", errs)
	}
	errs = engine.ValidateField(income, "-10", nil)
	if len(errs) != 1 || errs[0].Rule != RulePositive {
		t.Fatalf("expected positive failure, got %+v", errs)
	}
}

func TestNumericBounds(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	amount := model.Field{Name: "loan_amount", Kind: model.FieldKindNumber, Min: model.Float(50000), Max: model.Float(4000000)}

	if errs := engine.ValidateField(amount, "1000", nil); len(errs) != 1 || errs[0].Rule != RuleMin {
		t.Fatalf("expected min failure, got %+v", errs)
	}
	if errs := engine.ValidateField(amount, "5000000", nil); len(errs) != 1 || errs[0].Rule != RuleMax {
		t.Fatalf("expected max failure, got %+v", errs)
	}
	if errs := engine.ValidateField(amount, "", nil); !errs.Empty() {
		t.Fatalf("expected optional empty value to pass, got %+v", errs)
	}
}

func TestVisibilityAndConditionalRequirement(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	step := model.Step{
		ID: "employment",
		Fields: []model.Field{
			{Name: "employment_type", Kind: model.FieldKindEnum, Required: true, Options: []string{"salaried", "self_employed"}},
			{Name: "employer_name", Required: true, VisibleIf: `employment_type == "salaried"`},
			{Name: "gst_number", RequiredIf: `employment_type == "self_employed"`, Pattern: `^[0-9A-Z]{15}$`},
		},
	}

	errs := engine.ValidateStep(step, map[string]string{"employment_type": "salaried"})
	if diff := cmp.Diff([]string{"employer_name"}, errs.Fields()); diff != "" {
		t.Fatalf("salaried errors mismatch (-want +got):\n%s", diff)
	}

	// employer_name holds an invalid (empty) value but is hidden.
	errs = engine.ValidateStep(step, map[string]string{"employment_type": "self_employed", "employer_name": ""})
	if diff := cmp.Diff([]string{"gst_number"}, errs.Fields()); diff != "" {
		t.Fatalf("self-employed errors mismatch (-want +got):\n%s", diff)
	}

	visible := engine.VisibleFields(step, map[string]string{"employment_type": "self_employed"})
	names := make([]string, 0, len(visible))
	for _, f := range visible {
		names = append(names, f.Name)
	}
	if diff := cmp.Diff([]string{"employment_type", "gst_number"}, names); diff != "" {
		t.Fatalf("visible fields mismatch (-want +got):\n%s", diff)
	}
}

func TestCrossFieldRuleWaitsForBothValues(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	step := model.Step{
		ID: "bank",
		Fields: []model.Field{
			{Name: "account_number", Required: true},
			{Name: "confirm_account_number", Label: "Confirm account number", Required: true},
		},
		Rules: []model.CrossFieldRule{{Rule: model.CrossFieldEquals, Field: "confirm_account_number", Other: "account_number"}},
	}

	errs := engine.ValidateStep(step, map[string]string{"account_number": "123456789"})
	if len(errs.For("confirm_account_number")) != 1 || errs[0].Rule != RuleRequired {
		t.Fatalf("expected only the required failure while confirmation is empty, got %+v", errs)
	}

	errs = engine.ValidateStep(step, map[string]string{"account_number": "123456789", "confirm_account_number": "123456780"})
	if len(errs) != 1 || errs[0].Rule != RuleMatch || errs[0].Field != "confirm_account_number" {
		t.Fatalf("expected match failure, got %+v", errs)
	}

	errs = engine.ValidateStep(step, map[string]string{"account_number": "123456789", "confirm_account_number": " 123456789 "})
	if !errs.Empty() {
		t.Fatalf("expected matching values to pass, got %+v", errs)
	}
}

func TestCheckboxAndEnum(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	consent := model.Field{Name: "consent", Kind: model.FieldKindCheckbox, Required: true}
	if errs := engine.ValidateField(consent, "false", nil); len(errs) != 1 || errs[0].Rule != RuleRequired {
		t.Fatalf("expected unchecked consent to fail, got %+v", errs)
	}
	if errs := engine.ValidateField(consent, "true", nil); !errs.Empty() {
		t.Fatalf("expected checked consent to pass, got %+v", errs)
	}

	card := model.Field{Name: "card_type", Kind: model.FieldKindEnum, Options: []string{"classic", "gold"}}
	if errs := engine.ValidateField(card, "platinum", nil); len(errs) != 1 || errs[0].Rule != RuleOption {
		t.Fatalf("expected option failure, got %+v", errs)
	}
}

func TestCustomMessages(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	field := model.Field{
		Name:     "mobile",
		Required: true,
		Format:   model.FormatMobile,
		Messages: map[string]string{RuleRequired: "Please enter your mobile number"},
	}
	errs := engine.ValidateField(field, "  ", nil)
	if len(errs) != 1 || errs[0].Message != "Please enter your mobile number" {
		t.Fatalf("expected custom message, got %+v", errs)
	}
}

func TestValidateStepIsDeterministic(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	step := model.Step{
		ID: "personal",
		Fields: []model.Field{
			{Name: "mobile", Required: true, Format: model.FormatMobile},
			{Name: "pincode", Required: true, Format: model.FormatPostalCode},
		},
	}
	values := map[string]string{"mobile": "123", "pincode": "000000"}

	first := engine.ValidateStep(step, values)
	second := engine.ValidateStep(step, values)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("expected identical results (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"mobile", "pincode"}, first.Fields()); diff != "" {
		t.Fatalf("expected errors in declaration order (-want +got):\n%s", diff)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		field model.Field
		raw   string
		want  any
	}{
		{model.Field{Kind: model.FieldKindNumber}, "2,50,000", int64(250000)},
		{model.Field{Kind: model.FieldKindCheckbox}, "true", true},
		{model.Field{Kind: model.FieldKindCheckbox}, "", false},
		{model.Field{Kind: model.FieldKindDate}, "20/05/1990", "1990-05-20"},
		{model.Field{Format: model.FormatMobile}, "98765 43210", "9876543210"},
		{model.Field{}, "  Jane  ", "Jane"},
	}
	for _, tc := range cases {
		if diff := cmp.Diff(tc.want, Normalize(tc.field, tc.raw)); diff != "" {
			t.Fatalf("Normalize(%q) mismatch (-want +got):\n%s", tc.raw, diff)
		}
	}
}
