package submission

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/validation"
)

func loanDefinition() model.Definition {
	return model.Definition{
		ID:              "personal-loan",
		Kind:            "loan",
		ApplicationType: "personal_loan",
		Steps: []model.Step{
			{
				ID: "personal",
				Fields: []model.Field{
					{Name: "full_name", Required: true},
					{Name: "pan", Format: model.FormatTaxID},
					{Name: "nickname"},
				},
			},
			{
				ID: "employment",
				Fields: []model.Field{
					{Name: "employment_type", Kind: model.FieldKindEnum, Options: []string{"salaried", "self_employed"}},
					{Name: "employer_name", VisibleIf: `employment_type == "salaried"`},
					{Name: "annual_income", Kind: model.FieldKindNumber},
					{Name: "consent", Kind: model.FieldKindCheckbox},
				},
			},
		},
	}
}

func noWait() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

func TestBuildPayloadOmitsHiddenFields(t *testing.T) {
	t.Parallel()

	answers := map[string]string{
		"full_name":       "  Asha Rao ",
		"pan":             "abcde1234f",
		"nickname":        "",
		"employment_type": "self_employed",
		"employer_name":   "Stale Corp",
		"annual_income":   "7,50,000",
	}
	got := BuildPayload(loanDefinition(), validation.New(), answers)
	want := map[string]any{
		"full_name":       "Asha Rao",
		"pan":             "ABCDE1234F",
		"employment_type": "self_employed",
		"annual_income":   int64(750000),
		"consent":         false,
		"applicationType": "personal_loan",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitAccepted(t *testing.T) {
	t.Parallel()

	var captured Request
	transport := TransportFunc(func(_ context.Context, req Request) (Response, error) {
		captured = req
		return Response{Success: true, ReferenceID: "APP-1001"}, nil
	})
	client := NewClient(transport, WithBackOff(noWait))

	result, err := client.Submit(context.Background(), loanDefinition(), "sess-1", map[string]string{"full_name": "Asha"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := Result{Kind: KindAccepted, ReferenceID: "APP-1001", Attempts: 1}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	if captured.Kind != "loan" || captured.SessionID != "sess-1" {
		t.Fatalf("unexpected request %+v", captured)
	}
}

func TestSubmitRejected(t *testing.T) {
	t.Parallel()

	transport := TransportFunc(func(context.Context, Request) (Response, error) {
		return Response{Success: false, Message: "income below minimum"}, nil
	})
	result, err := NewClient(transport, WithBackOff(noWait)).Submit(context.Background(), loanDefinition(), "", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Kind != KindRejected || result.Reason != "income below minimum" || result.Retryable() {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestSubmitRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	transport := TransportFunc(func(context.Context, Request) (Response, error) {
		calls++
		if calls < 3 {
			return Response{}, fmt.Errorf("%w: status 503", ErrTransient)
		}
		return Response{Success: true, ReferenceID: "APP-7"}, nil
	})
	result, err := NewClient(transport, WithBackOff(noWait), WithMaxTries(3)).Submit(context.Background(), loanDefinition(), "", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Kind != KindAccepted || result.Attempts != 3 {
		t.Fatalf("expected acceptance on the third attempt, got %+v", result)
	}
}

func TestSubmitSurfacesExhaustedTransientFailure(t *testing.T) {
	t.Parallel()

	calls := 0
	transport := TransportFunc(func(context.Context, Request) (Response, error) {
		calls++
		return Response{}, fmt.Errorf("%w: connection refused", ErrTransient)
	})
	result, err := NewClient(transport, WithBackOff(noWait), WithMaxTries(2)).Submit(context.Background(), loanDefinition(), "", nil)
	if err != nil {
		t.Fatalf("expected transient failure as a result, got error %v", err)
	}
	if !result.Retryable() || calls != 2 {
		t.Fatalf("expected retryable result after 2 calls, got %+v (calls=%d)", result, calls)
	}
}

func TestSubmitFatalErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	malformed := TransportFunc(func(context.Context, Request) (Response, error) {
		calls++
		return Response{}, fmt.Errorf("%w: invalid character", ErrMalformedResponse)
	})
	if _, err := NewClient(malformed, WithBackOff(noWait)).Submit(context.Background(), loanDefinition(), "", nil); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected fatal errors not to be retried, got %d calls", calls)
	}

	missingRef := TransportFunc(func(context.Context, Request) (Response, error) {
		return Response{Success: true}, nil
	})
	if _, err := NewClient(missingRef, WithBackOff(noWait)).Submit(context.Background(), loanDefinition(), "", nil); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse for missing reference, got %v", err)
	}

	if _, err := NewClient(nil).Submit(context.Background(), loanDefinition(), "", nil); !errors.Is(err, ErrNoTransport) {
		t.Fatalf("expected ErrNoTransport, got %v", err)
	}
}
