package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/otp"
	"github.com/goliatone/go-formwizard/pkg/submission"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

func sampleSession() wizard.Session {
	created := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	return wizard.Session{
		ID:           "sess-1",
		DefinitionID: "personal-loan",
		StepIndex:    2,
		Reached:      2,
		Answers:      map[string]string{"full_name": "Asha Rao", "annual_income": "250000"},
		Status:       wizard.StatusAwaitingVerification,
		Completed:    true,
		ReferenceID:  "APP-42",
		ChallengeID:  "ch-1",
		Challenge: &otp.Challenge{
			ID:          "ch-1",
			Contact:     "9876543210",
			IssuedAt:    created.Add(time.Minute),
			Window:      5 * time.Minute,
			MaxAttempts: 5,
			MaxResends:  3,
			Status:      otp.StatusPending,
		},
		CreatedAt: created,
		UpdatedAt: created.Add(time.Minute),
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemory()
	want := sampleSession()

	if err := st.Save(ctx, want); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	got, err := st.Load(ctx, want.ID)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("session mismatch (-want +got):\n%s", diff)
	}

	got.Answers["full_name"] = "changed"
	again, _ := st.Load(ctx, want.ID)
	if again.Answers["full_name"] != "Asha Rao" {
		t.Fatalf("stored snapshot was mutated through a loaded copy")
	}

	if err := st.Delete(ctx, want.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := st.Load(ctx, want.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryRejectsMissingID(t *testing.T) {
	t.Parallel()

	if err := NewMemory().Save(context.Background(), wizard.Session{}); err == nil {
		t.Fatalf("expected error for a session without id")
	}
}

type fakeRedis struct {
	redis.Cmdable
	values map[string]string
	ttls   map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var removed int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func TestRedisRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := newFakeRedis()
	st, err := NewRedis(fake, WithKeyPrefix("test:"), WithTTL(time.Hour))
	if err != nil {
		t.Fatalf("NewRedis returned error: %v", err)
	}
	want := sampleSession()

	if err := st.Save(ctx, want); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if got := fake.ttls["test:sess-1"]; got != time.Hour {
		t.Fatalf("expected ttl 1h on test:sess-1, got %v", got)
	}

	got, err := st.Load(ctx, want.ID)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("session mismatch (-want +got):\n%s", diff)
	}

	if err := st.Delete(ctx, want.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := st.Load(ctx, want.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisCorruptPayload(t *testing.T) {
	t.Parallel()

	fake := newFakeRedis()
	fake.values[defaultKeyPrefix+"bad"] = "{"
	st, _ := NewRedis(fake)
	if _, err := st.Load(context.Background(), "bad"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestResumeRestoresController(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemory()
	def := resumeDefinition()

	ctrl, err := wizard.New(def, noopSubmitter{}, nil)
	if err != nil {
		t.Fatalf("wizard.New returned error: %v", err)
	}
	if _, err := ctrl.SetField("full_name", "Asha"); err != nil {
		t.Fatalf("SetField returned error: %v", err)
	}
	if err := Checkpoint(ctx, st, ctrl); err != nil {
		t.Fatalf("Checkpoint returned error: %v", err)
	}

	resumed, err := Resume(ctx, st, ctrl.Snapshot().ID, def, noopSubmitter{}, nil)
	if err != nil {
		t.Fatalf("Resume returned error: %v", err)
	}
	if diff := cmp.Diff(ctrl.Snapshot(), resumed.Snapshot()); diff != "" {
		t.Fatalf("resumed snapshot mismatch (-want +got):\n%s", diff)
	}

	if _, err := Resume(ctx, st, "missing", def, noopSubmitter{}, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown draft, got %v", err)
	}
}

type noopSubmitter struct{}

func (noopSubmitter) Submit(context.Context, model.Definition, string, map[string]string) (submission.Result, error) {
	return submission.Result{Kind: submission.KindAccepted, ReferenceID: "APP-1"}, nil
}

func resumeDefinition() model.Definition {
	return model.Definition{
		ID: "savings",
		Steps: []model.Step{
			{ID: "basics", Fields: []model.Field{{Name: "full_name", Required: true}}},
			{ID: "deposit", Fields: []model.Field{{Name: "amount", Kind: model.FieldKindNumber}}},
		},
	}
}
