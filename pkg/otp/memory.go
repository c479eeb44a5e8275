package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sender delivers a generated code out of band.
type Sender func(ctx context.Context, contact, code string) error

type memoryEntry struct {
	contact   string
	code      string
	expiresAt time.Time
	attempts  int
	resends   int
	done      bool
}

// MemoryBackend is an in-process Backend that generates random codes and
// hands them to a Sender. It is meant for local runs and tests; it keeps
// server-side attempt accounting so it behaves like a real collaborator.
type MemoryBackend struct {
	mu          sync.Mutex
	entries     map[string]*memoryEntry
	send        Sender
	window      time.Duration
	maxAttempts int
	codeLength  int
	now         func() time.Time
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithMemoryWindow sets the declared expiry.
func WithMemoryWindow(window time.Duration) MemoryOption {
	return func(b *MemoryBackend) {
		if window > 0 {
			b.window = window
		}
	}
}

// WithMemoryClock overrides the backend clock.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(b *MemoryBackend) {
		if now != nil {
			b.now = now
		}
	}
}

// WithMemoryMaxAttempts sets the server-side attempt ceiling.
func WithMemoryMaxAttempts(n int) MemoryOption {
	return func(b *MemoryBackend) {
		if n > 0 {
			b.maxAttempts = n
		}
	}
}

// NewMemoryBackend constructs a MemoryBackend delivering codes through send.
func NewMemoryBackend(send Sender, options ...MemoryOption) *MemoryBackend {
	b := &MemoryBackend{
		entries:     make(map[string]*memoryEntry),
		send:        send,
		window:      DefaultPolicy().Window,
		maxAttempts: DefaultPolicy().MaxAttempts,
		codeLength:  6,
		now:         time.Now,
	}
	for _, opt := range options {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Issue implements Backend.
func (b *MemoryBackend) Issue(ctx context.Context, contact string) (Issued, error) {
	return b.issue(ctx, contact, 0)
}

// Resend implements Backend. The previous id is invalidated.
func (b *MemoryBackend) Resend(ctx context.Context, challengeID string) (Issued, error) {
	b.mu.Lock()
	prev, ok := b.entries[challengeID]
	if !ok || prev.done {
		b.mu.Unlock()
		return Issued{}, fmt.Errorf("otp: memory backend: challenge %s not pending", challengeID)
	}
	prev.done = true
	contact, resends := prev.contact, prev.resends+1
	b.mu.Unlock()
	return b.issue(ctx, contact, resends)
}

// Verify implements Backend.
func (b *MemoryBackend) Verify(_ context.Context, challengeID, code string) (Verification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[challengeID]
	if !ok || entry.done {
		return Verification{Reason: ReasonExpired}, nil
	}
	if b.now().After(entry.expiresAt) {
		entry.done = true
		return Verification{Reason: ReasonExpired}, nil
	}
	if entry.attempts >= b.maxAttempts {
		entry.done = true
		return Verification{Reason: ReasonLocked}, nil
	}
	if entry.code != code {
		entry.attempts++
		if entry.attempts >= b.maxAttempts {
			entry.done = true
			return Verification{Reason: ReasonLocked}, nil
		}
		return Verification{Reason: ReasonInvalid}, nil
	}
	entry.done = true
	return Verification{Verified: true}, nil
}

func (b *MemoryBackend) issue(ctx context.Context, contact string, resends int) (Issued, error) {
	code, err := generateCode(b.codeLength)
	if err != nil {
		return Issued{}, fmt.Errorf("otp: generate code: %w", err)
	}
	id := uuid.NewString()

	b.mu.Lock()
	b.entries[id] = &memoryEntry{
		contact:   contact,
		code:      code,
		expiresAt: b.now().Add(b.window),
		resends:   resends,
	}
	b.mu.Unlock()

	if b.send != nil {
		if err := b.send(ctx, contact, code); err != nil {
			return Issued{}, fmt.Errorf("otp: deliver code: %w", err)
		}
	}
	return Issued{ChallengeID: id, ExpiresIn: b.window}, nil
}

func generateCode(length int) (string, error) {
	const digits = "0123456789"
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		out[i] = digits[n.Int64()]
	}
	return string(out), nil
}
