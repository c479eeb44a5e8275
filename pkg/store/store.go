package store

import (
	"context"
	"errors"
	"sync"

	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

// ErrNotFound is returned when no draft exists for the id.
var ErrNotFound = errors.New("store: session not found")

// Store persists session snapshots so a draft can be resumed later.
type Store interface {
	Save(ctx context.Context, session wizard.Session) error
	Load(ctx context.Context, id string) (wizard.Session, error)
	Delete(ctx context.Context, id string) error
}

// Memory keeps snapshots in process. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]wizard.Session
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]wizard.Session)}
}

func (m *Memory) Save(ctx context.Context, session wizard.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if session.ID == "" {
		return errMissingID
	}
	m.mu.Lock()
	m.sessions[session.ID] = session.Clone()
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(ctx context.Context, id string) (wizard.Session, error) {
	if err := ctx.Err(); err != nil {
		return wizard.Session{}, err
	}
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return wizard.Session{}, ErrNotFound
	}
	return session.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

var errMissingID = errors.New("store: session id is required")

// Checkpoint saves the controller's current snapshot.
func Checkpoint(ctx context.Context, st Store, ctrl *wizard.Controller) error {
	if st == nil || ctrl == nil {
		return nil
	}
	return st.Save(ctx, ctrl.Snapshot())
}

// Resume loads the draft with the given id and reopens it on def.
func Resume(ctx context.Context, st Store, id string, def model.Definition, submitter wizard.Submitter, challenger wizard.Challenger, options ...wizard.Option) (*wizard.Controller, error) {
	session, err := st.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	opts := append([]wizard.Option{wizard.WithSession(session)}, options...)
	return wizard.New(def, submitter, challenger, opts...)
}
