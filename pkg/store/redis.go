package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/pkg/wizard"
)

// DefaultTTL bounds how long an abandoned draft survives.
const DefaultTTL = 72 * time.Hour

const defaultKeyPrefix = "formwizard:session:"

// Redis stores snapshots as JSON values with a TTL that is refreshed on
// every save.
type Redis struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

var _ Store = (*Redis)(nil)

// RedisOption customises a Redis store.
type RedisOption func(*Redis)

// WithKeyPrefix overrides the key namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithTTL overrides DefaultTTL. Zero keeps drafts forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl >= 0 {
			r.ttl = ttl
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) RedisOption {
	return func(r *Redis) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRedis wraps an existing client, usually a *redis.Client.
func NewRedis(client redis.Cmdable, options ...RedisOption) (*Redis, error) {
	if client == nil {
		return nil, errors.New("store: redis client is required")
	}
	r := &Redis{
		client: client,
		prefix: defaultKeyPrefix,
		ttl:    DefaultTTL,
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

func (r *Redis) key(id string) string {
	return r.prefix + id
}

func (r *Redis) Save(ctx context.Context, session wizard.Session) error {
	if session.ID == "" {
		return errMissingID
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("store: encode session %s: %w", session.ID, err)
	}
	if err := r.client.Set(ctx, r.key(session.ID), payload, r.ttl).Err(); err != nil {
		r.logger.Error("failed to save session", zap.String("session", session.ID), zap.Error(err))
		return fmt.Errorf("store: save session %s: %w", session.ID, err)
	}
	return nil
}

func (r *Redis) Load(ctx context.Context, id string) (wizard.Session, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return wizard.Session{}, ErrNotFound
		}
		return wizard.Session{}, fmt.Errorf("store: load session %s: %w", id, err)
	}
	var session wizard.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return wizard.Session{}, fmt.Errorf("store: decode session %s: %w", id, err)
	}
	return session, nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("store: delete session %s: %w", id, err)
	}
	return nil
}
