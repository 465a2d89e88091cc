package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/redis"
)

type keyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SessionKey(name string) string
}

// RedisStore persists the session as JSON under sf:session:<name>.
type RedisStore struct {
	kv  keyValueStore
	key string
	ttl time.Duration
}

// NewRedisStore builds a store bound to one named session slot.
func NewRedisStore(kv keyValueStore, name string, ttl time.Duration) (*RedisStore, error) {
	if kv == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "redis client required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "default"
	}
	return &RedisStore{kv: kv, key: kv.SessionKey(name), ttl: ttl}, nil
}

func (r *RedisStore) Load(ctx context.Context) (*Session, error) {
	raw, err := r.kv.Get(ctx, r.key)
	if err != nil {
		if redis.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session")
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode session")
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode session")
	}
	if err := r.kv.Set(ctx, r.key, string(payload), r.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save session")
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.kv.Del(ctx, r.key); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear session")
	}
	return nil
}
