package permissions

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/StricklySoft/stricklysoft-authcore/pkg/clients/redis"
	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

// DefaultStoreKey is the Redis hash holding one field per role.
const DefaultStoreKey = "authcore:permissions"

// Store is a second-level cache shared between instances.
type Store interface {
	Get(ctx context.Context, role string) ([]string, bool, error)
	Set(ctx context.Context, role string, perms []string) error
	Purge(ctx context.Context) error
}

// HashClient is the subset of the Redis client used by [RedisStore].
// *redis.Client satisfies it.
type HashClient interface {
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key string, values ...interface{}) (int64, error)
	Del(ctx context.Context, keys ...string) (int64, error)
}

// RedisStore keeps permission lists as JSON arrays in a single hash so a
// purge is one DEL.
type RedisStore struct {
	client HashClient
	key    string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a store writing to key, or [DefaultStoreKey] when
// key is empty.
func NewRedisStore(client HashClient, key string) (*RedisStore, error) {
	if client == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "permissions: redis store requires a client")
	}
	if key == "" {
		key = DefaultStoreKey
	}
	return &RedisStore{client: client, key: key}, nil
}

// Get returns the stored list for role and whether it was present.
func (s *RedisStore) Get(ctx context.Context, role string) ([]string, bool, error) {
	raw, err := s.client.HGet(ctx, s.key, role)
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var perms []string
	if err := json.Unmarshal([]byte(raw), &perms); err != nil {
		return nil, false, sserr.Wrap(err, sserr.CodeInternalStore, "permissions: stored entry is corrupt").
			WithDetail("role", role)
	}
	if perms == nil {
		perms = []string{}
	}
	return perms, true, nil
}

// Set stores perms for role.
func (s *RedisStore) Set(ctx context.Context, role string, perms []string) error {
	if perms == nil {
		perms = []string{}
	}
	data, err := json.Marshal(perms)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeInternal, "permissions: failed to encode entry")
	}
	_, err = s.client.HSet(ctx, s.key, role, string(data))
	return err
}

// Purge removes every stored role.
func (s *RedisStore) Purge(ctx context.Context) error {
	_, err := s.client.Del(ctx, s.key)
	return err
}
