package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"dab/internal/registry/models"
)

// Redis hash holding every descriptor, field = canister name.
const canistersKey = "dab:registry:canisters"

// RedisStore keeps the named registry in a single Redis hash so every
// operation is one atomic command.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed registry store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, d *models.CanisterDescriptor) error {
	if d == nil {
		return fmt.Errorf("canister descriptor is required")
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal canister: %w", err)
	}
	if err := s.client.HSet(ctx, canistersKey, d.Name, payload).Err(); err != nil {
		return fmt.Errorf("save canister: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	removed, err := s.client.HDel(ctx, canistersKey, name).Result()
	if err != nil {
		return fmt.Errorf("delete canister: %w", err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) FindByName(ctx context.Context, name string) (*models.CanisterDescriptor, error) {
	raw, err := s.client.HGet(ctx, canistersKey, name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find canister: %w", err)
	}
	var d models.CanisterDescriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("unmarshal canister: %w", err)
	}
	return &d, nil
}

func (s *RedisStore) ListAll(ctx context.Context) ([]*models.CanisterDescriptor, error) {
	fields, err := s.client.HGetAll(ctx, canistersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list canisters: %w", err)
	}
	out := make([]*models.CanisterDescriptor, 0, len(fields))
	for _, raw := range fields {
		var d models.CanisterDescriptor
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("unmarshal canister: %w", err)
		}
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, canistersKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count canisters: %w", err)
	}
	return int(n), nil
}

// Replace rewrites the hash inside a MULTI/EXEC pipeline.
func (s *RedisStore) Replace(ctx context.Context, descriptors []*models.CanisterDescriptor) error {
	values := make([]any, 0, 2*len(descriptors))
	for _, d := range descriptors {
		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal canister: %w", err)
		}
		values = append(values, d.Name, payload)
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, canistersKey)
		if len(values) > 0 {
			pipe.HSet(ctx, canistersKey, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace canisters: %w", err)
	}
	return nil
}
