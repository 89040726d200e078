package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"dab/internal/addressbook/models"
	id "dab/pkg/domain"
)

// Each owner's book is one hash: field = name, value = target identity.
const ownerKeyPrefix = "dab:addressbook:"

func ownerKey(owner id.Identity) string {
	return ownerKeyPrefix + owner.String()
}

// RedisStore keeps one hash per owner, so per-owner scans and deletes touch
// a single key.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, entry *models.AddressEntry) error {
	if err := s.client.HSet(ctx, ownerKey(entry.Owner), entry.Name, entry.TargetID.String()).Err(); err != nil {
		return fmt.Errorf("put address: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key models.Key) (bool, error) {
	removed, err := s.client.HDel(ctx, ownerKey(key.Owner), key.Name).Result()
	if err != nil {
		return false, fmt.Errorf("delete address: %w", err)
	}
	return removed > 0, nil
}

func (s *RedisStore) Find(ctx context.Context, key models.Key) (*models.AddressEntry, error) {
	target, err := s.client.HGet(ctx, ownerKey(key.Owner), key.Name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find address: %w", err)
	}
	return &models.AddressEntry{Owner: key.Owner, Name: key.Name, TargetID: id.Identity(target)}, nil
}

func (s *RedisStore) ListByOwner(ctx context.Context, owner id.Identity) ([]*models.AddressEntry, error) {
	fields, err := s.client.HGetAll(ctx, ownerKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	return entriesFromHash(owner, fields), nil
}

// DeleteByOwner drops the owner's hash and returns how many fields it held.
func (s *RedisStore) DeleteByOwner(ctx context.Context, owner id.Identity) (int, error) {
	var size *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		size = pipe.HLen(ctx, ownerKey(owner))
		pipe.Del(ctx, ownerKey(owner))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete addresses: %w", err)
	}
	return int(size.Val()), nil
}

// ListAll walks every owner hash. Used for snapshots, not on request paths.
func (s *RedisStore) ListAll(ctx context.Context) ([]*models.AddressEntry, error) {
	keys, err := s.ownerKeys(ctx)
	if err != nil {
		return nil, err
	}
	out := []*models.AddressEntry{}
	for _, key := range keys {
		owner := id.Identity(strings.TrimPrefix(key, ownerKeyPrefix))
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("list address book %s: %w", owner, err)
		}
		out = append(out, entriesFromHash(owner, fields)...)
	}
	return out, nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	keys, err := s.ownerKeys(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, key := range keys {
		n, err := s.client.HLen(ctx, key).Result()
		if err != nil {
			return 0, fmt.Errorf("count address book: %w", err)
		}
		total += int(n)
	}
	return total, nil
}

// Replace deletes every owner hash and writes the given entries inside one
// MULTI/EXEC pipeline.
func (s *RedisStore) Replace(ctx context.Context, entries []*models.AddressEntry) error {
	keys, err := s.ownerKeys(ctx)
	if err != nil {
		return err
	}
	byOwner := make(map[id.Identity][]any)
	for _, e := range entries {
		byOwner[e.Owner] = append(byOwner[e.Owner], e.Name, e.TargetID.String())
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		for owner, values := range byOwner {
			pipe.HSet(ctx, ownerKey(owner), values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace address book: %w", err)
	}
	return nil
}

func (s *RedisStore) ownerKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, ownerKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan address book keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func entriesFromHash(owner id.Identity, fields map[string]string) []*models.AddressEntry {
	out := make([]*models.AddressEntry, 0, len(fields))
	for name, target := range fields {
		out = append(out, &models.AddressEntry{Owner: owner, Name: name, TargetID: id.Identity(target)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
