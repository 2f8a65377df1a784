package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/pilab-dev/ssobridge/internal/keyring"
	"github.com/redis/go-redis/v9"
)

// KeyRingStore keeps every entry of a ring as one field of a redis hash.
// HSETNX on the generation field is the atomic create-if-absent.
type KeyRingStore struct {
	client *redis.Client
	prefix string
}

// NewKeyRingStore creates a new [KeyRingStore] instance
func NewKeyRingStore(client *redis.Client, prefix string) *KeyRingStore {
	return &KeyRingStore{
		client: client,
		prefix: prefix,
	}
}

// redisKey returns the hash holding a ring's entries
func (s *KeyRingStore) redisKey(ring string) string {
	return fmt.Sprintf("%s:keyring:%s", s.prefix, ring)
}

func (s *KeyRingStore) Load(ctx context.Context, ring string) ([]keyring.Entry, error) {
	res, err := s.client.HGetAll(ctx, s.redisKey(ring)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load key ring from Redis: %w", err)
	}

	entries := make([]keyring.Entry, 0, len(res))
	for field, raw := range res {
		var e keyring.Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("failed to decode key ring entry %s: %w", field, err)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Generation < entries[j].Generation })

	return entries, nil
}

func (s *KeyRingStore) CreateIfAbsent(ctx context.Context, ring string, e keyring.Entry) (keyring.Entry, bool, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return keyring.Entry{}, false, fmt.Errorf("failed to encode key ring entry: %w", err)
	}

	key := s.redisKey(ring)
	field := strconv.FormatInt(e.Generation, 10)

	created, err := s.client.HSetNX(ctx, key, field, value).Result()
	if err != nil {
		return keyring.Entry{}, false, fmt.Errorf("failed to create key ring entry in Redis: %w", err)
	}
	if created {
		return e, true, nil
	}

	raw, err := s.client.HGet(ctx, key, field).Result()
	if err != nil {
		return keyring.Entry{}, false, fmt.Errorf("failed to read existing key ring entry: %w", err)
	}

	var existing keyring.Entry
	if err := json.Unmarshal([]byte(raw), &existing); err != nil {
		return keyring.Entry{}, false, fmt.Errorf("failed to decode key ring entry %s: %w", field, err)
	}

	return existing, false, nil
}

func (s *KeyRingStore) DeleteExpired(ctx context.Context, ring string, now time.Time) (int, error) {
	entries, err := s.Load(ctx, ring)
	if err != nil {
		return 0, err
	}

	var fields []string
	for _, e := range entries {
		if e.Expired(now) {
			fields = append(fields, strconv.FormatInt(e.Generation, 10))
		}
	}
	if len(fields) == 0 {
		return 0, nil
	}

	n, err := s.client.HDel(ctx, s.redisKey(ring), fields...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired key ring entries: %w", err)
	}

	return int(n), nil
}

var _ keyring.Store = (*KeyRingStore)(nil)
