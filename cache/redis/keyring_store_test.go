package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	cacheredis "github.com/pilab-dev/ssobridge/cache/redis"
	"github.com/pilab-dev/ssobridge/internal/keyring"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*cacheredis.KeyRingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return cacheredis.NewKeyRingStore(client, "sso"), mr
}

func TestKeyRingStore_CreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	store, mr := setupStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	winner := keyring.Entry{ID: "w", Generation: 1, Key: []byte("k1"), CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	got, created, err := store.CreateIfAbsent(ctx, "edo", winner)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "w", got.ID)

	got, created, err = store.CreateIfAbsent(ctx, "edo", keyring.Entry{ID: "l", Generation: 1, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "w", got.ID)
	assert.Equal(t, []byte("k1"), got.Key)

	assert.True(t, mr.Exists("sso:keyring:edo"))
}

func TestKeyRingStore_LoadSortedAndDeleteExpired(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)
	now := time.Now().UTC()

	for gen, exp := range map[int64]time.Time{3: now.Add(time.Hour), 1: now.Add(-time.Hour), 2: now.Add(time.Minute)} {
		_, _, err := store.CreateIfAbsent(ctx, "edo", keyring.Entry{ID: string(rune('a' + gen)), Generation: gen, ExpiresAt: exp})
		require.NoError(t, err)
	}

	entries, err := store.Load(ctx, "edo")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{entries[0].Generation, entries[1].Generation, entries[2].Generation})

	n, err := store.DeleteExpired(ctx, "edo", now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err = store.Load(ctx, "edo")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestKeyRingStore_BacksSharedRing(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	a, err := keyring.New("edo", store, keyring.Options{Lifetime: time.Hour})
	require.NoError(t, err)
	b, err := keyring.New("edo", store, keyring.Options{Lifetime: time.Hour})
	require.NoError(t, err)

	token, err := a.Protect(ctx, "session", []byte("shared"))
	require.NoError(t, err)

	plain, err := b.Unprotect(ctx, "session", token)
	require.NoError(t, err)
	assert.Equal(t, "shared", string(plain))
}
