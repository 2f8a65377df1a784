package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/pilab-dev/ssobridge/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTokenStore(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryTokenStore(time.Minute)
	defer store.Close()

	entry := &cache.TokenEntry{ClientID: "c1", Subject: "1", Scopes: []string{"openid"}, ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, store.Set(ctx, "tok", entry))
	assert.Equal(t, 1, store.Count(ctx))

	got, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "1", got.Subject)

	_, err = store.Get(ctx, "other")
	assert.ErrorIs(t, err, cache.ErrTokenNotFound)

	require.NoError(t, store.Delete(ctx, "tok"))
	_, err = store.Get(ctx, "tok")
	assert.ErrorIs(t, err, cache.ErrTokenNotFound)
}
