package cache

import (
	"context"
	"errors"
	"time"
)

var ErrTokenNotFound = errors.New("token not found")

// TokenEntry is the server side record of an issued access token.
type TokenEntry struct {
	ClientID  string
	Subject   string
	Scopes    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenStore keeps issued access tokens until they expire. Implementations
// index by a hash of the token, never the raw value.
type TokenStore interface {
	Set(ctx context.Context, token string, entry *TokenEntry) error
	Get(ctx context.Context, token string) (*TokenEntry, error)
	Delete(ctx context.Context, token string) error
	Count(ctx context.Context) int
}
