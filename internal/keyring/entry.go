// Package keyring keeps the symmetric keys that protect cookies and state
// parameters. Entries live in a store shared by every cooperating process, so
// a value protected by one instance can be unprotected by another.
package keyring

import (
	"context"
	"errors"
	"time"
)

var (
	ErrKeyNotFound     = errors.New("key ring entry not found")
	ErrKeyExpired      = errors.New("key ring entry expired")
	ErrMalformedToken  = errors.New("malformed protected payload")
	ErrDecryptFailed   = errors.New("protected payload failed authentication")
	ErrInvalidLifetime = errors.New("rotation lead must be shorter than the key lifetime")
)

// KeySize is the length of every entry's symmetric key.
const KeySize = 32

// Entry is one key of the ring.
type Entry struct {
	ID         string    `json:"id"         bson:"id"`
	Generation int64     `json:"generation" bson:"generation"`
	Key        []byte    `json:"key"        bson:"key"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
	ExpiresAt  time.Time `json:"expires_at" bson:"expires_at"`
}

// Expired reports whether the entry's lifetime has elapsed at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store persists entries for one or more rings, keyed by ring name.
//
// CreateIfAbsent must be atomic across processes: if an entry with the same
// generation already exists for the ring, the existing entry is returned with
// created=false and e is discarded.
type Store interface {
	Load(ctx context.Context, ring string) ([]Entry, error)
	CreateIfAbsent(ctx context.Context, ring string, e Entry) (stored Entry, created bool, err error)
	DeleteExpired(ctx context.Context, ring string, now time.Time) (int, error)
}
