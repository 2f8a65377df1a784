package domain

import (
	"context"
	"time"
)

// Account is a local user record. The SSO core only reads it; creation goes
// through AccountStore.Create during registration.
type Account struct {
	ID           string    `bson:"_id"                json:"id"`
	Username     string    `bson:"username"           json:"username"`
	PasswordHash string    `bson:"password_hash"      json:"-"`
	Email        string    `bson:"email,omitempty"    json:"email,omitempty"`
	Phone        string    `bson:"phone,omitempty"    json:"phone,omitempty"`
	FullName     string    `bson:"full_name,omitempty" json:"full_name,omitempty"`
	Active       bool      `bson:"active"             json:"active"`
	CreatedAt    time.Time `bson:"created_at"         json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"         json:"updated_at"`
}

// DisplayName is the name shown for a signed in account.
func (a *Account) DisplayName() string {
	return a.Username
}

// AccountStore is the narrow view of the user database the login flows need.
// FindByUsername and FindByID return (nil, nil) when no account matches.
//
//go:generate go run go.uber.org/mock/mockgen -source=$GOFILE -destination=mock/mock_$GOFILE -package=mock_$GOPACKAGE AccountStore
type AccountStore interface {
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	CheckPassword(ctx context.Context, account *Account, plaintext string) (bool, error)
	// Create stores a new account, hashing plaintext. It returns ErrUsernameTaken
	// when the username is already registered.
	Create(ctx context.Context, account *Account, plaintext string) (*Account, error)
}
