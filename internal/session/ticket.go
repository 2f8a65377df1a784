// Package session issues and reads the authentication cookie shared by the
// services of one domain. Its payload is protected by a key ring, so any
// process using the same ring can read a cookie written by another.
package session

import (
	"time"

	"github.com/pilab-dev/ssobridge/internal/claims"
)

// Authentication methods recorded in a ticket.
const (
	MethodPassword = "pwd"
	MethodExternal = "external"
)

// Ticket is the authenticated session carried by the cookie.
type Ticket struct {
	Subject          string     `json:"sub"`
	DisplayName      string     `json:"name"`
	AuthMethod       string     `json:"amr"`
	IdentityProvider string     `json:"idp"`
	Persistent       bool       `json:"persistent"`
	IssuedAt         time.Time  `json:"iat"`
	ExpiresAt        time.Time  `json:"exp"`
	Claims           claims.Set `json:"claims"`
}

// NewTicket builds a ticket for the given assertion, valid for lifetime from now.
func NewTicket(set claims.Set, method, provider string, persistent bool, lifetime time.Duration, now time.Time) *Ticket {
	display := set.Value(claims.Name)
	if display == "" {
		display = set.Value(claims.PreferredUsername)
	}

	return &Ticket{
		Subject:          set.Value(claims.Subject),
		DisplayName:      display,
		AuthMethod:       method,
		IdentityProvider: provider,
		Persistent:       persistent,
		IssuedAt:         now.UTC(),
		ExpiresAt:        now.UTC().Add(lifetime),
		Claims:           set,
	}
}

// Valid reports whether the ticket is still usable at now. A ticket is
// rejected at exactly its expiry instant.
func (t *Ticket) Valid(now time.Time) bool {
	return t != nil && t.Subject != "" && now.Before(t.ExpiresAt)
}
