package oidcflow

import "time"

// Status of an authorization request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// AuthorizationRequest holds the validated parameters of a pending
// /connect/authorize call while the visitor authenticates.
type AuthorizationRequest struct {
	ID                  string
	ClientID            string
	RedirectURI         string
	Scopes              []string
	State               string // Client's state parameter
	Nonce               string // Optional nonce from client
	CodeChallenge       string
	CodeChallengeMethod string
	LoginHint           string
	IdentityProvider    string // Forced provider from acr_values, empty when none
	IsNativeClient      bool
	Status              Status
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// Pending reports whether the request can still be approved or denied.
func (r *AuthorizationRequest) Pending() bool {
	return r.Status == StatusPending
}

// AuthorizationCode is the one-time artifact handed to the client after approval.
type AuthorizationCode struct {
	Code                string
	RequestID           string
	ClientID            string
	RedirectURI         string
	Subject             string
	Scopes              []string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	AuthMethod          string
	IdentityProvider    string
	AuthTime            time.Time
	ExpiresAt           time.Time
}
