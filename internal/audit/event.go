// Package audit records security relevant outcomes of the login flows.
package audit

import (
	"context"
	"time"
)

// Type classifies an audit event.
type Type string

const (
	Success     Type = "success"
	Failure     Type = "failure"
	Error       Type = "error"
	Information Type = "information"
)

// Well known event names.
const (
	UserLoginSuccess        = "user_login_success"
	UserLoginFailure        = "user_login_failure"
	UserLoginCancelled      = "user_login_cancelled"
	UserLogout              = "user_logout"
	UserRegistered          = "user_registered"
	InvalidClient           = "invalid_client"
	InvalidAuthorizeRequest = "invalid_authorize_request"
	AuthorizationCodeIssued = "authorization_code_issued"
	AuthorizationDenied     = "authorization_denied"
	TokenIssuedSuccess      = "token_issued_success"
	TokenIssuedFailure      = "token_issued_failure"
	ExternalLoginFailure    = "external_login_failure"
)

// Event represents an audit log event.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service,omitempty"`
	Type        Type      `json:"type"`
	Name        string    `json:"name"`
	Subject     string    `json:"subject,omitempty"`
	Username    string    `json:"username,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	ClientID    string    `json:"client_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// Sink receives audit events. Raise never fails the caller; implementations
// deal with their own delivery errors.
type Sink interface {
	Raise(ctx context.Context, e Event)
}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Raise(context.Context, Event) {}
