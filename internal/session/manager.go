package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// PurposeSession binds protected payloads to session cookies.
const PurposeSession = "session"

var (
	ErrNoSession      = errors.New("no session cookie")
	ErrInvalidSession = errors.New("session cookie is invalid")
	ErrSessionExpired = errors.New("session expired")
)

// CookieOptions describe how the cookie is written.
type CookieOptions struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite

	// CorrelationName and CorrelationPath place the external sign-in
	// cookie. Services sharing a host need distinct values.
	CorrelationName string
	CorrelationPath string
}

// Manager writes and reads session cookies.
type Manager struct {
	protector Protector
	opts      CookieOptions
	now       func() time.Time
}

// NewManager returns a Manager. An empty cookie name defaults to "sso_session",
// the path to "/" and SameSite to Lax. The correlation cookie defaults to the
// session cookie's name with a ".correlation" suffix and to its path.
func NewManager(p Protector, opts CookieOptions) *Manager {
	if opts.Name == "" {
		opts.Name = "sso_session"
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.CorrelationName == "" {
		opts.CorrelationName = opts.Name + ".correlation"
	}
	if opts.CorrelationPath == "" {
		opts.CorrelationPath = opts.Path
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}

	return &Manager{protector: p, opts: opts, now: time.Now}
}

// WithClock returns a copy of m using now as its clock.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	c := *m
	c.now = now
	return &c
}

// Now is the manager's clock.
func (m *Manager) Now() time.Time { return m.now() }

// Encode protects t into a cookie value.
func (m *Manager) Encode(ctx context.Context, t *Ticket) (string, error) {
	return Seal(ctx, m.protector, PurposeSession, t)
}

// Decode reverses Encode and checks the ticket's lifetime.
func (m *Manager) Decode(ctx context.Context, value string) (*Ticket, error) {
	var t Ticket
	if err := Open(ctx, m.protector, PurposeSession, value, &t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	if !t.Valid(m.now()) {
		return nil, ErrSessionExpired
	}

	return &t, nil
}

// Issue writes the cookie for t. Only persistent tickets get an explicit
// expiry; the others live for the browser session.
func (m *Manager) Issue(ctx context.Context, w http.ResponseWriter, t *Ticket) error {
	value, err := m.Encode(ctx, t)
	if err != nil {
		return err
	}

	c := m.cookie(value)
	if t.Persistent {
		c.Expires = t.ExpiresAt
		c.MaxAge = int(t.ExpiresAt.Sub(m.now()).Seconds())
	}
	http.SetCookie(w, c)

	return nil
}

// Read returns the valid ticket carried by r.
func (m *Manager) Read(r *http.Request) (*Ticket, error) {
	c, err := r.Cookie(m.opts.Name)
	if err != nil || c.Value == "" {
		return nil, ErrNoSession
	}

	return m.Decode(r.Context(), c.Value)
}

// Clear expires the cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	c := m.cookie("")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	http.SetCookie(w, c)
}

func (m *Manager) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     m.opts.Name,
		Value:    value,
		Path:     m.opts.Path,
		Domain:   m.opts.Domain,
		Secure:   m.opts.Secure,
		HttpOnly: true,
		SameSite: m.opts.SameSite,
	}
}
