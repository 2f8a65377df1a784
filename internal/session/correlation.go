package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// PurposeCorrelation binds protected payloads to correlation cookies.
const PurposeCorrelation = "correlation"

// CorrelationMaxAge bounds the round trip to an identity provider.
const CorrelationMaxAge = 15 * time.Minute

var ErrCorrelation = errors.New("correlation cookie is missing, invalid or expired")

// Correlation remembers an outbound authorization redirect until the
// provider calls back.
type Correlation struct {
	Provider  string    `json:"provider,omitempty"`
	State     string    `json:"state"`
	Nonce     string    `json:"nonce"`
	Verifier  string    `json:"verifier"`
	ReturnURL string    `json:"return_url"`
	CreatedAt time.Time `json:"created_at"`
}

// NewCorrelation generates fresh state, nonce and PKCE verifier values.
func NewCorrelation(provider, returnURL string, now time.Time) (*Correlation, error) {
	state, err := randomValue()
	if err != nil {
		return nil, err
	}
	nonce, err := randomValue()
	if err != nil {
		return nil, err
	}

	return &Correlation{
		Provider:  provider,
		State:     state,
		Nonce:     nonce,
		Verifier:  oauth2.GenerateVerifier(),
		ReturnURL: returnURL,
		CreatedAt: now.UTC(),
	}, nil
}

func randomValue() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate correlation value: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// IssueCorrelation writes c as a short lived cookie scoped to the callback.
func (m *Manager) IssueCorrelation(ctx context.Context, w http.ResponseWriter, c *Correlation) error {
	value, err := Seal(ctx, m.protector, m.correlationPurpose(), c)
	if err != nil {
		return err
	}

	cookie := m.correlationCookie(value)
	cookie.MaxAge = int(CorrelationMaxAge.Seconds())
	http.SetCookie(w, cookie)

	return nil
}

// ReadCorrelation returns the correlation carried by r. A missing, tampered
// or stale cookie gives ErrCorrelation.
func (m *Manager) ReadCorrelation(r *http.Request) (*Correlation, error) {
	cookie, err := r.Cookie(m.correlationName())
	if err != nil || cookie.Value == "" {
		return nil, ErrCorrelation
	}

	var c Correlation
	if err := Open(r.Context(), m.protector, m.correlationPurpose(), cookie.Value, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrelation, err)
	}
	if m.now().Sub(c.CreatedAt) > CorrelationMaxAge {
		return nil, fmt.Errorf("%w: older than %s", ErrCorrelation, CorrelationMaxAge)
	}

	return &c, nil
}

// ClearCorrelation expires the correlation cookie.
func (m *Manager) ClearCorrelation(w http.ResponseWriter) {
	cookie := m.correlationCookie("")
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	http.SetCookie(w, cookie)
}

func (m *Manager) correlationName() string { return m.opts.CorrelationName }

// correlationPurpose ties a sealed correlation to the cookie it was issued as.
func (m *Manager) correlationPurpose() string {
	return PurposeCorrelation + "." + m.opts.CorrelationName
}

func (m *Manager) correlationCookie(value string) *http.Cookie {
	c := m.cookie(value)
	c.Name = m.correlationName()
	c.Path = m.opts.CorrelationPath

	return c
}
