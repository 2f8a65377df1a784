// Package claims builds the identity assertions handed out at login.
//
// A Set is an ordered list of (name, value) pairs drawn from a fixed
// vocabulary. Unknown names are rejected when a set is built or decoded.
package claims

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Recognised claim names.
const (
	Subject           = "sub"
	Name              = "name"
	PreferredUsername = "preferred_username"
	Email             = "email"
	FullName          = "fullname"
)

// Names lists every recognised claim in canonical order.
var Names = []string{Subject, Name, PreferredUsername, Email, FullName}

var ErrUnknownClaim = errors.New("unknown claim name")

// Scope to claim mapping used when an assertion is released to a client.
var scopeClaims = map[string][]string{
	"openid":  {Subject},
	"profile": {Name, PreferredUsername, FullName},
	"email":   {Email},
}

// Claim is a single named assertion.
type Claim struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Set is an ordered claims set.
type Set []Claim

// IsKnown reports whether name belongs to the recognised vocabulary.
func IsKnown(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}

	return false
}

// New builds a Set from pairs, rejecting unknown and duplicate names.
func New(pairs ...Claim) (Set, error) {
	s := make(Set, 0, len(pairs))
	seen := make(map[string]struct{}, len(pairs))

	for _, c := range pairs {
		if !IsKnown(c.Name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownClaim, c.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("duplicate claim %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		s = append(s, c)
	}

	return s, nil
}

// FromObject picks the recognised names out of a decoded token payload, in
// canonical order. Protocol claims (iss, aud, exp...) and anything else that
// is not part of the vocabulary are left behind. Non-string values are skipped.
func FromObject(obj map[string]any) Set {
	s := make(Set, 0, len(Names))
	for _, n := range Names {
		if v, ok := obj[n].(string); ok && v != "" {
			s = append(s, Claim{Name: n, Value: v})
		}
	}

	return s
}

// Get returns the value for name.
func (s Set) Get(name string) (string, bool) {
	for _, c := range s {
		if c.Name == name {
			return c.Value, true
		}
	}

	return "", false
}

// Value returns the value for name or "".
func (s Set) Value(name string) string {
	v, _ := s.Get(name)
	return v
}

// Names returns the claim names in order. Two sets have the same shape when
// their Names are equal.
func (s Set) Names() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}

	return out
}

// IsEmpty reports whether the set holds no claims.
func (s Set) IsEmpty() bool { return len(s) == 0 }

// Object flattens the set into a token payload map.
func (s Set) Object() map[string]any {
	m := make(map[string]any, len(s))
	for _, c := range s {
		m[c.Name] = c.Value
	}

	return m
}

// ForScopes keeps only the claims released by the granted scopes.
func (s Set) ForScopes(scopes []string) Set {
	allowed := make(map[string]struct{})
	for _, sc := range scopes {
		for _, n := range scopeClaims[sc] {
			allowed[n] = struct{}{}
		}
	}

	out := make(Set, 0, len(s))
	for _, c := range s {
		if _, ok := allowed[c.Name]; ok {
			out = append(out, c)
		}
	}

	return out
}

// UnmarshalJSON decodes an ordered pair list and rejects unknown names.
func (s *Set) UnmarshalJSON(data []byte) error {
	var pairs []Claim
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}

	decoded, err := New(pairs...)
	if err != nil {
		return err
	}
	*s = decoded

	return nil
}
