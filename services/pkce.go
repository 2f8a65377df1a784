package services

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// PKCE challenge methods.
const (
	PKCEMethodPlain = "plain"
	PKCEMethodS256  = "S256"
)

// SupportedPKCEMethod reports whether method is a known challenge method.
func SupportedPKCEMethod(method string) bool {
	return method == PKCEMethodPlain || method == PKCEMethodS256
}

// ValidatePKCEChallenge validates a code verifier against a code challenge
// created with method.
func ValidatePKCEChallenge(method, challenge, verifier string) bool {
	if verifier == "" {
		return false
	}

	var calculated string
	switch method {
	case PKCEMethodPlain, "":
		calculated = verifier
	case PKCEMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		calculated = base64.RawURLEncoding.EncodeToString(sum[:])
	default:
		return false
	}

	return subtle.ConstantTimeCompare([]byte(challenge), []byte(calculated)) == 1
}
