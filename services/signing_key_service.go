package services

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pilab-dev/ssobridge/api"
	"github.com/pilab-dev/ssobridge/internal/crypto"
	"github.com/rs/zerolog/log"
)

// SigningKeyService holds the RSA key used for id_tokens. Every instance that
// loads the same file publishes the same key under the same kid.
type SigningKeyService struct {
	key *rsa.PrivateKey
	kid string
}

// NewSigningKeyService wraps an existing key.
func NewSigningKeyService(key *rsa.PrivateKey) *SigningKeyService {
	return &SigningKeyService{key: key, kid: Thumbprint(&key.PublicKey)}
}

// LoadOrGenerateSigningKey reads a PEM encoded RSA key from path. When the
// file does not exist a new key is generated and linked into place, so
// processes racing on first start all end up with the winner's key.
func LoadOrGenerateSigningKey(path string) (*SigningKeyService, error) {
	key, err := readKey(path)
	if err == nil {
		return NewSigningKeyService(key), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key, err = crypto.GenerateRSAKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	if err := writeKeyIfAbsent(path, key); err != nil {
		return nil, err
	}

	// Another process may have linked its key first.
	key, err = readKey(path)
	if err != nil {
		return nil, err
	}

	log.Info().Str("path", path).Msg("Signing key ready")

	return NewSigningKeyService(key), nil
}

func readKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	key, err := crypto.ParseRSAPrivateKeyPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("signing key %s: %w", path, err)
	}

	return key, nil
}

func writeKeyIfAbsent(path string, key *rsa.PrivateKey) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".signing-key-*")
	if err != nil {
		return fmt.Errorf("create temp key file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(crypto.EncodeRSAPrivateKeyPEM(key)); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp key file: %w", err)
	}

	// Link fails if path exists, which makes the publish create-if-absent.
	if err := os.Link(tmp.Name(), path); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("publish signing key: %w", err)
	}

	return nil
}

// Thumbprint is the RFC 7638 SHA-256 thumbprint of pub.
func Thumbprint(pub *rsa.PublicKey) string {
	n, e := encodePublic(pub)
	canonical := fmt.Sprintf(`{"e":"%s","kty":"RSA","n":"%s"}`, e, n)
	sum := sha256.Sum256([]byte(canonical))

	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func encodePublic(pub *rsa.PublicKey) (n, e string) {
	n = base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	e = base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())
	return n, e
}

// KeyID returns the kid placed in token headers.
func (s *SigningKeyService) KeyID() string { return s.kid }

// PublicKey returns the verification key.
func (s *SigningKeyService) PublicKey() *rsa.PublicKey { return &s.key.PublicKey }

// JWKS returns the key set published at the jwks_uri.
func (s *SigningKeyService) JWKS() api.JSONWebKeySet {
	n, e := encodePublic(&s.key.PublicKey)

	return api.JSONWebKeySet{Keys: []api.JSONWebKey{{
		Kid: s.kid,
		Kty: "RSA",
		Alg: jwt.SigningMethodRS256.Alg(),
		Use: "sig",
		N:   n,
		E:   e,
	}}}
}

// Sign signs claims with RS256 and the service's kid.
func (s *SigningKeyService) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.kid

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}
