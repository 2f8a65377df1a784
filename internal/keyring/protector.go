package keyring

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
)

const tokenPrefix = "v1."

// Protect seals plaintext under the current key. purpose binds the payload
// to one use, so a session cookie cannot be replayed as a state parameter.
//
// Layout before base64url: key id (16) | nonce (24) | ciphertext.
func (r *Ring) Protect(ctx context.Context, purpose string, plaintext []byte) (string, error) {
	e, err := r.CurrentKey(ctx)
	if err != nil {
		return "", err
	}

	kid, err := uuid.Parse(e.ID)
	if err != nil {
		return "", fmt.Errorf("key ring entry id %q: %w", e.ID, err)
	}

	aead, err := chacha20poly1305.NewX(e.Key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	buf := make([]byte, len(kid), len(kid)+aead.NonceSize()+len(plaintext)+aead.Overhead())
	copy(buf, kid[:])

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	buf = append(buf, nonce...)
	buf = aead.Seal(buf, nonce, plaintext, additionalData(purpose, kid))

	return tokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Unprotect reverses Protect. It fails when the key is unknown or expired, the
// purpose differs, or the payload was altered.
func (r *Ring) Unprotect(ctx context.Context, purpose, token string) ([]byte, error) {
	raw, ok := strings.CutPrefix(token, tokenPrefix)
	if !ok {
		return nil, ErrMalformedToken
	}

	buf, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, ErrMalformedToken
	}
	if len(buf) < 16+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, ErrMalformedToken
	}

	var kid uuid.UUID
	copy(kid[:], buf[:16])

	e, err := r.Resolve(ctx, kid.String())
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(e.Key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	nonce := buf[16 : 16+aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, buf[16+aead.NonceSize():], additionalData(purpose, kid))
	if err != nil {
		return nil, ErrDecryptFailed
	}

	return plaintext, nil
}

func additionalData(purpose string, kid uuid.UUID) []byte {
	ad := make([]byte, 0, len(purpose)+1+len(kid))
	ad = append(ad, purpose...)
	ad = append(ad, 0)

	return append(ad, kid[:]...)
}
