package session

import (
	"context"
	"encoding/json"
	"fmt"
)

// Protector seals payloads for a purpose. *keyring.Ring implements it.
type Protector interface {
	Protect(ctx context.Context, purpose string, plaintext []byte) (string, error)
	Unprotect(ctx context.Context, purpose, token string) ([]byte, error)
}

// Seal marshals v as JSON and protects it for purpose.
func Seal(ctx context.Context, p Protector, purpose string, v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", purpose, err)
	}

	return p.Protect(ctx, purpose, raw)
}

// Open unprotects token for purpose and unmarshals it into v.
func Open(ctx context.Context, p Protector, purpose, token string, v any) error {
	raw, err := p.Unprotect(ctx, purpose, token)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", purpose, err)
	}

	return nil
}
