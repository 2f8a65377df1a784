package services_test

import (
	"testing"

	"github.com/pilab-dev/ssobridge/services"
	"github.com/stretchr/testify/assert"
)

func TestValidatePKCEChallenge(t *testing.T) {
	// RFC 7636 appendix B.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	tests := []struct {
		name      string
		method    string
		challenge string
		verifier  string
		want      bool
	}{
		{"s256 ok", services.PKCEMethodS256, challenge, verifier, true},
		{"s256 wrong verifier", services.PKCEMethodS256, challenge, "nope", false},
		{"s256 does not accept plain echo", services.PKCEMethodS256, challenge, challenge, false},
		{"plain ok", services.PKCEMethodPlain, "abc", "abc", true},
		{"plain mismatch", services.PKCEMethodPlain, "abc", "abd", false},
		{"empty verifier", services.PKCEMethodPlain, "", "", false},
		{"unknown method", "S512", challenge, verifier, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, services.ValidatePKCEChallenge(tt.method, tt.challenge, tt.verifier))
		})
	}
}
