package crypto_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/pilab-dev/ssobridge/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSAKeyPEMRoundTrip(t *testing.T) {
	key, err := crypto.GenerateRSAKey()
	require.NoError(t, err)
	assert.Equal(t, crypto.RSAKeyBits, key.N.BitLen())

	parsed, err := crypto.ParseRSAPrivateKeyPEM(crypto.EncodeRSAPrivateKeyPEM(key))
	require.NoError(t, err)
	assert.True(t, key.Equal(parsed))

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	parsed, err = crypto.ParseRSAPrivateKeyPEM(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}))
	require.NoError(t, err)
	assert.True(t, key.Equal(parsed))
}

func TestParseRSAPrivateKeyPEM_Rejects(t *testing.T) {
	_, err := crypto.ParseRSAPrivateKeyPEM([]byte("not pem"))
	require.ErrorIs(t, err, crypto.ErrNoPEMBlock)

	_, err = crypto.ParseRSAPrivateKeyPEM(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1}}))
	require.Error(t, err)

	ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(ec)
	require.NoError(t, err)
	_, err = crypto.ParseRSAPrivateKeyPEM(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	require.Error(t, err)
}
