package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pilab-dev/ssobridge/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	return out.String()
}

func TestKeyRingCommands(t *testing.T) {
	t.Setenv("SSOBRIDGE_KEYRING_BACKEND", "file")
	t.Setenv("SSOBRIDGE_KEYRING_PATH", filepath.Join(t.TempDir(), "keyring.db"))
	t.Setenv("SSOBRIDGE_KEYRING_APPLICATION_NAME", "cli-test")
	t.Setenv("SSOBRIDGE_LOG_LEVEL", "error")

	first := strings.TrimSpace(run(t, "keyring", "rotate"))
	require.NotEmpty(t, first)

	second := strings.TrimSpace(run(t, "keyring", "rotate"))
	assert.NotEqual(t, first, second)

	listed := run(t, "keyring", "list")
	assert.Contains(t, listed, "ring: cli-test")
	assert.Contains(t, listed, first)
	assert.Contains(t, listed, second)
	assert.NotContains(t, listed, "key:")

	assert.Equal(t, "pruned 0 expired entries\n", run(t, "keyring", "prune"))
}

func TestEnabledProviders(t *testing.T) {
	out := enabledProviders([]domain.IdentityProvider{
		{Name: "corp", IsEnabled: true},
		{Name: "legacy"},
		{Name: "google", IsEnabled: true},
	})

	require.Len(t, out, 2)
	assert.Equal(t, "corp", out[0].Name)
	assert.Equal(t, "google", out[1].Name)
}
