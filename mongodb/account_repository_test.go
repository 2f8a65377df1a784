package mongodb_test

import (
	"context"
	"testing"

	"github.com/pilab-dev/ssobridge/domain"
	"github.com/pilab-dev/ssobridge/internal/auth"
	"github.com/pilab-dev/ssobridge/mongodb"
	"github.com/pilab-dev/ssobridge/mongodb/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAccountRepository_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "test_ssobridge_accounts")
	defer cleanup()

	ctx := context.Background()
	repo, err := mongodb.NewAccountRepository(ctx, db, auth.NewBcryptPasswordHasher(bcrypt.MinCost))
	require.NoError(t, err)

	var created *domain.Account

	t.Run("Create", func(t *testing.T) {
		created, err = repo.Create(ctx, &domain.Account{
			Username: "alice",
			Email:    "alice@example.com",
			Active:   true,
		}, "Passw0rd!")
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.NotEqual(t, "Passw0rd!", created.PasswordHash)
		assert.False(t, created.CreatedAt.IsZero())
	})

	t.Run("Create_DuplicateIgnoresCase", func(t *testing.T) {
		_, err := repo.Create(ctx, &domain.Account{Username: "ALICE", Active: true}, "other")
		assert.ErrorIs(t, err, domain.ErrUsernameTaken)
	})

	t.Run("FindByUsername", func(t *testing.T) {
		acc, err := repo.FindByUsername(ctx, "Alice")
		require.NoError(t, err)
		require.NotNil(t, acc)
		assert.Equal(t, created.ID, acc.ID)

		missing, err := repo.FindByUsername(ctx, "bob")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("FindByID", func(t *testing.T) {
		acc, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, acc)
		assert.Equal(t, "alice@example.com", acc.Email)

		missing, err := repo.FindByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("CheckPassword", func(t *testing.T) {
		ok, err := repo.CheckPassword(ctx, created, "Passw0rd!")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.CheckPassword(ctx, created, "wrong")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
