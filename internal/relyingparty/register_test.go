package relyingparty_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pilab-dev/ssobridge/domain"
	serrors "github.com/pilab-dev/ssobridge/errors"
	"github.com/pilab-dev/ssobridge/internal/audit"
	"github.com/pilab-dev/ssobridge/internal/relyingparty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func validRegistration() relyingparty.RegisterInput {
	return relyingparty.RegisterInput{
		Username:        "dave",
		FullName:        "Dave Example",
		Email:           "dave@example.com",
		Phone:           "+380501234567",
		Password:        "secret-pw",
		ConfirmPassword: "secret-pw",
	}
}

func TestRegister_CreatesActiveAccount(t *testing.T) {
	h := newHarness(t)

	h.accounts.EXPECT().Create(gomock.Any(), gomock.Any(), "secret-pw").
		DoAndReturn(func(_ context.Context, acc *domain.Account, _ string) (*domain.Account, error) {
			assert.Equal(t, "dave", acc.Username)
			assert.Equal(t, "+380501234567", acc.Phone)
			assert.True(t, acc.Active)
			created := *acc
			created.ID = "100"
			return &created, nil
		})

	acc, err := h.svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)
	assert.Equal(t, "100", acc.ID)

	events := h.audit.Named(audit.UserRegistered)
	require.Len(t, events, 1)
	assert.Equal(t, "100", events[0].Subject)
}

func TestRegister_FieldValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*relyingparty.RegisterInput)
		field  string
	}{
		{"username required", func(in *relyingparty.RegisterInput) { in.Username = "" }, "username"},
		{"username too long", func(in *relyingparty.RegisterInput) { in.Username = strings.Repeat("a", 51) }, "username"},
		{"full name too long", func(in *relyingparty.RegisterInput) { in.FullName = strings.Repeat("a", 501) }, "fullname"},
		{"bad email", func(in *relyingparty.RegisterInput) { in.Email = "not-an-email" }, "email"},
		{"foreign phone", func(in *relyingparty.RegisterInput) { in.Phone = "+14155550100" }, "phone"},
		{"short phone", func(in *relyingparty.RegisterInput) { in.Phone = "+38050123" }, "phone"},
		{"short password", func(in *relyingparty.RegisterInput) { in.Password, in.ConfirmPassword = "short", "short" }, "password"},
		{"long password", func(in *relyingparty.RegisterInput) {
			in.Password = strings.Repeat("p", 17)
			in.ConfirmPassword = in.Password
		}, "password"},
		{"confirmation differs", func(in *relyingparty.RegisterInput) { in.ConfirmPassword = "other-pw1" }, "confirmPassword"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			in := validRegistration()
			tt.mutate(&in)

			_, err := h.svc.Register(context.Background(), in)

			var verr *serrors.ValidationErrors
			require.ErrorAs(t, err, &verr)
			_, ok := verr.Message(tt.field)
			assert.True(t, ok, "expected a message for %s, got %v", tt.field, verr)
		})
	}
}

func TestRegister_OptionalFieldsMayBeEmpty(t *testing.T) {
	h := newHarness(t)
	h.accounts.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, acc *domain.Account, _ string) (*domain.Account, error) {
			return acc, nil
		})

	in := validRegistration()
	in.Email, in.Phone, in.FullName = "", "", ""

	_, err := h.svc.Register(context.Background(), in)
	require.NoError(t, err)
}

func TestRegister_UsernameTaken(t *testing.T) {
	h := newHarness(t)
	h.accounts.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, domain.ErrUsernameTaken)

	_, err := h.svc.Register(context.Background(), validRegistration())

	var verr *serrors.ValidationErrors
	require.ErrorAs(t, err, &verr)
	msg, ok := verr.Message("username")
	assert.True(t, ok)
	assert.Equal(t, "is already taken", msg)
	assert.Empty(t, h.audit.Named(audit.UserRegistered))
}

func TestRegister_StoreError(t *testing.T) {
	h := newHarness(t)
	h.accounts.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

	_, err := h.svc.Register(context.Background(), validRegistration())
	require.Error(t, err)

	var verr *serrors.ValidationErrors
	assert.False(t, errors.As(err, &verr))
}
