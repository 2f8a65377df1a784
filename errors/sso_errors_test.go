package errors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	serrors "github.com/pilab-dev/ssobridge/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid client", serrors.ErrInvalidClient, http.StatusBadRequest},
		{"wrapped invalid return", fmt.Errorf("login: %w", serrors.ErrInvalidReturnTarget), http.StatusBadRequest},
		{"unknown provider", fmt.Errorf("%w: bogus", serrors.ErrUnknownProvider), http.StatusBadRequest},
		{"credentials", serrors.ErrInvalidCredentials, http.StatusUnauthorized},
		{"denied", serrors.ErrAccessDenied, http.StatusForbidden},
		{"remote", serrors.ErrRemoteIdentity, http.StatusBadGateway},
		{"timeout", serrors.ErrExchangeTimeout, http.StatusGatewayTimeout},
		{"not found", serrors.ErrAccountNotFound, http.StatusNotFound},
		{"resolved", serrors.ErrAlreadyResolved, http.StatusConflict},
		{"validation", serrors.NewValidationErrors(map[string]string{"username": "required"}), http.StatusUnprocessableEntity},
		{"oauth client", serrors.NewInvalidClient("bad secret"), http.StatusUnauthorized},
		{"oauth grant", serrors.NewInvalidGrant("used"), http.StatusBadRequest},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serrors.HTTPStatus(tt.err))
		})
	}
}

func TestExchangeTimeoutIsRemoteIdentity(t *testing.T) {
	assert.ErrorIs(t, serrors.ErrExchangeTimeout, serrors.ErrRemoteIdentity)
}

func TestOAuth2Error_RedirectURL(t *testing.T) {
	e := serrors.NewAccessDenied("user cancelled").WithState("xyz")

	got, err := e.RedirectURL("https://rp.example/callback?x=1")
	require.NoError(t, err)
	assert.Equal(t, "https://rp.example/callback?error=access_denied&error_description=user+cancelled&state=xyz&x=1", got)
}

func TestValidationErrors_Ordered(t *testing.T) {
	v := serrors.NewValidationErrors(map[string]string{"password": "required", "email": "invalid"})

	require.Len(t, v.Fields, 2)
	assert.Equal(t, "email", v.Fields[0].Field)
	msg, ok := v.Message("password")
	assert.True(t, ok)
	assert.Equal(t, "required", msg)
	assert.Contains(t, v.Error(), "email: invalid")
}

func TestFromValidator(t *testing.T) {
	type form struct {
		Username string `validate:"required"`
		Password string `validate:"required,min=8"`
	}

	err := serrors.FromValidator(validator.New().Struct(form{Password: "short"}))

	var verr *serrors.ValidationErrors
	require.ErrorAs(t, err, &verr)
	msg, ok := verr.Message("Username")
	assert.True(t, ok)
	assert.Equal(t, "is required", msg)
	msg, _ = verr.Message("Password")
	assert.Equal(t, "must be at least 8 characters", msg)

	plain := errors.New("boom")
	assert.Same(t, plain, serrors.FromValidator(plain))
}
