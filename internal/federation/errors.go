package federation

import (
	"errors"
	"fmt"

	serrors "github.com/pilab-dev/ssobridge/errors"
)

var (
	ErrProviderNotFound      = fmt.Errorf("%w: provider not found or not enabled", serrors.ErrUnknownProvider)
	ErrInvalidAuthState      = errors.New("invalid auth state parameter")
	ErrExchangeCodeFailed    = errors.New("failed to exchange authorization code for token")
	ErrFetchUserInfoFailed   = errors.New("failed to fetch user info from provider")
	ErrProviderMisconfigured = errors.New("provider is misconfigured")
)
