package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/ssobridge/domain"
	serrors "github.com/pilab-dev/ssobridge/errors"
	"github.com/pilab-dev/ssobridge/internal/audit"
	"github.com/pilab-dev/ssobridge/internal/claims"
	"github.com/pilab-dev/ssobridge/internal/federation"
	"github.com/pilab-dev/ssobridge/internal/metrics"
	"github.com/pilab-dev/ssobridge/internal/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Federator is the upstream provider side of an external login.
// *federation.Service implements it.
type Federator interface {
	GetAuthorizationURL(providerName, state string, opts ...oauth2.AuthCodeOption) (string, error)
	HandleCallback(ctx context.Context, providerName, queryState, sessionState, code string, opts ...oauth2.AuthCodeOption) (*federation.ExternalUserInfo, error)
}

// ExternalCallback carries what the upstream provider sent back.
type ExternalCallback struct {
	State            string `form:"state"`
	Code             string `form:"code"`
	Error            string `form:"error"`
	ErrorDescription string `form:"error_description"`
}

// ExternalLogin signs visitors in through an upstream provider. The upstream
// identity must match an existing local account.
type ExternalLogin struct {
	opts     Options
	fed      Federator
	accounts domain.AccountStore
	mapper   *claims.Mapper
	audit    audit.Sink
	timeout  time.Duration
	now      func() time.Time
}

func NewExternalLogin(
	opts Options,
	fed Federator,
	accounts domain.AccountStore,
	mapper *claims.Mapper,
	exchangeTimeout time.Duration,
	sink audit.Sink,
) *ExternalLogin {
	if opts.SessionLifetime <= 0 {
		opts.SessionLifetime = DefaultOptions().SessionLifetime
	}
	if exchangeTimeout <= 0 {
		exchangeTimeout = 10 * time.Second
	}
	if sink == nil {
		sink = audit.Discard
	}

	return &ExternalLogin{
		opts:     opts,
		fed:      fed,
		accounts: accounts,
		mapper:   mapper,
		audit:    sink,
		timeout:  exchangeTimeout,
		now:      time.Now,
	}
}

func (x *ExternalLogin) SetClock(now func() time.Time) { x.now = now }

// Challenge prepares the redirect to provider. The returned correlation must
// be stored by the caller until the provider calls back.
func (x *ExternalLogin) Challenge(_ context.Context, provider, returnURL string) (string, *session.Correlation, error) {
	target := "/"
	if returnURL != "" {
		local, ok := LocalPath(returnURL)
		if !ok {
			return "", nil, serrors.ErrInvalidReturnTarget
		}
		target = local
	}

	corr, err := session.NewCorrelation(provider, target, x.now())
	if err != nil {
		return "", nil, err
	}

	redirect, err := x.fed.GetAuthorizationURL(provider, corr.State, oauth2.S256ChallengeOption(corr.Verifier))
	if err != nil {
		return "", nil, err
	}

	return redirect, corr, nil
}

// Callback completes an external login. corr is nil when the correlation
// cookie was missing or unreadable.
func (x *ExternalLogin) Callback(ctx context.Context, provider string, in ExternalCallback, corr *session.Correlation) (*Outcome, error) {
	if corr == nil || corr.Provider != provider {
		return nil, x.failure(ctx, provider, "", audit.Error, fmt.Errorf("%w: %w", serrors.ErrRemoteIdentity, session.ErrCorrelation))
	}

	if in.Error != "" {
		if in.Error == serrors.AccessDenied {
			return nil, x.failure(ctx, provider, "", audit.Information, serrors.ErrAccessDenied)
		}
		return nil, x.failure(ctx, provider, "", audit.Error, fmt.Errorf("%w: %s %s", serrors.ErrRemoteIdentity, in.Error, in.ErrorDescription))
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	info, err := x.fed.HandleCallback(exchangeCtx, provider, in.State, corr.State, in.Code, oauth2.VerifierOption(corr.Verifier))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(exchangeCtx.Err(), context.DeadlineExceeded) {
			return nil, x.failure(ctx, provider, "", audit.Error, fmt.Errorf("%w: %w", serrors.ErrExchangeTimeout, err))
		}
		return nil, x.failure(ctx, provider, "", audit.Error, fmt.Errorf("%w: %w", serrors.ErrRemoteIdentity, err))
	}

	username := info.LocalUsername()
	if username == "" {
		return nil, x.failure(ctx, provider, "", audit.Error, fmt.Errorf("%w: provider asserted no username", serrors.ErrRemoteIdentity))
	}

	acc, err := x.accounts.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if acc == nil || !x.mapper.IsActive(ctx, acc.ID) {
		return nil, x.failure(ctx, provider, username, audit.Failure, serrors.ErrAccountNotFound)
	}

	assertion, err := x.mapper.IssueAssertion(ctx, acc.ID)
	if err != nil {
		return nil, err
	}
	ticket := session.NewTicket(assertion, session.MethodExternal, provider, false, x.opts.SessionLifetime, x.now())

	metrics.LoginSuccessTotal.WithLabelValues(serviceName, session.MethodExternal).Inc()
	x.audit.Raise(ctx, audit.Event{
		Type:        audit.Success,
		Name:        audit.UserLoginSuccess,
		Subject:     acc.ID,
		Username:    acc.Username,
		DisplayName: acc.DisplayName(),
		Reason:      provider,
		Service:     serviceName,
	})

	return &Outcome{State: Resolved, RedirectURL: corr.ReturnURL, Ticket: ticket}, nil
}

func (x *ExternalLogin) failure(ctx context.Context, provider, username string, typ audit.Type, err error) error {
	log.Warn().Err(err).Str("provider", provider).Msg("External login failed")

	metrics.LoginFailureTotal.WithLabelValues(serviceName, "external").Inc()
	x.audit.Raise(ctx, audit.Event{
		Type:     typ,
		Name:     audit.ExternalLoginFailure,
		Username: username,
		Reason:   err.Error(),
		Service:  serviceName,
	})

	return err
}
