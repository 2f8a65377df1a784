// Package relyingparty signs visitors into a service that trusts the
// authorization service. Visitors either sign in with a local password or are
// sent to the authorization service and come back with a verified assertion.
// Either way the result is a session ticket for an existing local account.
package relyingparty

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/ssobridge/domain"
	serrors "github.com/pilab-dev/ssobridge/errors"
	"github.com/pilab-dev/ssobridge/internal/audit"
	"github.com/pilab-dev/ssobridge/internal/claims"
	"github.com/pilab-dev/ssobridge/internal/login"
	"github.com/pilab-dev/ssobridge/internal/metrics"
	"github.com/pilab-dev/ssobridge/internal/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const serviceName = "rp"

// DefaultReturnURL is where a challenge without a return URL ends up.
const DefaultReturnURL = "/profile"

// Config holds the relying party's session and exchange settings.
type Config struct {
	SessionLifetime         time.Duration
	RememberMeLoginDuration time.Duration
	ExchangeTimeout         time.Duration
	// PostLogoutRedirectURI is sent to the authorization service on logout.
	PostLogoutRedirectURI string
}

// Challenge is an outbound redirect to the authorization service.
type Challenge struct {
	RedirectURL string
	Correlation *session.Correlation
}

// CallbackInput is what the authorization service sends back.
type CallbackInput struct {
	Code             string `form:"code"`
	State            string `form:"state"`
	Error            string `form:"error"`
	ErrorDescription string `form:"error_description"`
}

// Service runs the relying party flows.
type Service struct {
	cfg       Config
	exchanger Exchanger
	accounts  domain.AccountStore
	mapper    *claims.Mapper
	audit     audit.Sink
	validate  *registrationValidator
	now       func() time.Time
}

func NewService(cfg Config, exchanger Exchanger, accounts domain.AccountStore, mapper *claims.Mapper, sink audit.Sink) *Service {
	if cfg.SessionLifetime <= 0 {
		cfg.SessionLifetime = 8 * time.Hour
	}
	if cfg.RememberMeLoginDuration <= 0 {
		cfg.RememberMeLoginDuration = 30 * 24 * time.Hour
	}
	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = 10 * time.Second
	}
	if sink == nil {
		sink = audit.Discard
	}

	return &Service{
		cfg:       cfg,
		exchanger: exchanger,
		accounts:  accounts,
		mapper:    mapper,
		audit:     sink,
		validate:  newRegistrationValidator(),
		now:       time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Challenge starts the delegated path. provider, when set, asks the
// authorization service to go straight to that identity provider.
func (s *Service) Challenge(ctx context.Context, provider, returnURL string) (*Challenge, error) {
	target := DefaultReturnURL
	if returnURL != "" {
		local, ok := login.LocalPath(returnURL)
		if !ok {
			return nil, serrors.ErrInvalidReturnTarget
		}
		target = local
	}

	corr, err := session.NewCorrelation(provider, target, s.now())
	if err != nil {
		return nil, err
	}

	var opts []oauth2.AuthCodeOption
	if provider != "" {
		opts = append(opts, oauth2.SetAuthURLParam("acr_values", "idp:"+provider))
	}

	redirect, err := s.exchanger.AuthCodeURL(ctx, corr.State, corr.Nonce, corr.Verifier, opts...)
	if err != nil {
		return nil, err
	}

	return &Challenge{RedirectURL: redirect, Correlation: corr}, nil
}

// HandleCallback completes the delegated path. corr is nil when the
// correlation cookie was missing, tampered or expired. It returns the ticket
// and the local URL to continue at.
func (s *Service) HandleCallback(ctx context.Context, in CallbackInput, corr *session.Correlation) (*session.Ticket, string, error) {
	if corr == nil {
		return nil, "", s.remoteFailure(ctx, audit.Error, fmt.Errorf("%w: %w", serrors.ErrRemoteIdentity, session.ErrCorrelation))
	}

	if in.Error != "" {
		if in.Error == serrors.AccessDenied {
			return nil, "", s.remoteFailure(ctx, audit.Information, serrors.ErrAccessDenied)
		}
		return nil, "", s.remoteFailure(ctx, audit.Error, fmt.Errorf("%w: %s %s", serrors.ErrRemoteIdentity, in.Error, in.ErrorDescription))
	}

	if in.State == "" || in.State != corr.State {
		return nil, "", s.remoteFailure(ctx, audit.Error, fmt.Errorf("%w: state mismatch", serrors.ErrRemoteIdentity))
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	defer cancel()

	asserted, err := s.exchanger.Exchange(exchangeCtx, in.Code, corr.Verifier, corr.Nonce)
	if err != nil {
		if !errors.Is(err, serrors.ErrExchangeTimeout) && errors.Is(exchangeCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", serrors.ErrExchangeTimeout, err)
		}
		return nil, "", s.remoteFailure(ctx, audit.Error, err)
	}

	username := asserted.Value(claims.Name)
	if username == "" {
		username = asserted.Value(claims.PreferredUsername)
	}
	if username == "" {
		return nil, "", s.remoteFailure(ctx, audit.Error, fmt.Errorf("%w: assertion carries no username", serrors.ErrRemoteIdentity))
	}

	acc, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		return nil, "", fmt.Errorf("find account: %w", err)
	}
	if acc == nil {
		s.audit.Raise(ctx, audit.Event{
			Type:     audit.Failure,
			Name:     audit.ExternalLoginFailure,
			Subject:  asserted.Value(claims.Subject),
			Username: username,
			Reason:   serrors.ErrAccountNotFound.Error(),
			Service:  serviceName,
		})
		metrics.LoginFailureTotal.WithLabelValues(serviceName, "account not found").Inc()
		return nil, "", serrors.ErrAccountNotFound
	}

	ticket, err := s.ticketFor(ctx, acc, session.MethodExternal, "sso", false)
	if err != nil {
		return nil, "", err
	}

	return ticket, corr.ReturnURL, nil
}

// LocalLogin checks a password against the account store directly.
func (s *Service) LocalLogin(ctx context.Context, username, password string, remember bool) (*session.Ticket, error) {
	acc, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}

	ok := false
	if acc != nil {
		if ok, err = s.accounts.CheckPassword(ctx, acc, password); err != nil {
			return nil, fmt.Errorf("check password: %w", err)
		}
	}
	if !ok || !s.mapper.IsActive(ctx, acc.ID) {
		metrics.LoginFailureTotal.WithLabelValues(serviceName, "invalid credentials").Inc()
		s.audit.Raise(ctx, audit.Event{
			Type:     audit.Failure,
			Name:     audit.UserLoginFailure,
			Username: username,
			Reason:   login.InvalidCredentialsMessage,
			Service:  serviceName,
		})
		return nil, serrors.ErrInvalidCredentials
	}

	return s.ticketFor(ctx, acc, session.MethodPassword, domain.LocalIdentityProvider, remember)
}

// LogoutURL returns where a visitor goes after the local cookie is cleared:
// the authorization service's end session endpoint when it has one, else "/".
func (s *Service) LogoutURL(ctx context.Context) string {
	u, err := s.exchanger.EndSessionURL(ctx, s.cfg.PostLogoutRedirectURI, "")
	if err != nil {
		log.Warn().Err(err).Msg("Could not resolve end session endpoint")
		return "/"
	}
	if u == "" {
		return "/"
	}

	return u
}

// RecordLogout raises the logout audit event for t.
func (s *Service) RecordLogout(ctx context.Context, t *session.Ticket) {
	if t == nil {
		return
	}
	s.audit.Raise(ctx, audit.Event{
		Type:        audit.Information,
		Name:        audit.UserLogout,
		Subject:     t.Subject,
		DisplayName: t.DisplayName,
		Service:     serviceName,
	})
}

func (s *Service) ticketFor(ctx context.Context, acc *domain.Account, method, provider string, remember bool) (*session.Ticket, error) {
	assertion, err := s.mapper.IssueAssertion(ctx, acc.ID)
	if err != nil {
		return nil, err
	}

	lifetime := s.cfg.SessionLifetime
	if remember {
		lifetime = s.cfg.RememberMeLoginDuration
	}
	ticket := session.NewTicket(assertion, method, provider, remember, lifetime, s.now())

	metrics.LoginSuccessTotal.WithLabelValues(serviceName, method).Inc()
	s.audit.Raise(ctx, audit.Event{
		Type:        audit.Success,
		Name:        audit.UserLoginSuccess,
		Subject:     acc.ID,
		Username:    acc.Username,
		DisplayName: acc.DisplayName(),
		Service:     serviceName,
	})

	return ticket, nil
}

func (s *Service) remoteFailure(ctx context.Context, typ audit.Type, err error) error {
	log.Warn().Err(err).Msg("Delegated login failed")

	metrics.LoginFailureTotal.WithLabelValues(serviceName, "remote identity").Inc()
	s.audit.Raise(ctx, audit.Event{
		Type:    typ,
		Name:    audit.ExternalLoginFailure,
		Reason:  err.Error(),
		Service: serviceName,
	})

	return err
}
