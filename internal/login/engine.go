// Package login decides what the login page offers and what happens after a
// submission. It is free of HTTP: handlers pass the pending authorization
// request (nil when there is none) and the visitor input, and render the
// returned View or Outcome.
package login

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pilab-dev/ssobridge/domain"
	serrors "github.com/pilab-dev/ssobridge/errors"
	"github.com/pilab-dev/ssobridge/internal/audit"
	"github.com/pilab-dev/ssobridge/internal/claims"
	"github.com/pilab-dev/ssobridge/internal/metrics"
	"github.com/pilab-dev/ssobridge/internal/oidcflow"
	"github.com/pilab-dev/ssobridge/internal/session"
	"github.com/pilab-dev/ssobridge/services"
	"github.com/rs/zerolog/log"
)

// State of a login visit.
type State string

const (
	Presenting          State = "presenting"
	LocalAuthenticating State = "local_authenticating"
	ExternalRedirecting State = "external_redirecting"
	Cancelled           State = "cancelled"
	Resolved            State = "resolved"
)

// ButtonLogin is the submit button value that means "sign in"; any other
// value cancels.
const ButtonLogin = "login"

// InvalidCredentialsMessage is shown for every credential failure.
const InvalidCredentialsMessage = "Invalid username or password"

const serviceName = "idp"

// Options are the global login toggles.
type Options struct {
	AllowLocalLogin         bool
	AllowRememberLogin      bool
	RememberMeLoginDuration time.Duration
	SessionLifetime         time.Duration
	// ChallengePath is the external login entry point.
	ChallengePath string
}

// DefaultOptions mirror a typical deployment.
func DefaultOptions() Options {
	return Options{
		AllowLocalLogin:         true,
		AllowRememberLogin:      true,
		RememberMeLoginDuration: 30 * 24 * time.Hour,
		SessionLifetime:         8 * time.Hour,
		ChallengePath:           "/external/challenge",
	}
}

// Authorizer is the part of the authorization service the engine needs.
// *services.AuthorizationService implements it.
type Authorizer interface {
	Client(clientID string) (*domain.ClientRegistration, error)
	Deny(ctx context.Context, requestID, reason string) (*services.Denial, error)
}

// ExternalProvider is one entry of the provider picker.
type ExternalProvider struct {
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	ChallengeURL string `json:"challenge_url"`
}

// View is what the login page shows.
type View struct {
	State              State              `json:"state"`
	EnableLocalLogin   bool               `json:"enable_local_login"`
	AllowRememberLogin bool               `json:"allow_remember_login"`
	Username           string             `json:"username,omitempty"`
	ReturnURL          string             `json:"return_url,omitempty"`
	ExternalProviders  []ExternalProvider `json:"external_providers"`
	// ChallengeURL is set when the visitor goes straight to one provider.
	ChallengeURL string `json:"challenge_url,omitempty"`
	Message      string `json:"message,omitempty"`
}

// Input is a login form submission.
type Input struct {
	Username      string `form:"username"      validate:"required"`
	Password      string `form:"password"      validate:"required"`
	RememberLogin bool   `form:"rememberLogin"`
	Button        string `form:"button"`
	ReturnURL     string `form:"returnUrl"`
}

// Outcome is the result of a submission. Exactly one of RedirectURL or View
// is meaningful: a recoverable failure re-presents the view with Problem set.
type Outcome struct {
	State       State
	RedirectURL string
	// Interstitial asks the caller to render the native client loading page
	// pointing at RedirectURL instead of a plain redirect.
	Interstitial bool
	Ticket       *session.Ticket
	View         *View
	Problem      error
}

// Engine runs the login decisions.
type Engine struct {
	opts      Options
	accounts  domain.AccountStore
	mapper    *claims.Mapper
	authz     Authorizer
	providers []domain.IdentityProvider
	audit     audit.Sink
	validate  *validator.Validate
	now       func() time.Time
}

// NewEngine builds an engine. providers is the registered external provider
// list; the engine never changes it.
func NewEngine(
	opts Options,
	accounts domain.AccountStore,
	mapper *claims.Mapper,
	authz Authorizer,
	providers []domain.IdentityProvider,
	sink audit.Sink,
) *Engine {
	defaults := DefaultOptions()
	if opts.RememberMeLoginDuration <= 0 {
		opts.RememberMeLoginDuration = defaults.RememberMeLoginDuration
	}
	if opts.SessionLifetime <= 0 {
		opts.SessionLifetime = defaults.SessionLifetime
	}
	if opts.ChallengePath == "" {
		opts.ChallengePath = defaults.ChallengePath
	}
	if sink == nil {
		sink = audit.Discard
	}

	cp := make([]domain.IdentityProvider, 0, len(providers))
	for i := range providers {
		cp = append(cp, *providers[i].Clone())
	}

	return &Engine{
		opts:      opts,
		accounts:  accounts,
		mapper:    mapper,
		authz:     authz,
		providers: cp,
		audit:     sink,
		validate:  newValidator(),
		now:       time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("form"); name != "" {
			return name
		}
		return f.Name
	})

	return v
}

// SetClock overrides the engine's clock.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Present builds the login view for req and returnURL.
func (e *Engine) Present(_ context.Context, req *oidcflow.AuthorizationRequest, returnURL string) (*View, error) {
	reg, err := e.clientFor(req)
	if err != nil {
		return nil, err
	}

	view := &View{
		State:              Presenting,
		AllowRememberLogin: e.opts.AllowRememberLogin,
		ReturnURL:          returnURL,
		ExternalProviders:  []ExternalProvider{},
	}
	if req != nil {
		view.Username = req.LoginHint
	}

	if forced := e.forcedProvider(req, reg); forced != "" {
		if forced == domain.LocalIdentityProvider {
			view.EnableLocalLogin = true
			return view, nil
		}

		p := e.externalProvider(forced, returnURL)
		view.ExternalProviders = []ExternalProvider{p}
		view.State = ExternalRedirecting
		view.ChallengeURL = p.ChallengeURL
		return view, nil
	}

	view.EnableLocalLogin = e.localLoginEnabled(reg)
	for _, p := range e.providers {
		if !p.IsEnabled || p.DisplayName == "" {
			continue
		}
		if reg != nil && !reg.AllowsIdentityProvider(p.Name) {
			continue
		}
		view.ExternalProviders = append(view.ExternalProviders, e.externalProvider(p.Name, returnURL))
	}

	if !view.EnableLocalLogin && len(view.ExternalProviders) == 1 {
		view.State = ExternalRedirecting
		view.ChallengeURL = view.ExternalProviders[0].ChallengeURL
	}

	return view, nil
}

// Submit handles a login form post.
func (e *Engine) Submit(ctx context.Context, req *oidcflow.AuthorizationRequest, in Input) (*Outcome, error) {
	if in.Button != ButtonLogin {
		return e.cancel(ctx, req, in)
	}

	reg, err := e.clientFor(req)
	if err != nil {
		return nil, err
	}

	if err := e.validate.Struct(in); err != nil {
		return e.represent(ctx, req, in, serrors.FromValidator(err), "")
	}

	clientID := ""
	if reg != nil {
		clientID = reg.ID
	}

	if !e.localLoginAllowed(req, reg) {
		return e.fail(ctx, req, in, clientID, "local login disabled")
	}

	acc, err := e.accounts.FindByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if acc == nil {
		return e.fail(ctx, req, in, clientID, "unknown username")
	}

	ok, err := e.accounts.CheckPassword(ctx, acc, in.Password)
	if err != nil {
		return nil, fmt.Errorf("check password: %w", err)
	}
	if !ok {
		return e.fail(ctx, req, in, clientID, "invalid password")
	}
	if !e.mapper.IsActive(ctx, acc.ID) {
		return e.fail(ctx, req, in, clientID, "inactive account")
	}

	redirect, interstitial, err := e.successTarget(req, in.ReturnURL)
	if err != nil {
		return nil, err
	}

	assertion, err := e.mapper.IssueAssertion(ctx, acc.ID)
	if err != nil {
		return nil, err
	}

	persistent := in.RememberLogin && e.opts.AllowRememberLogin
	lifetime := e.opts.SessionLifetime
	if persistent {
		lifetime = e.opts.RememberMeLoginDuration
	}
	ticket := session.NewTicket(assertion, session.MethodPassword, domain.LocalIdentityProvider, persistent, lifetime, e.now())

	metrics.LoginSuccessTotal.WithLabelValues(serviceName, session.MethodPassword).Inc()
	e.audit.Raise(ctx, audit.Event{
		Type:        audit.Success,
		Name:        audit.UserLoginSuccess,
		Subject:     acc.ID,
		Username:    acc.Username,
		DisplayName: acc.DisplayName(),
		ClientID:    clientID,
		Service:     serviceName,
	})

	return &Outcome{
		State:        Resolved,
		RedirectURL:  redirect,
		Interstitial: interstitial,
		Ticket:       ticket,
	}, nil
}

func (e *Engine) cancel(ctx context.Context, req *oidcflow.AuthorizationRequest, in Input) (*Outcome, error) {
	if req == nil {
		return &Outcome{State: Cancelled, RedirectURL: "/"}, nil
	}

	denial, err := e.authz.Deny(ctx, req.ID, serrors.AccessDenied)
	if err != nil {
		return nil, err
	}

	e.audit.Raise(ctx, audit.Event{
		Type:     audit.Information,
		Name:     audit.UserLoginCancelled,
		ClientID: denial.ClientID,
		Reason:   serrors.AccessDenied,
		Service:  serviceName,
	})

	return &Outcome{
		State:        Cancelled,
		RedirectURL:  in.ReturnURL,
		Interstitial: denial.IsNativeClient,
	}, nil
}

func (e *Engine) fail(ctx context.Context, req *oidcflow.AuthorizationRequest, in Input, clientID, reason string) (*Outcome, error) {
	log.Debug().Str("reason", reason).Str("client_id", clientID).Msg("Local login failed")

	metrics.LoginFailureTotal.WithLabelValues(serviceName, reason).Inc()
	e.audit.Raise(ctx, audit.Event{
		Type:     audit.Failure,
		Name:     audit.UserLoginFailure,
		Username: in.Username,
		ClientID: clientID,
		Reason:   InvalidCredentialsMessage,
		Service:  serviceName,
	})

	return e.represent(ctx, req, in, serrors.ErrInvalidCredentials, InvalidCredentialsMessage)
}

func (e *Engine) represent(ctx context.Context, req *oidcflow.AuthorizationRequest, in Input, problem error, message string) (*Outcome, error) {
	view, err := e.Present(ctx, req, in.ReturnURL)
	if err != nil {
		return nil, err
	}

	view.Username = in.Username
	view.Message = message
	if message == "" {
		view.Message = problem.Error()
	}

	return &Outcome{State: Presenting, View: view, Problem: problem}, nil
}

// successTarget decides where a signed in visitor goes. It runs before the
// ticket is built so an invalid target never yields a session.
func (e *Engine) successTarget(req *oidcflow.AuthorizationRequest, returnURL string) (string, bool, error) {
	if req != nil {
		return returnURL, req.IsNativeClient, nil
	}
	if returnURL == "" {
		return "/", false, nil
	}
	if local, ok := LocalPath(returnURL); ok {
		return local, false, nil
	}

	return "", false, serrors.ErrInvalidReturnTarget
}

func (e *Engine) clientFor(req *oidcflow.AuthorizationRequest) (*domain.ClientRegistration, error) {
	if req == nil {
		return nil, nil
	}

	return e.authz.Client(req.ClientID)
}

// forcedProvider returns the provider named by the request when it is
// registered and the client may use it, "local" included.
func (e *Engine) forcedProvider(req *oidcflow.AuthorizationRequest, reg *domain.ClientRegistration) string {
	if req == nil || req.IdentityProvider == "" {
		return ""
	}
	if req.IdentityProvider == domain.LocalIdentityProvider {
		if !e.localLoginEnabled(reg) {
			return ""
		}
		return domain.LocalIdentityProvider
	}
	if reg != nil && !reg.AllowsIdentityProvider(req.IdentityProvider) {
		return ""
	}
	for _, p := range e.providers {
		if p.Name == req.IdentityProvider && p.IsEnabled {
			return p.Name
		}
	}

	return ""
}

// localLoginAllowed applies the forced provider on top of the toggles.
func (e *Engine) localLoginAllowed(req *oidcflow.AuthorizationRequest, reg *domain.ClientRegistration) bool {
	switch e.forcedProvider(req, reg) {
	case domain.LocalIdentityProvider:
		return true
	case "":
		return e.localLoginEnabled(reg)
	default:
		return false
	}
}

func (e *Engine) localLoginEnabled(reg *domain.ClientRegistration) bool {
	if reg == nil {
		return e.opts.AllowLocalLogin
	}

	return reg.LocalLoginEnabled && e.opts.AllowLocalLogin
}

func (e *Engine) externalProvider(name, returnURL string) ExternalProvider {
	p := ExternalProvider{Name: name, DisplayName: name}
	for _, reg := range e.providers {
		if reg.Name == name && reg.DisplayName != "" {
			p.DisplayName = reg.DisplayName
		}
	}

	p.ChallengeURL = e.opts.ChallengePath + "?scheme=" + url.QueryEscape(name) + "&returnUrl=" + url.QueryEscape(returnURL)

	return p
}
