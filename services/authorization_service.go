// Package services implements the authorization service side of the SSO
// domain: it validates authorize requests, resolves them once the visitor has
// authenticated elsewhere and redeems the resulting artifacts for tokens.
package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pilab-dev/ssobridge/api"
	"github.com/pilab-dev/ssobridge/cache"
	"github.com/pilab-dev/ssobridge/client"
	"github.com/pilab-dev/ssobridge/domain"
	serrors "github.com/pilab-dev/ssobridge/errors"
	"github.com/pilab-dev/ssobridge/internal/audit"
	"github.com/pilab-dev/ssobridge/internal/claims"
	"github.com/pilab-dev/ssobridge/internal/metrics"
	"github.com/pilab-dev/ssobridge/internal/oidcflow"
	"github.com/pilab-dev/ssobridge/internal/session"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/pilab-dev/ssobridge/services")

// Endpoint paths served by the authorization service.
const (
	AuthorizePath         = "/connect/authorize"
	AuthorizeCallbackPath = "/connect/authorize/callback"
	TokenPath             = "/connect/token"
	UserInfoPath          = "/connect/userinfo"
	EndSessionPath        = "/connect/endsession"
	DiscoveryPath         = "/.well-known/openid-configuration"
	JWKSPath              = "/.well-known/openid-configuration/jwks"
)

const (
	serviceName         = "idp"
	grantAuthCode       = "authorization_code"
	acrProviderPrefix   = "idp:"
	tokenTypeBearer     = "Bearer"
	randomTokenByteSize = 32
)

// AuthorizationConfig tunes the authorization service.
type AuthorizationConfig struct {
	Issuer              string
	CodeLifetime        time.Duration
	AccessTokenLifetime time.Duration
	IDTokenLifetime     time.Duration
}

// Artifact is the result of an approved authorization request.
type Artifact struct {
	Code           string
	ClientID       string
	RedirectURL    string // redirect_uri with code and state
	IsNativeClient bool
}

// Denial is the result of a denied authorization request.
type Denial struct {
	ClientID       string
	RedirectURL    string // redirect_uri with error and state
	IsNativeClient bool
}

// TokenRequest carries the token endpoint parameters.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
}

// AuthorizationService never authenticates the visitor itself; it only acts
// on authorization requests once a session ticket exists.
type AuthorizationService struct {
	cfg      AuthorizationConfig
	clients  *client.Registry
	requests *oidcflow.RequestStore
	codes    *oidcflow.CodeStore
	tokens   cache.TokenStore
	keys     *SigningKeyService
	mapper   *claims.Mapper
	audit    audit.Sink
	now      func() time.Time
}

// NewAuthorizationService wires the service. A nil audit sink discards events.
func NewAuthorizationService(
	cfg AuthorizationConfig,
	clients *client.Registry,
	requests *oidcflow.RequestStore,
	codes *oidcflow.CodeStore,
	tokens cache.TokenStore,
	keys *SigningKeyService,
	mapper *claims.Mapper,
	sink audit.Sink,
) *AuthorizationService {
	if sink == nil {
		sink = audit.Discard
	}
	if cfg.CodeLifetime <= 0 {
		cfg.CodeLifetime = 5 * time.Minute
	}
	if cfg.AccessTokenLifetime <= 0 {
		cfg.AccessTokenLifetime = time.Hour
	}
	if cfg.IDTokenLifetime <= 0 {
		cfg.IDTokenLifetime = 5 * time.Minute
	}
	cfg.Issuer = strings.TrimSuffix(cfg.Issuer, "/")

	return &AuthorizationService{
		cfg:      cfg,
		clients:  clients,
		requests: requests,
		codes:    codes,
		tokens:   tokens,
		keys:     keys,
		mapper:   mapper,
		audit:    sink,
		now:      time.Now,
	}
}

// SetClock overrides the service's clock.
func (s *AuthorizationService) SetClock(now func() time.Time) { s.now = now }

// Clients exposes the registry so the login flow can read client options.
func (s *AuthorizationService) Clients() *client.Registry { return s.clients }

// ResolveRequest validates an authorize request and stores it as pending.
//
// The client is validated first: an unknown client or an unregistered redirect
// uri yields a fatal error and nothing is stored. Later protocol failures are
// returned as *errors.OAuth2Error carrying the client's state, to be sent back
// to the redirect uri.
func (s *AuthorizationService) ResolveRequest(ctx context.Context, params url.Values) (*oidcflow.AuthorizationRequest, error) {
	ctx, span := tracer.Start(ctx, "authorization.resolve_request")
	defer span.End()

	clientID := params.Get("client_id")
	span.SetAttributes(attribute.String("client_id", clientID))

	reg, err := s.clients.Get(clientID)
	if err != nil {
		s.audit.Raise(ctx, audit.Event{
			Type:     audit.Error,
			Name:     audit.InvalidClient,
			ClientID: clientID,
			Reason:   "unknown client",
			Service:  serviceName,
		})
		span.SetStatus(codes.Error, "invalid client")
		return nil, err
	}

	redirectURI := params.Get("redirect_uri")
	if err := client.ValidateRedirectURI(reg, redirectURI); err != nil {
		s.audit.Raise(ctx, audit.Event{
			Type:     audit.Error,
			Name:     audit.InvalidClient,
			ClientID: clientID,
			Reason:   "redirect uri not registered",
			Service:  serviceName,
		})
		span.SetStatus(codes.Error, "invalid redirect")
		return nil, err
	}

	state := params.Get("state")
	reject := func(oerr *serrors.OAuth2Error) error {
		s.audit.Raise(ctx, audit.Event{
			Type:     audit.Error,
			Name:     audit.InvalidAuthorizeRequest,
			ClientID: clientID,
			Reason:   oerr.Code + ": " + oerr.Description,
			Service:  serviceName,
		})
		span.SetStatus(codes.Error, oerr.Code)
		return oerr.WithState(state)
	}

	if params.Get("response_type") != "code" {
		return nil, reject(serrors.NewUnsupportedResponseType())
	}

	scopes := strings.Fields(params.Get("scope"))
	if err := client.ValidateScopes(reg, scopes); err != nil {
		var oerr *serrors.OAuth2Error
		if errors.As(err, &oerr) {
			return nil, reject(oerr)
		}
		return nil, err
	}

	challenge := params.Get("code_challenge")
	method := params.Get("code_challenge_method")
	if challenge != "" {
		if method == "" {
			method = PKCEMethodPlain
		}
		if !SupportedPKCEMethod(method) {
			return nil, reject(serrors.NewInvalidPKCE("unsupported code_challenge_method"))
		}
	} else if reg.RequirePKCE {
		return nil, reject(serrors.NewInvalidPKCE("code_challenge is required for this client"))
	}

	req, err := s.requests.Store(&oidcflow.AuthorizationRequest{
		ClientID:            reg.ID,
		RedirectURI:         redirectURI,
		Scopes:              scopes,
		State:               state,
		Nonce:               params.Get("nonce"),
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		LoginHint:           params.Get("login_hint"),
		IdentityProvider:    providerFromAcrValues(params.Get("acr_values")),
		IsNativeClient:      reg.IsNativeClient,
	})
	if err != nil {
		return nil, fmt.Errorf("store authorization request: %w", err)
	}

	log.Debug().Str("request_id", req.ID).Str("client_id", req.ClientID).Msg("Authorization request stored")

	return req, nil
}

func providerFromAcrValues(acr string) string {
	for _, v := range strings.Fields(acr) {
		if p, ok := strings.CutPrefix(v, acrProviderPrefix); ok && p != "" {
			return p
		}
	}

	return ""
}

// ReturnURL is where the login flow sends the visitor back to once a session
// exists for req.
func ReturnURL(req *oidcflow.AuthorizationRequest) string {
	return AuthorizeCallbackPath + "?request_id=" + url.QueryEscape(req.ID)
}

// RequestFromReturnURL returns the pending request a login return url points
// at, or nil when it does not name one.
func (s *AuthorizationService) RequestFromReturnURL(_ context.Context, returnURL string) *oidcflow.AuthorizationRequest {
	if returnURL == "" {
		return nil
	}

	u, err := url.Parse(returnURL)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path != AuthorizeCallbackPath {
		return nil
	}

	req, err := s.requests.Get(u.Query().Get("request_id"))
	if err != nil || !req.Pending() {
		return nil
	}

	return req
}

// PendingRequest returns the request with id while it is still pending.
func (s *AuthorizationService) PendingRequest(_ context.Context, id string) (*oidcflow.AuthorizationRequest, error) {
	req, err := s.requests.Get(id)
	if err != nil {
		return nil, err
	}
	if !req.Pending() {
		return nil, serrors.ErrAlreadyResolved
	}

	return req, nil
}

// ErrLoginRequired means the authorize callback was reached without a session.
var ErrLoginRequired = errors.New("login required")

// ErrSessionNotAccepted means the visitor's session was established by a
// method the client does not allow. It matches ErrLoginRequired.
var ErrSessionNotAccepted = fmt.Errorf("%w: session method not allowed for this client", ErrLoginRequired)

// TicketAccepted reports whether a session established by ticket may
// complete req: local sessions need local login on the client, external ones
// a provider the client allows. A provider forced through acr_values must
// match as well.
func TicketAccepted(reg *domain.ClientRegistration, req *oidcflow.AuthorizationRequest, ticket *session.Ticket) bool {
	if ticket == nil {
		return false
	}

	provider := ticket.IdentityProvider
	if provider == "" {
		provider = domain.LocalIdentityProvider
	}

	if req != nil && req.IdentityProvider != "" && req.IdentityProvider != provider {
		return false
	}

	if provider == domain.LocalIdentityProvider {
		return reg.LocalLoginEnabled
	}

	return reg.AllowsIdentityProvider(provider)
}

// AcceptsTicket applies TicketAccepted for the client that sent req.
func (s *AuthorizationService) AcceptsTicket(req *oidcflow.AuthorizationRequest, ticket *session.Ticket) bool {
	reg, err := s.clients.Get(req.ClientID)
	if err != nil {
		return false
	}

	return TicketAccepted(reg, req, ticket)
}

// CallbackResult tells the authorize callback where to send the visitor.
type CallbackResult struct {
	RedirectURL    string
	IsNativeClient bool
	Denied         bool
}

// Callback completes a request after the login flow returned to the authorize
// callback. A pending request is approved for ticket; a request the visitor
// cancelled is answered with the access_denied redirect. Without a ticket a
// pending request yields ErrLoginRequired.
func (s *AuthorizationService) Callback(ctx context.Context, requestID string, ticket *session.Ticket) (*CallbackResult, error) {
	req, err := s.requests.Get(requestID)
	if err != nil {
		return nil, err
	}

	switch req.Status {
	case oidcflow.StatusDenied:
		redirect, err := (&serrors.OAuth2Error{Code: serrors.AccessDenied, State: req.State}).RedirectURL(req.RedirectURI)
		if err != nil {
			return nil, err
		}
		return &CallbackResult{RedirectURL: redirect, IsNativeClient: req.IsNativeClient, Denied: true}, nil
	case oidcflow.StatusPending:
		if ticket == nil || !s.AcceptsTicket(req, ticket) {
			return nil, ErrLoginRequired
		}
		artifact, err := s.Approve(ctx, requestID, ticket)
		if err != nil {
			return nil, err
		}
		return &CallbackResult{RedirectURL: artifact.RedirectURL, IsNativeClient: artifact.IsNativeClient}, nil
	default:
		return nil, serrors.ErrAlreadyResolved
	}
}

// Approve resolves the request for the ticket's subject and issues a one time
// authorization code. A request can be resolved only once.
func (s *AuthorizationService) Approve(ctx context.Context, requestID string, ticket *session.Ticket) (*Artifact, error) {
	ctx, span := tracer.Start(ctx, "authorization.approve")
	defer span.End()

	if ticket == nil || ticket.Subject == "" {
		return nil, serrors.ErrAccessDenied
	}

	pending, err := s.requests.Get(requestID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !s.AcceptsTicket(pending, ticket) {
		span.SetStatus(codes.Error, "session not accepted")
		return nil, ErrSessionNotAccepted
	}

	code, err := randomToken()
	if err != nil {
		return nil, err
	}

	req, err := s.requests.Resolve(requestID, oidcflow.StatusApproved)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := s.now().UTC()
	s.codes.Save(&oidcflow.AuthorizationCode{
		Code:                code,
		RequestID:           req.ID,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Subject:             ticket.Subject,
		Scopes:              req.Scopes,
		Nonce:               req.Nonce,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		AuthMethod:          ticket.AuthMethod,
		IdentityProvider:    ticket.IdentityProvider,
		AuthTime:            ticket.IssuedAt,
		ExpiresAt:           now.Add(s.cfg.CodeLifetime),
	})

	redirect, err := withQuery(req.RedirectURI, url.Values{"code": {code}, "state": {req.State}})
	if err != nil {
		return nil, err
	}

	metrics.ArtifactsIssuedTotal.Inc()
	s.audit.Raise(ctx, audit.Event{
		Type:        audit.Success,
		Name:        audit.AuthorizationCodeIssued,
		Subject:     ticket.Subject,
		DisplayName: ticket.DisplayName,
		ClientID:    req.ClientID,
		Service:     serviceName,
	})

	return &Artifact{
		Code:           code,
		ClientID:       req.ClientID,
		RedirectURL:    redirect,
		IsNativeClient: req.IsNativeClient,
	}, nil
}

// Deny resolves the request as denied and builds the error redirect.
func (s *AuthorizationService) Deny(ctx context.Context, requestID, reason string) (*Denial, error) {
	ctx, span := tracer.Start(ctx, "authorization.deny")
	defer span.End()

	req, err := s.requests.Resolve(requestID, oidcflow.StatusDenied)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	redirect, err := (&serrors.OAuth2Error{Code: serrors.AccessDenied, State: req.State}).RedirectURL(req.RedirectURI)
	if err != nil {
		return nil, err
	}

	s.audit.Raise(ctx, audit.Event{
		Type:     audit.Information,
		Name:     audit.AuthorizationDenied,
		ClientID: req.ClientID,
		Reason:   reason,
		Service:  serviceName,
	})

	return &Denial{
		ClientID:       req.ClientID,
		RedirectURL:    redirect,
		IsNativeClient: req.IsNativeClient,
	}, nil
}

// Exchange redeems an authorization code for an id_token and access token.
func (s *AuthorizationService) Exchange(ctx context.Context, tr TokenRequest) (*api.TokenResponse, error) {
	ctx, span := tracer.Start(ctx, "authorization.exchange")
	defer span.End()
	span.SetAttributes(attribute.String("client_id", tr.ClientID))

	resp, subject, err := s.exchange(ctx, tr)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.audit.Raise(ctx, audit.Event{
			Type:     audit.Failure,
			Name:     audit.TokenIssuedFailure,
			Subject:  subject,
			ClientID: tr.ClientID,
			Reason:   err.Error(),
			Service:  serviceName,
		})
		return nil, err
	}

	metrics.TokensCreatedTotal.Inc()
	s.audit.Raise(ctx, audit.Event{
		Type:     audit.Success,
		Name:     audit.TokenIssuedSuccess,
		Subject:  subject,
		ClientID: tr.ClientID,
		Service:  serviceName,
	})

	return resp, nil
}

func (s *AuthorizationService) exchange(ctx context.Context, tr TokenRequest) (*api.TokenResponse, string, error) {
	if tr.GrantType != grantAuthCode {
		return nil, "", serrors.NewUnsupportedGrantType()
	}

	reg, err := s.clients.Get(tr.ClientID)
	if err != nil || !client.ValidateSecret(reg, tr.ClientSecret) {
		return nil, "", serrors.NewInvalidClient("client authentication failed")
	}

	code, err := s.codes.Redeem(tr.Code)
	if err != nil {
		return nil, "", serrors.NewInvalidGrant("invalid or expired authorization code")
	}

	if code.ClientID != reg.ID {
		return nil, code.Subject, serrors.NewInvalidGrant("authorization code was issued to another client")
	}
	if code.RedirectURI != tr.RedirectURI {
		return nil, code.Subject, serrors.NewInvalidGrant("redirect_uri does not match the authorization request")
	}
	if code.CodeChallenge != "" && !ValidatePKCEChallenge(code.CodeChallengeMethod, code.CodeChallenge, tr.CodeVerifier) {
		return nil, code.Subject, serrors.NewInvalidGrant("PKCE verification failed")
	}
	if !s.mapper.IsActive(ctx, code.Subject) {
		return nil, code.Subject, serrors.NewInvalidGrant("subject is no longer active")
	}

	assertion, err := s.mapper.IssueAssertion(ctx, code.Subject)
	if err != nil {
		return nil, code.Subject, serrors.NewServerError("failed to load claims")
	}

	now := s.now().UTC()
	idToken, err := s.keys.Sign(s.idTokenClaims(code, assertion.ForScopes(code.Scopes), now))
	if err != nil {
		log.Error().Err(err).Msg("Failed to sign id_token")
		return nil, code.Subject, serrors.NewServerError("failed to sign id_token")
	}

	accessToken, err := randomToken()
	if err != nil {
		return nil, code.Subject, serrors.NewServerError("failed to generate access token")
	}

	if err := s.tokens.Set(ctx, accessToken, &cache.TokenEntry{
		ClientID:  reg.ID,
		Subject:   code.Subject,
		Scopes:    code.Scopes,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.AccessTokenLifetime),
	}); err != nil {
		return nil, code.Subject, serrors.NewServerError("failed to store access token")
	}

	return &api.TokenResponse{
		IDToken:     idToken,
		AccessToken: accessToken,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   int(s.cfg.AccessTokenLifetime.Seconds()),
		Scope:       strings.Join(code.Scopes, " "),
	}, code.Subject, nil
}

func (s *AuthorizationService) idTokenClaims(code *oidcflow.AuthorizationCode, released claims.Set, now time.Time) jwt.MapClaims {
	mc := jwt.MapClaims{}
	for name, value := range released.Object() {
		mc[name] = value
	}

	mc["iss"] = s.cfg.Issuer
	mc["sub"] = code.Subject
	mc["aud"] = code.ClientID
	mc["iat"] = jwt.NewNumericDate(now)
	mc["exp"] = jwt.NewNumericDate(now.Add(s.cfg.IDTokenLifetime))
	if !code.AuthTime.IsZero() {
		mc["auth_time"] = jwt.NewNumericDate(code.AuthTime)
	}
	if code.Nonce != "" {
		mc["nonce"] = code.Nonce
	}
	if code.AuthMethod != "" {
		mc["amr"] = []string{code.AuthMethod}
	}
	if code.IdentityProvider != "" {
		mc["idp"] = code.IdentityProvider
	}

	return mc
}

// UserInfo returns the current assertion for the token's subject, filtered by
// the scopes the token was granted.
func (s *AuthorizationService) UserInfo(ctx context.Context, accessToken string) (claims.Set, error) {
	ctx, span := tracer.Start(ctx, "authorization.userinfo")
	defer span.End()

	entry, err := s.tokens.Get(ctx, accessToken)
	if err != nil {
		return nil, serrors.NewInvalidToken("access token is invalid or expired")
	}
	if !s.mapper.IsActive(ctx, entry.Subject) {
		return nil, serrors.NewInvalidToken("subject is no longer active")
	}

	assertion, err := s.mapper.IssueAssertion(ctx, entry.Subject)
	if err != nil {
		return nil, serrors.NewServerError("failed to load claims")
	}

	return assertion.ForScopes(entry.Scopes), nil
}

// EndSession validates a post logout redirect. An empty uri yields an empty
// target and no error.
func (s *AuthorizationService) EndSession(_ context.Context, clientID, postLogoutRedirectURI, state string) (string, error) {
	if postLogoutRedirectURI == "" {
		return "", nil
	}

	reg, err := s.clients.Get(clientID)
	if err != nil {
		return "", err
	}
	if err := client.ValidatePostLogoutURI(reg, postLogoutRedirectURI); err != nil {
		return "", err
	}

	if state == "" {
		return postLogoutRedirectURI, nil
	}

	return withQuery(postLogoutRedirectURI, url.Values{"state": {state}})
}

// Discovery returns the OpenID provider metadata.
func (s *AuthorizationService) Discovery(providers []string) api.OpenIDConfiguration {
	acr := make([]string, 0, len(providers))
	for _, p := range providers {
		acr = append(acr, acrProviderPrefix+p)
	}

	return api.OpenIDConfiguration{
		Issuer:                            s.cfg.Issuer,
		AuthorizationEndpoint:             s.cfg.Issuer + AuthorizePath,
		TokenEndpoint:                     s.cfg.Issuer + TokenPath,
		UserInfoEndpoint:                  s.cfg.Issuer + UserInfoPath,
		EndSessionEndpoint:                s.cfg.Issuer + EndSessionPath,
		JwksURI:                           s.cfg.Issuer + JWKSPath,
		ScopesSupported:                   []string{"openid", "profile", "email"},
		ResponseTypesSupported:            []string{"code"},
		ResponseModesSupported:            []string{"query"},
		GrantTypesSupported:               []string{grantAuthCode},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post"},
		CodeChallengeMethodsSupported:     []string{PKCEMethodS256, PKCEMethodPlain},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{jwt.SigningMethodRS256.Alg()},
		ClaimsSupported:                   append([]string{"iss", "aud", "exp", "iat", "auth_time", "nonce", "amr", "idp"}, claims.Names...),
		AcrValuesSupported:                acr,
	}
}

// JWKS returns the published signing keys.
func (s *AuthorizationService) JWKS() api.JSONWebKeySet { return s.keys.JWKS() }

// IsNative reports whether clientID is registered as a native client.
func (s *AuthorizationService) IsNative(clientID string) bool {
	reg, err := s.clients.Get(clientID)
	return err == nil && reg.IsNativeClient
}

// Client returns the registration for clientID.
func (s *AuthorizationService) Client(clientID string) (*domain.ClientRegistration, error) {
	return s.clients.Get(clientID)
}

func withQuery(raw string, values url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse redirect uri: %w", err)
	}

	q := u.Query()
	for k, vs := range values {
		for _, v := range vs {
			if v != "" {
				q.Set(k, v)
			}
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func randomToken() (string, error) {
	b := make([]byte, randomTokenByteSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
