//nolint:varnamelen
package ssogin

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	serrors "github.com/pilab-dev/ssobridge/errors"
	"github.com/pilab-dev/ssobridge/internal/audit"
	"github.com/pilab-dev/ssobridge/internal/login"
	"github.com/pilab-dev/ssobridge/internal/session"
	"github.com/pilab-dev/ssobridge/services"
	"github.com/rs/zerolog/log"
)

const (
	// LoginPath is the IdP's login page.
	LoginPath = "/login"
	// ExternalChallengePath starts a login at an upstream provider.
	ExternalChallengePath = "/external/challenge"
	// ExternalCallbackPath is where upstream providers return to.
	ExternalCallbackPath = "/external/callback"
)

// IdPAPIOptions holds the collaborators of the authorization service's HTTP
// surface.
type IdPAPIOptions struct {
	Engine   *login.Engine
	External *login.ExternalLogin
	Authz    *services.AuthorizationService
	Sessions *session.Manager
	// Providers are the external provider names advertised in discovery.
	Providers []string
	Audit     audit.Sink
}

// IdPAPI serves the login pages and the OpenID Connect endpoints.
type IdPAPI struct {
	engine    *login.Engine
	external  *login.ExternalLogin
	authz     *services.AuthorizationService
	sessions  *session.Manager
	providers []string
	audit     audit.Sink
}

// NewIdPAPI initializes the IdP API.
func NewIdPAPI(opts IdPAPIOptions) *IdPAPI {
	if opts.Audit == nil {
		opts.Audit = audit.Discard
	}

	return &IdPAPI{
		engine:    opts.Engine,
		external:  opts.External,
		authz:     opts.Authz,
		sessions:  opts.Sessions,
		providers: opts.Providers,
		audit:     opts.Audit,
	}
}

// RegisterRoutes registers the IdP routes.
func (api *IdPAPI) RegisterRoutes(e *gin.Engine) {
	withSession := SessionMiddleware(api.sessions)

	e.GET(LoginPath, api.LoginPageHandler)
	e.POST(LoginPath, api.LoginHandler)
	e.GET(ExternalChallengePath, api.ExternalChallengeHandler)
	e.GET(ExternalCallbackPath+"/:provider", api.ExternalCallbackHandler)
	e.POST(ExternalCallbackPath+"/:provider", api.ExternalCallbackHandler)

	e.GET(services.AuthorizePath, withSession, api.AuthorizeHandler)
	e.GET(services.AuthorizeCallbackPath, withSession, api.AuthorizeCallbackHandler)
	e.POST(services.TokenPath, api.TokenHandler)
	e.GET(services.UserInfoPath, api.UserInfoHandler)
	e.POST(services.UserInfoPath, api.UserInfoHandler)
	e.GET(services.EndSessionPath, withSession, api.EndSessionHandler)

	e.GET(services.DiscoveryPath, api.OpenIDConfigurationHandler)
	e.GET(services.JWKSPath, api.JWKSHandler)
}

// LoginPageHandler returns the login view for the pending request named by
// returnUrl. A single usable provider sends the visitor straight to it.
func (api *IdPAPI) LoginPageHandler(c *gin.Context) {
	ctx := c.Request.Context()
	returnURL := c.Query("returnUrl")

	req := api.authz.RequestFromReturnURL(ctx, returnURL)
	view, err := api.engine.Present(ctx, req, returnURL)
	if err != nil {
		respondError(c, err)
		return
	}

	if view.ChallengeURL != "" {
		c.Redirect(http.StatusFound, view.ChallengeURL)
		return
	}

	c.JSON(http.StatusOK, view)
}

// LoginHandler handles the login form post.
func (api *IdPAPI) LoginHandler(c *gin.Context) {
	var in login.Input
	if err := c.ShouldBind(&in); err != nil {
		respondError(c, serrors.NewInvalidRequest("malformed login form"))
		return
	}

	ctx := c.Request.Context()

	req := api.authz.RequestFromReturnURL(ctx, in.ReturnURL)
	outcome, err := api.engine.Submit(ctx, req, in)
	if err != nil {
		respondError(c, err)
		return
	}

	if outcome.View != nil {
		c.JSON(serrors.HTTPStatus(outcome.Problem), outcome.View)
		return
	}

	if outcome.Ticket != nil {
		if err := api.sessions.Issue(ctx, c.Writer, outcome.Ticket); err != nil {
			log.Error().Err(err).Msg("Failed to issue session cookie")
			respondError(c, err)
			return
		}
	}

	redirect(c, outcome.RedirectURL, outcome.Interstitial)
}

// ExternalChallengeHandler redirects to the upstream provider named by scheme.
func (api *IdPAPI) ExternalChallengeHandler(c *gin.Context) {
	ctx := c.Request.Context()

	target, corr, err := api.external.Challenge(ctx, c.Query("scheme"), c.Query("returnUrl"))
	if err != nil {
		respondError(c, err)
		return
	}

	if err := api.sessions.IssueCorrelation(ctx, c.Writer, corr); err != nil {
		respondError(c, err)
		return
	}

	c.Redirect(http.StatusFound, target)
}

// ExternalCallbackHandler completes an upstream login. The correlation cookie
// is single use and cleared whatever the outcome.
func (api *IdPAPI) ExternalCallbackHandler(c *gin.Context) {
	var in login.ExternalCallback
	if err := c.ShouldBind(&in); err != nil {
		respondError(c, serrors.NewInvalidRequest("malformed callback"))
		return
	}

	ctx := c.Request.Context()

	corr, err := api.sessions.ReadCorrelation(c.Request)
	if err != nil {
		corr = nil
	}
	api.sessions.ClearCorrelation(c.Writer)

	outcome, err := api.external.Callback(ctx, c.Param("provider"), in, corr)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := api.sessions.Issue(ctx, c.Writer, outcome.Ticket); err != nil {
		respondError(c, err)
		return
	}

	c.Redirect(http.StatusFound, outcome.RedirectURL)
}

// AuthorizeHandler validates an authorization request. A visitor who already
// has a session continues at the authorize callback, everyone else goes
// through the login page.
func (api *IdPAPI) AuthorizeHandler(c *gin.Context) {
	ctx := c.Request.Context()
	params := c.Request.URL.Query()

	req, err := api.authz.ResolveRequest(ctx, params)
	if err != nil {
		var oerr *serrors.OAuth2Error
		if errors.As(err, &oerr) {
			// Only returned once the redirect uri has been validated.
			target, rerr := oerr.RedirectURL(params.Get("redirect_uri"))
			if rerr == nil {
				redirect(c, target, api.authz.IsNative(params.Get("client_id")))
				return
			}
		}
		respondError(c, err)
		return
	}

	returnURL := services.ReturnURL(req)

	ticket := CurrentTicket(c)
	if params.Get("prompt") != "login" && api.authz.AcceptsTicket(req, ticket) {
		c.Redirect(http.StatusFound, returnURL)
		return
	}

	c.Redirect(http.StatusFound, LoginPath+"?returnUrl="+url.QueryEscape(returnURL))
}

// AuthorizeCallbackHandler resolves the request the login flow returned to.
func (api *IdPAPI) AuthorizeCallbackHandler(c *gin.Context) {
	ctx := c.Request.Context()

	res, err := api.authz.Callback(ctx, c.Query("request_id"), CurrentTicket(c))
	if errors.Is(err, services.ErrLoginRequired) {
		c.Redirect(http.StatusFound, LoginPath+"?returnUrl="+url.QueryEscape(c.Request.URL.RequestURI()))
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	redirect(c, res.RedirectURL, res.IsNativeClient)
}

// TokenHandler redeems an authorization code. Clients authenticate with
// client_secret_basic or client_secret_post.
func (api *IdPAPI) TokenHandler(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")

	tr := services.TokenRequest{
		GrantType:    c.PostForm("grant_type"),
		Code:         c.PostForm("code"),
		RedirectURI:  c.PostForm("redirect_uri"),
		ClientID:     c.PostForm("client_id"),
		ClientSecret: c.PostForm("client_secret"),
		CodeVerifier: c.PostForm("code_verifier"),
	}

	basic := false
	if id, secret, ok := c.Request.BasicAuth(); ok {
		basic = true
		tr.ClientID = formUnescape(id)
		tr.ClientSecret = formUnescape(secret)
	}

	resp, err := api.authz.Exchange(c.Request.Context(), tr)
	if err != nil {
		var oerr *serrors.OAuth2Error
		if !errors.As(err, &oerr) {
			log.Error().Err(err).Str("client_id", tr.ClientID).Msg("Token request failed")
			oerr = serrors.NewServerError("failed to issue tokens")
		}
		if oerr.Code == serrors.InvalidClient && basic {
			c.Header("WWW-Authenticate", `Basic realm="token"`)
		}
		c.JSON(serrors.HTTPStatus(oerr), oerr)
		return
	}

	log.Info().
		Str("client_id", tr.ClientID).
		Int("expires_in", resp.ExpiresIn).
		Str("scope", resp.Scope).
		Msg("Token issued")

	c.JSON(http.StatusOK, resp)
}

// formUnescape decodes a client_secret_basic credential, which is form
// encoded before it is base64 encoded.
func formUnescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}

	return s
}

// UserInfoHandler returns the claims released to an access token. The token
// comes from a Bearer header or, on POST, an access_token form field.
func (api *IdPAPI) UserInfoHandler(c *gin.Context) {
	token := ""
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			token = strings.TrimSpace(value)
		}
	} else if c.Request.Method == http.MethodPost {
		token = c.PostForm("access_token")
	}

	if token == "" {
		c.Header("WWW-Authenticate", `Bearer error="invalid_request"`)
		c.JSON(http.StatusUnauthorized, serrors.NewInvalidRequest("missing access token"))
		return
	}

	set, err := api.authz.UserInfo(c.Request.Context(), token)
	if err != nil {
		var oerr *serrors.OAuth2Error
		if errors.As(err, &oerr) && oerr.Code == serrors.InvalidToken {
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			c.JSON(http.StatusUnauthorized, oerr)
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, set.Object())
}

// EndSessionHandler signs the visitor out of the IdP and, when the client
// registered the given post logout uri, sends them there.
func (api *IdPAPI) EndSessionHandler(c *gin.Context) {
	ctx := c.Request.Context()
	clientID := c.Query("client_id")

	target, err := api.authz.EndSession(ctx, clientID, c.Query("post_logout_redirect_uri"), c.Query("state"))
	if err != nil {
		respondError(c, err)
		return
	}

	if t := CurrentTicket(c); t != nil {
		api.audit.Raise(ctx, audit.Event{
			Type:        audit.Information,
			Name:        audit.UserLogout,
			Subject:     t.Subject,
			DisplayName: t.DisplayName,
			ClientID:    clientID,
			Service:     "idp",
		})
	}
	api.sessions.Clear(c.Writer)

	if target == "" {
		c.JSON(http.StatusOK, gin.H{"signed_out": true})
		return
	}

	c.Redirect(http.StatusFound, target)
}

// OpenIDConfigurationHandler serves the discovery document.
func (api *IdPAPI) OpenIDConfigurationHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.authz.Discovery(api.providers))
}

// JWKSHandler serves the published signing keys.
func (api *IdPAPI) JWKSHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.authz.JWKS())
}
