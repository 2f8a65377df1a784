package ssogin

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	serrors "github.com/pilab-dev/ssobridge/errors"
	"github.com/pilab-dev/ssobridge/internal/login"
	"github.com/pilab-dev/ssobridge/internal/relyingparty"
	"github.com/pilab-dev/ssobridge/internal/session"
	"github.com/rs/zerolog/log"
)

// Relying party paths.
const (
	RPChallengePath    = "/challenge"
	RPCallbackPath     = "/callback"
	RPLoginPath        = "/account/login"
	RPRegisterPath     = "/account/register"
	RPLogoutPath       = "/account/logout"
	RPSSOLogoutPath    = "/sso/logout"
	RPProfilePath      = "/profile"
	rpDefaultReturnURL = relyingparty.DefaultReturnURL
)

// LocalLoginForm is the relying party's own login form.
type LocalLoginForm struct {
	Username      string `form:"username"`
	Password      string `form:"password"`
	RememberLogin bool   `form:"rememberLogin"`
	ReturnURL     string `form:"returnUrl"`
}

// LoginPage describes the two ways into the relying party.
type LoginPage struct {
	ReturnURL    string `json:"return_url"`
	ChallengeURL string `json:"challenge_url"`
}

// RegisteredAccount is the body of a successful registration.
type RegisteredAccount struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// HomeResponse is what "/" reports about the visitor.
type HomeResponse struct {
	Authenticated bool   `json:"authenticated"`
	Name          string `json:"name,omitempty"`
	AuthMethod    string `json:"amr,omitempty"`
}

// RPAPI serves the relying party.
type RPAPI struct {
	service  *relyingparty.Service
	sessions *session.Manager
}

// NewRPAPI initializes the relying party API.
func NewRPAPI(service *relyingparty.Service, sessions *session.Manager) *RPAPI {
	return &RPAPI{service: service, sessions: sessions}
}

// RegisterRoutes registers the relying party routes.
func (api *RPAPI) RegisterRoutes(e *gin.Engine) {
	e.Use(SessionMiddleware(api.sessions))

	e.GET("/", api.HomeHandler)
	e.GET(RPChallengePath, api.ChallengeHandler)
	e.GET(RPCallbackPath, api.CallbackHandler)
	e.GET(RPLoginPath, api.LoginPageHandler)
	e.POST(RPLoginPath, api.LoginHandler)
	e.POST(RPRegisterPath, api.RegisterHandler)
	e.POST(RPLogoutPath, api.LogoutHandler)
	e.GET(RPSSOLogoutPath, api.SSOLogoutHandler)
	e.GET(RPProfilePath, RequireSession(RPLoginPath), api.ProfileHandler)
}

// HomeHandler reports whether the visitor is signed in.
func (api *RPAPI) HomeHandler(c *gin.Context) {
	t := CurrentTicket(c)
	if t == nil {
		c.JSON(http.StatusOK, HomeResponse{})
		return
	}

	c.JSON(http.StatusOK, HomeResponse{Authenticated: true, Name: t.DisplayName, AuthMethod: t.AuthMethod})
}

// ChallengeHandler sends the visitor to the authorization service.
func (api *RPAPI) ChallengeHandler(c *gin.Context) {
	ctx := c.Request.Context()

	ch, err := api.service.Challenge(ctx, c.Query("provider"), c.Query("returnUrl"))
	if err != nil {
		respondError(c, err)
		return
	}

	if err := api.sessions.IssueCorrelation(ctx, c.Writer, ch.Correlation); err != nil {
		respondError(c, err)
		return
	}

	c.Redirect(http.StatusFound, ch.RedirectURL)
}

// CallbackHandler completes the delegated login.
func (api *RPAPI) CallbackHandler(c *gin.Context) {
	var in relyingparty.CallbackInput
	if err := c.ShouldBindQuery(&in); err != nil {
		respondError(c, serrors.NewInvalidRequest("malformed callback"))
		return
	}

	ctx := c.Request.Context()

	corr, err := api.sessions.ReadCorrelation(c.Request)
	if err != nil {
		corr = nil
	}
	api.sessions.ClearCorrelation(c.Writer)

	ticket, returnURL, err := api.service.HandleCallback(ctx, in, corr)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := api.sessions.Issue(ctx, c.Writer, ticket); err != nil {
		respondError(c, err)
		return
	}

	c.Redirect(http.StatusFound, returnURL)
}

// LoginPageHandler describes the login options for returnUrl.
func (api *RPAPI) LoginPageHandler(c *gin.Context) {
	returnURL := c.DefaultQuery("returnUrl", rpDefaultReturnURL)
	if _, ok := login.LocalPath(returnURL); !ok {
		respondError(c, serrors.ErrInvalidReturnTarget)
		return
	}

	c.JSON(http.StatusOK, LoginPage{
		ReturnURL:    returnURL,
		ChallengeURL: RPChallengePath + "?returnUrl=" + url.QueryEscape(returnURL),
	})
}

// LoginHandler checks a local password. The return url is validated before
// any session is issued.
func (api *RPAPI) LoginHandler(c *gin.Context) {
	var form LocalLoginForm
	if err := c.ShouldBind(&form); err != nil {
		respondError(c, serrors.NewInvalidRequest("malformed login form"))
		return
	}

	target := rpDefaultReturnURL
	if form.ReturnURL != "" {
		local, ok := login.LocalPath(form.ReturnURL)
		if !ok {
			respondError(c, serrors.ErrInvalidReturnTarget)
			return
		}
		target = local
	}

	ctx := c.Request.Context()

	ticket, err := api.service.LocalLogin(ctx, form.Username, form.Password, form.RememberLogin)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := api.sessions.Issue(ctx, c.Writer, ticket); err != nil {
		respondError(c, err)
		return
	}

	c.Redirect(http.StatusFound, target)
}

// RegisterHandler creates a local account.
func (api *RPAPI) RegisterHandler(c *gin.Context) {
	var in relyingparty.RegisterInput
	if err := c.ShouldBind(&in); err != nil {
		respondError(c, serrors.NewInvalidRequest("malformed registration form"))
		return
	}

	acc, err := api.service.Register(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}

	log.Info().Str("account_id", acc.ID).Str("username", acc.Username).Msg("Account registered")

	c.JSON(http.StatusCreated, RegisteredAccount{ID: acc.ID, Username: acc.Username})
}

// LogoutHandler clears the local session only.
func (api *RPAPI) LogoutHandler(c *gin.Context) {
	api.service.RecordLogout(c.Request.Context(), CurrentTicket(c))
	api.sessions.Clear(c.Writer)

	c.Redirect(http.StatusFound, "/")
}

// SSOLogoutHandler clears the local session and continues at the
// authorization service's end session endpoint.
func (api *RPAPI) SSOLogoutHandler(c *gin.Context) {
	ctx := c.Request.Context()

	api.service.RecordLogout(ctx, CurrentTicket(c))
	api.sessions.Clear(c.Writer)

	c.Redirect(http.StatusFound, api.service.LogoutURL(ctx))
}

// ProfileHandler returns the signed in visitor's claims.
func (api *RPAPI) ProfileHandler(c *gin.Context) {
	c.JSON(http.StatusOK, CurrentTicket(c).Claims)
}
