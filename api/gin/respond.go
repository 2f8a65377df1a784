package ssogin

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	serrors "github.com/pilab-dev/ssobridge/errors"
	"github.com/rs/zerolog/log"
)

// ErrorResponse is the JSON body of a failed request outside the OAuth2
// endpoints.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message,omitempty"`
	Fields  []serrors.FieldError `json:"fields,omitempty"`
}

// errorCode names the taxonomy entry behind err.
func errorCode(err error) string {
	switch {
	case errors.Is(err, serrors.ErrExchangeTimeout):
		return "exchange_timeout"
	case errors.Is(err, serrors.ErrRemoteIdentity):
		return "remote_identity_error"
	case errors.Is(err, serrors.ErrInvalidClient):
		return "invalid_client"
	case errors.Is(err, serrors.ErrInvalidRedirect):
		return "invalid_redirect_uri"
	case errors.Is(err, serrors.ErrInvalidReturnTarget):
		return "invalid_return_url"
	case errors.Is(err, serrors.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, serrors.ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, serrors.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, serrors.ErrAlreadyResolved):
		return "already_resolved"
	case errors.Is(err, serrors.ErrRequestNotFound):
		return "request_not_found"
	case errors.Is(err, serrors.ErrUnknownProvider):
		return "unknown_provider"
	default:
		return "server_error"
	}
}

// respondError writes err with the status of the error taxonomy. Server side
// and upstream failures are logged and only named to the visitor.
func respondError(c *gin.Context, err error) {
	status := serrors.HTTPStatus(err)

	var oerr *serrors.OAuth2Error
	if errors.As(err, &oerr) {
		c.JSON(status, oerr)
		return
	}

	var verr *serrors.ValidationErrors
	if errors.As(err, &verr) {
		c.JSON(status, ErrorResponse{Error: "validation_failed", Fields: verr.Fields})
		return
	}

	resp := ErrorResponse{Error: errorCode(err)}
	if status >= http.StatusInternalServerError {
		log.Error().Ctx(c.Request.Context()).Err(err).Str("path", c.FullPath()).Msg("Request failed")
	} else {
		log.Debug().Ctx(c.Request.Context()).Err(err).Str("path", c.FullPath()).Msg("Request rejected")
		resp.Message = err.Error()
	}

	c.JSON(status, resp)
}

var interstitialTemplate = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="0;url={{.}}">
<title>Signing you in</title>
</head>
<body>
<p>You are now being returned to the application. Once complete, you may close this tab.</p>
</body>
</html>
`))

// redirect sends the visitor to target. Native clients get a same origin
// page that refreshes to target, since their redirect uri is often a custom
// scheme browsers will not follow from a 302.
func redirect(c *gin.Context, target string, native bool) {
	if !native {
		c.Redirect(http.StatusFound, target)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := interstitialTemplate.Execute(c.Writer, target); err != nil {
		log.Error().Err(err).Msg("Failed to render redirect page")
	}
}
