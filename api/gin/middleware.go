package ssogin

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/pilab-dev/ssobridge/internal/session"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// TicketKey is the gin context key of the visitor's session ticket.
const TicketKey = "session-ticket"

// SessionMiddleware reads the session cookie and, when it carries a valid
// ticket, stores it under TicketKey. Requests without a session pass through.
func SessionMiddleware(sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := otel.Tracer("github.com/pilab-dev/ssobridge/api/gin").
			Start(c.Request.Context(), "SessionMiddleware")

		ticket, err := sessions.Read(c.Request)
		switch {
		case err == nil:
			span.SetAttributes(attribute.String("session.amr", ticket.AuthMethod))
			c.Set(TicketKey, ticket)
		case errors.Is(err, session.ErrNoSession):
		default:
			// Expired or unreadable, e.g. written under a pruned key.
			log.Debug().Ctx(c.Request.Context()).Err(err).Msg("Ignoring session cookie")
			span.RecordError(err)
			sessions.Clear(c.Writer)
		}

		span.End()
		c.Next()
	}
}

// CurrentTicket returns the ticket SessionMiddleware found, or nil.
func CurrentTicket(c *gin.Context) *session.Ticket {
	v, ok := c.Get(TicketKey)
	if !ok {
		return nil
	}
	t, _ := v.(*session.Ticket)

	return t
}

// RequireSession sends visitors without a session to loginPath, carrying the
// requested path as returnUrl.
func RequireSession(loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentTicket(c) != nil {
			c.Next()
			return
		}

		target := loginPath + "?returnUrl=" + url.QueryEscape(c.Request.URL.RequestURI())
		c.Redirect(http.StatusFound, target)
		c.Abort()
	}
}
