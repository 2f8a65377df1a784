package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Taxonomy of login and federation failures. Callers compare with errors.Is.
var (
	// ErrInvalidClient is fatal: the request names an unregistered or misconfigured client.
	ErrInvalidClient = stderrors.New("invalid client")
	// ErrInvalidRedirect is fatal: the redirect target is not registered for the client.
	ErrInvalidRedirect = stderrors.New("invalid redirect uri")
	// ErrInvalidCredentials never says which field was wrong.
	ErrInvalidCredentials = stderrors.New("invalid username or password")
	// ErrAccessDenied is an explicit visitor cancellation. It is a denial, not a fault.
	ErrAccessDenied = stderrors.New("access denied")
	// ErrRemoteIdentity means the external identity step failed. No session is created.
	ErrRemoteIdentity = stderrors.New("remote identity error")
	// ErrExchangeTimeout is a remote identity failure caused by the bounded exchange timeout.
	ErrExchangeTimeout = fmt.Errorf("%w: authorization exchange timed out", ErrRemoteIdentity)
	// ErrAccountNotFound means an asserted subject has no local account. Accounts are never provisioned from assertions.
	ErrAccountNotFound = stderrors.New("account not found")
	// ErrInvalidReturnTarget means the return URL is neither a pending request target nor local.
	ErrInvalidReturnTarget = stderrors.New("invalid return url")
	// ErrAlreadyResolved is returned for a second approve or deny of the same request.
	ErrAlreadyResolved = stderrors.New("authorization request already resolved")
	// ErrRequestNotFound means the authorization request expired or never existed.
	ErrRequestNotFound = stderrors.New("authorization request not found")
	// ErrUnknownProvider means the visitor named an identity provider that is not registered or not enabled.
	ErrUnknownProvider = stderrors.New("unknown identity provider")
)

// FieldError is one per-field validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects per-field problems of a malformed submission.
type ValidationErrors struct {
	Fields []FieldError `json:"fields"`
}

// NewValidationErrors builds ValidationErrors from a field->message map,
// ordered by field name.
func NewValidationErrors(fields map[string]string) *ValidationErrors {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	v := &ValidationErrors{Fields: make([]FieldError, 0, len(names))}
	for _, name := range names {
		v.Fields = append(v.Fields, FieldError{Field: name, Message: fields[name]})
	}

	return v
}

// Add appends a field error.
func (v *ValidationErrors) Add(field, message string) {
	v.Fields = append(v.Fields, FieldError{Field: field, Message: message})
}

// Message returns the message recorded for field, if any.
func (v *ValidationErrors) Message(field string) (string, bool) {
	for _, f := range v.Fields {
		if f.Field == field {
			return f.Message, true
		}
	}

	return "", false
}

func (v *ValidationErrors) Error() string {
	parts := make([]string, 0, len(v.Fields))
	for _, f := range v.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}

	return "validation failed: " + strings.Join(parts, "; ")
}

// HTTPStatus maps an error of the taxonomy to a response status.
func HTTPStatus(err error) int {
	var verr *ValidationErrors
	var oerr *OAuth2Error

	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case stderrors.Is(err, ErrExchangeTimeout):
		return http.StatusGatewayTimeout
	case stderrors.Is(err, ErrRemoteIdentity):
		return http.StatusBadGateway
	case stderrors.Is(err, ErrInvalidClient),
		stderrors.Is(err, ErrInvalidRedirect),
		stderrors.Is(err, ErrInvalidReturnTarget),
		stderrors.Is(err, ErrRequestNotFound),
		stderrors.Is(err, ErrUnknownProvider):
		return http.StatusBadRequest
	case stderrors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case stderrors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	case stderrors.Is(err, ErrAccountNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, ErrAlreadyResolved):
		return http.StatusConflict
	case stderrors.As(err, &oerr):
		if oerr.Code == InvalidClient {
			return http.StatusUnauthorized
		}
		if oerr.Code == ServerError {
			return http.StatusInternalServerError
		}
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
