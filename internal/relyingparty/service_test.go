package relyingparty_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pilab-dev/ssobridge/domain"
	mock_domain "github.com/pilab-dev/ssobridge/domain/mock"
	serrors "github.com/pilab-dev/ssobridge/errors"
	"github.com/pilab-dev/ssobridge/internal/audit"
	"github.com/pilab-dev/ssobridge/internal/claims"
	"github.com/pilab-dev/ssobridge/internal/relyingparty"
	mock_relyingparty "github.com/pilab-dev/ssobridge/internal/relyingparty/mock"
	"github.com/pilab-dev/ssobridge/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/oauth2"
)

var (
	now   = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	alice = &domain.Account{ID: "42", Username: "alice", Email: "alice@example.com", Active: true}
)

type harness struct {
	svc       *relyingparty.Service
	exchanger *mock_relyingparty.MockExchanger
	accounts  *mock_domain.MockAccountStore
	audit     *audit.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	exchanger := mock_relyingparty.NewMockExchanger(ctrl)
	accounts := mock_domain.NewMockAccountStore(ctrl)
	rec := &audit.Recorder{}

	svc := relyingparty.NewService(relyingparty.Config{
		ExchangeTimeout:       50 * time.Millisecond,
		PostLogoutRedirectURI: "https://rp.example/",
	}, exchanger, accounts, claims.NewMapper(accounts), rec)
	svc.SetClock(func() time.Time { return now })

	return &harness{svc: svc, exchanger: exchanger, accounts: accounts, audit: rec}
}

func assertion(t *testing.T, pairs ...string) claims.Set {
	t.Helper()
	var cs []claims.Claim
	for i := 0; i < len(pairs); i += 2 {
		cs = append(cs, claims.Claim{Name: pairs[i], Value: pairs[i+1]})
	}
	set, err := claims.New(cs...)
	require.NoError(t, err)
	return set
}

func (h *harness) challenge(t *testing.T, provider, returnURL string) *relyingparty.Challenge {
	t.Helper()
	h.exchanger.EXPECT().AuthCodeURL(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return("https://idp.example/connect/authorize?x=1", nil)

	ch, err := h.svc.Challenge(context.Background(), provider, returnURL)
	require.NoError(t, err)
	return ch
}

func TestChallenge_DefaultsAndCorrelation(t *testing.T) {
	h := newHarness(t)

	ch := h.challenge(t, "", "")
	assert.Equal(t, "https://idp.example/connect/authorize?x=1", ch.RedirectURL)
	assert.Equal(t, relyingparty.DefaultReturnURL, ch.Correlation.ReturnURL)
	assert.Equal(t, now, ch.Correlation.CreatedAt)
	assert.NotEmpty(t, ch.Correlation.State)
	assert.NotEmpty(t, ch.Correlation.Nonce)
	assert.NotEmpty(t, ch.Correlation.Verifier)
}

func TestChallenge_ForcedProviderSendsAcrValues(t *testing.T) {
	h := newHarness(t)

	h.exchanger.EXPECT().AuthCodeURL(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, state, _, _ string, opts ...oauth2.AuthCodeOption) (string, error) {
			cfg := &oauth2.Config{Endpoint: oauth2.Endpoint{AuthURL: "https://idp.example/connect/authorize"}}
			return cfg.AuthCodeURL(state, opts...), nil
		})

	ch, err := h.svc.Challenge(context.Background(), "google", "~/orders")
	require.NoError(t, err)
	assert.Contains(t, ch.RedirectURL, "acr_values=idp%3Agoogle")
	assert.Equal(t, "/orders", ch.Correlation.ReturnURL)
	assert.Equal(t, "google", ch.Correlation.Provider)
}

func TestChallenge_RejectsForeignReturnURL(t *testing.T) {
	h := newHarness(t)

	for _, target := range []string{"https://evil.example/", "//evil.example", "/\\evil.example"} {
		_, err := h.svc.Challenge(context.Background(), "", target)
		assert.ErrorIs(t, err, serrors.ErrInvalidReturnTarget, target)
	}
}

func TestHandleCallback_EstablishesSessionForLocalAccount(t *testing.T) {
	h := newHarness(t)
	ch := h.challenge(t, "", "/orders")
	corr := ch.Correlation

	h.exchanger.EXPECT().Exchange(gomock.Any(), "code-1", corr.Verifier, corr.Nonce).
		Return(assertion(t, claims.Subject, "idp-42", claims.Name, "alice"), nil)
	h.accounts.EXPECT().FindByUsername(gomock.Any(), "alice").Return(alice, nil)
	h.accounts.EXPECT().FindByID(gomock.Any(), "42").Return(alice, nil)

	ticket, next, err := h.svc.HandleCallback(context.Background(), relyingparty.CallbackInput{Code: "code-1", State: corr.State}, corr)
	require.NoError(t, err)

	assert.Equal(t, "/orders", next)
	assert.Equal(t, "42", ticket.Subject, "the local account id is the subject")
	assert.Equal(t, session.MethodExternal, ticket.AuthMethod)
	assert.False(t, ticket.Persistent)
	assert.Equal(t, 8*time.Hour, ticket.ExpiresAt.Sub(ticket.IssuedAt))
	assert.Equal(t, "alice@example.com", ticket.Claims.Value(claims.Email))
	assert.Len(t, h.audit.Named(audit.UserLoginSuccess), 1)
}

func TestHandleCallback_PreferredUsernameFallback(t *testing.T) {
	h := newHarness(t)
	corr := h.challenge(t, "", "").Correlation

	h.exchanger.EXPECT().Exchange(gomock.Any(), "c", gomock.Any(), gomock.Any()).
		Return(assertion(t, claims.Subject, "42", claims.PreferredUsername, "alice"), nil)
	h.accounts.EXPECT().FindByUsername(gomock.Any(), "alice").Return(alice, nil)
	h.accounts.EXPECT().FindByID(gomock.Any(), "42").Return(alice, nil)

	_, next, err := h.svc.HandleCallback(context.Background(), relyingparty.CallbackInput{Code: "c", State: corr.State}, corr)
	require.NoError(t, err)
	assert.Equal(t, "/profile", next)
}

// Scenario D: the asserted user has no local account.
func TestHandleCallback_AccountNotFoundNeverProvisions(t *testing.T) {
	h := newHarness(t)
	corr := h.challenge(t, "", "").Correlation

	h.exchanger.EXPECT().Exchange(gomock.Any(), "c", gomock.Any(), gomock.Any()).
		Return(assertion(t, claims.Subject, "9", claims.Name, "carol"), nil)
	h.accounts.EXPECT().FindByUsername(gomock.Any(), "carol").Return(nil, nil)
	// No Create call is expected: gomock fails the test if one happens.

	ticket, next, err := h.svc.HandleCallback(context.Background(), relyingparty.CallbackInput{Code: "c", State: corr.State}, corr)
	assert.ErrorIs(t, err, serrors.ErrAccountNotFound)
	assert.Nil(t, ticket)
	assert.Empty(t, next)

	events := h.audit.Named(audit.ExternalLoginFailure)
	require.Len(t, events, 1)
	assert.Equal(t, audit.Failure, events[0].Type)
	assert.Equal(t, "carol", events[0].Username)
}

func TestHandleCallback_Failures(t *testing.T) {
	h := newHarness(t)
	corr := h.challenge(t, "", "").Correlation

	tests := []struct {
		name string
		in   relyingparty.CallbackInput
		corr *session.Correlation
		want error
	}{
		{"missing correlation", relyingparty.CallbackInput{Code: "c", State: corr.State}, nil, serrors.ErrRemoteIdentity},
		{"denied", relyingparty.CallbackInput{Error: "access_denied", State: corr.State}, corr, serrors.ErrAccessDenied},
		{"provider error", relyingparty.CallbackInput{Error: "server_error"}, corr, serrors.ErrRemoteIdentity},
		{"state mismatch", relyingparty.CallbackInput{Code: "c", State: "forged"}, corr, serrors.ErrRemoteIdentity},
		{"no state", relyingparty.CallbackInput{Code: "c"}, corr, serrors.ErrRemoteIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket, _, err := h.svc.HandleCallback(context.Background(), tt.in, tt.corr)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, ticket)
		})
	}

	assert.Len(t, h.audit.Named(audit.ExternalLoginFailure), len(tests))
}

func TestHandleCallback_ExchangeErrors(t *testing.T) {
	h := newHarness(t)
	corr := h.challenge(t, "", "").Correlation
	in := relyingparty.CallbackInput{Code: "c", State: corr.State}

	h.exchanger.EXPECT().Exchange(gomock.Any(), "c", gomock.Any(), gomock.Any()).
		Return(nil, errors.Join(serrors.ErrRemoteIdentity, errors.New("bad signature")))
	_, _, err := h.svc.HandleCallback(context.Background(), in, corr)
	assert.ErrorIs(t, err, serrors.ErrRemoteIdentity)
	assert.NotErrorIs(t, err, serrors.ErrExchangeTimeout)

	h.exchanger.EXPECT().Exchange(gomock.Any(), "c", gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _, _, _ string) (claims.Set, error) {
			<-ctx.Done()
			return nil, errors.Join(serrors.ErrRemoteIdentity, ctx.Err())
		})
	_, _, err = h.svc.HandleCallback(context.Background(), in, corr)
	assert.ErrorIs(t, err, serrors.ErrExchangeTimeout)

	h.exchanger.EXPECT().Exchange(gomock.Any(), "c", gomock.Any(), gomock.Any()).
		Return(assertion(t, claims.Subject, "42"), nil)
	_, _, err = h.svc.HandleCallback(context.Background(), in, corr)
	assert.ErrorIs(t, err, serrors.ErrRemoteIdentity, "assertion without a username")
}

func TestLocalLogin(t *testing.T) {
	h := newHarness(t)

	h.accounts.EXPECT().FindByUsername(gomock.Any(), "alice").Return(alice, nil).Times(2)
	h.accounts.EXPECT().CheckPassword(gomock.Any(), alice, "right").Return(true, nil)
	h.accounts.EXPECT().CheckPassword(gomock.Any(), alice, "wrong").Return(false, nil)
	h.accounts.EXPECT().FindByID(gomock.Any(), "42").Return(alice, nil).Times(2)

	ticket, err := h.svc.LocalLogin(context.Background(), "alice", "right", true)
	require.NoError(t, err)
	assert.Equal(t, "42", ticket.Subject)
	assert.Equal(t, session.MethodPassword, ticket.AuthMethod)
	assert.Equal(t, domain.LocalIdentityProvider, ticket.IdentityProvider)
	assert.True(t, ticket.Persistent)
	assert.Equal(t, 30*24*time.Hour, ticket.ExpiresAt.Sub(ticket.IssuedAt))

	_, err = h.svc.LocalLogin(context.Background(), "alice", "wrong", false)
	assert.ErrorIs(t, err, serrors.ErrInvalidCredentials)

	h.accounts.EXPECT().FindByUsername(gomock.Any(), "ghost").Return(nil, nil)
	_, err = h.svc.LocalLogin(context.Background(), "ghost", "x", false)
	assert.ErrorIs(t, err, serrors.ErrInvalidCredentials)

	assert.Len(t, h.audit.Named(audit.UserLoginFailure), 2)
}

func TestLocalLogin_StoreError(t *testing.T) {
	h := newHarness(t)
	h.accounts.EXPECT().FindByUsername(gomock.Any(), "alice").Return(nil, errors.New("db down"))

	_, err := h.svc.LocalLogin(context.Background(), "alice", "x", false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, serrors.ErrInvalidCredentials)
}

func TestLogoutURL(t *testing.T) {
	h := newHarness(t)

	h.exchanger.EXPECT().EndSessionURL(gomock.Any(), "https://rp.example/", "").Return("https://idp.example/connect/endsession?client_id=rp", nil)
	assert.Equal(t, "https://idp.example/connect/endsession?client_id=rp", h.svc.LogoutURL(context.Background()))

	h.exchanger.EXPECT().EndSessionURL(gomock.Any(), gomock.Any(), gomock.Any()).Return("", nil)
	assert.Equal(t, "/", h.svc.LogoutURL(context.Background()))

	h.exchanger.EXPECT().EndSessionURL(gomock.Any(), gomock.Any(), gomock.Any()).Return("", serrors.ErrRemoteIdentity)
	assert.Equal(t, "/", h.svc.LogoutURL(context.Background()))
}

func TestRecordLogout(t *testing.T) {
	h := newHarness(t)

	h.svc.RecordLogout(context.Background(), nil)
	h.svc.RecordLogout(context.Background(), &session.Ticket{Subject: "42", DisplayName: "alice"})

	events := h.audit.Named(audit.UserLogout)
	require.Len(t, events, 1)
	assert.Equal(t, "42", events[0].Subject)
}
