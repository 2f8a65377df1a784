package federation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pilab-dev/ssobridge/domain"
	"github.com/pilab-dev/ssobridge/internal/federation"
	mock_federation "github.com/pilab-dev/ssobridge/internal/federation/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/oauth2"
)

func newMockService(t *testing.T) (*federation.Service, *mock_federation.MockOAuth2Provider) {
	t.Helper()
	ctrl := gomock.NewController(t)

	fedService, err := federation.NewService(nil, "http://localhost/callback/")
	require.NoError(t, err)

	mockProvider := mock_federation.NewMockOAuth2Provider(ctrl)
	mockProvider.EXPECT().Name().Return("mockprov").AnyTimes()
	mockProvider.EXPECT().Type().Return(domain.IdPTypeOIDC).AnyTimes()
	fedService.RegisterProvider(mockProvider)

	return fedService, mockProvider
}

func TestFederationService_NewServiceBuildsEnabledProviders(t *testing.T) {
	fedService, err := federation.NewService([]domain.IdentityProvider{
		{Name: "google", Type: domain.IdPTypeGoogle, IsEnabled: true, ClientID: "id", ClientSecret: "secret"},
		{Name: "github", Type: domain.IdPTypeGitHub, IsEnabled: false},
		{Name: "corp", Type: domain.IdPTypeOIDC, IsEnabled: true, ClientID: "id", AuthURL: "https://corp/auth", TokenURL: "https://corp/token"},
	}, "https://sso.example.com/external/callback")
	require.NoError(t, err)

	assert.Equal(t, []string{"corp", "google"}, fedService.Names())

	_, err = fedService.GetProvider("github")
	assert.ErrorIs(t, err, federation.ErrProviderNotFound)
}

func TestFederationService_NewServiceRejectsMisconfiguredOIDC(t *testing.T) {
	_, err := federation.NewService([]domain.IdentityProvider{
		{Name: "corp", Type: domain.IdPTypeOIDC, IsEnabled: true, ClientID: "id"},
	}, "https://sso.example.com/external/callback")
	assert.ErrorIs(t, err, federation.ErrProviderMisconfigured)

	_, err = federation.NewService([]domain.IdentityProvider{
		{Name: "dir", Type: "LDAP", IsEnabled: true},
	}, "https://sso.example.com/external/callback")
	assert.ErrorIs(t, err, federation.ErrProviderMisconfigured)
}

func TestFederationService_GetAuthorizationURL(t *testing.T) {
	fedService, mockProvider := newMockService(t)
	mockProvider.EXPECT().AuthCodeURL("test_state", "http://localhost/callback/mockprov").Return("http://mockprovider.com/auth?state=test_state", nil)

	authURL, err := fedService.GetAuthorizationURL("mockprov", "test_state")
	require.NoError(t, err)
	assert.Equal(t, "http://mockprovider.com/auth?state=test_state", authURL)
}

func TestFederationService_GetAuthorizationURL_ProviderNotFound(t *testing.T) {
	fedService, _ := newMockService(t)

	_, err := fedService.GetAuthorizationURL("unknownprov", "test_state")
	assert.ErrorIs(t, err, federation.ErrProviderNotFound)
}

func TestFederationService_HandleCallback_Success(t *testing.T) {
	fedService, mockProvider := newMockService(t)

	expectedToken := &oauth2.Token{AccessToken: "valid_access_token"}
	expectedUserInfo := &federation.ExternalUserInfo{ProviderUserID: "ext123", Email: "user@provider.com"}

	mockProvider.EXPECT().ExchangeCode(gomock.Any(), "http://localhost/callback/mockprov", "auth_code").Return(expectedToken, nil)
	mockProvider.EXPECT().FetchUserInfo(gomock.Any(), expectedToken).Return(expectedUserInfo, nil)

	userInfo, err := fedService.HandleCallback(context.Background(), "mockprov", "session_state_val", "session_state_val", "auth_code")
	require.NoError(t, err)
	assert.Equal(t, expectedUserInfo, userInfo)
	assert.Equal(t, "user@provider.com", userInfo.LocalUsername())
}

func TestFederationService_HandleCallback_InvalidState(t *testing.T) {
	fedService, _ := newMockService(t)

	_, err := fedService.HandleCallback(context.Background(), "mockprov", "query_state", "different_session_state", "auth_code")
	assert.ErrorIs(t, err, federation.ErrInvalidAuthState)

	_, err = fedService.HandleCallback(context.Background(), "mockprov", "", "", "auth_code")
	assert.ErrorIs(t, err, federation.ErrInvalidAuthState)
}

func TestFederationService_HandleCallback_ExchangeFails(t *testing.T) {
	fedService, mockProvider := newMockService(t)
	mockProvider.EXPECT().ExchangeCode(gomock.Any(), gomock.Any(), "auth_code").Return(nil, errors.New("upstream down"))

	_, err := fedService.HandleCallback(context.Background(), "mockprov", "s", "s", "auth_code")
	assert.ErrorIs(t, err, federation.ErrExchangeCodeFailed)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestFederationService_HandleCallback_UserInfoFails(t *testing.T) {
	fedService, mockProvider := newMockService(t)
	token := &oauth2.Token{AccessToken: "t"}
	mockProvider.EXPECT().ExchangeCode(gomock.Any(), gomock.Any(), "auth_code").Return(token, nil)
	mockProvider.EXPECT().FetchUserInfo(gomock.Any(), token).Return(nil, errors.New("boom"))

	_, err := fedService.HandleCallback(context.Background(), "mockprov", "s", "s", "auth_code")
	assert.ErrorIs(t, err, federation.ErrFetchUserInfoFailed)
}

func TestFederationService_GenerateAuthState(t *testing.T) {
	fedService, err := federation.NewService(nil, "http://localhost/callback")
	require.NoError(t, err)

	a, err := fedService.GenerateAuthState()
	require.NoError(t, err)
	b, err := fedService.GenerateAuthState()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestFederationService_GetRedirectURLForProvider(t *testing.T) {
	fedService, err := federation.NewService(nil, "https://sso.example.com/external/callback/")
	require.NoError(t, err)

	assert.Equal(t, "https://sso.example.com/external/callback/google", fedService.GetRedirectURLForProvider("google"))
	assert.Equal(t, "https://sso.example.com/external/callback/a%2Fb", fedService.GetRedirectURLForProvider("a/b"))
}
