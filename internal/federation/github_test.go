package federation_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pilab-dev/ssobridge/domain"
	"github.com/pilab-dev/ssobridge/internal/federation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	githubOAuth2 "golang.org/x/oauth2/github"
)

func withGitHubAPI(t *testing.T, user, emails string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/user":
			_, _ = w.Write([]byte(user))
		case "/user/emails":
			_, _ = w.Write([]byte(emails))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	originalUserEndpoint := federation.GithubUserInfoEndpoint
	originalEmailsEndpoint := federation.GithubUserEmailsEndpoint
	federation.GithubUserInfoEndpoint = server.URL + "/user"
	federation.GithubUserEmailsEndpoint = server.URL + "/user/emails"
	t.Cleanup(func() {
		federation.GithubUserInfoEndpoint = originalUserEndpoint
		federation.GithubUserEmailsEndpoint = originalEmailsEndpoint
	})
}

func newGitHub(t *testing.T) *federation.GitHubProvider {
	t.Helper()
	provider, err := federation.NewGitHubProvider(&domain.IdentityProvider{
		Name:         "github",
		ClientID:     "gh-client-id",
		ClientSecret: "gh-client-secret",
	})
	require.NoError(t, err)

	return provider
}

func TestGitHubProvider_FetchUserInfo(t *testing.T) {
	withGitHubAPI(t, `{
		"id": 12345,
		"login": "testuser",
		"name": "Test User",
		"email": "public_email@example.com",
		"avatar_url": "https://github.com/avatar.png"
	}`, `[]`)

	userInfo, err := newGitHub(t).FetchUserInfo(context.Background(), &oauth2.Token{AccessToken: "gh-dummy-token"})
	require.NoError(t, err)

	assert.Equal(t, "12345", userInfo.ProviderUserID)
	assert.Equal(t, "public_email@example.com", userInfo.Email)
	assert.Equal(t, "Test User", userInfo.Name)
	assert.Equal(t, "testuser", userInfo.Username)
	assert.Equal(t, "testuser", userInfo.LocalUsername())
	assert.Equal(t, "https://github.com/avatar.png", userInfo.PictureURL)
	assert.Equal(t, "testuser", userInfo.RawData["login"])
}

func TestGitHubProvider_FetchUserInfo_PrivateEmail(t *testing.T) {
	withGitHubAPI(t, `{"id": 12345, "login": "testuser"}`, `[
		{"email": "other_email@example.com", "primary": false, "verified": true},
		{"email": "primary_unverified@example.com", "primary": true, "verified": false},
		{"email": "primary_verified@example.com", "primary": true, "verified": true}
	]`)

	userInfo, err := newGitHub(t).FetchUserInfo(context.Background(), &oauth2.Token{AccessToken: "gh-dummy-token"})
	require.NoError(t, err)

	assert.Equal(t, "primary_verified@example.com", userInfo.Email)
	assert.Equal(t, "testuser", userInfo.Name, "login is used when the profile has no name")
}

func TestGitHubProvider_FetchUserInfo_EmailsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/user" {
			_, _ = w.Write([]byte(`{"id": 1, "login": "u"}`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	originalUserEndpoint := federation.GithubUserInfoEndpoint
	originalEmailsEndpoint := federation.GithubUserEmailsEndpoint
	federation.GithubUserInfoEndpoint = server.URL + "/user"
	federation.GithubUserEmailsEndpoint = server.URL + "/user/emails"
	defer func() {
		federation.GithubUserInfoEndpoint = originalUserEndpoint
		federation.GithubUserEmailsEndpoint = originalEmailsEndpoint
	}()

	userInfo, err := newGitHub(t).FetchUserInfo(context.Background(), &oauth2.Token{AccessToken: "t"})
	require.NoError(t, err)
	assert.Empty(t, userInfo.Email)
	assert.Equal(t, "u", userInfo.Username)
}

func TestGitHubProvider_FetchUserInfo_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message": "Bad credentials"}`))
	}))
	defer server.Close()

	original := federation.GithubUserInfoEndpoint
	federation.GithubUserInfoEndpoint = server.URL + "/user"
	defer func() { federation.GithubUserInfoEndpoint = original }()

	_, err := newGitHub(t).FetchUserInfo(context.Background(), &oauth2.Token{AccessToken: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestGitHubProvider_OAuth2Config(t *testing.T) {
	provider := newGitHub(t)
	assert.Equal(t, domain.IdPTypeGitHub, provider.Type())

	oauthCfg, err := provider.OAuth2Config("http://localhost/callback/github")
	require.NoError(t, err)
	assert.Equal(t, githubOAuth2.Endpoint, oauthCfg.Endpoint)
	assert.ElementsMatch(t, []string{"read:user", "user:email"}, oauthCfg.Scopes)
	assert.Equal(t, "http://localhost/callback/github", oauthCfg.RedirectURL)
}
