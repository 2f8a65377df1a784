package cmd

import (
	"net/http"

	ssogin "github.com/pilab-dev/ssobridge/api/gin"
	"github.com/pilab-dev/ssobridge/internal/claims"
	"github.com/pilab-dev/ssobridge/internal/relyingparty"
	"github.com/pilab-dev/ssobridge/log"
	"github.com/pilab-dev/ssobridge/mongodb"
	"github.com/spf13/cobra"
)

var rpCmd = &cobra.Command{
	Use:   "rp",
	Short: "Relying party commands",
}

var rpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a relying party that accepts the authorization service's sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		rc := cfg.RP

		if err := rc.Validate(); err != nil {
			return err
		}

		var c closers
		defer c.run()

		ring, err := openKeyRing(ctx, &c)
		if err != nil {
			return err
		}

		accounts, err := openAccounts(ctx, &c)
		if err != nil {
			return err
		}

		exchanger := relyingparty.NewOIDCClient(relyingparty.OIDCConfig{
			Issuer:        rc.Authority,
			ClientID:      rc.ClientID,
			ClientSecret:  rc.ClientSecret,
			RedirectURL:   rc.RedirectURL,
			Scopes:        rc.Scopes,
			FetchUserInfo: rc.FetchUserInfo,
			HTTPClient:    &http.Client{Timeout: rc.ExchangeTimeout},
		})

		svc := relyingparty.NewService(relyingparty.Config{
			SessionLifetime:         cfg.Session.Lifetime,
			RememberMeLoginDuration: cfg.Session.RememberMeDuration,
			ExchangeTimeout:         rc.ExchangeTimeout,
			PostLogoutRedirectURI:   rc.PostLogoutRedirectURI,
		}, exchanger, accounts, claims.NewMapper(accounts), newAuditSink("rp"))

		appLogger.Info(ctx, "Starting relying party", log.Fields{
			"authority": rc.Authority,
			"client_id": rc.ClientID,
		})

		return serve(ctx, "rp", rc.HTTPAddr, ssogin.NewRPAPI(svc, newSessionManager(ring, "rp", ssogin.RPCallbackPath)), mongodb.Ping)
	},
}

func init() {
	rpCmd.AddCommand(rpServeCmd)
}
