package cmd

import (
	ssogin "github.com/pilab-dev/ssobridge/api/gin"
	"github.com/pilab-dev/ssobridge/cache"
	"github.com/pilab-dev/ssobridge/client"
	"github.com/pilab-dev/ssobridge/domain"
	"github.com/pilab-dev/ssobridge/internal/claims"
	"github.com/pilab-dev/ssobridge/internal/federation"
	"github.com/pilab-dev/ssobridge/internal/login"
	"github.com/pilab-dev/ssobridge/internal/oidcflow"
	"github.com/pilab-dev/ssobridge/log"
	"github.com/pilab-dev/ssobridge/mongodb"
	"github.com/pilab-dev/ssobridge/services"
	"github.com/spf13/cobra"
)

var idpCmd = &cobra.Command{
	Use:   "idp",
	Short: "Authorization service commands",
}

var idpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OpenID Connect authorization service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		ic := cfg.IdP

		if err := ic.Validate(); err != nil {
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

		keys, err := services.LoadOrGenerateSigningKey(ic.SigningKeyPath)
		if err != nil {
			return err
		}

		registry, err := client.NewRegistry(ic.Clients)
		if err != nil {
			return err
		}

		fed, err := federation.NewService(ic.Providers, ic.ExternalCallbackURL())
		if err != nil {
			return err
		}

		requests := oidcflow.NewRequestStore(ic.RequestLifetime)
		c.add(requests.Close)
		codes := oidcflow.NewCodeStore(ic.CodeLifetime)
		c.add(codes.Close)
		tokens := cache.NewMemoryTokenStore(ic.AccessTokenLifetime)
		c.add(func() { _ = tokens.Close() })

		sink := newAuditSink("idp")
		mapper := claims.NewMapper(accounts)

		authz := services.NewAuthorizationService(services.AuthorizationConfig{
			Issuer:              ic.Issuer,
			CodeLifetime:        ic.CodeLifetime,
			AccessTokenLifetime: ic.AccessTokenLifetime,
			IDTokenLifetime:     ic.IDTokenLifetime,
		}, registry, requests, codes, tokens, keys, mapper, sink)

		opts := login.Options{
			AllowLocalLogin:         ic.AllowLocalLogin,
			AllowRememberLogin:      ic.AllowRememberLogin,
			RememberMeLoginDuration: cfg.Session.RememberMeDuration,
			SessionLifetime:         cfg.Session.Lifetime,
			ChallengePath:           ssogin.ExternalChallengePath,
		}

		api := ssogin.NewIdPAPI(ssogin.IdPAPIOptions{
			Engine:    login.NewEngine(opts, accounts, mapper, authz, enabledProviders(ic.Providers), sink),
			External:  login.NewExternalLogin(opts, fed, accounts, mapper, ic.ExchangeTimeout, sink),
			Authz:     authz,
			Sessions:  newSessionManager(ring, "idp", ssogin.ExternalCallbackPath),
			Providers: fed.Names(),
			Audit:     sink,
		})

		appLogger.Info(ctx, "Starting authorization service", log.Fields{
			"issuer":    ic.Issuer,
			"clients":   registry.Len(),
			"providers": fed.Names(),
			"kid":       keys.KeyID(),
		})

		return serve(ctx, "idp", ic.HTTPAddr, api, mongodb.Ping)
	},
}

func enabledProviders(all []domain.IdentityProvider) []domain.IdentityProvider {
	enabled := make([]domain.IdentityProvider, 0, len(all))
	for _, p := range all {
		if p.IsEnabled {
			enabled = append(enabled, p)
		}
	}

	return enabled
}

func init() {
	idpCmd.AddCommand(idpServeCmd)
}
