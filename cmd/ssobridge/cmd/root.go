package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/pilab-dev/ssobridge/config"
	"github.com/pilab-dev/ssobridge/log"
	"github.com/spf13/cobra"
)

// AppName is the binary name.
const AppName = "ssobridge"

var (
	cfgFile   string
	cfg       *config.Config
	appLogger log.Logger
)

var rootCmd = &cobra.Command{
	Use:   AppName,
	Short: "ssobridge runs the authorization service and relying parties of one SSO domain",
	Long: `ssobridge hosts an OpenID Connect authorization service and relying party
web services that share a single session key ring, so a visitor signed in at
one of them is signed in at all of them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		appLogger = log.Setup(log.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
		appLogger.Debug(cmd.Context(), "Configuration loaded", log.Fields{
			"keyring_backend": cfg.KeyRing.Backend,
			"keyring_name":    cfg.KeyRing.ApplicationName,
		})

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./config.yaml or /etc/ssobridge/config.yaml)")

	rootCmd.AddCommand(idpCmd, rpCmd, keyringCmd, accountCmd)
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if appLogger != nil {
			appLogger.Error(ctx, "Command failed", err)
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return 1
	}

	return 0
}
