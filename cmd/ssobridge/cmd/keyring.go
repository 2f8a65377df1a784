package cmd

import (
	"fmt"
	"time"

	"github.com/pilab-dev/ssobridge/internal/keyring"
	"github.com/pilab-dev/ssobridge/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// entryView is an entry without its key material.
type entryView struct {
	ID         string    `yaml:"id"`
	Generation int64     `yaml:"generation"`
	CreatedAt  time.Time `yaml:"created_at"`
	ExpiresAt  time.Time `yaml:"expires_at"`
	Expired    bool      `yaml:"expired"`
}

func viewOf(e keyring.Entry, now time.Time) entryView {
	return entryView{
		ID:         e.ID,
		Generation: e.Generation,
		CreatedAt:  e.CreatedAt,
		ExpiresAt:  e.ExpiresAt,
		Expired:    e.Expired(now),
	}
}

var keyringCmd = &cobra.Command{
	Use:   "keyring",
	Short: "Inspect and maintain the shared session key ring",
}

var keyringListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the key ring entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var c closers
		defer c.run()

		ring, err := openKeyRing(cmd.Context(), &c)
		if err != nil {
			return err
		}

		entries, err := ring.Entries(cmd.Context())
		if err != nil {
			return err
		}

		now := time.Now()
		views := make([]entryView, 0, len(entries))
		for _, e := range entries {
			views = append(views, viewOf(e, now))
		}

		out, err := yaml.Marshal(map[string]any{"ring": ring.Name(), "entries": views})
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))

		return nil
	},
}

var keyringRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Create the next key ring entry now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var c closers
		defer c.run()

		ring, err := openKeyRing(cmd.Context(), &c)
		if err != nil {
			return err
		}

		e, err := ring.Rotate(cmd.Context())
		if err != nil {
			return err
		}

		appLogger.Info(cmd.Context(), "Key ring rotated", log.Fields{
			"ring":       ring.Name(),
			"id":         e.ID,
			"generation": e.Generation,
			"expires_at": e.ExpiresAt,
		})
		fmt.Fprintln(cmd.OutOrStdout(), e.ID)

		return nil
	},
}

var keyringPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired key ring entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var c closers
		defer c.run()

		ring, err := openKeyRing(cmd.Context(), &c)
		if err != nil {
			return err
		}

		n, err := ring.Prune(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "pruned %d expired entries\n", n)

		return nil
	},
}

func init() {
	keyringCmd.AddCommand(keyringListCmd, keyringRotateCmd, keyringPruneCmd)
}
