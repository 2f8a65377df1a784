package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pilab-dev/ssobridge/domain"
	"github.com/pilab-dev/ssobridge/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var accountCmd = &cobra.Command{
	Use:     "account",
	Short:   "Manage local accounts",
	Aliases: []string{"accounts"},
}

var accountCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a local account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		username, _ := cmd.Flags().GetString("username")
		email, _ := cmd.Flags().GetString("email")
		fullName, _ := cmd.Flags().GetString("full-name")
		password, _ := cmd.Flags().GetString("password")
		inactive, _ := cmd.Flags().GetBool("inactive")

		username = strings.TrimSpace(username)
		if username == "" {
			return errors.New("username is required via --username flag")
		}

		if password == "" {
			var err error
			if password, err = promptPassword(); err != nil {
				return err
			}
		}

		var c closers
		defer c.run()

		repo, err := openAccounts(cmd.Context(), &c)
		if err != nil {
			return err
		}

		acc, err := repo.Create(cmd.Context(), &domain.Account{
			Username: username,
			Email:    email,
			FullName: fullName,
			Active:   !inactive,
		}, password)
		if errors.Is(err, domain.ErrUsernameTaken) {
			return fmt.Errorf("username %q is already registered", username)
		}
		if err != nil {
			return err
		}

		appLogger.Info(cmd.Context(), "Account created", log.Fields{"account_id": acc.ID, "username": acc.Username})
		fmt.Fprintln(cmd.OutOrStdout(), acc.ID)

		return nil
	},
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("password is required via --password flag when stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, "Enter password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Fprint(os.Stderr, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	if len(first) == 0 {
		return "", errors.New("password must not be empty")
	}

	return string(first), nil
}

func init() {
	accountCreateCmd.Flags().String("username", "", "login name (required)")
	accountCreateCmd.Flags().String("email", "", "email address")
	accountCreateCmd.Flags().String("full-name", "", "full name")
	accountCreateCmd.Flags().String("password", "", "password, prompted for when omitted")
	accountCreateCmd.Flags().Bool("inactive", false, "create the account disabled")

	accountCmd.AddCommand(accountCreateCmd)
}
