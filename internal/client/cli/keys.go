package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stellar/go/keypair"
)

func (a *App) keygenCmd() *cobra.Command {
	var (
		seal         bool
		email        string
		passwordHash string
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new Stellar keypair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !seal {
				kp, err := keypair.Random()
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "public key:  %s\nsecret seed: %s\n", kp.Address(), kp.Seed())
				return nil
			}

			p, err := a.passphrase(email, passwordHash, "PIN")
			if err != nil {
				return err
			}
			pk, ciphertext, err := a.vault.Generate(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "public key: %s\nciphertext: %s\n", pk, ciphertext)
			return nil
		},
	}
	cmd.Flags().BoolVar(&seal, "seal", false, "print the seed sealed under account secrets instead of in clear")
	cmd.Flags().StringVar(&email, "email", "", "account email (sealing)")
	cmd.Flags().StringVar(&passwordHash, "password-hash", "", "stored password hash (sealing)")
	return cmd
}

func (a *App) verifyCmd() *cobra.Command {
	var (
		email        string
		passwordHash string
		publicKey    string
	)
	cmd := &cobra.Command{
		Use:   "verify <ciphertext>",
		Short: "Check that a sealed seed opens under the given account secrets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.passphrase(email, passwordHash, "PIN")
			if err != nil {
				return err
			}
			s, err := a.vault.Open(cmd.Context(), args[0], p)
			if err != nil {
				return err
			}
			defer s.Close()

			if publicKey != "" && publicKey != s.Address() {
				return fmt.Errorf("seed opens but belongs to %s, not %s", s.Address(), publicKey)
			}
			fmt.Fprintf(a.out, "ok: %s\n", s.Address())
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&passwordHash, "password-hash", "", "stored password hash")
	cmd.Flags().StringVar(&publicKey, "public-key", "", "expected public key")
	return cmd
}

func (a *App) reencryptCmd() *cobra.Command {
	var (
		email, passwordHash       string
		newEmail, newPasswordHash string
	)
	cmd := &cobra.Command{
		Use:   "reencrypt <ciphertext>",
		Short: "Re-seal a seed under new account secrets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			old, err := a.passphrase(email, passwordHash, "Current PIN")
			if err != nil {
				return err
			}

			next := old
			if newEmail != "" {
				next.Email = strings.ToLower(strings.TrimSpace(newEmail))
			}
			if newPasswordHash != "" {
				next.PasswordHash = newPasswordHash
			}
			pin, err := a.secret("New PIN (empty keeps the current one)")
			if err != nil {
				return err
			}
			if pin != "" {
				next.PIN = pin
			}

			out, err := a.vault.Reseal(cmd.Context(), args[0], old, next)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "ciphertext: %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "current account email")
	cmd.Flags().StringVar(&passwordHash, "password-hash", "", "current password hash")
	cmd.Flags().StringVar(&newEmail, "new-email", "", "new account email")
	cmd.Flags().StringVar(&newPasswordHash, "new-password-hash", "", "new password hash")
	return cmd
}
