package main

import (
	"fmt"
	"os"

	portalAuth "github.com/MrEthical07/portalAuth"
	"github.com/spf13/cobra"
)

func newSignupCmd(g *globalFlags) *cobra.Command {
	var (
		email    string
		pass     string
		name     string
		roleFlag string
	)
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and its profile row",
		Long: `signup creates an account directly in the backing store without signing
anybody in. The password is read from --password or PORTAL_SIGNUP_PASSWORD.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" || name == "" || roleFlag == "" {
				return fmt.Errorf("%w: --email, --name and --role", errMissingFlag)
			}
			role, err := portalAuth.ParseRole(roleFlag)
			if err != nil {
				return err
			}
			if pass == "" {
				pass = os.Getenv("PORTAL_SIGNUP_PASSWORD")
			}
			if pass == "" {
				return fmt.Errorf("%w: --password", errMissingFlag)
			}

			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			if cfg.Dev {
				return fmt.Errorf("signup needs a persistent redis; drop --dev")
			}

			in, err := openInfra(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer in.close()

			id, err := in.backend.CreateAccount(cmd.Context(), email, pass, portalAuth.SignUpAttributes{
				DisplayName: name,
				Role:        role,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) as %s\n", id.Email, id.UserID, role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&pass, "password", "", "account password")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&roleFlag, "role", "", "student, teacher or committee")
	return cmd
}
