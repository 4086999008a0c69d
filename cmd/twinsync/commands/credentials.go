package commands

import (
	"fmt"

	"github.com/pysugar/oura-twin-sync/internal/auth/token"
	"github.com/spf13/cobra"
)

var (
	credClientID     string
	credClientSecret string
	credRedirectURI  string
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage the Oura OAuth client credentials",
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Save the client id, secret and redirect URI",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if credClientID == "" || credClientSecret == "" {
			return fmt.Errorf("--client-id and --client-secret are required")
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		err = a.flow.Credentials().Save(cmd.Context(), token.Credential{
			ClientID:     credClientID,
			ClientSecret: credClientSecret,
			RedirectURI:  credRedirectURI,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Credentials saved.")
		return nil
	},
}

var credentialsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the saved credentials",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.flow.Credentials().Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Credentials cleared.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(credentialsSetCmd, credentialsClearCmd)
	credentialsSetCmd.Flags().StringVar(&credClientID, "client-id", "", "OAuth client id")
	credentialsSetCmd.Flags().StringVar(&credClientSecret, "client-secret", "", "OAuth client secret")
	credentialsSetCmd.Flags().StringVar(&credRedirectURI, "redirect-uri", "", "registered redirect URI (default http://localhost:8501)")
}
