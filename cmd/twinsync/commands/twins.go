package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pysugar/oura-twin-sync/internal/identity"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the connection state of both twins",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		if !a.flow.Credentials().IsConfigured(cmd.Context()) {
			fmt.Fprintln(out, "Client credentials are not configured. Run: twinsync credentials set")
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TWIN\tCONNECTED\tEXPIRES\tEXPIRED")
		for _, st := range a.flow.Status(cmd.Context()) {
			expires := "-"
			if st.ExpiresAt != nil {
				expires = st.ExpiresAt.Local().Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%t\t%s\t%t\n", st.Label, st.Connected, expires, st.Expired)
		}
		return tw.Flush()
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh <twin>",
	Short: "Refresh a twin's access token now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identity.Parse(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.flow.Refresh(cmd.Context(), id) {
			return fmt.Errorf("token refresh failed for %s", id.Label())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s token refreshed.\n", id.Label())
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <twin>",
	Short: "Forget a twin's tokens",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identity.Parse(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.flow.Disconnect(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s disconnected.\n", id.Label())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, refreshCmd, disconnectCmd)
}
