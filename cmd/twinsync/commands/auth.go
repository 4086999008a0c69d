package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/pysugar/oura-twin-sync/internal/auth/oura"
	"github.com/pysugar/oura-twin-sync/internal/identity"
	"github.com/spf13/cobra"
)

var errNonceStateNotShared = errors.New("nonce state kept in the memory store dies with this process; use `twinsync login`, or set state_store: redis so `twinsync serve` can complete the callback")

var authURLCmd = &cobra.Command{
	Use:   "auth-url <twin>",
	Short: "Print the Oura authorization URL for a twin",
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
		if !a.cfg.StateOutlivesProcess() {
			return errNonceStateNotShared
		}

		u, err := a.flow.AuthorizationURL(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), u)
		return nil
	},
}

var loginTimeout time.Duration

var loginCmd = &cobra.Command{
	Use:   "login <twin>",
	Short: "Connect a twin through the browser, waiting on the redirect URI",
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

		u, err := a.flow.AuthorizationURL(cmd.Context(), id)
		if err != nil {
			return err
		}
		cred := a.flow.Credentials().Load(cmd.Context())

		results, shutdown, err := a.flow.StartCallbackServer(cred.RedirectURI)
		if err != nil {
			return err
		}
		defer shutdown()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Open this URL and sign in with %s's Oura account:\n\n  %s\n\n", id.Label(), u)

		select {
		case res := <-results:
			if res.Err != nil {
				return res.Err
			}
			if res.Twin != id {
				fmt.Fprintf(out, "Note: the redirect was for %s, not %s.\n", res.Twin.Label(), id.Label())
			}
			fmt.Fprintf(out, "%s connected.\n", res.Twin.Label())
			return nil
		case <-time.After(loginTimeout):
			return fmt.Errorf("no authorization response within %s", loginTimeout)
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}
	},
}

func init() {
	rootCmd.AddCommand(authURLCmd, loginCmd)
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", oura.CallbackTimeout, "how long to wait for the browser")
}
