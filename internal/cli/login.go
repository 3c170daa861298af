package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with your provider account",
	Long: `Start an interactive browser login.

A URL is printed; open it in a browser and approve access. The resulting
credential is stored in the OS keyring and reused on later runs, so login
is only needed once per machine (or after revoking access).

Press Ctrl-C to abort a pending login.`,
	RunE: runLogin,
}

func init() {
	RootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := newAuthApp(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authURL, done, err := a.auth.StartLogin(ctx)
	if err != nil {
		return err
	}

	cmd.Println("Open this URL in your browser to sign in:")
	cmd.Println()
	cmd.Println("  " + authURL)
	cmd.Println()
	cmd.Println("Waiting for authorization...")

	select {
	case res := <-done:
		if res.Err != nil {
			return res.Err
		}
		if res.Credential.Email != "" {
			cmd.Printf("Signed in as %s\n", res.Credential.Email)
		} else {
			cmd.Println("Signed in")
		}
		return nil
	case <-ctx.Done():
		a.auth.CancelLogin()
		res := <-done
		if res.Err != nil {
			return fmt.Errorf("login aborted: %w", res.Err)
		}
		return nil
	}
}
