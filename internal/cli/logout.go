package cli

import (
	"github.com/spf13/cobra"
)

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored credential",
	Long: `Delete the credential from the OS keyring.

The local database is left in place; its contents stay readable after a
fresh login with the same account. Logging out while already logged out
succeeds.`,
	RunE: runLogout,
}

func init() {
	RootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := newAuthApp(cmd)
	if err != nil {
		return err
	}

	if err := a.auth.Logout(); err != nil {
		return err
	}
	cmd.Println("Logged out")
	return nil
}
