package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored session for the configured realm",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		a.svc.Logout()
		if !jsonOutput {
			fmt.Fprintf(cmd.OutOrStdout(), "Logged out of %s\n", a.svc.Realm())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
