package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session and credentials",
	Run: func(cmd *cobra.Command, args []string) {
		sm := newClient().Session()
		if err := sm.Logout(context.Background()); err != nil {
			log.Fatalf("Logout failed: %v", err)
		}
		fmt.Println("Logged out.")
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
