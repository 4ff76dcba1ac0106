package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// Variables to hold flag values
var (
	host     string
	user     string
	pass     string
	remember bool
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with the ZoneMinder server",
	Long: `Authenticates with the given credentials and saves the session
tokens locally for future commands.

Example:
  zm-cli login --host "https://zm.example.com/zm" --username admin --password secret --remember`,
	Run: func(cmd *cobra.Command, args []string) {
		api := newClient()
		sm := api.Session()
		ctx := context.Background()

		if host != "" {
			// Switching servers invalidates any prior session.
			if err := sm.SetBaseURL(host); err != nil {
				log.Fatalf("Failed to set server URL: %v", err)
			}
		}

		fmt.Printf("Authenticating against %s as user '%s'...\n", sm.BaseURL(), user)

		if err := sm.Login(ctx, user, pass, remember); err != nil {
			log.Fatalf("Login failed: %v", err)
		}

		v, err := api.Version(ctx)
		if err != nil {
			log.Fatalf("Login succeeded but version check failed: %v", err)
		}

		fmt.Printf("Logged in. Server version %s (API %s). Session saved.\n", v.Version, v.APIVersion)
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringVar(&host, "host", "", "Server base URL (e.g. https://zm.example.com/zm)")
	loginCmd.Flags().StringVarP(&user, "username", "u", "", "ZoneMinder username")
	loginCmd.Flags().StringVarP(&pass, "password", "p", "", "ZoneMinder password")
	loginCmd.Flags().BoolVar(&remember, "remember", false, "Persist credentials for silent re-login")

	_ = loginCmd.MarkFlagRequired("username")
	_ = loginCmd.MarkFlagRequired("password")
}
