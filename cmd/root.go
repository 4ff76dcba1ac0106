package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"zm-cli/internal/client"
	"zm-cli/internal/config"
	"zm-cli/internal/session"
	"zm-cli/internal/store"
)

var cfgFile string
var jsonOutput bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "zm-cli",
	Short: "A CLI for interacting with the ZoneMinder API",
	Long: `Authenticate against a ZoneMinder server, list monitors and
recorded events, build live stream URLs, and export monitor metrics.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// .env overrides are handy in development; absence is not an error.
	_ = godotenv.Load()

	cobra.OnInitialize(func() { config.Init(cfgFile) })

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.zm-cli.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
}

// newClient wires the store tiers into a session manager and returns
// the API client around it. Every command shares this construction so
// there is exactly one session per invocation.
func newClient() *client.ZMClient {
	st := store.Store{
		Plain:  store.NewViperTier(),
		Secure: store.NewFileTier(config.SecretsPath()),
	}

	mode := session.RefreshAuto
	switch viper.GetString("refresh_mode") {
	case "token":
		mode = session.RefreshTokenOnly
	case "relogin":
		mode = session.RefreshReloginOnly
	}

	sm := session.New(st, session.Config{RefreshMode: mode})
	return client.New(sm)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Printf("Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
