package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show server version and daemon status",
	Run: func(cmd *cobra.Command, args []string) {
		api := newClient()
		ctx := context.Background()

		v, err := api.Version(ctx)
		if err != nil {
			log.Fatalf("Version check failed: %v", err)
		}

		running, err := api.DaemonCheck(ctx)
		daemon := "unknown"
		if err == nil {
			daemon = "stopped"
			if running {
				daemon = "running"
			}
		}

		if jsonOutput {
			printJSON(map[string]string{
				"version":    v.Version,
				"apiversion": v.APIVersion,
				"daemon":     daemon,
			})
			return
		}

		fmt.Printf("Server version: %s\nAPI version:    %s\nDaemon:         %s\n",
			v.Version, v.APIVersion, daemon)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
