package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"zm-cli/internal/client"
)

// Variables to hold flag values
var (
	eventMonitors string
	eventPage     int
	eventLimit    int
	eventFrom     string
	eventTo       string
	eventID       int64
	snapshotOut   string
	snapshotSize  int
)

// Parent Command
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Browse recorded events",
	Long:  `List recorded events page by page, or save an event snapshot.`,
}

// List Command
var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List events, newest first",
	Example: `  zm-cli events list --monitors "1,3" --limit 20
  zm-cli events list --from "2026-08-01 00:00:00" --page 2`,
	Run: func(cmd *cobra.Command, args []string) {
		api := newClient()

		opts := client.ListEventsOptions{
			Page:  eventPage,
			Limit: eventLimit,
		}

		for _, part := range strings.Split(eventMonitors, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.Atoi(part)
			if err != nil {
				log.Fatalf("Invalid monitor id %q", part)
			}
			opts.MonitorIDs = append(opts.MonitorIDs, id)
		}

		var err error
		if opts.From, err = parseServerTime(eventFrom); err != nil {
			log.Fatalf("Invalid --from: %v", err)
		}
		if opts.To, err = parseServerTime(eventTo); err != nil {
			log.Fatalf("Invalid --to: %v", err)
		}

		page, err := api.ListEvents(context.Background(), opts)
		if err != nil {
			fmt.Printf("Error fetching events: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			printJSON(page)
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tMONITOR\tSTART\tEND\tCAUSE\tFRAMES\tALARM")
		fmt.Fprintln(w, "--\t-------\t-----\t---\t-----\t------\t-----")
		for _, e := range page.Events {
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%d\t%d\n",
				e.ID, e.MonitorID, e.StartTime, e.EndTime, e.Cause, e.Frames, e.AlarmFrames)
		}
		w.Flush()

		fmt.Printf("\nPage %d of %d", page.CurrentPage, page.TotalPages)
		if page.HasMore() {
			fmt.Printf(" (more available: --page %d)", page.CurrentPage+1)
		}
		fmt.Println()
	},
}

// Snapshot Command
var eventsSnapshotCmd = &cobra.Command{
	Use:     "snapshot",
	Short:   "Save an event's snapshot frame as JPEG",
	Example: `  zm-cli events snapshot --id 12345 --output event.jpg`,
	Run: func(cmd *cobra.Command, args []string) {
		api := newClient()

		data, err := api.DownloadEventSnapshot(context.Background(), eventID, snapshotSize, 0)
		if err != nil {
			fmt.Printf("Error getting snapshot: %v\n", err)
			os.Exit(1)
		}

		if err := os.WriteFile(snapshotOut, data, 0644); err != nil {
			fmt.Printf("Error writing file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Snapshot saved to %s\n", snapshotOut)
	},
}

func parseServerTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation("2006-01-02 15:04:05", s, time.Local)
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.AddCommand(eventsListCmd)
	eventsCmd.AddCommand(eventsSnapshotCmd)

	eventsListCmd.Flags().StringVar(&eventMonitors, "monitors", "", "Comma separated monitor IDs to filter by")
	eventsListCmd.Flags().IntVar(&eventPage, "page", 1, "Page number")
	eventsListCmd.Flags().IntVar(&eventLimit, "limit", 20, "Events per page")
	eventsListCmd.Flags().StringVar(&eventFrom, "from", "", `Start of time range ("2006-01-02 15:04:05")`)
	eventsListCmd.Flags().StringVar(&eventTo, "to", "", `End of time range ("2006-01-02 15:04:05")`)

	eventsSnapshotCmd.Flags().Int64Var(&eventID, "id", 0, "ID of the event")
	eventsSnapshotCmd.Flags().StringVar(&snapshotOut, "output", "snapshot.jpg", "Output filename")
	eventsSnapshotCmd.Flags().IntVar(&snapshotSize, "width", 600, "Snapshot width in pixels")
	_ = eventsSnapshotCmd.MarkFlagRequired("id")
}
