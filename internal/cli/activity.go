package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/knc/internal/observability"
)

var activitySince string

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Summarise configuration changes and connection tests",
	Long: `Display activity derived from the event log: how many configurations were
created, updated, deleted, duplicated, toggled and imported, how many
connection tests ran and which configurations are currently failing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ActivityCalc == nil {
			return fmt.Errorf("activity calculator not initialized (event log may be disabled)")
		}

		sinceTime, err := parseSinceDuration(activitySince)
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		activity, err := ActivityCalc.Calculate(sinceTime)
		if err != nil {
			return fmt.Errorf("calculating activity: %w", err)
		}

		return render(cmd.OutOrStdout(), activity, func(w io.Writer) {
			printActivity(w, sinceTime, activity)
		})
	},
}

func printActivity(w io.Writer, since time.Time, a *observability.Activity) {
	fmt.Fprintf(w, "Activity (since %s)\n\n", since.Format("2006-01-02"))
	fmt.Fprintf(w, "  %-24s %d\n", "Events recorded:", a.EventCount)
	fmt.Fprintf(w, "  %-24s %d\n", "Created:", a.Created)
	fmt.Fprintf(w, "  %-24s %d\n", "Updated:", a.Updated)
	fmt.Fprintf(w, "  %-24s %d\n", "Deleted:", a.Deleted)
	fmt.Fprintf(w, "  %-24s %d\n", "Duplicated:", a.Duplicated)
	fmt.Fprintf(w, "  %-24s %d\n", "Toggled:", a.Toggled)
	fmt.Fprintf(w, "  %-24s %d\n", "Imports:", a.Imports)
	fmt.Fprintf(w, "  %-24s %d (%d failed)\n", "Connection tests:", a.ProbesRun, a.ProbesFailed)

	if len(a.ByVariant) > 0 {
		fmt.Fprintln(w, "\n  Events by variant:")
		variants := make([]string, 0, len(a.ByVariant))
		for v := range a.ByVariant {
			variants = append(variants, v)
		}
		sort.Strings(variants)
		for _, v := range variants {
			fmt.Fprintf(w, "    %-22s %d\n", v+":", a.ByVariant[v])
		}
	}

	if len(a.FailingConfigs) > 0 {
		fmt.Fprintln(w, "\n  Currently failing:")
		for _, id := range a.FailingConfigs {
			fmt.Fprintf(w, "    %s\n", id)
		}
	}

	if a.OldestEvent != nil {
		fmt.Fprintf(w, "\n  %-24s %s\n", "Oldest event:", a.OldestEvent.Format(time.RFC3339))
	}
	if a.NewestEvent != nil {
		fmt.Fprintf(w, "  %-24s %s\n", "Newest event:", a.NewestEvent.Format(time.RFC3339))
	}
}

// parseSinceDuration parses a human-friendly duration string like "7d", "30d",
// or "24h" and returns the corresponding time in the past.
func parseSinceDuration(s string) (time.Time, error) {
	now := time.Now().UTC()
	s = strings.TrimSpace(s)
	if s == "" {
		return now.AddDate(0, 0, -7), nil
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid day duration %q", s)
		}
		return now.AddDate(0, 0, -days), nil
	}

	if strings.HasSuffix(s, "h") {
		hours, err := strconv.Atoi(strings.TrimSuffix(s, "h"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid hour duration %q", s)
		}
		return now.Add(-time.Duration(hours) * time.Hour), nil
	}

	return time.Time{}, fmt.Errorf("unsupported duration format %q (use e.g. 7d, 30d, 24h)", s)
}

func init() {
	activityCmd.Flags().StringVar(&activitySince, "since", "7d", "Time window (e.g. 7d, 30d, 24h)")
	rootCmd.AddCommand(activityCmd)
}
