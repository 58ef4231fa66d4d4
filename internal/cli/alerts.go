package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/knc/internal/observability"
)

var alertsNotify bool

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show failing connections from recent tests",
	Long: `Evaluate the connection test history in the event log and display the
configurations whose latest test failed. Configurations failing several tests
in a row are escalated.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if AlertEngine == nil {
			return fmt.Errorf("alert engine not initialized (event log may be disabled)")
		}

		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			return fmt.Errorf("evaluating alerts: %w", err)
		}

		if alertsNotify && len(alerts) > 0 {
			if Notifier == nil {
				return fmt.Errorf("--notify requires notifications.slack_webhook to be configured")
			}
			if err := Notifier.Notify(contextOrBackground(cmd), alerts); err != nil {
				return fmt.Errorf("sending notification: %w", err)
			}
		}

		if alerts == nil {
			alerts = []observability.Alert{}
		}
		return render(cmd.OutOrStdout(), alerts, func(w io.Writer) { printAlerts(w, alerts) })
	},
}

func printAlerts(w io.Writer, alerts []observability.Alert) {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "No active alerts.")
		return
	}

	fmt.Fprintf(w, "%d active alert(s):\n\n", len(alerts))
	for _, alert := range alerts {
		severity := strings.ToUpper(string(alert.Severity))
		fmt.Fprintf(w, "  [%s] %s\n", severity, alert.Message)
		fmt.Fprintf(w, "         %s, triggered at %s\n\n", alert.Condition, alert.TriggeredAt.Format("2006-01-02 15:04 UTC"))
	}
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsNotify, "notify", false, "Post the alerts to the Slack webhook")
	rootCmd.AddCommand(alertsCmd)
}
