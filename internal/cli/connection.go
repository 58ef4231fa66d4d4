package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/knc/internal/observability"
	"github.com/valter-silva-au/knc/pkg/models"
)

var (
	testAll         bool
	testVariant     string
	testConcurrency int
	testNotify      bool
	testIncludeOff  bool
)

var testCmd = &cobra.Command{
	Use:   "test [id]",
	Short: "Test the platform connection behind configurations",
	Long: `Probe the platform endpoint each configuration points at.

Pass an id to test one configuration, or --all to test every enabled one
(optionally narrowed with --variant). With --notify, failures are posted
to the configured Slack webhook.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil || Tester == nil {
			return errNotInitialized
		}
		if (len(args) == 1) == testAll {
			return fmt.Errorf("pass either a configuration id or --all")
		}

		cfgs, err := testTargets(args)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(contextOrBackground(cmd), os.Interrupt)
		defer stop()

		results := Tester.TestAll(ctx, cfgs, testConcurrency)
		if err := render(cmd.OutOrStdout(), results, func(w io.Writer) { resultTable(w, results) }); err != nil {
			return err
		}

		failed := 0
		for _, r := range results {
			if !r.Success {
				failed++
			}
		}

		if testNotify && failed > 0 {
			if Notifier == nil {
				return fmt.Errorf("--notify requires notifications.slack_webhook to be configured")
			}
			alerts := observability.AlertsFromResults(results, time.Now())
			if err := Notifier.Notify(ctx, alerts); err != nil {
				return fmt.Errorf("sending notification: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Notified %d failure(s)\n", failed)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d connection test(s) failed", failed, len(results))
		}
		return nil
	},
}

func testTargets(args []string) ([]models.Config, error) {
	if len(args) == 1 {
		cfg, err := Registry.Get(args[0])
		if err != nil {
			return nil, err
		}
		return []models.Config{cfg}, nil
	}

	var variant models.ConfigVariant
	if testVariant != "" {
		v, err := models.ParseVariant(testVariant)
		if err != nil {
			return nil, err
		}
		variant = v
	}
	status := models.StatusEnabled
	if testIncludeOff {
		status = models.StatusAll
	}
	return searchAll(variant, "", status)
}

func resultTable(w io.Writer, results []models.TestResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No configurations to test.")
		return
	}
	t := newTable("ID", "VARIANT", "RESULT", "STATUS", "LATENCY", "MESSAGE")
	for _, r := range results {
		result := enabledStyle.Render("ok")
		if !r.Success {
			result = errorStyle.Render("FAIL")
		}
		status := ""
		if r.StatusCode != 0 {
			status = fmt.Sprint(r.StatusCode)
		}
		t.Row(r.ConfigID, string(r.Variant), result, status, r.Latency.Round(time.Millisecond).String(), r.Message)
	}
	fmt.Fprintln(w, t.String())
}

func init() {
	testCmd.Flags().BoolVar(&testAll, "all", false, "Test every enabled configuration")
	testCmd.Flags().StringVar(&testVariant, "variant", "", "With --all, only test this variant")
	testCmd.Flags().BoolVar(&testIncludeOff, "include-disabled", false, "With --all, also test disabled configurations")
	testCmd.Flags().IntVar(&testConcurrency, "concurrency", 4, "Probes in flight at once")
	testCmd.Flags().BoolVar(&testNotify, "notify", false, "Post failures to the Slack webhook")
	registerVariantCompletion(testCmd)
	testCmd.ValidArgsFunction = completeConfigIDs
	rootCmd.AddCommand(testCmd)
}

// contextOrBackground lets commands run outside Execute in tests.
func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
