package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var (
	outputFormat string
	ephemeral    bool
)

var rootCmd = &cobra.Command{
	Use:   "knc",
	Short: "Knowledge-network API configuration console",
	Long: `knc manages the API configurations a knowledge-network console uses to
reach its platform: knowledge networks, ontology object types, metric models,
agents and workflows.

It provides commands to create, edit, search and toggle configurations,
export and import them as versioned JSON documents, and test the platform
connection behind each one.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "knc %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatTable, "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Keep configurations in memory only for this invocation")
	_ = rootCmd.RegisterFlagCompletionFunc("output", completeOutputFormats)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
