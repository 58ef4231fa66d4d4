package cli

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	kncmcp "github.com/valter-silva-au/knc/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the knc MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the knc MCP server on stdio",
	Long: `Start the knc MCP server on stdio transport.

The server exposes the configuration registry as MCP tools that AI
assistants can call: list_configs, get_config, search_configs,
test_connection, export_configs, get_activity, get_alerts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return errNotInitialized
		}

		srv := kncmcp.NewServer(kncmcp.Services{
			Registry:     Registry,
			Serializer:   Serializer,
			Tester:       Tester,
			ActivityCalc: ActivityCalc,
			AlertEngine:  AlertEngine,
		}, appVersion)

		ctx, stop := signal.NotifyContext(contextOrBackground(cmd), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
