package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/knc/internal/core"
)

// WorkspaceInit is the WorkspaceInitializer used by the init command.
// Set during application wiring.
var WorkspaceInit core.WorkspaceInitializer

var (
	initBackend  string
	initPlatform string
	initTimeout  int
	initNoSeed   bool
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a knc workspace",
	Long: `Write a commented .kncconfig, create the local storage directory and add
knc's local state files to .gitignore.

Safe to run on existing workspaces: files that already exist are skipped
and not overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if WorkspaceInit == nil {
			return fmt.Errorf("workspace initializer not initialized")
		}

		basePath := "."
		if len(args) > 0 {
			basePath = args[0]
		}
		absPath, err := filepath.Abs(basePath)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		result, err := WorkspaceInit.Init(core.InitConfig{
			BasePath:       absPath,
			Backend:        initBackend,
			PlatformURL:    initPlatform,
			TimeoutSeconds: initTimeout,
			SeedDefaults:   !initNoSeed,
		})
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if len(result.Created) > 0 {
			fmt.Fprintln(w, "Created:")
			for _, p := range result.Created {
				rel, _ := filepath.Rel(absPath, p)
				fmt.Fprintf(w, "  %s\n", rel)
			}
		}
		if len(result.Skipped) > 0 {
			fmt.Fprintln(w, "Skipped (already exist):")
			for _, p := range result.Skipped {
				rel, _ := filepath.Rel(absPath, p)
				fmt.Fprintf(w, "  %s\n", rel)
			}
		}

		fmt.Fprintf(w, "\nWorkspace initialized at %s\n", absPath)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initBackend, "backend", "", "Storage backend (file, redis, sql, memory)")
	initCmd.Flags().StringVar(&initPlatform, "platform-url", "", "Base URL of the knowledge-network platform")
	initCmd.Flags().IntVar(&initTimeout, "timeout", 0, "Platform request timeout in seconds")
	initCmd.Flags().BoolVar(&initNoSeed, "no-seed", false, "Start with an empty registry instead of the default configurations")
	rootCmd.AddCommand(initCmd)
}
