package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var completionInstall bool

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Set up shell completions for knc",
	Long: `Set up shell tab-completions for knc commands, flags, configuration ids
and variants.

Supported shells: bash, zsh, fish, powershell

Quick install (writes the script under your home directory):

  knc completion bash --install
  knc completion zsh --install
  knc completion fish --install

Or print the completion script to stdout:

  eval "$(knc completion bash)"
  knc completion fish | source`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MaximumNArgs(1),
	RunE:      runCompletion,
}

// completionShell knows how to generate one shell's script and where a
// per-user install puts it, relative to the home directory.
type completionShell struct {
	generate func(w io.Writer) error
	target   []string
	hint     string
}

var completionShells = map[string]completionShell{
	"bash": {
		generate: func(w io.Writer) error { return rootCmd.GenBashCompletionV2(w, true) },
		target:   []string{".local", "share", "bash-completion", "completions", "knc"},
		hint:     "Restart your shell or run: source %s",
	},
	"zsh": {
		generate: rootCmd.GenZshCompletion,
		target:   []string{".local", "share", "zsh", "site-functions", "_knc"},
		hint:     "Ensure the directory of %s is in your fpath, then run: autoload -Uz compinit && compinit",
	},
	"fish": {
		generate: func(w io.Writer) error { return rootCmd.GenFishCompletion(w, true) },
		target:   []string{".config", "fish", "completions", "knc.fish"},
		hint:     "Completions from %s load in new fish sessions automatically.",
	},
	"powershell": {
		generate: rootCmd.GenPowerShellCompletionWithDesc,
	},
}

func init() {
	completionCmd.Flags().BoolVar(&completionInstall, "install", false,
		"Install completions into your home directory")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}

func runCompletion(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	shell, ok := completionShells[args[0]]
	if !ok {
		return fmt.Errorf("unsupported shell %q (supported: bash, zsh, fish, powershell)", args[0])
	}
	if !completionInstall {
		return shell.generate(cmd.OutOrStdout())
	}
	if shell.target == nil {
		return fmt.Errorf("automatic install is not supported for %s; add the output of 'knc completion %s' to your profile", args[0], args[0])
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("detecting home directory: %w", err)
	}
	target := filepath.Join(append([]string{home}, shell.target...)...)
	if err := writeCompletionFile(target, shell.generate); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s completions installed to %s\n", args[0], target)
	fmt.Fprintf(cmd.OutOrStdout(), shell.hint+"\n", target)
	return nil
}

// writeCompletionFile creates target and its parent directory, then writes
// the script with genFn. Close errors are reported.
func writeCompletionFile(target string, genFn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("creating completion directory: %w", err)
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating completion file %s: %w", target, err)
	}

	writeErr := genFn(f)
	closeErr := f.Close()

	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("closing completion file %s: %w", target, closeErr)
	}
	return nil
}
