package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/knc/pkg/models"
)

var settingsReveal bool

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change operator settings",
	Long: `Operator settings apply to every configuration: the default knowledge
network used by ontology object probes, the local auth token, the user id
sent with platform requests, and the probe timeout.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show operator settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Settings == nil {
			return fmt.Errorf("settings store not initialized")
		}
		s, err := Settings.Settings()
		if err != nil {
			return err
		}
		if !settingsReveal {
			s = s.Redacted()
		}
		return render(cmd.OutOrStdout(), s, func(w io.Writer) { settingsTable(w, s) })
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set key=value...",
	Short: "Change operator settings",
	Long: `Change one or more operator settings.

Keys: knowledge_network_id, auth_token, user_id, probe_timeout_seconds.
An empty value clears the setting.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Settings == nil {
			return fmt.Errorf("settings store not initialized")
		}
		s, err := Settings.Settings()
		if err != nil {
			return err
		}
		for _, arg := range args {
			key, value, ok := strings.Cut(arg, "=")
			if !ok {
				return fmt.Errorf("invalid setting %q: expected key=value", arg)
			}
			if err := applySetting(&s, key, value); err != nil {
				return err
			}
		}
		if err := Settings.Save(s); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Settings saved.")
		return nil
	},
}

// applySetting assigns one setting, accepting snake_case or camelCase keys.
func applySetting(s *models.GlobalSettings, key, value string) error {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "_", "") {
	case "knowledgenetworkid":
		s.KnowledgeNetworkID = value
	case "authtoken":
		s.AuthToken = value
	case "userid":
		s.UserID = value
	case "probetimeoutseconds":
		if value == "" {
			s.ProbeTimeoutSeconds = 0
			return nil
		}
		n, err := cast.ToIntE(value)
		if err != nil || n < 0 {
			return fmt.Errorf("probe_timeout_seconds must be a non-negative integer, got %q", value)
		}
		s.ProbeTimeoutSeconds = n
	default:
		return fmt.Errorf("unknown setting %q (use knowledge_network_id, auth_token, user_id, probe_timeout_seconds)", key)
	}
	return nil
}

func settingsTable(w io.Writer, s models.GlobalSettings) {
	timeout := "default"
	if s.ProbeTimeoutSeconds > 0 {
		timeout = fmt.Sprintf("%ds", s.ProbeTimeoutSeconds)
	}
	t := newTable("SETTING", "VALUE")
	t.Row("knowledge_network_id", s.KnowledgeNetworkID)
	t.Row("auth_token", s.AuthToken)
	t.Row("user_id", s.UserID)
	t.Row("probe_timeout_seconds", timeout)
	fmt.Fprintln(w, t.String())
}

func init() {
	settingsShowCmd.Flags().BoolVar(&settingsReveal, "reveal", false, "Show the auth token unmasked")
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
