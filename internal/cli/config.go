package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/knc/internal/core"
	"github.com/valter-silva-au/knc/pkg/models"
)

var (
	configVariant string
	configStatus  string
	configFile    string
	configSets    []string
	configPartial bool
)

var configCmd = &cobra.Command{
	Use:     "config",
	Aliases: []string{"cfg"},
	Short:   "Manage API configurations",
	Long: `Create, inspect, edit and remove the API configurations of the console.

Variants: knowledge_network (kn), ontology_object (obj), metric_model (metric),
agent, workflow.`,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configurations, optionally for one variant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return errNotInitialized
		}
		var (
			cfgs []models.Config
			err  error
		)
		if configVariant != "" {
			v, perr := models.ParseVariant(configVariant)
			if perr != nil {
				return perr
			}
			cfgs, err = Registry.List(v)
		} else {
			cfgs, err = Registry.All()
		}
		if err != nil {
			return fmt.Errorf("listing configs: %w", err)
		}
		return renderConfigs(cmd.OutOrStdout(), cfgs)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return errNotInitialized
		}
		cfg, err := Registry.Get(args[0])
		if err != nil {
			return err
		}
		return renderConfig(cmd.OutOrStdout(), cfg)
	},
}

var configCreateCmd = &cobra.Command{
	Use:   "create <variant>",
	Short: "Create a configuration",
	Long: `Create a configuration of the given variant.

Fields come from --file (a JSON object) and --set key=value flags. A value
that parses as JSON is used as-is, anything else is taken as a string.

  knc config create workflow --set name=MRP --set dagId=600565437910010238`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return errNotInitialized
		}
		variant, err := models.ParseVariant(args[0])
		if err != nil {
			return err
		}
		fields, err := collectFields(variant, configFile, configSets)
		if err != nil {
			return err
		}
		if errs := core.ValidatePartial(variant, fields); len(errs) > 0 {
			printFieldErrors(cmd.ErrOrStderr(), errs)
			return &core.ValidationError{Fields: errs}
		}
		cfg, err := Registry.Create(variant, fields)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Created %s\n", cfg.Base().ID)
		return renderConfig(cmd.OutOrStdout(), cfg)
	},
}

var configUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update fields of a configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return errNotInitialized
		}
		existing, err := Registry.Get(args[0])
		if err != nil {
			return err
		}
		fields, err := collectFields(existing.Base().Variant, configFile, configSets)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return fmt.Errorf("nothing to update: pass --set key=value or --file")
		}
		if errs := core.ValidatePatch(existing, fields); len(errs) > 0 {
			printFieldErrors(cmd.ErrOrStderr(), errs)
			return &core.ValidationError{Fields: errs}
		}
		cfg, err := Registry.Update(args[0], fields)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Updated %s\n", cfg.Base().ID)
		return renderConfig(cmd.OutOrStdout(), cfg)
	},
}

var configDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return errNotInitialized
		}
		removed, err := Registry.Delete(args[0])
		if err != nil {
			return err
		}
		if removed {
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "No configuration %s; nothing deleted\n", args[0])
		}
		return nil
	},
}

var configDuplicateCmd = &cobra.Command{
	Use:   "duplicate <id>",
	Short: "Copy a configuration under a new id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return errNotInitialized
		}
		cfg, err := Registry.Duplicate(args[0])
		if err != nil {
			return err
		}
		if cfg == nil {
			return fmt.Errorf("duplicating %s: %w", args[0], core.ErrNotFound)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Duplicated %s as %s\n", args[0], cfg.Base().ID)
		return renderConfig(cmd.OutOrStdout(), cfg)
	},
}

var configToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Flip the enabled flag of a configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return errNotInitialized
		}
		cfg, err := Registry.ToggleEnabled(args[0])
		if err != nil {
			return err
		}
		state := "disabled"
		if cfg.Base().Enabled {
			state = "enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", cfg.Base().ID, state)
		return nil
	},
}

var configSearchCmd = &cobra.Command{
	Use:   "search [term]",
	Short: "Search configurations by name, description and tags",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return errNotInitialized
		}
		var variant models.ConfigVariant
		if configVariant != "" {
			v, err := models.ParseVariant(configVariant)
			if err != nil {
				return err
			}
			variant = v
		}
		status, err := models.ParseStatusFilter(configStatus)
		if err != nil {
			return err
		}
		term := ""
		if len(args) == 1 {
			term = args[0]
		}
		cfgs, err := searchAll(variant, term, status)
		if err != nil {
			return err
		}
		return renderConfigs(cmd.OutOrStdout(), cfgs)
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <variant>",
	Short: "Validate fields without saving",
	Long: `Validate a candidate configuration built from --file and --set flags.

With --partial only the given fields are checked against a blank record;
otherwise the candidate must be a complete, valid record.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		variant, err := models.ParseVariant(args[0])
		if err != nil {
			return err
		}
		fields, err := collectFields(variant, configFile, configSets)
		if err != nil {
			return err
		}
		errs := core.ValidatePartial(variant, fields)
		if configPartial {
			errs = onlyGiven(errs, fields)
		}
		if len(errs) > 0 {
			printFieldErrors(cmd.OutOrStdout(), errs)
			return &core.ValidationError{Fields: errs}
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Valid.")
		return nil
	},
}

// searchAll runs Search for one variant, or for every variant when variant
// is empty, keeping variant display order.
func searchAll(variant models.ConfigVariant, term string, status models.StatusFilter) ([]models.Config, error) {
	variants := models.AllVariants
	if variant != "" {
		variants = []models.ConfigVariant{variant}
	}
	var out []models.Config
	for _, v := range variants {
		found, err := Registry.Search(v, term, status)
		if err != nil {
			return nil, fmt.Errorf("searching %s configs: %w", v, err)
		}
		out = append(out, found...)
	}
	return out, nil
}

// onlyGiven keeps errors for fields present in the patch.
func onlyGiven(errs []models.FieldError, fields models.Fields) []models.FieldError {
	out := []models.FieldError{}
	for _, e := range errs {
		if _, ok := fields[e.Field]; ok || e.Field == "" {
			out = append(out, e)
		}
	}
	return out
}

func renderConfigs(w io.Writer, cfgs []models.Config) error {
	if cfgs == nil {
		cfgs = []models.Config{}
	}
	return render(w, cfgs, func(w io.Writer) { configTable(w, cfgs) })
}

func renderConfig(w io.Writer, cfg models.Config) error {
	return render(w, cfg, func(w io.Writer) { configDetail(w, cfg) })
}

// configDetail prints every field of one record as key/value rows.
func configDetail(w io.Writer, cfg models.Config) {
	t := newTable("FIELD", "VALUE")
	for _, kv := range flattenConfig(cfg) {
		t.Row(kv[0], kv[1])
	}
	fmt.Fprintln(w, t.String())
}

var errNotInitialized = errors.New("configuration registry not initialized")

func init() {
	configListCmd.Flags().StringVar(&configVariant, "variant", "", "Only list this variant")

	configSearchCmd.Flags().StringVar(&configVariant, "variant", "", "Only search this variant")
	configSearchCmd.Flags().StringVar(&configStatus, "status", "all", "Status filter (all, enabled, disabled)")

	for _, c := range []*cobra.Command{configCreateCmd, configUpdateCmd, configValidateCmd} {
		c.Flags().StringVarP(&configFile, "file", "f", "", "JSON file with fields")
		c.Flags().StringArrayVar(&configSets, "set", nil, "Field assignment key=value (repeatable)")
	}
	configValidateCmd.Flags().BoolVar(&configPartial, "partial", false, "Only report errors for the given fields")

	registerVariantCompletion(configListCmd)
	registerVariantCompletion(configSearchCmd)
	_ = configSearchCmd.RegisterFlagCompletionFunc("status", completeStatusFilters)
	for _, c := range []*cobra.Command{configShowCmd, configUpdateCmd, configDeleteCmd, configDuplicateCmd, configToggleCmd} {
		c.ValidArgsFunction = completeConfigIDs
	}
	configCreateCmd.ValidArgsFunction = variantArg
	configValidateCmd.ValidArgsFunction = variantArg

	configCmd.AddCommand(
		configListCmd,
		configShowCmd,
		configCreateCmd,
		configUpdateCmd,
		configDeleteCmd,
		configDuplicateCmd,
		configToggleCmd,
		configSearchCmd,
		configValidateCmd,
	)
	rootCmd.AddCommand(configCmd)
}
