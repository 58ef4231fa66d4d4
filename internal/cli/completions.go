package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/knc/pkg/models"
)

// completeConfigIDs lists configuration ids with their name as the
// description.
func completeConfigIDs(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if Registry == nil || len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfgs, err := Registry.All()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var ids []string
	for _, cfg := range cfgs {
		b := cfg.Base()
		if strings.HasPrefix(b.ID, toComplete) {
			ids = append(ids, b.ID+"\t"+b.Name)
		}
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

// completeVariants lists the variant names.
func completeVariants(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	out := make([]string, len(models.AllVariants))
	for i, v := range models.AllVariants {
		out[i] = string(v)
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// completeStatusFilters lists the search status filters.
func completeStatusFilters(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{
		"all\tEvery configuration",
		"enabled\tOnly enabled configurations",
		"disabled\tOnly disabled configurations",
	}, cobra.ShellCompDirectiveNoFileComp
}

// completeOutputFormats lists the values of --output.
func completeOutputFormats(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{formatTable, formatJSON, formatYAML}, cobra.ShellCompDirectiveNoFileComp
}

// registerVariantCompletion completes the --variant flag of cmd.
func registerVariantCompletion(cmd *cobra.Command) {
	_ = cmd.RegisterFlagCompletionFunc("variant", completeVariants)
}

// variantArg completes a single leading variant argument.
func variantArg(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return completeVariants(cmd, args, toComplete)
}
