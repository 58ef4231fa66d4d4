package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/knc/internal/core"
	"github.com/valter-silva-au/knc/pkg/models"
)

// maxInstanceColumns keeps wide instances readable in the table view.
const maxInstanceColumns = 8

var (
	instancesLimit int
	instancesAfter string
	instancesAll   bool
	instancesMax   int
)

var instancesCmd = &cobra.Command{
	Use:   "instances <id>",
	Short: "Browse the object instances behind an ontology object configuration",
	Long: `Query the ontology service for the object type an ontology object
configuration points at. The configuration's fields, filters and sort
settings shape the output.

One page is shown by default; pass the printed cursor back with --after to
continue. --all follows cursors until the platform runs out or --max
instances have been loaded.`,
	Example: `  knc instances obj_supplier
  knc instances obj_supplier --limit 100 --after '["S050"]'
  knc instances obj_supplier --all --max 2000 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Instances == nil {
			return errNotInitialized
		}
		ctx := contextOrBackground(cmd)

		var (
			page *models.InstancePage
			err  error
		)
		if instancesAll {
			if instancesAfter != "" {
				return fmt.Errorf("--after cannot be combined with --all")
			}
			page, err = Instances.LoadAll(ctx, args[0], instancesLimit, instancesMax)
		} else {
			q := core.InstanceQuery{Limit: instancesLimit}
			if instancesAfter != "" {
				if err := json.Unmarshal([]byte(instancesAfter), &q.SearchAfter); err != nil {
					return fmt.Errorf("--after must be a JSON array: %w", err)
				}
			}
			page, err = Instances.Page(ctx, args[0], q)
		}
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), page, func(w io.Writer) { instanceTable(w, page) })
	},
}

func instanceTable(w io.Writer, page *models.InstancePage) {
	if len(page.Entries) == 0 {
		fmt.Fprintf(w, "No %s instances found.\n", page.ObjectTypeID)
		return
	}
	columns := instanceColumns(page.Entries)
	t := newTable(columns...)
	for _, e := range page.Entries {
		row := make([]string, len(columns))
		for i, c := range columns {
			if v, ok := e[c]; ok && v != nil {
				row[i] = fmt.Sprint(v)
			}
		}
		t.Row(row...)
	}
	fmt.Fprintln(w, t.String())

	summary := fmt.Sprintf("%d instance(s) of %s from %d page(s)", len(page.Entries), page.ObjectTypeID, page.Pages)
	if page.TotalCount != nil {
		summary += fmt.Sprintf(", %d on the platform", *page.TotalCount)
	}
	fmt.Fprintln(w, summary)
	switch {
	case len(page.SearchAfter) > 0:
		cursor, _ := json.Marshal(page.SearchAfter)
		fmt.Fprintf(w, "More available: --after '%s'\n", cursor)
	case page.Truncated:
		fmt.Fprintln(w, disabledStyle.Render("Stopped at --max; raise it to load the rest."))
	}
}

// instanceColumns is the sorted union of entry keys, capped at
// maxInstanceColumns.
func instanceColumns(entries []models.Instance) []string {
	seen := map[string]bool{}
	var cols []string
	for _, e := range entries {
		for k := range e {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	if len(cols) > maxInstanceColumns {
		cols = cols[:maxInstanceColumns]
	}
	return cols
}

func init() {
	instancesCmd.Flags().IntVar(&instancesLimit, "limit", core.DefaultInstancePageSize, "Instances per page")
	instancesCmd.Flags().StringVar(&instancesAfter, "after", "", "Cursor printed with the previous page, as a JSON array")
	instancesCmd.Flags().BoolVar(&instancesAll, "all", false, "Follow cursors and load every page")
	instancesCmd.Flags().IntVar(&instancesMax, "max", core.DefaultInstanceLimit, "With --all, stop after this many instances")
	instancesCmd.ValidArgsFunction = completeConfigIDs
	rootCmd.AddCommand(instancesCmd)
}
