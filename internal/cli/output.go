package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/valter-silva-au/knc/pkg/models"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	enabledStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	disabledStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// checkFormat rejects output formats other than table, json and yaml.
func checkFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (use table, json or yaml)", format)
	}
}

// render writes v as JSON or YAML, or calls table for the table format.
func render(w io.Writer, v any, tableFn func(io.Writer)) error {
	if err := checkFormat(outputFormat); err != nil {
		return err
	}
	switch outputFormat {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("formatting output as JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("formatting output as YAML: %w", err)
		}
		return enc.Close()
	default:
		tableFn(w)
		return nil
	}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Headers(headers...)
}

func configTable(w io.Writer, cfgs []models.Config) {
	if len(cfgs) == 0 {
		fmt.Fprintln(w, "No configurations found.")
		return
	}
	t := newTable("ID", "VARIANT", "NAME", "ENABLED", "TARGET", "TAGS")
	for _, cfg := range cfgs {
		b := cfg.Base()
		t.Row(b.ID, string(b.Variant), b.Name, enabledLabel(b.Enabled), targetOf(cfg), strings.Join(b.Tags, ","))
	}
	fmt.Fprintln(w, t.String())
}

func enabledLabel(enabled bool) string {
	if enabled {
		return enabledStyle.Render("yes")
	}
	return disabledStyle.Render("no")
}

// targetOf summarises the platform identifiers a record points at.
func targetOf(cfg models.Config) string {
	switch c := cfg.(type) {
	case *models.KnowledgeNetworkConfig:
		return c.KnowledgeNetworkID
	case *models.OntologyObjectConfig:
		return fmt.Sprintf("%s (%s)", c.ObjectTypeID, c.EntityType)
	case *models.MetricModelConfig:
		return c.ModelID
	case *models.AgentConfig:
		return c.AppKey + "/" + c.AgentKey
	case *models.WorkflowConfig:
		return c.DagID
	default:
		return ""
	}
}

// printFieldErrors writes one line per validation failure.
func printFieldErrors(w io.Writer, errs []models.FieldError) {
	fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("%d validation error(s):", len(errs))))
	for _, e := range errs {
		fmt.Fprintf(w, "  - %s: %s\n", e.Field, e.Message)
	}
}

// flattenConfig lists a record's fields as name/value pairs in declaration
// order. Composite values are shown as compact JSON.
func flattenConfig(cfg models.Config) [][2]string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return [][2]string{{"error", err.Error()}}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil
	}
	var out [][2]string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			break
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			out = append(out, [2]string{key, s})
			continue
		}
		out = append(out, [2]string{key, string(raw)})
	}
	return out
}
