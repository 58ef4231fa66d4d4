// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the configuration registry as MCP tools for AI assistants.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/knc/internal/core"
	"github.com/valter-silva-au/knc/internal/observability"
	"github.com/valter-silva-au/knc/pkg/models"
)

// Services are the collaborators the tools dispatch to. Tester,
// ActivityCalc and AlertEngine may be nil; their tools then report an error.
type Services struct {
	Registry     core.ConfigRegistry
	Serializer   core.Serializer
	Tester       core.ConnectionTester
	ActivityCalc observability.ActivityCalculator
	AlertEngine  observability.AlertEngine
}

// Server wraps knc services and exposes them as MCP tools.
type Server struct {
	server *gomcp.Server
	svc    Services
}

// NewServer creates a new MCP server over the given services.
func NewServer(svc Services, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{svc: svc}
	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "knc", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type listConfigsInput struct {
	Variant string `json:"variant,omitempty" jsonschema:"only list this variant (knowledge_network, ontology_object, metric_model, agent, workflow)"`
}

type configsOutput struct {
	Configs []map[string]any `json:"configs"`
	Count   int              `json:"count"`
}

type getConfigInput struct {
	ID string `json:"id" jsonschema:"the configuration id (e.g. kn_default or wf_1735689600000)"`
}

type configOutput struct {
	Config map[string]any `json:"config"`
}

type searchConfigsInput struct {
	Variant string `json:"variant,omitempty" jsonschema:"only search this variant; all variants when empty"`
	Term    string `json:"term,omitempty" jsonschema:"case-insensitive text matched against name, description and tags"`
	Status  string `json:"status,omitempty" jsonschema:"all, enabled or disabled. Defaults to all."`
}

type testConnectionInput struct {
	ID string `json:"id" jsonschema:"the configuration id to probe"`
}

type testResultOutput struct {
	ConfigID   string `json:"config_id"`
	Variant    string `json:"variant"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
	LatencyMS  int64  `json:"latency_ms"`
	CheckedAt  string `json:"checked_at"`
}

type exportConfigsInput struct {
	Variants        []string `json:"variants,omitempty" jsonschema:"variants to include; all when empty"`
	ExcludeDisabled bool     `json:"exclude_disabled,omitempty" jsonschema:"leave disabled configurations out of the document"`
	IDs             string   `json:"ids,omitempty" jsonschema:"only export ids matching this glob (e.g. obj_*)"`
}

type exportOutput struct {
	Document string `json:"document"`
	Count    int    `json:"count"`
}

type getActivityInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type activityOutput struct {
	Created        int            `json:"created"`
	Updated        int            `json:"updated"`
	Deleted        int            `json:"deleted"`
	Duplicated     int            `json:"duplicated"`
	Toggled        int            `json:"toggled"`
	Imports        int            `json:"imports"`
	ProbesRun      int            `json:"probes_run"`
	ProbesFailed   int            `json:"probes_failed"`
	ByVariant      map[string]int `json:"by_variant"`
	FailingConfigs []string       `json:"failing_configs"`
	EventCount     int            `json:"event_count"`
	OldestEvent    string         `json:"oldest_event,omitempty"`
	NewestEvent    string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_configs",
		Description: "List API configurations, optionally for one variant. Returns full records in display order.",
	}, s.handleListConfigs)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_config",
		Description: "Get one API configuration by id.",
	}, s.handleGetConfig)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "search_configs",
		Description: "Search configurations by name, description and tags, with an enabled/disabled filter.",
	}, s.handleSearchConfigs)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "test_connection",
		Description: "Probe the platform endpoint a configuration points at and report whether it answered.",
	}, s.handleTestConnection)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "export_configs",
		Description: "Export configurations as the versioned JSON document accepted by knc import.",
	}, s.handleExportConfigs)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_activity",
		Description: "Summarise registry changes and connection tests recorded in the event log.",
	}, s.handleGetActivity)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate alerts for configurations whose latest connection tests failed.",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleListConfigs(_ context.Context, _ *gomcp.CallToolRequest, input listConfigsInput) (*gomcp.CallToolResult, configsOutput, error) {
	var (
		cfgs []models.Config
		err  error
	)
	if input.Variant != "" {
		v, perr := models.ParseVariant(input.Variant)
		if perr != nil {
			return errorResult(perr.Error()), emptyConfigsOutput(), nil
		}
		cfgs, err = s.svc.Registry.List(v)
	} else {
		cfgs, err = s.svc.Registry.All()
	}
	if err != nil {
		return errorResult(fmt.Sprintf("listing configs: %s", err)), emptyConfigsOutput(), nil
	}

	out, err := toConfigsOutput(cfgs)
	if err != nil {
		return errorResult(err.Error()), emptyConfigsOutput(), nil
	}
	return nil, out, nil
}

func (s *Server) handleGetConfig(_ context.Context, _ *gomcp.CallToolRequest, input getConfigInput) (*gomcp.CallToolResult, configOutput, error) {
	if input.ID == "" {
		return errorResult("id is required"), emptyConfigOutput(), nil
	}
	cfg, err := s.svc.Registry.Get(input.ID)
	if err != nil {
		return errorResult(fmt.Sprintf("getting config %s: %s", input.ID, err)), emptyConfigOutput(), nil
	}
	m, err := configToMap(cfg)
	if err != nil {
		return errorResult(err.Error()), emptyConfigOutput(), nil
	}
	return nil, configOutput{Config: m}, nil
}

func (s *Server) handleSearchConfigs(_ context.Context, _ *gomcp.CallToolRequest, input searchConfigsInput) (*gomcp.CallToolResult, configsOutput, error) {
	status, err := models.ParseStatusFilter(input.Status)
	if err != nil {
		return errorResult(err.Error()), emptyConfigsOutput(), nil
	}
	variants := models.AllVariants
	if input.Variant != "" {
		v, err := models.ParseVariant(input.Variant)
		if err != nil {
			return errorResult(err.Error()), emptyConfigsOutput(), nil
		}
		variants = []models.ConfigVariant{v}
	}

	var cfgs []models.Config
	for _, v := range variants {
		found, err := s.svc.Registry.Search(v, input.Term, status)
		if err != nil {
			return errorResult(fmt.Sprintf("searching %s configs: %s", v, err)), emptyConfigsOutput(), nil
		}
		cfgs = append(cfgs, found...)
	}

	out, err := toConfigsOutput(cfgs)
	if err != nil {
		return errorResult(err.Error()), emptyConfigsOutput(), nil
	}
	return nil, out, nil
}

func (s *Server) handleTestConnection(ctx context.Context, _ *gomcp.CallToolRequest, input testConnectionInput) (*gomcp.CallToolResult, testResultOutput, error) {
	if s.svc.Tester == nil {
		return errorResult("connection tester not available"), testResultOutput{}, nil
	}
	if input.ID == "" {
		return errorResult("id is required"), testResultOutput{}, nil
	}
	cfg, err := s.svc.Registry.Get(input.ID)
	if err != nil {
		return errorResult(fmt.Sprintf("getting config %s: %s", input.ID, err)), testResultOutput{}, nil
	}

	r := s.svc.Tester.Test(ctx, cfg)
	return nil, testResultOutput{
		ConfigID:   r.ConfigID,
		Variant:    string(r.Variant),
		Success:    r.Success,
		Message:    r.Message,
		StatusCode: r.StatusCode,
		LatencyMS:  r.Latency.Milliseconds(),
		CheckedAt:  r.CheckedAt.Format(time.RFC3339),
	}, nil
}

func (s *Server) handleExportConfigs(_ context.Context, _ *gomcp.CallToolRequest, input exportConfigsInput) (*gomcp.CallToolResult, exportOutput, error) {
	if s.svc.Serializer == nil {
		return errorResult("serializer not available"), exportOutput{}, nil
	}
	opts := core.ExportOptions{
		IncludeDisabled: !input.ExcludeDisabled,
		Pretty:          true,
		IDPattern:       input.IDs,
	}
	for _, name := range input.Variants {
		v, err := models.ParseVariant(name)
		if err != nil {
			return errorResult(err.Error()), exportOutput{}, nil
		}
		opts.Variants = append(opts.Variants, v)
	}

	data, err := s.svc.Serializer.Export(opts)
	if err != nil {
		return errorResult(fmt.Sprintf("exporting configs: %s", err)), exportOutput{}, nil
	}
	var doc models.ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return errorResult(fmt.Sprintf("reading export document: %s", err)), exportOutput{}, nil
	}
	return nil, exportOutput{Document: string(data), Count: len(doc.Records)}, nil
}

func (s *Server) handleGetActivity(_ context.Context, _ *gomcp.CallToolRequest, input getActivityInput) (*gomcp.CallToolResult, activityOutput, error) {
	if s.svc.ActivityCalc == nil {
		return errorResult("activity calculator not available (event log may be disabled)"), emptyActivityOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}
	sinceTime, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyActivityOutput(), nil
	}

	a, err := s.svc.ActivityCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating activity: %s", err)), emptyActivityOutput(), nil
	}

	out := activityOutput{
		Created:        a.Created,
		Updated:        a.Updated,
		Deleted:        a.Deleted,
		Duplicated:     a.Duplicated,
		Toggled:        a.Toggled,
		Imports:        a.Imports,
		ProbesRun:      a.ProbesRun,
		ProbesFailed:   a.ProbesFailed,
		ByVariant:      a.ByVariant,
		FailingConfigs: a.FailingConfigs,
		EventCount:     a.EventCount,
	}
	if out.ByVariant == nil {
		out.ByVariant = make(map[string]int)
	}
	if out.FailingConfigs == nil {
		out.FailingConfigs = []string{}
	}
	if a.OldestEvent != nil {
		out.OldestEvent = a.OldestEvent.Format(time.RFC3339)
	}
	if a.NewestEvent != nil {
		out.NewestEvent = a.NewestEvent.Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.svc.AlertEngine == nil {
		return errorResult("alert engine not available (event log may be disabled)"), getAlertsOutput{Alerts: []alertOutput{}}, nil
	}

	alerts, err := s.svc.AlertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{Alerts: []alertOutput{}}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

// --- Helpers ---

// configToMap renders a record with its JSON field names, variant-specific
// fields included.
func configToMap(cfg models.Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return m, nil
}

func toConfigsOutput(cfgs []models.Config) (configsOutput, error) {
	out := configsOutput{Configs: make([]map[string]any, 0, len(cfgs)), Count: len(cfgs)}
	for _, cfg := range cfgs {
		m, err := configToMap(cfg)
		if err != nil {
			return emptyConfigsOutput(), err
		}
		out.Configs = append(out.Configs, m)
	}
	return out, nil
}

func emptyConfigsOutput() configsOutput {
	return configsOutput{Configs: []map[string]any{}}
}

func emptyConfigOutput() configOutput {
	return configOutput{Config: map[string]any{}}
}

func emptyActivityOutput() activityOutput {
	return activityOutput{
		ByVariant:      make(map[string]int),
		FailingConfigs: []string{},
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a human-friendly duration string like "7d", "30d", or "24h"
// into the corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
