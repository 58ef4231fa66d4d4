package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/valter-silva-au/knc/pkg/models"
	"golang.org/x/sync/errgroup"
)

// DefaultProbeTimeout bounds a probe when neither the caller nor the
// operator settings say otherwise.
const DefaultProbeTimeout = 10 * time.Second

// PlatformResponse is a successful (2xx) response from the platform.
type PlatformResponse struct {
	StatusCode int
	Body       []byte
}

// PlatformTransport is the HTTP collaborator used for probes. Non-2xx
// responses and network failures are returned as errors; errors carrying
// an HTTP status implement HTTPStatus() int.
type PlatformTransport interface {
	Get(ctx context.Context, path string, headers map[string]string) (*PlatformResponse, error)
	Post(ctx context.Context, path string, body any, headers map[string]string) (*PlatformResponse, error)
}

// TokenSource resolves the bearer token for platform calls and is told when
// the platform rejects it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	NotifyExpired(code int)
}

// SettingsProvider exposes operator-level settings to core services.
type SettingsProvider interface {
	Settings() (models.GlobalSettings, error)
}

// ConnectionTester probes the platform endpoint behind a record.
type ConnectionTester interface {
	// Test never returns an error; every failure is reported in the result.
	Test(ctx context.Context, cfg models.Config) models.TestResult
	// TestAll probes cfgs with at most concurrency probes in flight and
	// returns results in input order.
	TestAll(ctx context.Context, cfgs []models.Config, concurrency int) []models.TestResult
}

// TesterOptions configures optional ConnectionTester collaborators.
type TesterOptions struct {
	Tokens   TokenSource
	Settings SettingsProvider
	// Timeout applies when settings do not set probeTimeoutSeconds.
	Timeout  time.Duration
	Events   EventLogger
	Recorder OperationRecorder
	Logger   *slog.Logger
}

type connectionTester struct {
	transport PlatformTransport
	tokens    TokenSource
	settings  SettingsProvider
	timeout   time.Duration
	events    EventLogger
	recorder  OperationRecorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewConnectionTester creates a ConnectionTester that sends probes through transport.
func NewConnectionTester(transport PlatformTransport, opts TesterOptions) ConnectionTester {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &connectionTester{
		transport: transport,
		tokens:    opts.Tokens,
		settings:  opts.Settings,
		timeout:   timeout,
		events:    opts.Events,
		recorder:  opts.Recorder,
		logger:    logger,
		now:       time.Now,
	}
}

// probe is one platform GET derived from a record.
type probe struct {
	path    string
	success func(body []byte) string
}

// authHeaders resolves the bearer token and operator headers for a
// platform call.
func authHeaders(ctx context.Context, tokens TokenSource, settings models.GlobalSettings) (map[string]string, error) {
	headers := map[string]string{}
	if tokens != nil {
		token, err := tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving auth token: %w", err)
		}
		if token != "" {
			headers["Authorization"] = "Bearer " + token
		}
	}
	if settings.UserID != "" {
		headers["X-User-ID"] = settings.UserID
	}
	return headers, nil
}

// objectTypePath is the ontology-query endpoint listing instances of an
// object type.
func objectTypePath(networkID, objectTypeID string, query url.Values) string {
	return fmt.Sprintf("/api/ontology-query/v1/knowledge-networks/%s/object-types/%s?%s",
		url.PathEscape(networkID), url.PathEscape(objectTypeID), query.Encode())
}

func (t *connectionTester) Test(ctx context.Context, cfg models.Config) models.TestResult {
	if cfg == nil {
		return models.TestResult{Message: "no config to test", CheckedAt: t.now()}
	}
	b := cfg.Base()
	result := models.TestResult{ConfigID: b.ID, Variant: b.Variant, CheckedAt: t.now()}

	settings := t.loadSettings()
	p, err := buildProbe(cfg, settings)
	if err != nil {
		result.Message = err.Error()
		t.record(result)
		return result
	}

	timeout := t.timeout
	if settings.ProbeTimeoutSeconds > 0 {
		timeout = time.Duration(settings.ProbeTimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	headers, err := authHeaders(ctx, t.tokens, settings)
	if err != nil {
		result.Message = err.Error()
		t.record(result)
		return result
	}

	start := time.Now()
	resp, err := t.transport.Get(ctx, p.path, headers)
	result.Latency = time.Since(start)

	if err != nil {
		result.StatusCode, result.Message = t.describeFailure(ctx, err, timeout)
		t.record(result)
		return result
	}
	result.Success = true
	result.StatusCode = resp.StatusCode
	result.Message = p.success(resp.Body)
	t.record(result)
	return result
}

func (t *connectionTester) TestAll(ctx context.Context, cfgs []models.Config, concurrency int) []models.TestResult {
	if concurrency <= 0 {
		concurrency = 4
	}
	results := make([]models.TestResult, len(cfgs))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, cfg := range cfgs {
		g.Go(func() error {
			results[i] = t.Test(ctx, cfg)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (t *connectionTester) loadSettings() models.GlobalSettings {
	if t.settings == nil {
		return models.GlobalSettings{}
	}
	s, err := t.settings.Settings()
	if err != nil {
		t.logger.Warn("loading settings for probe failed", "error", err)
		return models.GlobalSettings{}
	}
	return s
}

func (t *connectionTester) describeFailure(ctx context.Context, err error, timeout time.Duration) (int, string) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return 0, fmt.Sprintf("timed out after %s", timeout)
	}
	if errors.Is(err, context.Canceled) {
		return 0, "probe canceled"
	}
	var se interface{ HTTPStatus() int }
	if errors.As(err, &se) {
		code := se.HTTPStatus()
		if code == http.StatusUnauthorized && t.tokens != nil {
			t.tokens.NotifyExpired(code)
		}
		switch code {
		case http.StatusUnauthorized:
			return code, "unauthorized: the platform rejected the auth token"
		case http.StatusForbidden:
			return code, "forbidden: the token lacks access to this resource"
		case http.StatusNotFound:
			return code, "not found: the configured identifier does not exist on the platform"
		}
		return code, fmt.Sprintf("platform returned HTTP %d: %v", code, err)
	}
	return 0, fmt.Sprintf("request failed: %v", err)
}

func (t *connectionTester) record(r models.TestResult) {
	t.logger.Debug("connection probe", "id", r.ConfigID, "variant", r.Variant, "success", r.Success, "latency", r.Latency)
	if t.recorder != nil && r.Variant != "" {
		t.recorder.RecordProbe(r.Variant, r.Success, r.Latency)
	}
	if t.events == nil {
		return
	}
	data := map[string]any{
		"id":         r.ConfigID,
		"variant":    string(r.Variant),
		"success":    r.Success,
		"message":    r.Message,
		"latency_ms": r.Latency.Milliseconds(),
	}
	if r.StatusCode != 0 {
		data["status_code"] = r.StatusCode
	}
	if err := t.events.LogEvent(EventConfigTested, data); err != nil {
		t.logger.Warn("writing event failed", "event", EventConfigTested, "error", err)
	}
}

// buildProbe maps a record to the lightest platform request that proves
// its identifiers resolve.
func buildProbe(cfg models.Config, settings models.GlobalSettings) (*probe, error) {
	switch c := cfg.(type) {
	case *models.KnowledgeNetworkConfig:
		if c.KnowledgeNetworkID == "" {
			return nil, errors.New("knowledgeNetworkId is empty")
		}
		return &probe{
			path: fmt.Sprintf("/api/ontology-manager/v1/knowledge-networks/%s/object-types?limit=1",
				url.PathEscape(c.KnowledgeNetworkID)),
			success: func(body []byte) string {
				if n, ok := totalCount(body); ok {
					return fmt.Sprintf("knowledge network reachable, %d object types", n)
				}
				return "knowledge network reachable"
			},
		}, nil

	case *models.OntologyObjectConfig:
		if c.ObjectTypeID == "" {
			return nil, errors.New("objectTypeId is empty")
		}
		if settings.KnowledgeNetworkID == "" {
			return nil, ErrNoKnowledgeNetwork
		}
		return &probe{
			path: objectTypePath(settings.KnowledgeNetworkID, c.ObjectTypeID, url.Values{
				"limit":                {"1"},
				"include_type_info":    {"false"},
				"include_logic_params": {"false"},
			}),
			success: func(body []byte) string {
				if n, ok := totalCount(body); ok {
					return fmt.Sprintf("object type reachable, %d instances", n)
				}
				return "object type reachable"
			},
		}, nil

	case *models.MetricModelConfig:
		if c.ModelID == "" {
			return nil, errors.New("modelId is empty")
		}
		return &probe{
			path:    "/api/mdl-data-model/v1/metric-models/" + url.PathEscape(c.ModelID),
			success: func([]byte) string { return "metric model reachable" },
		}, nil

	case *models.AgentConfig:
		if c.AppKey == "" || c.AgentKey == "" {
			return nil, errors.New("appKey and agentKey are required")
		}
		return &probe{
			path: fmt.Sprintf("/api/agent-app/v1/app/%s/agent/%s",
				url.PathEscape(c.AppKey), url.PathEscape(c.AgentKey)),
			success: func([]byte) string { return "agent handshake succeeded" },
		}, nil

	case *models.WorkflowConfig:
		if c.DagID == "" {
			return nil, errors.New("dagId is empty")
		}
		return &probe{
			path:    "/api/automation/v1/dag/" + url.PathEscape(c.DagID),
			success: func([]byte) string { return "workflow reachable" },
		}, nil
	}
	return nil, fmt.Errorf("no probe for config variant %q", cfg.Base().Variant)
}

// totalCount reads the platform's total_count field when present.
func totalCount(body []byte) (int, bool) {
	var page struct {
		TotalCount *int `json:"total_count"`
	}
	if err := json.Unmarshal(body, &page); err != nil || page.TotalCount == nil {
		return 0, false
	}
	return *page.TotalCount, true
}
