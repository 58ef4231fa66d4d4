package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/valter-silva-au/knc/pkg/models"
)

const (
	// DefaultInstancePageSize is the page size used when the caller gives none.
	DefaultInstancePageSize = 50
	// MaxInstancePageSize is the largest page the ontology query service serves.
	MaxInstancePageSize = 5000
	// DefaultInstanceLimit caps LoadAll when the caller gives no limit.
	DefaultInstanceLimit = 10000
)

// InstanceQuery selects one page of object instances.
type InstanceQuery struct {
	Limit int
	// SearchAfter is the cursor returned with the previous page.
	SearchAfter []any
}

// InstanceBrowser pages through the object instances behind ontology
// object configs. The config's fields, filters and sort settings shape
// the returned entries.
type InstanceBrowser interface {
	Page(ctx context.Context, id string, q InstanceQuery) (*models.InstancePage, error)
	// LoadAll follows search_after cursors until the platform runs out of
	// pages or limit entries have been collected.
	LoadAll(ctx context.Context, id string, pageSize, limit int) (*models.InstancePage, error)
}

// InstanceOptions configures optional InstanceBrowser collaborators.
type InstanceOptions struct {
	Tokens   TokenSource
	Settings SettingsProvider
	Logger   *slog.Logger
}

type instanceBrowser struct {
	reg       ConfigRegistry
	transport PlatformTransport
	tokens    TokenSource
	settings  SettingsProvider
	logger    *slog.Logger
}

// NewInstanceBrowser creates an InstanceBrowser that resolves configs in reg
// and queries the platform through transport.
func NewInstanceBrowser(reg ConfigRegistry, transport PlatformTransport, opts InstanceOptions) InstanceBrowser {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &instanceBrowser{
		reg:       reg,
		transport: transport,
		tokens:    opts.Tokens,
		settings:  opts.Settings,
		logger:    logger,
	}
}

// instanceTarget is what a query needs from the config and settings.
type instanceTarget struct {
	cfg       *models.OntologyObjectConfig
	networkID string
	headers   map[string]string
}

// platformPage is the ontology query response body.
type platformPage struct {
	Entries     []models.Instance `json:"entries"`
	SearchAfter []any             `json:"search_after"`
	TotalCount  *int              `json:"total_count"`
}

func (b *instanceBrowser) Page(ctx context.Context, id string, q InstanceQuery) (*models.InstancePage, error) {
	target, err := b.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	limit := clampPageSize(q.Limit)
	raw, err := b.fetch(ctx, target, limit, q.SearchAfter)
	if err != nil {
		return nil, err
	}

	page := newInstancePage(target.cfg)
	page.Pages = 1
	page.TotalCount = raw.TotalCount
	page.Entries = shapeEntries(target.cfg, raw.Entries)
	if hasMore(raw, limit) {
		page.SearchAfter = raw.SearchAfter
	}
	return page, nil
}

func (b *instanceBrowser) LoadAll(ctx context.Context, id string, pageSize, limit int) (*models.InstancePage, error) {
	target, err := b.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	pageSize = clampPageSize(pageSize)
	if limit <= 0 {
		limit = DefaultInstanceLimit
	}

	page := newInstancePage(target.cfg)
	var (
		cursor  []any
		entries []models.Instance
		seen    = map[string]bool{}
	)
	for {
		raw, err := b.fetch(ctx, target, pageSize, cursor)
		if err != nil {
			return nil, fmt.Errorf("loading page %d: %w", page.Pages+1, err)
		}
		page.Pages++
		if raw.TotalCount != nil {
			page.TotalCount = raw.TotalCount
		}
		if len(raw.Entries) == 0 {
			break
		}
		entries = append(entries, raw.Entries...)
		b.logger.Debug("loaded instance page",
			"config", id, "page", page.Pages, "entries", len(raw.Entries), "total", len(entries))

		if len(entries) >= limit {
			// The cursor only resumes exactly when the cut falls on a page end.
			switch {
			case len(entries) > limit:
				page.Truncated = true
			case hasMore(raw, pageSize):
				page.Truncated = true
				page.SearchAfter = raw.SearchAfter
			}
			entries = entries[:limit]
			break
		}
		if !hasMore(raw, pageSize) {
			break
		}
		// A cursor that does not advance would loop forever.
		key := cursorKey(raw.SearchAfter)
		if seen[key] {
			break
		}
		seen[key] = true
		cursor = raw.SearchAfter
	}

	page.Entries = shapeEntries(target.cfg, entries)
	return page, nil
}

func (b *instanceBrowser) resolve(ctx context.Context, id string) (*instanceTarget, error) {
	cfg, err := b.reg.Get(id)
	if err != nil {
		return nil, err
	}
	obj, ok := cfg.(*models.OntologyObjectConfig)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s config", ErrNotBrowsable, id, cfg.Base().Variant)
	}

	var settings models.GlobalSettings
	if b.settings != nil {
		if settings, err = b.settings.Settings(); err != nil {
			return nil, fmt.Errorf("loading settings: %w", err)
		}
	}
	if settings.KnowledgeNetworkID == "" {
		return nil, ErrNoKnowledgeNetwork
	}
	headers, err := authHeaders(ctx, b.tokens, settings)
	if err != nil {
		return nil, err
	}
	return &instanceTarget{cfg: obj, networkID: settings.KnowledgeNetworkID, headers: headers}, nil
}

func (b *instanceBrowser) fetch(ctx context.Context, target *instanceTarget, limit int, cursor []any) (*platformPage, error) {
	query := url.Values{
		"limit":                {strconv.Itoa(limit)},
		"include_type_info":    {"false"},
		"include_logic_params": {"false"},
	}
	if len(cursor) > 0 {
		data, err := json.Marshal(cursor)
		if err != nil {
			return nil, fmt.Errorf("encoding search_after cursor: %w", err)
		}
		query.Set("search_after", string(data))
	}

	resp, err := b.transport.Get(ctx, objectTypePath(target.networkID, target.cfg.ObjectTypeID, query), target.headers)
	if err != nil {
		var se interface{ HTTPStatus() int }
		if errors.As(err, &se) && se.HTTPStatus() == http.StatusUnauthorized && b.tokens != nil {
			b.tokens.NotifyExpired(http.StatusUnauthorized)
		}
		return nil, fmt.Errorf("%w: %w", ErrPlatform, err)
	}

	var page platformPage
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, fmt.Errorf("%w: decoding object instances: %w", ErrPlatform, err)
	}
	return &page, nil
}

func newInstancePage(cfg *models.OntologyObjectConfig) *models.InstancePage {
	return &models.InstancePage{
		ConfigID:     cfg.ID,
		ObjectTypeID: cfg.ObjectTypeID,
		Entries:      []models.Instance{},
	}
}

func clampPageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultInstancePageSize
	case n > MaxInstancePageSize:
		return MaxInstancePageSize
	}
	return n
}

// hasMore reports whether the platform has pages after raw.
func hasMore(raw *platformPage, limit int) bool {
	return len(raw.SearchAfter) > 0 && len(raw.Entries) >= limit
}

func cursorKey(cursor []any) string {
	data, _ := json.Marshal(cursor)
	return string(data)
}

// shapeEntries applies the config's filters, sort and field projection.
// Filters match when the instance value prints the same as the filter value.
func shapeEntries(cfg *models.OntologyObjectConfig, entries []models.Instance) []models.Instance {
	out := make([]models.Instance, 0, len(entries))
	for _, e := range entries {
		if matchesFilters(e, cfg.Filters) {
			out = append(out, e)
		}
	}

	if cfg.SortField != "" {
		desc := cfg.SortDirection == models.SortDesc
		sort.SliceStable(out, func(i, j int) bool {
			c := compareValues(out[i][cfg.SortField], out[j][cfg.SortField])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	if len(cfg.Fields) == 0 {
		return out
	}
	for i, e := range out {
		projected := make(models.Instance, len(cfg.Fields))
		for _, f := range cfg.Fields {
			if v, ok := e[f]; ok {
				projected[f] = v
			}
		}
		out[i] = projected
	}
	return out
}

func matchesFilters(e models.Instance, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := e[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// compareValues orders numbers numerically and everything else by its
// printed form. Missing values sort first.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		}
		return 1
	}
	fa, aNum := a.(float64)
	fb, bNum := b.(float64)
	if aNum && bNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}
