package core

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/valter-silva-au/knc/pkg/models"
)

// ExportVersion is the document version written by Export. Import accepts
// any 1.x document.
const ExportVersion = "1.0"

// ExportOptions selects which records an export contains.
type ExportOptions struct {
	// Variants limits the export to these variants. Empty means all.
	Variants        []models.ConfigVariant
	IncludeDisabled bool
	Pretty          bool
	// IDPattern is a doublestar glob matched against record ids, e.g. "kn_*".
	IDPattern string
}

// Serializer converts registry contents to and from the versioned export
// document.
type Serializer interface {
	Export(opts ExportOptions) ([]byte, error)
	Import(data []byte, merge bool) (*models.ImportSummary, error)
}

// SerializerOptions configures optional Serializer collaborators.
type SerializerOptions struct {
	Events   EventLogger
	Recorder OperationRecorder
	Logger   *slog.Logger
}

type serializer struct {
	reg      ConfigRegistry
	events   EventLogger
	recorder OperationRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewSerializer creates a Serializer over reg.
func NewSerializer(reg ConfigRegistry, opts SerializerOptions) Serializer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &serializer{
		reg:      reg,
		events:   opts.Events,
		recorder: opts.Recorder,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *serializer) Export(opts ExportOptions) ([]byte, error) {
	if opts.IDPattern != "" && !doublestar.ValidatePattern(opts.IDPattern) {
		return nil, fmt.Errorf("invalid id pattern %q", opts.IDPattern)
	}
	records, err := s.reg.All()
	if err != nil {
		return nil, fmt.Errorf("exporting configs: %w", err)
	}

	want := make(map[models.ConfigVariant]bool, len(opts.Variants))
	for _, v := range opts.Variants {
		want[v] = true
	}

	doc := models.ExportDocument{
		Version:    ExportVersion,
		ExportedAt: s.now().UnixMilli(),
		Records:    models.ConfigList{},
	}
	for _, c := range records {
		b := c.Base()
		if len(want) > 0 && !want[b.Variant] {
			continue
		}
		if !b.Enabled && !opts.IncludeDisabled {
			continue
		}
		if opts.IDPattern != "" {
			if ok, _ := doublestar.Match(opts.IDPattern, b.ID); !ok {
				continue
			}
		}
		doc.Records = append(doc.Records, c)
	}

	if opts.Pretty {
		return json.MarshalIndent(doc, "", "  ")
	}
	return json.Marshal(doc)
}

// importDocument mirrors ExportDocument with pointers so missing keys can be
// told apart from empty ones.
type importDocument struct {
	Version    *string            `json:"version"`
	ExportedAt *int64             `json:"exportedAt"`
	Records    *[]json.RawMessage `json:"records"`
}

func (s *serializer) Import(data []byte, merge bool) (*models.ImportSummary, error) {
	incoming, err := parseDocument(data)
	if err != nil {
		return nil, err
	}

	summary := &models.ImportSummary{Merge: merge, Variants: variantsOf(incoming)}
	err = s.reg.Modify(func(tx *SnapshotTx) error {
		if merge {
			return mergeRecords(tx, incoming, summary)
		}
		return replaceRecords(tx, incoming, summary)
	})
	if err != nil {
		return nil, err
	}

	s.emitImported(summary)
	return summary, nil
}

// emitImported records one imported operation per variant in the document
// and a single event for the whole import.
func (s *serializer) emitImported(summary *models.ImportSummary) {
	s.logger.Debug("import applied",
		"merge", summary.Merge, "created", summary.Created, "updated", summary.Updated, "replaced", summary.Replaced)

	variants := make([]string, len(summary.Variants))
	for i, v := range summary.Variants {
		variants[i] = string(v)
		if s.recorder != nil {
			s.recorder.RecordOperation(strings.TrimPrefix(EventConfigImported, "config."), v)
		}
	}
	if s.events == nil {
		return
	}
	err := s.events.LogEvent(EventConfigImported, map[string]any{
		"merge":    summary.Merge,
		"created":  summary.Created,
		"updated":  summary.Updated,
		"replaced": summary.Replaced,
		"variants": strings.Join(variants, ","),
	})
	if err != nil {
		s.logger.Warn("writing event failed", "event", EventConfigImported, "error", err)
	}
}

// parseDocument decodes and checks the whole document before anything is
// applied.
func parseDocument(data []byte) ([]models.Config, error) {
	var doc importDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Reason: "malformed JSON", Index: -1, Err: err}
	}
	if doc.Version == nil || strings.TrimSpace(*doc.Version) == "" {
		return nil, &ParseError{Reason: "missing version", Index: -1}
	}
	if v := *doc.Version; v != "1" && !strings.HasPrefix(v, "1.") {
		return nil, &ParseError{Reason: fmt.Sprintf("unsupported version %q", v), Index: -1}
	}
	if doc.Records == nil {
		return nil, &ParseError{Reason: "missing records", Index: -1}
	}

	out := make([]models.Config, 0, len(*doc.Records))
	seen := make(map[string]int, len(*doc.Records))
	for i, raw := range *doc.Records {
		cfg, err := models.DecodeConfig(raw)
		if err != nil {
			return nil, &ParseError{Reason: "invalid record", Index: i, Err: err}
		}
		b := cfg.Base()
		b.Tags = models.NormalizeTags(b.Tags)
		if errs := Validate(cfg); len(errs) > 0 {
			return nil, &ParseError{Reason: "record failed validation", Index: i, Fields: errs}
		}
		if b.ID != "" {
			if first, dup := seen[b.ID]; dup {
				return nil, &ParseError{
					Reason: fmt.Sprintf("id %s repeats record %d", b.ID, first),
					Index:  i,
				}
			}
			seen[b.ID] = i
		}
		out = append(out, cfg)
	}
	return out, nil
}

func mergeRecords(tx *SnapshotTx, incoming []models.Config, summary *models.ImportSummary) error {
	if err := checkVariantConflicts(tx.Records, incoming); err != nil {
		return err
	}
	reserved := reservedIDs(incoming)
	for _, cfg := range incoming {
		b := cfg.Base()
		if i := indexOf(tx.Records, b.ID); b.ID != "" && i >= 0 {
			prev := tx.Records[i].Base()
			b.CreatedAt = prev.CreatedAt
			b.UpdatedAt = tx.Stamp(prev.UpdatedAt)
			tx.Records[i] = cfg
			summary.Updated++
			continue
		}
		assignIdentity(tx, cfg, reserved)
		tx.Records = append(tx.Records, cfg)
		summary.Created++
	}
	return nil
}

func replaceRecords(tx *SnapshotTx, incoming []models.Config, summary *models.ImportSummary) error {
	replace := make(map[models.ConfigVariant]bool)
	for _, v := range summary.Variants {
		replace[v] = true
	}
	kept := make([]models.Config, 0, len(tx.Records))
	for _, c := range tx.Records {
		if replace[c.Base().Variant] {
			summary.Replaced++
			continue
		}
		kept = append(kept, c)
	}
	if err := checkVariantConflicts(kept, incoming); err != nil {
		return err
	}

	tx.Records = kept
	reserved := reservedIDs(incoming)
	for _, cfg := range incoming {
		assignIdentity(tx, cfg, reserved)
		tx.Records = append(tx.Records, cfg)
		summary.Created++
	}
	return nil
}

// checkVariantConflicts rejects incoming records whose id belongs to an
// existing record of another variant.
func checkVariantConflicts(existing, incoming []models.Config) error {
	for n, cfg := range incoming {
		b := cfg.Base()
		if b.ID == "" {
			continue
		}
		if i := indexOf(existing, b.ID); i >= 0 && existing[i].Base().Variant != b.Variant {
			return &ParseError{
				Reason: fmt.Sprintf("id %s already belongs to a %s config", b.ID, existing[i].Base().Variant),
				Index:  n,
			}
		}
	}
	return nil
}

// assignIdentity fills a missing id and missing timestamps. Generated ids
// avoid both the snapshot and ids still to be appended from the document.
func assignIdentity(tx *SnapshotTx, cfg models.Config, reserved map[string]struct{}) {
	b := cfg.Base()
	if b.ID == "" {
		for {
			id, ts := tx.NewID(b.Variant)
			if _, taken := reserved[id]; taken {
				continue
			}
			b.ID = id
			if b.CreatedAt == 0 {
				b.CreatedAt = ts
			}
			break
		}
	}
	if b.CreatedAt == 0 {
		b.CreatedAt = tx.Stamp(0)
	}
	if b.UpdatedAt < b.CreatedAt {
		b.UpdatedAt = b.CreatedAt
	}
}

func reservedIDs(incoming []models.Config) map[string]struct{} {
	out := make(map[string]struct{}, len(incoming))
	for _, c := range incoming {
		if id := c.Base().ID; id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}

// variantsOf returns the variants present in records, in display order.
func variantsOf(records []models.Config) []models.ConfigVariant {
	present := make(map[models.ConfigVariant]bool)
	for _, c := range records {
		present[c.Base().Variant] = true
	}
	out := []models.ConfigVariant{}
	for _, v := range models.AllVariants {
		if present[v] {
			out = append(out, v)
		}
	}
	return out
}
