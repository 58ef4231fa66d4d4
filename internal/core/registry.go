// Package core contains the business logic for knc: the configuration
// registry, validation, import/export, and connection testing.
package core

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/knc/pkg/models"
	"golang.org/x/text/cases"
)

// ConfigStoreKey is the storage key holding the serialized collection.
const ConfigStoreKey = "kn_api_configs"

// copySuffix marks the name of a duplicated record.
const copySuffix = " (copy)"

// KVStore is the durable key-value contract the registry persists through.
// This interface is defined locally in core to avoid importing storage.
type KVStore interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

// ConfigRegistry is the authoritative view of all configuration records.
// Every call reads the persisted snapshot fresh and every mutation writes
// the whole snapshot back in one Set.
type ConfigRegistry interface {
	List(variant models.ConfigVariant) ([]models.Config, error)
	All() ([]models.Config, error)
	Get(id string) (models.Config, error)
	Create(variant models.ConfigVariant, fields models.Fields) (models.Config, error)
	Update(id string, fields models.Fields) (models.Config, error)
	Delete(id string) (bool, error)
	Duplicate(id string) (models.Config, error)
	ToggleEnabled(id string) (models.Config, error)
	Search(variant models.ConfigVariant, term string, status models.StatusFilter) ([]models.Config, error)

	// Modify runs fn against a fresh snapshot and persists the result
	// if fn returns nil. Nothing is written when fn fails.
	Modify(fn func(tx *SnapshotTx) error) error
}

// SnapshotTx is the working copy handed to Modify callbacks.
type SnapshotTx struct {
	Records []models.Config
	reg     *kvRegistry
}

// NewID returns an unused id for variant along with its creation timestamp.
func (tx *SnapshotTx) NewID(variant models.ConfigVariant) (string, int64) {
	return tx.reg.newID(variant, tx.Records)
}

// Stamp returns a timestamp strictly after prev.
func (tx *SnapshotTx) Stamp(prev int64) int64 {
	return tx.reg.clock.After(prev)
}

// RegistryOptions configures optional registry collaborators.
type RegistryOptions struct {
	// Seed is the collection used when nothing has been persisted yet.
	Seed     []models.Config
	Events   EventLogger
	Recorder OperationRecorder
	Logger   *slog.Logger
	// Now overrides the wall clock, for tests.
	Now func() time.Time
}

type kvRegistry struct {
	mu       sync.Mutex
	store    KVStore
	seed     []models.Config
	clock    *stampClock
	events   EventLogger
	recorder OperationRecorder
	logger   *slog.Logger
}

// NewConfigRegistry creates a ConfigRegistry persisted through store.
func NewConfigRegistry(store KVStore, opts RegistryOptions) ConfigRegistry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &kvRegistry{
		store:    store,
		seed:     opts.Seed,
		clock:    newStampClock(opts.Now),
		events:   opts.Events,
		recorder: opts.Recorder,
		logger:   logger,
	}
}

func (r *kvRegistry) load() ([]models.Config, error) {
	raw, ok, err := r.store.Get(ConfigStoreKey)
	if err != nil {
		return nil, fmt.Errorf("reading configuration snapshot: %w", err)
	}
	if !ok {
		return cloneAll(r.seed), nil
	}
	var list models.ConfigList
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("decoding configuration snapshot: %w", err)
	}
	return list, nil
}

func (r *kvRegistry) save(records []models.Config) error {
	data, err := json.Marshal(models.ConfigList(records))
	if err != nil {
		return fmt.Errorf("encoding configuration snapshot: %w", err)
	}
	if err := r.store.Set(ConfigStoreKey, string(data)); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func (r *kvRegistry) List(variant models.ConfigVariant) ([]models.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]models.Config, 0, len(records))
	for _, c := range records {
		if c.Base().Variant == variant {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *kvRegistry) All() ([]models.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load()
}

func (r *kvRegistry) Get(id string) (models.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return nil, err
	}
	if i := indexOf(records, id); i >= 0 {
		return records[i], nil
	}
	return nil, notFound(id)
}

func (r *kvRegistry) Create(variant models.ConfigVariant, fields models.Fields) (models.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, err := models.NewConfig(variant)
	if err != nil {
		return nil, fmt.Errorf("creating config: %w", err)
	}
	requestedID, _ := fields["id"].(string)
	cfg, err = models.MergeFields(cfg, stripProtected(fields))
	if err != nil {
		return nil, fmt.Errorf("creating %s config: %w", variant, err)
	}

	records, err := r.load()
	if err != nil {
		return nil, err
	}

	b := cfg.Base()
	b.Variant = variant
	b.Tags = models.NormalizeTags(b.Tags)
	if requestedID = strings.TrimSpace(requestedID); requestedID != "" {
		if indexOf(records, requestedID) >= 0 {
			return nil, fmt.Errorf("creating %s config: %w: %s", variant, ErrDuplicateID, requestedID)
		}
		b.ID = requestedID
		b.CreatedAt = r.clock.Next()
	} else {
		b.ID, b.CreatedAt = r.newID(variant, records)
	}
	b.UpdatedAt = b.CreatedAt

	records = append(records, cfg)
	if err := r.save(records); err != nil {
		return nil, err
	}
	r.emit(EventConfigCreated, cfg)
	return cfg.Clone(), nil
}

func (r *kvRegistry) Update(id string, fields models.Fields) (models.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return nil, err
	}
	i := indexOf(records, id)
	if i < 0 {
		return nil, notFound(id)
	}
	existing := records[i]
	prev := *existing.Base()

	if raw, ok := fields["variant"]; ok {
		if models.ConfigVariant(fmt.Sprint(raw)) != prev.Variant {
			return nil, fmt.Errorf("updating %s: %w", id, ErrImmutableVariant)
		}
	}

	updated, err := models.MergeFields(existing, stripProtected(fields))
	if err != nil {
		return nil, fmt.Errorf("updating %s: %w", id, err)
	}
	b := updated.Base()
	b.ID = prev.ID
	b.Variant = prev.Variant
	b.CreatedAt = prev.CreatedAt
	b.UpdatedAt = r.clock.After(prev.UpdatedAt)
	b.Tags = models.NormalizeTags(b.Tags)

	records[i] = updated
	if err := r.save(records); err != nil {
		return nil, err
	}
	r.emit(EventConfigUpdated, updated)
	return updated.Clone(), nil
}

func (r *kvRegistry) Delete(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return false, err
	}
	i := indexOf(records, id)
	if i < 0 {
		return false, nil
	}
	removed := records[i]
	records = append(records[:i], records[i+1:]...)
	if err := r.save(records); err != nil {
		return false, err
	}
	r.emit(EventConfigDeleted, removed)
	return true, nil
}

func (r *kvRegistry) Duplicate(id string) (models.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return nil, err
	}
	i := indexOf(records, id)
	if i < 0 {
		return nil, nil
	}

	dup := records[i].Clone()
	b := dup.Base()
	b.ID, b.CreatedAt = r.newID(b.Variant, records)
	b.UpdatedAt = b.CreatedAt
	b.Name += copySuffix

	records = append(records, dup)
	if err := r.save(records); err != nil {
		return nil, err
	}
	r.emit(EventConfigDuplicated, dup)
	return dup.Clone(), nil
}

func (r *kvRegistry) ToggleEnabled(id string) (models.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return nil, err
	}
	i := indexOf(records, id)
	if i < 0 {
		return nil, notFound(id)
	}
	b := records[i].Base()
	b.Enabled = !b.Enabled
	b.UpdatedAt = r.clock.After(b.UpdatedAt)

	if err := r.save(records); err != nil {
		return nil, err
	}
	r.emit(EventConfigToggled, records[i])
	return records[i].Clone(), nil
}

func (r *kvRegistry) Search(variant models.ConfigVariant, term string, status models.StatusFilter) ([]models.Config, error) {
	list, err := r.List(variant)
	if err != nil {
		return nil, err
	}
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(term))

	var out []models.Config
	for _, c := range list {
		b := c.Base()
		if !status.Matches(b.Enabled) {
			continue
		}
		if needle == "" || matchesTerm(b, needle, fold) {
			out = append(out, c)
		}
	}
	if out == nil {
		out = []models.Config{}
	}
	return out, nil
}

func matchesTerm(b *models.BaseConfig, needle string, fold cases.Caser) bool {
	if strings.Contains(fold.String(b.Name), needle) {
		return true
	}
	if strings.Contains(fold.String(b.Description), needle) {
		return true
	}
	for _, tag := range b.Tags {
		if strings.Contains(fold.String(tag), needle) {
			return true
		}
	}
	return false
}

func (r *kvRegistry) Modify(fn func(tx *SnapshotTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return err
	}
	tx := &SnapshotTx{Records: records, reg: r}
	if err := fn(tx); err != nil {
		return err
	}
	return r.save(tx.Records)
}

// newID builds {prefix}_{timestamp}, advancing the clock until the id is
// unused in records.
func (r *kvRegistry) newID(variant models.ConfigVariant, records []models.Config) (string, int64) {
	taken := make(map[string]struct{}, len(records))
	for _, c := range records {
		taken[c.Base().ID] = struct{}{}
	}
	for {
		ts := r.clock.Next()
		id := fmt.Sprintf("%s_%d", variant.IDPrefix(), ts)
		if _, dup := taken[id]; !dup {
			return id, ts
		}
	}
}

func (r *kvRegistry) emit(eventType string, cfg models.Config) {
	b := cfg.Base()
	r.logger.Debug("registry mutation", "event", eventType, "id", b.ID, "variant", b.Variant)
	if r.recorder != nil {
		r.recorder.RecordOperation(strings.TrimPrefix(eventType, "config."), b.Variant)
	}
	if r.events == nil {
		return
	}
	data := map[string]any{
		"id":      b.ID,
		"variant": string(b.Variant),
		"name":    b.Name,
		"enabled": b.Enabled,
	}
	if err := r.events.LogEvent(eventType, data); err != nil {
		r.logger.Warn("writing event failed", "event", eventType, "error", err)
	}
}

// stripProtected drops fields callers may not set directly.
func stripProtected(fields models.Fields) models.Fields {
	out := make(models.Fields, len(fields))
	for k, v := range fields {
		switch k {
		case "id", "variant", "createdAt", "updatedAt":
			continue
		}
		out[k] = v
	}
	return out
}

func indexOf(records []models.Config, id string) int {
	for i, c := range records {
		if c.Base().ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(records []models.Config) []models.Config {
	out := make([]models.Config, len(records))
	for i, c := range records {
		out[i] = c.Clone()
	}
	return out
}
