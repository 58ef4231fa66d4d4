package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ConfigVariant identifies which kind of platform resource a configuration
// record points at. The set is closed.
type ConfigVariant string

const (
	VariantKnowledgeNetwork ConfigVariant = "knowledge_network"
	VariantOntologyObject   ConfigVariant = "ontology_object"
	VariantMetricModel      ConfigVariant = "metric_model"
	VariantAgent            ConfigVariant = "agent"
	VariantWorkflow         ConfigVariant = "workflow"
)

// AllVariants lists every variant in display order.
var AllVariants = []ConfigVariant{
	VariantKnowledgeNetwork,
	VariantOntologyObject,
	VariantMetricModel,
	VariantAgent,
	VariantWorkflow,
}

var variantPrefixes = map[ConfigVariant]string{
	VariantKnowledgeNetwork: "kn",
	VariantOntologyObject:   "obj",
	VariantMetricModel:      "metric",
	VariantAgent:            "agent",
	VariantWorkflow:         "workflow",
}

// Valid reports whether v is one of the known variants.
func (v ConfigVariant) Valid() bool {
	_, ok := variantPrefixes[v]
	return ok
}

// IDPrefix returns the prefix used when generating record IDs.
func (v ConfigVariant) IDPrefix() string {
	return variantPrefixes[v]
}

// ParseVariant accepts a variant name or its ID prefix ("kn", "obj", ...)
// and returns the matching ConfigVariant.
func ParseVariant(s string) (ConfigVariant, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, v := range AllVariants {
		if string(v) == s || v.IDPrefix() == s || strings.ReplaceAll(string(v), "_", "-") == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown config variant %q: must be one of %s", s, variantNames())
}

func variantNames() string {
	names := make([]string, len(AllVariants))
	for i, v := range AllVariants {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}

// BaseConfig holds the fields shared by every configuration variant.
type BaseConfig struct {
	ID          string        `json:"id" yaml:"id"`
	Variant     ConfigVariant `json:"variant" yaml:"variant"`
	Name        string        `json:"name" yaml:"name" validate:"notblank"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool          `json:"enabled" yaml:"enabled"`
	Tags        []string      `json:"tags" yaml:"tags"`
	CreatedAt   int64         `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   int64         `json:"updatedAt" yaml:"updatedAt"`
}

// Base returns the shared fields. It is promoted to every variant struct.
func (b *BaseConfig) Base() *BaseConfig { return b }

func (b *BaseConfig) sealed() {}

func (b BaseConfig) cloneBase() BaseConfig {
	out := b
	out.Tags = append([]string{}, b.Tags...)
	return out
}

// Config is the sum type over the five configuration variants. Only the
// *XxxConfig types in this package implement it.
type Config interface {
	Base() *BaseConfig
	Clone() Config
	sealed()
}

// Fields is a partial record keyed by JSON field name. It is the patch shape
// accepted by create, update, and partial validation.
type Fields map[string]any

// FieldError describes a single validation failure for one field.
type FieldError struct {
	Field   string `json:"field" yaml:"field"`
	Message string `json:"message" yaml:"message"`
}

// StatusFilter narrows a search to enabled, disabled, or all records.
type StatusFilter string

const (
	StatusAll      StatusFilter = "all"
	StatusEnabled  StatusFilter = "enabled"
	StatusDisabled StatusFilter = "disabled"
)

// ParseStatusFilter maps user input to a StatusFilter. Empty input means all.
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch StatusFilter(strings.ToLower(strings.TrimSpace(s))) {
	case "", StatusAll:
		return StatusAll, nil
	case StatusEnabled:
		return StatusEnabled, nil
	case StatusDisabled:
		return StatusDisabled, nil
	default:
		return "", fmt.Errorf("invalid status filter %q: must be one of all, enabled, disabled", s)
	}
}

// Matches reports whether a record with the given enabled flag passes the filter.
func (f StatusFilter) Matches(enabled bool) bool {
	switch f {
	case StatusEnabled:
		return enabled
	case StatusDisabled:
		return !enabled
	default:
		return true
	}
}

// NewConfig returns an empty record of the given variant populated with the
// defaults a freshly created record carries.
func NewConfig(v ConfigVariant) (Config, error) {
	cfg, err := ZeroConfig(v)
	if err != nil {
		return nil, err
	}
	b := cfg.Base()
	b.Enabled = true
	b.Tags = []string{}
	switch c := cfg.(type) {
	case *KnowledgeNetworkConfig:
		c.ObjectTypes = map[string]ObjectTypeRef{}
	case *OntologyObjectConfig:
		c.SortDirection = SortDesc
	case *AgentConfig:
		c.ChatMode = ChatModeNormal
		c.Stream = true
		c.EnableHistory = true
	case *WorkflowConfig:
		c.TriggerType = TriggerManual
	}
	return cfg, nil
}

// ZeroConfig returns a record of the given variant with every field unset
// except the variant discriminator.
func ZeroConfig(v ConfigVariant) (Config, error) {
	var cfg Config
	switch v {
	case VariantKnowledgeNetwork:
		cfg = &KnowledgeNetworkConfig{}
	case VariantOntologyObject:
		cfg = &OntologyObjectConfig{}
	case VariantMetricModel:
		cfg = &MetricModelConfig{}
	case VariantAgent:
		cfg = &AgentConfig{}
	case VariantWorkflow:
		cfg = &WorkflowConfig{}
	default:
		return nil, fmt.Errorf("unknown config variant %q", v)
	}
	cfg.Base().Variant = v
	return cfg, nil
}

// VariantOf returns the variant implied by the concrete type of cfg,
// regardless of what the discriminator field says.
func VariantOf(cfg Config) ConfigVariant {
	switch cfg.(type) {
	case *KnowledgeNetworkConfig:
		return VariantKnowledgeNetwork
	case *OntologyObjectConfig:
		return VariantOntologyObject
	case *MetricModelConfig:
		return VariantMetricModel
	case *AgentConfig:
		return VariantAgent
	case *WorkflowConfig:
		return VariantWorkflow
	default:
		return ""
	}
}

// DecodeConfig decodes one JSON record, dispatching on its "variant" field.
// Unknown fields are rejected.
func DecodeConfig(data []byte) (Config, error) {
	var head struct {
		Variant ConfigVariant `json:"variant"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if head.Variant == "" {
		return nil, fmt.Errorf("decoding config: missing variant")
	}
	cfg, err := ZeroConfig(head.Variant)
	if err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := decodeStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("decoding %s config: %w", head.Variant, err)
	}
	return cfg, nil
}

// MergeFields overlays fields onto a copy of cfg and returns the result as a
// new record of the same variant. Values must have the JSON type of the
// target field; unknown field names are rejected.
func MergeFields(cfg Config, fields Fields) (Config, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	var current map[string]any
	if err := json.Unmarshal(data, &current); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	for k, v := range fields {
		current[k] = v
	}
	merged, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("encoding merged fields: %w", err)
	}
	out, err := ZeroConfig(VariantOf(cfg))
	if err != nil {
		return nil, err
	}
	if err := decodeStrict(merged, out); err != nil {
		return nil, fmt.Errorf("applying fields: %w", err)
	}
	return out, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// ConfigList is an ordered collection of records that decodes each element
// through DecodeConfig.
type ConfigList []Config

// UnmarshalJSON implements json.Unmarshaler.
func (l *ConfigList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(ConfigList, 0, len(raw))
	for i, r := range raw {
		cfg, err := DecodeConfig(r)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, cfg)
	}
	*l = out
	return nil
}

// NormalizeTags trims tags, drops empty ones, and suppresses duplicates while
// keeping first-seen order. The result is never nil.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// AddTag appends tag unless it is already present.
func AddTag(tags []string, tag string) []string {
	return NormalizeTags(append(append([]string{}, tags...), tag))
}
