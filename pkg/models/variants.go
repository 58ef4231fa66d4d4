package models

import "encoding/json"

// ObjectTypeRef is a local alias for a remote object type inside a
// knowledge network configuration.
type ObjectTypeRef struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Icon        string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Color       string `json:"color,omitempty" yaml:"color,omitempty"`
}

// RelationTypeRef is a local alias for a remote relation type.
type RelationTypeRef struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Source      string `json:"source,omitempty" yaml:"source,omitempty"`
	Target      string `json:"target,omitempty" yaml:"target,omitempty"`
}

// KnowledgeNetworkConfig points the console at one remote knowledge network.
type KnowledgeNetworkConfig struct {
	BaseConfig         `yaml:",inline"`
	KnowledgeNetworkID string                     `json:"knowledgeNetworkId" yaml:"knowledgeNetworkId" validate:"notblank"`
	ObjectTypes        map[string]ObjectTypeRef   `json:"objectTypes" yaml:"objectTypes"`
	RelationTypes      map[string]RelationTypeRef `json:"relationTypes,omitempty" yaml:"relationTypes,omitempty"`
}

// Clone implements Config.
func (c *KnowledgeNetworkConfig) Clone() Config {
	out := *c
	out.BaseConfig = c.cloneBase()
	if c.ObjectTypes != nil {
		out.ObjectTypes = make(map[string]ObjectTypeRef, len(c.ObjectTypes))
		for k, v := range c.ObjectTypes {
			out.ObjectTypes[k] = v
		}
	}
	if c.RelationTypes != nil {
		out.RelationTypes = make(map[string]RelationTypeRef, len(c.RelationTypes))
		for k, v := range c.RelationTypes {
			out.RelationTypes[k] = v
		}
	}
	return &out
}

// EntityKind is a business entity class an ontology object maps to.
type EntityKind string

const (
	EntitySupplier       EntityKind = "supplier"
	EntityMaterial       EntityKind = "material"
	EntityProduct        EntityKind = "product"
	EntityBOM            EntityKind = "bom"
	EntityInventory      EntityKind = "inventory"
	EntityProductionPlan EntityKind = "production_plan"
	EntitySalesOrder     EntityKind = "sales_order"
	EntityPurchaseOrder  EntityKind = "purchase_order"
	EntityCustomer       EntityKind = "customer"
	EntityFactory        EntityKind = "factory"
	EntityWarehouse      EntityKind = "warehouse"
	EntityLogistics      EntityKind = "logistics"
)

// EntityKinds is the full set of accepted entity kinds.
var EntityKinds = []EntityKind{
	EntitySupplier, EntityMaterial, EntityProduct, EntityBOM,
	EntityInventory, EntityProductionPlan, EntitySalesOrder, EntityPurchaseOrder,
	EntityCustomer, EntityFactory, EntityWarehouse, EntityLogistics,
}

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	for _, known := range EntityKinds {
		if k == known {
			return true
		}
	}
	return false
}

// SortDirection orders ontology object listings.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// OntologyObjectConfig configures instance queries for one object type.
type OntologyObjectConfig struct {
	BaseConfig    `yaml:",inline"`
	ObjectTypeID  string         `json:"objectTypeId" yaml:"objectTypeId" validate:"notblank"`
	EntityType    EntityKind     `json:"entityType" yaml:"entityType" validate:"notblank,entitykind"`
	Fields        []string       `json:"fields,omitempty" yaml:"fields,omitempty"`
	Filters       map[string]any `json:"filters,omitempty" yaml:"filters,omitempty"`
	SortField     string         `json:"sortField,omitempty" yaml:"sortField,omitempty"`
	SortDirection SortDirection  `json:"sortDirection,omitempty" yaml:"sortDirection,omitempty" validate:"omitempty,oneof=asc desc"`
}

// Clone implements Config.
func (c *OntologyObjectConfig) Clone() Config {
	out := *c
	out.BaseConfig = c.cloneBase()
	if c.Fields != nil {
		out.Fields = append([]string{}, c.Fields...)
	}
	out.Filters = cloneAnyMap(c.Filters)
	return &out
}

// MetricType distinguishes atomic from composite metric models.
type MetricType string

const (
	MetricAtomic  MetricType = "atomic"
	MetricComplex MetricType = "complex"
)

// MetricModelConfig configures access to one metric model.
type MetricModelConfig struct {
	BaseConfig         `yaml:",inline"`
	ModelID            string     `json:"modelId" yaml:"modelId" validate:"notblank"`
	MetricType         MetricType `json:"metricType,omitempty" yaml:"metricType,omitempty" validate:"omitempty,oneof=atomic complex"`
	Unit               string     `json:"unit,omitempty" yaml:"unit,omitempty"`
	AnalysisDimensions []string   `json:"analysisDimensions,omitempty" yaml:"analysisDimensions,omitempty"`
	DefaultTimeRange   string     `json:"defaultTimeRange,omitempty" yaml:"defaultTimeRange,omitempty"`
	DefaultStep        string     `json:"defaultStep,omitempty" yaml:"defaultStep,omitempty"`
}

// Clone implements Config.
func (c *MetricModelConfig) Clone() Config {
	out := *c
	out.BaseConfig = c.cloneBase()
	if c.AnalysisDimensions != nil {
		out.AnalysisDimensions = append([]string{}, c.AnalysisDimensions...)
	}
	return &out
}

// ChatMode selects the agent's reasoning mode.
type ChatMode string

const (
	ChatModeNormal       ChatMode = "normal"
	ChatModeDeepThinking ChatMode = "deep_thinking"
)

// AgentConfig configures a conversational agent application.
type AgentConfig struct {
	BaseConfig    `yaml:",inline"`
	AgentKey      string   `json:"agentKey" yaml:"agentKey" validate:"notblank"`
	AppKey        string   `json:"appKey" yaml:"appKey" validate:"notblank"`
	AgentVersion  string   `json:"agentVersion,omitempty" yaml:"agentVersion,omitempty"`
	ChatMode      ChatMode `json:"chatMode,omitempty" yaml:"chatMode,omitempty" validate:"omitempty,oneof=normal deep_thinking"`
	Temperature   *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens     int      `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty" validate:"gte=0"`
	Stream        bool     `json:"stream" yaml:"stream"`
	EnableHistory bool     `json:"enableHistory" yaml:"enableHistory"`
}

// Clone implements Config.
func (c *AgentConfig) Clone() Config {
	out := *c
	out.BaseConfig = c.cloneBase()
	if c.Temperature != nil {
		t := *c.Temperature
		out.Temperature = &t
	}
	return &out
}

// TriggerType describes how a workflow is started.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
	TriggerEvent     TriggerType = "event"
)

// WorkflowConfig configures a DAG workflow on the automation service.
type WorkflowConfig struct {
	BaseConfig   `yaml:",inline"`
	DagID        string         `json:"dagId" yaml:"dagId" validate:"notblank"`
	WorkflowName string         `json:"workflowName,omitempty" yaml:"workflowName,omitempty"`
	TriggerType  TriggerType    `json:"triggerType,omitempty" yaml:"triggerType,omitempty" validate:"omitempty,oneof=manual scheduled event"`
	Schedule     string         `json:"schedule,omitempty" yaml:"schedule,omitempty" validate:"omitempty,cronspec"`
	Parameters   map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Timeout      int            `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"gte=0"`
	MaxRetries   int            `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty" validate:"gte=0"`
}

// Clone implements Config.
func (c *WorkflowConfig) Clone() Config {
	out := *c
	out.BaseConfig = c.cloneBase()
	out.Parameters = cloneAnyMap(c.Parameters)
	return &out
}

// cloneAnyMap deep-copies a JSON-shaped map. Values that cannot round-trip
// through JSON are copied shallowly.
func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err == nil {
		var out map[string]any
		if err := json.Unmarshal(data, &out); err == nil {
			return out
		}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
