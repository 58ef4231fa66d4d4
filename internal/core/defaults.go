package core

import "github.com/valter-silva-au/knc/pkg/models"

// seedTimestamp is the creation time stamped on built-in records
// (2025-01-01T00:00:00Z).
const seedTimestamp int64 = 1735689600000

// DefaultKnowledgeNetworkID is the supply-chain network the built-in
// records point at.
const DefaultKnowledgeNetworkID = "supply_chain_kn"

// DefaultConfigs returns the supply-chain records a registry starts from
// when nothing has been persisted yet.
func DefaultConfigs() []models.Config {
	base := func(id string, v models.ConfigVariant, name, desc string, tags ...string) models.BaseConfig {
		return models.BaseConfig{
			ID:          id,
			Variant:     v,
			Name:        name,
			Description: desc,
			Enabled:     true,
			Tags:        append([]string{}, tags...),
			CreatedAt:   seedTimestamp,
			UpdatedAt:   seedTimestamp,
		}
	}

	out := []models.Config{
		&models.KnowledgeNetworkConfig{
			BaseConfig: base("kn_default", models.VariantKnowledgeNetwork,
				"Supply chain knowledge network", "Default ontology for the supply chain console", "default"),
			KnowledgeNetworkID: DefaultKnowledgeNetworkID,
			ObjectTypes: map[string]models.ObjectTypeRef{
				"supplier":  {ID: "supplier", Name: "Supplier", Icon: "truck", Color: "#5B8FF9"},
				"material":  {ID: "material", Name: "Material", Icon: "box", Color: "#61DDAA"},
				"product":   {ID: "product", Name: "Product", Icon: "package", Color: "#65789B"},
				"inventory": {ID: "inventory", Name: "Inventory", Icon: "warehouse", Color: "#F6BD16"},
				"factory":   {ID: "factory", Name: "Factory", Icon: "factory", Color: "#7262FD"},
			},
			RelationTypes: map[string]models.RelationTypeRef{
				"supplies":  {ID: "supplies", Name: "Supplies", Source: "supplier", Target: "material"},
				"stored_in": {ID: "stored_in", Name: "Stored in", Source: "inventory", Target: "factory"},
			},
		},
	}

	for _, kind := range []models.EntityKind{
		models.EntitySupplier,
		models.EntityMaterial,
		models.EntityProduct,
		models.EntityInventory,
		models.EntitySalesOrder,
	} {
		out = append(out, &models.OntologyObjectConfig{
			BaseConfig: base("obj_"+string(kind), models.VariantOntologyObject,
				entityTitle(kind)+" objects", "", "ontology", string(kind)),
			ObjectTypeID:  string(kind),
			EntityType:    kind,
			SortDirection: models.SortDesc,
		})
	}

	temperature := 0.7
	out = append(out,
		&models.MetricModelConfig{
			BaseConfig: base("metric_inventory_turnover", models.VariantMetricModel,
				"Inventory turnover", "Monthly inventory turnover ratio", "inventory", "kpi"),
			ModelID:            "inventory_turnover",
			MetricType:         models.MetricAtomic,
			Unit:               "times",
			AnalysisDimensions: []string{"factory", "material"},
			DefaultTimeRange:   "last_30_days",
			DefaultStep:        "1d",
		},
		&models.AgentConfig{
			BaseConfig: base("agent_planning", models.VariantAgent,
				"Supply planning assistant", "Answers demand and supply planning questions", "assistant"),
			AgentKey:      "supply_planning",
			AppKey:        "supply_chain_console",
			AgentVersion:  "v1",
			ChatMode:      models.ChatModeNormal,
			Temperature:   &temperature,
			MaxTokens:     2048,
			Stream:        true,
			EnableHistory: true,
		},
		&models.WorkflowConfig{
			BaseConfig: base("workflow_mrp", models.VariantWorkflow,
				"Material requirements planning", "Nightly MRP run", "planning"),
			DagID:        "600565437910010238",
			WorkflowName: "mrp_daily",
			TriggerType:  models.TriggerScheduled,
			Schedule:     "0 2 * * *",
			Timeout:      3600,
			MaxRetries:   2,
		},
	)
	return out
}

func entityTitle(k models.EntityKind) string {
	s := []rune(string(k))
	for i, r := range s {
		if r == '_' {
			s[i] = ' '
		}
	}
	if len(s) > 0 && s[0] >= 'a' && s[0] <= 'z' {
		s[0] -= 'a' - 'A'
	}
	return string(s)
}
