package models

// Instance is one object instance returned by the ontology query service.
type Instance map[string]any

// InstancePage is a window of object instances behind an ontology object
// config. SearchAfter is the cursor for the next page; it is empty when
// there is nothing more to load.
type InstancePage struct {
	ConfigID     string     `json:"configId" yaml:"config_id"`
	ObjectTypeID string     `json:"objectTypeId" yaml:"object_type_id"`
	Entries      []Instance `json:"entries" yaml:"entries"`
	SearchAfter  []any      `json:"searchAfter,omitempty" yaml:"search_after,omitempty"`
	TotalCount   *int       `json:"totalCount,omitempty" yaml:"total_count,omitempty"`
	Pages        int        `json:"pages" yaml:"pages"`
	// Truncated is set when loading stopped at the caller's limit before the
	// platform ran out of pages.
	Truncated bool `json:"truncated,omitempty" yaml:"truncated,omitempty"`
}
