package models

import "time"

// ExportDocument is the versioned JSON document produced by export and
// consumed by import.
type ExportDocument struct {
	Version    string     `json:"version"`
	ExportedAt int64      `json:"exportedAt"`
	Records    ConfigList `json:"records"`
}

// ImportSummary reports what an import changed.
type ImportSummary struct {
	Merge    bool            `json:"merge"`
	Created  int             `json:"created"`
	Updated  int             `json:"updated"`
	Replaced int             `json:"replaced"`
	Variants []ConfigVariant `json:"variants"`
}

// TestResult is the outcome of a connection probe. A failed probe is a
// normal result, not an error.
type TestResult struct {
	ConfigID   string        `json:"configId" yaml:"config_id"`
	Variant    ConfigVariant `json:"variant" yaml:"variant"`
	Success    bool          `json:"success" yaml:"success"`
	Message    string        `json:"message" yaml:"message"`
	StatusCode int           `json:"statusCode,omitempty" yaml:"status_code,omitempty"`
	Latency    time.Duration `json:"latency" yaml:"latency"`
	CheckedAt  time.Time     `json:"checkedAt" yaml:"checked_at"`
}
