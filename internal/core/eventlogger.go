package core

import (
	"time"

	"github.com/valter-silva-au/knc/pkg/models"
)

// EventLogger is the subset of the observability event log that core
// services need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// OperationRecorder receives counters for registry operations and probes.
// The Prometheus metrics registry implements it.
type OperationRecorder interface {
	RecordOperation(op string, variant models.ConfigVariant)
	RecordProbe(variant models.ConfigVariant, success bool, latency time.Duration)
}

// Event types written by core services.
const (
	EventConfigCreated    = "config.created"
	EventConfigUpdated    = "config.updated"
	EventConfigDeleted    = "config.deleted"
	EventConfigDuplicated = "config.duplicated"
	EventConfigToggled    = "config.toggled"
	EventConfigImported   = "config.imported"
	EventConfigTested     = "config.tested"
)
