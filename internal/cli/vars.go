package cli

import (
	"log/slog"

	"github.com/valter-silva-au/knc/internal/core"
	"github.com/valter-silva-au/knc/internal/observability"
	"github.com/valter-silva-au/knc/internal/storage"
)

// Service instances, set during app initialization in app.go.
var (
	Registry   core.ConfigRegistry
	Serializer core.Serializer
	Tester     core.ConnectionTester
	Instances  core.InstanceBrowser
	Settings   storage.SettingsStore
	Logger     *slog.Logger

	// ServerAddr is the listen address used by `knc serve`.
	ServerAddr string
)

// Observability service instances, set during app initialization in app.go.
var (
	ActivityCalc observability.ActivityCalculator
	AlertEngine  observability.AlertEngine
	Notifier     observability.Notifier
	Metrics      *observability.PrometheusMetrics
)
