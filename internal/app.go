// Package internal provides the App struct that wires all components of knc
// together and initializes the CLI layer.
package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/valter-silva-au/knc/internal/cli"
	"github.com/valter-silva-au/knc/internal/core"
	"github.com/valter-silva-au/knc/internal/integration"
	"github.com/valter-silva-au/knc/internal/observability"
	"github.com/valter-silva-au/knc/internal/storage"
	"github.com/valter-silva-au/knc/pkg/models"
)

// HomeEnv overrides the base path lookup.
const HomeEnv = "KNC_HOME"

// Options adjusts how NewApp wires the system.
type Options struct {
	// Ephemeral keeps configurations and settings in memory for this process.
	Ephemeral bool
	// LogOutput receives structured logs. Defaults to stderr.
	LogOutput io.Writer
}

// App holds all service dependencies for knc.
type App struct {
	BasePath string
	Config   *models.AppConfig

	// Configuration
	ConfigMgr core.ConfigurationManager
	Logger    *slog.Logger

	// Storage layer
	Store    storage.KVStore
	Settings storage.SettingsStore

	// Core services
	Registry   core.ConfigRegistry
	Serializer core.Serializer
	Tester     core.ConnectionTester
	Instances  core.InstanceBrowser

	// Integration services
	Platform *integration.PlatformClient
	Tokens   *integration.TokenChain

	// Observability
	EventLog     observability.EventLog
	Metrics      *observability.PrometheusMetrics
	ActivityCalc observability.ActivityCalculator
	AlertEngine  observability.AlertEngine
	Notifier     observability.Notifier
}

// NewApp creates and wires all components of knc. basePath is the directory
// holding .kncconfig and, for the file backend, the stored snapshot.
func NewApp(basePath string, opts Options) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if opts.Ephemeral {
		cfg.Storage.Backend = "memory"
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	logOut := opts.LogOutput
	if logOut == nil {
		logOut = os.Stderr
	}
	app.Logger = observability.NewLogger(cfg.Log, logOut)

	// --- Observability ---
	// A missing event log disables activity and alerts but not the registry.
	app.EventLog, err = observability.NewJSONLEventLog(resolvePath(basePath, cfg.EventLogPath))
	if err != nil {
		app.Logger.Warn("event log disabled", "path", cfg.EventLogPath, "error", err)
		app.EventLog = nil
	}
	var events core.EventLogger
	if app.EventLog != nil {
		events = app.EventLog
		app.ActivityCalc = observability.NewActivityCalculator(app.EventLog)
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, observability.DefaultAlertThresholds())
	}
	if cfg.SlackWebhook != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.SlackWebhook)
	}
	app.Metrics = observability.NewPrometheusMetrics()

	// --- Storage layer ---
	app.Store, err = storage.NewKVStore(basePath, cfg.Storage)
	if err != nil {
		app.closeEventLog()
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}
	app.Settings = storage.NewSettingsStore(app.Store)

	// --- Core services ---
	regOpts := core.RegistryOptions{
		Events:   events,
		Recorder: app.Metrics,
		Logger:   app.Logger,
	}
	if cfg.SeedDefaults {
		regOpts.Seed = core.DefaultConfigs()
	}
	app.Registry = core.NewConfigRegistry(app.Store, regOpts)
	app.Serializer = core.NewSerializer(app.Registry, core.SerializerOptions{
		Events:   events,
		Recorder: app.Metrics,
		Logger:   app.Logger,
	})

	// --- Integration services ---
	timeout := time.Duration(cfg.Platform.TimeoutSeconds) * time.Second
	host := integration.NewHostTokenProvider(cfg.Host, app.Logger)
	app.Tokens = integration.NewTokenChain(host, integration.NewSettingsTokenProvider(app.Settings), app.Logger)
	app.Platform = integration.NewPlatformClient(cfg.Platform.BaseURL, timeout)

	app.Tester = core.NewConnectionTester(app.Platform, core.TesterOptions{
		Tokens:   app.Tokens,
		Settings: app.Settings,
		Timeout:  timeout,
		Events:   events,
		Recorder: app.Metrics,
		Logger:   app.Logger,
	})
	app.Instances = core.NewInstanceBrowser(app.Registry, app.Platform, core.InstanceOptions{
		Tokens:   app.Tokens,
		Settings: app.Settings,
		Logger:   app.Logger,
	})

	// --- Wire CLI ---
	cli.Registry = app.Registry
	cli.Serializer = app.Serializer
	cli.Tester = app.Tester
	cli.Instances = app.Instances
	cli.Settings = app.Settings
	cli.Logger = app.Logger
	cli.ServerAddr = cfg.ServerAddr
	cli.WorkspaceInit = core.NewWorkspaceInitializer()

	cli.ActivityCalc = app.ActivityCalc
	cli.AlertEngine = app.AlertEngine
	cli.Notifier = app.Notifier
	cli.Metrics = app.Metrics

	app.Logger.Debug("knc initialized",
		"base_path", basePath,
		"storage", cfg.Storage.Backend,
		"platform", cfg.Platform.BaseURL,
	)
	return app, nil
}

// Close releases the storage backend and the event log file handle. It is
// safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing storage: %w", err))
		}
	}
	if a.EventLog != nil {
		if err := a.EventLog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing event log: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) closeEventLog() {
	if a.EventLog != nil {
		_ = a.EventLog.Close()
	}
}

// ResolveBasePath determines the knc base directory. It checks KNC_HOME,
// then the nearest ancestor of the working directory containing
// .kncconfig, then falls back to the working directory.
func ResolveBasePath() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cwd, _ := os.Getwd()
	return cwd
}

func resolvePath(basePath, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(basePath, p)
}
