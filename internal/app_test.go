package internal

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valter-silva-au/knc/internal/cli"
	"github.com/valter-silva-au/knc/internal/core"
	"github.com/valter-silva-au/knc/pkg/models"
)

func newTestApp(t *testing.T, basePath string, opts Options) *App {
	t.Helper()
	if opts.LogOutput == nil {
		opts.LogOutput = io.Discard
	}
	app, err := NewApp(basePath, opts)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, core.ConfigFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveBasePath_HomeSet(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(HomeEnv, tmpDir)

	got := ResolveBasePath()
	if got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
	}
}

func TestResolveBasePath_FindsConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "sub", "nested")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, tmpDir, "log:\n  level: info\n")

	t.Chdir(subDir)
	t.Setenv(HomeEnv, "")

	got := ResolveBasePath()
	if got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q (should find %s in parent)", got, tmpDir, core.ConfigFileName)
	}
}

func TestResolveBasePath_FallbackToCwd(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	t.Setenv(HomeEnv, "")

	got := ResolveBasePath()
	if got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q (should fall back to cwd)", got, tmpDir)
	}
}

func TestNewApp_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	app := newTestApp(t, tmpDir, Options{})

	if app.Config.Storage.Backend != "file" {
		t.Errorf("storage backend = %q, want file", app.Config.Storage.Backend)
	}
	if app.Registry == nil || app.Serializer == nil || app.Tester == nil || app.Settings == nil {
		t.Fatal("core services should be wired")
	}
	if app.EventLog == nil || app.ActivityCalc == nil || app.AlertEngine == nil {
		t.Error("observability should be enabled with a writable base path")
	}
	if app.Notifier != nil {
		t.Error("notifier should be nil without a slack webhook")
	}

	// Seeded defaults are visible before anything is persisted.
	if _, err := app.Registry.Get("kn_default"); err != nil {
		t.Errorf("expected seeded kn_default: %v", err)
	}
}

func TestNewApp_WiresCLI(t *testing.T) {
	app := newTestApp(t, t.TempDir(), Options{})

	if cli.Registry != app.Registry {
		t.Error("cli.Registry not wired")
	}
	if cli.Serializer != app.Serializer {
		t.Error("cli.Serializer not wired")
	}
	if cli.Tester != app.Tester {
		t.Error("cli.Tester not wired")
	}
	if app.Instances == nil || cli.Instances != app.Instances {
		t.Error("cli.Instances not wired")
	}
	if cli.Metrics != app.Metrics {
		t.Error("cli.Metrics not wired")
	}
	if cli.ServerAddr != app.Config.ServerAddr {
		t.Errorf("cli.ServerAddr = %q, want %q", cli.ServerAddr, app.Config.ServerAddr)
	}
}

func TestNewApp_PersistsToFileBackend(t *testing.T) {
	tmpDir := t.TempDir()
	app := newTestApp(t, tmpDir, Options{})

	cfg, err := app.Registry.Create(models.VariantWorkflow, models.Fields{"name": "MRP run", "dagId": "42"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, ".knc", core.ConfigStoreKey)); err != nil {
		t.Errorf("expected snapshot file under .knc: %v", err)
	}

	// A second app over the same base path sees the record.
	again := newTestApp(t, tmpDir, Options{})
	if _, err := again.Registry.Get(cfg.Base().ID); err != nil {
		t.Errorf("record not persisted across apps: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, ".knc_events.jsonl"))
	if err != nil {
		t.Fatalf("reading event log: %v", err)
	}
	if !strings.Contains(string(data), `"config.created"`) {
		t.Errorf("event log should record the create, got: %s", data)
	}
}

func TestNewApp_Ephemeral(t *testing.T) {
	tmpDir := t.TempDir()
	app := newTestApp(t, tmpDir, Options{Ephemeral: true})

	if app.Config.Storage.Backend != "memory" {
		t.Errorf("storage backend = %q, want memory", app.Config.Storage.Backend)
	}
	if _, err := app.Registry.Create(models.VariantWorkflow, models.Fields{"name": "MRP run", "dagId": "42"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ".knc")); !os.IsNotExist(err) {
		t.Errorf("ephemeral app should not write the storage directory, stat err = %v", err)
	}
}

func TestNewApp_ConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `storage:
  backend: sql
  sql:
    driver: sqlite
    dsn: data/knc.db
platform:
  base_url: https://kn.example.com
  timeout: 5
notifications:
  slack_webhook: https://hooks.slack.com/services/T000/B000/XXX
seed_defaults: false
`)
	app := newTestApp(t, tmpDir, Options{})

	if app.Config.Platform.BaseURL != "https://kn.example.com" {
		t.Errorf("platform.base_url = %q", app.Config.Platform.BaseURL)
	}
	if app.Notifier == nil {
		t.Error("notifier should be set when a slack webhook is configured")
	}
	all, err := app.Registry.All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 0 {
		t.Errorf("seed_defaults=false should start empty, got %d records", len(all))
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "data", "knc.db")); err != nil {
		t.Errorf("expected sqlite database under the base path: %v", err)
	}
}

func TestNewApp_EnvOverride(t *testing.T) {
	t.Setenv("KNC_STORAGE_BACKEND", "memory")
	app := newTestApp(t, t.TempDir(), Options{})

	if app.Config.Storage.Backend != "memory" {
		t.Errorf("storage backend = %q, want memory from KNC_STORAGE_BACKEND", app.Config.Storage.Backend)
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "storage:\n  backend: etcd\nplatform:\n  base_url: kn.example.com\n")

	_, err := NewApp(tmpDir, Options{LogOutput: io.Discard})
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"storage.backend", "platform.base_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestNewApp_MalformedConfig(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "storage: [unclosed\n")

	if _, err := NewApp(tmpDir, Options{LogOutput: io.Discard}); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}

func TestApp_CloseNilEventLog(t *testing.T) {
	app := &App{}
	if err := app.Close(); err != nil {
		t.Errorf("Close() on empty app = %v", err)
	}
}
