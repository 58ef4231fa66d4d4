package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/valter-silva-au/knc/internal/core"
	"github.com/valter-silva-au/knc/internal/storage"
	"github.com/valter-silva-au/knc/pkg/models"
)

// fakeTester answers probes from a map of config id to result. Unknown ids
// succeed.
type fakeTester struct {
	results map[string]models.TestResult
	tested  []string
}

func (f *fakeTester) Test(_ context.Context, cfg models.Config) models.TestResult {
	b := cfg.Base()
	f.tested = append(f.tested, b.ID)
	if r, ok := f.results[b.ID]; ok {
		r.ConfigID, r.Variant = b.ID, b.Variant
		return r
	}
	return models.TestResult{
		ConfigID: b.ID, Variant: b.Variant, Success: true,
		Message: "connected", StatusCode: 200, Latency: 12 * time.Millisecond,
		CheckedAt: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (f *fakeTester) TestAll(ctx context.Context, cfgs []models.Config, _ int) []models.TestResult {
	out := make([]models.TestResult, len(cfgs))
	for i, c := range cfgs {
		out[i] = f.Test(ctx, c)
	}
	return out
}

func sampleWorkflow(id, name string, enabled bool, tags ...string) *models.WorkflowConfig {
	if tags == nil {
		tags = []string{}
	}
	return &models.WorkflowConfig{
		BaseConfig: models.BaseConfig{
			ID: id, Variant: models.VariantWorkflow, Name: name, Enabled: enabled,
			Tags: tags, CreatedAt: 1, UpdatedAt: 1,
		},
		DagID: "dag-" + id,
	}
}

func sampleAgent(id, name string) *models.AgentConfig {
	return &models.AgentConfig{
		BaseConfig: models.BaseConfig{
			ID: id, Variant: models.VariantAgent, Name: name, Enabled: true,
			Tags: []string{"assistant"}, CreatedAt: 1, UpdatedAt: 1,
		},
		AppKey:   "app-1",
		AgentKey: "agent-1",
	}
}

// withServices installs an in-memory registry, serializer, settings store and
// fake tester as the package services for the duration of the test.
func withServices(t *testing.T, seed ...models.Config) (*fakeTester, storage.SettingsStore) {
	t.Helper()
	origReg, origSer, origTester, origSettings := Registry, Serializer, Tester, Settings
	t.Cleanup(func() {
		Registry, Serializer, Tester, Settings = origReg, origSer, origTester, origSettings
	})

	kv := storage.NewMemoryKVStore()
	Registry = core.NewConfigRegistry(kv, core.RegistryOptions{Seed: seed})
	Serializer = core.NewSerializer(Registry, core.SerializerOptions{})
	Settings = storage.NewSettingsStore(kv)
	tester := &fakeTester{results: map[string]models.TestResult{}}
	Tester = tester
	return tester, Settings
}

// runCLI executes the root command with args and returns what it wrote.
// Flags are reset first, since cobra keeps parsed values between runs.
func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})

	err = rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}
