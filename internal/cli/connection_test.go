package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/valter-silva-au/knc/internal/core"
	"github.com/valter-silva-au/knc/internal/observability"
	"github.com/valter-silva-au/knc/pkg/models"
)

func TestTestCmd_NilServices(t *testing.T) {
	origReg, origTester := Registry, Tester
	defer func() { Registry, Tester = origReg, origTester }()
	Registry, Tester = nil, nil

	if err := testCmd.RunE(testCmd, []string{"wf_1"}); err == nil {
		t.Fatal("expected error with nil services")
	}
}

func TestTestCmd_ArgumentRules(t *testing.T) {
	withServices(t, sampleWorkflow("wf_1", "MRP run", true))

	for _, args := range [][]string{
		{"test"},
		{"test", "wf_1", "--all"},
	} {
		_, _, err := runCLI(t, args...)
		if err == nil || !strings.Contains(err.Error(), "either a configuration id or --all") {
			t.Errorf("%v: expected argument error, got %v", args, err)
		}
	}
}

func TestTestCmd_Single(t *testing.T) {
	tester, _ := withServices(t, sampleWorkflow("wf_1", "MRP run", true))

	out, _, err := runCLI(t, "test", "wf_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"wf_1", "workflow", "ok", "200", "12ms", "connected"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Join(tester.tested, ",") != "wf_1" {
		t.Errorf("tested %v, want [wf_1]", tester.tested)
	}
}

func TestTestCmd_UnknownID(t *testing.T) {
	withServices(t)

	_, _, err := runCLI(t, "test", "wf_missing")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTestCmd_AllSelection(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"enabled only", []string{"--all"}, "agent_1,wf_1"},
		{"with disabled", []string{"--all", "--include-disabled"}, "agent_1,wf_1,wf_2"},
		{"one variant", []string{"--all", "--variant", "agent"}, "agent_1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tester, _ := withServices(t,
				sampleWorkflow("wf_1", "MRP run", true),
				sampleWorkflow("wf_2", "Demand sensing", false),
				sampleAgent("agent_1", "Supply assistant"),
			)

			if _, _, err := runCLI(t, append([]string{"test"}, tt.args...)...); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := slices.Sorted(slices.Values(tester.tested))
			if strings.Join(got, ",") != tt.want {
				t.Errorf("tested %v, want %s", got, tt.want)
			}
		})
	}
}

func TestTestCmd_FailuresReturnError(t *testing.T) {
	tester, _ := withServices(t,
		sampleWorkflow("wf_1", "MRP run", true),
		sampleAgent("agent_1", "Supply assistant"),
	)
	tester.results["wf_1"] = models.TestResult{Success: false, Message: "dag not found", StatusCode: 404}

	out, _, err := runCLI(t, "test", "--all", "-o", "json")
	if err == nil || err.Error() != "1 of 2 connection test(s) failed" {
		t.Fatalf("expected failure count error, got %v", err)
	}

	var results []models.TestResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("results should still be printed: %v\n%s", err, out)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
}

func TestTestCmd_Notify(t *testing.T) {
	tester, _ := withServices(t, sampleWorkflow("wf_1", "MRP run", true))
	tester.results["wf_1"] = models.TestResult{Success: false, Message: "token rejected", StatusCode: 401}

	var sent []observability.Alert
	withNotifier(t, &notifierMock{
		notifyFn: func(_ context.Context, alerts []observability.Alert) error {
			sent = alerts
			return nil
		},
	})

	_, stderr, err := runCLI(t, "test", "wf_1", "--notify")
	if err == nil {
		t.Fatal("a failed probe is still reported as an error")
	}
	if len(sent) != 1 {
		t.Fatalf("expected 1 alert sent, got %d", len(sent))
	}
	if sent[0].Condition != observability.ConditionUnauthorized || sent[0].Severity != observability.SeverityHigh {
		t.Errorf("alert = %+v, want unauthorized/high", sent[0])
	}
	if !strings.Contains(stderr, "Notified 1 failure(s)") {
		t.Errorf("unexpected stderr: %q", stderr)
	}
}

func TestTestCmd_NotifyErrors(t *testing.T) {
	tests := []struct {
		name     string
		notifier observability.Notifier
		wantErr  string
	}{
		{"no webhook", nil, "slack_webhook"},
		{"webhook fails", &notifierMock{notifyFn: func(context.Context, []observability.Alert) error {
			return fmt.Errorf("webhook returned 500")
		}}, "sending notification"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tester, _ := withServices(t, sampleWorkflow("wf_1", "MRP run", true))
			tester.results["wf_1"] = models.TestResult{Success: false, Message: "unreachable"}
			withNotifier(t, tt.notifier)

			_, _, err := runCLI(t, "test", "wf_1", "--notify")
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected %q error, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestTestCmd_NotifySkippedOnSuccess(t *testing.T) {
	withServices(t, sampleWorkflow("wf_1", "MRP run", true))
	withNotifier(t, nil)

	if _, _, err := runCLI(t, "test", "wf_1", "--notify"); err != nil {
		t.Fatalf("passing probes need no notifier: %v", err)
	}
}

func TestResultTable_Empty(t *testing.T) {
	var b strings.Builder
	resultTable(&b, nil)
	if !strings.Contains(b.String(), "No configurations to test.") {
		t.Errorf("unexpected output: %s", b.String())
	}
}
