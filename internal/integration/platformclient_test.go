package integration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/valter-silva-au/knc/internal/core"
	"github.com/valter-silva-au/knc/pkg/models"
)

func TestPlatformClient_GetSetsHeaders(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		_, _ = w.Write([]byte(`{"total_count":3}`))
	}))
	defer srv.Close()

	client := NewPlatformClient(srv.URL+"/", 5*time.Second)
	resp, err := client.Get(context.Background(), "/api/automation/v1/dag/42", map[string]string{
		"Authorization": "Bearer abc",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 || string(resp.Body) != `{"total_count":3}` {
		t.Errorf("response = %d %s", resp.StatusCode, resp.Body)
	}
	if got.URL.Path != "/api/automation/v1/dag/42" {
		t.Errorf("path = %q", got.URL.Path)
	}
	if got.Header.Get("Authorization") != "Bearer abc" {
		t.Errorf("Authorization = %q", got.Header.Get("Authorization"))
	}
	if len(got.Header.Get("X-Request-ID")) != 36 {
		t.Errorf("X-Request-ID = %q, want a uuid", got.Header.Get("X-Request-ID"))
	}
}

func TestPlatformClient_PostEncodesJSON(t *testing.T) {
	var body map[string]any
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	resp, err := NewPlatformClient(srv.URL, 0).Post(context.Background(), "/q", map[string]any{"limit": 1}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
	if body["limit"] != 1.0 {
		t.Errorf("body = %v", body)
	}
}

func TestPlatformClient_Non2xxIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(strings.Repeat("n", 2000)))
	}))
	defer srv.Close()

	_, err := NewPlatformClient(srv.URL, time.Second).Get(context.Background(), "/missing", nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.HTTPStatus() != http.StatusNotFound {
		t.Errorf("status = %d", se.HTTPStatus())
	}
	if len(se.Body) > maxErrorBody+3 {
		t.Errorf("body excerpt not truncated: %d bytes", len(se.Body))
	}
}

func TestPlatformClient_ErrorExcerptKeepsRunesWhole(t *testing.T) {
	body := "x" + strings.Repeat("错", 300)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	_, err := NewPlatformClient(srv.URL, time.Second).Get(context.Background(), "/fail", nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if !utf8.ValidString(se.Body) {
		t.Fatalf("excerpt is not valid UTF-8: %q", se.Body)
	}
	if !strings.HasSuffix(se.Body, "错...") {
		t.Errorf("excerpt should end on a whole rune, got tail %q", se.Body[len(se.Body)-10:])
	}
	if len(se.Body) > maxErrorBody+3 {
		t.Errorf("excerpt is %d bytes, want at most %d", len(se.Body), maxErrorBody+3)
	}
	if !utf8.ValidString(err.Error()) {
		t.Error("error message is not valid UTF-8")
	}
}

func TestBodyExcerpt(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"short", []byte("  not found  "), "not found"},
		{"invalid bytes replaced", []byte{'a', 0xff, 'b'}, "a\uFFFDb"},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bodyExcerpt(tt.in); got != tt.want {
				t.Errorf("bodyExcerpt(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPlatformClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := NewPlatformClient(url, time.Second).Get(context.Background(), "/x", nil); err == nil {
		t.Fatal("expected error for closed server")
	}
}

func TestPlatformClient_DrivesConnectionTester(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/mdl-data-model/v1/metric-models/m1":
			_, _ = w.Write([]byte(`{}`))
		case "/api/automation/v1/dag/slow":
			time.Sleep(200 * time.Millisecond)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	tester := core.NewConnectionTester(NewPlatformClient(srv.URL, 0), core.TesterOptions{Timeout: 50 * time.Millisecond})

	metric := &models.MetricModelConfig{BaseConfig: models.BaseConfig{ID: "metric_1", Variant: models.VariantMetricModel}, ModelID: "m1"}
	if res := tester.Test(context.Background(), metric); !res.Success {
		t.Errorf("metric probe failed: %s", res.Message)
	}

	missing := &models.MetricModelConfig{BaseConfig: models.BaseConfig{ID: "metric_2", Variant: models.VariantMetricModel}, ModelID: "nope"}
	if res := tester.Test(context.Background(), missing); res.Success || res.StatusCode != http.StatusNotFound {
		t.Errorf("missing metric result = %+v", res)
	}

	slow := &models.WorkflowConfig{BaseConfig: models.BaseConfig{ID: "workflow_1", Variant: models.VariantWorkflow}, DagID: "slow"}
	if res := tester.Test(context.Background(), slow); res.Success || !strings.Contains(res.Message, "timed out") {
		t.Errorf("slow workflow result = %+v", res)
	}
}
