package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/valter-silva-au/knc/pkg/models"
	"pgregory.net/rapid"
)

func exportAll(t *testing.T, s Serializer, opts ExportOptions) models.ExportDocument {
	t.Helper()
	data, err := s.Export(opts)
	if err != nil {
		t.Fatalf("Export error: %v", err)
	}
	var doc models.ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decoding export: %v", err)
	}
	return doc
}

func TestExport_FiltersVariantsAndDisabled(t *testing.T) {
	reg := newTestRegistry(newMemKV())
	s := NewSerializer(reg, SerializerOptions{})

	mustCreate(t, reg, models.VariantAgent, nil)
	off := mustCreate(t, reg, models.VariantAgent, models.Fields{"enabled": false})
	mustCreate(t, reg, models.VariantWorkflow, nil)

	doc := exportAll(t, s, ExportOptions{Variants: []models.ConfigVariant{models.VariantAgent}})
	if doc.Version != ExportVersion {
		t.Errorf("Version = %q, want %q", doc.Version, ExportVersion)
	}
	if doc.ExportedAt == 0 {
		t.Error("ExportedAt not set")
	}
	if len(doc.Records) != 1 {
		t.Fatalf("records = %d, want 1 enabled agent", len(doc.Records))
	}

	doc = exportAll(t, s, ExportOptions{
		Variants:        []models.ConfigVariant{models.VariantAgent},
		IncludeDisabled: true,
	})
	if len(doc.Records) != 2 || doc.Records[1].Base().ID != off.Base().ID {
		t.Errorf("records with disabled = %d, want 2 in registry order", len(doc.Records))
	}

	doc = exportAll(t, s, ExportOptions{IncludeDisabled: true})
	if len(doc.Records) != 3 {
		t.Errorf("records for all variants = %d, want 3", len(doc.Records))
	}
}

func TestExport_IDPatternAndPretty(t *testing.T) {
	reg := newTestRegistry(newMemKV())
	s := NewSerializer(reg, SerializerOptions{})
	mustCreate(t, reg, models.VariantAgent, nil)
	mustCreate(t, reg, models.VariantWorkflow, nil)

	data, err := s.Export(ExportOptions{IDPattern: "workflow_*", Pretty: true})
	if err != nil {
		t.Fatalf("Export error: %v", err)
	}
	if !strings.Contains(string(data), "\n  \"records\"") {
		t.Errorf("pretty export not indented:\n%s", data)
	}
	var doc models.ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(doc.Records) != 1 || doc.Records[0].Base().Variant != models.VariantWorkflow {
		t.Errorf("pattern export = %v", doc.Records)
	}

	if _, err := s.Export(ExportOptions{IDPattern: "[unclosed"}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestExport_DoesNotMutateRegistry(t *testing.T) {
	store := newMemKV()
	reg := newTestRegistry(store)
	mustCreate(t, reg, models.VariantAgent, nil)
	before := store.sets

	if _, err := NewSerializer(reg, SerializerOptions{}).Export(ExportOptions{IncludeDisabled: true}); err != nil {
		t.Fatalf("Export error: %v", err)
	}
	if store.sets != before {
		t.Error("Export wrote to the store")
	}
}

func TestImport_ReplaceRoundTrip(t *testing.T) {
	src := newTestRegistry(newMemKV())
	mustCreate(t, src, models.VariantWorkflow, models.Fields{
		"parameters": map[string]any{"plant": "P1", "depth": 3.0},
		"tags":       []string{"mrp", "nightly"},
	})
	off := mustCreate(t, src, models.VariantWorkflow, models.Fields{"name": "Disabled"})
	if _, err := src.ToggleEnabled(off.Base().ID); err != nil {
		t.Fatalf("ToggleEnabled error: %v", err)
	}
	data, err := NewSerializer(src, SerializerOptions{}).Export(ExportOptions{
		Variants:        []models.ConfigVariant{models.VariantWorkflow},
		IncludeDisabled: true,
	})
	if err != nil {
		t.Fatalf("Export error: %v", err)
	}

	dst := newTestRegistry(newMemKV())
	summary, err := NewSerializer(dst, SerializerOptions{}).Import(data, false)
	if err != nil {
		t.Fatalf("Import error: %v", err)
	}
	if summary.Created != 2 || summary.Replaced != 0 {
		t.Errorf("summary = %+v", summary)
	}

	want, _ := src.List(models.VariantWorkflow)
	got, _ := dst.List(models.VariantWorkflow)
	if !reflect.DeepEqual(want, got) {
		t.Errorf("round trip mismatch:\nwant %+v\ngot  %+v", want, got)
	}
}

func TestImport_MergeOverwritesAndAppends(t *testing.T) {
	reg := newTestRegistry(newMemKV())
	s := NewSerializer(reg, SerializerOptions{})
	existing := mustCreate(t, reg, models.VariantAgent, nil)

	doc := `{"version":"1.0","exportedAt":1,"records":[
		{"id":"` + existing.Base().ID + `","variant":"agent","name":"Renamed","enabled":true,"tags":[],
		 "createdAt":1,"updatedAt":1,"agentKey":"planner","appKey":"console","stream":false,"enableHistory":false},
		{"id":"agent_new","variant":"agent","name":"New","enabled":true,"tags":[],
		 "createdAt":0,"updatedAt":0,"agentKey":"k","appKey":"a","stream":true,"enableHistory":true}
	]}`
	summary, err := s.Import([]byte(doc), true)
	if err != nil {
		t.Fatalf("Import error: %v", err)
	}
	if summary.Created != 1 || summary.Updated != 1 {
		t.Errorf("summary = %+v", summary)
	}

	all, _ := reg.All()
	if len(all) != 2 {
		t.Fatalf("size = %d, want 2", len(all))
	}
	merged, _ := reg.Get(existing.Base().ID)
	if merged.Base().Name != "Renamed" {
		t.Errorf("Name = %q, want Renamed", merged.Base().Name)
	}
	if merged.Base().CreatedAt != existing.Base().CreatedAt {
		t.Errorf("CreatedAt = %d, want preserved %d", merged.Base().CreatedAt, existing.Base().CreatedAt)
	}
	if merged.Base().UpdatedAt <= existing.Base().UpdatedAt {
		t.Errorf("UpdatedAt = %d, want > %d", merged.Base().UpdatedAt, existing.Base().UpdatedAt)
	}
	added, _ := reg.Get("agent_new")
	if added.Base().CreatedAt == 0 || added.Base().UpdatedAt < added.Base().CreatedAt {
		t.Errorf("new record timestamps = %d/%d", added.Base().CreatedAt, added.Base().UpdatedAt)
	}
}

func TestImport_ReplaceOnlyTouchesDocumentVariants(t *testing.T) {
	reg := newTestRegistry(newMemKV())
	s := NewSerializer(reg, SerializerOptions{})
	mustCreate(t, reg, models.VariantAgent, nil)
	mustCreate(t, reg, models.VariantAgent, nil)
	keep := mustCreate(t, reg, models.VariantWorkflow, nil)

	doc := `{"version":"1.0","exportedAt":1,"records":[
		{"variant":"agent","name":"Only","enabled":true,"agentKey":"k","appKey":"a"}
	]}`
	summary, err := s.Import([]byte(doc), false)
	if err != nil {
		t.Fatalf("Import error: %v", err)
	}
	if summary.Replaced != 2 || summary.Created != 1 {
		t.Errorf("summary = %+v", summary)
	}

	agents, _ := reg.List(models.VariantAgent)
	if len(agents) != 1 || agents[0].Base().Name != "Only" {
		t.Fatalf("agents after replace = %v", agents)
	}
	if !strings.HasPrefix(agents[0].Base().ID, "agent_") {
		t.Errorf("generated id = %q", agents[0].Base().ID)
	}
	if _, err := reg.Get(keep.Base().ID); err != nil {
		t.Errorf("workflow outside the document was removed: %v", err)
	}
}

func TestImport_RejectsWithoutChanges(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed", `{"version":`},
		{"missing version", `{"records":[]}`},
		{"unsupported version", `{"version":"2.0","records":[]}`},
		{"missing records", `{"version":"1.0"}`},
		{"unknown variant", `{"version":"1.0","records":[{"variant":"report","name":"x"}]}`},
		{"unknown field", `{"version":"1.0","records":[{"variant":"workflow","name":"x","dagId":"1","color":"red"}]}`},
		{"invalid record", `{"version":"1.0","records":[
			{"variant":"workflow","name":"ok","dagId":"1"},
			{"variant":"workflow","name":"missing dag"}]}`},
		{"duplicate ids", `{"version":"1.0","records":[
			{"id":"w1","variant":"workflow","name":"a","dagId":"1"},
			{"id":"w1","variant":"workflow","name":"b","dagId":"2"}]}`},
		{"variant clash", `{"version":"1.0","records":[
			{"id":"agent_fixed","variant":"workflow","name":"a","dagId":"1"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemKV()
			reg := newTestRegistry(store)
			mustCreate(t, reg, models.VariantAgent, models.Fields{"id": "agent_fixed"})
			mustCreate(t, reg, models.VariantWorkflow, nil)
			before := store.data[ConfigStoreKey]

			for _, merge := range []bool{true, false} {
				_, err := NewSerializer(reg, SerializerOptions{}).Import([]byte(tt.doc), merge)
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Fatalf("merge=%v: error = %v, want *ParseError", merge, err)
				}
				if store.data[ConfigStoreKey] != before {
					t.Fatalf("merge=%v: registry changed after rejected import", merge)
				}
			}
		})
	}
}

func TestImport_ValidationFailureNamesRecordAndField(t *testing.T) {
	reg := newTestRegistry(newMemKV())
	doc := `{"version":"1.0","records":[
		{"variant":"workflow","name":"ok","dagId":"1"},
		{"variant":"workflow","name":"bad"}]}`

	_, err := NewSerializer(reg, SerializerOptions{}).Import([]byte(doc), true)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if pe.Index != 1 || len(pe.Fields) != 1 || pe.Fields[0].Field != "dagId" {
		t.Errorf("ParseError = %+v", pe)
	}
}

func TestImport_PersistenceFailure(t *testing.T) {
	store := newMemKV()
	reg := newTestRegistry(store)
	store.failSet = true

	doc := `{"version":"1.0","records":[{"variant":"workflow","name":"a","dagId":"1"}]}`
	if _, err := NewSerializer(reg, SerializerOptions{}).Import([]byte(doc), true); !errors.Is(err, ErrPersistence) {
		t.Errorf("error = %v, want ErrPersistence", err)
	}
}

func TestImport_EmitsEvent(t *testing.T) {
	events := &fakeEventLogger{}
	reg := newTestRegistry(newMemKV())
	doc := `{"version":"1.0","records":[{"variant":"workflow","name":"a","dagId":"1"}]}`

	if _, err := NewSerializer(reg, SerializerOptions{Events: events}).Import([]byte(doc), true); err != nil {
		t.Fatalf("Import error: %v", err)
	}
	if got := events.types(); len(got) != 1 || got[0] != EventConfigImported {
		t.Errorf("events = %v", got)
	}
}

func TestImport_RecordsOperationPerVariant(t *testing.T) {
	rec := &fakeRecorder{}
	reg := newTestRegistry(newMemKV())
	s := NewSerializer(reg, SerializerOptions{Recorder: rec})
	doc := `{"version":"1.0","records":[
		{"variant":"workflow","name":"a","dagId":"1"},
		{"variant":"agent","name":"b","agentKey":"k","appKey":"app"}]}`

	if _, err := s.Import([]byte(doc), true); err != nil {
		t.Fatalf("Import error: %v", err)
	}
	if len(rec.ops) != 2 || rec.ops[0] != "imported" || rec.ops[1] != "imported" {
		t.Errorf("recorded ops = %v, want one imported per variant", rec.ops)
	}

	if _, err := s.Import([]byte(`{"version":"1.0"}`), true); err == nil {
		t.Fatal("expected ParseError for a document without records")
	}
	if len(rec.ops) != 2 {
		t.Errorf("rejected import recorded ops: %v", rec.ops)
	}
}

type failingEventLogger struct{}

func (failingEventLogger) LogEvent(string, map[string]any) error { return errors.New("disk full") }

func TestImport_EventFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	reg := newTestRegistry(newMemKV())
	s := NewSerializer(reg, SerializerOptions{
		Events: failingEventLogger{},
		Logger: slog.New(slog.NewTextHandler(&buf, nil)),
	})
	doc := `{"version":"1.0","records":[{"variant":"workflow","name":"a","dagId":"1"}]}`

	if _, err := s.Import([]byte(doc), true); err != nil {
		t.Fatalf("an event log failure must not fail the import: %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "writing event failed") || !strings.Contains(out, "disk full") {
		t.Errorf("expected a warning about the event write, got %q", out)
	}
}

// Feature: knc, Property 6: Export Import Round Trip
// *For any* registry contents and variant V, importing the export of V with
// merge=false into a fresh registry reproduces the records of V field for field.
func TestProperty6_ExportImportRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		src := newTestRegistry(newMemKV())
		n := rapid.IntRange(0, 6).Draw(rt, "n")
		for i := 0; i < n; i++ {
			v := genVariant(rt, "variant")
			if _, err := src.Create(v, genRecordFields(rt, v, "rec")); err != nil {
				rt.Fatalf("Create error: %v", err)
			}
		}
		v := genVariant(rt, "exported")

		data, err := NewSerializer(src, SerializerOptions{}).Export(ExportOptions{
			Variants:        []models.ConfigVariant{v},
			IncludeDisabled: true,
		})
		if err != nil {
			rt.Fatalf("Export error: %v", err)
		}
		dst := newTestRegistry(newMemKV())
		if _, err := NewSerializer(dst, SerializerOptions{}).Import(data, false); err != nil {
			rt.Fatalf("Import error: %v", err)
		}

		want, _ := src.List(v)
		got, _ := dst.List(v)
		if !reflect.DeepEqual(want, got) {
			rt.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", want, got)
		}
	})
}

// Feature: knc, Property 7: Merge Import Grows By New Records Only
// *For any* registry and a document with one existing id and one new id,
// merge-import grows the registry by exactly one, keeps createdAt of the
// existing record, and changes its updatedAt.
func TestProperty7_MergeImportGrowsByNewRecords(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		reg := newTestRegistry(newMemKV())
		n := rapid.IntRange(1, 5).Draw(rt, "n")
		var existing []models.Config
		for i := 0; i < n; i++ {
			v := genVariant(rt, "variant")
			existing = append(existing, mustCreate(rt, reg, v, nil))
		}
		target := rapid.SampledFrom(existing).Draw(rt, "target")

		updated := target.Clone()
		updated.Base().Name = "renamed"
		v := genVariant(rt, "newVariant")
		fresh, _ := models.NewConfig(v)
		fresh, err := models.MergeFields(fresh, validFields(v))
		if err != nil {
			rt.Fatalf("MergeFields error: %v", err)
		}
		fresh.Base().ID = "imported_" + rapid.StringMatching(`[a-z0-9]{4,8}`).Draw(rt, "suffix")

		data, _ := json.Marshal(models.ExportDocument{
			Version: ExportVersion,
			Records: models.ConfigList{updated, fresh},
		})
		if _, err := NewSerializer(reg, SerializerOptions{}).Import(data, true); err != nil {
			rt.Fatalf("Import error: %v", err)
		}

		all, _ := reg.All()
		if len(all) != n+1 {
			rt.Fatalf("size = %d, want %d", len(all), n+1)
		}
		after, err := reg.Get(target.Base().ID)
		if err != nil {
			rt.Fatalf("Get error: %v", err)
		}
		if after.Base().CreatedAt != target.Base().CreatedAt {
			rt.Fatalf("createdAt changed")
		}
		if after.Base().UpdatedAt == target.Base().UpdatedAt {
			rt.Fatalf("updatedAt unchanged")
		}
	})
}
