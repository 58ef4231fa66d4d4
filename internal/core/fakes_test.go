package core

import (
	"errors"
	"sync"
	"time"

	"github.com/valter-silva-au/knc/pkg/models"
)

// memKV is an in-memory KVStore for tests. Setting failSet makes every
// write fail.
type memKV struct {
	mu      sync.Mutex
	data    map[string]string
	sets    int
	failSet bool
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string]string)}
}

func (m *memKV) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("quota exceeded")
	}
	m.sets++
	m.data[key] = value
	return nil
}

type recordedEvent struct {
	Type string
	Data map[string]any
}

type fakeEventLogger struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEventLogger) LogEvent(eventType string, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{Type: eventType, Data: data})
	return nil
}

func (f *fakeEventLogger) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

type fakeRecorder struct {
	mu     sync.Mutex
	ops    []string
	probes []bool
}

func (f *fakeRecorder) RecordOperation(op string, _ models.ConfigVariant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
}

func (f *fakeRecorder) RecordProbe(_ models.ConfigVariant, success bool, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes = append(f.probes, success)
}

// frozenClock returns a clock that always reports the same instant.
func frozenClock() func() time.Time {
	at := time.UnixMilli(1760000000000)
	return func() time.Time { return at }
}

func newTestRegistry(store KVStore) ConfigRegistry {
	return NewConfigRegistry(store, RegistryOptions{})
}

// validFields returns a minimal valid patch for each variant.
func validFields(v models.ConfigVariant) models.Fields {
	switch v {
	case models.VariantKnowledgeNetwork:
		return models.Fields{"name": "Network", "knowledgeNetworkId": "kn-1"}
	case models.VariantOntologyObject:
		return models.Fields{"name": "Suppliers", "objectTypeId": "ot-1", "entityType": "supplier"}
	case models.VariantMetricModel:
		return models.Fields{"name": "Turnover", "modelId": "m-1"}
	case models.VariantAgent:
		return models.Fields{"name": "Planner", "agentKey": "planner", "appKey": "console"}
	case models.VariantWorkflow:
		return models.Fields{"name": "MRP", "dagId": "600565437910010238"}
	}
	return models.Fields{}
}

// requiredFields lists the variant-specific required fields in declaration order.
var requiredFields = map[models.ConfigVariant][]string{
	models.VariantKnowledgeNetwork: {"knowledgeNetworkId"},
	models.VariantOntologyObject:   {"objectTypeId", "entityType"},
	models.VariantMetricModel:      {"modelId"},
	models.VariantAgent:            {"agentKey", "appKey"},
	models.VariantWorkflow:         {"dagId"},
}

func mustCreate(t interface {
	Helper()
	Fatalf(string, ...any)
}, reg ConfigRegistry, v models.ConfigVariant, extra models.Fields) models.Config {
	t.Helper()
	fields := validFields(v)
	for k, val := range extra {
		fields[k] = val
	}
	cfg, err := reg.Create(v, fields)
	if err != nil {
		t.Fatalf("Create(%s) error: %v", v, err)
	}
	return cfg
}
