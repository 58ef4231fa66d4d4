package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Event levels.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Event is one line of the event log.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Type    string         `json:"type"` // e.g. "config.created", "config.tested"
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// ConfigID returns the id of the record the event concerns, if any.
func (e Event) ConfigID() string {
	id, _ := e.Data["id"].(string)
	return id
}

// Variant returns the variant of the record the event concerns, if any.
func (e Event) Variant() string {
	v, _ := e.Data["variant"].(string)
	return v
}

// EventFilter specifies criteria for reading events.
type EventFilter struct {
	Since    *time.Time
	Until    *time.Time
	Type     string
	Level    string
	ConfigID string
}

// EventLog is the append-only event log.
type EventLog interface {
	Write(event Event) error
	// LogEvent stamps and writes an event built from a type and its data.
	LogEvent(eventType string, data map[string]any) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

type jsonlEventLog struct {
	path string
	file *os.File
	now  func() time.Time
	mu   sync.Mutex
}

// NewJSONLEventLog opens (creating if needed) the JSONL event log at path.
func NewJSONLEventLog(path string) (EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{path: path, file: f, now: time.Now}, nil
}

func (l *jsonlEventLog) Write(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

func (l *jsonlEventLog) LogEvent(eventType string, data map[string]any) error {
	return l.Write(Event{
		Time:    l.now().UTC(),
		Level:   levelFor(data),
		Type:    eventType,
		Message: messageFor(eventType, data),
		Data:    data,
	})
}

// levelFor marks failed probes as warnings.
func levelFor(data map[string]any) string {
	if ok, isBool := data["success"].(bool); isBool && !ok {
		return LevelWarn
	}
	return LevelInfo
}

func messageFor(eventType string, data map[string]any) string {
	action := strings.TrimPrefix(eventType, "config.")
	id, _ := data["id"].(string)
	switch {
	case eventType == "config.imported":
		return fmt.Sprintf("import applied (merge=%v)", data["merge"])
	case eventType == "config.tested":
		if ok, _ := data["success"].(bool); ok {
			return fmt.Sprintf("connection test passed for %s", id)
		}
		return fmt.Sprintf("connection test failed for %s: %v", id, data["message"])
	case id != "":
		return fmt.Sprintf("config %s %s", id, action)
	default:
		return eventType
	}
}

// Read scans the log and returns events matching filter. Malformed lines
// are skipped.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}

		if matchesEventFilter(event, filter) {
			events = append(events, event)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}

	return events, nil
}

func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

func matchesEventFilter(event Event, filter EventFilter) bool {
	if filter.Since != nil && event.Time.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && event.Time.After(*filter.Until) {
		return false
	}
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	if filter.Level != "" && event.Level != filter.Level {
		return false
	}
	if filter.ConfigID != "" && event.ConfigID() != filter.ConfigID {
		return false
	}
	return true
}
