package observability

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/knc/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// Alert conditions.
const (
	ConditionUnauthorized   = "probe_unauthorized"
	ConditionNotFound       = "probe_not_found"
	ConditionUnreachable    = "probe_unreachable"
	ConditionFailed         = "probe_failed"
	ConditionRepeatedFailed = "probe_failing_repeatedly"
)

// AlertThresholds configures when the event-log alerts fire.
type AlertThresholds struct {
	ConsecutiveFailures int `yaml:"consecutive_failures" json:"consecutive_failures"`
}

// DefaultAlertThresholds returns sensible defaults for alert thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{ConsecutiveFailures: 3}
}

// AlertsFromResults builds one alert per failed probe result, ordered by
// config id. Successful results produce nothing.
func AlertsFromResults(results []models.TestResult, now time.Time) []Alert {
	var alerts []Alert
	for _, r := range results {
		if r.Success {
			continue
		}
		condition, severity := classify(r.StatusCode, r.Message)
		alerts = append(alerts, Alert{
			ID:          fmt.Sprintf("%s-%s", condition, r.ConfigID),
			Condition:   condition,
			Severity:    severity,
			Message:     fmt.Sprintf("%s (%s): %s", r.ConfigID, r.Variant, r.Message),
			TriggeredAt: now.UTC(),
		})
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID < alerts[j].ID })
	return alerts
}

func classify(statusCode int, message string) (string, AlertSeverity) {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ConditionUnauthorized, SeverityHigh
	case statusCode == http.StatusNotFound:
		return ConditionNotFound, SeverityMedium
	case statusCode == 0 && (strings.HasPrefix(message, "timed out") || strings.HasPrefix(message, "request failed")):
		return ConditionUnreachable, SeverityHigh
	case statusCode == 0:
		return ConditionFailed, SeverityMedium
	case statusCode >= 500:
		return ConditionFailed, SeverityMedium
	default:
		return ConditionFailed, SeverityLow
	}
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates a new AlertEngine with the given EventLog and thresholds.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// Evaluate reads probe events and reports records whose latest probe failed,
// escalating those that failed ConsecutiveFailures times in a row. Records
// deleted after their last probe are ignored.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	events, err := ae.eventLog.Read(EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("reading probe events: %w", err)
	}

	type probeState struct {
		latest  models.TestResult
		streak  int
		deleted bool
	}
	states := make(map[string]*probeState)

	for _, event := range events {
		id := event.ConfigID()
		if id == "" {
			continue
		}
		switch event.Type {
		case "config.deleted":
			if s, ok := states[id]; ok {
				s.deleted = true
			}
		case "config.tested":
			s, ok := states[id]
			if !ok {
				s = &probeState{}
				states[id] = s
			}
			r := resultFromEvent(event)
			s.deleted = false
			s.latest = r
			if r.Success {
				s.streak = 0
			} else {
				s.streak++
			}
		}
	}

	now := ae.now()
	var failing []models.TestResult
	var alerts []Alert
	for id, s := range states {
		if s.deleted || s.latest.Success {
			continue
		}
		if ae.thresholds.ConsecutiveFailures > 0 && s.streak >= ae.thresholds.ConsecutiveFailures {
			alerts = append(alerts, Alert{
				ID:          fmt.Sprintf("repeated-%s", id),
				Condition:   ConditionRepeatedFailed,
				Severity:    SeverityHigh,
				Message:     fmt.Sprintf("%s has failed its last %d connection tests", id, s.streak),
				TriggeredAt: now.UTC(),
			})
			continue
		}
		failing = append(failing, s.latest)
	}
	alerts = append(alerts, AlertsFromResults(failing, now)...)
	sort.SliceStable(alerts, func(i, j int) bool { return alerts[i].ID < alerts[j].ID })

	return alerts, nil
}

// resultFromEvent rebuilds a probe result from a config.tested event. Numbers
// read back from JSON arrive as float64.
func resultFromEvent(event Event) models.TestResult {
	r := models.TestResult{
		ConfigID:  event.ConfigID(),
		Variant:   models.ConfigVariant(event.Variant()),
		CheckedAt: event.Time,
	}
	r.Success, _ = event.Data["success"].(bool)
	r.Message, _ = event.Data["message"].(string)
	switch code := event.Data["status_code"].(type) {
	case float64:
		r.StatusCode = int(code)
	case int:
		r.StatusCode = code
	}
	return r
}
