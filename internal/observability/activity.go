package observability

import (
	"fmt"
	"sort"
	"time"
)

// Activity summarises registry and probe activity derived from the event log.
type Activity struct {
	Created        int            `json:"created" yaml:"created"`
	Updated        int            `json:"updated" yaml:"updated"`
	Deleted        int            `json:"deleted" yaml:"deleted"`
	Duplicated     int            `json:"duplicated" yaml:"duplicated"`
	Toggled        int            `json:"toggled" yaml:"toggled"`
	Imports        int            `json:"imports" yaml:"imports"`
	ProbesRun      int            `json:"probes_run" yaml:"probes_run"`
	ProbesFailed   int            `json:"probes_failed" yaml:"probes_failed"`
	ByVariant      map[string]int `json:"by_variant" yaml:"by_variant"`
	FailingConfigs []string       `json:"failing_configs,omitempty" yaml:"failing_configs,omitempty"`
	EventCount     int            `json:"event_count" yaml:"event_count"`
	OldestEvent    *time.Time     `json:"oldest_event,omitempty" yaml:"oldest_event,omitempty"`
	NewestEvent    *time.Time     `json:"newest_event,omitempty" yaml:"newest_event,omitempty"`
}

// ActivityCalculator derives an Activity summary from the event log.
type ActivityCalculator interface {
	Calculate(since time.Time) (*Activity, error)
}

type activityCalculator struct {
	eventLog EventLog
}

// NewActivityCalculator creates an ActivityCalculator reading from eventLog.
func NewActivityCalculator(eventLog EventLog) ActivityCalculator {
	return &activityCalculator{eventLog: eventLog}
}

// Calculate aggregates all events since the given time. FailingConfigs lists
// records whose most recent probe in the window failed.
func (ac *activityCalculator) Calculate(since time.Time) (*Activity, error) {
	events, err := ac.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for activity: %w", err)
	}

	a := &Activity{ByVariant: make(map[string]int)}
	a.EventCount = len(events)
	lastProbe := make(map[string]bool)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			a.OldestEvent = &t
		}
		t := event.Time
		a.NewestEvent = &t

		if v := event.Variant(); v != "" {
			a.ByVariant[v]++
		}

		switch event.Type {
		case "config.created":
			a.Created++
		case "config.updated":
			a.Updated++
		case "config.deleted":
			a.Deleted++
		case "config.duplicated":
			a.Duplicated++
		case "config.toggled":
			a.Toggled++
		case "config.imported":
			a.Imports++
		case "config.tested":
			a.ProbesRun++
			ok, _ := event.Data["success"].(bool)
			if !ok {
				a.ProbesFailed++
			}
			if id := event.ConfigID(); id != "" {
				lastProbe[id] = ok
			}
		}
	}

	for id, ok := range lastProbe {
		if !ok {
			a.FailingConfigs = append(a.FailingConfigs, id)
		}
	}
	sort.Strings(a.FailingConfigs)

	return a, nil
}
