package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"
)

// maxLinesPerGroup caps how many alerts one severity section lists; Slack
// rejects section text over 3000 characters.
const maxLinesPerGroup = 20

// severityOrder is the order severity sections appear in a message.
var severityOrder = []AlertSeverity{SeverityHigh, SeverityMedium, SeverityLow}

// Notifier sends alert notifications to external channels.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert) error
}

type slackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a Notifier that posts failing connections to a
// Slack incoming webhook.
func NewSlackNotifier(webhookURL string) Notifier {
	return &slackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify posts one message summarising alerts, grouped by severity. An
// empty slice sends nothing.
func (s *slackNotifier) Notify(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	body, err := json.Marshal(buildSlackMessage(alerts))
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func buildSlackMessage(alerts []Alert) slackMessage {
	summary := fmt.Sprintf("%d failing %s", len(alerts), plural(len(alerts), "connection", "connections"))

	grouped := make(map[AlertSeverity][]Alert)
	for _, a := range alerts {
		grouped[a.Severity] = append(grouped[a.Severity], a)
	}

	msg := slackMessage{
		Text: "knc: " + summary,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: "knc connection test failures"}},
			{Type: "context", Elements: []slackText{{Type: "mrkdwn", Text: summary}}},
		},
	}

	first := true
	for _, sev := range severitiesPresent(grouped) {
		if !first {
			msg.Blocks = append(msg.Blocks, slackBlock{Type: "divider"})
		}
		first = false
		msg.Blocks = append(msg.Blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: severitySection(sev, grouped[sev])},
		})
	}
	return msg
}

// severitiesPresent returns the known severities in display order, followed
// by any unrecognised ones in first-seen order.
func severitiesPresent(grouped map[AlertSeverity][]Alert) []AlertSeverity {
	var out []AlertSeverity
	known := make(map[AlertSeverity]bool, len(severityOrder))
	for _, sev := range severityOrder {
		known[sev] = true
		if len(grouped[sev]) > 0 {
			out = append(out, sev)
		}
	}
	var other []AlertSeverity
	for sev := range grouped {
		if !known[sev] {
			other = append(other, sev)
		}
	}
	slices.Sort(other)
	return append(out, other...)
}

func severitySection(sev AlertSeverity, alerts []Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* (%d)", severityEmoji(sev), strings.ToUpper(string(sev)), len(alerts))
	for i, a := range alerts {
		if i == maxLinesPerGroup {
			fmt.Fprintf(&b, "\n_and %d more_", len(alerts)-maxLinesPerGroup)
			break
		}
		fmt.Fprintf(&b, "\n• `%s` %s _%s_",
			a.Condition, a.Message, a.TriggeredAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	return b.String()
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return "\U0001f534"
	case SeverityMedium:
		return "\U0001f7e1"
	case SeverityLow:
		return "\U0001f535"
	default:
		return "❓"
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
