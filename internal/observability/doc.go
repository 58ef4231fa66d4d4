// Package observability provides structured logging, the JSONL event log of
// registry mutations and probe outcomes, activity summaries derived from it,
// Prometheus metrics, and Slack alerts for failing connections.
package observability
