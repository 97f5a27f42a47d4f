package websocket

import "time"

// Event types pushed to dashboard clients
const (
	EventConnection        = "connection"
	EventDatasetLoaded     = "dataset.loaded"
	EventDatasetDeleted    = "dataset.deleted"
	EventDatasetEvicted    = "dataset.evicted"
	EventAnalysisCompleted = "analysis.completed"
	EventAnalysisFailed    = "analysis.failed"
	EventWatchReport       = "watch.report"
	EventWatchFailed       = "watch.failed"
)

// Message is the envelope written to every client
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}
