package logging

import "time"

// #region cycle-entry
// CycleEntry is a single row in the prediction_cycles table.
type CycleEntry struct {
	ID          string    `json:"id"`
	Retry       bool      `json:"retry"`
	HistoryLen  int       `json:"historyLen"`
	FeedbackLen int       `json:"feedbackLen"`
	Outcome     string    `json:"outcome"` // "success" | "error" | "not_ready"
	Category    string    `json:"category,omitempty"`
	Label       string    `json:"label,omitempty"`
	Cause       string    `json:"cause,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	DurationMS  int64     `json:"durationMs"`
}

// #endregion cycle-entry
