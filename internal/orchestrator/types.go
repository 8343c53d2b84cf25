package orchestrator

// #region imports
import (
	"context"
	"fmt"
	"time"

	"github.com/colorsignal/session-controller/internal/codec"
	"github.com/colorsignal/session-controller/internal/connection"
	"github.com/colorsignal/session-controller/internal/history"
)

// #endregion

// #region category

// Category classifies why a prediction cycle failed.
type Category string

const (
	CategoryBackendUnavailable Category = "backend_unavailable"
	CategoryNetwork            Category = "network_error"
	CategoryUnexpected         Category = "unexpected_error"
)

// Title is the short heading shown above the error message.
func (c Category) Title() string {
	switch c {
	case CategoryBackendUnavailable:
		return "Backend Unavailable"
	case CategoryNetwork:
		return "Network Error"
	default:
		return "Unexpected Error"
	}
}

// #endregion

// #region prediction-error

// PredictionError is the stored, user-facing outcome of a failed cycle.
// Message is fixed per category; Cause keeps the raw error.
type PredictionError struct {
	Category Category
	Message  string
	Cause    error
}

func (e *PredictionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Category, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Cause)
}

func (e *PredictionError) Unwrap() error { return e.Cause }

// #endregion

// #region result

// Result is the current prediction. GeneratedAt is the call completion time.
type Result struct {
	Label       string    `json:"label"`
	Explanation string    `json:"explanation"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// #endregion

// #region dependencies

// Remote is the slice of the prediction service one cycle needs.
// *codec.CodecClient satisfies it.
type Remote interface {
	PredictNext(ctx context.Context, items []history.Observation) (codec.Prediction, error)
	UpdatePredictionFeedback(ctx context.Context, feedback []bool) error
}

// Backend resolves readiness and the live remote handle.
type Backend interface {
	Status() connection.Status
	Remote() (Remote, error)
}

// HistoryReader returns the buffer contents at call time.
type HistoryReader interface {
	Snapshot() []history.Observation
}

// FeedbackBatch yields the pending feedback flags and is told how many were
// accepted by the service.
type FeedbackBatch interface {
	Pending() []bool
	Submitted(n int)
}

// #endregion

// #region cycle

// Outcome is how a prediction cycle ended.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeError    Outcome = "error"
	OutcomeNotReady Outcome = "not_ready"
)

// Cycle describes one prediction cycle for the journal.
type Cycle struct {
	Retry       bool
	HistoryLen  int
	FeedbackLen int
	Outcome     Outcome
	Category    Category
	Label       string
	Cause       string
	StartedAt   time.Time
	Duration    time.Duration
}

// Recorder persists finished cycles.
type Recorder interface {
	RecordCycle(ctx context.Context, c Cycle) error
}

// #endregion

// #region retry-advice

// RetryAdvice tells the UI which manual retry controls to offer.
type RetryAdvice struct {
	Prediction bool `json:"prediction"`
	Connection bool `json:"connection"`
}

// #endregion
