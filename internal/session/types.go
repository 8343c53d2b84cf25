package session

import (
	"context"
	"errors"
	"time"

	"github.com/colorsignal/session-controller/internal/codec"
	"github.com/colorsignal/session-controller/internal/connection"
	"github.com/colorsignal/session-controller/internal/feedback"
	"github.com/colorsignal/session-controller/internal/gate"
	"github.com/colorsignal/session-controller/internal/history"
	"github.com/colorsignal/session-controller/internal/orchestrator"
	"github.com/colorsignal/session-controller/internal/patterns"
)

// #region errors
var (
	ErrNoPrediction            = errors.New("no prediction to judge")
	ErrFeedbackAlreadyRecorded = errors.New("feedback already recorded for this prediction")
	ErrPredictionInFlight      = errors.New("prediction already in flight")
)

// #endregion errors

// #region config
// Config holds the per-session knobs.
type Config struct {
	Capacity       int
	PatternWindow  int
	FeedbackPolicy feedback.Policy
	RequestTimeout time.Duration
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Capacity:       history.DefaultCapacity,
		PatternWindow:  patterns.DefaultWindowLength,
		FeedbackPolicy: feedback.PolicyTruncate,
		RequestTimeout: 10 * time.Second,
	}
}

// #endregion config

// #region remote
// Remote is the full prediction service surface a session uses.
// *codec.CodecClient satisfies it.
type Remote interface {
	orchestrator.Remote
	UploadHistoricalPatterns(ctx context.Context, windows [][]history.Result) error
	GetHistory(ctx context.Context) ([]history.Observation, error)
	AnalyzeBias(ctx context.Context, items []history.Observation) (codec.BiasResult, error)
	SwitchTrendAnalysis(ctx context.Context, items []history.Observation) (codec.TrendResult, error)
	HistoricalPatternAnalysis(ctx context.Context, items []history.Observation) ([][]history.Result, error)
	UpdateTimeWindow(ctx context.Context, window int64) error
}

// #endregion remote

// #region snapshot
// ErrorView is the user-facing form of a stored prediction error.
type ErrorView struct {
	Category orchestrator.Category `json:"category"`
	Title    string                `json:"title"`
	Message  string                `json:"message"`
}

// Snapshot is a consistent, copyable view of the session for rendering.
type Snapshot struct {
	History          []history.Observation    `json:"history"`
	Count            int                      `json:"count"`
	Capacity         int                      `json:"capacity"`
	Full             bool                     `json:"full"`
	Gate             gate.GateState           `json:"gate"`
	Connection       connection.Status        `json:"connection"`
	Loading          bool                     `json:"loading"`
	Initializing     bool                     `json:"initializing"`
	Result           *orchestrator.Result     `json:"result,omitempty"`
	Error            *ErrorView               `json:"error,omitempty"`
	Retry            orchestrator.RetryAdvice `json:"retry"`
	FeedbackCount    int                      `json:"feedbackCount"`
	FeedbackRecorded bool                     `json:"feedbackRecorded"`
}

// Analysis bundles the service-side analyses of the current history.
type Analysis struct {
	Bias     codec.BiasResult   `json:"bias"`
	Trend    codec.TrendResult  `json:"trend"`
	Patterns [][]history.Result `json:"patterns"`
}

// #endregion snapshot
