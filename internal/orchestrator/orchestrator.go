package orchestrator

// #region imports
import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/colorsignal/session-controller/internal/connection"
	"github.com/colorsignal/session-controller/internal/history"
	"github.com/colorsignal/session-controller/internal/metrics"
)

// #endregion

// #region orchestrator-struct

// Orchestrator drives prediction cycles against the remote service and holds
// the current result and error independently of each other.
type Orchestrator struct {
	backend  Backend
	history  HistoryReader
	feedback FeedbackBatch

	logger   zerolog.Logger
	metrics  *metrics.Metrics
	recorder Recorder
	now      func() time.Time
	onChange func()

	mu      sync.Mutex
	result  *Result
	err     *PredictionError
	loading int
	epoch   uint64 // bumped whenever the history empties
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRecorder journals every finished cycle.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithOnChange registers fn to run after a cycle starts or finishes.
// fn is called without any orchestrator lock held.
func WithOnChange(fn func()) Option {
	return func(o *Orchestrator) { o.onChange = fn }
}

// #endregion

// #region constructor

// New creates an orchestrator reading history and feedback at call time.
func New(backend Backend, hist HistoryReader, fb FeedbackBatch, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:  backend,
		history:  hist,
		feedback: fb,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// #endregion

// #region generate

// GeneratePrediction runs one cycle: pending feedback first, then the
// prediction over the current history. An empty history is a no-op.
// The returned error, if any, is the stored *PredictionError.
func (o *Orchestrator) GeneratePrediction(ctx context.Context, isRetry bool) error {
	items := o.history.Snapshot()
	if len(items) == 0 {
		return nil
	}
	cycle := Cycle{Retry: isRetry, HistoryLen: len(items), StartedAt: o.now()}

	if o.backend.Status() != connection.StatusReady {
		pe := notReadyError()
		o.mu.Lock()
		o.err = pe
		o.mu.Unlock()
		o.changed()

		cycle.Outcome = OutcomeNotReady
		cycle.Category = pe.Category
		o.finish(ctx, cycle)
		return pe
	}

	o.mu.Lock()
	o.err = nil
	o.loading++
	epoch := o.epoch
	o.mu.Unlock()
	o.changed()

	res, feedbackLen, pe := o.run(ctx, items)
	cycle.FeedbackLen = feedbackLen

	o.mu.Lock()
	o.loading--
	stale := o.epoch != epoch
	switch {
	case stale:
		// The history was emptied mid-cycle; the outcome belongs to a cleared session.
	case pe != nil:
		o.err = pe
	default:
		o.result = res
		o.err = nil
	}
	o.mu.Unlock()
	o.changed()

	if stale {
		o.logger.Debug().Bool("failed", pe != nil).Msg("discarding cycle outcome after history cleared")
	}

	if pe != nil {
		cycle.Outcome = OutcomeError
		cycle.Category = pe.Category
		cycle.Cause = fmt.Sprint(pe.Cause)
		o.finish(ctx, cycle)
		return pe
	}
	cycle.Outcome = OutcomeSuccess
	cycle.Label = res.Label
	o.finish(ctx, cycle)
	return nil
}

// RetryPrediction re-runs a cycle against the history as it is now.
func (o *Orchestrator) RetryPrediction(ctx context.Context) error {
	return o.GeneratePrediction(ctx, true)
}

func (o *Orchestrator) run(ctx context.Context, items []history.Observation) (*Result, int, *PredictionError) {
	remote, err := o.backend.Remote()
	if err != nil {
		return nil, 0, ClassifyError(err)
	}

	pending := o.feedback.Pending()
	if len(pending) > 0 {
		if err := remote.UpdatePredictionFeedback(ctx, pending); err != nil {
			return nil, len(pending), ClassifyError(fmt.Errorf("submit feedback: %w", err))
		}
		o.feedback.Submitted(len(pending))
		o.metrics.AddFeedbackSubmitted(len(pending))
	}

	p, err := remote.PredictNext(ctx, items)
	if err != nil {
		return nil, len(pending), ClassifyError(err)
	}
	return &Result{Label: p.Label, Explanation: p.Explanation, GeneratedAt: o.now()}, len(pending), nil
}

func (o *Orchestrator) finish(ctx context.Context, c Cycle) {
	c.Duration = o.now().Sub(c.StartedAt)
	o.metrics.ObserveCycle(string(c.Outcome), string(c.Category), c.Duration)

	var ev *zerolog.Event
	if c.Outcome == OutcomeSuccess {
		ev = o.logger.Info()
	} else {
		ev = o.logger.Warn().Str("category", string(c.Category)).Str("cause", c.Cause)
	}
	ev.Str("outcome", string(c.Outcome)).
		Bool("retry", c.Retry).
		Int("history", c.HistoryLen).
		Int("feedback", c.FeedbackLen).
		Str("label", c.Label).
		Dur("took", c.Duration).
		Msg("prediction cycle")

	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordCycle(context.WithoutCancel(ctx), c); err != nil {
		o.logger.Error().Err(err).Msg("journal prediction cycle")
	}
}

func (o *Orchestrator) changed() {
	if o.onChange != nil {
		o.onChange()
	}
}

// #endregion

// #region observers

// HistoryChanged is the buffer observer. An empty buffer clears the result
// and the error, and cycles still in flight will not store their outcome.
func (o *Orchestrator) HistoryChanged(length int) {
	if length != 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.result = nil
	o.err = nil
	o.epoch++
}

// ConnectionChanged is the connection observer. Becoming ready clears a stored
// backend_unavailable error; other categories stay.
func (o *Orchestrator) ConnectionChanged(_, to connection.Status) {
	if to != connection.StatusReady {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil && o.err.Category == CategoryBackendUnavailable {
		o.logger.Debug().Msg("backend ready, clearing unavailable error")
		o.err = nil
	}
}

// #endregion

// #region state

// Result returns the current prediction, if any.
func (o *Orchestrator) Result() (Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.result == nil {
		return Result{}, false
	}
	return *o.result, true
}

// Err returns the stored error, or nil.
func (o *Orchestrator) Err() *PredictionError {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Loading reports whether a cycle is in flight. Callers gate new requests on it.
func (o *Orchestrator) Loading() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loading > 0
}

// IsInitializing distinguishes "waiting on backend" from "nothing to predict".
func (o *Orchestrator) IsInitializing() bool {
	return o.backend.Status() != connection.StatusReady && len(o.history.Snapshot()) > 0
}

// RetryAdvice reports which manual retries fit the current state.
func (o *Orchestrator) RetryAdvice() RetryAdvice {
	return Advise(o.Err(), o.backend.Status())
}

// #endregion
