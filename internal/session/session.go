package session

// #region imports
import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/colorsignal/session-controller/internal/connection"
	"github.com/colorsignal/session-controller/internal/feedback"
	"github.com/colorsignal/session-controller/internal/gate"
	"github.com/colorsignal/session-controller/internal/history"
	"github.com/colorsignal/session-controller/internal/metrics"
	"github.com/colorsignal/session-controller/internal/orchestrator"
	"github.com/colorsignal/session-controller/internal/patterns"
)

// #endregion

// #region session-struct

// Session owns one user's buffer, gate and ledger and drives predictions.
// All local state is serialized by mu, which plays the role of the UI event
// queue. Remote calls never run under mu.
type Session struct {
	cfg     Config
	monitor *connection.Monitor
	orch    *orchestrator.Orchestrator
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	buffer      *history.Buffer
	gate        *gate.Gate
	ledger      *feedback.Ledger
	recordedFor time.Time // GeneratedAt of the result that already has feedback

	predicting atomic.Bool

	subsMu  sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
}

type options struct {
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	recorder orchestrator.Recorder
	now      func() time.Time
}

// Option configures a Session.
type Option func(*options)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRecorder journals every prediction cycle.
func WithRecorder(r orchestrator.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithClock overrides the clock used for observations and results.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// #endregion

// #region constructor

// New wires a session over monitor. The monitor's current handle must
// satisfy Remote for remote operations to succeed.
func New(cfg Config, monitor *connection.Monitor, opts ...Option) *Session {
	o := options{logger: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.PatternWindow <= 0 {
		cfg.PatternWindow = def.PatternWindow
	}
	if cfg.FeedbackPolicy == "" {
		cfg.FeedbackPolicy = def.FeedbackPolicy
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}

	s := &Session{
		cfg:     cfg,
		monitor: monitor,
		logger:  o.logger,
		metrics: o.metrics,
		buffer:  history.NewBuffer(cfg.Capacity, history.WithClock(o.now)),
		gate:    gate.NewGate(gate.GateConfig{Capacity: cfg.Capacity}),
		ledger:  feedback.NewLedger(cfg.FeedbackPolicy),
		subs:    make(map[int]chan Snapshot),
	}
	s.orch = orchestrator.New(monitorBackend{monitor}, historyReader{s}, pendingFeedback{s},
		orchestrator.WithLogger(o.logger.With().Str("component", "orch").Logger()),
		orchestrator.WithMetrics(o.metrics),
		orchestrator.WithRecorder(o.recorder),
		orchestrator.WithClock(o.now),
		orchestrator.WithOnChange(s.publish),
	)

	s.buffer.OnChange(func(length int) {
		s.gate.Observe(length)
		s.orch.HistoryChanged(length)
		s.metrics.SetHistoryLength(length)
	})
	monitor.OnStatusChange(func(from, to connection.Status) {
		s.orch.ConnectionChanged(from, to)
		s.metrics.SetConnectionStatus(string(to),
			string(connection.StatusConnecting), string(connection.StatusReady), string(connection.StatusUnavailable))
		s.publish()
	})
	return s
}

// #endregion

// #region history-ops

// AddEntry asks the gate to admit one observation. Invalid values are rejected
// before the gate is consulted.
func (s *Session) AddEntry(value string) (gate.GateDecision, error) {
	r, err := history.NormalizeResult(value)
	if err != nil {
		return gate.GateDecision{}, err
	}

	s.mu.Lock()
	d := s.gate.Admit()
	if d.Accepted() {
		s.buffer.Append(r)
		d.State = s.gate.State()
	}
	s.mu.Unlock()

	s.metrics.GateDecision(d.Action)
	s.logger.Debug().Str("result", string(r)).Str("action", d.Action).Str("state", string(d.State)).Msg("entry")
	if d.Accepted() {
		s.publish()
	}
	return d, nil
}

// Next is the advance action: at full capacity it authorizes exactly one more entry.
func (s *Session) Next() bool {
	s.mu.Lock()
	ok := s.gate.Advance()
	s.mu.Unlock()

	if ok {
		s.metrics.GateDecision("advance")
		s.publish()
	}
	return ok
}

// RemoveLast drops the newest observation; false on an empty buffer.
func (s *Session) RemoveLast() bool {
	s.mu.Lock()
	ok := s.buffer.RemoveLast()
	s.mu.Unlock()

	if ok {
		s.publish()
	}
	return ok
}

// ClearAll empties the buffer and the ledger and re-opens the gate.
func (s *Session) ClearAll() {
	s.mu.Lock()
	s.buffer.Clear()
	s.gate.Reset()
	s.ledger.Clear()
	s.recordedFor = time.Time{}
	s.mu.Unlock()

	s.logger.Info().Msg("session cleared")
	s.publish()
}

// Hydrate replaces the buffer with the service-side history, keeping the newest entries.
func (s *Session) Hydrate(ctx context.Context) error {
	remote, err := s.remote()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	items, err := remote.GetHistory(ctx)
	if err != nil {
		return fmt.Errorf("hydrate: %w", err)
	}

	s.mu.Lock()
	s.buffer.Replace(items)
	n := s.buffer.Len()
	s.mu.Unlock()

	s.logger.Info().Int("fetched", len(items)).Int("kept", n).Msg("history hydrated")
	s.publish()
	return nil
}

// #endregion

// #region prediction-ops

// Predict runs one prediction cycle. A second call while one is in flight
// returns ErrPredictionInFlight.
func (s *Session) Predict(ctx context.Context) error {
	return s.cycle(ctx, false)
}

// RetryPrediction re-runs the cycle against the current history.
func (s *Session) RetryPrediction(ctx context.Context) error {
	return s.cycle(ctx, true)
}

func (s *Session) cycle(ctx context.Context, retry bool) error {
	if !s.predicting.CompareAndSwap(false, true) {
		return ErrPredictionInFlight
	}
	defer s.predicting.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	if retry {
		return s.orch.RetryPrediction(ctx)
	}
	return s.orch.GeneratePrediction(ctx, false)
}

// RecordFeedback judges the current prediction. At most one judgment is
// accepted per prediction.
func (s *Session) RecordFeedback(win bool) error {
	res, ok := s.orch.Result()
	if !ok {
		return ErrNoPrediction
	}

	s.mu.Lock()
	if !s.recordedFor.IsZero() && s.recordedFor.Equal(res.GeneratedAt) {
		s.mu.Unlock()
		return ErrFeedbackAlreadyRecorded
	}
	s.ledger.Record(res.GeneratedAt.UnixMilli(), win)
	s.recordedFor = res.GeneratedAt
	s.mu.Unlock()

	s.logger.Debug().Bool("win", win).Str("label", res.Label).Msg("feedback recorded")
	s.publish()
	return nil
}

// UploadPatterns validates input and submits its overlapping windows.
// Validation errors never reach the service.
func (s *Session) UploadPatterns(ctx context.Context, input string) (int, error) {
	windows, err := patterns.Parse(input, s.cfg.PatternWindow)
	if err != nil {
		s.metrics.PatternUpload("invalid")
		return 0, err
	}
	remote, err := s.remote()
	if err != nil {
		s.metrics.PatternUpload("rejected")
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	if err := remote.UploadHistoricalPatterns(ctx, windows); err != nil {
		s.metrics.PatternUpload("rejected")
		return 0, fmt.Errorf("upload patterns: %w", err)
	}
	s.metrics.PatternUpload("accepted")
	s.logger.Info().Int("windows", len(windows)).Msg("patterns uploaded")
	return len(windows), nil
}

// #endregion

// #region connection-ops

// Connect acquires the remote handle for the monitor's identity.
func (s *Session) Connect(ctx context.Context) error {
	_, err := s.monitor.Acquire(ctx)
	s.publish()
	return err
}

// RetryConnection drops the cached handle and acquires a fresh one.
func (s *Session) RetryConnection(ctx context.Context) error {
	err := s.monitor.Retry(ctx)
	s.publish()
	return err
}

// #endregion

// #region analysis-ops

// Analyze runs the bias, switch-trend and pattern analyses concurrently.
// An empty history yields an empty analysis without remote calls.
func (s *Session) Analyze(ctx context.Context) (Analysis, error) {
	items := historyReader{s}.Snapshot()
	if len(items) == 0 {
		return Analysis{}, nil
	}
	remote, err := s.remote()
	if err != nil {
		return Analysis{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	var out Analysis
	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		var err error
		out.Bias, err = remote.AnalyzeBias(ctx, items)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		out.Trend, err = remote.SwitchTrendAnalysis(ctx, items)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		out.Patterns, err = remote.HistoricalPatternAnalysis(ctx, items)
		return err
	})
	if err := p.Wait(); err != nil {
		return Analysis{}, fmt.Errorf("analyze: %w", err)
	}
	return out, nil
}

// SetTimeWindow forwards the analysis window to the service.
func (s *Session) SetTimeWindow(ctx context.Context, window int64) error {
	if window < 1 {
		return fmt.Errorf("time window must be positive, got %d", window)
	}
	remote, err := s.remote()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	return remote.UpdateTimeWindow(ctx, window)
}

// #endregion

// #region snapshot

// Snapshot returns a consistent view for rendering.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		History:       s.buffer.Snapshot(),
		Count:         s.buffer.Len(),
		Capacity:      s.buffer.Capacity(),
		Full:          s.buffer.Full(),
		Gate:          s.gate.State(),
		FeedbackCount: s.ledger.Len(),
	}
	recordedFor := s.recordedFor
	s.mu.Unlock()

	snap.Connection = s.monitor.Status()
	snap.Loading = s.orch.Loading()
	snap.Initializing = s.orch.IsInitializing()
	if res, ok := s.orch.Result(); ok {
		snap.Result = &res
		snap.FeedbackRecorded = !recordedFor.IsZero() && recordedFor.Equal(res.GeneratedAt)
	}
	if pe := s.orch.Err(); pe != nil {
		snap.Error = &ErrorView{Category: pe.Category, Title: pe.Category.Title(), Message: pe.Message}
	}
	snap.Retry = s.orch.RetryAdvice()
	return snap
}

// Subscribe streams snapshots after every change. Slow subscribers only see
// the latest snapshot. The returned func unsubscribes and closes the channel.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			close(ch)
			s.subsMu.Unlock()
		})
	}
}

func (s *Session) publish() {
	s.subsMu.Lock()
	n := len(s.subs)
	s.subsMu.Unlock()
	if n == 0 {
		return
	}

	snap := s.Snapshot()
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// #endregion

// #region adapters

type monitorBackend struct{ monitor *connection.Monitor }

func (b monitorBackend) Status() connection.Status { return b.monitor.Status() }

func (b monitorBackend) Remote() (orchestrator.Remote, error) {
	h, err := b.monitor.Handle()
	if err != nil {
		return nil, err
	}
	r, ok := h.(orchestrator.Remote)
	if !ok {
		return nil, fmt.Errorf("handle %T cannot serve predictions", h)
	}
	return r, nil
}

func (s *Session) remote() (Remote, error) {
	h, err := s.monitor.Handle()
	if err != nil {
		return nil, err
	}
	r, ok := h.(Remote)
	if !ok {
		return nil, fmt.Errorf("handle %T does not implement the prediction service", h)
	}
	return r, nil
}

type historyReader struct{ s *Session }

func (h historyReader) Snapshot() []history.Observation {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.buffer.Snapshot()
}

type pendingFeedback struct{ s *Session }

func (p pendingFeedback) Pending() []bool {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return p.s.ledger.AsBooleanSequence()
}

func (p pendingFeedback) Submitted(n int) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.ledger.Submitted(n)
}

// #endregion
