package connection

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc/connectivity"
)

// #region monitor-struct
// Monitor tracks readiness of the identity-scoped remote handle.
// Status is a pure projection of the handle's liveness; there are no timers.
type Monitor struct {
	dial   Dialer
	logger zerolog.Logger
	group  singleflight.Group

	mu        sync.Mutex
	identity  string
	handles   map[string]Handle
	acquiring int
	lastErr   error
	last      Status
	changed   chan struct{} // closed and replaced whenever the held handle changes
	listeners []func(from, to Status)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// #endregion monitor-struct

// #region constructor
// NewMonitor creates a monitor for identity. No handle is held until Acquire.
func NewMonitor(identity string, dial Dialer, opts ...Option) *Monitor {
	m := &Monitor{
		dial:     dial,
		logger:   zerolog.Nop(),
		identity: identity,
		handles:  make(map[string]Handle),
		last:     StatusUnavailable,
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// #endregion constructor

// #region identity
// Identity returns the caller identity handles are keyed by.
func (m *Monitor) Identity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// SetIdentity switches the caller identity. Handles of other identities stay cached.
func (m *Monitor) SetIdentity(identity string) {
	m.mu.Lock()
	m.identity = identity
	m.signalLocked()
	m.mu.Unlock()
	m.Status()
}

// #endregion identity

// #region listeners
// OnStatusChange registers fn for every observed status transition.
func (m *Monitor) OnStatusChange(fn func(from, to Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// #endregion listeners

// #region status
// Status recomputes readiness and notifies listeners when it changed.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	next := m.projectLocked()
	prev := m.last
	m.last = next
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	if prev != next {
		m.logger.Info().Str("from", string(prev)).Str("to", string(next)).Msg("connection status changed")
		for _, fn := range listeners {
			fn(prev, next)
		}
	}
	return next
}

// LastError returns the error of the most recent failed acquisition, if any.
func (m *Monitor) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Monitor) projectLocked() Status {
	if m.acquiring > 0 {
		return StatusConnecting
	}
	h, ok := m.handles[m.identity]
	if !ok {
		return StatusUnavailable
	}
	switch h.State() {
	case connectivity.Ready:
		return StatusReady
	case connectivity.Idle:
		h.Connect()
		return StatusConnecting
	case connectivity.Connecting:
		return StatusConnecting
	default:
		return StatusUnavailable
	}
}

// #endregion status

// #region acquire
// Handle returns the held handle for the current identity.
func (m *Monitor) Handle() (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[m.identity]
	if !ok {
		return nil, ErrHandleUnavailable
	}
	return h, nil
}

// Acquire returns the cached handle for the current identity, dialing it once
// if absent. Concurrent callers share a single dial.
func (m *Monitor) Acquire(ctx context.Context) (Handle, error) {
	m.mu.Lock()
	identity := m.identity
	if h, ok := m.handles[identity]; ok {
		m.mu.Unlock()
		return h, nil
	}
	m.acquiring++
	m.mu.Unlock()
	m.Status()

	v, err, _ := m.group.Do(identity, func() (any, error) {
		m.mu.Lock()
		cached, ok := m.handles[identity]
		m.mu.Unlock()
		if ok {
			return cached, nil
		}
		h, err := m.dial(ctx, identity)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.handles[identity] = h
		m.signalLocked()
		m.mu.Unlock()
		return h, nil
	})

	m.mu.Lock()
	m.acquiring--
	m.lastErr = err
	m.mu.Unlock()
	m.Status()

	if err != nil {
		m.logger.Warn().Err(err).Str("identity", identity).Msg("handle acquisition failed")
		return nil, fmt.Errorf("acquire handle for %q: %w", identity, err)
	}
	return v.(Handle), nil
}

// Retry drops the cached handle for the current identity and acquires a fresh one.
func (m *Monitor) Retry(ctx context.Context) error {
	m.invalidate()
	_, err := m.Acquire(ctx)
	return err
}

func (m *Monitor) invalidate() {
	m.mu.Lock()
	identity := m.identity
	h, ok := m.handles[identity]
	delete(m.handles, identity)
	m.signalLocked()
	m.mu.Unlock()

	m.group.Forget(identity)
	if ok {
		if err := h.Close(); err != nil {
			m.logger.Warn().Err(err).Str("identity", identity).Msg("close stale handle")
		}
	}
	m.Status()
}

func (m *Monitor) signalLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// #endregion acquire

// #region watch
// Watch re-projects status whenever the held handle changes state or is replaced,
// until ctx is done.
func (m *Monitor) Watch(ctx context.Context) {
	for ctx.Err() == nil {
		m.mu.Lock()
		h := m.handles[m.identity]
		changed := m.changed
		m.mu.Unlock()

		if h == nil {
			m.Status()
			select {
			case <-ctx.Done():
				return
			case <-changed:
				continue
			}
		}

		state := h.State()
		m.Status()
		waitCtx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-changed:
				cancel()
			case <-waitCtx.Done():
			}
		}()
		h.WaitForStateChange(waitCtx, state)
		cancel()
	}
}

// #endregion watch

// #region close
// Close releases every cached handle.
func (m *Monitor) Close() error {
	m.mu.Lock()
	handles := m.handles
	m.handles = make(map[string]Handle)
	m.signalLocked()
	m.mu.Unlock()

	var firstErr error
	for _, h := range handles {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.Status()
	return firstErr
}

// #endregion close
