package gate

import (
	"fmt"
	"sync/atomic"
)

// #region gate
// Gate locks appends once the buffer is full until Advance mints a single-use token.
//
// The token lives in its own atomic cell, separate from the unlocked flag, so a
// burst of append requests issued before anyone observes the re-lock can
// consume it at most once.
type Gate struct {
	config   GateConfig
	length   atomic.Int64
	unlocked atomic.Bool
	token    atomic.Int32
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	if config.Capacity <= 0 {
		config = DefaultGateConfig()
	}
	return &Gate{config: config}
}

// Capacity returns the length at which the gate locks.
func (g *Gate) Capacity() int {
	return g.config.Capacity
}

// #endregion gate

// #region observe
// Observe is the buffer observer. Any length below capacity re-opens the gate
// and voids an outstanding token.
func (g *Gate) Observe(length int) {
	g.length.Store(int64(length))
	if length < g.config.Capacity {
		g.discard()
	}
}

// Reset drops the unlock and any outstanding token.
func (g *Gate) Reset() {
	g.discard()
}

func (g *Gate) discard() {
	g.unlocked.Store(false)
	g.token.Store(0)
}

// #endregion observe

// #region state
// State reports the current gate position.
func (g *Gate) State() GateState {
	if g.length.Load() < int64(g.config.Capacity) {
		return StateOpen
	}
	if g.unlocked.Load() {
		return StateUnlockedFull
	}
	return StateLockedFull
}

// Unlocked reports whether a full buffer will accept the next entry.
func (g *Gate) Unlocked() bool {
	return g.State() == StateUnlockedFull
}

// #endregion state

// #region advance
// Advance unlocks a full buffer for exactly one more entry.
// It is a no-op while the buffer is below capacity.
func (g *Gate) Advance() bool {
	if g.length.Load() < int64(g.config.Capacity) {
		return false
	}
	g.unlocked.Store(true)
	g.token.Store(1)
	return true
}

// #endregion advance

// #region admit
// Admit decides whether one append request may reach the buffer.
// An open gate does not reserve capacity; callers serialize admission with the append.
func (g *Gate) Admit() GateDecision {
	length := g.length.Load()
	if length < int64(g.config.Capacity) {
		return GateDecision{
			Action: ActionAccept,
			Reason: fmt.Sprintf("open: %d/%d", length, g.config.Capacity),
			State:  StateOpen,
		}
	}

	if g.token.CompareAndSwap(1, 0) {
		g.unlocked.Store(false)
		return GateDecision{
			Action: ActionAccept,
			Reason: "token consumed",
			State:  StateLockedFull,
		}
	}

	return GateDecision{
		Action: ActionIgnore,
		Reason: fmt.Sprintf("locked at %d/%d", length, g.config.Capacity),
		State:  g.State(),
	}
}

// #endregion admit
