package gate

import "github.com/colorsignal/session-controller/internal/history"

// #region gate-state
// GateState is the externally observable position of the capacity gate.
type GateState string

const (
	StateOpen         GateState = "open"
	StateLockedFull   GateState = "locked_full"
	StateUnlockedFull GateState = "unlocked_full"
)

// #endregion gate-state

// #region gate-config
// GateConfig holds the capacity the gate locks at.
type GateConfig struct {
	Capacity int // must match the history buffer capacity
}

// DefaultGateConfig returns the shared default capacity.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Capacity: history.DefaultCapacity,
	}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the outcome of one append request.
type GateDecision struct {
	Action string    // "accept" | "ignore"
	Reason string
	State  GateState // state after the decision
}

const (
	ActionAccept = "accept"
	ActionIgnore = "ignore"
)

// Accepted reports whether the append should be forwarded to the buffer.
func (d GateDecision) Accepted() bool {
	return d.Action == ActionAccept
}

// #endregion gate-decision
