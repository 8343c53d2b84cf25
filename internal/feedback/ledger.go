package feedback

import "fmt"

// #region types
// Entry is one win/loss judgment keyed to the generation time of the prediction it judges.
type Entry struct {
	Timestamp int64 `json:"timestamp"`
	IsWin     bool  `json:"is_win"`
}

// Policy decides what happens to entries once a batch reaches the remote service.
type Policy string

const (
	// PolicyTruncate drops a submitted batch so each judgment is sent once.
	PolicyTruncate Policy = "truncate"
	// PolicyRetain keeps every entry and resubmits the full ledger each cycle.
	PolicyRetain Policy = "retain"
)

// ParsePolicy maps a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyTruncate, PolicyRetain:
		return Policy(s), nil
	case "":
		return PolicyTruncate, nil
	}
	return "", fmt.Errorf("unknown feedback policy %q", s)
}

// #endregion types

// #region ledger
// Ledger accumulates feedback between prediction cycles. It does not deduplicate;
// callers allow at most one Record per prediction.
type Ledger struct {
	policy  Policy
	entries []Entry
}

// NewLedger creates an empty ledger. An empty policy means PolicyTruncate.
func NewLedger(policy Policy) *Ledger {
	if policy == "" {
		policy = PolicyTruncate
	}
	return &Ledger{policy: policy}
}

func (l *Ledger) Policy() Policy { return l.policy }

func (l *Ledger) Len() int { return len(l.entries) }

// Record appends a judgment.
func (l *Ledger) Record(generatedAtMillis int64, isWin bool) {
	l.entries = append(l.entries, Entry{Timestamp: generatedAtMillis, IsWin: isWin})
}

// Clear empties the ledger.
func (l *Ledger) Clear() {
	l.entries = nil
}

// Entries returns a copy of the ledger, oldest first.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// AsBooleanSequence projects the ledger to its win flags, oldest first.
func (l *Ledger) AsBooleanSequence() []bool {
	out := make([]bool, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.IsWin
	}
	return out
}

// Submitted applies the policy after the oldest n entries were accepted by the
// remote service. Entries recorded while the submission was in flight survive.
func (l *Ledger) Submitted(n int) {
	if l.policy != PolicyTruncate || n <= 0 {
		return
	}
	if n >= len(l.entries) {
		l.entries = nil
		return
	}
	l.entries = append([]Entry(nil), l.entries[n:]...)
}

// #endregion ledger
