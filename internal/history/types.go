package history

import (
	"fmt"
	"strings"
)

// #region result
// Result is a single Big/Small signal value.
type Result string

const (
	Big   Result = "Big"
	Small Result = "Small"
)

// Valid reports whether r is exactly Big or Small.
func (r Result) Valid() bool {
	return r == Big || r == Small
}

// NormalizeResult trims surrounding whitespace and requires an exact match.
func NormalizeResult(value string) (Result, error) {
	r := Result(strings.TrimSpace(value))
	if r.Valid() {
		return r, nil
	}
	return "", fmt.Errorf("invalid result: %s. Must be 'Big' or 'Small'", value)
}

// #endregion result

// #region observation
// Observation is one accepted input, stamped in unix milliseconds.
type Observation struct {
	Result    Result `json:"result"`
	Timestamp int64  `json:"timestamp"`
}

// #endregion observation

// DefaultCapacity is the buffer bound shared by the buffer, the gate and the snapshot display.
const DefaultCapacity = 20
