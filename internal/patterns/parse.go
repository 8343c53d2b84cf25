// Package patterns validates bulk historical input and cuts it into
// overlapping training windows before it is uploaded.
package patterns

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/colorsignal/session-controller/internal/history"
)

// #region constants
// DefaultWindowLength is the size of one uploaded pattern window.
const DefaultWindowLength = 3

// maxReportedInvalid caps how many offending tokens a rejection lists.
const maxReportedInvalid = 3

var separators = regexp.MustCompile(`[\n,]`)

// #endregion constants

// #region validation-error
// Reason identifies why an upload was rejected.
type Reason string

const (
	ReasonEmpty         Reason = "empty"
	ReasonInvalidTokens Reason = "invalid_tokens"
	ReasonNotEnoughData Reason = "not_enough_data"
)

// ValidationError rejects a whole upload before it reaches the remote service.
type ValidationError struct {
	Reason  Reason
	Invalid []string // every offending token, in input order
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// #endregion validation-error

// #region parse
// Tokenize splits comma or newline separated input, trimming and dropping empties.
func Tokenize(input string) []string {
	parts := separators.Split(input, -1)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// Parse validates input and returns every overlapping window of the given length.
// A non-positive window falls back to DefaultWindowLength.
func Parse(input string, window int) ([][]history.Result, error) {
	if window <= 0 {
		window = DefaultWindowLength
	}
	if strings.TrimSpace(input) == "" {
		return nil, &ValidationError{
			Reason:  ReasonEmpty,
			Message: "Please enter pattern data",
		}
	}

	tokens := Tokenize(input)
	results := make([]history.Result, 0, len(tokens))
	var invalid []string
	for _, tok := range tokens {
		r := history.Result(tok)
		if !r.Valid() {
			invalid = append(invalid, tok)
			continue
		}
		results = append(results, r)
	}

	if len(invalid) > 0 {
		return nil, &ValidationError{
			Reason:  ReasonInvalidTokens,
			Invalid: invalid,
			Message: invalidMessage(invalid),
		}
	}

	if len(results) < window {
		return nil, &ValidationError{
			Reason: ReasonNotEnoughData,
			Message: fmt.Sprintf("Not enough data to create patterns. Please enter at least %d entries.",
				window),
		}
	}

	return Windows(results, window), nil
}

// Windows returns every overlapping slice of length window, in order.
func Windows(results []history.Result, window int) [][]history.Result {
	if window <= 0 || len(results) < window {
		return nil
	}
	out := make([][]history.Result, 0, len(results)-window+1)
	for i := 0; i+window <= len(results); i++ {
		w := make([]history.Result, window)
		copy(w, results[i:i+window])
		out = append(out, w)
	}
	return out
}

func invalidMessage(invalid []string) string {
	shown := invalid
	suffix := ""
	if len(shown) > maxReportedInvalid {
		shown = shown[:maxReportedInvalid]
		suffix = "..."
	}
	return fmt.Sprintf(`Invalid entries found: %s%s. Only "Big" or "Small" are allowed.`,
		strings.Join(shown, ", "), suffix)
}

// #endregion parse
