package patterns

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorsignal/session-controller/internal/history"
)

func requireValidation(t *testing.T, err error, reason Reason) *ValidationError {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	assert.Equal(t, reason, verr.Reason)
	return verr
}

func TestParseRejectsInvalidToken(t *testing.T) {
	_, err := Parse("Big, Small, X", DefaultWindowLength)

	verr := requireValidation(t, err, ReasonInvalidTokens)
	assert.Equal(t, []string{"X"}, verr.Invalid)
	assert.Contains(t, verr.Error(), "X")
}

func TestParseListsAtMostThreeInvalid(t *testing.T) {
	_, err := Parse("a, b, Big, c, d", DefaultWindowLength)

	verr := requireValidation(t, err, ReasonInvalidTokens)
	assert.Equal(t, []string{"a", "b", "c", "d"}, verr.Invalid)
	assert.Equal(t, `Invalid entries found: a, b, c.... Only "Big" or "Small" are allowed.`, verr.Message)
}

func TestParseIsCaseSensitive(t *testing.T) {
	_, err := Parse("big, Small, Big", DefaultWindowLength)

	verr := requireValidation(t, err, ReasonInvalidTokens)
	assert.Equal(t, []string{"big"}, verr.Invalid)
}

func TestParseRejectsInsufficientData(t *testing.T) {
	_, err := Parse("Big, Small", DefaultWindowLength)

	verr := requireValidation(t, err, ReasonNotEnoughData)
	assert.Contains(t, verr.Message, "at least 3 entries")
}

func TestParseRejectsEmptyInput(t *testing.T) {
	_, err := Parse("  \n ", DefaultWindowLength)

	requireValidation(t, err, ReasonEmpty)
}

func TestParseBuildsOverlappingWindows(t *testing.T) {
	got, err := Parse("Big, Small, Big, Small", DefaultWindowLength)
	require.NoError(t, err)

	want := [][]history.Result{
		{history.Big, history.Small, history.Big},
		{history.Small, history.Big, history.Small},
	}
	assert.Equal(t, want, got)
}

func TestParseAcceptsNewlinesAndBlankTokens(t *testing.T) {
	got, err := Parse("Big\n  Small ,,\nBig\n", DefaultWindowLength)
	require.NoError(t, err)

	assert.Len(t, got, 1)
}

func TestWindowsShortInput(t *testing.T) {
	assert.Nil(t, Windows([]history.Result{history.Big}, 3))
}
