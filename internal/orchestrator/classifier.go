package orchestrator

// #region imports
import (
	"context"
	"errors"
	"io"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/colorsignal/session-controller/internal/connection"
)

// #endregion

// #region messages

const (
	msgBackendUnavailable = "Backend service is not available. Please wait a moment and try again."
	msgNetwork            = "Network connection issue. Please check your connection and retry."
	msgUnexpected         = "An unexpected error occurred. Please try again."
	msgInitializing       = "Backend is still initializing. Please wait a moment."
)

// #endregion

// #region keywords

var backendKeywords = []string{
	"handle not available", "handle unavailable", "backend unavailable",
	"not connected", "code = unavailable",
}

var networkKeywords = []string{
	"network", "fetch", "timeout", "deadline exceeded",
	"connection refused", "connection reset",
}

// #endregion

// #region classify

// ClassifyError maps a raw cycle failure to a stored error. First matching rule wins:
// remote handle unavailable, then network/fetch/timeout, then unexpected.
func ClassifyError(err error) *PredictionError {
	if err == nil {
		return nil
	}
	var pe *PredictionError
	if errors.As(err, &pe) {
		return pe
	}

	lower := strings.ToLower(err.Error())
	code := status.Code(err)

	if errors.Is(err, connection.ErrHandleUnavailable) || code == codes.Unavailable || containsAny(lower, backendKeywords) {
		return &PredictionError{Category: CategoryBackendUnavailable, Message: msgBackendUnavailable, Cause: err}
	}
	if isTransportError(err) || code == codes.DeadlineExceeded || containsAny(lower, networkKeywords) {
		return &PredictionError{Category: CategoryNetwork, Message: msgNetwork, Cause: err}
	}
	return &PredictionError{Category: CategoryUnexpected, Message: msgUnexpected, Cause: err}
}

func isTransportError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// notReadyError is stored when a cycle is requested before the backend is ready.
func notReadyError() *PredictionError {
	return &PredictionError{Category: CategoryBackendUnavailable, Message: msgInitializing}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// #endregion
