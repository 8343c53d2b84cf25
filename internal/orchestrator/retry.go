package orchestrator

import "github.com/colorsignal/session-controller/internal/connection"

// #region advise

// Advise decides which manual retries to offer. Retries are always user
// initiated; there is no automatic backoff.
func Advise(err *PredictionError, conn connection.Status) RetryAdvice {
	var a RetryAdvice
	if err != nil {
		a.Prediction = true
		if err.Category == CategoryBackendUnavailable {
			a.Connection = true
		}
	}
	if conn != connection.StatusReady {
		a.Connection = true
	}
	return a
}

// #endregion
