package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/colorsignal/session-controller/internal/orchestrator"
	"github.com/colorsignal/session-controller/internal/patterns"
	"github.com/colorsignal/session-controller/internal/session"
)

const (
	maxPatternBody = 1 << 20
	writeWait      = 5 * time.Second
)

// Server exposes one session to a UI over JSON and a snapshot websocket.
type Server struct {
	session  *session.Session
	gatherer prometheus.Gatherer
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewServer builds the bridge. gatherer may be nil to skip /metrics.
func NewServer(s *session.Session, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	return &Server{
		session:  s,
		gatherer: gatherer,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the routed handler.
func (srv *Server) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/state", srv.handleState).Methods(http.MethodGet)
	api.HandleFunc("/history", srv.handleAddEntry).Methods(http.MethodPost)
	api.HandleFunc("/history", srv.handleClear).Methods(http.MethodDelete)
	api.HandleFunc("/history/next", srv.handleNext).Methods(http.MethodPost)
	api.HandleFunc("/history/last", srv.handleRemoveLast).Methods(http.MethodDelete)
	api.HandleFunc("/history/hydrate", srv.handleHydrate).Methods(http.MethodPost)
	api.HandleFunc("/prediction", srv.handlePredict(false)).Methods(http.MethodPost)
	api.HandleFunc("/prediction/retry", srv.handlePredict(true)).Methods(http.MethodPost)
	api.HandleFunc("/feedback", srv.handleFeedback).Methods(http.MethodPost)
	api.HandleFunc("/patterns", srv.handlePatterns).Methods(http.MethodPost)
	api.HandleFunc("/connection/retry", srv.handleConnectionRetry).Methods(http.MethodPost)
	api.HandleFunc("/analysis", srv.handleAnalysis).Methods(http.MethodGet)
	api.HandleFunc("/time-window", srv.handleTimeWindow).Methods(http.MethodPut)

	r.HandleFunc("/ws", srv.handleWebSocket)
	if srv.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(srv.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// #region history-handlers
func (srv *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, srv.session.Snapshot())
}

func (srv *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	d, err := srv.session.AddEntry(req.Result)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"action": d.Action,
		"gate":   d.State,
		"state":  srv.session.Snapshot(),
	})
}

func (srv *Server) handleNext(w http.ResponseWriter, _ *http.Request) {
	advanced := srv.session.Next()
	writeJSON(w, http.StatusOK, map[string]any{"advanced": advanced, "state": srv.session.Snapshot()})
}

func (srv *Server) handleRemoveLast(w http.ResponseWriter, _ *http.Request) {
	removed := srv.session.RemoveLast()
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed, "state": srv.session.Snapshot()})
}

func (srv *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	srv.session.ClearAll()
	writeJSON(w, http.StatusOK, srv.session.Snapshot())
}

func (srv *Server) handleHydrate(w http.ResponseWriter, r *http.Request) {
	if err := srv.session.Hydrate(r.Context()); err != nil {
		srv.logger.Warn().Err(err).Msg("hydrate failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, srv.session.Snapshot())
}

// #endregion history-handlers

// #region prediction-handlers
func (srv *Server) handlePredict(retry bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		if retry {
			err = srv.session.RetryPrediction(r.Context())
		} else {
			err = srv.session.Predict(r.Context())
		}

		var pe *orchestrator.PredictionError
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, srv.session.Snapshot())
		case errors.Is(err, session.ErrPredictionInFlight):
			writeError(w, http.StatusConflict, err.Error())
		case errors.As(err, &pe) && pe.Category == orchestrator.CategoryBackendUnavailable:
			writeJSON(w, http.StatusServiceUnavailable, srv.session.Snapshot())
		default:
			writeJSON(w, http.StatusBadGateway, srv.session.Snapshot())
		}
	}
}

func (srv *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Win *bool `json:"win"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Win == nil {
		writeError(w, http.StatusBadRequest, `body must be {"win": true|false}`)
		return
	}
	if err := srv.session.RecordFeedback(*req.Win); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, srv.session.Snapshot())
}

func (srv *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPatternBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	n, err := srv.session.UploadPatterns(r.Context(), string(body))
	var ve *patterns.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   ve.Message,
			"reason":  ve.Reason,
			"invalid": ve.Invalid,
		})
	case err != nil:
		srv.logger.Warn().Err(err).Msg("pattern upload failed")
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{"windows": n})
	}
}

// #endregion prediction-handlers

// #region connection-handlers
func (srv *Server) handleConnectionRetry(w http.ResponseWriter, r *http.Request) {
	if err := srv.session.RetryConnection(r.Context()); err != nil {
		srv.logger.Warn().Err(err).Msg("connection retry failed")
		writeJSON(w, http.StatusServiceUnavailable, srv.session.Snapshot())
		return
	}
	writeJSON(w, http.StatusOK, srv.session.Snapshot())
}

func (srv *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := srv.session.Analyze(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (srv *Server) handleTimeWindow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Window int64 `json:"window"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Window < 1 {
		writeError(w, http.StatusBadRequest, "window must be positive")
		return
	}
	if err := srv.session.SetTimeWindow(r.Context(), req.Window); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// #endregion connection-handlers

// #region websocket
// handleWebSocket streams a snapshot on connect and after every session change.
func (srv *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	updates, unsubscribe := srv.session.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(snap session.Snapshot) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(snap)
	}
	if err := send(srv.session.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := send(snap); err != nil {
				srv.logger.Debug().Err(err).Msg("websocket write")
				return
			}
		}
	}
}

// #endregion websocket

// #region helpers
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// #endregion helpers
