package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/AaronLay10/pcassist/internal/broadcast"
	"github.com/AaronLay10/pcassist/internal/events"
	"github.com/AaronLay10/pcassist/internal/storage/postgres"
)

// OverlaySource provides the payload currently on screen.
type OverlaySource interface {
	Latest() (broadcast.Message, bool)
}

// EventHistory queries persisted events and runs.
type EventHistory interface {
	Query(limit int, sessionID string) ([]postgres.EventRow, error)
	Sessions(limit int) ([]postgres.SessionRow, error)
}

var (
	sourceMu      sync.RWMutex
	overlaySource OverlaySource
	eventHistory  EventHistory
)

// SetOverlaySource sets what /overlay reports. Pass nil to clear.
func SetOverlaySource(s OverlaySource) {
	sourceMu.Lock()
	overlaySource = s
	sourceMu.Unlock()
}

// SetEventHistory enables /events/history and /sessions. Pass nil to
// disable.
func SetEventHistory(h EventHistory) {
	sourceMu.Lock()
	eventHistory = h
	sourceMu.Unlock()
}

// readiness tracks what /ready reports.
var readiness = struct {
	mu                sync.RWMutex
	pipelineRunning   bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}{mqttOptional: true, postgresOptional: true}

// SetPipelineRunning records whether the pipeline is attached to a game.
func SetPipelineRunning(running bool) {
	readiness.mu.Lock()
	readiness.pipelineRunning = running
	readiness.mu.Unlock()
}

// SetMQTTState records the broker connection. A required broker that is
// down makes the service not ready.
func SetMQTTState(connected, required bool) {
	readiness.mu.Lock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = !required
	readiness.mu.Unlock()
}

// SetPostgresState records the database connection.
func SetPostgresState(connected, required bool) {
	readiness.mu.Lock()
	readiness.postgresConnected = connected
	readiness.postgresOptional = !required
	readiness.mu.Unlock()
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Session   string `json:"session,omitempty"`
	Timestamp string `json:"ts"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	resp := HealthResponse{
		Status:    "ok",
		Service:   "pcassist",
		Hostname:  host,
		Session:   events.SessionID(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	writeJSON(w, http.StatusOK, resp)
}

// CheckStatus is one readiness check.
type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckStatus `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness.mu.RLock()
	pipelineRunning := readiness.pipelineRunning
	mqttConnected, mqttOptional := readiness.mqttConnected, readiness.mqttOptional
	pgConnected, pgOptional := readiness.postgresConnected, readiness.postgresOptional
	readiness.mu.RUnlock()

	resp := ReadinessResponse{Ready: true, Checks: map[string]CheckStatus{}}
	check := func(name string, ok, optional bool) {
		status := "ok"
		if !ok {
			status = "not_ready"
			if optional {
				status = "unavailable"
			} else {
				resp.Ready = false
				if resp.NotReadyMsg == "" {
					resp.NotReadyMsg = name + " not ready"
				}
			}
		}
		resp.Checks[name] = CheckStatus{Status: status, Optional: optional}
	}
	check("pipeline", pipelineRunning, false)
	check("mqtt", mqttConnected, mqttOptional)
	check("postgres", pgConnected, pgOptional)

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// eventsHandler returns the in-memory ring buffer. ?limit=N keeps the last N;
// with ?since=SEQ it returns the first N events after SEQ instead, for
// clients catching up from a known position.
func eventsHandler(w http.ResponseWriter, r *http.Request) {
	n, err := queryInt(r, "limit")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if r.URL.Query().Has("since") {
		since, err := queryInt(r, "since")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		list := events.Since(int64(since))
		if n > 0 && len(list) > n {
			list = list[:n]
		}
		writeJSON(w, http.StatusOK, list)
		return
	}
	writeJSON(w, http.StatusOK, events.RecentEvents(n))
}

// history returns the configured store or answers 404.
func history(w http.ResponseWriter) EventHistory {
	sourceMu.RLock()
	h := eventHistory
	sourceMu.RUnlock()
	if h == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "event history not configured"})
	}
	return h
}

// eventsHistoryHandler reads persisted events. ?session= narrows to one run;
// "current" means this process's run.
func eventsHistoryHandler(w http.ResponseWriter, r *http.Request) {
	h := history(w)
	if h == nil {
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	session := r.URL.Query().Get("session")
	if session == "current" {
		session = events.SessionID()
	}

	rows, err := h.Query(limit, session)
	if err != nil {
		log.Printf("api: event history query failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// sessionsHandler lists past runs of this instance, newest first.
func sessionsHandler(w http.ResponseWriter, r *http.Request) {
	h := history(w)
	if h == nil {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	rows, err := h.Sessions(limit)
	if err != nil {
		log.Printf("api: sessions query failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// OverlayResponse is the current overlay state.
type OverlayResponse struct {
	Active  bool               `json:"active"`
	Message *broadcast.Message `json:"message,omitempty"`
}

func overlayHandler(w http.ResponseWriter, r *http.Request) {
	sourceMu.RLock()
	s := overlaySource
	sourceMu.RUnlock()

	var resp OverlayResponse
	if s != nil {
		if msg, ok := s.Latest(); ok {
			resp.Active = true
			resp.Message = &msg
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

// getOnly rejects anything but GET and HEAD.
func getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
			return
		}
		h(w, r)
	}
}

// NewMux builds the router. Health and readiness stay open so probes work
// without credentials; everything else goes through basic auth when it is
// configured.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", getOnly(healthHandler))
	mux.HandleFunc("/ready", getOnly(readyHandler))
	mux.HandleFunc("/events", RequireAuth(getOnly(eventsHandler)))
	mux.HandleFunc("/events/history", RequireAuth(getOnly(eventsHistoryHandler)))
	mux.HandleFunc("/sessions", RequireAuth(getOnly(sessionsHandler)))
	mux.HandleFunc("/overlay", RequireAuth(getOnly(overlayHandler)))
	mux.HandleFunc("/ws/events", RequireAuth(wsEventsHandler))
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/ui", RequireAuth(getOnly(uiHandler)))
	return mux
}

// Serve runs the API server on port until ctx is done. It uses TLS when
// InitTLS found a certificate.
func Serve(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if IsTLSEnabled() {
			srv.TLSConfig = serverTLS.Clone()
			log.Printf("API listening on %s (TLS)\n", srv.Addr)
			errc <- srv.ListenAndServeTLS("", "")
			return
		}
		log.Printf("API listening on %s\n", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	// Websocket writers block on their subscriber channels; closing them
	// lets Shutdown finish.
	events.CloseAllSubscribers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
