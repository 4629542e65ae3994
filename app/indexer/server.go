package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// StatusReport is served on /status.
type StatusReport struct {
	InitialSync    bool   `json:"initial_sync"`
	HeadBlock      uint64 `json:"head_block"`
	Accounts       int    `json:"accounts"`
	PendingFollows int    `json:"pending_follows"`
	Muted          int    `json:"muted"`
	MutesFetched   string `json:"mutes_fetched_at,omitempty"`
}

// NewRouter returns the status router.
func (a *App) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", a.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.HandleReady).Methods(http.MethodGet)
	r.HandleFunc("/status", a.HandleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", a.Metrics.Handler()).Methods(http.MethodGet)
	return r
}

// StartServer binds the status server and serves it in the background.
func (a *App) StartServer(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Config.HTTPAddr)
	if err != nil {
		return err
	}
	a.Server = &http.Server{
		Handler:           a.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	a.Logger.Info("Starting server", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("status server stopped", zap.Error(err))
		}
	}()
	return nil
}

func (a *App) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReady reports ready once the initial sync is done and the database answers.
func (a *App) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.DB.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "database unavailable"})
		return
	}
	if a.State.IsInitialSync() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "initial sync"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus reports in-memory sync progress. It only reads state that is
// safe to read beside the sync loop.
func (a *App) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	report := StatusReport{
		InitialSync:    a.State.IsInitialSync(),
		HeadBlock:      a.Sync.LastCommitted(),
		Accounts:       a.Accounts.Count(),
		PendingFollows: a.Follows.Pending(),
		Muted:          a.Mutes.Count(),
	}
	if at := a.Mutes.FetchedAt(); !at.IsZero() {
		report.MutesFetched = at.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
