// Package web provides the HTTP status page, JSON snapshot, Prometheus
// endpoint and remote control API of the aquarium daemon.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sweeney/aquarium-controller/internal/control"
	"github.com/sweeney/aquarium-controller/internal/status"
)

// StatusSource provides the shared status record.
type StatusSource interface {
	Snapshot() status.Snapshot
}

// Controller is the subset of control.Controller the API drives.
type Controller interface {
	Name() string
	Do(action string) error
	Snapshot() control.Snapshot
}

// Config holds server settings.
type Config struct {
	Addr    string
	Refresh time.Duration // HTML auto-refresh, 0 disables
}

// Server serves the status page and control API over HTTP.
type Server struct {
	httpServer  *http.Server
	tracker     StatusSource
	controllers []Controller
	byName      map[string]Controller
	refresh     time.Duration
	log         *zap.Logger
}

// New creates a Server. gatherer may be nil, in which case /metrics is not served.
func New(cfg Config, tracker StatusSource, controllers []Controller, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	s := &Server{
		tracker:     tracker,
		controllers: controllers,
		byName:      make(map[string]Controller, len(controllers)),
		refresh:     cfg.Refresh,
		log:         log.Named("web"),
	}
	for _, c := range controllers {
		s.byName[c.Name()] = c
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods("GET")
	r.HandleFunc("/index.html", s.handleIndex).Methods("GET")
	r.HandleFunc("/index.json", s.handleJSON).Methods("GET")
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
	s.LoadAPI(r)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// LoadAPI registers the controller endpoints.
func (s *Server) LoadAPI(r *mux.Router) {
	sr := r.PathPrefix("/api/controllers").Subrouter()
	sr.HandleFunc("", s.listControllers).Methods("GET")
	sr.HandleFunc("/{name}", s.getController).Methods("GET")
	sr.HandleFunc("/{name}/{action}", s.doAction).Methods("POST")
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, page(snap, s.controllers, s.refresh)); err != nil {
		s.log.Error("render index", zap.Error(err))
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

// ControllerJSON is the API representation of one controller.
type ControllerJSON struct {
	Name       string        `json:"name"`
	State      string        `json:"state"`
	On         bool          `json:"on"`
	Auto       bool          `json:"auto"`
	Monitoring bool          `json:"monitoring"`
	Fields     status.Record `json:"fields"`
}

func controllerJSON(c Controller) ControllerJSON {
	snap := c.Snapshot()
	return ControllerJSON{
		Name:       snap.Name,
		State:      string(snap.State),
		On:         snap.On,
		Auto:       snap.Auto,
		Monitoring: snap.Monitoring,
		Fields:     snap.Fields,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) listControllers(w http.ResponseWriter, r *http.Request) {
	out := make([]ControllerJSON, 0, len(s.controllers))
	for _, c := range s.controllers {
		out = append(out, controllerJSON(c))
	}
	writeJSON(w, out)
}

func (s *Server) getController(w http.ResponseWriter, r *http.Request) {
	c, ok := s.byName[mux.Vars(r)["name"]]
	if !ok {
		http.Error(w, "Unknown controller", http.StatusNotFound)
		return
	}
	writeJSON(w, controllerJSON(c))
}

// doAction applies an action. Forms posted from the status page carry
// redirect=1 and are sent back to the page.
func (s *Server) doAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	c, ok := s.byName[vars["name"]]
	if !ok {
		http.Error(w, "Unknown controller", http.StatusNotFound)
		return
	}
	action := vars["action"]
	if err := c.Do(action); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, control.ErrUnknownAction) {
			code = http.StatusBadRequest
		}
		s.log.Warn("action failed", zap.String("controller", c.Name()), zap.String("action", action), zap.Error(err))
		http.Error(w, err.Error(), code)
		return
	}
	s.log.Info("action applied", zap.String("controller", c.Name()), zap.String("action", action))
	if r.FormValue("redirect") != "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
