// Package httpapi exposes the processing service over HTTP: job
// submission, status and output retrieval, and runtime settings.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/DonISO100/classical-works-processor/internal/config"
	"github.com/DonISO100/classical-works-processor/internal/jobs"
)

// jobLauncher is the slice of the pipeline launcher the API needs.
type jobLauncher interface {
	CreateJob(ctx context.Context, req jobs.ProcessRequest) (*jobs.Job, error)
}

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

type Server struct {
	launcher jobLauncher
	store    jobs.Store
	tracker  *jobs.StatusTracker
	settings runtimeSettingsStore
	apply    runtimeSettingsApplier

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

func NewServer(launcher jobLauncher, store jobs.Store, tracker *jobs.StatusTracker, opts ...Option) *Server {
	s := &Server{
		launcher: launcher,
		store:    store,
		tracker:  tracker,
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/process", s.handleProcess)
	s.mux.HandleFunc("/api/status/", s.handleStatus)
	s.mux.HandleFunc("/api/output/", s.handleOutput)
	s.mux.HandleFunc("/api/jobs", s.handleListJobs)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/health", s.handleHealth)
}
