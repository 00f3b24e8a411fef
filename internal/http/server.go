package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/priority-ride/internal/accounts"
	"github.com/example/priority-ride/internal/classify"
	"github.com/example/priority-ride/internal/orchestrator"
	"github.com/example/priority-ride/internal/routes"
	"github.com/example/priority-ride/internal/state"
	"github.com/example/priority-ride/internal/storage"
)

// Deps are the collaborators a Server is built from. Only Accounts, Routes
// and Client are required.
type Deps struct {
	Accounts   *accounts.Registry
	Routes     *routes.Catalog
	Client     orchestrator.RideClient
	Classifier *classify.Classifier
	State      *state.Publisher
	RideLog    storage.RideLog
	// Events receives booking events in addition to the ride log recorder.
	Events     orchestrator.EventSink
	Policy     orchestrator.Policy
	RunTimeout time.Duration
	Logger     *slog.Logger
	// Sleep overrides retry sleeps in runs; tests only.
	Sleep func(time.Duration)
}

type Server struct {
	accounts   *accounts.Registry
	routes     *routes.Catalog
	client     orchestrator.RideClient
	classifier *classify.Classifier
	state      *state.Publisher
	rideLog    storage.RideLog
	recorder   *storage.Recorder
	events     orchestrator.EventSink
	runs       *runRegistry
	logger     *slog.Logger
	mux        *mux.Router
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	classifier := d.Classifier
	if classifier == nil {
		classifier = classify.New(classify.DefaultMarker)
	}
	st := d.State
	if st == nil {
		st = state.NewPublisher()
		st.Init(d.Accounts.List())
	}
	s := &Server{
		accounts:   d.Accounts,
		routes:     d.Routes,
		client:     d.Client,
		classifier: classifier,
		state:      st,
		rideLog:    d.RideLog,
		logger:     logger,
		mux:        mux.NewRouter(),
	}
	sinks := orchestrator.EventSinks{}
	if d.RideLog != nil {
		s.recorder = storage.NewRecorder(d.RideLog, logger)
		sinks = append(sinks, s.recorder)
	}
	if d.Events != nil {
		sinks = append(sinks, d.Events)
	}
	s.events = sinks

	timeout := d.RunTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	s.runs = newRunRegistry(s, d.Policy, timeout, d.Sleep)

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/accounts", s.handleAccounts).Methods("GET")
	api.HandleFunc("/routes", s.handleRoutes).Methods("GET")
	api.HandleFunc("/search", s.handleSearch).Methods("POST")
	api.HandleFunc("/book", s.handleBook).Methods("POST")
	api.HandleFunc("/cancel", s.handleCancel).Methods("POST")
	api.HandleFunc("/orchestrations", s.handleStartRun).Methods("POST")
	api.HandleFunc("/orchestrations", s.handleListRuns).Methods("GET")
	api.HandleFunc("/orchestrations/{id}", s.handleGetRun).Methods("GET")
	api.HandleFunc("/orchestrations/{id}/stop", s.handleStopRun).Methods("POST")
	api.HandleFunc("/state", s.handleState).Methods("GET")
	api.HandleFunc("/rides", s.handleRides).Methods("GET")

	s.mux.HandleFunc("/ws/state", s.handleStateWS)
	s.mux.HandleFunc("/ws/runs/{id}", s.handleRunWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Shutdown stops every active run and waits for their cleanup to finish or
// ctx to expire.
func (s *Server) Shutdown(ctx context.Context) {
	s.runs.stopAll()
	select {
	case <-s.runs.idle():
	case <-ctx.Done():
	}
}
