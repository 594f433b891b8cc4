// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api exposes the crowd monitoring subsystem over HTTP: threshold
// configuration CRUD, alert history and acknowledgment, emergency mode
// control, health, and the SSE/WebSocket event streams.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"yatra.is/crowdwatch/internal/alerting"
	"yatra.is/crowdwatch/internal/audit"
	"yatra.is/crowdwatch/internal/config"
	"yatra.is/crowdwatch/internal/emergency"
	"yatra.is/crowdwatch/internal/health"
	"yatra.is/crowdwatch/internal/history"
	"yatra.is/crowdwatch/internal/logging"
	"yatra.is/crowdwatch/internal/monitor"
	"yatra.is/crowdwatch/internal/ratelimit"
	"yatra.is/crowdwatch/internal/threshold"
)

// ServerTimeouts holds HTTP server hardening settings.
type ServerTimeouts struct {
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
}

// DefaultTimeouts returns the server defaults. WriteTimeout is zero because
// the SSE endpoints hold their response open indefinitely.
func DefaultTimeouts() ServerTimeouts {
	return ServerTimeouts{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
}

// Server handles API requests.
type Server struct {
	cfg        *config.Config
	monitor    *monitor.Monitor
	thresholds *threshold.Manager
	engine     *alerting.Engine
	emergency  *emergency.Manager
	tracker    *health.Tracker
	auditLog   *audit.Logger
	historyDB  *history.Store
	logger     *logging.Logger
	startTime  time.Time

	configLimiter *ratelimit.Limiter
	streamLimiter *ratelimit.Limiter

	streams *streamHub
	ws      *wsHub

	mu     sync.RWMutex
	router *mux.Router
}

// ServerOptions holds dependencies for the API server.
type ServerOptions struct {
	Config     *config.Config
	Monitor    *monitor.Monitor
	Thresholds *threshold.Manager
	Engine     *alerting.Engine
	Emergency  *emergency.Manager
	Tracker    *health.Tracker
	AuditLog   *audit.Logger
	HistoryDB  *history.Store // optional
	Logger     *logging.Logger
}

// NewServer creates an API server with the provided options.
func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("api")
	}

	configPerMin := 30
	streamPerMin := 10
	if rl := opts.Config.RateLimit; rl != nil {
		if rl.ConfigRequestsPerMinute > 0 {
			configPerMin = rl.ConfigRequestsPerMinute
		}
		if rl.StreamConnectionsPerMinute > 0 {
			streamPerMin = rl.StreamConnectionsPerMinute
		}
	}

	s := &Server{
		cfg:           opts.Config,
		monitor:       opts.Monitor,
		thresholds:    opts.Thresholds,
		engine:        opts.Engine,
		emergency:     opts.Emergency,
		tracker:       opts.Tracker,
		auditLog:      opts.AuditLog,
		historyDB:     opts.HistoryDB,
		logger:        logger,
		startTime:     time.Now(),
		configLimiter: ratelimit.New(configPerMin, time.Minute),
		streamLimiter: ratelimit.New(streamPerMin, time.Minute),
	}
	s.streams = newStreamHub(s)
	s.ws = newWSHub(s)

	s.initRoutes()
	return s
}

// Wire subscribes the streaming hubs to the event sources and starts the
// limiter sweepers. Returns after registering; teardown happens when stop
// closes.
func (s *Server) Wire(stop <-chan struct{}) {
	s.configLimiter.StartSweeper(time.Minute, stop)
	s.streamLimiter.StartSweeper(time.Minute, stop)

	alertSub := s.engine.Subscribe(func(ev alerting.AlertEvent) {
		s.streams.publish(Event{Type: "alert", Data: ev})
		s.ws.publish(Event{Type: "alert", Data: ev})
	})
	emergencySub := s.emergency.Subscribe(func(st *emergency.State) {
		ev := Event{Type: "emergency", Data: emergencyPayload(st)}
		s.streams.publish(ev)
		s.ws.publish(ev)
	})
	densitySub := s.monitor.Subscribe(func(r monitor.Reading) {
		ev := Event{Type: "density", Data: r}
		s.streams.publishDensity(ev)
		s.ws.publish(ev)
	})

	go func() {
		<-stop
		s.engine.Unsubscribe(alertSub)
		s.emergency.Unsubscribe(emergencySub)
		s.monitor.Unsubscribe(densitySub)
	}()
}

func (s *Server) initRoutes() {
	r := mux.NewRouter()
	s.router = r

	api := r.PathPrefix("/api/v1").Subrouter()

	// Public endpoints (no auth required)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Threshold configuration
	api.Handle("/config", s.require(config.PermViewOnly, http.HandlerFunc(s.handleGetConfig))).Methods(http.MethodGet)
	api.Handle("/config", s.rateLimit(s.configLimiter, "config",
		s.require(config.PermConfigureThresholds, http.HandlerFunc(s.handleSaveConfig)))).Methods(http.MethodPost)
	api.Handle("/config", s.rateLimit(s.configLimiter, "config",
		s.require(config.PermConfigureThresholds, http.HandlerFunc(s.handleDeleteConfig)))).Methods(http.MethodDelete)

	// Alerts
	api.Handle("/alerts", s.require(config.PermViewOnly, http.HandlerFunc(s.handleListAlerts))).Methods(http.MethodGet)
	api.Handle("/alerts/stats", s.require(config.PermViewOnly, http.HandlerFunc(s.handleAlertStats))).Methods(http.MethodPost)
	api.Handle("/alerts/{id}/ack", s.require(config.PermViewOnly, http.HandlerFunc(s.handleAcknowledgeAlert))).Methods(http.MethodPost)

	// Areas & density
	api.Handle("/areas", s.require(config.PermViewOnly, http.HandlerFunc(s.handleListAreas))).Methods(http.MethodGet)
	api.Handle("/areas/{id}", s.require(config.PermViewOnly, http.HandlerFunc(s.handleGetArea))).Methods(http.MethodGet)
	api.Handle("/history", s.require(config.PermViewOnly, http.HandlerFunc(s.handleHistory))).Methods(http.MethodGet)

	// Emergency mode
	api.Handle("/emergency", s.require(config.PermViewOnly, http.HandlerFunc(s.handleEmergencyState))).Methods(http.MethodGet)
	api.Handle("/emergency/activate", s.require(config.PermAdmin, http.HandlerFunc(s.handleEmergencyActivate))).Methods(http.MethodPost)
	api.Handle("/emergency/deactivate", s.require(config.PermAdmin, http.HandlerFunc(s.handleEmergencyDeactivate))).Methods(http.MethodPost)

	// Audit trail
	api.Handle("/audit", s.require(config.PermAdmin, http.HandlerFunc(s.handleAuditQuery))).Methods(http.MethodGet)

	// Streaming
	api.Handle("/stream", s.rateLimit(s.streamLimiter, "stream",
		s.require(config.PermViewOnly, http.HandlerFunc(s.handleEventStream)))).Methods(http.MethodGet)
	api.Handle("/density-stream", s.rateLimit(s.streamLimiter, "stream",
		s.require(config.PermViewOnly, http.HandlerFunc(s.handleDensityStream)))).Methods(http.MethodGet)
	api.Handle("/ws", s.rateLimit(s.streamLimiter, "stream",
		s.require(config.PermViewOnly, http.HandlerFunc(s.handleWS)))).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Handler returns the router with the outer middleware chain applied.
func (s *Server) Handler() http.Handler {
	maxBody := int64(1 << 20)
	if s.cfg.Server != nil && s.cfg.Server.MaxBodyBytes > 0 {
		maxBody = s.cfg.Server.MaxBodyBytes
	}
	return s.loggingMiddleware(s.maxBodyMiddleware(maxBody)(s.router))
}

// Start runs the HTTP server until the context is canceled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	t := DefaultTimeouts()
	if sc := s.cfg.Server; sc != nil {
		t.ReadTimeout = config.Duration(sc.ReadTimeout, t.ReadTimeout)
		t.ReadHeaderTimeout = config.Duration(sc.ReadHeaderTimeout, t.ReadHeaderTimeout)
		t.WriteTimeout = config.Duration(sc.WriteTimeout, t.WriteTimeout)
		t.IdleTimeout = config.Duration(sc.IdleTimeout, t.IdleTimeout)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: t.ReadHeaderTimeout,
		ReadTimeout:       t.ReadTimeout,
		WriteTimeout:      t.WriteTimeout,
		IdleTimeout:       t.IdleTimeout,
		MaxHeaderBytes:    t.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// emergencyPayload renders the subscriber callback argument: an explicit
// inactive marker instead of a bare null on deactivation.
func emergencyPayload(st *emergency.State) interface{} {
	if st == nil {
		return map[string]bool{"active": false}
	}
	return st
}
