package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"orderScope/internal/model"
	"orderScope/internal/schedule"
	"orderScope/internal/storage"
)

// Config for the analytics server.
type Config struct {
	Addr        string
	MaxPageSize int
	CacheTTL    time.Duration
}

// Trigger runs the sync job and aggregator out of band.
type Trigger interface {
	RunNow(ctx context.Context, req schedule.Request) schedule.Report
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes read-only analytics endpoints plus the admin sync trigger.
type Server struct {
	cfg     Config
	reader  storage.Reader
	trigger Trigger
	auth    *Authenticator
	cache   ResponseCache
	logger  *zap.Logger
	router  *mux.Router
	now     func() time.Time
}

// NewServer wires routes. trigger, auth and cache may be nil.
func NewServer(cfg Config, reader storage.Reader, trigger Trigger, auth *Authenticator, cache ResponseCache, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	s := &Server{
		cfg:     cfg,
		reader:  reader,
		trigger: trigger,
		auth:    auth,
		cache:   cache,
		logger:  logger,
		router:  mux.NewRouter(),
		now:     time.Now,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	s.get(api, "/orders", s.handleOrders)
	s.get(api, "/orders/timeline", s.handleOrderTimeline)
	s.get(api, "/orders/summary", s.handleOrderSummary)
	s.get(api, "/contract-metrics", s.handleContractMetrics)
	s.get(api, "/contract-metrics/history", s.handleContractMetricsHistory)
	s.get(api, "/volume", s.handleVolume)
	s.get(api, "/volume/history", s.handleVolumeHistory)
	api.HandleFunc("/sync/status", s.handleSyncStatus).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.auth.RequireAdmin)
	admin.HandleFunc("/sync", s.handleForceSync).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

func (s *Server) get(router *mux.Router, path string, h http.HandlerFunc) {
	router.Handle(path, cached(s.cache, s.cfg.CacheTTL, s.logger, h)).Methods(http.MethodGet)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.reader.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOrderFilter(r, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := parsePage(r, s.cfg.MaxPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	orders, total, err := s.reader.ListOrders(r.Context(), filter, page.toStorage())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{Data: orders, Page: page.Page, Limit: page.Limit, Total: total})
}

func (s *Server) handleOrderTimeline(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOrderFilter(r, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	interval := storage.IntervalDay
	if raw := r.URL.Query().Get("interval"); raw != "" {
		if interval, err = storage.ParseInterval(raw); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	points, err := s.reader.OrderTimeline(r.Context(), filter, interval)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: points})
}

func (s *Server) handleOrderSummary(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOrderFilter(r, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := s.reader.OrderSummary(r.Context(), filter)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: summary})
}

func (s *Server) handleContractMetrics(w http.ResponseWriter, r *http.Request) {
	latest, err := s.reader.LatestContractMetrics(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: latest})
}

func (s *Server) handleContractMetricsHistory(w http.ResponseWriter, r *http.Request) {
	chainID, err := parseChain(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	since, err := parseSince(r, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r, s.cfg.MaxPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	history, err := s.reader.ContractMetricsHistory(r.Context(), chainID, since, limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if history == nil {
		history = []model.ContractMetrics{}
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: history})
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.reader.LatestVolumeSnapshot(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no volume snapshot yet")
			return
		}
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: snapshot})
}

func (s *Server) handleVolumeHistory(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r, s.cfg.MaxPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snapshots, err := s.reader.VolumeSnapshots(r.Context(), since, limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if snapshots == nil {
		snapshots = []model.VolumeSnapshot{}
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: snapshots})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.reader.ListSyncStatus(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if statuses == nil {
		statuses = []model.SyncStatus{}
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: statuses})
}

func (s *Server) handleForceSync(w http.ResponseWriter, r *http.Request) {
	if s.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "sync trigger is not available")
		return
	}
	req := schedule.Request{Volume: true}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, kind := range req.Kinds {
		if _, err := model.ParseSyncKind(string(kind)); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	// Runs to completion even if the client disconnects.
	report := s.trigger.RunNow(context.WithoutCancel(r.Context()), req)
	writeJSON(w, http.StatusOK, report)
}
