package api

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/config"
	"github.com/JakeFAU/pdp-auditor/internal/metrics"
	"github.com/JakeFAU/pdp-auditor/internal/policy"
	"github.com/JakeFAU/pdp-auditor/internal/report"
)

const enqueueTimeout = 5 * time.Second

// Keyer derives the key chain for a request.
type Keyer interface {
	Keys(req audit.Request) (audit.Keys, error)
}

// Enqueuer accepts audit jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job audit.Job) error
}

// ReadinessCheck reports whether a downstream dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Server wires HTTP handlers to the job queue and record store.
type Server struct {
	router   chi.Router
	store    audit.RecordStore
	enqueuer Enqueuer
	keyer    Keyer
	policy   *policy.Policy
	idGen    audit.IDGenerator
	clock    audit.Clock
	ready    []ReadinessCheck
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store audit.RecordStore,
	enqueuer Enqueuer,
	keyer Keyer,
	idGen audit.IDGenerator,
	clock audit.Clock,
	cfg config.Config,
	logger *zap.Logger,
	ready ...ReadinessCheck,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:    store,
		enqueuer: enqueuer,
		keyer:    keyer,
		policy: policy.New(policy.Config{
			BlockedHosts:      cfg.Audit.BlockedHosts,
			AllowPrivateHosts: cfg.Audit.AllowPrivateHosts,
		}),
		idGen:  idGen,
		clock:  clock,
		ready:  ready,
		cfg:    cfg,
		logger: logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware(idGen))
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout()))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/audits", s.submitAudit)
		r.Get("/audits/{audit_key}", s.getAudit)
		r.Get("/runs/{run_key}", s.getRun)
		r.Get("/runs/{run_key}/tickets.csv", s.getRunCSV)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	for _, check := range s.ready {
		if err := check(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitRequest struct {
	URL        string           `json:"url"`
	Mode       audit.Mode       `json:"mode"`
	Locale     string           `json:"locale"`
	Viewports  []audit.Viewport `json:"viewports"`
	CopyReady  bool             `json:"copy_ready"`
	WhiteLabel bool             `json:"white_label"`
}

type submitResponse struct {
	audit.Keys
	RequestID string       `json:"request_id"`
	Status    audit.Status `json:"status"`
}

func (s *Server) submitAudit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req, err := s.toRequest(r.Context(), body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.policy.AllowURL(req.URL); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, policy.ErrNotAllowed) {
			status = http.StatusForbidden
		}
		s.writeError(w, status, err.Error())
		return
	}
	chain, err := s.keyer.Keys(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := s.clock.Now()
	if err := s.store.UpsertJob(r.Context(), audit.JobRecord{
		Key:        chain.Audit,
		RunKey:     chain.Run,
		RenderKey:  chain.Render,
		URL:        req.URL,
		Status:     audit.StatusQueued,
		CopyReady:  req.CopyReady,
		WhiteLabel: req.WhiteLabel,
		RequestID:  req.RequestID,
		UpdatedAt:  now,
	}); err != nil {
		s.logger.Error("create job failed", zap.String("audit_key", chain.Audit), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	if err := s.enqueuer.Enqueue(queueCtx, audit.Job{
		AuditKey:  chain.Audit,
		Request:   req,
		Attempt:   1,
		Submitted: now.Unix(),
	}); err != nil {
		s.logger.Warn("enqueue failed", zap.String("audit_key", chain.Audit), zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}

	s.logger.Info("audit queued",
		zap.String("audit_key", chain.Audit),
		zap.String("run_key", chain.Run),
		zap.String("url", req.URL),
	)
	s.writeJSON(w, http.StatusAccepted, submitResponse{Keys: chain, RequestID: req.RequestID, Status: audit.StatusQueued})
}

func (s *Server) toRequest(ctx context.Context, body submitRequest) (audit.Request, error) {
	body.URL = strings.TrimSpace(body.URL)
	if body.URL == "" {
		return audit.Request{}, errors.New("url required")
	}
	if body.Mode == "" {
		body.Mode = audit.ModeSolo
	}
	if !body.Mode.Valid() {
		return audit.Request{}, fmt.Errorf("unknown mode %q", body.Mode)
	}
	for _, vp := range body.Viewports {
		if vp != audit.ViewportMobile && vp != audit.ViewportDesktop {
			return audit.Request{}, fmt.Errorf("unknown viewport %q", vp)
		}
	}
	locale := strings.TrimSpace(body.Locale)
	if locale == "" {
		locale = s.cfg.Audit.DefaultLocale
	}
	return audit.Request{
		URL:        body.URL,
		Mode:       body.Mode,
		Locale:     locale,
		Viewports:  body.Viewports,
		CopyReady:  body.CopyReady,
		WhiteLabel: body.WhiteLabel,
		RequestID:  requestIDFrom(ctx),
	}, nil
}

func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "audit_key")
	job, err := s.store.GetJob(r.Context(), key)
	if err != nil {
		s.lookupError(w, "job", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "run_key")
	run, err := s.store.GetRun(r.Context(), key)
	if err != nil {
		s.lookupError(w, "run", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (s *Server) getRunCSV(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "run_key")
	run, err := s.store.GetRun(r.Context(), key)
	if err != nil {
		s.lookupError(w, "run", err)
		return
	}
	if run.Export == nil {
		s.writeError(w, http.StatusNotFound, "run has no export")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", key+"_"+report.CSVFile))
	w.WriteHeader(http.StatusOK)
	if err := report.WriteCSV(w, run.Export.Tickets); err != nil {
		s.logger.Error("write csv failed", zap.String("run_key", key), zap.Error(err))
	}
}

func (s *Server) lookupError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, audit.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	s.logger.Error("lookup failed", zap.String("kind", what), zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "failed to load "+what)
}

func requestIDMiddleware(idGen audit.IDGenerator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if reqID == "" && idGen != nil {
				if id, err := idGen.NewID(); err == nil {
					reqID = id
				}
			}
			ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
			w.Header().Set("X-Request-ID", reqID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", requestIDFrom(r.Context())),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				writeJSON(zap.NewNop(), w, http.StatusForbidden, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(s.logger, w, status, payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(s.logger, w, status, map[string]string{"error": msg})
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
