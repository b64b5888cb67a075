package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/mattjoyce/gwtrigger/internal/events"
	"github.com/mattjoyce/gwtrigger/internal/jobs"
	"github.com/mattjoyce/gwtrigger/internal/queue"
	"github.com/mattjoyce/gwtrigger/internal/trigger"
	"github.com/mattjoyce/gwtrigger/internal/variables"
)

// Server represents the webhook HTTP server.
type Server struct {
	config Config
	jobs   JobSource
	queue  BuildQueue
	events *events.Hub
	logger *slog.Logger
	server *http.Server
}

// New creates a new webhook server instance. A nil hub gets a private one.
func New(config Config, js JobSource, q BuildQueue, hub *events.Hub, logger *slog.Logger) *Server {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = 1 << 20
	}
	if config.SubmittedBy == "" {
		config.SubmittedBy = "webhook"
	}
	if hub == nil {
		hub = events.NewHub(128)
	}
	return &Server{
		config: config,
		jobs:   js,
		queue:  q,
		events: hub,
		logger: logger.With("component", "webhook"),
	}
}

// Start starts the webhook HTTP server and blocks until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // event streams stay open
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "path", s.config.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	if len(s.config.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: s.config.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"*"},
		}).Handler)
	}

	r.Get("/healthz", s.handleHealth)
	r.Route(s.config.Path, func(r chi.Router) {
		r.Get("/invoke", s.handleInvoke)
		r.Post("/invoke", s.handleInvoke)
		r.Get("/queue", s.handlePending)
		r.Get("/queue/{id}", s.handleBuild)
		r.Get("/events", s.handleEvents)
	})
	return r
}

// loggingMiddleware logs HTTP requests (excludes payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := s.logger.With("request_id", middleware.GetReqID(ctx))

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	req := variables.Request{
		Body:    body,
		Params:  requestParams(r, body),
		Headers: trigger.NormalizeHeaders(trigger.HTTPHeaders(r.Header)),
	}
	tc := trigger.Resolve(req.Headers, req.Params)

	matched := s.jobs.Match(tc.Token, tc.HasToken)
	if len(matched) == 0 {
		logger.Info("no jobs matched webhook request", "token_supplied", tc.HasToken)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, trigger.Construct404Message(tc.Token))
		return
	}

	resp := TriggerResponse{
		Jobs:    make(map[string]JobResult, len(matched)),
		Message: MessageTriggered,
	}
	if tc.DryRun {
		resp.Message = MessageDryRun
	}
	for _, job := range matched {
		resp.Jobs[job.Name] = s.triggerJob(ctx, logger.With("job", job.Name), job, req, tc)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// triggerJob evaluates one job. A panic is recovered into the job's result
// so the remaining jobs still run.
func (s *Server) triggerJob(ctx context.Context, logger *slog.Logger, job *jobs.Job, req variables.Request, tc trigger.Context) (res JobResult) {
	defer func() {
		if v := recover(); v != nil {
			err := trigger.Recovered(v)
			logger.Error("job trigger failed", "error", err)
			res = JobResult{Error: trigger.MessageFromError(err)}
		}
	}()

	resolved := variables.Resolve(req, variables.Sources{
		Variables:        job.Variables,
		RequestVariables: job.RequestVariables,
		HeaderVariables:  job.HeaderVariables,
	})
	if job.PrintContributedVariables {
		logger.Info("contributed variables", "variables", resolved)
	}
	if !job.SilentResponse {
		res.ResolvedVariables = resolved
	}

	text, expr, ok := job.Filter(resolved)
	if expr != "" {
		res.RegexpFilter = &FilterResult{Text: text, Expression: expr}
	}
	if !ok {
		logger.Info("regexp filter did not match, job not triggered", "text", text, "expression", expr)
		return res
	}

	params := queueParameters(trigger.BuildParameters(job.Parameters, resolved, job.AllowSeveralTriggersPerBuild))
	quiet := job.QuietPeriodFor(tc.QuietPeriod)
	if tc.DryRun {
		logger.Info("dry run, job not scheduled", "quiet_period", quiet, "parameters", len(params))
		return res
	}

	scheduled, err := s.queue.Schedule(ctx, queue.ScheduleRequest{
		Job:         job.Name,
		Parameters:  params,
		QuietPeriod: quiet,
		Cause:       job.CauseFor(resolved),
		SubmittedBy: s.config.SubmittedBy,
	})
	if err != nil {
		err = trigger.WithStack(err)
		logger.Error("failed to schedule build", "error", err)
		res.Error = trigger.MessageFromError(err)
		return res
	}

	res.Triggered = true
	res.ID = scheduled.ID
	res.URL = s.config.Path + "/queue/" + scheduled.ID
	res.Coalesced = scheduled.Coalesced

	s.events.Publish(events.BuildScheduled{
		ID:        scheduled.ID,
		Job:       job.Name,
		Coalesced: scheduled.Coalesced,
		NotBefore: scheduled.NotBefore,
	})
	logger.Info("build scheduled",
		"build_id", scheduled.ID,
		"coalesced", scheduled.Coalesced,
		"quiet_period", quiet,
	)
	return res
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	builds, err := s.queue.Pending(r.Context(), r.URL.Query().Get("job"))
	if err != nil {
		s.logger.Error("failed to list pending builds", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list builds")
		return
	}
	if builds == nil {
		builds = []*queue.Build{}
	}
	s.respondJSON(w, http.StatusOK, PendingResponse{Builds: builds})
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	b, err := s.queue.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, queue.ErrBuildNotFound) {
		s.respondError(w, http.StatusNotFound, "build not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get build", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to get build")
		return
	}
	s.respondJSON(w, http.StatusOK, b)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	depth, err := s.queue.Depth(r.Context())
	if err != nil {
		s.logger.Error("health check failed", "error", err)
		s.respondError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Jobs:       len(s.jobs.All()),
		QueueDepth: depth,
	})
}

// requestParams merges query parameters with a urlencoded form body.
func requestParams(r *http.Request, body []byte) trigger.Params {
	params := trigger.Params{}
	for k, v := range r.URL.Query() {
		params[k] = append(params[k], v...)
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if form, err := url.ParseQuery(string(body)); err == nil {
			for k, v := range form {
				params[k] = append(params[k], v...)
			}
		}
	}
	return params
}

func queueParameters(built []trigger.BuildParameter) []queue.Parameter {
	out := make([]queue.Parameter, 0, len(built))
	for _, p := range built {
		kind := p.Value.Kind().String()
		if o, ok := p.Value.(trigger.OpaqueValue); ok && o.Type != "" {
			kind = o.Type
		}
		out = append(out, queue.Parameter{Name: p.Name, Kind: kind, Value: p.Value.String()})
	}
	return out
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
