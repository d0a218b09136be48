package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"
	"github.com/autopeer-io/clusterpilot/internal/pkg/metrics"
	"github.com/autopeer-io/clusterpilot/pkg/log"
	"github.com/autopeer-io/clusterpilot/pkg/options"
)

// StatusSource is the read side of the control loop.
type StatusSource interface {
	Connected() bool
	Resources(ctx context.Context) ([]model.ResourceStatus, error)
	Resource(ctx context.Context, resourceID string) (model.ResourceStatus, error)
}

// Controller is the control loop as seen by the HTTP API.
type Controller interface {
	StatusSource
	Provision(ctx context.Context, resourceID string, payload model.Payload) (string, error)
	Scale(ctx context.Context, resourceID string, replicas int) (string, error)
	Terminate(ctx context.Context, resourceID string) (string, error)
	HealthCheck(ctx context.Context, resourceID string) (string, error)
}

// accepted is the reply to a command request.
type accepted struct {
	ResourceID    string `json:"resourceId"`
	CorrelationID string `json:"correlationId"`
}

type scaleRequest struct {
	Replicas *int `json:"replicas"`
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions
}

func NewServer(opts *options.HttpOptions, source Controller) *Server {
	return &Server{
		server: &http.Server{
			Addr:         opts.Addr,
			Handler:      NewHandler(source, opts.Timeout),
			ReadTimeout:  opts.Timeout,
			WriteTimeout: opts.Timeout,
		},
		options: opts,
	}
}

// NewHandler returns the routes served for source.
func NewHandler(source Controller, timeout time.Duration) http.Handler {
	h := &handler{source: source, timeout: timeout}

	r := mux.NewRouter()

	// Basic Liveness Probe
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)

	// Readiness Probe: ready while the control-plane link is up
	r.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/debug/resources", h.resources).Methods(http.MethodGet)
	r.HandleFunc("/debug/resources/{id}", h.resource).Methods(http.MethodGet)

	// Commands are accepted asynchronously; progress shows in /debug/resources.
	r.HandleFunc("/resources/{id}/provision", h.provision).Methods(http.MethodPost)
	r.HandleFunc("/resources/{id}/scale", h.scale).Methods(http.MethodPost)
	r.HandleFunc("/resources/{id}/terminate", h.command(source.Terminate)).Methods(http.MethodPost)
	r.HandleFunc("/resources/{id}/health-check", h.command(source.HealthCheck)).Methods(http.MethodPost)

	return r
}

func (s *Server) Start(ctx context.Context) error {
	log.Info("Starting HTTP Server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

type handler struct {
	source  Controller
	timeout time.Duration
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) readyz(w http.ResponseWriter, r *http.Request) {
	if !h.source.Connected() {
		http.Error(w, "control plane unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) resources(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()

	all, err := h.source.Resources(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *handler) resource(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()

	status, err := h.source.Resource(ctx, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handler) provision(w http.ResponseWriter, r *http.Request) {
	var payload model.Payload
	if err := decodeBody(r, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.command(func(ctx context.Context, id string) (string, error) {
		return h.source.Provision(ctx, id, payload)
	})(w, r)
}

func (h *handler) scale(w http.ResponseWriter, r *http.Request) {
	var req scaleRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Replicas == nil || *req.Replicas < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "replicas must be a non-negative integer"})
		return
	}
	h.command(func(ctx context.Context, id string) (string, error) {
		return h.source.Scale(ctx, id, *req.Replicas)
	})(w, r)
}

// command adapts a caller operation to a POST handler replying 202 with
// the correlation id issued.
func (h *handler) command(op func(ctx context.Context, resourceID string) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.context(r)
		defer cancel()

		resourceID := mux.Vars(r)["id"]
		correlationID, err := op(ctx, resourceID)
		if err != nil {
			writeError(w, err)
			return
		}
		log.Info("Command accepted", "resource", resourceID, "path", r.URL.Path, "correlationID", correlationID)
		writeJSON(w, http.StatusAccepted, accepted{ResourceID: resourceID, CorrelationID: correlationID})
	}
}

// decodeBody decodes an optional JSON body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (h *handler) context(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrUnknownResource):
		code = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidResourceID):
		code = http.StatusBadRequest
	case errors.Is(err, model.ErrInvalidTransition):
		code = http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "Failed to write response")
	}
}
