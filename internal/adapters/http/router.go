package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/routers"
	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/coactivo-intake/internal/config"
	"github.com/kirillkom/coactivo-intake/internal/core/ports"
	"github.com/kirillkom/coactivo-intake/internal/observability/metrics"
)

const serviceName = "api"

type Dependencies struct {
	Submitter ports.CaseSubmitter
	Reader    ports.CaseReader
	Remover   ports.CaseRemover
	Exporter  ports.CaseExporter

	Metrics *metrics.HTTPServerMetrics
	MCP     http.Handler
	Logger  *slog.Logger
}

type Router struct {
	cfg       config.Config
	deps      Dependencies
	logger    *slog.Logger
	validator routers.Router
}

func NewRouter(cfg config.Config, deps Dependencies) (*Router, error) {
	validator, err := loadSpecRouter()
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		validator: validator,
	}, nil
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", rt.healthz)
	if rt.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.deps.Metrics.Handler())
	}
	if rt.deps.MCP != nil && rt.cfg.MCPEnabled {
		r.Handle("/mcp", rt.deps.MCP)
		r.Handle("/mcp/*", rt.deps.MCP)
	}

	r.Group(func(api chi.Router) {
		api.Use(
			func(next http.Handler) http.Handler {
				return rateLimitMiddleware(next, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.deps.Metrics, serviceName)
			},
			func(next http.Handler) http.Handler {
				return backpressureMiddleware(next, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
			},
			requestValidationMiddleware(rt.validator),
		)

		api.Post("/v1/cases", rt.submitCase)
		api.Get("/v1/cases", rt.listCases)
		api.Get("/v1/cases/export", rt.exportCases)
		api.Get("/v1/cases/{case_id}", rt.getCase)
		api.Delete("/v1/cases/{case_id}", rt.deleteCase)
	})

	var handler http.Handler = r
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware(serviceName, handler)
	}
	handler = recoverMiddleware(rt.logger, handler)
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	body := map[string]string{"error": message}
	if requestID := requestIDFromContext(r.Context()); requestID != "" {
		body["request_id"] = requestID
	}
	writeJSON(w, status, body)
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"operation", op,
			"status", status,
			"error", err,
		)
	}
	writeError(w, r, status, errorMessage(status, err))
}
