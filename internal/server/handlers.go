package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mike1ife/RAGentFlow/internal/auth"
	"github.com/Mike1ife/RAGentFlow/internal/graph"
	"github.com/Mike1ife/RAGentFlow/internal/ingest"
	"github.com/Mike1ife/RAGentFlow/internal/model"
	"github.com/Mike1ife/RAGentFlow/internal/prompt"
	"github.com/Mike1ife/RAGentFlow/internal/service/embedding"
	"github.com/Mike1ife/RAGentFlow/internal/service/llm"
	"github.com/Mike1ife/RAGentFlow/internal/simulation"
	"github.com/Mike1ife/RAGentFlow/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db        Pinger
	graph     GraphEditor
	validator Validator
	simulator Simulator
	library   Library
	ingester  Ingester
	prompts   Prompts
	embedder  embedding.Provider
	index     HealthChecker

	jwtMgr       *auth.JWTManager
	adminKeyHash string

	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	maxUploadBytes      int64
	openapiSpec         []byte
}

// NewHandlers creates Handlers from the server configuration.
func NewHandlers(cfg ServerConfig) *Handlers {
	maxBody := cfg.MaxRequestBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 20 << 20
	}
	return &Handlers{
		db:                  cfg.DB,
		graph:               cfg.Graph,
		validator:           cfg.Validator,
		simulator:           cfg.Simulator,
		library:             cfg.Library,
		ingester:            cfg.Ingester,
		prompts:             cfg.Prompts,
		embedder:            cfg.Embedder,
		index:               cfg.Index,
		jwtMgr:              cfg.JWTMgr,
		adminKeyHash:        cfg.AdminAPIKeyHash,
		logger:              cfg.Logger,
		startedAt:           time.Now(),
		version:             cfg.Version,
		maxRequestBodyBytes: maxBody,
		maxUploadBytes:      maxUpload,
		openapiSpec:         cfg.OpenAPISpec,
	}
}

// HandleAuthToken handles POST /auth/token.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	token, expiresAt, err := h.jwtMgr.Exchange(req.APIKey, h.adminKeyHash)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidAPIKey) {
			h.logger.Error("auth: exchange failed", "error", err)
		}
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{Token: token, ExpiresAt: expiresAt})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := model.HealthResponse{
		Status:   "healthy",
		Version:  h.version,
		Postgres: "connected",
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	}
	httpStatus := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		resp.Postgres = "disconnected"
		resp.Status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	// Qdrant is a mirror; losing it degrades search but not correctness.
	if h.index != nil {
		if err := h.index.Healthy(r.Context()); err == nil {
			resp.Qdrant = "connected"
		} else {
			resp.Qdrant = "disconnected"
			if resp.Status == "healthy" {
				resp.Status = "degraded"
			}
		}
	}

	writeJSON(w, r, httpStatus, resp)
}

// HandleOpenAPISpec handles GET /openapi.yaml.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// noResultMessage is shown when /simulation/result is read before any run.
const noResultMessage = "No simulation result yet."

// writeServiceError maps domain errors to HTTP statuses. Anything
// unrecognized is logged and reported as a 500 without details.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, simulation.ErrNoResult):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, noResultMessage)
	case errors.Is(err, graph.ErrNodeExists),
		errors.Is(err, graph.ErrEdgeExists),
		errors.Is(err, graph.ErrCycle),
		errors.Is(err, prompt.ErrPromptExists),
		errors.Is(err, ingest.ErrFileExists),
		errors.Is(err, storage.ErrConflict):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, err.Error())
	case errors.Is(err, graph.ErrNodeNotFound),
		errors.Is(err, graph.ErrEdgeNotFound),
		errors.Is(err, prompt.ErrPromptNotFound),
		errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, err.Error())
	case errors.Is(err, graph.ErrInvalidNode),
		errors.Is(err, graph.ErrInvalidEdge),
		errors.Is(err, graph.ErrNoEntry),
		errors.Is(err, prompt.ErrInvalidPrompt),
		errors.Is(err, prompt.ErrUnknownTemplate),
		errors.Is(err, ingest.ErrUnsupportedFile),
		errors.Is(err, ingest.ErrEmptyDocument):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, graph.ErrJudgment), errors.Is(err, llm.ErrNotConfigured):
		h.logger.Warn("upstream model failure", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusBadGateway, model.ErrCodeUpstream, err.Error())
	default:
		h.logger.Error("request failed", "error", err, "path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
	}
}
