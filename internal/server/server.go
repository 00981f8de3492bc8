// Package server implements the HTTP API for authoring and running the
// workflow graph.
package server

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Mike1ife/RAGentFlow/internal/auth"
	"github.com/Mike1ife/RAGentFlow/internal/ratelimit"
	"github.com/Mike1ife/RAGentFlow/internal/service/embedding"
)

// Server is the RAGentFlow HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): JWTMgr, Limiter, Index, MCPServer, UIFS,
// OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	DB        Pinger
	Graph     GraphEditor
	Validator Validator
	Simulator Simulator
	Library   Library
	Ingester  Ingester
	Prompts   Prompts
	Embedder  embedding.Provider
	Logger    *slog.Logger

	// Optional dependencies (nil = disabled).
	JWTMgr          *auth.JWTManager
	AdminAPIKeyHash string
	Limiter         ratelimit.Limiter
	Index           HealthChecker
	MCPServer       *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	MaxUploadBytes      int64
	CORSAllowedOrigins  []string

	// Optional embedded assets.
	UIFS        fs.FS  // Embedded UI filesystem (SPA).
	OpenAPISpec []byte // Embedded OpenAPI YAML.
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(cfg)

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	runRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc, cfg.Logger)
	authRL := ratelimit.Middleware(cfg.Limiter, func(r *http.Request) string {
		return "auth:" + ratelimit.IPKeyFunc(r)
	}, reqIDFunc, cfg.Logger)

	mux := http.NewServeMux()

	if cfg.JWTMgr != nil {
		mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))
	}

	// Graph authoring.
	mux.HandleFunc("GET /graph/list", h.HandleGraphList)
	mux.HandleFunc("GET /graph/export", h.HandleGraphExport)
	mux.HandleFunc("PUT /graph/entry/{name}", h.HandleSetEntry)
	mux.HandleFunc("POST /graph/agent", h.HandleAddAgent)
	mux.HandleFunc("PUT /graph/agent/{name}", h.HandleUpdateAgent)
	mux.HandleFunc("DELETE /graph/agent/{name}", h.HandleDeleteAgent)
	mux.HandleFunc("POST /graph/edge", h.HandleAddEdge)
	mux.HandleFunc("PUT /graph/edge", h.HandleUpdateEdge)
	mux.HandleFunc("DELETE /graph/edge/{src}/{dest}", h.HandleDeleteEdge)
	mux.HandleFunc("POST /graph/reset", h.HandleResetGraph)

	// Knowledge base.
	mux.HandleFunc("POST /file/upload", h.HandleUploadFile)
	mux.HandleFunc("DELETE /file/delete", h.HandleClearFiles)
	mux.HandleFunc("DELETE /file/delete/{name}", h.HandleDeleteFile)
	mux.HandleFunc("GET /file/list", h.HandleListFiles)
	mux.HandleFunc("GET /file/{name}/chunks", h.HandleFileChunks)
	mux.HandleFunc("POST /file/{name}/chunks", h.HandleScoredChunks)
	mux.HandleFunc("GET /file/{name}/chunks/{index}/similar", h.HandleSimilarChunks)

	// Prompts.
	mux.HandleFunc("GET /prompt/template/{kind}", h.HandlePromptTemplate)
	mux.HandleFunc("GET /prompt/list", h.HandleListPrompts)
	mux.HandleFunc("GET /prompt/list/name", h.HandleListPromptNames)
	mux.HandleFunc("POST /prompt", h.HandleCreatePrompt)
	mux.HandleFunc("PUT /prompt", h.HandleUpdatePrompt)
	mux.HandleFunc("DELETE /prompt/{name}", h.HandleDeletePrompt)

	// Simulation.
	mux.HandleFunc("GET /simulation/validate", h.HandleValidate)
	mux.Handle("POST /simulation/run", runRL(http.HandlerFunc(h.HandleRun)))
	mux.HandleFunc("GET /simulation/result", h.HandleLastResult)

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		// Tool calls share the per-IP budget of POST /simulation/run.
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer,
			mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
				return ratelimit.WithClientKey(ctx, ratelimit.IPKeyFunc(r))
			}),
		)
		mux.Handle("/mcp", mcpHTTP)
	}

	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Registered last so API routes take priority via longest match.
	if cfg.UIFS != nil {
		mux.Handle("/", newSPAHandler(cfg.UIFS))
		cfg.Logger.Info("ui enabled, serving SPA at /")
	}

	// Middleware chain (outermost executes first):
	// request ID → CORS → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = newHTTPMetrics(cfg.Logger).middleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = corsMiddleware(cfg.CORSAllowedOrigins, handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
