// Package ragentflow is the public API for embedding the RAGentFlow server.
//
// A graph of classifier, gatekeeper, scorer and responder agents routes each
// query to a responder that answers it from a retrieved knowledge base:
//
//	app, err := ragentflow.New(
//	    ragentflow.WithVersion(version),
//	    ragentflow.WithLogger(logger),
//	    ragentflow.WithCompleter(myCompleter{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The root package imports internal/*, but internal/* never imports the
// root package. Adapters for the public collaborator interfaces live here.
package ragentflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mike1ife/RAGentFlow/api"
	"github.com/Mike1ife/RAGentFlow/internal/auth"
	"github.com/Mike1ife/RAGentFlow/internal/config"
	"github.com/Mike1ife/RAGentFlow/internal/graph"
	"github.com/Mike1ife/RAGentFlow/internal/ingest"
	"github.com/Mike1ife/RAGentFlow/internal/mcp"
	"github.com/Mike1ife/RAGentFlow/internal/model"
	"github.com/Mike1ife/RAGentFlow/internal/prompt"
	"github.com/Mike1ife/RAGentFlow/internal/ratelimit"
	"github.com/Mike1ife/RAGentFlow/internal/retrieval"
	"github.com/Mike1ife/RAGentFlow/internal/search"
	"github.com/Mike1ife/RAGentFlow/internal/server"
	"github.com/Mike1ife/RAGentFlow/internal/service/embedding"
	"github.com/Mike1ife/RAGentFlow/internal/service/llm"
	"github.com/Mike1ife/RAGentFlow/internal/service/rerank"
	"github.com/Mike1ife/RAGentFlow/internal/simulation"
	"github.com/Mike1ife/RAGentFlow/internal/storage"
	"github.com/Mike1ife/RAGentFlow/internal/telemetry"
	"github.com/Mike1ife/RAGentFlow/migrations"
	"github.com/Mike1ife/RAGentFlow/ui"
)

// shutdownTimeout bounds the HTTP drain during Shutdown.
const shutdownTimeout = 15 * time.Second

// App is the RAGentFlow server lifecycle. Construct with New(), run with Run().
// The CLI also uses an App's services directly without starting the server.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	qdrantIndex  *search.QdrantIndex // nil when Qdrant is not configured
	limiter      ratelimit.Limiter
	graphs       *graph.Manager
	validator    *graph.Validator
	executor     *simulation.Executor
	ingester     *ingest.Ingester
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// loadConfig reads the environment (after an optional .env file) and
// applies option overrides.
func loadConfig(o resolvedOptions) (config.Config, error) {
	if err := config.LoadDotEnv(""); err != nil {
		o.logger.Warn("dotenv: ignored", "error", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	return cfg, nil
}

// Migrate applies the embedded migrations and returns. It needs only the
// database configuration.
func Migrate(ctx context.Context, opts ...Option) error {
	o := resolve(opts)
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	db, err := storage.New(ctx, cfg.DatabaseURL, o.logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

// New initialises RAGentFlow. It connects to the database, runs
// migrations, wires all subsystems, and returns a ready-to-run App.
// It does NOT accept HTTP connections; call Run().
func New(opts ...Option) (*App, error) {
	ctx := context.Background()
	o := resolve(opts)
	logger := o.logger

	cfg, err := loadConfig(o)
	if err != nil {
		return nil, err
	}

	logger.Info("ragentflow starting", "version", o.version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     o.version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// cleanup releases what has been opened so far when a later step fails.
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	cleanups = append(cleanups, func() { _ = otelShutdown(context.Background()) })

	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("storage: %w", err)
	}
	cleanups = append(cleanups, db.Close)

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		cleanup()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	// Connections opened before the vector extension existed never
	// registered pgvector types; drop them so new ones do.
	db.Pool().Reset()

	// Verify critical tables exist after migration. A missing pgvector
	// extension makes the documents migration fail and leaves no chunk table.
	var schemaOK bool
	if err := db.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'doc_chunks')`,
	).Scan(&schemaOK); err != nil {
		cleanup()
		return nil, fmt.Errorf("schema verification: %w", err)
	}
	if !schemaOK {
		cleanup()
		return nil, fmt.Errorf("critical table 'doc_chunks' does not exist after migration: check that the pgvector extension is available")
	}

	// Collaborators: external overrides take priority over auto-detection.
	var embedder embedding.Provider
	if o.embeddingProvider != nil {
		embedder = embedderAdapter{p: o.embeddingProvider}
	} else {
		embedder = newEmbeddingProvider(cfg, logger)
	}
	var completer llm.Completer
	if o.completer != nil {
		completer = completerAdapter{c: o.completer}
	} else {
		completer = newCompleter(cfg, logger)
	}
	var scorer rerank.Scorer
	if o.reranker != nil {
		scorer = o.reranker
	} else {
		scorer = newScorer(cfg, completer, logger)
	}

	// Qdrant mirror and ANN index (optional).
	var (
		qdrantIndex *search.QdrantIndex
		primary     search.Index
		mirror      ingest.Mirror
		indexHealth server.HealthChecker
	)
	if cfg.QdrantURL != "" {
		qdrantIndex, err = search.NewQdrantIndex(search.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, logger)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("qdrant: %w", err)
		}
		cleanups = append(cleanups, func() { _ = qdrantIndex.Close() })
		if err := qdrantIndex.EnsureCollection(ctx); err != nil {
			cleanup()
			return nil, fmt.Errorf("qdrant ensure collection: %w", err)
		}
		primary, mirror, indexHealth = qdrantIndex, qdrantIndex, qdrantIndex
		logger.Info("qdrant: enabled", "collection", cfg.QdrantCollection)
	} else {
		logger.Info("qdrant: disabled (no QDRANT_URL)")
	}

	// Document pipeline.
	tok, err := ingest.NewTiktoken(cfg.TokenizerEncoding)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("tokenizer: %w", err)
	}
	splitter, err := ingest.NewSplitter(tok, cfg.ChunkTokens, cfg.ChunkOverlap)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("splitter: %w", err)
	}
	ingester := ingest.New(db, embedder, splitter, mirror, logger)

	// Prompt templates.
	catalog, err := prompt.LoadCatalog()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("prompt catalog: %w", err)
	}
	prompts := prompt.NewManager(catalog, db, logger)

	// Graph, validation and simulation.
	graphs := graph.NewManager(db, logger)
	validator := graph.NewValidator(db, db)
	retriever := retrieval.New(embedder, search.NewFallback(primary, db, logger), scorer, logger)
	executor := simulation.New(db, retriever, graph.Deps{
		Completer: completer,
		Prompts:   prompts,
		Options:   llm.Options{Temperature: cfg.LLMTemperature, MaxTokens: cfg.LLMMaxTokens},
	}, logger)

	// Rate limiter.
	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}
	cleanups = append(cleanups, func() { _ = limiter.Close() })

	mcpSrv := mcp.New(graphs, validator, executor, limiter, logger, o.version)

	// Operator auth (optional).
	var jwtMgr *auth.JWTManager
	if cfg.AuthEnabled() {
		jwtMgr, err = auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration, logger)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("auth: %w", err)
		}
		logger.Info("auth: enabled")
	} else {
		logger.Warn("auth: disabled (no RAGENTFLOW_ADMIN_API_KEY_HASH); every route is public")
	}

	uiFS, err := ui.DistFS()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("ui: %w", err)
	}
	if uiFS != nil {
		logger.Info("ui: embedded SPA loaded")
	}

	srv := server.New(server.ServerConfig{
		DB:                  db,
		Graph:               graphs,
		Validator:           validator,
		Simulator:           executor,
		Library:             db,
		Ingester:            ingester,
		Prompts:             prompts,
		Embedder:            embedder,
		Logger:              logger,
		JWTMgr:              jwtMgr,
		AdminAPIKeyHash:     cfg.AdminAPIKeyHash,
		Limiter:             limiter,
		Index:               indexHealth,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             o.version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		MaxUploadBytes:      cfg.MaxUploadBytes,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		UIFS:                uiFS,
		OpenAPISpec:         api.OpenAPISpec,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		qdrantIndex:  qdrantIndex,
		limiter:      limiter,
		graphs:       graphs,
		validator:    validator,
		executor:     executor,
		ingester:     ingester,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      o.version,
	}, nil
}

// Run starts the HTTP server, then blocks until ctx is cancelled or a fatal
// server error occurs. On return, Close is called automatically.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		a.Close()
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests and then releases every resource.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("ragentflow shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	a.Close()
	a.logger.Info("ragentflow stopped")
	return nil
}

// Close releases the database pool, the Qdrant connection, the rate
// limiter and the telemetry providers without touching the HTTP server.
// CLI commands that never call Run use it directly.
func (a *App) Close() {
	_ = a.limiter.Close()
	if a.qdrantIndex != nil {
		_ = a.qdrantIndex.Close()
	}
	_ = a.otelShutdown(context.Background())
	a.db.Close()
}

// Validate reports whether the current graph is ready to simulate.
func (a *App) Validate(ctx context.Context) (model.Validation, error) {
	return a.validator.Validate(ctx)
}

// Simulate runs query through the current graph.
func (a *App) Simulate(ctx context.Context, query string) (model.Result, error) {
	req := model.QueryRequest{Query: query}
	if err := req.Validate(); err != nil {
		return model.Result{}, err
	}
	return a.executor.Simulate(ctx, query)
}

// ExportGraph renders the current graph as Mermaid or JSON.
func (a *App) ExportGraph(ctx context.Context, format string) ([]byte, error) {
	g, err := a.graphs.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return graph.Export(g, format)
}

// ResetGraph replaces the graph with the default example.
func (a *App) ResetGraph(ctx context.Context) error {
	return a.graphs.Reset(ctx)
}

// Ingest adds a file to the knowledge base and returns its chunk count.
func (a *App) Ingest(ctx context.Context, fileName string, data []byte) (int, error) {
	return a.ingester.Ingest(ctx, fileName, data)
}

// ── Provider selection ────────────────────────────────────────────────────────

func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimensions

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when RAGENTFLOW_EMBEDDING_PROVIDER=openai")
			return embedding.NewNoopProvider(dims)
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		return embedding.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.EmbeddingModel, "dimensions", dims)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.EmbeddingModel, dims)
	case "noop":
		logger.Info("embedding provider: noop (retrieval returns arbitrary chunks)")
		return embedding.NewNoopProvider(dims)
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.EmbeddingModel, "dimensions", dims)
			return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.EmbeddingModel, dims)
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModel, "dimensions", dims)
			return embedding.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
		}
		logger.Warn("no embedding provider available, using noop (retrieval returns arbitrary chunks)")
		return embedding.NewNoopProvider(dims)
	}
}

func newCompleter(cfg config.Config, logger *slog.Logger) llm.Completer {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when RAGENTFLOW_LLM_PROVIDER=openai")
			return llm.NoopCompleter{}
		}
		logger.Info("completion provider: openai", "model", cfg.LLMModel)
		return llm.NewOpenAICompleter(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.LLMModel, cfg.LLMTimeout)
	case "ollama":
		logger.Info("completion provider: ollama", "url", cfg.OllamaURL, "model", cfg.LLMModel)
		return llm.NewOllamaCompleter(cfg.OllamaURL, cfg.LLMModel, cfg.LLMTimeout)
	case "noop":
		logger.Info("completion provider: noop (simulation disabled)")
		return llm.NoopCompleter{}
	default:
		if cfg.OpenAIAPIKey != "" {
			logger.Info("completion provider: openai (auto-detected)", "model", cfg.LLMModel)
			return llm.NewOpenAICompleter(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.LLMModel, cfg.LLMTimeout)
		}
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("completion provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.LLMModel)
			return llm.NewOllamaCompleter(cfg.OllamaURL, cfg.LLMModel, cfg.LLMTimeout)
		}
		logger.Warn("no completion provider available, using noop (simulation disabled)")
		return llm.NoopCompleter{}
	}
}

func newScorer(cfg config.Config, completer llm.Completer, logger *slog.Logger) rerank.Scorer {
	_, noLLM := completer.(llm.NoopCompleter)

	switch cfg.RerankProvider {
	case "http":
		if cfg.RerankURL == "" {
			logger.Error("RAGENTFLOW_RERANK_URL required when RAGENTFLOW_RERANK_PROVIDER=http")
			return rerank.NoopScorer{}
		}
		logger.Info("rerank provider: http", "url", cfg.RerankURL, "model", cfg.RerankModel)
		return rerank.NewHTTPScorer(cfg.RerankURL, cfg.RerankModel, cfg.LLMTimeout)
	case "llm":
		logger.Info("rerank provider: llm")
		return rerank.NewLLMScorer(completer, cfg.LLMMaxTokens)
	case "noop":
		logger.Info("rerank provider: noop (vector order)")
		return rerank.NoopScorer{}
	default:
		if cfg.RerankURL != "" {
			logger.Info("rerank provider: http (auto-detected)", "url", cfg.RerankURL)
			return rerank.NewHTTPScorer(cfg.RerankURL, cfg.RerankModel, cfg.LLMTimeout)
		}
		if !noLLM {
			logger.Info("rerank provider: llm (auto-detected)")
			return rerank.NewLLMScorer(completer, cfg.LLMMaxTokens)
		}
		logger.Info("rerank provider: noop (vector order)")
		return rerank.NoopScorer{}
	}
}

func ollamaReachable(baseURL string) bool {
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(c, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
