package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mike1ife/RAGentFlow/internal/auth"
	"github.com/Mike1ife/RAGentFlow/internal/graph"
	"github.com/Mike1ife/RAGentFlow/internal/ingest"
	"github.com/Mike1ife/RAGentFlow/internal/model"
	"github.com/Mike1ife/RAGentFlow/internal/prompt"
	"github.com/Mike1ife/RAGentFlow/internal/ratelimit"
	"github.com/Mike1ife/RAGentFlow/internal/retrieval"
	"github.com/Mike1ife/RAGentFlow/internal/server"
	"github.com/Mike1ife/RAGentFlow/internal/simulation"
	"github.com/Mike1ife/RAGentFlow/internal/storage"
	"github.com/Mike1ife/RAGentFlow/internal/testutil"
)

// --- fakes ---

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type healthChecker struct{ err error }

func (h healthChecker) Healthy(context.Context) error { return h.err }

type memPromptStore struct {
	mu      sync.Mutex
	prompts map[string]model.Prompt
}

func (s *memPromptStore) ListPrompts(context.Context) ([]model.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Prompt, 0, len(s.prompts))
	for _, p := range s.prompts {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b model.Prompt) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *memPromptStore) GetPrompt(_ context.Context, name string) (model.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prompts[name]
	if !ok {
		return model.Prompt{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *memPromptStore) InsertPrompt(_ context.Context, p model.Prompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prompts[p.Name]; ok {
		return storage.ErrConflict
	}
	s.prompts[p.Name] = p
	return nil
}

func (s *memPromptStore) UpdatePrompt(_ context.Context, p model.Prompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prompts[p.Name]; !ok {
		return storage.ErrNotFound
	}
	s.prompts[p.Name] = p
	return nil
}

func (s *memPromptStore) DeletePrompt(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prompts[name]; !ok {
		return storage.ErrNotFound
	}
	delete(s.prompts, name)
	return nil
}

type fakeLibrary struct {
	files  []model.File
	chunks map[string][]model.Chunk
}

func (l *fakeLibrary) ListFiles(context.Context) ([]model.File, error) { return l.files, nil }

func (l *fakeLibrary) ChunksOfFile(_ context.Context, name string) ([]model.Chunk, error) {
	return l.chunks[name], nil
}

func (l *fakeLibrary) ChunksWithScore(_ context.Context, name string, _ pgvector.Vector) ([]model.Chunk, error) {
	out := slices.Clone(l.chunks[name])
	for i := range out {
		score := 1 - float64(i)/10
		out[i].Score = &score
	}
	return out, nil
}

func (l *fakeLibrary) SimilarChunks(_ context.Context, name string, index, limit int) ([]model.Chunk, error) {
	var out []model.Chunk
	found := false
	for _, c := range l.chunks[name] {
		if c.Index == index {
			found = true
			continue
		}
		if len(out) < limit {
			out = append(out, c)
		}
	}
	if !found {
		return nil, storage.ErrNotFound
	}
	return out, nil
}

type fakeIngester struct {
	mu      sync.Mutex
	files   map[string][]byte
	cleared bool
}

func (f *fakeIngester) Ingest(_ context.Context, name string, data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !strings.HasSuffix(name, ".txt") {
		return 0, ingest.ErrUnsupportedFile
	}
	if _, ok := f.files[name]; ok {
		return 0, ingest.ErrFileExists
	}
	f.files[name] = data
	return len(strings.Fields(string(data))), nil
}

func (f *fakeIngester) DeleteFile(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, name)
	return nil
}

func (f *fakeIngester) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = map[string][]byte{}
	f.cleared = true
	return nil
}

// --- harness ---

type harness struct {
	handler  http.Handler
	store    *testutil.MemGraphStore
	ingester *fakeIngester
}

func newHarness(t *testing.T, mutate ...func(*server.ServerConfig)) *harness {
	t.Helper()
	logger := testutil.TestLogger()

	catalog, err := prompt.LoadCatalog()
	require.NoError(t, err)
	prompts := prompt.NewManager(catalog, &memPromptStore{prompts: map[string]model.Prompt{}}, logger)
	for _, name := range []string{graph.DefaultBillingPrompt, graph.DefaultTechPrompt} {
		require.NoError(t, prompts.Create(context.Background(), model.Prompt{
			Name:          name,
			Template:      model.TemplateRaw,
			VariableValue: map[string]string{"raw_system_prompt": "You help with " + name + "."},
		}))
	}

	store := testutil.NewMemGraphStore(graph.DefaultGraph())
	embedder := testutil.FakeEmbedder{Dims: 8}
	retriever := retrieval.New(embedder, testutil.FakeChunkIndex{Hits: []model.ChunkHit{
		{FileName: "faq.txt", ChunkIndex: 0, Content: "Invoices are sent monthly.", Distance: 0.1},
	}}, testutil.FakeScorer{}, logger)
	completer := testutil.JudgmentByKeyword(map[string]string{"invoice": `"billing"`, "gibberish": `42`})
	executor := simulation.New(store, retriever, graph.Deps{Completer: completer, Prompts: prompts}, logger)

	ing := &fakeIngester{files: map[string][]byte{}}
	cfg := server.ServerConfig{
		DB:        pinger{},
		Graph:     graph.NewManager(store, logger),
		Validator: graph.NewValidator(store, testutil.ChunkCount(1)),
		Simulator: executor,
		Library: &fakeLibrary{
			files: []model.File{{Name: "faq.txt", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}},
			chunks: map[string][]model.Chunk{"faq.txt": {
				{Index: 0, Content: "Invoices are sent monthly."},
				{Index: 1, Content: "Refunds take five days."},
				{Index: 2, Content: "Reset your password from settings."},
			}},
		},
		Ingester:            ing,
		Prompts:             prompts,
		Embedder:            embedder,
		Logger:              logger,
		Version:             "test",
		MaxRequestBodyBytes: 4096,
		MaxUploadBytes:      1 << 16,
		CORSAllowedOrigins:  []string{"http://localhost:5173"},
		OpenAPISpec:         []byte("openapi: 3.1.0\n"),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return &harness{handler: server.New(cfg).Handler(), store: store, ingester: ing}
}

func (h *harness) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data T                  `json:"data"`
		Meta model.ResponseMeta `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env), rec.Body.String())
	assert.NotEmpty(t, env.Meta.RequestID)
	return env.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.ErrorDetail {
	t.Helper()
	var env model.APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error
}

// --- tests ---

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeData[model.HealthResponse](t, rec)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "test", health.Version)
	assert.Empty(t, health.Qdrant)

	h = newHarness(t, func(c *server.ServerConfig) { c.Index = healthChecker{err: errors.New("down")} })
	health = decodeData[model.HealthResponse](t, h.do(t, http.MethodGet, "/health", ""))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "disconnected", health.Qdrant)

	h = newHarness(t, func(c *server.ServerConfig) { c.DB = pinger{err: errors.New("down")} })
	rec = h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health", "", "X-Request-ID", "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = h.do(t, http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCORS(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodOptions, "/graph/agent", "", "Origin", "http://localhost:5173")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")

	rec = h.do(t, http.MethodGet, "/graph/list", "", "Origin", "http://evil.example")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGraphAuthoring(t *testing.T) {
	h := newHarness(t)

	g := decodeData[model.Graph](t, h.do(t, http.MethodGet, "/graph/list", ""))
	assert.Equal(t, graph.DefaultEntry, g.EntryNode)
	assert.Len(t, g.Nodes, 3)

	rec := h.do(t, http.MethodPost, "/graph/agent",
		`{"name":"urgency","agentType":"scorer","outputField":"urgency","decisionConfig":{"instruction":"Rate urgency 1-10"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/graph/agent", `{"name":"urgency","agentType":"responder"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, model.ErrCodeConflict, decodeError(t, rec).Code)

	rec = h.do(t, http.MethodPost, "/graph/agent", `{"name":"bad","agentType":"classifier","outputField":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/graph/edge",
		`{"srcNode":"urgency","destNode":"respond_tech","condition":{"operator":"gt","value":5}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/graph/edge", `{"srcNode":"urgency","destNode":"respond_tech","condition":null}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPut, "/graph/edge",
		`{"srcNode":"urgency","destNode":"respond_tech","condition":{"operator":"gte","value":7}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPut, "/graph/entry/urgency", "")
	require.Equal(t, http.StatusOK, rec.Code)
	g = decodeData[model.Graph](t, h.do(t, http.MethodGet, "/graph/list", ""))
	assert.Equal(t, "urgency", g.EntryNode)
	require.Len(t, g.Edges["urgency"], 1)
	assert.Equal(t, model.OpGte, g.Edges["urgency"][0].Condition.Operator)

	rec = h.do(t, http.MethodDelete, "/graph/edge/urgency/respond_tech", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodDelete, "/graph/edge/urgency/respond_tech", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodDelete, "/graph/agent/urgency", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodPut, "/graph/entry/urgency", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/graph/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	g = decodeData[model.Graph](t, rec)
	assert.Equal(t, graph.DefaultEntry, g.EntryNode)
}

func TestGraphEdgeCycle(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/graph/agent",
		`{"name":"gate","agentType":"gatekeeper","outputField":"ok","decisionConfig":{"question":"Is it ok?"}}`).Code)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/graph/edge",
		`{"srcNode":"gate","destNode":"classify","condition":{"operator":"eq","value":true}}`).Code)

	rec := h.do(t, http.MethodPost, "/graph/edge", `{"srcNode":"classify","destNode":"gate","condition":{"operator":"eq","value":"billing"}}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "cycle")
}

func TestGraphExport(t *testing.T) {
	h := newHarness(t)

	out := decodeData[server.GraphExport](t, h.do(t, http.MethodGet, "/graph/export", ""))
	assert.Equal(t, "mermaid", out.Format)
	assert.True(t, strings.HasPrefix(out.Content, "flowchart TD"))

	out = decodeData[server.GraphExport](t, h.do(t, http.MethodGet, "/graph/export?format=json", ""))
	var g model.Graph
	require.NoError(t, json.Unmarshal([]byte(out.Content), &g))
	assert.Equal(t, graph.DefaultEntry, g.EntryNode)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/graph/export?format=dot", "").Code)
}

func TestDecodeRejections(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/graph/agent", `{"name":"x","agentType":"responder","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrCodeInvalidInput, decodeError(t, rec).Code)

	rec = h.do(t, http.MethodPost, "/graph/agent", `{"name":"x","agentType":"responder"} {}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/simulation/run", `{"query":"`+strings.Repeat("a", 5000)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSimulation(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/simulation/result", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No simulation result yet.", decodeError(t, rec).Message)

	report := decodeData[model.Validation](t, h.do(t, http.MethodGet, "/simulation/validate", ""))
	assert.True(t, report.CanProceed)

	rec = h.do(t, http.MethodPost, "/simulation/run", `{"query":"my invoice is wrong"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var env struct {
		Data struct {
			Query  string                 `json:"query"`
			Chunks []model.RetrievedChunk `json:"chunks"`
			Traces []map[string]any       `json:"traces"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, "my invoice is wrong", env.Data.Query)
	require.Len(t, env.Data.Chunks, 1)
	require.Len(t, env.Data.Traces, 2)
	assert.Equal(t, graph.DefaultBillingResponder, env.Data.Traces[0]["nextNode"])
	assert.Equal(t, graph.DefaultBillingResponder, env.Data.Traces[1]["agent"])

	rec = h.do(t, http.MethodGet, "/simulation/result", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/simulation/run", `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSimulation_MalformedJudgment(t *testing.T) {
	h := newHarness(t)
	// The classifier answers with a number instead of a label.
	rec := h.do(t, http.MethodPost, "/simulation/run", `{"query":"gibberish"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, model.ErrCodeUpstream, decodeError(t, rec).Code)

	rec = h.do(t, http.MethodPost, "/simulation/run", `{"query":"hello there"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code, "completer failure")

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/simulation/result", "").Code)
}

func TestSimulation_NoEntry(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.ReplaceGraph(context.Background(), model.NewGraph()))
	rec := h.do(t, http.MethodPost, "/simulation/run", `{"query":"my invoice"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "no entry node")
}

func TestFiles(t *testing.T) {
	h := newHarness(t)

	files := decodeData[[]model.File](t, h.do(t, http.MethodGet, "/file/list", ""))
	require.Len(t, files, 1)
	assert.Equal(t, "faq.txt", files[0].Name)

	chunks := decodeData[[]model.Chunk](t, h.do(t, http.MethodGet, "/file/faq.txt/chunks", ""))
	assert.Len(t, chunks, 3)

	chunks = decodeData[[]model.Chunk](t, h.do(t, http.MethodPost, "/file/faq.txt/chunks", `{"query":"refund"}`))
	require.Len(t, chunks, 3)
	require.NotNil(t, chunks[0].Score)
	assert.Equal(t, 1.0, *chunks[0].Score)

	chunks = decodeData[[]model.Chunk](t, h.do(t, http.MethodGet, "/file/faq.txt/chunks/1/similar", ""))
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.NotEqual(t, 1, c.Index)
	}

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/file/faq.txt/chunks/9/similar", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/file/faq.txt/chunks/x/similar", "").Code)

	empty := decodeData[[]model.Chunk](t, h.do(t, http.MethodGet, "/file/none.txt/chunks", ""))
	assert.Empty(t, empty)
}

func upload(t *testing.T, h *harness, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/file/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestFileUploadAndDelete(t *testing.T) {
	h := newHarness(t)

	rec := upload(t, h, "notes.txt", "one two three")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeData[server.UploadResponse](t, rec)
	assert.Equal(t, server.UploadResponse{FileName: "notes.txt", Chunks: 3}, resp)

	assert.Equal(t, http.StatusConflict, upload(t, h, "notes.txt", "again").Code)
	assert.Equal(t, http.StatusBadRequest, upload(t, h, "image.png", "bytes").Code)

	rec = upload(t, h, "../../etc/passwd.txt", "x")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "passwd.txt", decodeData[server.UploadResponse](t, rec).FileName)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/file/upload", `{}`).Code)

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodDelete, "/file/delete/notes.txt", "").Code)
	assert.NotContains(t, h.ingester.files, "notes.txt")

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodDelete, "/file/delete", "").Code)
	assert.True(t, h.ingester.cleared)
}

func TestFileUploadTooLarge(t *testing.T) {
	h := newHarness(t, func(c *server.ServerConfig) { c.MaxUploadBytes = 64 })
	rec := upload(t, h, "big.txt", strings.Repeat("word ", 100))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPrompts(t *testing.T) {
	h := newHarness(t)

	tmpl := decodeData[model.PromptTemplate](t, h.do(t, http.MethodGet, "/prompt/template/guided_template", ""))
	assert.ElementsMatch(t, []string{"persona", "goal", "style"}, tmpl.VariableNames())
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/prompt/template/nope", "").Code)

	body := `{"name":"friendly","template":"guided_template","variableValue":{"persona":"a tutor","goal":"teach","style":"warm"},"useContext":true}`
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/prompt", body).Code)
	assert.Equal(t, http.StatusConflict, h.do(t, http.MethodPost, "/prompt", body).Code)

	bad := `{"name":"broken","template":"guided_template","variableValue":{"persona":"x"},"useContext":false}`
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/prompt", bad).Code)

	names := decodeData[[]string](t, h.do(t, http.MethodGet, "/prompt/list/name", ""))
	assert.Equal(t, []string{graph.DefaultBillingPrompt, "friendly", graph.DefaultTechPrompt}, names)

	update := `{"name":"friendly","variableValue":{"persona":"a coach","goal":"teach","style":"brief"},"useContext":false}`
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPut, "/prompt", update).Code)

	prompts := decodeData[[]model.Prompt](t, h.do(t, http.MethodGet, "/prompt/list", ""))
	idx := slices.IndexFunc(prompts, func(p model.Prompt) bool { return p.Name == "friendly" })
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "a coach", prompts[idx].VariableValue["persona"])
	assert.False(t, prompts[idx].UseContext)

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodDelete, "/prompt/friendly", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, "/prompt/friendly", "").Code)
}

func TestOpenAPISpec(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
}

func TestAuth(t *testing.T) {
	jwtMgr, err := auth.NewJWTManager("", "", time.Hour, testutil.TestLogger())
	require.NoError(t, err)
	hash, err := auth.HashAPIKey("admin-key")
	require.NoError(t, err)
	h := newHarness(t, func(c *server.ServerConfig) {
		c.JWTMgr = jwtMgr
		c.AdminAPIKeyHash = hash
	})

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/graph/list", "").Code, "reads stay public")

	rec := h.do(t, http.MethodPost, "/graph/reset", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, model.ErrCodeUnauthorized, decodeError(t, rec).Code)

	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodPost, "/auth/token", `{"apiKey":"wrong"}`).Code)

	rec = h.do(t, http.MethodPost, "/auth/token", `{"apiKey":"admin-key"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	tok := decodeData[model.AuthTokenResponse](t, rec)
	require.NotEmpty(t, tok.Token)

	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodPost, "/graph/reset", "", "Authorization", "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodPost, "/graph/reset", "", "Authorization", "Bearer nope").Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/graph/reset", "", "Authorization", "Bearer "+tok.Token).Code)
}

func TestAuthDisabledHidesTokenRoute(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPost, "/auth/token", `{"apiKey":"x"}`).Code)
}

func TestRunIsRateLimited(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(0.001, 1)
	t.Cleanup(func() { _ = limiter.Close() })
	h := newHarness(t, func(c *server.ServerConfig) { c.Limiter = limiter })

	rec := h.do(t, http.MethodPost, "/simulation/run", `{"query":"my invoice"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/simulation/run", `{"query":"my invoice"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, model.ErrCodeRateLimited, decodeError(t, rec).Code)

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/graph/list", "").Code, "other routes are not limited")
}
