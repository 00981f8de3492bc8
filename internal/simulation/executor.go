// Package simulation runs a query through the persisted workflow graph and
// keeps the outcome of the most recent successful run.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Mike1ife/RAGentFlow/internal/graph"
	"github.com/Mike1ife/RAGentFlow/internal/model"
	"github.com/Mike1ife/RAGentFlow/internal/telemetry"
)

// ErrNoResult is returned by LastResult before any run has succeeded.
var ErrNoResult = errors.New("simulation: no result yet")

// GraphSource supplies the current graph.
type GraphSource interface {
	LoadGraph(ctx context.Context) (model.Graph, error)
}

// Retriever builds the knowledge-base context for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, []model.RetrievedChunk, error)
}

// Compiled is a query whose context has been retrieved and whose graph has
// been compiled, ready to run. It is not shared with other requests.
type Compiled struct {
	Query   string
	Context string
	Chunks  []model.RetrievedChunk

	workflow *graph.Workflow
}

// Graph returns the graph snapshot taken at compile time.
func (c *Compiled) Graph() model.Graph { return c.workflow.Graph() }

// Executor compiles and runs simulations. Only the last successful result
// is kept; concurrent runs race for that slot and the last to finish wins.
type Executor struct {
	graphs    GraphSource
	retriever Retriever
	deps      graph.Deps
	logger    *slog.Logger
	now       func() time.Time

	tracer      trace.Tracer
	runCounter  metric.Int64Counter
	chunkCounts metric.Int64Counter

	mu   sync.Mutex
	last *model.Result
}

// New creates an Executor. deps are the collaborators every compiled
// workflow calls.
func New(graphs GraphSource, retriever Retriever, deps graph.Deps, logger *slog.Logger) *Executor {
	e := &Executor{
		graphs:    graphs,
		retriever: retriever,
		deps:      deps,
		logger:    logger,
		now:       time.Now,
		tracer:    telemetry.Tracer("simulation"),
	}
	meter := telemetry.Meter("simulation")
	var err error
	if e.runCounter, err = meter.Int64Counter("ragentflow.simulation.runs",
		metric.WithDescription("Completed simulation runs by outcome")); err != nil {
		logger.Warn("simulation: create run counter", "error", err)
	}
	if e.chunkCounts, err = meter.Int64Counter("ragentflow.retrieval.chunks",
		metric.WithDescription("Chunks kept in run context")); err != nil {
		logger.Warn("simulation: create chunk counter", "error", err)
	}
	return e
}

// CompileGraph retrieves context for query and compiles the current graph.
// Nothing is executed.
func (e *Executor) CompileGraph(ctx context.Context, query string) (*Compiled, error) {
	ctx, span := e.tracer.Start(ctx, "simulation.compile")
	defer span.End()

	contextText, chunks, err := e.retriever.Retrieve(ctx, query)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("simulation: compile: %w", err)
	}
	if e.chunkCounts != nil {
		e.chunkCounts.Add(ctx, int64(len(chunks)))
	}

	g, err := e.graphs.LoadGraph(ctx)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("simulation: compile: load graph: %w", err)
	}
	w, err := graph.Compile(g, e.deps)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("simulation: compile: %w", err)
	}
	span.SetAttributes(
		attribute.Int("ragentflow.nodes", len(g.Nodes)),
		attribute.Int("ragentflow.chunks", len(chunks)),
	)
	return &Compiled{Query: query, Context: contextText, Chunks: chunks, workflow: w}, nil
}

// Run drives c from its entry node to termination and records the result
// as the last result. On failure the previous result is left in place.
func (e *Executor) Run(ctx context.Context, c *Compiled) (model.Result, error) {
	ctx, span := e.tracer.Start(ctx, "simulation.run")
	defer span.End()
	start := e.now()

	final, err := c.workflow.Run(ctx, graph.State{Query: c.Query, Context: c.Context}, e.stepHook)
	if err != nil {
		recordError(span, err)
		e.countRun(ctx, "failed")
		e.logger.Warn("simulation: run failed", "error", err, "steps", len(final.Traces))
		return model.Result{}, fmt.Errorf("simulation: run: %w", err)
	}

	res := model.Result{
		Query:       c.Query,
		Chunks:      c.Chunks,
		Context:     c.Context,
		Traces:      final.Traces,
		Graph:       c.workflow.Graph(),
		CompletedAt: e.now().UTC(),
	}
	e.mu.Lock()
	e.last = &res
	e.mu.Unlock()

	e.countRun(ctx, "succeeded")
	span.SetAttributes(attribute.Int("ragentflow.steps", len(res.Traces)))
	e.logger.Info("simulation: run completed",
		"steps", len(res.Traces),
		"chunks", len(res.Chunks),
		"duration_ms", e.now().Sub(start).Milliseconds())
	return res, nil
}

// Simulate compiles and runs query in one call.
func (e *Executor) Simulate(ctx context.Context, query string) (model.Result, error) {
	c, err := e.CompileGraph(ctx, query)
	if err != nil {
		e.countRun(ctx, "failed")
		return model.Result{}, err
	}
	return e.Run(ctx, c)
}

// LastResult returns the most recent successful result, or ErrNoResult.
func (e *Executor) LastResult() (model.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return model.Result{}, ErrNoResult
	}
	return *e.last, nil
}

func (e *Executor) stepHook(ctx context.Context, node string) (context.Context, func(error)) {
	ctx, span := e.tracer.Start(ctx, "simulation.step",
		trace.WithAttributes(attribute.String("ragentflow.node", node)))
	return ctx, func(err error) {
		if err != nil {
			recordError(span, err)
		}
		span.End()
	}
}

func (e *Executor) countRun(ctx context.Context, outcome string) {
	if e.runCounter == nil {
		return
	}
	e.runCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
