// Package ingest turns uploaded documents into embedded knowledge-base
// chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mike1ife/RAGentFlow/internal/search"
	"github.com/Mike1ife/RAGentFlow/internal/service/embedding"
	"github.com/Mike1ife/RAGentFlow/internal/storage"
)

var (
	ErrFileExists      = errors.New("ingest: file already exists")
	ErrUnsupportedFile = errors.New("ingest: unsupported file type")
	ErrEmptyDocument   = errors.New("ingest: document has no text")
)

// embedBatchSize bounds the texts sent per embedding request.
const embedBatchSize = 64

// ChunkStore persists chunks. storage.DB implements it.
type ChunkStore interface {
	FileExists(ctx context.Context, fileName string) (bool, error)
	InsertChunks(ctx context.Context, fileName string, chunks []storage.ChunkInput) error
	DeleteFile(ctx context.Context, fileName string) error
	ClearFiles(ctx context.Context) error
}

// Mirror receives a copy of every chunk write. search.QdrantIndex
// implements it.
type Mirror interface {
	Upsert(ctx context.Context, points []search.Point) error
	DeleteFile(ctx context.Context, fileName string) error
	Clear(ctx context.Context) error
}

// Ingester runs the document pipeline: extract, split, embed, store.
type Ingester struct {
	store    ChunkStore
	embedder embedding.Provider
	splitter *Splitter
	mirror   Mirror
	logger   *slog.Logger
}

// New creates an Ingester. mirror may be nil.
func New(store ChunkStore, embedder embedding.Provider, splitter *Splitter, mirror Mirror, logger *slog.Logger) *Ingester {
	return &Ingester{store: store, embedder: embedder, splitter: splitter, mirror: mirror, logger: logger}
}

// Ingest stores fileName's chunks and returns how many were written. All
// chunks of a file are written in one transaction. Mirror failures are
// logged; Postgres stays authoritative.
func (in *Ingester) Ingest(ctx context.Context, fileName string, data []byte) (int, error) {
	start := time.Now()
	exists, err := in.store.FileExists(ctx, fileName)
	if err != nil {
		return 0, fmt.Errorf("ingest: %w", err)
	}
	if exists {
		return 0, fmt.Errorf("%w: %q", ErrFileExists, fileName)
	}

	text, err := Extract(ctx, fileName, data)
	if err != nil {
		return 0, err
	}
	chunks := in.splitter.Split(text)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: %q", ErrEmptyDocument, fileName)
	}

	inputs := make([]storage.ChunkInput, 0, len(chunks))
	for lo := 0; lo < len(chunks); lo += embedBatchSize {
		hi := min(lo+embedBatchSize, len(chunks))
		vecs, err := in.embedder.EmbedBatch(ctx, chunks[lo:hi])
		if err != nil {
			return 0, fmt.Errorf("ingest: embed chunks: %w", err)
		}
		for i, v := range vecs {
			inputs = append(inputs, storage.ChunkInput{Content: chunks[lo+i], Embedding: v})
		}
	}

	if err := in.store.InsertChunks(ctx, fileName, inputs); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return 0, fmt.Errorf("%w: %q", ErrFileExists, fileName)
		}
		return 0, fmt.Errorf("ingest: %w", err)
	}

	if in.mirror != nil {
		points := make([]search.Point, len(inputs))
		for i, c := range inputs {
			points[i] = search.Point{FileName: fileName, ChunkIndex: i, Content: c.Content, Embedding: c.Embedding.Slice()}
		}
		if err := in.mirror.Upsert(ctx, points); err != nil {
			in.logger.Warn("ingest: mirror upsert failed", "file", fileName, "error", err)
		}
	}

	in.logger.Info("ingest: file indexed",
		"file", fileName,
		"chunks", len(inputs),
		"duration_ms", time.Since(start).Milliseconds())
	return len(inputs), nil
}

// IngestPaths ingests local files, at most two at a time. It stops at the
// first failure.
func (in *Ingester) IngestPaths(ctx context.Context, paths []string) (map[string]int, error) {
	counts := make([]int, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for i, p := range paths {
		g.Go(func() error {
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("ingest: read %s: %w", p, err)
			}
			n, err := in.Ingest(gctx, filepath.Base(p), data)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(paths))
	for i, p := range paths {
		out[filepath.Base(p)] = counts[i]
	}
	return out, nil
}

// DeleteFile removes every chunk of fileName. A missing file returns
// storage.ErrNotFound.
func (in *Ingester) DeleteFile(ctx context.Context, fileName string) error {
	if err := in.store.DeleteFile(ctx, fileName); err != nil {
		return fmt.Errorf("ingest: delete %q: %w", fileName, err)
	}
	if in.mirror != nil {
		if err := in.mirror.DeleteFile(ctx, fileName); err != nil {
			in.logger.Warn("ingest: mirror delete failed", "file", fileName, "error", err)
		}
	}
	return nil
}

// Clear removes every file.
func (in *Ingester) Clear(ctx context.Context) error {
	if err := in.store.ClearFiles(ctx); err != nil {
		return fmt.Errorf("ingest: clear: %w", err)
	}
	if in.mirror != nil {
		if err := in.mirror.Clear(ctx); err != nil {
			in.logger.Warn("ingest: mirror clear failed", "error", err)
		}
	}
	return nil
}
