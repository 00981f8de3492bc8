package storage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/Mike1ife/RAGentFlow/internal/model"
)

// ChunkInput is one chunk to be stored for a file.
type ChunkInput struct {
	Content   string
	Embedding pgvector.Vector
}

// CountChunks returns the number of indexed chunks across all files.
func (db *DB) CountChunks(ctx context.Context) (int, error) {
	var n int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM doc_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count chunks: %w", err)
	}
	return n, nil
}

// FileExists reports whether any chunk belongs to fileName.
func (db *DB) FileExists(ctx context.Context, fileName string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM doc_chunks WHERE file_name = $1)`, fileName,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: file exists: %w", err)
	}
	return exists, nil
}

// InsertChunks writes all chunks of a file in one transaction using COPY.
// chunk_index follows the slice order. A file that already has chunks
// returns ErrConflict.
func (db *DB) InsertChunks(ctx context.Context, fileName string, chunks []ChunkInput) error {
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM doc_chunks WHERE file_name = $1)`, fileName,
		).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrConflict
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"doc_chunks"},
			[]string{"file_name", "chunk_index", "content", "embedding"},
			pgx.CopyFromSlice(len(chunks), func(i int) ([]any, error) {
				return []any{fileName, i, chunks[i].Content, chunks[i].Embedding}, nil
			}),
		)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrConflict) || isUniqueViolation(err) {
			return fmt.Errorf("storage: insert chunks of %q: %w", fileName, ErrConflict)
		}
		return fmt.Errorf("storage: insert chunks: %w", err)
	}
	return nil
}

// DeleteFile deletes every chunk of fileName.
func (db *DB) DeleteFile(ctx context.Context, fileName string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM doc_chunks WHERE file_name = $1`, fileName)
	if err != nil {
		return fmt.Errorf("storage: delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearFiles deletes every chunk of every file.
func (db *DB) ClearFiles(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, `TRUNCATE TABLE doc_chunks`); err != nil {
		return fmt.Errorf("storage: clear files: %w", err)
	}
	return nil
}

// ListFiles returns one entry per file, newest first.
func (db *DB) ListFiles(ctx context.Context) ([]model.File, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT file_name, MIN(created_at) AS first_chunk_time
		FROM doc_chunks
		GROUP BY file_name
		ORDER BY first_chunk_time DESC, file_name`)
	if err != nil {
		return nil, fmt.Errorf("storage: list files: %w", err)
	}
	defer rows.Close()

	files := []model.File{}
	for rows.Next() {
		var f model.File
		if err := rows.Scan(&f.Name, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// ChunksOfFile returns a file's chunks ordered by index.
func (db *DB) ChunksOfFile(ctx context.Context, fileName string) ([]model.Chunk, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT chunk_index, content, embedding
		FROM doc_chunks
		WHERE file_name = $1
		ORDER BY chunk_index`, fileName)
	if err != nil {
		return nil, fmt.Errorf("storage: chunks of file: %w", err)
	}
	return collectChunks(rows, false)
}

// ChunksWithScore returns a file's chunks ranked by cosine similarity to vec,
// with the score rounded to two decimals.
func (db *DB) ChunksWithScore(ctx context.Context, fileName string, vec pgvector.Vector) ([]model.Chunk, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT chunk_index, content, embedding, 1 - (embedding <=> $1) AS score
		FROM doc_chunks
		WHERE file_name = $2
		ORDER BY score DESC, chunk_index`, vec, fileName)
	if err != nil {
		return nil, fmt.Errorf("storage: chunks with score: %w", err)
	}
	return collectChunks(rows, true)
}

// SimilarChunks returns up to limit chunks of the same file most similar to
// chunk index, excluding that chunk. ErrNotFound if the chunk does not exist.
func (db *DB) SimilarChunks(ctx context.Context, fileName string, index, limit int) ([]model.Chunk, error) {
	var target pgvector.Vector
	err := db.pool.QueryRow(ctx,
		`SELECT embedding FROM doc_chunks WHERE file_name = $1 AND chunk_index = $2`,
		fileName, index,
	).Scan(&target)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: similar chunks: %w", err)
	}

	rows, err := db.pool.Query(ctx, `
		SELECT chunk_index, content, embedding, 1 - (embedding <=> $1) AS score
		FROM doc_chunks
		WHERE file_name = $2 AND chunk_index <> $3
		ORDER BY score DESC, chunk_index
		LIMIT $4`, target, fileName, index, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: similar chunks: %w", err)
	}
	return collectChunks(rows, true)
}

// NearestChunks returns the limit chunks closest to vec by cosine distance,
// across all files, nearest first.
func (db *DB) NearestChunks(ctx context.Context, vec pgvector.Vector, limit int) ([]model.ChunkHit, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT file_name, chunk_index, content, embedding <=> $1 AS distance
		FROM doc_chunks
		ORDER BY distance, file_name, chunk_index
		LIMIT $2`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: nearest chunks: %w", err)
	}
	defer rows.Close()

	hits := []model.ChunkHit{}
	for rows.Next() {
		var h model.ChunkHit
		if err := rows.Scan(&h.FileName, &h.ChunkIndex, &h.Content, &h.Distance); err != nil {
			return nil, fmt.Errorf("storage: scan chunk hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func collectChunks(rows pgx.Rows, withScore bool) ([]model.Chunk, error) {
	defer rows.Close()
	chunks := []model.Chunk{}
	for rows.Next() {
		var (
			c   model.Chunk
			emb pgvector.Vector
		)
		dest := []any{&c.Index, &c.Content, &emb}
		var score float64
		if withScore {
			dest = append(dest, &score)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("storage: scan chunk: %w", err)
		}
		c.Embedding = emb.Slice()
		if withScore {
			rounded := math.Round(score*100) / 100
			c.Score = &rounded
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: read chunks: %w", err)
	}
	return chunks, nil
}
