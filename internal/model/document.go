package model

import "time"

// File is an ingested knowledge-base document.
type File struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Chunk is one indexed slice of a file. Score is set only by similarity
// listings.
type Chunk struct {
	Index     int       `json:"index"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
	Score     *float64  `json:"score,omitempty"`
}

// ChunkHit is a nearest-neighbor candidate returned by a chunk index,
// ordered by ascending Distance.
type ChunkHit struct {
	FileName   string  `json:"fileName"`
	ChunkIndex int     `json:"chunkIndex"`
	Content    string  `json:"content"`
	Distance   float64 `json:"distance"`
}
