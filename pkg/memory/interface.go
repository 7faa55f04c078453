// Package memory provides the canonical memory record model and thin
// read/write adapters for the semantic (vector) and relationship (graph)
// store backends.
package memory

import (
	"context"
	"time"
)

// Confidence tags how certain the triage stage was that a record contains
// durable information.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Record is the canonical unit of durable knowledge. Records are append-only:
// later records may supersede earlier ones, but nothing overwrites in place.
type Record struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Content    string         `json:"content"`
	Origin     string         `json:"origin,omitempty"`
	Confidence Confidence     `json:"confidence"`
	Entities   []string       `json:"entities,omitempty"`
	Temporal   string         `json:"temporal,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Relation links two records in the graph store.
type Relation struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Hit is a single match returned from a store query.
type Hit struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	Score        float64   `json:"score"`
	RelationPath string    `json:"relation_path,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// VectorStore defines the contract with the semantic store backend.
type VectorStore interface {
	// Search for semantically similar records
	Search(ctx context.Context, query string, userID string, limit int) ([]Hit, error)

	// Upsert a record
	Upsert(ctx context.Context, record Record) (string, error)

	// Check connection to the store
	Ping(ctx context.Context) error
}

// GraphStore defines the contract with the relationship store backend.
type GraphStore interface {
	// Search for records by entities or text
	Search(ctx context.Context, query string, userID string, limit int) ([]Hit, error)

	// Upsert a record node together with its relations
	Upsert(ctx context.Context, record Record, relations []Relation) (string, error)

	// Check connection to the store
	Ping(ctx context.Context) error
}

// EmbeddingService generates vector embeddings from text
type EmbeddingService interface {
	// Generate an embedding for a text
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// Generate embeddings for multiple texts in a batch
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}
