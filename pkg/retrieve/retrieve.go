package retrieve

import (
	"context"

	"github.com/google/uuid"
)

// Provenance points a retrieved item back at its source bytes.
type Provenance struct {
	DataID     uuid.UUID `json:"data_id,omitempty"`
	ChunkID    uuid.UUID `json:"chunk_id,omitempty"`
	SourcePath string    `json:"source_path,omitempty"`
	PageNumber int       `json:"page_number,omitempty"`
	StartLine  int       `json:"start_line,omitempty"`
	EndLine    int       `json:"end_line,omitempty"`
	StartChar  int       `json:"start_char,omitempty"`
	EndChar    int       `json:"end_char,omitempty"`
}

// Result is one ranked retrieval item: a chunk or a graph triplet.
type Result struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Score      float64    `json:"score"`
	Kind       string     `json:"kind"`
	Provenance Provenance `json:"provenance"`
}

const (
	KindChunk   = "chunk"
	KindTriplet = "triplet"
)

// Scope restricts retrieval to one tenant's dataset.
type Scope struct {
	TenantID  uuid.UUID
	DatasetID uuid.UUID
}

// Retriever is one retrieval strategy.
type Retriever interface {
	Name() string
	GetContext(ctx context.Context, scope Scope, query string, topK int) ([]Result, error)
}
