package model

import (
	"time"

	"github.com/google/uuid"
)

// PipelineStatus tracks the ingestion state of a Data record.
type PipelineStatus string

const (
	PipelinePending   PipelineStatus = "pending"
	PipelineRunning   PipelineStatus = "running"
	PipelineCompleted PipelineStatus = "completed"
	PipelineFailed    PipelineStatus = "failed"
)

// Dataset groups ingested data for one tenant. (tenant_id, name) is unique.
// Deleting a dataset cascades to its Data records and all derived artifacts.
type Dataset struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Data is one ingested document. Content is immutable after ingest;
// (tenant_id, content_hash) is unique so re-ingesting the same bytes
// dedupes to the existing record.
type Data struct {
	ID             uuid.UUID      `json:"id"`
	TenantID       uuid.UUID      `json:"tenant_id"`
	DatasetIDs     []uuid.UUID    `json:"dataset_ids"`
	ContentHash    string         `json:"content_hash"`
	Mime           string         `json:"mime"`
	SourcePath     string         `json:"source_path"`
	TokenCount     int            `json:"token_count"`
	PipelineStatus PipelineStatus `json:"pipeline_status"`
}

// CutType records how a chunk boundary was chosen.
type CutType string

const (
	CutParagraph CutType = "paragraph"
	CutSentence  CutType = "sentence"
	CutCharacter CutType = "character"
	CutEnd       CutType = "document_end"
)

// DocumentChunk is a contiguous span of a document's text together with its
// exact provenance. The ID is derived from (data_id, chunk_index, text hash)
// so re-chunking unchanged input yields the same IDs. Text is never mutated;
// re-chunking bumps the version instead.
type DocumentChunk struct {
	ID         uuid.UUID `json:"id"`
	DataID     uuid.UUID `json:"data_id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	DatasetID  uuid.UUID `json:"dataset_id"`
	Text       string    `json:"text"`
	ChunkIndex int       `json:"chunk_index"`
	TokenCount int       `json:"token_count"`
	StartLine  int       `json:"start_line"`
	EndLine    int       `json:"end_line"`
	StartChar  int       `json:"start_char"`
	EndChar    int       `json:"end_char"`
	PageNumber int       `json:"page_number"`
	CutType    CutType   `json:"cut_type"`
	SourcePath string    `json:"source_path"`
	Version    int       `json:"version"`
}

// Entity is a canonical node in the knowledge graph. The ID is derived from
// (tenant, normalized name, type); the resolver merges losing entities into
// the canonical one and records them in an alias_of side-table.
type Entity struct {
	ID           uuid.UUID         `json:"id"`
	TenantID     uuid.UUID         `json:"tenant_id"`
	DatasetID    uuid.UUID         `json:"dataset_id"`
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	Description  string            `json:"description"`
	Aliases      []string          `json:"aliases"`
	SourceChunks []uuid.UUID       `json:"source_chunks"`
	Confidence   float64           `json:"confidence"`
	Properties   map[string]string `json:"properties,omitempty"`
	Version      int               `json:"version"`
}

// Relation is a directed typed edge between two entities.
// (source, target, type) is unique; endpoints must exist.
type Relation struct {
	SourceID    uuid.UUID         `json:"source_id"`
	TargetID    uuid.UUID         `json:"target_id"`
	Type        string            `json:"type"`
	Weight      float64           `json:"weight"`
	Confidence  float64           `json:"confidence"`
	SourceChunk uuid.UUID         `json:"source_chunk"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// KnowledgeGraph is the output of extracting one chunk: typed entities plus
// the relations between them.
type KnowledgeGraph struct {
	Nodes []Entity   `json:"nodes"`
	Edges []Relation `json:"edges"`
}

// RunStatus tracks a pipeline run through its lifecycle. Transitions are
// monotonic: running precedes exactly one terminal state.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// StageProgress holds per-stage counters for a pipeline run.
type StageProgress struct {
	Name       string        `json:"name"`
	Status     RunStatus     `json:"status"`
	ItemsIn    int           `json:"items_in"`
	ItemsOut   int           `json:"items_out"`
	Retries    int           `json:"retries"`
	LowYield   int           `json:"low_yield,omitempty"`
	Dropped    int           `json:"dropped,omitempty"`
	Written    int           `json:"items_written,omitempty"`
	Duration   time.Duration `json:"duration"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
}

// PipelineRun is one invocation of the cognify pipeline over one dataset.
// Runs are persisted and retained for history.
type PipelineRun struct {
	ID        string          `json:"id"`
	DatasetID uuid.UUID       `json:"dataset_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Status    RunStatus       `json:"status"`
	Stages    []StageProgress `json:"stages"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at,omitempty"`
	Error     string          `json:"error,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
}
