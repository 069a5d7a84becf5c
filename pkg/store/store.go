package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/everspan/cognita/pkg/model"
)

// RelationalStore persists datasets, data records and pipeline-run state.
// Implementations convert driver errors into the errs taxonomy.
type RelationalStore interface {
	CreateDataset(ctx context.Context, dataset *model.Dataset) error
	GetDataset(ctx context.Context, tenantID, datasetID uuid.UUID) (*model.Dataset, error)
	DeleteDataset(ctx context.Context, tenantID, datasetID uuid.UUID) error

	PersistData(ctx context.Context, data *model.Data, datasetID uuid.UUID) error
	ListData(ctx context.Context, datasetID uuid.UUID) ([]model.Data, error)
	UpdateDataStatus(ctx context.Context, dataID uuid.UUID, status model.PipelineStatus) error
	// DedupData reports the existing data ID for a content hash, if any.
	DedupData(ctx context.Context, tenantID uuid.UUID, contentHash string) (uuid.UUID, bool, error)

	// SaveEntityAliases records merged-away entity IDs so old references
	// resolve to their canonical entity.
	SaveEntityAliases(ctx context.Context, tenantID uuid.UUID, aliasOf map[uuid.UUID]uuid.UUID) error
	ResolveEntityAlias(ctx context.Context, tenantID, entityID uuid.UUID) (uuid.UUID, bool, error)

	CreateRun(ctx context.Context, run *model.PipelineRun) error
	UpdateRun(ctx context.Context, run *model.PipelineRun) error
	GetRun(ctx context.Context, runID string) (*model.PipelineRun, error)
	ListRuns(ctx context.Context, datasetID uuid.UUID, limit int) ([]model.PipelineRun, error)
}

// GraphStore persists the property graph. AddNodes and AddEdges are upserts
// keyed by deterministic IDs so re-writes are no-ops; implementations must be
// safe for concurrent use by the pipeline worker pool.
type GraphStore interface {
	AddNodes(ctx context.Context, nodes []model.Node) error
	AddEdges(ctx context.Context, edges []model.Edge) error
	QueryNodesByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Node, error)
	// QueryNeighbors returns the edges incident to the node up to the given
	// traversal depth, endpoints included in discovery order.
	QueryNeighbors(ctx context.Context, id uuid.UUID, depth int) ([]model.Edge, error)
	DeleteSubgraph(ctx context.Context, datasetID uuid.UUID) error
}

// VectorRecord is one embedded field of a graph node.
type VectorRecord struct {
	ID      uuid.UUID
	Vector  []float32
	Payload map[string]any
}

// SearchHit is a similarity-search result; Score is cosine similarity in
// [-1,1], higher is closer.
type SearchHit struct {
	ID      uuid.UUID
	Score   float64
	Payload map[string]any
}

// VectorStore indexes embeddings per collection. Upserts are keyed by record
// ID; a record is only replaced by a payload carrying a higher version.
type VectorStore interface {
	Upsert(ctx context.Context, collection string, records []VectorRecord) error
	Search(ctx context.Context, collection string, vector []float32, k int) ([]SearchHit, error)
	// Scan returns up to limit records of a collection without similarity
	// ranking, for strategies that score payload text in memory.
	Scan(ctx context.Context, collection string, limit int) ([]SearchHit, error)
	DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error
}

// CollectionName builds the vector collection name for one indexed field:
// {tenant}_{dataset}_{type}_{field}, ASCII-safe and length-capped.
func CollectionName(tenantID, datasetID uuid.UUID, nodeType, field string) string {
	name := shortID(tenantID) + "_" + shortID(datasetID) + "_" + sanitize(nodeType) + "_" + sanitize(field)
	if len(name) > 120 {
		name = name[:120]
	}
	return name
}

func shortID(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "x"
	}
	return b.String()
}
