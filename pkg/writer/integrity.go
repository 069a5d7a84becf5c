package writer

import (
	"context"

	"github.com/google/uuid"

	"github.com/everspan/cognita/pkg/logger"
	"github.com/everspan/cognita/pkg/model"
	"github.com/everspan/cognita/pkg/store"
)

// orphanScanLimit bounds how many vector records per collection the audit
// cross-checks against the graph.
const orphanScanLimit = 10000

// IntegrityReport is the result of a post-write audit over a dataset's
// artifacts. Violations are counters, not failures: the run that produced
// them already succeeded, the report feeds monitoring.
type IntegrityReport struct {
	NodesChecked        int
	EdgesChecked        int
	VectorsChecked      int
	MissingEndpoints    int
	OrphanVectorRecords int
}

// Clean reports whether the audit found no violations.
func (r IntegrityReport) Clean() bool {
	return r.MissingEndpoints == 0 && r.OrphanVectorRecords == 0
}

// CheckIntegrity audits referential integrity for the entities written to a
// dataset: every edge endpoint must resolve to a node, and every vector
// record in the dataset's collections must correspond to a graph node with
// the same ID. A nil vector store skips the orphan check.
func CheckIntegrity(
	ctx context.Context,
	graph store.GraphStore,
	vector store.VectorStore,
	tenantID, datasetID uuid.UUID,
	entityIDs []uuid.UUID,
) (IntegrityReport, error) {
	var report IntegrityReport

	known := make(map[uuid.UUID]struct{})
	nodes, err := graph.QueryNodesByIDs(ctx, entityIDs)
	if err != nil {
		return report, err
	}
	for _, node := range nodes {
		known[node.ID] = struct{}{}
	}
	report.NodesChecked = len(nodes)

	for _, id := range entityIDs {
		if _, ok := known[id]; !ok {
			continue
		}
		edges, err := graph.QueryNeighbors(ctx, id, 1)
		if err != nil {
			return report, err
		}
		for _, edge := range edges {
			report.EdgesChecked++
			endpoints, err := graph.QueryNodesByIDs(ctx, []uuid.UUID{edge.SourceID, edge.TargetID})
			if err != nil {
				return report, err
			}
			if len(endpoints) < 2 {
				report.MissingEndpoints++
			}
		}
	}

	if vector != nil {
		orphans, checked, err := countOrphanVectors(ctx, graph, vector, tenantID, datasetID)
		if err != nil {
			return report, err
		}
		report.VectorsChecked = checked
		report.OrphanVectorRecords = orphans
	}

	if !report.Clean() {
		logger.Warn("[Integrity] Violations found",
			"missing_endpoints", report.MissingEndpoints,
			"orphan_vectors", report.OrphanVectorRecords)
	}
	return report, nil
}

// countOrphanVectors scans every collection the writer indexes for the
// dataset and reports records whose ID has no graph node.
func countOrphanVectors(
	ctx context.Context,
	graph store.GraphStore,
	vector store.VectorStore,
	tenantID, datasetID uuid.UUID,
) (orphans, checked int, err error) {
	collections := []struct{ nodeType, field string }{
		{model.NodeTypeChunk, "text"},
		{model.NodeTypeEntity, "name"},
		{model.NodeTypeEntity, "description"},
	}

	for _, spec := range collections {
		collection := store.CollectionName(tenantID, datasetID, spec.nodeType, spec.field)
		records, err := vector.Scan(ctx, collection, orphanScanLimit)
		if err != nil {
			return orphans, checked, err
		}
		if len(records) == 0 {
			continue
		}

		ids := make([]uuid.UUID, 0, len(records))
		for _, record := range records {
			ids = append(ids, record.ID)
		}
		checked += len(ids)

		found, err := graph.QueryNodesByIDs(ctx, ids)
		if err != nil {
			return orphans, checked, err
		}
		foundSet := make(map[uuid.UUID]struct{}, len(found))
		for _, node := range found {
			foundSet[node.ID] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := foundSet[id]; !ok {
				orphans++
			}
		}
	}
	return orphans, checked, nil
}
