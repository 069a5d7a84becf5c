package writer

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/everspan/cognita/pkg/ai"
	"github.com/everspan/cognita/pkg/errs"
	"github.com/everspan/cognita/pkg/logger"
	"github.com/everspan/cognita/pkg/model"
	"github.com/everspan/cognita/pkg/ratelimit"
	"github.com/everspan/cognita/pkg/store"
)

const DefaultEmbedBatch = 32

// WriteStats reports what one batch wrote. All writes are idempotent upserts
// keyed by deterministic IDs. NodesWritten counts only nodes that were not in
// the graph before, so re-writing an unchanged batch reports zero nodes;
// EdgesWritten and VectorsWritten count every edge and record sent to the
// stores, new or not.
type WriteStats struct {
	NodesWritten   int
	EdgesWritten   int
	EdgesDropped   int
	VectorsWritten int
}

// Writer persists DataPoints to the graph store and indexes their embeddable
// fields in the vector store. Each store uses its own transaction; there is
// no cross-store coordination because deterministic IDs make every write
// replayable.
type Writer struct {
	Graph    store.GraphStore
	Vector   store.VectorStore
	Embedder ai.Embedder
	Limiter  *ratelimit.Registry
	Backoff  *ratelimit.BackoffPolicy
	Provider string

	EmbedBatch int
}

type pendingVector struct {
	collection string
	id         uuid.UUID
	text       string
	payload    map[string]any
}

// Write persists one batch. Nodes are deduplicated by ID (last write wins on
// scalar properties, aliases merge as a set union), edges by (source, target,
// type) with max-merged weight and confidence. Edges whose endpoints exist
// neither in the batch nor in the store are dropped and counted. On
// cancellation the current embedding batch completes before returning so no
// half-written vector group is left behind.
func (w *Writer) Write(ctx context.Context, tenantID, datasetID uuid.UUID, points []model.DataPoint) (WriteStats, error) {
	var stats WriteStats
	if len(points) == 0 {
		return stats, nil
	}

	nodes, edges, pending := w.collect(tenantID, datasetID, points)

	existing, err := w.existingNodeIDs(ctx, nodes, edges)
	if err != nil {
		return stats, err
	}

	kept := make([]model.Edge, 0, len(edges))
	batchIDs := make(map[uuid.UUID]struct{}, len(nodes))
	for _, node := range nodes {
		batchIDs[node.ID] = struct{}{}
	}
	for _, edge := range edges {
		_, srcInBatch := batchIDs[edge.SourceID]
		_, tgtInBatch := batchIDs[edge.TargetID]
		_, srcInStore := existing[edge.SourceID]
		_, tgtInStore := existing[edge.TargetID]
		if (!srcInBatch && !srcInStore) || (!tgtInBatch && !tgtInStore) {
			stats.EdgesDropped++
			logger.Debug("[Writer] Dropping edge with missing endpoint", "source", edge.SourceID, "target", edge.TargetID, "type", edge.Type)
			continue
		}
		kept = append(kept, edge)
	}

	newNodes := 0
	for _, node := range nodes {
		if _, ok := existing[node.ID]; !ok {
			newNodes++
		}
	}

	if err := w.Graph.AddNodes(ctx, nodes); err != nil {
		return stats, errs.Wrap(errs.KindTransient, "write nodes", err)
	}
	if err := w.Graph.AddEdges(ctx, kept); err != nil {
		return stats, errs.Wrap(errs.KindTransient, "write edges", err)
	}
	stats.NodesWritten = newNodes
	stats.EdgesWritten = len(kept)

	vectors, err := w.indexVectors(ctx, pending)
	stats.VectorsWritten = vectors
	if err != nil {
		return stats, err
	}

	return stats, nil
}

func (w *Writer) collect(tenantID, datasetID uuid.UUID, points []model.DataPoint) ([]model.Node, []model.Edge, []pendingVector) {
	nodeIndex := make(map[uuid.UUID]int)
	var nodes []model.Node
	edgeIndex := make(map[string]int)
	var edges []model.Edge
	var pending []pendingVector
	seenVector := make(map[string]struct{})

	for _, point := range points {
		for _, node := range point.Nodes() {
			if idx, ok := nodeIndex[node.ID]; ok {
				nodes[idx] = mergeNode(nodes[idx], node)
				continue
			}
			nodeIndex[node.ID] = len(nodes)
			nodes = append(nodes, node)
		}

		for _, edge := range point.Edges() {
			key := model.EdgeKey(edge)
			if idx, ok := edgeIndex[key]; ok {
				edges[idx] = mergeEdge(edges[idx], edge)
				continue
			}
			edgeIndex[key] = len(edges)
			edges = append(edges, edge)
		}

		nodeType := pointNodeType(point)
		for field, text := range point.IndexFields() {
			if text == "" {
				continue
			}
			collection := store.CollectionName(tenantID, datasetID, nodeType, field)
			dedupKey := collection + "|" + point.PointID().String()
			if _, ok := seenVector[dedupKey]; ok {
				continue
			}
			seenVector[dedupKey] = struct{}{}
			pending = append(pending, pendingVector{
				collection: collection,
				id:         point.PointID(),
				text:       text,
				payload:    vectorPayload(point, field, text),
			})
		}
	}

	// deterministic write order keeps store-side batching stable across runs
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].collection != pending[j].collection {
			return pending[i].collection < pending[j].collection
		}
		return pending[i].id.String() < pending[j].id.String()
	})

	return nodes, edges, pending
}

func (w *Writer) existingNodeIDs(ctx context.Context, nodes []model.Node, edges []model.Edge) (map[uuid.UUID]struct{}, error) {
	idSet := make(map[uuid.UUID]struct{})
	for _, node := range nodes {
		idSet[node.ID] = struct{}{}
	}
	for _, edge := range edges {
		idSet[edge.SourceID] = struct{}{}
		idSet[edge.TargetID] = struct{}{}
	}
	ids := make([]uuid.UUID, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	found, err := w.Graph.QueryNodesByIDs(ctx, ids)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "query existing nodes", err)
	}
	existing := make(map[uuid.UUID]struct{}, len(found))
	for _, node := range found {
		existing[node.ID] = struct{}{}
	}
	return existing, nil
}

// indexVectors embeds and upserts the pending records in batches. The batch
// in flight when cancellation arrives is finished; the next one is not
// started.
func (w *Writer) indexVectors(ctx context.Context, pending []pendingVector) (int, error) {
	if len(pending) == 0 {
		return 0, nil
	}

	batchSize := w.EmbedBatch
	if batchSize <= 0 {
		batchSize = DefaultEmbedBatch
	}
	backoff := w.Backoff
	if backoff == nil {
		backoff = ratelimit.DefaultBackoff()
	}

	written := 0
	for start := 0; start < len(pending); start += batchSize {
		if err := ctx.Err(); err != nil {
			return written, errs.Wrap(errs.KindCancelled, "vector indexing", err)
		}

		end := min(start+batchSize, len(pending))
		batch := pending[start:end]
		// a started batch runs to completion even if ctx is cancelled meanwhile
		batchCtx := context.WithoutCancel(ctx)

		texts := make([]string, len(batch))
		for i, item := range batch {
			texts[i] = item.text
		}

		var vectors [][]float32
		_, err := backoff.Do(batchCtx, "embed", func(ctx context.Context) error {
			if w.Limiter != nil {
				if err := w.Limiter.Acquire(ctx, w.Provider, "embed"); err != nil {
					return err
				}
			}
			var embedErr error
			vectors, embedErr = w.Embedder.Embed(ctx, texts)
			return embedErr
		})
		if err != nil {
			return written, err
		}
		if len(vectors) != len(batch) {
			return written, errs.Newf(errs.KindTransient, "embedding count mismatch: got %d want %d", len(vectors), len(batch))
		}

		byCollection := make(map[string][]store.VectorRecord)
		for i, item := range batch {
			byCollection[item.collection] = append(byCollection[item.collection], store.VectorRecord{
				ID:      item.id,
				Vector:  vectors[i],
				Payload: item.payload,
			})
		}
		for collection, records := range byCollection {
			_, err := backoff.Do(batchCtx, "vector upsert", func(ctx context.Context) error {
				return w.Vector.Upsert(ctx, collection, records)
			})
			if err != nil {
				return written, err
			}
			written += len(records)
		}
	}
	return written, nil
}

func mergeNode(existing, incoming model.Node) model.Node {
	merged := existing
	props := make(map[string]any, len(existing.Props)+len(incoming.Props))
	for k, v := range existing.Props {
		props[k] = v
	}
	for k, v := range incoming.Props {
		if k == "aliases" {
			props[k] = unionAliases(props[k], v)
			continue
		}
		props[k] = v
	}
	merged.Props = props
	return merged
}

func mergeEdge(existing, incoming model.Edge) model.Edge {
	merged := existing
	props := make(map[string]any, len(existing.Props)+len(incoming.Props))
	for k, v := range existing.Props {
		props[k] = v
	}
	for k, v := range incoming.Props {
		switch k {
		case "weight", "confidence":
			props[k] = maxFloat(props[k], v)
		default:
			props[k] = v
		}
	}
	merged.Props = props
	return merged
}

func unionAliases(a, b any) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, value := range []any{a, b} {
		list, ok := value.([]string)
		if !ok {
			continue
		}
		for _, alias := range list {
			if _, dup := seen[alias]; dup {
				continue
			}
			seen[alias] = struct{}{}
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

func maxFloat(a, b any) any {
	fa, okA := a.(float64)
	fb, okB := b.(float64)
	if !okA {
		return b
	}
	if !okB {
		return a
	}
	if fa > fb {
		return fa
	}
	return fb
}

func pointNodeType(point model.DataPoint) string {
	nodes := point.Nodes()
	if len(nodes) > 0 {
		return nodes[0].Type
	}
	return "point"
}

func vectorPayload(point model.DataPoint, field, text string) map[string]any {
	payload := map[string]any{
		"field":   field,
		"version": point.PointVersion(),
	}
	nodes := point.Nodes()
	if len(nodes) > 0 {
		for k, v := range nodes[0].Props {
			switch v.(type) {
			case string, int, float64, bool:
				payload[k] = v
			}
		}
	}
	if _, ok := payload["text"]; !ok && field == "text" {
		payload["text"] = text
	}
	return payload
}
