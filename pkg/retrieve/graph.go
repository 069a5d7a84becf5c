package retrieve

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/everspan/cognita/pkg/ai"
	"github.com/everspan/cognita/pkg/errs"
	"github.com/everspan/cognita/pkg/model"
	"github.com/everspan/cognita/pkg/store"
)

const (
	DefaultTraversalDepth      = 2
	DefaultMaxFrontier         = 50
	DefaultSimilarityThreshold = 0.7

	// triplet score weights: entity similarity, edge confidence, quality
	weightSimilarity = 0.5
	weightConfidence = 0.3
	weightQuality    = 0.2

	// maxTripletsPerEntity bounds how much one hub entity can dominate the
	// result list.
	maxTripletsPerEntity = 5
)

// GraphRetriever finds entities near the query embedding and expands them
// through the graph into scored (subject, predicate, object) triplets.
type GraphRetriever struct {
	Graph    store.GraphStore
	Vector   store.VectorStore
	Embedder ai.Embedder

	Depth               int
	MaxFrontier         int
	SimilarityThreshold float64
}

func (r *GraphRetriever) Name() string { return "graph" }

type tripletCandidate struct {
	result   Result
	anchorID uuid.UUID
}

func (r *GraphRetriever) GetContext(ctx context.Context, scope Scope, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, errs.New(errs.KindValidation, "topK must be positive")
	}

	depth := r.Depth
	if depth <= 0 {
		depth = DefaultTraversalDepth
	}
	maxFrontier := r.MaxFrontier
	if maxFrontier <= 0 {
		maxFrontier = DefaultMaxFrontier
	}
	threshold := r.SimilarityThreshold
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}

	vectors, err := r.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	queryVector := vectors[0]

	// entity lookup is capped, never a full scan
	candidateCap := max(10*topK, 50)
	entityScores := make(map[uuid.UUID]float64)
	for _, field := range []string{"name", "description"} {
		collection := store.CollectionName(scope.TenantID, scope.DatasetID, model.NodeTypeEntity, field)
		hits, err := r.Vector.Search(ctx, collection, queryVector, candidateCap)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			if hit.Score < threshold {
				continue
			}
			if hit.Score > entityScores[hit.ID] {
				entityScores[hit.ID] = hit.Score
			}
		}
	}
	if len(entityScores) == 0 {
		return nil, nil
	}

	// stable anchor order: score desc, then id
	anchors := make([]uuid.UUID, 0, len(entityScores))
	for id := range entityScores {
		anchors = append(anchors, id)
	}
	sort.Slice(anchors, func(i, j int) bool {
		if entityScores[anchors[i]] != entityScores[anchors[j]] {
			return entityScores[anchors[i]] > entityScores[anchors[j]]
		}
		return anchors[i].String() < anchors[j].String()
	})
	if len(anchors) > maxFrontier {
		anchors = anchors[:maxFrontier]
	}

	seenEdges := make(map[string]struct{})
	var candidates []tripletCandidate
	nodeCache := make(map[uuid.UUID]model.Node)

	for _, anchor := range anchors {
		edges, err := r.Graph.QueryNeighbors(ctx, anchor, depth)
		if err != nil {
			return nil, err
		}
		if len(edges) > maxFrontier {
			edges = edges[:maxFrontier]
		}

		if err := r.cacheNodes(ctx, edges, nodeCache); err != nil {
			return nil, err
		}

		for _, edge := range edges {
			if edge.Type == model.EdgeTypeMentions {
				continue
			}
			key := model.EdgeKey(edge)
			if _, ok := seenEdges[key]; ok {
				continue
			}
			seenEdges[key] = struct{}{}

			subject, okS := nodeCache[edge.SourceID]
			object, okT := nodeCache[edge.TargetID]
			if !okS || !okT {
				continue
			}

			subjectName := nodeName(subject)
			objectName := nodeName(object)
			confidence := propFloat(edge.Props, "confidence")
			quality := tripletQuality(subjectName, edge.Type, objectName,
				nodeDescription(subject) != "" || nodeDescription(object) != "")

			similarity := max(entityScores[edge.SourceID], entityScores[edge.TargetID])
			score := weightSimilarity*similarity + weightConfidence*confidence + weightQuality*quality

			candidates = append(candidates, tripletCandidate{
				anchorID: anchor,
				result: Result{
					ID:    key,
					Text:  fmt.Sprintf("%s --%s--> %s", subjectName, edge.Type, objectName),
					Score: score,
					Kind:  KindTriplet,
					Provenance: Provenance{
						ChunkID:    propUUID(edge.Props, "source_chunk_id"),
						SourcePath: payloadString(subject.Props, "source_path"),
					},
				},
			})
		}
	}

	// stable ordering with id tie-break
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].result.Score != candidates[j].result.Score {
			return candidates[i].result.Score > candidates[j].result.Score
		}
		return candidates[i].result.ID < candidates[j].result.ID
	})

	// diversity: cap triplets per anchor entity
	perAnchor := make(map[uuid.UUID]int)
	results := make([]Result, 0, topK)
	for _, candidate := range candidates {
		if perAnchor[candidate.anchorID] >= maxTripletsPerEntity {
			continue
		}
		perAnchor[candidate.anchorID]++
		results = append(results, candidate.result)
		if len(results) == topK {
			break
		}
	}
	return results, nil
}

func (r *GraphRetriever) cacheNodes(ctx context.Context, edges []model.Edge, cache map[uuid.UUID]model.Node) error {
	var missing []uuid.UUID
	seen := make(map[uuid.UUID]struct{})
	for _, edge := range edges {
		for _, id := range []uuid.UUID{edge.SourceID, edge.TargetID} {
			if _, ok := cache[id]; ok {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	nodes, err := r.Graph.QueryNodesByIDs(ctx, missing)
	if err != nil {
		return err
	}
	for _, node := range nodes {
		cache[node.ID] = node
	}
	return nil
}

func nodeName(node model.Node) string {
	return payloadString(node.Props, "name")
}

func nodeDescription(node model.Node) string {
	return payloadString(node.Props, "description")
}

func propFloat(props map[string]any, key string) float64 {
	if props == nil {
		return 0
	}
	switch v := props[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func propUUID(props map[string]any, key string) uuid.UUID {
	raw := payloadString(props, key)
	if raw == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}
