package retrieve

import (
	"context"

	"github.com/google/uuid"

	"github.com/everspan/cognita/pkg/ai"
	"github.com/everspan/cognita/pkg/errs"
	"github.com/everspan/cognita/pkg/model"
	"github.com/everspan/cognita/pkg/store"
)

// VectorRetriever ranks document chunks by cosine similarity between the
// query embedding and the chunk text embeddings.
type VectorRetriever struct {
	Vector   store.VectorStore
	Embedder ai.Embedder
}

func (r *VectorRetriever) Name() string { return "vector" }

func (r *VectorRetriever) GetContext(ctx context.Context, scope Scope, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, errs.New(errs.KindValidation, "topK must be positive")
	}

	vectors, err := r.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	collection := store.CollectionName(scope.TenantID, scope.DatasetID, model.NodeTypeChunk, "text")
	hits, err := r.Vector.Search(ctx, collection, vectors[0], topK)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			ID:         hit.ID.String(),
			Text:       payloadString(hit.Payload, "text"),
			Score:      hit.Score,
			Kind:       KindChunk,
			Provenance: provenanceFromPayload(hit.ID, hit.Payload),
		})
	}
	return results, nil
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	s, _ := payload[key].(string)
	return s
}

func payloadInt(payload map[string]any, key string) int {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func provenanceFromPayload(id uuid.UUID, payload map[string]any) Provenance {
	prov := Provenance{
		ChunkID:    id,
		SourcePath: payloadString(payload, "source_path"),
		PageNumber: payloadInt(payload, "page_number"),
		StartLine:  payloadInt(payload, "start_line"),
		EndLine:    payloadInt(payload, "end_line"),
		StartChar:  payloadInt(payload, "start_char"),
		EndChar:    payloadInt(payload, "end_char"),
	}
	if raw := payloadString(payload, "source_data_id"); raw != "" {
		if dataID, err := uuid.Parse(raw); err == nil {
			prov.DataID = dataID
		}
	}
	return prov
}
