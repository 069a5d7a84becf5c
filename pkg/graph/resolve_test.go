package graph

import (
	"context"
	"reflect"
	"sort"
	"testing"

	"github.com/google/uuid"

	"github.com/everspan/cognita/pkg/model"
)

var testTenant = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")

func testEntity(name, entityType, description string, confidence float64, chunks ...uuid.UUID) model.Entity {
	return model.Entity{
		ID:           model.EntityID(testTenant, NormalizeName(name), entityType),
		TenantID:     testTenant,
		Name:         name,
		Type:         entityType,
		Description:  description,
		Confidence:   confidence,
		SourceChunks: chunks,
		Version:      1,
	}
}

func TestResolveMergesNearDuplicateNames(t *testing.T) {
	chunkA := uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000001")
	chunkB := uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002")

	entities := []model.Entity{
		testEntity("Microsoft Corporation", "Organization", "A large software company.", 0.9, chunkA),
		testEntity("Microsoft Corporations", "Organization", "Software company in Redmond.", 0.8, chunkB),
	}

	resolver := &Resolver{}
	result, err := resolver.Resolve(context.Background(), entities)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(result.Entities) != 1 {
		t.Fatalf("expected one canonical entity, got %d", len(result.Entities))
	}
	merged := result.Entities[0]

	if len(merged.SourceChunks) != 2 {
		t.Errorf("source chunks not merged: %v", merged.SourceChunks)
	}
	if len(merged.Aliases) != 1 {
		t.Errorf("expected one absorbed alias, got %v", merged.Aliases)
	}
	if result.Merged != 1 {
		t.Errorf("Merged = %d, want 1", result.Merged)
	}
	if len(result.AliasOf) != 1 {
		t.Errorf("expected one alias_of row, got %d", len(result.AliasOf))
	}
	for _, canonical := range result.AliasOf {
		if canonical != merged.ID {
			t.Errorf("alias_of points at %s, want %s", canonical, merged.ID)
		}
	}
}

func TestResolveNeverMergesAcrossTypes(t *testing.T) {
	entities := []model.Entity{
		testEntity("Jordan", "Person", "A basketball player.", 0.9),
		testEntity("Jordan", "Location", "A country in the Middle East.", 0.9),
	}

	resolver := &Resolver{}
	result, err := resolver.Resolve(context.Background(), entities)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(result.Entities) != 2 {
		t.Fatalf("type conflict must not merge: got %d entities", len(result.Entities))
	}
	if len(result.AliasOf) != 0 {
		t.Errorf("no alias rows expected, got %d", len(result.AliasOf))
	}
}

func TestResolveAliasBucket(t *testing.T) {
	withAlias := testEntity("International Business Machines", "Organization", "Full name.", 0.9)
	withAlias.Aliases = []string{"IBM"}
	entities := []model.Entity{
		withAlias,
		testEntity("IBM", "Organization", "Short name.", 0.8),
	}

	resolver := &Resolver{}
	result, err := resolver.Resolve(context.Background(), entities)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(result.Entities) != 1 {
		t.Fatalf("alias match should merge, got %d entities", len(result.Entities))
	}
}

func TestResolveCanonicalSelection(t *testing.T) {
	entities := []model.Entity{
		testEntity("acme corp", "Organization", "short", 0.5),
		testEntity("Acme Corp", "Organization", "a much longer and richer description", 0.9),
	}

	resolver := &Resolver{}
	result, err := resolver.Resolve(context.Background(), entities)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(result.Entities) != 1 {
		t.Fatalf("expected merge, got %d", len(result.Entities))
	}
	if result.Entities[0].Confidence != 0.9 {
		t.Errorf("canonical should be the higher-confidence entity, got confidence %f", result.Entities[0].Confidence)
	}
	if result.Entities[0].Name != "Acme Corp" {
		t.Errorf("canonical name = %q, want %q", result.Entities[0].Name, "Acme Corp")
	}
}

func TestResolveIdempotent(t *testing.T) {
	entities := []model.Entity{
		testEntity("Acme Corp", "Organization", "Company.", 0.9),
		testEntity("ACME", "Organization", "Same company.", 0.7),
		testEntity("Berlin", "Location", "A city.", 0.9),
	}
	// force a merge of the two spellings through the alias path
	entities[0].Aliases = []string{"ACME"}

	resolver := &Resolver{}
	once, err := resolver.Resolve(context.Background(), entities)
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	twice, err := resolver.Resolve(context.Background(), once.Entities)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}

	idsOf := func(es []model.Entity) []string {
		ids := make([]string, len(es))
		for i, e := range es {
			ids[i] = e.ID.String()
		}
		sort.Strings(ids)
		return ids
	}
	if !reflect.DeepEqual(idsOf(once.Entities), idsOf(twice.Entities)) {
		t.Errorf("Resolve is not idempotent: %v vs %v", idsOf(once.Entities), idsOf(twice.Entities))
	}
	if twice.Merged != 0 {
		t.Errorf("second pass merged %d entities, want 0", twice.Merged)
	}
}

type pairEmbedder struct {
	vectors map[string][]float32
}

func (e *pairEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := e.vectors[text]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (e *pairEmbedder) Dimensions() int { return 3 }

func TestResolveEmbeddingPass(t *testing.T) {
	// fuzzy score for these lands in the embedding band: similar enough to
	// re-check, not enough to merge outright
	a := testEntity("Acme Corporation", "Organization", "Parent company.", 0.9)
	b := testEntity("Acme Corpn", "Organization", "Same parent company.", 0.8)

	sim := nameSimilarity(NormalizeName(a.Name), NormalizeName(b.Name))
	if sim < embedBandLow || sim >= DefaultFuzzyThreshold {
		t.Fatalf("test names must land in the embedding band, got %f", sim)
	}

	embedder := &pairEmbedder{vectors: map[string][]float32{
		a.Name: {1, 0, 0},
		b.Name: {0.99, 0.1, 0},
	}}

	resolver := &Resolver{Embedder: embedder}
	result, err := resolver.Resolve(context.Background(), []model.Entity{a, b})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(result.Entities) != 1 {
		t.Fatalf("embedding pass should merge the pair, got %d entities", len(result.Entities))
	}

	// orthogonal embeddings must not merge
	embedder.vectors[b.Name] = []float32{0, 1, 0}
	result, err = resolver.Resolve(context.Background(), []model.Entity{a, b})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(result.Entities) != 2 {
		t.Fatalf("orthogonal embeddings must not merge, got %d entities", len(result.Entities))
	}
}

func TestRemapRelations(t *testing.T) {
	idA := uuid.MustParse("cccccccc-0000-0000-0000-000000000001")
	idB := uuid.MustParse("cccccccc-0000-0000-0000-000000000002")
	idC := uuid.MustParse("cccccccc-0000-0000-0000-000000000003")

	relations := []model.Relation{
		{SourceID: idA, TargetID: idC, Type: "works_at", Weight: 0.5, Confidence: 0.6},
		{SourceID: idB, TargetID: idC, Type: "works_at", Weight: 0.9, Confidence: 0.4},
		{SourceID: idA, TargetID: idB, Type: "knows", Weight: 0.8, Confidence: 0.8},
	}
	aliasOf := map[uuid.UUID]uuid.UUID{idB: idA}

	out := RemapRelations(relations, aliasOf)
	if len(out) != 1 {
		t.Fatalf("expected one relation after remap (dup merged, self-loop dropped), got %d", len(out))
	}
	rel := out[0]
	if rel.SourceID != idA || rel.TargetID != idC {
		t.Errorf("unexpected endpoints: %s -> %s", rel.SourceID, rel.TargetID)
	}
	if rel.Weight != 0.9 {
		t.Errorf("weights should max-merge, got %f", rel.Weight)
	}
	if rel.Confidence != 0.6 {
		t.Errorf("confidence should max-merge, got %f", rel.Confidence)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); got != 1 {
		t.Errorf("identical vectors = %f, want 1", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors = %f, want 0", got)
	}
	if got := CosineSimilarity(nil, []float32{1}); got != 0 {
		t.Errorf("mismatched vectors = %f, want 0", got)
	}
}
