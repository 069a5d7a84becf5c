package retrieve

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/everspan/cognita/pkg/store"
)

type memoryVectorStore struct {
	collections map[string][]store.SearchHit
}

func (m *memoryVectorStore) Upsert(_ context.Context, collection string, records []store.VectorRecord) error {
	for _, record := range records {
		m.collections[collection] = append(m.collections[collection], store.SearchHit{
			ID:      record.ID,
			Payload: record.Payload,
		})
	}
	return nil
}

func (m *memoryVectorStore) Search(_ context.Context, collection string, _ []float32, k int) ([]store.SearchHit, error) {
	hits := m.collections[collection]
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *memoryVectorStore) Scan(_ context.Context, collection string, limit int) ([]store.SearchHit, error) {
	hits := m.collections[collection]
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *memoryVectorStore) DeleteByFilter(_ context.Context, collection string, _ map[string]any) error {
	delete(m.collections, collection)
	return nil
}

func chunkHit(id byte, text string) store.SearchHit {
	return store.SearchHit{
		ID:      uuid.NewSHA1(uuid.NameSpaceOID, []byte{id}),
		Payload: map[string]any{"text": text, "source_path": "doc.txt"},
	}
}

func TestLexicalRanksExactTermsFirst(t *testing.T) {
	scope := Scope{
		TenantID:  uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001"),
		DatasetID: uuid.MustParse("eeeeeeee-0000-0000-0000-000000000001"),
	}
	collection := store.CollectionName(scope.TenantID, scope.DatasetID, "DocumentChunk", "text")

	vectorStore := &memoryVectorStore{collections: map[string][]store.SearchHit{
		collection: {
			chunkHit(1, "The quarterly report covers revenue and churn."),
			chunkHit(2, "Kubernetes cluster autoscaling configuration guide."),
			chunkHit(3, "The report mentions kubernetes deployments briefly."),
		},
	}}

	retriever := &LexicalRetriever{Vector: vectorStore}
	results, err := retriever.GetContext(context.Background(), scope, "kubernetes autoscaling", 2)
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].Text != "Kubernetes cluster autoscaling configuration guide." {
		t.Errorf("top result = %q", results[0].Text)
	}
	for _, result := range results {
		if result.Kind != KindChunk {
			t.Errorf("kind = %s, want chunk", result.Kind)
		}
	}
}

func TestLexicalEmptyQueryAndCorpus(t *testing.T) {
	scope := Scope{TenantID: uuid.New(), DatasetID: uuid.New()}
	retriever := &LexicalRetriever{Vector: &memoryVectorStore{collections: map[string][]store.SearchHit{}}}

	results, err := retriever.GetContext(context.Background(), scope, "???", 5)
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("punctuation-only query should match nothing, got %d", len(results))
	}

	results, err = retriever.GetContext(context.Background(), scope, "anything", 5)
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("empty corpus should yield nothing, got %d", len(results))
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("Hello, World! foo-bar 42")
	want := []string{"hello", "world", "foo", "bar", "42"}
	if len(got) != len(want) {
		t.Fatalf("tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTripletQuality(t *testing.T) {
	full := tripletQuality("Alice", "works_at", "Acme", true)
	if full != 1 {
		t.Errorf("informative triplet = %f, want 1", full)
	}
	generic := tripletQuality("Alice", "related_to", "Acme", true)
	if generic >= full {
		t.Errorf("generic predicate should score below specific: %f", generic)
	}
	placeholder := tripletQuality("Unknown", "works_at", "Acme", true)
	if placeholder >= full {
		t.Errorf("placeholder endpoint should score below named: %f", placeholder)
	}
	bare := tripletQuality("", "related_to", "", false)
	if bare > 0.2 {
		t.Errorf("worthless triplet should score near zero, got %f", bare)
	}
}
