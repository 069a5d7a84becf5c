package graph

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/everspan/cognita/pkg/ai"
	"github.com/everspan/cognita/pkg/errs"
	"github.com/everspan/cognita/pkg/model"
	"github.com/everspan/cognita/pkg/ratelimit"
)

// scriptedLLM returns canned JSON payloads for structured calls, in order.
type scriptedLLM struct {
	payloads []string
	err      error
	calls    int
}

func (s *scriptedLLM) Complete(context.Context, string, ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (s *scriptedLLM) CompleteStream(context.Context, string, ...ai.GenerateOption) (<-chan string, error) {
	ch := make(chan string)
	close(ch)
	return ch, nil
}

func (s *scriptedLLM) StructuredComplete(_ context.Context, _, _, _ string, out any, _ ...ai.GenerateOption) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	payload := s.payloads[0]
	if len(s.payloads) > 1 {
		s.payloads = s.payloads[1:]
	}
	return json.Unmarshal([]byte(payload), out)
}

func testChunk(text string) model.DocumentChunk {
	tenant := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	dataID := uuid.MustParse("dddddddd-0000-0000-0000-000000000001")
	chunk := model.DocumentChunk{
		DataID:    dataID,
		TenantID:  tenant,
		DatasetID: uuid.MustParse("eeeeeeee-0000-0000-0000-000000000001"),
		Text:      text,
	}
	chunk.ID = model.ChunkID(dataID, 0, text)
	return chunk
}

func TestExtractBuildsGraph(t *testing.T) {
	llm := &scriptedLLM{payloads: []string{`{
		"entities": [
			{"name": "Alice", "type": "Person", "description": "Works at Acme.", "confidence": 0.9},
			{"name": "Acme", "type": "Organization", "description": "A company.", "confidence": 0.95}
		],
		"relationships": [
			{"source_entity": "Alice", "target_entity": "Acme", "relationship_type": "works at", "strength": 0.8, "confidence": 0.9}
		]
	}`}}

	extractor := &Extractor{LLM: llm}
	chunk := testChunk("Alice works at Acme.")
	kg, stats, err := extractor.Extract(context.Background(), chunk)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(kg.Nodes) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(kg.Nodes))
	}
	if len(kg.Edges) != 1 {
		t.Fatalf("expected 1 relation, got %d", len(kg.Edges))
	}
	if stats.LowYield {
		t.Error("chunk with entities must not be low yield")
	}

	edge := kg.Edges[0]
	if edge.Type != "works_at" {
		t.Errorf("relation type not normalized: %q", edge.Type)
	}
	if edge.SourceChunk != chunk.ID {
		t.Errorf("relation missing source chunk")
	}
	for _, node := range kg.Nodes {
		if len(node.SourceChunks) != 1 || node.SourceChunks[0] != chunk.ID {
			t.Errorf("entity %s missing source chunk", node.Name)
		}
		want := model.EntityID(chunk.TenantID, NormalizeName(node.Name), node.Type)
		if node.ID != want {
			t.Errorf("entity %s has non-deterministic ID", node.Name)
		}
	}
}

func TestExtractRewritesUnknownTypes(t *testing.T) {
	llm := &scriptedLLM{payloads: []string{`{
		"entities": [{"name": "Quux", "type": "Widget", "description": "", "confidence": 0.5}],
		"relationships": []
	}`}}

	extractor := &Extractor{LLM: llm}
	kg, stats, err := extractor.Extract(context.Background(), testChunk("Quux."))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if kg.Nodes[0].Type != OtherEntityType {
		t.Errorf("unknown type = %q, want %q", kg.Nodes[0].Type, OtherEntityType)
	}
	if stats.RewrittenTypes != 1 {
		t.Errorf("RewrittenTypes = %d, want 1", stats.RewrittenTypes)
	}
}

func TestExtractDropsEdgesWithUnknownEndpoints(t *testing.T) {
	llm := &scriptedLLM{payloads: []string{`{
		"entities": [{"name": "Alice", "type": "Person", "description": "", "confidence": 0.9}],
		"relationships": [
			{"source_entity": "Alice", "target_entity": "Ghost", "relationship_type": "knows", "strength": 0.5, "confidence": 0.5}
		]
	}`}}

	extractor := &Extractor{LLM: llm}
	kg, stats, err := extractor.Extract(context.Background(), testChunk("Alice."))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(kg.Edges) != 0 {
		t.Fatalf("edge with unknown endpoint must be dropped, got %d edges", len(kg.Edges))
	}
	if stats.DroppedEdges != 1 {
		t.Errorf("DroppedEdges = %d, want 1", stats.DroppedEdges)
	}
}

func TestExtractLowYield(t *testing.T) {
	llm := &scriptedLLM{payloads: []string{`{"entities": [], "relationships": []}`}}

	extractor := &Extractor{LLM: llm}
	kg, stats, err := extractor.Extract(context.Background(), testChunk("Nothing here."))
	if err != nil {
		t.Fatalf("zero entities must not be an error: %v", err)
	}
	if len(kg.Nodes) != 0 || len(kg.Edges) != 0 {
		t.Errorf("expected empty graph")
	}
	if !stats.LowYield {
		t.Error("expected low-yield flag")
	}
}

func TestExtractPermanentErrorPropagates(t *testing.T) {
	llm := &scriptedLLM{err: errs.New(errs.KindPermanent, "invalid api key")}

	extractor := &Extractor{LLM: llm}
	_, _, err := extractor.Extract(context.Background(), testChunk("Alice."))
	if err == nil {
		t.Fatal("expected error")
	}
	if errs.KindOf(err) != errs.KindPermanent {
		t.Errorf("kind = %v, want permanent", errs.KindOf(err))
	}
	if llm.calls != 1 {
		t.Errorf("permanent errors must not be retried, got %d calls", llm.calls)
	}
}

func TestExtractRetriesTransientErrors(t *testing.T) {
	llm := &scriptedLLM{err: errs.New(errs.KindTransient, "upstream 503")}

	extractor := &Extractor{LLM: llm, Backoff: &ratelimit.BackoffPolicy{
		Base:        time.Nanosecond,
		Cap:         time.Nanosecond,
		MaxAttempts: 5,
	}}

	_, stats, err := extractor.Extract(context.Background(), testChunk("Alice."))
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if llm.calls != 5 {
		t.Errorf("expected 5 attempts, got %d", llm.calls)
	}
	if stats.Retries != 4 {
		t.Errorf("Retries = %d, want 4", stats.Retries)
	}
}
