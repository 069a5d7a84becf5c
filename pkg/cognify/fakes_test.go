package cognify

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/everspan/cognita/pkg/ai"
	"github.com/everspan/cognita/pkg/errs"
	"github.com/everspan/cognita/pkg/model"
	"github.com/everspan/cognita/pkg/store"
)

// ---- relational store ----

type memoryRelational struct {
	mu       sync.Mutex
	datasets map[uuid.UUID]model.Dataset
	data     map[uuid.UUID]model.Data
	links    map[uuid.UUID][]uuid.UUID // dataset -> data ids
	aliases  map[uuid.UUID]uuid.UUID
	runs     map[string]model.PipelineRun
}

func newMemoryRelational() *memoryRelational {
	return &memoryRelational{
		datasets: make(map[uuid.UUID]model.Dataset),
		data:     make(map[uuid.UUID]model.Data),
		links:    make(map[uuid.UUID][]uuid.UUID),
		aliases:  make(map[uuid.UUID]uuid.UUID),
		runs:     make(map[string]model.PipelineRun),
	}
}

func (s *memoryRelational) CreateDataset(_ context.Context, dataset *model.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[dataset.ID] = *dataset
	return nil
}

func (s *memoryRelational) GetDataset(_ context.Context, tenantID, datasetID uuid.UUID) (*model.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dataset, ok := s.datasets[datasetID]
	if !ok || dataset.TenantID != tenantID {
		return nil, errs.Newf(errs.KindNotFound, "dataset %s not found", datasetID)
	}
	return &dataset, nil
}

func (s *memoryRelational) DeleteDataset(_ context.Context, tenantID, datasetID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dataset, ok := s.datasets[datasetID]
	if !ok || dataset.TenantID != tenantID {
		return errs.Newf(errs.KindNotFound, "dataset %s not found", datasetID)
	}
	delete(s.datasets, datasetID)
	for _, dataID := range s.links[datasetID] {
		delete(s.data, dataID)
	}
	delete(s.links, datasetID)
	return nil
}

func (s *memoryRelational) PersistData(_ context.Context, data *model.Data, datasetID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[data.ID]; !ok {
		s.data[data.ID] = *data
	}
	for _, existing := range s.links[datasetID] {
		if existing == data.ID {
			return nil
		}
	}
	s.links[datasetID] = append(s.links[datasetID], data.ID)
	return nil
}

func (s *memoryRelational) ListData(_ context.Context, datasetID uuid.UUID) ([]model.Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Data
	for _, dataID := range s.links[datasetID] {
		out = append(out, s.data[dataID])
	}
	return out, nil
}

func (s *memoryRelational) UpdateDataStatus(_ context.Context, dataID uuid.UUID, status model.PipelineStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.data[dataID]; ok {
		data.PipelineStatus = status
		s.data[dataID] = data
	}
	return nil
}

func (s *memoryRelational) DedupData(_ context.Context, tenantID uuid.UUID, contentHash string) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, data := range s.data {
		if data.TenantID == tenantID && data.ContentHash == contentHash {
			return data.ID, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (s *memoryRelational) SaveEntityAliases(_ context.Context, _ uuid.UUID, aliasOf map[uuid.UUID]uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for alias, canonical := range aliasOf {
		s.aliases[alias] = canonical
	}
	return nil
}

func (s *memoryRelational) ResolveEntityAlias(_ context.Context, _, entityID uuid.UUID) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	canonical, ok := s.aliases[entityID]
	return canonical, ok, nil
}

func (s *memoryRelational) CreateRun(_ context.Context, run *model.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

func (s *memoryRelational) UpdateRun(_ context.Context, run *model.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

func (s *memoryRelational) GetRun(_ context.Context, runID string) (*model.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "run %s not found", runID)
	}
	return &run, nil
}

func (s *memoryRelational) ListRuns(_ context.Context, datasetID uuid.UUID, _ int) ([]model.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PipelineRun
	for _, run := range s.runs {
		if run.DatasetID == datasetID {
			out = append(out, run)
		}
	}
	return out, nil
}

// ---- graph store ----

type memoryGraph struct {
	mu    sync.Mutex
	nodes map[uuid.UUID]model.Node
	edges map[string]model.Edge
}

func newMemoryGraph() *memoryGraph {
	return &memoryGraph{nodes: make(map[uuid.UUID]model.Node), edges: make(map[string]model.Edge)}
}

func (g *memoryGraph) AddNodes(_ context.Context, nodes []model.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, node := range nodes {
		g.nodes[node.ID] = node
	}
	return nil
}

func (g *memoryGraph) AddEdges(_ context.Context, edges []model.Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, edge := range edges {
		g.edges[model.EdgeKey(edge)] = edge
	}
	return nil
}

func (g *memoryGraph) QueryNodesByIDs(_ context.Context, ids []uuid.UUID) ([]model.Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []model.Node
	for _, id := range ids {
		if node, ok := g.nodes[id]; ok {
			out = append(out, node)
		}
	}
	return out, nil
}

func (g *memoryGraph) QueryNeighbors(_ context.Context, id uuid.UUID, _ int) ([]model.Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []model.Edge
	for _, edge := range g.edges {
		if edge.SourceID == id || edge.TargetID == id {
			out = append(out, edge)
		}
	}
	return out, nil
}

func (g *memoryGraph) DeleteSubgraph(_ context.Context, datasetID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, node := range g.nodes {
		if node.Props["dataset_id"] == datasetID.String() {
			delete(g.nodes, id)
		}
	}
	for key, edge := range g.edges {
		if _, srcOK := g.nodes[edge.SourceID]; !srcOK {
			delete(g.edges, key)
			continue
		}
		if _, tgtOK := g.nodes[edge.TargetID]; !tgtOK {
			delete(g.edges, key)
		}
	}
	return nil
}

func (g *memoryGraph) entityEdgeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	count := 0
	for _, edge := range g.edges {
		if edge.Type != model.EdgeTypeMentions {
			count++
		}
	}
	return count
}

func (g *memoryGraph) nodeIDs() map[uuid.UUID]struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make(map[uuid.UUID]struct{}, len(g.nodes))
	for id := range g.nodes {
		ids[id] = struct{}{}
	}
	return ids
}

func (g *memoryGraph) edgeKeys() map[string]struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := make(map[string]struct{}, len(g.edges))
	for key := range g.edges {
		keys[key] = struct{}{}
	}
	return keys
}

// ---- vector store ----

type memoryVector struct {
	mu          sync.Mutex
	collections map[string]map[uuid.UUID]store.VectorRecord
}

func newMemoryVector() *memoryVector {
	return &memoryVector{collections: make(map[string]map[uuid.UUID]store.VectorRecord)}
}

func (v *memoryVector) Upsert(_ context.Context, collection string, records []store.VectorRecord) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.collections[collection] == nil {
		v.collections[collection] = make(map[uuid.UUID]store.VectorRecord)
	}
	for _, record := range records {
		v.collections[collection][record.ID] = record
	}
	return nil
}

func (v *memoryVector) Search(_ context.Context, collection string, vector []float32, k int) ([]store.SearchHit, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var hits []store.SearchHit
	for _, record := range v.collections[collection] {
		hits = append(hits, store.SearchHit{ID: record.ID, Score: cosine(vector, record.Vector), Payload: record.Payload})
	}
	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (v *memoryVector) Scan(_ context.Context, collection string, limit int) ([]store.SearchHit, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var hits []store.SearchHit
	for _, record := range v.collections[collection] {
		hits = append(hits, store.SearchHit{ID: record.ID, Payload: record.Payload})
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

func (v *memoryVector) DeleteByFilter(_ context.Context, collection string, _ map[string]any) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.collections, collection)
	return nil
}

func (v *memoryVector) count(collection string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.collections[collection])
}

func (v *memoryVector) totalCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	total := 0
	for _, records := range v.collections {
		total += len(records)
	}
	return total
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := 0; i < len(a) && i < len(b); i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func sortHits(hits []store.SearchHit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0; j-- {
			if hits[j].Score > hits[j-1].Score ||
				(hits[j].Score == hits[j-1].Score && hits[j].ID.String() < hits[j-1].ID.String()) {
				hits[j], hits[j-1] = hits[j-1], hits[j]
				continue
			}
			break
		}
	}
}

// ---- AI fakes ----

// hashEmbedder maps texts to deterministic unit vectors; identical texts get
// identical embeddings.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		sum := [8]float32{}
		for j, r := range strings.ToLower(text) {
			sum[(j+int(r))%8] += float32((int(r) % 13) + 1)
		}
		out[i] = sum[:]
	}
	return out, nil
}

func (hashEmbedder) Dimensions() int { return 8 }

// scriptedExtractor answers structured calls from a per-snippet script.
// Validation and rerank calls approve everything.
type scriptedExtractor struct {
	mu sync.Mutex
	// responses maps a substring of the chunk text to the extraction JSON
	responses map[string]string
	delay     time.Duration
	calls     int
	cancelled int
}

func (s *scriptedExtractor) Complete(_ context.Context, _ string, _ ...ai.GenerateOption) (string, error) {
	return "Grounded answer [1].", nil
}

func (s *scriptedExtractor) CompleteStream(_ context.Context, _ string, _ ...ai.GenerateOption) (<-chan string, error) {
	ch := make(chan string, 1)
	ch <- "Grounded answer [1]."
	close(ch)
	return ch, nil
}

func (s *scriptedExtractor) StructuredComplete(ctx context.Context, name, _, prompt string, out any, _ ...ai.GenerateOption) error {
	s.mu.Lock()
	s.calls++
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cancelled++
			s.mu.Unlock()
			return errs.Wrap(errs.KindCancelled, "structured call", ctx.Err())
		case <-time.After(delay):
		}
	}

	switch name {
	case "extract_knowledge_graph":
		s.mu.Lock()
		defer s.mu.Unlock()
		for snippet, payload := range s.responses {
			if strings.Contains(prompt, snippet) {
				return json.Unmarshal([]byte(payload), out)
			}
		}
		return json.Unmarshal([]byte(`{"entities": [], "relationships": []}`), out)

	case "validate_relations":
		verdicts := []map[string]any{}
		for i := 0; i < strings.Count(prompt, "\n")+64; i++ {
			verdicts = append(verdicts, map[string]any{"index": i, "confidence": 0.9, "reason": "stated"})
		}
		raw, _ := json.Marshal(map[string]any{"verdicts": verdicts})
		return json.Unmarshal(raw, out)

	default:
		return json.Unmarshal([]byte(`{"scores": []}`), out)
	}
}

func (s *scriptedExtractor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
