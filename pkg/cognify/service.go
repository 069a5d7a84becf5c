package cognify

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/everspan/cognita/pkg/ai"
	"github.com/everspan/cognita/pkg/answer"
	"github.com/everspan/cognita/pkg/chunker"
	"github.com/everspan/cognita/pkg/errs"
	"github.com/everspan/cognita/pkg/graph"
	"github.com/everspan/cognita/pkg/leaselock"
	"github.com/everspan/cognita/pkg/loader"
	"github.com/everspan/cognita/pkg/logger"
	"github.com/everspan/cognita/pkg/model"
	"github.com/everspan/cognita/pkg/pipeline"
	"github.com/everspan/cognita/pkg/ratelimit"
	"github.com/everspan/cognita/pkg/retrieve"
	"github.com/everspan/cognita/pkg/store"
	"github.com/everspan/cognita/pkg/writer"
)

// User is the authenticated principal the outer layer supplies.
type User struct {
	ID       uuid.UUID
	TenantID uuid.UUID
}

// Options tunes one Cognify invocation. Zero values inherit the service
// configuration.
type Options struct {
	ChunkSize       int
	ChunkOverlap    int
	Chunker         string
	GraphModel      string
	EntityTypes     []string
	Temporal        bool
	Validation      *bool
	Resolution      *bool
	RunInBackground bool
}

// Service is the engine facade: Cognify builds the artifacts, Search queries
// them, SubscribeRun streams run progress.
type Service struct {
	Config     Config
	Relational store.RelationalStore
	Graph      store.GraphStore
	Vector     store.VectorStore
	LLM        ai.LLM
	Embedder   ai.Embedder

	Limiter *ratelimit.Registry
	Locks   *leaselock.Client
	Loaders *loader.Registry
	Hub     *pipeline.Hub

	breaker *ratelimit.Breaker
}

// NewService wires the facade. Hub and Limiter are created when absent so a
// minimal caller only supplies stores and AI capabilities.
func NewService(s Service) *Service {
	if s.Hub == nil {
		s.Hub = pipeline.NewHub()
	}
	if s.Limiter == nil {
		s.Limiter = ratelimit.NewRegistry(10, 4)
	}
	if s.Loaders == nil {
		s.Loaders = loader.NewRegistry(loader.NewTextLoader(nil))
	}
	if s.Config.TopK == 0 {
		s.Config = DefaultConfig()
	}
	s.breaker = ratelimit.NewBreaker(ratelimit.BreakerConfig{Name: s.Config.Provider + "/chat"})
	return &s
}

// Cognify runs the ingestion pipeline over the datasets' data and returns the
// run ID. With RunInBackground the run executes on a detached context and the
// caller follows progress via SubscribeRun.
func (s *Service) Cognify(ctx context.Context, datasetIDs []uuid.UUID, user User, opts Options) (string, error) {
	if len(datasetIDs) == 0 {
		return "", errs.New(errs.KindValidation, "at least one dataset is required")
	}
	for _, datasetID := range datasetIDs {
		if _, err := s.Relational.GetDataset(ctx, user.TenantID, datasetID); err != nil {
			return "", err
		}
	}

	runID, err := gonanoid.New()
	if err != nil {
		return "", err
	}

	run := &model.PipelineRun{
		ID:        runID,
		DatasetID: datasetIDs[0],
		UserID:    user.ID,
	}

	if opts.RunInBackground {
		// pre-create the broadcaster so a subscriber attaching right after
		// this call sees every event
		s.Hub.ForRun(runID)
		go func() {
			bgCtx := context.WithoutCancel(ctx)
			if _, err := s.execute(bgCtx, run, datasetIDs, user, opts); err != nil {
				logger.Error("[Cognify] Background run failed to persist state", "run_id", runID, "err", err)
			}
		}()
		return runID, nil
	}

	_, err = s.execute(ctx, run, datasetIDs, user, opts)
	return runID, err
}

// SubscribeRun attaches to a run's event stream. The returned cancel
// function detaches the subscriber.
func (s *Service) SubscribeRun(runID string) (<-chan model.Event, func()) {
	return s.Hub.ForRun(runID).Subscribe()
}

// GetRun returns the persisted state of a run.
func (s *Service) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	return s.Relational.GetRun(ctx, runID)
}

// extraction pairs a chunk with its extracted graph while the pipeline moves
// between stages.
type extraction struct {
	chunk model.DocumentChunk
	graph model.KnowledgeGraph
}

func (s *Service) execute(ctx context.Context, run *model.PipelineRun, datasetIDs []uuid.UUID, user User, opts Options) (*model.PipelineRun, error) {
	cfg := s.Config

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = cfg.ChunkSize
	}
	chunkOverlap := opts.ChunkOverlap
	if chunkOverlap <= 0 {
		chunkOverlap = cfg.ChunkOverlap
	}
	validation := cfg.ValidationEnabled
	if opts.Validation != nil {
		validation = *opts.Validation
	}
	resolution := cfg.ResolutionEnabled
	if opts.Resolution != nil {
		resolution = *opts.Resolution
	}

	extractor := &graph.Extractor{
		LLM:      s.LLM,
		Limiter:  s.Limiter,
		Breaker:  s.breaker,
		Backoff:  s.backoff(),
		Provider: cfg.Provider,
		Model:    firstNonEmpty(opts.GraphModel, cfg.ChatModel),
		Types:    firstNonEmptySlice(opts.EntityTypes, cfg.EntityTypes),
		Deadline: cfg.LLMDeadline,
	}

	tokenizer := chunker.NewTokenizer("")

	engine := &pipeline.Engine{
		Store:   s.Relational,
		Hub:     s.Hub,
		Workers: cfg.WorkerPool,
	}

	tasks := []pipeline.Task{
		{
			Name: "chunk_documents",
			Mode: pipeline.ModeValue,
			Run: func(ctx context.Context, in []any, c *pipeline.Counters) ([]any, error) {
				return s.chunkDocuments(ctx, in, chunkSize, chunkOverlap, tokenizer, c)
			},
		},
		{
			Name:    "extract_graph",
			Mode:    pipeline.ModeParallelStream,
			Workers: cfg.WorkerPool,
			Each: func(ctx context.Context, item any, c *pipeline.Counters) (any, error) {
				chunk := item.(model.DocumentChunk)
				kg, stats, err := extractor.Extract(ctx, chunk)
				c.Retries.Add(int64(stats.Retries))
				if stats.LowYield {
					c.LowYield.Add(1)
				}
				c.Dropped.Add(int64(stats.DroppedEdges))
				if err != nil {
					return nil, err
				}
				return extraction{chunk: chunk, graph: kg}, nil
			},
		},
		{
			Name: "validate_graph",
			Mode: pipeline.ModeValue,
			Run: func(ctx context.Context, in []any, c *pipeline.Counters) ([]any, error) {
				if !validation {
					return in, nil
				}
				return s.validateGraph(ctx, run, in, c)
			},
		},
		{
			Name: "resolve_entities",
			Mode: pipeline.ModeValue,
			Run: func(ctx context.Context, in []any, c *pipeline.Counters) ([]any, error) {
				return s.resolveEntities(ctx, user, in, resolution, c)
			},
		},
		{
			Name: "write_artifacts",
			Mode: pipeline.ModeValue,
			Run: func(ctx context.Context, in []any, c *pipeline.Counters) ([]any, error) {
				return s.writeArtifacts(ctx, user, run.DatasetID, in, c)
			},
		},
	}

	seed := make([]any, 0, len(datasetIDs))
	for _, datasetID := range datasetIDs {
		seed = append(seed, datasetID)
	}

	return engine.Run(ctx, run, tasks, seed)
}

func (s *Service) backoff() *ratelimit.BackoffPolicy {
	policy := ratelimit.DefaultBackoff()
	if s.Config.ExtractorMaxRetries > 0 {
		policy.MaxAttempts = s.Config.ExtractorMaxRetries
	}
	return policy
}

// chunkDocuments loads and splits every data record of the seed datasets.
// A per-document failure marks that record failed and the batch proceeds;
// the stage only fails when every document failed.
func (s *Service) chunkDocuments(
	ctx context.Context,
	in []any,
	chunkSize, chunkOverlap int,
	tokenizer *chunker.Tokenizer,
	c *pipeline.Counters,
) ([]any, error) {
	var out []any
	totalDocs := 0
	failedDocs := 0
	var lastErr error

	for _, item := range in {
		datasetID := item.(uuid.UUID)
		records, err := s.Relational.ListData(ctx, datasetID)
		if err != nil {
			return nil, err
		}

		for _, data := range records {
			totalDocs++
			chunks, err := s.chunkOne(ctx, data, datasetID, chunkSize, chunkOverlap, tokenizer)
			if err != nil {
				failedDocs++
				lastErr = err
				c.Dropped.Add(1)
				logger.Error("[Cognify] Document failed to chunk", "data_id", data.ID, "err", err)
				if statusErr := s.Relational.UpdateDataStatus(ctx, data.ID, model.PipelineFailed); statusErr != nil {
					logger.Warn("[Cognify] Failed to mark data failed", "data_id", data.ID, "err", statusErr)
				}
				continue
			}
			if err := s.Relational.UpdateDataStatus(ctx, data.ID, model.PipelineRunning); err != nil {
				logger.Warn("[Cognify] Failed to mark data running", "data_id", data.ID, "err", err)
			}
			for _, chunk := range chunks {
				out = append(out, chunk)
			}
		}
	}

	if totalDocs > 0 && failedDocs == totalDocs {
		return nil, errs.Wrap(errs.KindValidation, "all documents failed to chunk", lastErr)
	}
	return out, nil
}

func (s *Service) chunkOne(
	ctx context.Context,
	data model.Data,
	datasetID uuid.UUID,
	chunkSize, chunkOverlap int,
	tokenizer *chunker.Tokenizer,
) ([]model.DocumentChunk, error) {
	ext := filepath.Ext(data.SourcePath)
	fileLoader, ok := s.Loaders.Resolve(ext, data.Mime)
	if !ok {
		return nil, &chunker.ChunkingError{DataID: data.ID, Err: fmt.Errorf("no loader for %q (%s)", ext, data.Mime)}
	}

	doc, err := fileLoader.Load(ctx, data.SourcePath)
	if err != nil {
		return nil, &chunker.ChunkingError{DataID: data.ID, Err: err}
	}

	stream := chunker.Split(chunker.Document{
		DataID:     data.ID,
		TenantID:   data.TenantID,
		DatasetID:  datasetID,
		SourcePath: data.SourcePath,
		Text:       doc.Text,
		Blocks:     doc.Blocks,
		Version:    1,
	}, chunker.Params{
		MaxTokens: chunkSize,
		Overlap:   chunkOverlap,
		Tokenizer: tokenizer,
	})
	return stream.Collect()
}

func (s *Service) validateGraph(ctx context.Context, run *model.PipelineRun, in []any, c *pipeline.Counters) ([]any, error) {
	entityNames := make(map[uuid.UUID]string)
	chunkTexts := make(map[uuid.UUID]string)
	for _, item := range in {
		ex := item.(extraction)
		chunkTexts[ex.chunk.ID] = ex.chunk.Text
		for _, entity := range ex.graph.Nodes {
			entityNames[entity.ID] = entity.Name
		}
	}

	validator := &graph.Validator{
		LLM:       s.LLM,
		Limiter:   s.Limiter,
		Backoff:   s.backoff(),
		Provider:  s.Config.Provider,
		Model:     s.Config.ChatModel,
		Threshold: s.Config.ValidateThreshold,
		Deadline:  s.Config.LLMDeadline,
	}

	out := make([]any, 0, len(in))
	degraded := false
	for _, item := range in {
		ex := item.(extraction)
		kept, stats, err := validator.Validate(ctx, ex.graph.Edges,
			func(id uuid.UUID) string { return entityNames[id] },
			func(id uuid.UUID) string { return chunkTexts[id] },
		)
		if err != nil {
			return nil, err
		}
		c.Retries.Add(int64(stats.Retries))
		c.Dropped.Add(int64(stats.Dropped))
		if stats.Degraded {
			degraded = true
		}
		ex.graph.Edges = kept
		out = append(out, ex)
	}

	if degraded {
		run.Warnings = append(run.Warnings, "relation validator unavailable; default confidence applied")
	}
	return out, nil
}

func (s *Service) resolveEntities(ctx context.Context, user User, in []any, enabled bool, c *pipeline.Counters) ([]any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	var chunks []model.DocumentChunk
	var entities []model.Entity
	var relations []model.Relation
	for _, item := range in {
		ex := item.(extraction)
		chunks = append(chunks, ex.chunk)
		entities = append(entities, ex.graph.Nodes...)
		relations = append(relations, ex.graph.Edges...)
	}

	if !enabled {
		return []any{resolved{chunks: chunks, entities: entities, relations: graph.RemapRelations(relations, nil)}}, nil
	}

	resolver := &graph.Resolver{
		FuzzyThreshold: s.Config.FuzzyThreshold,
		EmbedThreshold: s.Config.EmbedThreshold,
		Embedder:       s.Embedder,
	}
	result, err := resolver.Resolve(ctx, entities)
	if err != nil {
		return nil, err
	}
	c.Dropped.Add(int64(result.Merged))

	if len(result.AliasOf) > 0 {
		if err := s.Relational.SaveEntityAliases(ctx, user.TenantID, result.AliasOf); err != nil {
			return nil, err
		}
	}

	return []any{resolved{
		chunks:    chunks,
		entities:  result.Entities,
		relations: graph.RemapRelations(relations, result.AliasOf),
	}}, nil
}

// resolved is the final pre-write payload.
type resolved struct {
	chunks    []model.DocumentChunk
	entities  []model.Entity
	relations []model.Relation
}

func (s *Service) writeArtifacts(ctx context.Context, user User, datasetID uuid.UUID, in []any, c *pipeline.Counters) ([]any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	payload := in[0].(resolved)

	points := make([]model.DataPoint, 0, len(payload.chunks)+len(payload.entities)+len(payload.relations))
	for _, chunk := range payload.chunks {
		points = append(points, chunk)
	}
	for _, entity := range payload.entities {
		points = append(points, entity)
	}
	for _, relation := range payload.relations {
		points = append(points, relation)
	}

	w := &writer.Writer{
		Graph:      s.Graph,
		Vector:     s.Vector,
		Embedder:   s.Embedder,
		Limiter:    s.Limiter,
		Backoff:    s.backoff(),
		Provider:   s.Config.Provider,
		EmbedBatch: s.Config.EmbedBatch,
	}

	write := func(ctx context.Context) error {
		stats, err := w.Write(ctx, user.TenantID, datasetID, points)
		c.Dropped.Add(int64(stats.EdgesDropped))
		c.Written.Add(int64(stats.NodesWritten))
		if err != nil {
			return err
		}

		seenData := make(map[uuid.UUID]struct{})
		for _, chunk := range payload.chunks {
			if _, ok := seenData[chunk.DataID]; ok {
				continue
			}
			seenData[chunk.DataID] = struct{}{}
			if err := s.Relational.UpdateDataStatus(ctx, chunk.DataID, model.PipelineCompleted); err != nil {
				logger.Warn("[Cognify] Failed to mark data completed", "data_id", chunk.DataID, "err", err)
			}
		}

		return s.auditIntegrity(ctx, user, datasetID, payload.entities)
	}

	var err error
	if s.Locks != nil {
		err = s.Locks.WithLease(ctx, "dataset:"+datasetID.String(), leaselock.Options{Wait: true}, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		return nil, err
	}

	return []any{payload}, nil
}

func (s *Service) auditIntegrity(ctx context.Context, user User, datasetID uuid.UUID, entities []model.Entity) error {
	ids := make([]uuid.UUID, 0, len(entities))
	for _, entity := range entities {
		ids = append(ids, entity.ID)
	}
	report, err := writer.CheckIntegrity(ctx, s.Graph, s.Vector, user.TenantID, datasetID, ids)
	if err != nil {
		logger.Warn("[Cognify] Integrity audit failed", "dataset_id", datasetID, "err", err)
		return nil
	}
	if !report.Clean() {
		logger.Warn("[Cognify] Integrity audit found violations",
			"dataset_id", datasetID,
			"missing_endpoints", report.MissingEndpoints,
			"orphan_vectors", report.OrphanVectorRecords)
	}
	return nil
}

// DeleteDataset removes the dataset, its data records and every derived
// graph and vector artifact.
func (s *Service) DeleteDataset(ctx context.Context, user User, datasetID uuid.UUID) error {
	if err := s.Relational.DeleteDataset(ctx, user.TenantID, datasetID); err != nil {
		return err
	}
	if err := s.Graph.DeleteSubgraph(ctx, datasetID); err != nil {
		return err
	}
	for _, spec := range []struct{ nodeType, field string }{
		{model.NodeTypeChunk, "text"},
		{model.NodeTypeEntity, "name"},
		{model.NodeTypeEntity, "description"},
	} {
		collection := store.CollectionName(user.TenantID, datasetID, spec.nodeType, spec.field)
		if err := s.Vector.DeleteByFilter(ctx, collection, nil); err != nil {
			return err
		}
	}
	return nil
}

// SearchType selects the retrieval and completion strategy.
type SearchType string

const (
	SearchRAG             SearchType = "RAG"
	SearchGraphCompletion SearchType = "GRAPH_COMPLETION"
	SearchHybrid          SearchType = "HYBRID"
	SearchChunks          SearchType = "CHUNKS"
	SearchNaturalLanguage SearchType = "NATURAL_LANGUAGE"
)

// SearchParams is one query over a user's datasets.
type SearchParams struct {
	Query     string
	Type      SearchType
	Datasets  []uuid.UUID
	TopK      int
	SessionID string
}

// SearchResult is the answer plus the context and citations behind it.
type SearchResult struct {
	Result    string            `json:"result"`
	Context   []retrieve.Result `json:"context"`
	Citations []answer.Citation `json:"citations,omitempty"`
	Degraded  bool              `json:"degraded,omitempty"`
	Warnings  []string          `json:"warnings,omitempty"`
}

// Search retrieves context with the requested strategy and, for completion
// types, generates a grounded answer.
func (s *Service) Search(ctx context.Context, user User, params SearchParams) (*SearchResult, error) {
	if params.Query == "" {
		return nil, errs.New(errs.KindValidation, "query is empty")
	}
	if len(params.Datasets) == 0 {
		return nil, errs.New(errs.KindValidation, "at least one dataset is required")
	}
	topK := params.TopK
	if topK <= 0 {
		topK = s.Config.TopK
	}
	if topK > 100 {
		return nil, errs.New(errs.KindValidation, "topK exceeds the maximum of 100")
	}

	vectorRetriever := &retrieve.VectorRetriever{Vector: s.Vector, Embedder: s.Embedder}
	graphRetriever := &retrieve.GraphRetriever{
		Graph:               s.Graph,
		Vector:              s.Vector,
		Embedder:            s.Embedder,
		SimilarityThreshold: s.Config.SimilarityThreshold,
	}
	lexicalRetriever := &retrieve.LexicalRetriever{Vector: s.Vector}

	out := &SearchResult{}
	switch params.Type {
	case SearchChunks:
		results, err := s.gather(ctx, user, params.Datasets, params.Query, topK, vectorRetriever)
		if err != nil {
			return nil, err
		}
		out.Context = results
		return out, nil

	case SearchRAG:
		results, err := s.gather(ctx, user, params.Datasets, params.Query, topK, vectorRetriever)
		if err != nil {
			return nil, err
		}
		out.Context = results

	case SearchGraphCompletion:
		results, err := s.gather(ctx, user, params.Datasets, params.Query, topK, graphRetriever)
		if err != nil {
			return nil, err
		}
		out.Context = results

	case SearchHybrid, SearchNaturalLanguage:
		hybrid := &retrieve.HybridRetriever{
			Vector:  vectorRetriever,
			Graph:   graphRetriever,
			Lexical: lexicalRetriever,
			Weights: retrieve.Weights{
				Vector:  s.Config.HybridVectorWeight,
				Graph:   s.Config.HybridGraphWeight,
				Lexical: s.Config.HybridLexicalWeight,
			},
			K:        s.Config.RRFK,
			Reranker: s.reranker(),
		}
		results, degraded, warnings, err := s.gatherHybrid(ctx, user, params.Datasets, params.Query, topK, hybrid)
		if err != nil {
			return nil, err
		}
		out.Context = results
		out.Degraded = degraded
		out.Warnings = warnings

	default:
		return nil, errs.Newf(errs.KindValidation, "unknown search type %q", params.Type)
	}

	generator := &answer.Generator{
		LLM:      s.LLM,
		Model:    s.Config.ChatModel,
		Deadline: s.Config.LLMDeadline,
	}
	result, citations, err := generator.Generate(ctx, params.Query, out.Context)
	if err != nil {
		return nil, err
	}
	out.Result = result
	out.Citations = citations
	return out, nil
}

func (s *Service) reranker() retrieve.Reranker {
	if !s.Config.RerankEnabled {
		return nil
	}
	return &retrieve.LLMReranker{LLM: s.LLM, Model: s.Config.ChatModel, Deadline: s.Config.LLMDeadline}
}

// gather runs one retriever over each dataset scope and merges by score.
func (s *Service) gather(
	ctx context.Context,
	user User,
	datasets []uuid.UUID,
	query string,
	topK int,
	retriever retrieve.Retriever,
) ([]retrieve.Result, error) {
	var all []retrieve.Result
	for _, datasetID := range datasets {
		scope := retrieve.Scope{TenantID: user.TenantID, DatasetID: datasetID}
		results, err := retriever.GetContext(ctx, scope, query, topK)
		if err != nil {
			return nil, err
		}
		all = append(all, results...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].ID < all[j].ID
	})
	if len(all) > topK {
		all = all[:topK]
	}
	return all, nil
}

func (s *Service) gatherHybrid(
	ctx context.Context,
	user User,
	datasets []uuid.UUID,
	query string,
	topK int,
	hybrid *retrieve.HybridRetriever,
) ([]retrieve.Result, bool, []string, error) {
	var all []retrieve.Result
	degraded := false
	var warnings []string
	for _, datasetID := range datasets {
		scope := retrieve.Scope{TenantID: user.TenantID, DatasetID: datasetID}
		result, err := hybrid.GetContext(ctx, scope, query, topK)
		if err != nil {
			return nil, false, nil, err
		}
		all = append(all, result.Results...)
		degraded = degraded || result.Degraded
		warnings = append(warnings, result.Warnings...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].ID < all[j].ID
	})
	if len(all) > topK {
		all = all[:topK]
	}
	return all, degraded, warnings, nil
}

// IngestText registers raw text as a Data record of the dataset with
// sourcePath as its location. Only the record is persisted; the text itself
// is not stored, so the configured loader must be able to read sourcePath.
// Re-ingesting identical bytes dedupes to the existing record.
func (s *Service) IngestText(ctx context.Context, user User, datasetID uuid.UUID, sourcePath, text string) (*model.Data, error) {
	hash := model.ContentHash([]byte(text))
	if existingID, ok, err := s.Relational.DedupData(ctx, user.TenantID, hash); err != nil {
		return nil, err
	} else if ok {
		data := &model.Data{
			ID:          existingID,
			TenantID:    user.TenantID,
			DatasetIDs:  []uuid.UUID{datasetID},
			ContentHash: hash,
			SourcePath:  sourcePath,
		}
		// link the existing record into this dataset as well
		if err := s.Relational.PersistData(ctx, data, datasetID); err != nil {
			return nil, err
		}
		return data, nil
	}

	data := &model.Data{
		ID:             model.DataID(user.TenantID, hash),
		TenantID:       user.TenantID,
		DatasetIDs:     []uuid.UUID{datasetID},
		ContentHash:    hash,
		Mime:           "text/plain",
		SourcePath:     sourcePath,
		PipelineStatus: model.PipelinePending,
	}
	if err := s.Relational.PersistData(ctx, data, datasetID); err != nil {
		return nil, err
	}
	return data, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptySlice(values ...[]string) []string {
	for _, v := range values {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}
