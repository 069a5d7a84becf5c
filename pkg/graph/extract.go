package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/everspan/cognita/pkg/ai"
	"github.com/everspan/cognita/pkg/logger"
	"github.com/everspan/cognita/pkg/model"
	"github.com/everspan/cognita/pkg/ratelimit"
)

// DefaultEntityTypes is the type vocabulary used when a dataset declares none.
var DefaultEntityTypes = []string{
	"Person", "Organization", "Location", "Concept",
	"CreativeWork", "Date", "Product", "Event",
}

// OtherEntityType absorbs model output whose type is not in the vocabulary.
const OtherEntityType = "Other"

type extractEntity struct {
	Name        string   `json:"name" jsonschema_description:"Name of the entity as it appears in the passage"`
	Type        string   `json:"type" jsonschema_description:"One of the allowed entity types"`
	Description string   `json:"description" jsonschema_description:"Comprehensive description of the entity based only on the passage"`
	Aliases     []string `json:"aliases" jsonschema_description:"Other names the passage uses for the same entity, including canonical spellings"`
	Confidence  float64  `json:"confidence" jsonschema_description:"Certainty that the entity is real and correctly typed, 0.0 to 1.0"`
}

type extractRelation struct {
	SourceEntity string  `json:"source_entity" jsonschema_description:"Name of the source entity, exactly as listed in entities"`
	TargetEntity string  `json:"target_entity" jsonschema_description:"Name of the target entity, exactly as listed in entities"`
	Type         string  `json:"relationship_type" jsonschema_description:"Short snake_case relationship type, e.g. works_at"`
	Strength     float64 `json:"strength" jsonschema_description:"How strongly the passage ties the two entities together, 0.0 to 1.0"`
	Confidence   float64 `json:"confidence" jsonschema_description:"Certainty that the relationship is stated or clearly implied, 0.0 to 1.0"`
}

type extractResponse struct {
	Entities      []extractEntity   `json:"entities" jsonschema_description:"Entities identified in the passage"`
	Relationships []extractRelation `json:"relationships" jsonschema_description:"Relationships between the identified entities"`
}

// ExtractStats reports per-chunk extraction outcomes for run counters.
type ExtractStats struct {
	LowYield       bool
	DroppedEdges   int
	RewrittenTypes int
	Retries        int
}

// Extractor turns one chunk into a KnowledgeGraph through a structured LLM
// call. Calls are gated by the provider token bucket and wrapped in the
// breaker and backoff policy; a permanent provider error fails the run.
type Extractor struct {
	LLM      ai.LLM
	Limiter  *ratelimit.Registry
	Breaker  *ratelimit.Breaker
	Backoff  *ratelimit.BackoffPolicy
	Provider string

	Model    string
	Types    []string
	Deadline time.Duration
}

// Extract produces the knowledge graph of a single chunk. Zero extracted
// entities is not an error: an empty graph is returned and the chunk is
// counted as low yield.
func (e *Extractor) Extract(ctx context.Context, chunk model.DocumentChunk) (model.KnowledgeGraph, ExtractStats, error) {
	var stats ExtractStats

	types := e.Types
	if len(types) == 0 {
		types = DefaultEntityTypes
	}
	typeList := strings.Join(types, ", ")
	systemPrompt := fmt.Sprintf(ai.ExtractPrompt, typeList, typeList)

	deadline := e.Deadline
	if deadline <= 0 {
		deadline = 60 * time.Second
	}

	var res extractResponse
	call := func(ctx context.Context) error {
		if e.Limiter != nil {
			if err := e.Limiter.Acquire(ctx, e.Provider, "chat"); err != nil {
				return err
			}
		}
		do := func(ctx context.Context) error {
			opts := []ai.GenerateOption{
				ai.WithSystemPrompts(systemPrompt),
				ai.WithTemperature(0),
				ai.WithDeadline(deadline),
			}
			if e.Model != "" {
				opts = append(opts, ai.WithModel(e.Model))
			}
			return e.LLM.StructuredComplete(
				ctx,
				"extract_knowledge_graph",
				"Extract entities and relationships from a document passage.",
				chunk.Text,
				&res,
				opts...,
			)
		}
		if e.Breaker != nil {
			return e.Breaker.Do(ctx, do)
		}
		return do(ctx)
	}

	backoff := e.Backoff
	if backoff == nil {
		backoff = ratelimit.DefaultBackoff()
	}
	retries, err := backoff.Do(ctx, "extract", call)
	stats.Retries = retries
	if err != nil {
		return model.KnowledgeGraph{}, stats, err
	}

	graph := e.buildGraph(chunk, res, types, &stats)
	if len(graph.Nodes) == 0 {
		stats.LowYield = true
		logger.Debug("[Extract] Low-yield chunk", "chunk_id", chunk.ID, "data_id", chunk.DataID)
	}
	return graph, stats, nil
}

func (e *Extractor) buildGraph(chunk model.DocumentChunk, res extractResponse, types []string, stats *ExtractStats) model.KnowledgeGraph {
	var graph model.KnowledgeGraph

	byName := make(map[string]int, len(res.Entities))
	for _, raw := range res.Entities {
		name := strings.TrimSpace(raw.Name)
		if name == "" {
			continue
		}

		entityType := matchType(raw.Type, types)
		if entityType == "" {
			logger.Debug("[Extract] Unknown entity type rewritten", "type", raw.Type, "entity", name)
			entityType = OtherEntityType
			stats.RewrittenTypes++
		}

		normalized := NormalizeName(name)
		entity := model.Entity{
			ID:           model.EntityID(chunk.TenantID, normalized, entityType),
			TenantID:     chunk.TenantID,
			DatasetID:    chunk.DatasetID,
			Name:         name,
			Type:         entityType,
			Description:  strings.TrimSpace(raw.Description),
			Aliases:      raw.Aliases,
			SourceChunks: []uuid.UUID{chunk.ID},
			Confidence:   clamp01(raw.Confidence),
			Version:      1,
		}

		key := normalized + "|" + entityType
		if idx, ok := byName[key]; ok {
			// the model occasionally lists an entity twice; keep the richer one
			if len(entity.Description) > len(graph.Nodes[idx].Description) {
				graph.Nodes[idx].Description = entity.Description
			}
			continue
		}
		byName[key] = len(graph.Nodes)
		graph.Nodes = append(graph.Nodes, entity)
	}

	lookup := func(name string) (model.Entity, bool) {
		normalized := NormalizeName(name)
		for key, idx := range byName {
			if strings.HasPrefix(key, normalized+"|") {
				return graph.Nodes[idx], true
			}
		}
		return model.Entity{}, false
	}

	seen := make(map[string]int)
	for _, raw := range res.Relationships {
		source, okS := lookup(raw.SourceEntity)
		target, okT := lookup(raw.TargetEntity)
		if !okS || !okT || source.ID == target.ID {
			stats.DroppedEdges++
			continue
		}

		relation := model.Relation{
			SourceID:    source.ID,
			TargetID:    target.ID,
			Type:        NormalizeRelationType(raw.Type),
			Weight:      clamp01(raw.Strength),
			Confidence:  clamp01(raw.Confidence),
			SourceChunk: chunk.ID,
		}

		key := model.RelationKey(relation.SourceID, relation.TargetID, relation.Type)
		if idx, ok := seen[key]; ok {
			if relation.Weight > graph.Edges[idx].Weight {
				graph.Edges[idx].Weight = relation.Weight
			}
			if relation.Confidence > graph.Edges[idx].Confidence {
				graph.Edges[idx].Confidence = relation.Confidence
			}
			continue
		}
		seen[key] = len(graph.Edges)
		graph.Edges = append(graph.Edges, relation)
	}

	return graph
}

func matchType(raw string, types []string) string {
	raw = strings.TrimSpace(raw)
	for _, t := range types {
		if strings.EqualFold(raw, t) {
			return t
		}
	}
	return ""
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
