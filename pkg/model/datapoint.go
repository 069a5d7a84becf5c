package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Node is the graph projection of a DataPoint: a typed node with scalar
// properties. Every node carries tenancy and provenance properties so the
// graph store can be filtered without joining back to the relational store.
type Node struct {
	ID    uuid.UUID
	Type  string
	Props map[string]any
}

// Edge is a typed directed edge in the graph projection.
type Edge struct {
	SourceID uuid.UUID
	TargetID uuid.UUID
	Type     string
	Props    map[string]any
}

// DataPoint is anything that can be written to the graph and vector stores.
// Nodes and Edges return the graph projection; IndexFields maps field names
// to the text that should be embedded and indexed for that field.
type DataPoint interface {
	PointID() uuid.UUID
	PointVersion() int
	Nodes() []Node
	Edges() []Edge
	IndexFields() map[string]string
}

// EdgeTypeMentions links a chunk to an entity extracted from it.
const EdgeTypeMentions = "mentions"

// NodeTypeChunk and NodeTypeEntity are the two node categories the writer
// produces; entity nodes additionally carry their semantic type as a property.
const (
	NodeTypeChunk  = "DocumentChunk"
	NodeTypeEntity = "Entity"
)

func (c DocumentChunk) PointID() uuid.UUID { return c.ID }
func (c DocumentChunk) PointVersion() int  { return c.Version }

func (c DocumentChunk) Nodes() []Node {
	return []Node{{
		ID:   c.ID,
		Type: NodeTypeChunk,
		Props: map[string]any{
			"tenant_id":      c.TenantID.String(),
			"dataset_id":     c.DatasetID.String(),
			"source_data_id": c.DataID.String(),
			"text":           c.Text,
			"chunk_index":    c.ChunkIndex,
			"token_count":    c.TokenCount,
			"start_line":     c.StartLine,
			"end_line":       c.EndLine,
			"start_char":     c.StartChar,
			"end_char":       c.EndChar,
			"page_number":    c.PageNumber,
			"cut_type":       string(c.CutType),
			"source_path":    c.SourcePath,
			"version":        c.Version,
		},
	}}
}

func (c DocumentChunk) Edges() []Edge { return nil }

func (c DocumentChunk) IndexFields() map[string]string {
	return map[string]string{"text": c.Text}
}

func (e Entity) PointID() uuid.UUID { return e.ID }
func (e Entity) PointVersion() int  { return e.Version }

func (e Entity) Nodes() []Node {
	props := map[string]any{
		"tenant_id":   e.TenantID.String(),
		"dataset_id":  e.DatasetID.String(),
		"name":        e.Name,
		"type":        e.Type,
		"description": e.Description,
		"confidence":  e.Confidence,
		"version":     e.Version,
	}
	if len(e.Aliases) > 0 {
		props["aliases"] = append([]string(nil), e.Aliases...)
	}
	if len(e.SourceChunks) > 0 {
		props["source_chunk_id"] = e.SourceChunks[0].String()
	}
	for k, v := range e.Properties {
		props[k] = v
	}
	return []Node{{ID: e.ID, Type: NodeTypeEntity, Props: props}}
}

// Edges projects one "mentions" edge per source chunk; the chunk nodes are
// written by their own DataPoints.
func (e Entity) Edges() []Edge {
	edges := make([]Edge, 0, len(e.SourceChunks))
	for _, chunkID := range e.SourceChunks {
		edges = append(edges, Edge{
			SourceID: chunkID,
			TargetID: e.ID,
			Type:     EdgeTypeMentions,
			Props:    map[string]any{"tenant_id": e.TenantID.String()},
		})
	}
	return edges
}

func (e Entity) IndexFields() map[string]string {
	fields := map[string]string{"name": e.Name}
	if e.Description != "" {
		fields["description"] = e.Description
	}
	return fields
}

// PointID of a relation is derived from its identity triple so rewriting the
// same relation twice upserts instead of duplicating.
func (r Relation) PointID() uuid.UUID {
	return DeriveID("relation", RelationKey(r.SourceID, r.TargetID, r.Type))
}

func (r Relation) PointVersion() int { return 0 }

// Nodes is empty: a relation's endpoints must already exist in the batch or
// the store, otherwise the writer drops the edge as an integrity violation.
func (r Relation) Nodes() []Node { return nil }

func (r Relation) Edges() []Edge {
	props := map[string]any{
		"weight":          r.Weight,
		"confidence":      r.Confidence,
		"source_chunk_id": r.SourceChunk.String(),
	}
	for k, v := range r.Properties {
		props[k] = v
	}
	return []Edge{{SourceID: r.SourceID, TargetID: r.TargetID, Type: r.Type, Props: props}}
}

func (r Relation) IndexFields() map[string]string { return nil }

// EdgeKey is the dedup identity of a projected edge.
func EdgeKey(e Edge) string {
	return fmt.Sprintf("%s|%s|%s", e.SourceID, e.TargetID, e.Type)
}
