package graph

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/everspan/cognita/pkg/ai"
	"github.com/everspan/cognita/pkg/logger"
	"github.com/everspan/cognita/pkg/model"
)

const (
	DefaultFuzzyThreshold = 0.85
	DefaultEmbedThreshold = 0.90

	// embedBandLow is the fuzzy score above which a pair that missed the
	// fuzzy threshold is re-examined with embeddings.
	embedBandLow = 0.60

	// lshLimit is the candidate count above which the fuzzy pass blocks
	// comparisons by the first three normalized characters.
	lshLimit = 10000
)

// ResolveResult carries the canonical entity set plus the alias_of side-table
// mapping every merged-away entity ID to its canonical ID.
type ResolveResult struct {
	Entities []model.Entity
	AliasOf  map[uuid.UUID]uuid.UUID
	Merged   int
}

// Resolver merges duplicate entity mentions into canonical entities using a
// deterministic union-find over normalization, alias, fuzzy and embedding
// evidence. Entities of different types are never merged. Resolve is
// idempotent: resolving an already-resolved set is a no-op.
type Resolver struct {
	FuzzyThreshold float64
	EmbedThreshold float64

	// Embedder is optional; without it the embedding pass is skipped.
	Embedder ai.Embedder
}

// Resolve merges duplicates within the candidate list. The input is not
// mutated.
func (r *Resolver) Resolve(ctx context.Context, entities []model.Entity) (*ResolveResult, error) {
	fuzzyThreshold := r.FuzzyThreshold
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = DefaultFuzzyThreshold
	}
	embedThreshold := r.EmbedThreshold
	if embedThreshold <= 0 {
		embedThreshold = DefaultEmbedThreshold
	}

	result := &ResolveResult{AliasOf: make(map[uuid.UUID]uuid.UUID)}
	if len(entities) == 0 {
		return result, nil
	}

	n := len(entities)
	normalized := make([]string, n)
	for i, entity := range entities {
		normalized[i] = NormalizeName(entity.Name)
	}

	uf := newUnionFind(n)

	// exact bucket: same (normalized name, type)
	exact := make(map[string]int, n)
	for i := range entities {
		key := normalized[i] + "|" + strings.ToLower(entities[i].Type)
		if j, ok := exact[key]; ok {
			uf.union(i, j)
			continue
		}
		exact[key] = i
	}

	// alias bucket: a declared alias matching another entity's name
	byName := make(map[string][]int, n)
	for i := range entities {
		byName[normalized[i]] = append(byName[normalized[i]], i)
	}
	for i, entity := range entities {
		for _, alias := range entity.Aliases {
			for _, j := range byName[NormalizeName(alias)] {
				if entities[j].Type == entity.Type {
					uf.union(i, j)
				}
			}
		}
	}

	// fuzzy pass within each type, optionally LSH-blocked; pairs landing in
	// the embedding band are deferred to the embedding pass
	var embedPairs [][2]int
	byType := make(map[string][]int)
	for i := range entities {
		byType[strings.ToLower(entities[i].Type)] = append(byType[strings.ToLower(entities[i].Type)], i)
	}
	for _, members := range byType {
		blocks := [][]int{members}
		if len(entities) > lshLimit {
			blocks = blockByPrefix(members, normalized)
		}
		for _, block := range blocks {
			for a := 0; a < len(block); a++ {
				for b := a + 1; b < len(block); b++ {
					i, j := block[a], block[b]
					if uf.find(i) == uf.find(j) {
						continue
					}
					score := nameSimilarity(normalized[i], normalized[j])
					switch {
					case score >= fuzzyThreshold:
						uf.union(i, j)
					case score >= embedBandLow:
						embedPairs = append(embedPairs, [2]int{i, j})
					}
				}
			}
		}
	}

	// embedding pass for near-miss pairs
	if len(embedPairs) > 0 && r.Embedder != nil {
		if err := r.embedPass(ctx, entities, embedPairs, embedThreshold, uf); err != nil {
			return nil, err
		}
	}

	// canonicalization
	groups := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}

	roots := make([]int, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	sort.Ints(roots)

	for _, root := range roots {
		members := groups[root]
		if len(members) == 1 {
			result.Entities = append(result.Entities, entities[members[0]])
			continue
		}
		merged, _ := mergeGroup(entities, normalized, members)
		result.Entities = append(result.Entities, merged)
		result.Merged += len(members) - 1
		for _, i := range members {
			if entities[i].ID == merged.ID {
				continue
			}
			result.AliasOf[entities[i].ID] = merged.ID
		}
	}

	if result.Merged > 0 {
		logger.Debug("[Resolve] Entities merged", "in", n, "out", len(result.Entities), "merged", result.Merged)
	}
	return result, nil
}

func (r *Resolver) embedPass(ctx context.Context, entities []model.Entity, pairs [][2]int, threshold float64, uf *unionFind) error {
	needed := make(map[int]struct{})
	for _, pair := range pairs {
		needed[pair[0]] = struct{}{}
		needed[pair[1]] = struct{}{}
	}
	indices := make([]int, 0, len(needed))
	for i := range needed {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	texts := make([]string, len(indices))
	for pos, i := range indices {
		texts[pos] = entities[i].Name
	}
	vectors, err := r.Embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}

	byIndex := make(map[int][]float32, len(indices))
	for pos, i := range indices {
		byIndex[i] = vectors[pos]
	}

	for _, pair := range pairs {
		i, j := pair[0], pair[1]
		if uf.find(i) == uf.find(j) {
			continue
		}
		if CosineSimilarity(byIndex[i], byIndex[j]) >= threshold {
			uf.union(i, j)
		}
	}
	return nil
}

// mergeGroup picks the canonical member by (highest confidence, longest
// description, lexicographically smallest name) and absorbs the rest.
func mergeGroup(entities []model.Entity, normalized []string, members []int) (model.Entity, int) {
	canonicalIdx := members[0]
	for _, i := range members[1:] {
		a, b := entities[i], entities[canonicalIdx]
		switch {
		case a.Confidence > b.Confidence:
			canonicalIdx = i
		case a.Confidence == b.Confidence && len(a.Description) > len(b.Description):
			canonicalIdx = i
		case a.Confidence == b.Confidence && len(a.Description) == len(b.Description) && a.Name < b.Name:
			canonicalIdx = i
		}
	}

	merged := entities[canonicalIdx]
	merged.Aliases = append([]string(nil), merged.Aliases...)
	merged.SourceChunks = append([]uuid.UUID(nil), merged.SourceChunks...)
	if merged.Properties != nil {
		props := make(map[string]string, len(merged.Properties))
		for k, v := range merged.Properties {
			props[k] = v
		}
		merged.Properties = props
	}

	aliasSet := make(map[string]struct{}, len(members))
	for _, alias := range merged.Aliases {
		aliasSet[alias] = struct{}{}
	}
	chunkSet := make(map[uuid.UUID]struct{}, len(merged.SourceChunks))
	for _, chunkID := range merged.SourceChunks {
		chunkSet[chunkID] = struct{}{}
	}

	canonicalNorm := normalized[canonicalIdx]
	for _, i := range members {
		if i == canonicalIdx {
			continue
		}
		other := entities[i]
		if NormalizeName(other.Name) != canonicalNorm {
			if _, ok := aliasSet[other.Name]; !ok {
				aliasSet[other.Name] = struct{}{}
				merged.Aliases = append(merged.Aliases, other.Name)
			}
		}
		for _, alias := range other.Aliases {
			if NormalizeName(alias) == canonicalNorm {
				continue
			}
			if _, ok := aliasSet[alias]; !ok {
				aliasSet[alias] = struct{}{}
				merged.Aliases = append(merged.Aliases, alias)
			}
		}
		for _, chunkID := range other.SourceChunks {
			if _, ok := chunkSet[chunkID]; !ok {
				chunkSet[chunkID] = struct{}{}
				merged.SourceChunks = append(merged.SourceChunks, chunkID)
			}
		}
		if len(other.Description) > len(merged.Description) {
			merged.Description = other.Description
		}
		for k, v := range other.Properties {
			if merged.Properties == nil {
				merged.Properties = make(map[string]string)
			}
			if _, ok := merged.Properties[k]; !ok {
				merged.Properties[k] = v
			}
		}
	}
	sort.Strings(merged.Aliases)

	merged.ID = model.EntityID(merged.TenantID, canonicalNorm, merged.Type)
	return merged, canonicalIdx
}

// RemapRelations rewrites relation endpoints through the alias table and
// dedupes the result by (source, target, type) with max-merged weight and
// confidence. Self-loops created by a merge are dropped.
func RemapRelations(relations []model.Relation, aliasOf map[uuid.UUID]uuid.UUID) []model.Relation {
	resolve := func(id uuid.UUID) uuid.UUID {
		for {
			next, ok := aliasOf[id]
			if !ok {
				return id
			}
			id = next
		}
	}

	out := make([]model.Relation, 0, len(relations))
	index := make(map[string]int, len(relations))
	for _, rel := range relations {
		rel.SourceID = resolve(rel.SourceID)
		rel.TargetID = resolve(rel.TargetID)
		if rel.SourceID == rel.TargetID {
			continue
		}
		key := model.RelationKey(rel.SourceID, rel.TargetID, rel.Type)
		if i, ok := index[key]; ok {
			if rel.Weight > out[i].Weight {
				out[i].Weight = rel.Weight
			}
			if rel.Confidence > out[i].Confidence {
				out[i].Confidence = rel.Confidence
			}
			continue
		}
		index[key] = len(out)
		out = append(out, rel)
	}
	return out
}

// nameSimilarity scores two normalized names in [0,1]. CJK names are first
// compared by core name (title suffixes stripped): an exact core match scores
// 0.95 and a single-character family-name prefix match scores 0.85. Everything
// else falls through to Levenshtein similarity.
func nameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	if hasHan(a) || hasHan(b) {
		coreA := CoreName(a)
		coreB := CoreName(b)
		if coreA != "" && coreA == coreB {
			return 0.95
		}
		runesA := []rune(coreA)
		runesB := []rune(coreB)
		if len(runesA) == 1 && len(runesB) > 1 && runesB[0] == runesA[0] {
			return 0.85
		}
		if len(runesB) == 1 && len(runesA) > 1 && runesA[0] == runesB[0] {
			return 0.85
		}
		return levenshteinSimilarity(coreA, coreB)
	}

	return levenshteinSimilarity(a, b)
}

// levenshteinSimilarity is 1 - dist/maxLen over runes.
func levenshteinSimilarity(a, b string) float64 {
	runesA := []rune(a)
	runesB := []rune(b)
	if len(runesA) == 0 && len(runesB) == 0 {
		return 1
	}
	maxLen := max(len(runesA), len(runesB))
	dist := levenshtein(runesA, runesB)
	return 1 - float64(dist)/float64(maxLen)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// CosineSimilarity computes the cosine of two vectors; mismatched or zero
// vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// blockByPrefix groups candidate indices by the first three runes of their
// normalized names, bounding the fuzzy pass on large batches.
func blockByPrefix(members []int, normalized []string) [][]int {
	buckets := make(map[string][]int)
	for _, i := range members {
		runes := []rune(normalized[i])
		if len(runes) > 3 {
			runes = runes[:3]
		}
		key := string(runes)
		buckets[key] = append(buckets[key], i)
	}
	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	blocks := make([][]int, 0, len(keys))
	for _, key := range keys {
		blocks = append(blocks, buckets[key])
	}
	return blocks
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

// union attaches the larger root to the smaller so group roots are
// deterministic regardless of comparison order.
func (u *unionFind) union(x, y int) {
	rootX, rootY := u.find(x), u.find(y)
	if rootX == rootY {
		return
	}
	if rootX < rootY {
		u.parent[rootY] = rootX
	} else {
		u.parent[rootX] = rootY
	}
}
