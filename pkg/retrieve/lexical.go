package retrieve

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/everspan/cognita/pkg/errs"
	"github.com/everspan/cognita/pkg/model"
	"github.com/everspan/cognita/pkg/store"
)

const (
	// bm25K1 and bm25B are the standard BM25 free parameters.
	bm25K1 = 1.2
	bm25B  = 0.75

	// scanLimit bounds how many chunk records are pulled for in-memory
	// ranking.
	scanLimit = 10000
)

// LexicalRetriever ranks chunks by BM25 token overlap with the query. It is
// the recall safety net for exact terms (identifiers, names, codes) that
// embeddings blur.
type LexicalRetriever struct {
	Vector store.VectorStore
}

func (r *LexicalRetriever) Name() string { return "lexical" }

func (r *LexicalRetriever) GetContext(ctx context.Context, scope Scope, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, errs.New(errs.KindValidation, "topK must be positive")
	}

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	collection := store.CollectionName(scope.TenantID, scope.DatasetID, model.NodeTypeChunk, "text")
	records, err := r.Vector.Scan(ctx, collection, scanLimit)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	docs := make([][]string, len(records))
	totalLen := 0
	for i, record := range records {
		docs[i] = tokenize(payloadString(record.Payload, "text"))
		totalLen += len(docs[i])
	}
	avgLen := float64(totalLen) / float64(len(docs))
	if avgLen == 0 {
		return nil, nil
	}

	// document frequency per query term
	df := make(map[string]int, len(queryTerms))
	for _, doc := range docs {
		seen := make(map[string]struct{}, len(doc))
		for _, term := range doc {
			seen[term] = struct{}{}
		}
		for _, term := range queryTerms {
			if _, ok := seen[term]; ok {
				df[term]++
			}
		}
	}

	n := float64(len(docs))
	type scored struct {
		idx   int
		score float64
	}
	var ranked []scored
	for i, doc := range docs {
		tf := make(map[string]int, len(doc))
		for _, term := range doc {
			tf[term]++
		}
		score := 0.0
		for _, term := range queryTerms {
			freq := float64(tf[term])
			if freq == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[term])+0.5)/(float64(df[term])+0.5))
			norm := freq * (bm25K1 + 1) / (freq + bm25K1*(1-bm25B+bm25B*float64(len(doc))/avgLen))
			score += idf * norm
		}
		if score > 0 {
			ranked = append(ranked, scored{idx: i, score: score})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return records[ranked[i].idx].ID.String() < records[ranked[j].idx].ID.String()
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	results := make([]Result, 0, len(ranked))
	for _, item := range ranked {
		record := records[item.idx]
		results = append(results, Result{
			ID:         record.ID.String(),
			Text:       payloadString(record.Payload, "text"),
			Score:      item.score,
			Kind:       KindChunk,
			Provenance: provenanceFromPayload(record.ID, record.Payload),
		})
	}
	return results, nil
}

func tokenize(text string) []string {
	var terms []string
	var current strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			terms = append(terms, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		terms = append(terms, current.String())
	}
	return terms
}
