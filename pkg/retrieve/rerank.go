package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/everspan/cognita/pkg/ai"
)

// Reranker reorders fused results by direct (query, text) relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, items []Result) ([]Result, error)
}

type rerankVerdict struct {
	Index int     `json:"index" jsonschema_description:"Index of the passage being scored"`
	Score float64 `json:"score" jsonschema_description:"Relevance of the passage to the query, 0.0 to 1.0"`
}

type rerankResponse struct {
	Scores []rerankVerdict `json:"scores" jsonschema_description:"One relevance score per passage"`
}

const rerankPrompt = `
# Task Context
You are a relevance judge. You will be given a search query and a list of numbered passages.

# Detailed Task Description & Rules
- Score every passage between 0.0 (irrelevant) and 1.0 (directly answers the query).
- Judge each passage independently against the query only.

# Query
%s

# Passages
%s
`

// LLMReranker scores (query, passage) pairs with a structured model call and
// reorders by score. It is the cross-encoder stage of hybrid retrieval; the
// hybrid retriever skips it silently when the call fails.
type LLMReranker struct {
	LLM      ai.LLM
	Model    string
	Deadline time.Duration
}

func (r *LLMReranker) Rerank(ctx context.Context, query string, items []Result) ([]Result, error) {
	if len(items) == 0 {
		return items, nil
	}

	var listing strings.Builder
	for i, item := range items {
		text := item.Text
		if len(text) > 400 {
			text = text[:400]
		}
		fmt.Fprintf(&listing, "[%d] %s\n", i, text)
	}

	deadline := r.Deadline
	if deadline <= 0 {
		deadline = 60 * time.Second
	}

	opts := []ai.GenerateOption{
		ai.WithTemperature(0),
		ai.WithDeadline(deadline),
	}
	if r.Model != "" {
		opts = append(opts, ai.WithModel(r.Model))
	}

	var res rerankResponse
	err := r.LLM.StructuredComplete(
		ctx,
		"rerank_passages",
		"Score search passages by relevance to a query.",
		fmt.Sprintf(rerankPrompt, query, listing.String()),
		&res,
		opts...,
	)
	if err != nil {
		return nil, err
	}

	scores := make(map[int]float64, len(res.Scores))
	for _, verdict := range res.Scores {
		if verdict.Index >= 0 && verdict.Index < len(items) {
			scores[verdict.Index] = verdict.Score
		}
	}

	reranked := make([]Result, len(items))
	copy(reranked, items)
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	out := make([]Result, len(items))
	for pos, idx := range order {
		out[pos] = reranked[idx]
		out[pos].Score = scores[idx]
	}
	return out, nil
}
