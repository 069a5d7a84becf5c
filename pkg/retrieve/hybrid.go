package retrieve

import (
	"context"
	"sort"
	"sync"

	"github.com/everspan/cognita/pkg/errs"
	"github.com/everspan/cognita/pkg/logger"
)

// RRFK is the standard reciprocal-rank-fusion constant.
const RRFK = 60

// Weights are the per-strategy fusion weights; they are normalized before use.
type Weights struct {
	Vector  float64
	Graph   float64
	Lexical float64
}

// DefaultWeights splits fusion influence 0.4 / 0.3 / 0.3.
func DefaultWeights() Weights {
	return Weights{Vector: 0.4, Graph: 0.3, Lexical: 0.3}
}

// HybridResult is the fused retrieval outcome. Degraded is set when at least
// one strategy failed and its stream is missing from the fusion.
type HybridResult struct {
	Results  []Result
	Degraded bool
	Warnings []string
}

// HybridRetriever runs the three strategies concurrently and fuses their
// rankings with weighted reciprocal rank fusion. Score ties break by
// strategy priority (vector over graph over lexical), then by item ID.
type HybridRetriever struct {
	Vector  Retriever
	Graph   Retriever
	Lexical Retriever

	Weights  Weights
	K        int
	Reranker Reranker
}

// GetContext fuses the three streams. Retrieval fails outright only when the
// vector and graph strategies both fail; any partial outage degrades instead.
func (r *HybridRetriever) GetContext(ctx context.Context, scope Scope, query string, topK int) (*HybridResult, error) {
	if topK <= 0 {
		return nil, errs.New(errs.KindValidation, "topK must be positive")
	}

	type streamOut struct {
		name    string
		results []Result
		err     error
	}

	retrievers := []Retriever{r.Vector, r.Graph, r.Lexical}
	outs := make([]streamOut, len(retrievers))

	var wg sync.WaitGroup
	for i, retriever := range retrievers {
		if retriever == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := retriever.GetContext(ctx, scope, query, topK)
			outs[i] = streamOut{name: retriever.Name(), results: results, err: err}
		}()
	}
	wg.Wait()

	fused := &HybridResult{}
	var failures int
	for _, out := range outs {
		if out.err != nil {
			failures++
			fused.Degraded = true
			fused.Warnings = append(fused.Warnings, out.name+" retrieval failed: "+out.err.Error())
			logger.Warn("[Hybrid] Strategy failed", "strategy", out.name, "err", out.err)
		}
	}
	if outs[0].err != nil && outs[1].err != nil {
		return nil, errs.Wrap(errs.KindTransient, "vector and graph retrieval both unavailable", outs[0].err)
	}

	weights := normalizeWeights(r.Weights)
	k := r.K
	if k <= 0 {
		k = RRFK
	}

	ranked := [][]Result{outs[0].results, outs[1].results, outs[2].results}
	fused.Results = FuseRRF(ranked, []float64{weights.Vector, weights.Graph, weights.Lexical}, k, topK)

	if r.Reranker != nil {
		reranked, err := r.Reranker.Rerank(ctx, query, topN(fusedPool(ranked, weights, k), 3*topK))
		if err != nil {
			// reranking is optional; skip silently on failure
			logger.Debug("[Hybrid] Reranker unavailable, keeping RRF order", "err", err)
		} else if len(reranked) > 0 {
			if len(reranked) > topK {
				reranked = reranked[:topK]
			}
			fused.Results = reranked
		}
	}

	return fused, nil
}

// FuseRRF merges ranked lists with weighted reciprocal rank fusion:
// fused(id) = sum over strategies of w_i / (k + rank_i), rank starting at 1.
// Items absent from a list contribute nothing for it.
func FuseRRF(ranked [][]Result, weights []float64, k, topK int) []Result {
	type fusion struct {
		result   Result
		score    float64
		priority int
	}
	byID := make(map[string]*fusion)

	for strategyIdx, results := range ranked {
		weight := weights[strategyIdx]
		for rank, result := range results {
			contribution := weight / float64(k+rank+1)
			entry, ok := byID[result.ID]
			if !ok {
				entry = &fusion{result: result, priority: strategyIdx}
				byID[result.ID] = entry
			} else if strategyIdx < entry.priority {
				entry.priority = strategyIdx
			}
			entry.score += contribution
		}
	}

	fused := make([]*fusion, 0, len(byID))
	for _, entry := range byID {
		fused = append(fused, entry)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		if fused[i].priority != fused[j].priority {
			return fused[i].priority < fused[j].priority
		}
		return fused[i].result.ID < fused[j].result.ID
	})

	if len(fused) > topK {
		fused = fused[:topK]
	}
	out := make([]Result, len(fused))
	for i, entry := range fused {
		out[i] = entry.result
		out[i].Score = entry.score
	}
	return out
}

func fusedPool(ranked [][]Result, weights Weights, k int) []Result {
	return FuseRRF(ranked, []float64{weights.Vector, weights.Graph, weights.Lexical}, k, 1<<30)
}

func topN(results []Result, n int) []Result {
	if len(results) > n {
		return results[:n]
	}
	return results
}

func normalizeWeights(w Weights) Weights {
	total := w.Vector + w.Graph + w.Lexical
	if total <= 0 {
		return DefaultWeights()
	}
	return Weights{Vector: w.Vector / total, Graph: w.Graph / total, Lexical: w.Lexical / total}
}
