package openai

import (
	"context"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/everspan/cognita/pkg/ai"
	"github.com/everspan/cognita/pkg/errs"
)

// Embed creates vector embeddings for the given texts in one request,
// preserving input order. Empty inputs yield zero vectors without a provider
// call so callers do not need to pre-filter.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	nonEmpty := make([]string, 0, len(texts))
	idxMap := make([]int, 0, len(texts))
	for i, text := range texts {
		if text == "" {
			out[i] = make([]float32, c.dimensions)
			continue
		}
		nonEmpty = append(nonEmpty, text)
		idxMap = append(idxMap, i)
	}
	if len(nonEmpty) == 0 {
		return out, nil
	}

	start := time.Now()
	response, err := c.embedClient.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: nonEmpty,
		},
	})
	if err != nil {
		return nil, classifyError("embedding", err)
	}
	c.addMetrics(ai.ModelMetrics{
		InputTokens: int(response.Usage.PromptTokens),
		TotalTokens: int(response.Usage.TotalTokens),
		DurationMs:  time.Since(start).Milliseconds(),
	})

	if len(response.Data) != len(nonEmpty) {
		return nil, errs.Newf(errs.KindTransient, "embedding result size mismatch: got %d want %d", len(response.Data), len(nonEmpty))
	}

	for i, item := range response.Data {
		vector := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vector[j] = float32(v)
		}
		out[idxMap[i]] = vector
	}
	return out, nil
}
