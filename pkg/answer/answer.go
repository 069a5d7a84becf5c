package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/everspan/cognita/pkg/ai"
	"github.com/everspan/cognita/pkg/retrieve"
)

// Citation ties an [n] marker in the answer back to the retrieved item it
// references.
type Citation struct {
	Marker     int                 `json:"marker"`
	Text       string              `json:"text"`
	Provenance retrieve.Provenance `json:"provenance"`
}

// Generator produces grounded answers over retrieved context. The model is
// instructed to cite context items with [n] markers and to refuse questions
// the context cannot answer; the response is returned verbatim.
type Generator struct {
	LLM ai.LLM

	Model       string
	Temperature float64
	Deadline    time.Duration
}

// Generate answers the query from the given context items. An empty context
// short-circuits to the fixed no-information reply without a model call.
func (g *Generator) Generate(ctx context.Context, query string, items []retrieve.Result) (string, []Citation, error) {
	if len(items) == 0 {
		return ai.NoContextAnswer, nil, nil
	}

	prompt, citations := g.buildPrompt(items)
	response, err := g.LLM.Complete(ctx, query, g.options(prompt)...)
	if err != nil {
		return "", nil, err
	}
	return response, citations, nil
}

// GenerateStream is Generate with an incrementally streamed answer. The
// citation list is available immediately; the channel closes when the model
// finishes.
func (g *Generator) GenerateStream(ctx context.Context, query string, items []retrieve.Result) (<-chan string, []Citation, error) {
	if len(items) == 0 {
		ch := make(chan string, 1)
		ch <- ai.NoContextAnswer
		close(ch)
		return ch, nil, nil
	}

	prompt, citations := g.buildPrompt(items)
	stream, err := g.LLM.CompleteStream(ctx, query, g.options(prompt)...)
	if err != nil {
		return nil, nil, err
	}
	return stream, citations, nil
}

func (g *Generator) options(systemPrompt string) []ai.GenerateOption {
	temperature := g.Temperature
	if temperature <= 0 {
		temperature = 0.3
	}
	deadline := g.Deadline
	if deadline <= 0 {
		deadline = 60 * time.Second
	}
	opts := []ai.GenerateOption{
		ai.WithSystemPrompts(systemPrompt),
		ai.WithTemperature(temperature),
		ai.WithDeadline(deadline),
	}
	if g.Model != "" {
		opts = append(opts, ai.WithModel(g.Model))
	}
	return opts
}

func (g *Generator) buildPrompt(items []retrieve.Result) (string, []Citation) {
	var contextBlock strings.Builder
	citations := make([]Citation, 0, len(items))
	for i, item := range items {
		marker := i + 1
		fmt.Fprintf(&contextBlock, "[%d] %s\n%s\n\n", marker, formatProvenance(item.Provenance), item.Text)
		citations = append(citations, Citation{
			Marker:     marker,
			Text:       item.Text,
			Provenance: item.Provenance,
		})
	}
	prompt := fmt.Sprintf(ai.AnswerPrompt, ai.NoContextAnswer, strings.TrimSpace(contextBlock.String()))
	return prompt, citations
}

func formatProvenance(prov retrieve.Provenance) string {
	var parts []string
	if prov.SourcePath != "" {
		parts = append(parts, prov.SourcePath)
	}
	if prov.PageNumber > 0 {
		parts = append(parts, fmt.Sprintf("page %d", prov.PageNumber))
	}
	if prov.StartLine > 0 {
		parts = append(parts, fmt.Sprintf("lines %d-%d", prov.StartLine, prov.EndLine))
	}
	if len(parts) == 0 {
		return "(source unknown)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
