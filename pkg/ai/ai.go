package ai

import (
	"context"
	"time"
)

// GenerateOptions holds configuration for LLM generation requests.
type GenerateOptions struct {
	Model         string        // Model identifier to use for generation
	SystemPrompts []string      // System prompts prepended to the request
	Temperature   float64       // Sampling temperature (0.0-2.0)
	Deadline      time.Duration // Per-call deadline; zero means the provider default
}

// GenerateOption is a functional option for configuring generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts returns a GenerateOption that sets the system prompts
// to prepend to the generation request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithDeadline returns a GenerateOption that caps the wall-clock time of a
// single call. Exceeding it surfaces as a transient error.
func WithDeadline(d time.Duration) GenerateOption {
	return func(o *GenerateOptions) {
		o.Deadline = d
	}
}

// LLM is the completion capability the engine consumes. StructuredComplete
// enforces a JSON schema generated from the out value; implementations must
// classify provider failures into the errs taxonomy at this boundary.
type LLM interface {
	Complete(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)
	CompleteStream(ctx context.Context, prompt string, opts ...GenerateOption) (<-chan string, error)
	StructuredComplete(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) error
}

// Embedder turns texts into vectors. Dimensions reports the vector width of
// the configured model so stores can size their collections.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// ModelMetrics contains aggregate usage metrics from LLM operations.
type ModelMetrics struct {
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	TotalTokens  int   `json:"total_tokens"`
	DurationMs   int64 `json:"duration_ms"`
	Requests     int   `json:"requests"`
}
