package openai

import (
	"context"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/everspan/cognita/pkg/ai"
	"github.com/everspan/cognita/pkg/errs"
)

const maxParseRetries = 2

// Complete sends a single-turn prompt to the chat model and returns the
// generated completion as plain text.
func (c *Client) Complete(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.3,
	}
	for _, o := range opts {
		o(&options)
	}

	if options.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Deadline)
		defer cancel()
	}

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    buildMessages(options.SystemPrompts, prompt),
		Temperature: openai.Float(options.Temperature),
	}

	start := time.Now()
	response, err := c.chatClient.Chat.Completions.New(ctx, body)
	if err != nil {
		return "", classifyError("chat completion", err)
	}
	c.addMetrics(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   time.Since(start).Milliseconds(),
	})

	if len(response.Choices) == 0 {
		return "", errs.New(errs.KindTransient, "no choices in chat response")
	}
	return response.Choices[0].Message.Content, nil
}

// StructuredComplete sends a prompt to the chat model and unmarshals the
// response into out, using a JSON schema generated from out's type to
// enforce structure. Parse failures are retried up to maxParseRetries before
// surfacing as a permanent schema violation.
func (c *Client) StructuredComplete(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	schema := ai.GenerateSchema(out)
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        name,
		Description: openai.String(description),
		Schema:      schema,
		Strict:      openai.Bool(true),
	}

	options := ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0,
	}
	for _, o := range opts {
		o(&options)
	}

	if options.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Deadline)
		defer cancel()
	}

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(options.Model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
		Messages:    buildMessages(options.SystemPrompts, prompt),
		Temperature: openai.Float(options.Temperature),
	}

	var lastErr error
	for attempt := 0; attempt <= maxParseRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(errs.KindCancelled, "structured completion", err)
		}

		start := time.Now()
		response, err := c.chatClient.Chat.Completions.New(ctx, body)
		if err != nil {
			return classifyError("structured completion", err)
		}
		c.addMetrics(ai.ModelMetrics{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
			TotalTokens:  int(response.Usage.TotalTokens),
			DurationMs:   time.Since(start).Milliseconds(),
		})

		if len(response.Choices) == 0 {
			return errs.New(errs.KindTransient, "no choices in structured response")
		}
		message := response.Choices[0].Message.Content
		if message == "" {
			lastErr = errs.Newf(errs.KindPermanent, "empty structured response (finish_reason: %s)", response.Choices[0].FinishReason)
			continue
		}

		if err := ai.UnmarshalFlexible(message, out); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return errs.Wrap(errs.KindPermanent, "structured response violates schema", lastErr)
}

// CompleteStream sends a prompt and returns a channel that streams the
// response incrementally. The channel closes when the stream ends or the
// context is canceled.
func (c *Client) CompleteStream(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (<-chan string, error) {
	options := ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.3,
	}
	for _, o := range opts {
		o(&options)
	}

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    buildMessages(options.SystemPrompts, prompt),
		Temperature: openai.Float(options.Temperature),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	start := time.Now()
	stream := c.chatClient.Chat.Completions.NewStreaming(ctx, body)
	contentChan := make(chan string, 10)

	go func() {
		defer close(contentChan)
		defer stream.Close()

		acc := openai.ChatCompletionAccumulator{}
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				select {
				case contentChan <- chunk.Choices[0].Delta.Content:
				case <-ctx.Done():
					return
				}
			}
		}

		c.addMetrics(ai.ModelMetrics{
			InputTokens:  int(acc.Usage.PromptTokens),
			OutputTokens: int(acc.Usage.CompletionTokens),
			TotalTokens:  int(acc.Usage.TotalTokens),
			DurationMs:   time.Since(start).Milliseconds(),
		})
	}()

	return contentChan, nil
}

func buildMessages(systemPrompts []string, prompt string) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(systemPrompts)+1)
	for _, sp := range systemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	msgs = append(msgs, openai.UserMessage(prompt))
	return msgs
}
