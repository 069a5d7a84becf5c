package openai

import (
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/everspan/cognita/pkg/ai"
)

// Client implements ai.LLM and ai.Embedder against OpenAI-compatible
// endpoints. Chat and embedding traffic may target different base URLs so a
// local embedding server can be combined with a hosted chat model.
type Client struct {
	chatModel  string
	embedModel string
	dimensions int

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	chatClient  *openai.Client
	embedClient *openai.Client
}

// NewClientParams defines configuration for creating a Client.
type NewClientParams struct {
	ChatModel  string
	EmbedModel string
	Dimensions int

	ChatURL  string
	ChatKey  string
	EmbedURL string
	EmbedKey string
}

// NewClient creates a Client with separate underlying OpenAI clients for
// chat and embedding endpoints.
func NewClient(params NewClientParams) *Client {
	if params.Dimensions <= 0 {
		params.Dimensions = 1536
	}
	return &Client{
		chatModel:   params.ChatModel,
		embedModel:  params.EmbedModel,
		dimensions:  params.Dimensions,
		chatClient:  newOpenAIClient(params.ChatURL, params.ChatKey),
		embedClient: newOpenAIClient(params.EmbedURL, params.EmbedKey),
	}
}

func newOpenAIClient(baseURL, apiKey string) *openai.Client {
	opts := []option.RequestOption{}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := openai.NewClient(opts...)
	return &client
}

// Dimensions reports the configured embedding width.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Metrics returns a snapshot of aggregate usage metrics.
func (c *Client) Metrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *Client) addMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.InputTokens += m.InputTokens
	c.metrics.OutputTokens += m.OutputTokens
	c.metrics.TotalTokens += m.TotalTokens
	c.metrics.DurationMs += m.DurationMs
	c.metrics.Requests++
}
