package cognify

import (
	"time"

	"github.com/everspan/cognita/internal/util"
)

// Config holds every engine tunable with its default. All values are
// overridable from the launching layer; FromEnv reads the usual variables.
type Config struct {
	ChunkSize    int
	ChunkOverlap int

	ExtractorTemperature float64
	ExtractorMaxRetries  int

	FuzzyThreshold    float64
	EmbedThreshold    float64
	ValidateThreshold float64
	ValidationEnabled bool
	ResolutionEnabled bool

	TopK                int
	SimilarityThreshold float64
	HybridVectorWeight  float64
	HybridGraphWeight   float64
	HybridLexicalWeight float64
	RRFK                int
	RerankEnabled       bool

	WorkerPool int
	EmbedBatch int

	LLMDeadline   time.Duration
	EmbedDeadline time.Duration
	DBDeadline    time.Duration

	ChatModel   string
	Provider    string
	EntityTypes []string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    512,
		ChunkOverlap: 50,

		ExtractorTemperature: 0,
		ExtractorMaxRetries:  5,

		FuzzyThreshold:    0.85,
		EmbedThreshold:    0.90,
		ValidateThreshold: 0.7,
		ValidationEnabled: true,
		ResolutionEnabled: true,

		TopK:                10,
		SimilarityThreshold: 0.7,
		HybridVectorWeight:  0.4,
		HybridGraphWeight:   0.3,
		HybridLexicalWeight: 0.3,
		RRFK:                60,
		RerankEnabled:       false,

		WorkerPool: 8,
		EmbedBatch: 32,

		LLMDeadline:   60 * time.Second,
		EmbedDeadline: 30 * time.Second,
		DBDeadline:    10 * time.Second,

		Provider: "openai",
	}
}

// FromEnv overlays environment overrides on the defaults.
func FromEnv() Config {
	cfg := DefaultConfig()
	cfg.ChunkSize = util.GetEnvInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = util.GetEnvInt("CHUNK_OVERLAP", cfg.ChunkOverlap)
	cfg.ExtractorMaxRetries = util.GetEnvInt("EXTRACTOR_MAX_RETRIES", cfg.ExtractorMaxRetries)
	cfg.FuzzyThreshold = util.GetEnvFloat("RESOLVE_FUZZY_THRESHOLD", cfg.FuzzyThreshold)
	cfg.EmbedThreshold = util.GetEnvFloat("RESOLVE_EMBED_THRESHOLD", cfg.EmbedThreshold)
	cfg.ValidateThreshold = util.GetEnvFloat("VALIDATE_THRESHOLD", cfg.ValidateThreshold)
	cfg.ValidationEnabled = util.GetEnvBool("VALIDATION_ENABLED", cfg.ValidationEnabled)
	cfg.ResolutionEnabled = util.GetEnvBool("RESOLUTION_ENABLED", cfg.ResolutionEnabled)
	cfg.TopK = util.GetEnvInt("RETRIEVE_TOP_K", cfg.TopK)
	cfg.SimilarityThreshold = util.GetEnvFloat("RETRIEVE_SIMILARITY_THRESHOLD", cfg.SimilarityThreshold)
	cfg.RerankEnabled = util.GetEnvBool("RETRIEVE_RERANK_ENABLED", cfg.RerankEnabled)
	cfg.WorkerPool = util.GetEnvInt("WORKER_POOL", cfg.WorkerPool)
	cfg.EmbedBatch = util.GetEnvInt("EMBED_BATCH", cfg.EmbedBatch)
	cfg.ChatModel = util.GetEnvString("AI_CHAT_MODEL", cfg.ChatModel)
	cfg.Provider = util.GetEnvString("AI_PROVIDER", cfg.Provider)
	if d := util.GetEnvInt("LLM_DEADLINE_SECONDS", 0); d > 0 {
		cfg.LLMDeadline = time.Duration(d) * time.Second
	}
	if d := util.GetEnvInt("EMBED_DEADLINE_SECONDS", 0); d > 0 {
		cfg.EmbedDeadline = time.Duration(d) * time.Second
	}
	if d := util.GetEnvInt("DB_DEADLINE_SECONDS", 0); d > 0 {
		cfg.DBDeadline = time.Duration(d) * time.Second
	}
	return cfg
}
