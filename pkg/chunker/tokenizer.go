package chunker

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/everspan/cognita/pkg/logger"
)

// DefaultEncoding is the tokenizer used when the caller does not name one.
const DefaultEncoding = "o200k_base"

// Tokenizer counts tokens the way the extraction model will. When the
// encoding cannot be loaded (offline build, unknown model) it falls back to a
// deterministic estimate of one token per 4 bytes of UTF-8 with a 20% safety
// margin, so chunk budgets still hold.
type Tokenizer struct {
	encoding string

	once     sync.Once
	codec    *tiktoken.Tiktoken
	fallback bool
}

// NewTokenizer creates a tokenizer for the given tiktoken encoding name.
func NewTokenizer(encoding string) *Tokenizer {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Tokenizer{encoding: encoding}
}

func (t *Tokenizer) init() {
	t.once.Do(func() {
		codec, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			logger.Warn("[Chunker] Tokenizer unavailable, using byte estimate", "encoding", t.encoding, "err", err)
			t.fallback = true
			return
		}
		t.codec = codec
	})
}

// Count returns the token count of text.
func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	t.init()
	if t.fallback {
		return estimateTokens(text)
	}
	return len(t.codec.Encode(text, nil, nil))
}

// estimateTokens approximates 1 token per 4 bytes, inflated by 20% so the
// estimate errs toward smaller chunks rather than blown context windows.
func estimateTokens(text string) int {
	n := (len(text) + 3) / 4
	n += (n + 4) / 5
	if n < 1 {
		n = 1
	}
	return n
}
