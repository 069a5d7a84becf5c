package chunker

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/everspan/cognita/pkg/loader"
	"github.com/everspan/cognita/pkg/model"
)

const (
	DefaultMaxTokens = 512
	DefaultOverlap   = 50
)

// Document is the chunker input: the full document text plus the positional
// blocks its loader produced.
type Document struct {
	DataID     uuid.UUID
	TenantID   uuid.UUID
	DatasetID  uuid.UUID
	SourcePath string
	Text       string
	Blocks     []loader.Block
	Version    int
}

// Params tunes the splitter. Zero values fall back to the defaults.
type Params struct {
	MaxTokens int
	Overlap   int
	Tokenizer *Tokenizer
}

// ChunkingError marks a per-document failure; other documents in the batch
// proceed. The chunker never retries.
type ChunkingError struct {
	DataID uuid.UUID
	Err    error
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunking failed for data %s: %v", e.DataID, e.Err)
}

func (e *ChunkingError) Unwrap() error { return e.Err }

// span is an atomic splittable unit: a paragraph, a sentence of an over-long
// paragraph, or a character window of an over-long sentence. Spans always
// reference the original text so chunk provenance is exact.
type span struct {
	start  int
	end    int
	tokens int
	cut    model.CutType
}

// Stream lazily yields DocumentChunks. It is restartable: Seek discards
// chunks up to an index so a consumer can resume mid-document.
type Stream struct {
	doc    Document
	params Params

	prepared   bool
	spans      []span
	lineStarts []int

	pos       int // next span to consume
	index     int // next chunk index
	prevStart int
	prevEnd   int
}

// Split creates a lazy chunk stream over the document. Splitting prefers
// paragraph boundaries, falls back to sentences, and cuts single over-long
// sentences at exactly MaxTokens tokens. Consecutive chunks share up to
// Overlap tokens of trailing context.
func Split(doc Document, params Params) *Stream {
	if params.MaxTokens <= 0 {
		params.MaxTokens = DefaultMaxTokens
	}
	if params.Overlap < 0 {
		params.Overlap = 0
	}
	if params.Tokenizer == nil {
		params.Tokenizer = NewTokenizer("")
	}
	return &Stream{doc: doc, params: params, prevStart: -1}
}

// Next returns the next chunk. The second return is false when the stream is
// exhausted.
func (s *Stream) Next() (model.DocumentChunk, bool, error) {
	if !s.prepared {
		if err := s.prepare(); err != nil {
			return model.DocumentChunk{}, false, &ChunkingError{DataID: s.doc.DataID, Err: err}
		}
	}
	if s.pos >= len(s.spans) {
		return model.DocumentChunk{}, false, nil
	}

	tok := s.params.Tokenizer
	budget := s.params.MaxTokens

	start := s.spans[s.pos].start
	if s.prevStart >= 0 && s.params.Overlap > 0 {
		start = s.overlapStart()
	}

	// recount the actual substring as spans accrete so the budget holds for
	// the emitted text, overlap included
	end := -1
	cut := model.CutEnd
	for s.pos < len(s.spans) {
		sp := s.spans[s.pos]
		if end >= 0 && tok.Count(s.doc.Text[start:sp.end]) > budget {
			cut = sp.cut
			break
		}
		end = sp.end
		s.pos++
	}
	if s.pos >= len(s.spans) {
		cut = model.CutEnd
	}

	start, end = trimSpan(s.doc.Text, start, end)
	text := s.doc.Text[start:end]

	chunk := model.DocumentChunk{
		DataID:     s.doc.DataID,
		TenantID:   s.doc.TenantID,
		DatasetID:  s.doc.DatasetID,
		SourcePath: s.doc.SourcePath,
		Text:       text,
		ChunkIndex: s.index,
		TokenCount: tok.Count(text),
		StartChar:  start,
		EndChar:    end,
		StartLine:  s.lineOf(start),
		EndLine:    s.lineOf(max(start, end-1)),
		PageNumber: s.pageOf(start),
		CutType:    cut,
		Version:    s.doc.Version,
	}
	chunk.ID = model.ChunkID(s.doc.DataID, chunk.ChunkIndex, text)

	s.index++
	s.prevStart = start
	s.prevEnd = end
	return chunk, true, nil
}

// Seek discards chunks until the stream is positioned at chunkIndex.
func (s *Stream) Seek(chunkIndex int) error {
	for s.index < chunkIndex {
		_, ok, err := s.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return nil
}

// Collect drains the stream into a slice.
func (s *Stream) Collect() ([]model.DocumentChunk, error) {
	var chunks []model.DocumentChunk
	for {
		chunk, ok, err := s.Next()
		if err != nil {
			return chunks, err
		}
		if !ok {
			return chunks, nil
		}
		chunks = append(chunks, chunk)
	}
}

func (s *Stream) prepare() error {
	s.prepared = true

	text := s.doc.Text
	if strings.TrimSpace(text) == "" {
		return nil
	}

	s.lineStarts = lineStarts(text)

	blocks := s.doc.Blocks
	if len(blocks) == 0 {
		blocks = loader.FromText(text).Blocks
	}

	tok := s.params.Tokenizer
	budget := s.params.MaxTokens

	for _, block := range blocks {
		start, end := trimSpan(text, block.StartChar, block.EndChar)
		if start >= end {
			continue
		}
		tokens := tok.Count(text[start:end])
		if tokens <= budget {
			s.spans = append(s.spans, span{start: start, end: end, tokens: tokens, cut: model.CutParagraph})
			continue
		}

		for _, sent := range sentenceSpans(text, start, end) {
			sentStart, sentEnd := trimSpan(text, sent[0], sent[1])
			if sentStart >= sentEnd {
				continue
			}
			sentTokens := tok.Count(text[sentStart:sentEnd])
			if sentTokens <= budget {
				s.spans = append(s.spans, span{start: sentStart, end: sentEnd, tokens: sentTokens, cut: model.CutSentence})
				continue
			}
			s.spans = append(s.spans, charSpans(text, sentStart, sentEnd, budget, tok)...)
		}
	}
	return nil
}

// overlapStart backs up at most Overlap characters into the previous chunk,
// snapping forward to the next word start so the carried context begins
// cleanly. The distance bound keeps adjacent chunk offsets within the
// documented overlap window.
func (s *Stream) overlapStart() int {
	start := s.prevEnd - s.params.Overlap
	if start < s.prevStart {
		start = s.prevStart
	}
	for start > s.prevStart && start < s.prevEnd && !utf8.RuneStart(s.doc.Text[start]) {
		start++
	}
	for start < s.prevEnd {
		r, size := utf8.DecodeRuneInString(s.doc.Text[start:])
		if !unicode.IsSpace(r) {
			prev, _ := utf8.DecodeLastRuneInString(s.doc.Text[:start])
			if start == s.prevStart || unicode.IsSpace(prev) {
				break
			}
		}
		start += size
	}
	if start >= s.prevEnd {
		return s.prevEnd
	}
	return start
}

func (s *Stream) lineOf(offset int) int {
	if len(s.lineStarts) == 0 {
		return 1
	}
	idx := sort.SearchInts(s.lineStarts, offset+1) - 1
	if idx < 0 {
		idx = 0
	}
	return idx + 1
}

func (s *Stream) pageOf(offset int) int {
	for _, block := range s.doc.Blocks {
		if offset >= block.StartChar && offset < block.EndChar {
			return block.Page
		}
	}
	return 0
}

func lineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func trimSpan(text string, start, end int) (int, int) {
	for start < end {
		r, size := utf8.DecodeRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	return start, end
}

// sentenceSpans splits [start,end) on sentence terminators followed by
// whitespace. Terminator runs (e.g. "?!") and closing quotes stay attached.
func sentenceSpans(text string, start, end int) [][2]int {
	var spans [][2]int
	sentStart := start
	i := start
	for i < end {
		c := text[i]
		if c == '.' || c == '!' || c == '?' {
			j := i + 1
			for j < end && (text[j] == '.' || text[j] == '!' || text[j] == '?') {
				j++
			}
			for j < end && (text[j] == '"' || text[j] == '\'' || text[j] == ')' || text[j] == ']') {
				j++
			}
			if j >= end || text[j] == ' ' || text[j] == '\n' || text[j] == '\t' {
				spans = append(spans, [2]int{sentStart, j})
				sentStart = j
				i = j
				continue
			}
			i = j
			continue
		}
		i++
	}
	if sentStart < end {
		spans = append(spans, [2]int{sentStart, end})
	}
	return spans
}

// charSpans cuts an over-long sentence into windows of exactly budget tokens
// (the last window may be shorter). The cut point is found by binary search
// over rune boundaries.
func charSpans(text string, start, end, budget int, tok *Tokenizer) []span {
	var spans []span
	for start < end {
		cutEnd := searchCut(text, start, end, budget, tok)
		if cutEnd <= start {
			_, size := utf8.DecodeRuneInString(text[start:end])
			cutEnd = start + size
		}
		spans = append(spans, span{
			start:  start,
			end:    cutEnd,
			tokens: tok.Count(text[start:cutEnd]),
			cut:    model.CutCharacter,
		})
		start = cutEnd
	}
	return spans
}

func searchCut(text string, start, end, budget int, tok *Tokenizer) int {
	boundaries := runeBoundaries(text, start, end)
	lo, hi := 0, len(boundaries)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if tok.Count(text[start:boundaries[mid]]) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return boundaries[lo]
}

func runeBoundaries(text string, start, end int) []int {
	boundaries := []int{start}
	for i := start; i < end; {
		_, size := utf8.DecodeRuneInString(text[i:end])
		i += size
		boundaries = append(boundaries, i)
	}
	return boundaries
}
