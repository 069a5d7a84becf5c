package chunker

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func testDoc(text string) Document {
	return Document{
		DataID:    uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		TenantID:  uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		DatasetID: uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		Text:      text,
		Version:   1,
	}
}

func collect(t *testing.T, doc Document, params Params) []chunkList {
	t.Helper()
	chunks, err := Split(doc, params).Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := make([]chunkList, len(chunks))
	for i, c := range chunks {
		out[i] = chunkList{c.Text, c.StartChar, c.EndChar, c.ChunkIndex}
	}
	return out
}

type chunkList struct {
	text       string
	start, end int
	index      int
}

func TestSplitEmptyDocument(t *testing.T) {
	chunks, err := Split(testDoc(""), Params{}).Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}

	chunks, err = Split(testDoc("   \n\n  "), Params{}).Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks for whitespace doc, got %d", len(chunks))
	}
}

func TestSplitTextMatchesSourceRange(t *testing.T) {
	text := "First paragraph with some words.\n\nSecond paragraph, also with words.\n\nThird one."
	doc := testDoc(text)
	chunks, err := Split(doc, Params{MaxTokens: 512, Overlap: 0}).Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	for _, c := range chunks {
		if got := text[c.StartChar:c.EndChar]; got != c.Text {
			t.Errorf("chunk %d: text[%d:%d] = %q, want %q", c.ChunkIndex, c.StartChar, c.EndChar, got, c.Text)
		}
		if c.Text == "" {
			t.Errorf("chunk %d: empty text", c.ChunkIndex)
		}
	}
}

func TestSplitRespectsTokenBudget(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("This is a plain sentence with several ordinary words in it. ")
	}
	doc := testDoc(b.String())

	params := Params{MaxTokens: 64, Overlap: 0}
	chunks, err := Split(doc, params).Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	tok := NewTokenizer("")
	for _, c := range chunks {
		if got := tok.Count(c.Text); got > params.MaxTokens {
			t.Errorf("chunk %d: %d tokens exceeds budget %d", c.ChunkIndex, got, params.MaxTokens)
		}
	}
}

func TestSplitOverlapWindow(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Sentence number words keep flowing through the document here. ")
	}
	doc := testDoc(b.String())

	overlap := 20
	chunks, err := Split(doc, Params{MaxTokens: 48, Overlap: overlap}).Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prev, curr := chunks[i-1], chunks[i]
		if curr.StartChar > prev.EndChar {
			t.Errorf("chunk %d starts after previous end: %d > %d", i, curr.StartChar, prev.EndChar)
		}
		if curr.StartChar < prev.EndChar-overlap {
			t.Errorf("chunk %d overlap exceeds window: start %d < %d", i, curr.StartChar, prev.EndChar-overlap)
		}
		if curr.EndChar <= prev.EndChar {
			t.Errorf("chunk %d makes no forward progress", i)
		}
	}
}

func TestSplitOverlongSentenceFallsBackToCharacterCut(t *testing.T) {
	// one giant sentence with no terminator until the very end
	doc := testDoc(strings.Repeat("abcdefgh ", 400) + "end.")
	chunks, err := Split(doc, Params{MaxTokens: 32, Overlap: 0}).Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected character-level split to yield multiple chunks, got %d", len(chunks))
	}
	tok := NewTokenizer("")
	for _, c := range chunks {
		if got := tok.Count(c.Text); got > 32 {
			t.Errorf("chunk %d: %d tokens exceeds budget", c.ChunkIndex, got)
		}
	}
}

func TestSplitDeterministicIDs(t *testing.T) {
	text := "Alice works at Acme.\n\nAcme is based in Berlin."
	first, err := Split(testDoc(text), Params{}).Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	second, err := Split(testDoc(text), Params{}).Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("chunk %d: IDs differ across runs: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestSeekSkipsChunks(t *testing.T) {
	text := "One sentence here.\n\nAnother paragraph there.\n\nA third block of text."
	all, err := Split(testDoc(text), Params{MaxTokens: 8}).Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(all) < 2 {
		t.Skip("document did not produce enough chunks to seek")
	}

	stream := Split(testDoc(text), Params{MaxTokens: 8})
	if err := stream.Seek(1); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	chunk, ok, err := stream.Next()
	if err != nil || !ok {
		t.Fatalf("Next after Seek: ok=%v err=%v", ok, err)
	}
	if chunk.ChunkIndex != 1 {
		t.Errorf("expected chunk index 1 after Seek, got %d", chunk.ChunkIndex)
	}
	if chunk.ID != all[1].ID {
		t.Errorf("seeked chunk differs from sequential chunk")
	}
}

func TestSplitLineNumbers(t *testing.T) {
	text := "line one text here.\nline two text here.\n\nline four starts a new paragraph."
	chunks, err := Split(testDoc(text), Params{}).Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	if chunks[0].StartLine != 1 {
		t.Errorf("first chunk should start at line 1, got %d", chunks[0].StartLine)
	}
	last := chunks[len(chunks)-1]
	if last.EndLine != 4 {
		t.Errorf("last chunk should end at line 4, got %d", last.EndLine)
	}
}

func TestEstimateTokensSafetyMargin(t *testing.T) {
	text := strings.Repeat("a", 400)
	// 400 bytes -> 100 base tokens -> 120 with margin
	if got := estimateTokens(text); got != 120 {
		t.Errorf("estimateTokens = %d, want 120", got)
	}
	if got := estimateTokens("a"); got < 1 {
		t.Errorf("estimateTokens of tiny input = %d, want >= 1", got)
	}
}

func TestCollectHelperKeepsOrder(t *testing.T) {
	text := "Alpha paragraph.\n\nBeta paragraph.\n\nGamma paragraph."
	got := collect(t, testDoc(text), Params{})
	for i := 1; i < len(got); i++ {
		if got[i].index != got[i-1].index+1 {
			t.Errorf("chunk indices not sequential: %d after %d", got[i].index, got[i-1].index)
		}
		if got[i].start < got[i-1].start {
			t.Errorf("chunk starts not monotonic")
		}
	}
}
