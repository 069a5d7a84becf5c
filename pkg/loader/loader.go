package loader

import (
	"context"
	"os"
	"strings"
)

// Block is one positional unit of a loaded document: a span of the document
// text with its page (zero when the format has no pages) and line/char range.
type Block struct {
	Page      int
	StartLine int
	EndLine   int
	StartChar int
	EndChar   int
}

// Document is the loader output: the full plain text plus positional blocks.
// Blocks cover the text's paragraphs in order; the blank lines between
// paragraphs belong to no block. Chunking uses them to attribute page
// numbers to character offsets.
type Document struct {
	Text   string
	Blocks []Block
}

// Loader turns a stored file into plain text with positional metadata.
// Format-specific parsers live behind this interface; the engine only ever
// sees text and blocks.
type Loader interface {
	Supports(ext, mime string) bool
	Load(ctx context.Context, path string) (*Document, error)
}

// Registry resolves a loader for a file. Loaders are tried in the order they
// were registered; the first supporting loader wins.
type Registry struct {
	loaders []Loader
}

// NewRegistry creates a registry from a priority-ordered loader list.
func NewRegistry(loaders ...Loader) *Registry {
	return &Registry{loaders: loaders}
}

// Resolve returns the first loader supporting the extension and mime type.
func (r *Registry) Resolve(ext, mime string) (Loader, bool) {
	for _, l := range r.loaders {
		if l.Supports(ext, mime) {
			return l, true
		}
	}
	return nil, false
}

// FileReader abstracts where bytes come from so the text loader works the
// same over local disk and object storage.
type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// OSReader reads files from the local filesystem.
type OSReader struct{}

func (OSReader) ReadFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// TextLoader handles plain-text formats. It produces one block per paragraph
// so downstream provenance stays fine-grained.
type TextLoader struct {
	Reader FileReader
}

// NewTextLoader creates a TextLoader over the given byte source.
func NewTextLoader(reader FileReader) *TextLoader {
	if reader == nil {
		reader = OSReader{}
	}
	return &TextLoader{Reader: reader}
}

func (l *TextLoader) Supports(ext, mime string) bool {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "txt", "md", "text", "markdown":
		return true
	}
	return strings.HasPrefix(mime, "text/")
}

func (l *TextLoader) Load(ctx context.Context, path string) (*Document, error) {
	raw, err := l.Reader.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return FromText(string(raw)), nil
}

// FromText builds a Document from in-memory text, deriving one block per
// paragraph with exact line and char spans.
func FromText(text string) *Document {
	doc := &Document{Text: text}
	if text == "" {
		return doc
	}

	line := 1
	blockStart := -1
	blockStartLine := 1
	contentEnd := 0 // end of the last non-blank line, newline excluded
	offset := 0

	flush := func(end int) {
		if blockStart < 0 || end <= blockStart {
			return
		}
		span := text[blockStart:end]
		doc.Blocks = append(doc.Blocks, Block{
			StartLine: blockStartLine,
			EndLine:   blockStartLine + strings.Count(span, "\n"),
			StartChar: blockStart,
			EndChar:   end,
		})
		blockStart = -1
	}

	for offset < len(text) {
		lineEnd := strings.IndexByte(text[offset:], '\n')
		var next int
		if lineEnd < 0 {
			lineEnd = len(text)
			next = len(text)
		} else {
			lineEnd += offset
			next = lineEnd + 1
		}

		if strings.TrimSpace(text[offset:lineEnd]) == "" {
			flush(contentEnd)
		} else {
			if blockStart < 0 {
				blockStart = offset
				blockStartLine = line
			}
			contentEnd = lineEnd
		}

		offset = next
		line++
	}
	flush(contentEnd)

	return doc
}
