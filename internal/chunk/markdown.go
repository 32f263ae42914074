package chunk

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// mdParser is stateless and safe for concurrent use; goldmark documents
// its default Markdown value as reusable across Parse calls.
var mdParser = goldmark.New()

// Markdown chunks Markdown source into an ordered sequence of chunk
// records: parse to an AST, walk top-level blocks while tracking a
// heading stack, buffer content until a heading boundary (with enough
// accumulated content) or the max-size bound is crossed, and never split
// a fenced code block across chunks.
func Markdown(relPath string, source []byte, opts Options) []Chunk {
	opts = opts.withDefaults()

	doc := mdParser.Parser().Parse(text.NewReader(source))

	w := &mdWalker{
		source: source,
		opts:   opts,
	}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		w.visit(n)
	}
	w.flush()

	return finalize(relPath, w.emitted)
}

// mdWalker accumulates raw source text into a running buffer, emitting
// chunks at heading boundaries and size limits.
type mdWalker struct {
	source []byte
	opts   Options

	headingStack [7]string // index 1..6, level-keyed
	headingPath  string

	buf     strings.Builder
	emitted []rawChunk
}

// rawChunk is a chunk before ID assignment: content plus the heading path
// active when it was emitted.
type rawChunk struct {
	headingPath string
	content     string
}

func (w *mdWalker) visit(n ast.Node) {
	if h, ok := n.(*ast.Heading); ok {
		w.onHeading(h)
		return
	}

	if isFencedOrIndentedCode(n) {
		w.onCodeBlock(n)
		return
	}

	raw := blockText(n, w.source)
	if strings.TrimSpace(raw) == "" {
		return
	}
	if w.buf.Len() > 0 && w.buf.Len()+len(raw) > w.opts.MaxChunkChars {
		w.flush()
	}
	w.appendToBuffer(raw)
}

// onHeading updates the heading stack/path. A heading boundary only
// forces a flush once the buffered content has reached MinChunkChars;
// smaller buffers merge forward and take on the new heading path,
// avoiding a proliferation of tiny chunks.
func (w *mdWalker) onHeading(h *ast.Heading) {
	if w.buf.Len() >= w.opts.MinChunkChars {
		w.flush()
	}

	level := h.Level
	title := strings.TrimSpace(blockText(h, w.source))
	if level >= 1 && level <= 6 {
		w.headingStack[level] = title
		for i := level + 1; i <= 6; i++ {
			w.headingStack[i] = ""
		}
	}
	w.headingPath = joinHeadingPath(w.headingStack)
}

// onCodeBlock flushes any pending buffer before emitting the fenced code
// block as its own, indivisible chunk, even if it exceeds MaxChunkChars.
func (w *mdWalker) onCodeBlock(n ast.Node) {
	if w.buf.Len() > 0 {
		w.flush()
	}
	code := codeBlockText(n, w.source)
	if strings.TrimSpace(code) == "" {
		return
	}
	w.emitted = append(w.emitted, rawChunk{headingPath: w.headingPath, content: code})
}

func (w *mdWalker) appendToBuffer(raw string) {
	if w.buf.Len() > 0 {
		w.buf.WriteString("\n\n")
	}
	w.buf.WriteString(raw)
}

func (w *mdWalker) flush() {
	content := strings.TrimSpace(w.buf.String())
	w.buf.Reset()
	if content == "" {
		return
	}
	w.emitted = append(w.emitted, rawChunk{headingPath: w.headingPath, content: content})
}

func joinHeadingPath(stack [7]string) string {
	var parts []string
	for i := 1; i <= 6; i++ {
		if stack[i] != "" {
			parts = append(parts, stack[i])
		}
	}
	return strings.Join(parts, " > ")
}

// finalize trims, drops empties, and assigns chunk_index/chunk_id in
// emission order.
func finalize(relPath string, raws []rawChunk) []Chunk {
	chunks := make([]Chunk, 0, len(raws))
	index := 0
	for _, r := range raws {
		content := strings.TrimSpace(r.content)
		if content == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:          ID(relPath, index),
			Index:       index,
			HeadingPath: r.headingPath,
			Content:     content,
			TokenCount:  approximateTokens(content),
		})
		index++
	}
	return chunks
}

func approximateTokens(s string) int {
	return len(strings.Fields(s))
}

func isFencedOrIndentedCode(n ast.Node) bool {
	switch n.(type) {
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		return true
	default:
		return false
	}
}

// codeBlockText rebuilds a code block from the AST node's content lines.
// A fenced block is wrapped in ``` fences carrying only the language name
// from its info string (the original fence characters and any other info
// text are not kept); an indented block is returned as its content lines
// alone. This keeps the block textually self-contained so it can be
// safely emitted as a single indivisible chunk.
func codeBlockText(n ast.Node, source []byte) string {
	inner := linesText(n, source)
	if fenced, ok := n.(*ast.FencedCodeBlock); ok {
		lang := string(fenced.Language(source))
		var b strings.Builder
		b.WriteString("```")
		b.WriteString(lang)
		b.WriteString("\n")
		b.WriteString(inner)
		if !strings.HasSuffix(inner, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("```")
		return b.String()
	}
	return inner
}

// blockText reconstructs the verbatim source text spanned by n and all of
// its descendants, by unioning every Lines() segment found in the
// subtree. This is exact for leaf blocks (paragraphs, headings) and a
// close approximation for containers (lists, blockquotes, tables) whose
// child leaves' segments may exclude marker characters like "- " or "> ".
func blockText(n ast.Node, source []byte) string {
	start, stop, ok := nodeSpan(n)
	if !ok {
		return ""
	}
	return string(source[start:stop])
}

// linedNode is satisfied by every block node (they embed ast.BaseBlock),
// which is all we need to read back its raw source lines without
// assuming Lines() is part of the ast.Node interface itself. Inline nodes
// satisfy it too, but goldmark panics when Lines() is called on them, so
// nodeLines only reads lines from block nodes.
type linedNode interface {
	Lines() *text.Segments
}

func nodeLines(n ast.Node) *text.Segments {
	if n.Type() != ast.TypeBlock {
		return nil
	}
	if ln, ok := n.(linedNode); ok {
		return ln.Lines()
	}
	return nil
}

func linesText(n ast.Node, source []byte) string {
	lines := nodeLines(n)
	if lines == nil || lines.Len() == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	return b.String()
}

// nodeSpan returns the [start, stop) byte range covering every Lines()
// segment in n's subtree.
func nodeSpan(n ast.Node) (start, stop int, ok bool) {
	start, stop = -1, -1
	var walk func(ast.Node)
	walk = func(cur ast.Node) {
		if lines := nodeLines(cur); lines != nil {
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				if start == -1 || seg.Start < start {
					start = seg.Start
				}
				if stop == -1 || seg.Stop > stop {
					stop = seg.Stop
				}
			}
		}
		for c := cur.FirstChild(); c != nil; c = c.NextSibling() {
			walk(c)
		}
	}
	walk(n)
	if start == -1 {
		return 0, 0, false
	}
	return start, stop, true
}
