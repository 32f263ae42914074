package chunk

import "strings"

// PlainText chunks non-Markdown source into an ordered sequence of chunk
// records: a single section with an empty heading path, subdivided only
// to respect MaxChunkChars (on paragraph boundaries where possible).
func PlainText(relPath string, source []byte, opts Options) []Chunk {
	opts = opts.withDefaults()

	paragraphs := strings.Split(string(source), "\n\n")

	var raws []rawChunk
	var buf strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if buf.Len() > 0 && buf.Len()+len(p) > opts.MaxChunkChars {
			raws = append(raws, rawChunk{content: strings.TrimSpace(buf.String())})
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p)
	}
	if buf.Len() > 0 {
		raws = append(raws, rawChunk{content: strings.TrimSpace(buf.String())})
	}

	return finalize(relPath, raws)
}

// File dispatches to the Markdown or plain-text chunker based on the
// file extension (case-insensitive), per MarkdownExtensions.
func File(relPath string, source []byte, opts Options) []Chunk {
	if MarkdownExtensions[strings.ToLower(extOf(relPath))] {
		return Markdown(relPath, source, opts)
	}
	return PlainText(relPath, source, opts)
}

func extOf(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return path[i:]
}
