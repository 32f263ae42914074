package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdown_HeadingBoundaries(t *testing.T) {
	source := []byte("# A\n\nalpha\n\n# B\n\nbeta\n")

	chunks := Markdown("notes.md", source, Options{})
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, ID("notes.md", i), c.ID)
	}
}

func TestMarkdown_ChunkIDIsDeterministic(t *testing.T) {
	source := []byte("# A\n\nalpha\n\n# B\n\nbeta\n")

	first := Markdown("notes.md", source, Options{})
	second := Markdown("notes.md", source, Options{})

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestMarkdown_ChunkIDChangesWithPath(t *testing.T) {
	source := []byte("# A\n\nalpha\n")

	a := Markdown("notes.md", source, Options{})
	b := Markdown("other.md", source, Options{})

	require.NotEmpty(t, a)
	require.NotEmpty(t, b)
	assert.NotEqual(t, a[0].ID, b[0].ID)
}

func TestMarkdown_FencedCodeBlockNeverSplit(t *testing.T) {
	body := strings.Repeat("x", 2000)
	source := []byte("# Example\n\n```go\n" + body + "\n```\n")

	chunks := Markdown("example.md", source, Options{MaxChunkChars: 1200})
	require.NotEmpty(t, chunks)

	var codeChunk *Chunk
	for i := range chunks {
		if strings.Contains(chunks[i].Content, body) {
			codeChunk = &chunks[i]
			break
		}
	}
	require.NotNil(t, codeChunk, "expected one chunk to contain the full fenced code block")
	assert.True(t, strings.HasPrefix(codeChunk.Content, "```go"))
	assert.True(t, strings.HasSuffix(codeChunk.Content, "```"))
	assert.Greater(t, len(codeChunk.Content), 1200)
}

func TestMarkdown_HeadingPathBreadcrumbs(t *testing.T) {
	source := []byte("# A\n\n## B\n\ncontent under B that is long enough to pass the minimum chunk size threshold used by this test case to force a flush boundary here.\n")

	chunks := Markdown("doc.md", source, Options{MinChunkChars: 50, MaxChunkChars: 1200})
	require.NotEmpty(t, chunks)

	found := false
	for _, c := range chunks {
		if strings.Contains(c.Content, "content under B") {
			assert.Equal(t, "A > B", c.HeadingPath)
			found = true
		}
	}
	assert.True(t, found)
}

func TestMarkdown_NoHeadingGivesEmptyPath(t *testing.T) {
	source := []byte("just a paragraph with no heading above it.\n")

	chunks := Markdown("plain.md", source, Options{})
	require.Len(t, chunks, 1)
	assert.Equal(t, "", chunks[0].HeadingPath)
}

func TestMarkdown_EmptyInputYieldsNoChunks(t *testing.T) {
	chunks := Markdown("empty.md", []byte(""), Options{})
	assert.Empty(t, chunks)
}
