package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainText_SingleSectionEmptyHeadingPath(t *testing.T) {
	source := []byte("first paragraph.\n\nsecond paragraph.\n")

	chunks := PlainText("readme.txt", source, Options{})
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, "", c.HeadingPath)
	}
}

func TestPlainText_RespectsMaxChunkChars(t *testing.T) {
	a := strings.Repeat("a", 900)
	b := strings.Repeat("b", 900)
	source := []byte(a + "\n\n" + b)

	chunks := PlainText("big.txt", source, Options{MaxChunkChars: 1200})
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Content, a)
	assert.Contains(t, chunks[1].Content, b)
}

func TestChunk_DispatchesByExtension(t *testing.T) {
	mdChunks := File("notes.md", []byte("# H\n\nbody\n"), Options{})
	require.NotEmpty(t, mdChunks)

	txtChunks := File("notes.txt", []byte("# H\n\nbody\n"), Options{})
	require.NotEmpty(t, txtChunks)
	assert.Equal(t, "", txtChunks[0].HeadingPath)
}
