package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedLines(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return b.String()
}

func TestLineChunker_EmptyContent(t *testing.T) {
	c := NewLineChunker()

	assert.Nil(t, c.Chunk(""))
	assert.Nil(t, c.Chunk("   \n\t\n"))
}

func TestLineChunker_SingleChunk(t *testing.T) {
	c := NewLineChunker()

	chunks := c.Chunk("package main\n\nfunc main() {}\n")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[0].Total)
	assert.Equal(t, 1, chunks[0].LineStart)
	assert.Equal(t, 3, chunks[0].LineEnd, "trailing newline does not count as a line")
	assert.Equal(t, "package main\n\nfunc main() {}", chunks[0].Content)
}

func TestLineChunker_OverlappingWindows(t *testing.T) {
	c := &LineChunker{LinesPerChunk: 10, OverlapLines: 2}

	chunks := c.Chunk(numberedLines(25))
	require.Len(t, chunks, 3)

	assert.Equal(t, 1, chunks[0].LineStart)
	assert.Equal(t, 10, chunks[0].LineEnd)
	assert.Equal(t, 9, chunks[1].LineStart, "windows advance by size minus overlap")
	assert.Equal(t, 18, chunks[1].LineEnd)
	assert.Equal(t, 17, chunks[2].LineStart)
	assert.Equal(t, 25, chunks[2].LineEnd)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, 3, ch.Total)
	}

	// The overlap region appears in both adjacent chunks.
	assert.True(t, strings.HasSuffix(chunks[0].Content, "line 9\nline 10"))
	assert.True(t, strings.HasPrefix(chunks[1].Content, "line 9\nline 10"))
}

func TestLineChunker_Deterministic(t *testing.T) {
	c := NewLineChunker()
	content := numberedLines(200)

	a := c.Chunk(content)
	b := c.Chunk(content)
	assert.Equal(t, a, b, "identical content must chunk identically")
}

func TestLineChunker_ExactWindowBoundary(t *testing.T) {
	c := &LineChunker{LinesPerChunk: 10, OverlapLines: 0}

	chunks := c.Chunk(numberedLines(20))
	require.Len(t, chunks, 2)
	assert.Equal(t, 11, chunks[1].LineStart)
	assert.Equal(t, 20, chunks[1].LineEnd)
}

func TestLineChunker_DegenerateOverlapIsIgnored(t *testing.T) {
	c := &LineChunker{LinesPerChunk: 5, OverlapLines: 5}

	chunks := c.Chunk(numberedLines(10))
	require.Len(t, chunks, 2, "overlap >= window falls back to no overlap")
	assert.Equal(t, 6, chunks[1].LineStart)
}
