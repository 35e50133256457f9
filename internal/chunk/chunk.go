// Package chunk splits file content into retrievable units.
//
// The splitter is a deterministic line-window chunker: identical content
// always yields identical chunks, which is what makes content-addressed
// point IDs stable across branches. Language-specific structural splitting
// lives behind the same Chunker interface but is not part of this package.
package chunk

import "strings"

// Window sizing. Overlapping windows keep context for matches near
// boundaries without inflating the index much.
const (
	DefaultLinesPerChunk = 80
	DefaultOverlapLines  = 10
)

// Chunk is one piece of a file's content.
type Chunk struct {
	// Content is the chunk text.
	Content string
	// Index is the zero-based chunk index within the file.
	Index int
	// Total is the number of chunks the file produced.
	Total int
	// LineStart is the 1-indexed first line of the chunk.
	LineStart int
	// LineEnd is the 1-indexed last line, inclusive.
	LineEnd int
}

// Chunker splits file content into chunks.
type Chunker interface {
	Chunk(content string) []Chunk
}

// LineChunker splits content into fixed-size overlapping line windows.
type LineChunker struct {
	LinesPerChunk int
	OverlapLines  int
}

// NewLineChunker creates a chunker with default window sizing.
func NewLineChunker() *LineChunker {
	return &LineChunker{
		LinesPerChunk: DefaultLinesPerChunk,
		OverlapLines:  DefaultOverlapLines,
	}
}

// Chunk splits content into line windows. Empty content yields no chunks.
func (c *LineChunker) Chunk(content string) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	perChunk := c.LinesPerChunk
	if perChunk <= 0 {
		perChunk = DefaultLinesPerChunk
	}
	overlap := c.OverlapLines
	if overlap < 0 || overlap >= perChunk {
		overlap = 0
	}

	lines := strings.Split(content, "\n")
	// A trailing newline produces one empty trailing element; drop it so
	// line numbers match what editors display.
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	step := perChunk - overlap
	var chunks []Chunk
	for start := 0; start < len(lines); start += step {
		end := start + perChunk
		if end > len(lines) {
			end = len(lines)
		}

		chunks = append(chunks, Chunk{
			Content:   strings.Join(lines[start:end], "\n"),
			LineStart: start + 1,
			LineEnd:   end,
		})

		if end == len(lines) {
			break
		}
	}

	for i := range chunks {
		chunks[i].Index = i
		chunks[i].Total = len(chunks)
	}
	return chunks
}
