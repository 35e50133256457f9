package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codetrawl/codetrawl/internal/search"
)

func TestWriter_StatusIcons(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Success("indexed 42 files")
	w.Warning("collection missing")
	w.Errorf("refresh failed: %s", "timeout")
	w.Status("", "plain continuation line")

	out := buf.String()
	assert.Contains(t, out, "✅ indexed 42 files")
	assert.Contains(t, out, "collection missing")
	assert.Contains(t, out, "❌ refresh failed: timeout")
	assert.Contains(t, out, "   plain continuation line")
}

func TestWriter_NoColorOnNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Results([]search.Result{{
		Path:      "internal/auth/login.go",
		Language:  "go",
		Content:   "func Login() error {\n\treturn nil\n}",
		LineStart: 10,
		LineEnd:   12,
		Score:     0.875,
	}})

	out := buf.String()
	assert.NotContains(t, out, "\x1b[", "buffer output must carry no ANSI escapes")
	assert.Contains(t, out, "1. internal/auth/login.go:10-12")
	assert.Contains(t, out, "go (0.875)")
	assert.Contains(t, out, "  func Login() error {")
	assert.Contains(t, out, "  \treturn nil")
}

func TestWriter_EmptyResults(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Results(nil)
	assert.Equal(t, "No results found.\n", buf.String())
}

func TestWriter_MultipleResultsAreNumbered(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Results([]search.Result{
		{Path: "a.go", Language: "go", Content: "x", LineStart: 1, LineEnd: 1},
		{Path: "b.go", Language: "go", Content: "y", LineStart: 5, LineEnd: 9},
	})

	out := buf.String()
	assert.Contains(t, out, "1. a.go:1-1")
	assert.Contains(t, out, "2. b.go:5-9")
}
