// Package output formats CLI output: status lines during indexing and
// rendered search results.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/codetrawl/codetrawl/internal/search"
)

// Writer prints formatted output for the CLI. Colors are enabled only when
// the destination is a terminal.
type Writer struct {
	out      io.Writer
	useColor bool

	pathStyle  lipgloss.Style
	scoreStyle lipgloss.Style
	metaStyle  lipgloss.Style
}

// New creates a Writer, detecting terminal capability from out when it is an
// *os.File.
func New(out io.Writer) *Writer {
	useColor := false
	if f, ok := out.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	if os.Getenv("NO_COLOR") != "" {
		useColor = false
	}

	w := &Writer{out: out, useColor: useColor}
	if useColor {
		w.pathStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
		w.scoreStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
		w.metaStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	} else {
		w.pathStyle = lipgloss.NewStyle()
		w.scoreStyle = lipgloss.NewStyle()
		w.metaStyle = lipgloss.NewStyle()
	}
	return w
}

// Status prints a status message with an icon. Write errors to the console
// are ignored.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) { w.Status("✅", msg) }

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) { w.Status("⚠️ ", msg) }

// Error prints an error message.
func (w *Writer) Error(msg string) { w.Status("❌", msg) }

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Results renders search hits: a header line per hit followed by the matched
// chunk indented two spaces.
func (w *Writer) Results(results []search.Result) {
	if len(results) == 0 {
		_, _ = fmt.Fprintln(w.out, "No results found.")
		return
	}
	for i, r := range results {
		header := fmt.Sprintf("%d. %s", i+1,
			w.pathStyle.Render(fmt.Sprintf("%s:%d-%d", r.Path, r.LineStart, r.LineEnd)))
		meta := w.metaStyle.Render(r.Language) + " " +
			w.scoreStyle.Render(fmt.Sprintf("(%.3f)", r.Score))
		_, _ = fmt.Fprintf(w.out, "%s %s\n", header, meta)

		for _, line := range strings.Split(strings.TrimRight(r.Content, "\n"), "\n") {
			_, _ = fmt.Fprintf(w.out, "  %s\n", line)
		}
		_, _ = fmt.Fprintln(w.out)
	}
}
