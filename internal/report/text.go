package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/JakeFAU/quotes-crawler/internal/store"
)

// TextWriter outputs stats as aligned plain text for terminals.
type TextWriter struct {
	output io.Writer
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer) *TextWriter {
	return &TextWriter{output: output}
}

// Write implements Writer.
func (w *TextWriter) Write(stats store.Stats) (int, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Movies:                   %d\n", stats.Movies)
	fmt.Fprintf(&sb, "Quotes:                   %d\n", stats.Quotes)
	fmt.Fprintf(&sb, "Average quotes per movie: %s\n", formatAverage(stats.AvgQuotesPerMovie))
	if len(stats.ByLetter) > 0 {
		sb.WriteString("\nMovies by letter:\n")
		for _, lc := range stats.ByLetter {
			fmt.Fprintf(&sb, "  %-3s %d\n", lc.Letter, lc.Movies)
		}
	}
	n, err := io.WriteString(w.output, sb.String())
	if err != nil {
		return n, fmt.Errorf("write stats: %w", err)
	}
	return n, nil
}
