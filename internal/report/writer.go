// Package report renders store statistics for the info command.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/JakeFAU/quotes-crawler/internal/store"
)

// Output formats.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// Writer renders catalog statistics.
type Writer interface {
	// Write renders stats and returns the number of bytes written.
	Write(stats store.Stats) (int, error)
}

// New returns the Writer for format.
func New(format string, output io.Writer) (Writer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return NewTextWriter(output), nil
	case FormatMarkdown, "md":
		return NewMarkdownWriter(output), nil
	case FormatJSON:
		return &JSONWriter{output: output}, nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// JSONWriter writes the stats as indented JSON.
type JSONWriter struct {
	output io.Writer
}

// Write implements Writer.
func (w *JSONWriter) Write(stats store.Stats) (int, error) {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal stats: %w", err)
	}
	data = append(data, '\n')
	n, err := w.output.Write(data)
	if err != nil {
		return n, fmt.Errorf("write stats: %w", err)
	}
	return n, nil
}

func formatAverage(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
