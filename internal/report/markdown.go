package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"

	"github.com/JakeFAU/quotes-crawler/internal/store"
)

// MarkdownWriter outputs stats as a GitHub-flavored markdown document.
type MarkdownWriter struct {
	output io.Writer
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{output: output}
}

// Write implements Writer.
func (w *MarkdownWriter) Write(stats store.Stats) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Quotes Catalog")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Movies", strconv.FormatInt(stats.Movies, 10)},
			{"Quotes", strconv.FormatInt(stats.Quotes, 10)},
			{"Average quotes per movie", formatAverage(stats.AvgQuotesPerMovie)},
		},
	})
	md.PlainText("")

	md.H2("Movies by letter")
	md.PlainText("")
	if len(stats.ByLetter) == 0 {
		md.PlainText("No movies loaded.")
	} else {
		rows := make([][]string, 0, len(stats.ByLetter))
		for _, lc := range stats.ByLetter {
			rows = append(rows, []string{lc.Letter, strconv.FormatInt(lc.Movies, 10)})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Letter", "Movies"},
			Rows:   rows,
		})
	}
	md.PlainText("")

	return len(md.String()), md.Build()
}
