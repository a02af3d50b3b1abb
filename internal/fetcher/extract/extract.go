// Package extract pulls catalog links and movie details out of quotes.net
// HTML. Both the colly and headless fetchers share it.
package extract

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

// Selectors used against quotes.net markup.
const (
	CatalogLinkSelector = "a[href^='/movies/']"
	TitleSelector       = "h1"
	QuoteSelector       = "a[href^='/mquote/']"
)

// Detail is what a movie page yields.
type Detail struct {
	Label  string
	Quotes []string
}

// ParseDetail reads the page label and the quote texts from a detail page.
func ParseDetail(r io.Reader) (Detail, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Detail{}, fmt.Errorf("parse detail html: %w", err)
	}
	return DetailFromDocument(doc), nil
}

// DetailFromDocument extracts a Detail from an already parsed document.
func DetailFromDocument(doc *goquery.Document) Detail {
	var d Detail
	d.Label = collapse(directText(doc.Find(TitleSelector).First()))
	doc.Find(QuoteSelector).Each(func(_ int, s *goquery.Selection) {
		// quote text keeps its inner line breaks; only the ends are trimmed
		if text := strings.TrimSpace(s.Text()); text != "" {
			d.Quotes = append(d.Quotes, text)
		}
	})
	return d
}

// ParseCatalog returns the movie links on a listing page in document order.
// Links are resolved against base; repeated URLs keep their first position.
func ParseCatalog(r io.Reader, base *url.URL) ([]crawler.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse catalog html: %w", err)
	}
	var out []crawler.Candidate
	doc.Find(CatalogLinkSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := ref
		if base != nil {
			abs = base.ResolveReference(ref)
		}
		out = append(out, crawler.Candidate{URL: abs.String(), Label: crawler.LabelFromURL(abs.String())})
	})
	return crawler.DedupeCandidates(out), nil
}

// directText returns the text nodes that are immediate children of s, which
// keeps nested badges or links out of the title.
func directText(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(c.Text())
		}
	})
	if strings.TrimSpace(b.String()) == "" {
		return s.Text()
	}
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
