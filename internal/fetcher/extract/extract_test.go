package extract

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

const detailHTML = `<html><body>
<h1> Up (2009) <span class="badge">PG</span></h1>
<div class="quotes">
  <a href="/mquote/1">  Adventure is out there!  </a>
  <a href="/mquote/4">Carl: So long, boys.
Russell: Bye!</a>
  <a href="/mquote/2"><b>Squirrel!</b></a>
  <a href="/mquote/3">   </a>
  <a href="/movies/Up_(2009)_49522">not a quote</a>
</div>
</body></html>`

const catalogHTML = `<html><body>
<a href="/movies/Zodiac_(2007)_12345">Zodiac</a>
<a href="/movies/Zoolander_(2001)_9">Zoolander</a>
<a href="/mquote/77">quote</a>
<a href="https://elsewhere.example/movies/skip">absolute elsewhere</a>
<a href="/movies/Zodiac_(2007)_12345">Zodiac again</a>
<a href="/movies/Z%C3%A9lig_(1983)_4">Zelig</a>
</body></html>`

func TestParseDetail(t *testing.T) {
	t.Parallel()

	d, err := ParseDetail(strings.NewReader(detailHTML))
	require.NoError(t, err)
	require.Equal(t, "Up (2009)", d.Label)
	require.Equal(t, []string{
		"Adventure is out there!",
		"Carl: So long, boys.\nRussell: Bye!",
		"Squirrel!",
	}, d.Quotes)
}

func TestParseDetailWithoutTitle(t *testing.T) {
	t.Parallel()

	d, err := ParseDetail(strings.NewReader(`<p>nothing here</p>`))
	require.NoError(t, err)
	require.Empty(t, d.Label)
	require.Empty(t, d.Quotes)
}

func TestParseCatalog(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://www.quotes.net/allmovies/Z")
	require.NoError(t, err)

	cands, err := ParseCatalog(strings.NewReader(catalogHTML), base)
	require.NoError(t, err)
	require.Equal(t, []crawler.Candidate{
		{URL: "https://www.quotes.net/movies/Zodiac_(2007)_12345", Label: "Zodiac (2007) 12345"},
		{URL: "https://www.quotes.net/movies/Zoolander_(2001)_9", Label: "Zoolander (2001) 9"},
		{URL: "https://www.quotes.net/movies/Z%C3%A9lig_(1983)_4", Label: "Zélig (1983) 4"},
	}, cands)
}
