package detector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

func TestShouldPromote(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	cases := []struct {
		name string
		page crawler.Page
		want bool
	}{
		{name: "empty body", page: crawler.Page{StatusCode: 200}, want: true},
		{name: "spa marker", page: crawler.Page{StatusCode: 200, Body: []byte(`<div id="__next"></div>`)}, want: true},
		{name: "script heavy", page: crawler.Page{StatusCode: 200, Body: []byte(`<html><script>var a=1;</script><p>t</p></html>`)}, want: true},
		{name: "unclosed script", page: crawler.Page{StatusCode: 200, Body: []byte(`<p>x</p><script src="a.js">`)}, want: true},
		{name: "not found", page: crawler.Page{StatusCode: 404, Body: []byte("not found")}},
		{name: "has quotes", page: crawler.Page{StatusCode: 200, Quotes: []string{"Squirrel!"}}},
		{
			name: "plain page",
			page: crawler.Page{StatusCode: 200, Body: []byte("<html><body>" + strings.Repeat("<p>words</p>", 50) + "</body></html>")},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, h.ShouldPromote(tc.page))
		})
	}
}

func TestNewHeuristicDefault(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultThreshold, NewHeuristic(0).BodyLengthThreshold)
	require.Equal(t, DefaultThreshold, NewHeuristic(-5).BodyLengthThreshold)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) (crawler.Page, error) {
	args := m.Called(ctx, url)
	return args.Get(0).(crawler.Page), args.Error(1)
}

func TestPromoter(t *testing.T) {
	t.Parallel()

	const (
		static   = "https://www.quotes.net/movies/up"
		rendered = "https://www.quotes.net/movies/zodiac"
		broken   = "https://www.quotes.net/movies/gone"
	)
	staticFetcher := &mockFetcher{}
	staticFetcher.On("Fetch", mock.Anything, static).Return(crawler.Page{URL: static, StatusCode: 200, Quotes: []string{"Squirrel!"}}, nil)
	staticFetcher.On("Fetch", mock.Anything, rendered).Return(crawler.Page{URL: rendered, StatusCode: 200, Body: []byte(`<div id="app"></div>`)}, nil)
	staticFetcher.On("Fetch", mock.Anything, broken).Return(crawler.Page{URL: broken, StatusCode: 500}, errors.New("unexpected status 500"))
	renderer := &mockFetcher{}
	renderer.On("Fetch", mock.Anything, rendered).Return(crawler.Page{URL: rendered, StatusCode: 200, Quotes: []string{"I need to know."}}, nil)

	p, err := NewPromoter(staticFetcher, renderer, nil, zap.NewNop())
	require.NoError(t, err)

	page, err := p.Fetch(context.Background(), static)
	require.NoError(t, err)
	require.Equal(t, []string{"Squirrel!"}, page.Quotes)

	page, err = p.Fetch(context.Background(), rendered)
	require.NoError(t, err)
	require.Equal(t, []string{"I need to know."}, page.Quotes)

	_, err = p.Fetch(context.Background(), broken)
	require.ErrorContains(t, err, "500")

	renderer.AssertNumberOfCalls(t, "Fetch", 1)
	staticFetcher.AssertNumberOfCalls(t, "Fetch", 3)

	_, err = NewPromoter(nil, renderer, nil, nil)
	require.Error(t, err)
}
