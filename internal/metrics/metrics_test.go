package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Www.Quotes.net/movies/Up", "www.quotes.net"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if crawlFetchesTotal == nil || loadEntitiesTotal == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(crawlFetchesTotal.WithLabelValues("metrics.test", "ok"))
	ObserveFetch("https://metrics.test/movies/Up", "ok", 20*time.Millisecond)
	if got := testutil.ToFloat64(crawlFetchesTotal.WithLabelValues("metrics.test", "ok")); got != before+1 {
		t.Errorf("expected fetch counter to increase by 1, got %f -> %f", before, got)
	}

	beforeQuotes := testutil.ToFloat64(loadQuotesTotal)
	ObserveQuotes(3)
	ObserveQuotes(0)
	if got := testutil.ToFloat64(loadQuotesTotal); got != beforeQuotes+3 {
		t.Errorf("expected quotes counter to increase by 3, got %f -> %f", beforeQuotes, got)
	}

	beforeScheduled := testutil.ToFloat64(crawlCandidatesTotal.WithLabelValues("metrics_test"))
	ObserveCandidates("metrics_test", 4)
	if got := testutil.ToFloat64(crawlCandidatesTotal.WithLabelValues("metrics_test")); got != beforeScheduled+4 {
		t.Errorf("expected candidate counter to increase by 4, got %f", got)
	}

	SetProcessedURLs(42)
	if got := testutil.ToFloat64(crawlProcessedURLs); got != 42 {
		t.Errorf("expected processed gauge 42, got %f", got)
	}

	ObserveEntity("metrics_test")
	ObserveUnit("metrics_test")
	ObserveRateLimitDelay("metrics.test", time.Second)
	if testutil.ToFloat64(loadEntitiesTotal.WithLabelValues("metrics_test")) != 1 {
		t.Error("expected entity counter to be 1")
	}
	if testutil.ToFloat64(loadUnitsTotal.WithLabelValues("metrics_test")) != 1 {
		t.Error("expected unit counter to be 1")
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://www.quotes.net", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
