package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/config"
	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	"github.com/JakeFAU/quotes-crawler/internal/loader"
	"github.com/JakeFAU/quotes-crawler/internal/planner"
	"github.com/JakeFAU/quotes-crawler/internal/store"
	"github.com/JakeFAU/quotes-crawler/internal/tracker"
)

func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	require.Equal(t, "quotes", root.Use)
	require.NotNil(t, root.PersistentFlags().Lookup("config"))

	names := map[string]bool{}
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"crawl", "load", "migrate", "info", "records", "serve"} {
		require.True(t, names[want], "missing subcommand %s", want)
	}

	crawlCmd, _, err := root.Find([]string{"crawl"})
	require.NoError(t, err)
	for _, flag := range []string{"batch-size", "start-index", "max-total"} {
		require.NotNil(t, crawlCmd.Flags().Lookup(flag), flag)
	}
	migrateCmd, _, err := root.Find([]string{"migrate"})
	require.NoError(t, err)
	require.Equal(t, "false", migrateCmd.Flags().Lookup("reset").DefValue)
}

// writeConfig writes a SQLite-backed config under dir and returns its path.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
crawler:
  state_file: %[1]s/state.json
records:
  dir: %[1]s/records
db:
  driver: sqlite
  sqlite_path: %[1]s/quotes.db
logging:
  development: false
  level: error
`, dir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadInfoRecordsAgainstSQLite(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "records"), 0o750))
	log := `{"title":"Zodiac (2007)","url":"https://www.quotes.net/movies/zodiac","quotes":[{"text":"I need to know."}]}
{"title":"Up (2009)","url":"https://www.quotes.net/movies/up","quotes":["Squirrel!","Adventure is out there!"]}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "records", "movies.jsonl"), []byte(log), 0o600))

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--config", cfgPath, "migrate"}, &out))
	require.Contains(t, out.String(), "schema up to date")

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"--config", cfgPath, "load", "--child-policy", "dedupe"}, &out))
	require.Contains(t, out.String(), "movies inserted 2")
	require.Contains(t, out.String(), "quotes 3")

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"--config", cfgPath, "load", "--child-policy", "dedupe"}, &out))
	require.Contains(t, out.String(), "matched 2")
	require.Contains(t, out.String(), "quotes 0")

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"--config", cfgPath, "info", "--format", "json"}, &out))
	var stats store.Stats
	require.NoError(t, json.Unmarshal(out.Bytes(), &stats))
	require.Equal(t, int64(2), stats.Movies)
	require.Equal(t, int64(3), stats.Quotes)

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"--config", cfgPath, "info", "--format", "markdown"}, &out))
	require.Contains(t, out.String(), "# Quotes Catalog")

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"--config", cfgPath, "records"}, &out))
	var recs []crawler.RawRecord
	require.NoError(t, json.Unmarshal(out.Bytes(), &recs))
	require.Len(t, recs, 2)

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"--config", cfgPath, "migrate", "--reset"}, &out))
	require.Contains(t, out.String(), "schema reset")
	out.Reset()
	require.NoError(t, run(context.Background(), []string{"--config", cfgPath, "info", "--format", "json"}, &out))
	require.NoError(t, json.Unmarshal(out.Bytes(), &stats))
	require.Zero(t, stats.Movies)
}

func TestRunRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	var out bytes.Buffer
	err := run(context.Background(), []string{"--config", cfgPath, "load", "--child-policy", "merge"}, &out)
	require.ErrorContains(t, err, "unknown child policy")

	err = run(context.Background(), []string{"--config", cfgPath, "info", "--format", "html"}, &out)
	require.ErrorContains(t, err, "unknown report format")

	err = run(context.Background(), []string{"--config", filepath.Join(dir, "absent.yaml"), "info"}, &out)
	require.ErrorContains(t, err, "load config")
}

func TestCrawlFlagsOverrideConfig(t *testing.T) {
	fake := &fakeApp{summary: crawler.RunSummary{RunID: "run-7", Status: crawler.RunStatusSucceeded, Fetched: 3, NextStart: 45}}
	restore := newApp
	newApp = func(_ context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
		fake.cfg = cfg
		fake.logger = logger
		return fake, nil
	}
	t.Cleanup(func() { newApp = restore })

	cfgPath := writeConfig(t, t.TempDir())
	var out bytes.Buffer
	err := run(context.Background(), []string{"--config", cfgPath, "crawl", "--start-index", "40", "--batch-size", "5"}, &out)
	require.NoError(t, err)
	require.Equal(t, planner.Window{Start: 40, Size: 5, MaxTotal: 0}, fake.window)
	require.Contains(t, out.String(), "run run-7 succeeded: fetched 3")
	require.Contains(t, out.String(), "next start index: 45")
	require.Equal(t, 1, fake.closed)
}

func TestCrawlFailureStillClosesApp(t *testing.T) {
	fake := &fakeApp{
		summary:  crawler.RunSummary{RunID: "run-8", Status: crawler.RunStatusFailed, Exhausted: true},
		crawlErr: errors.New("archive batch: bucket missing"),
	}
	restore := newApp
	newApp = func(_ context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
		fake.cfg = cfg
		fake.logger = logger
		return fake, nil
	}
	t.Cleanup(func() { newApp = restore })

	cfgPath := writeConfig(t, t.TempDir())
	var out bytes.Buffer
	err := run(context.Background(), []string{"--config", cfgPath, "crawl"}, &out)
	require.ErrorContains(t, err, "bucket missing")
	require.Equal(t, planner.Window{Start: 0, Size: 20}, fake.window)
	require.Contains(t, out.String(), "catalog window exhausted")
	require.Equal(t, 1, fake.closed)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	srv := &http.Server{
		Addr:              "127.0.0.1:0",
		Handler:           http.NotFoundHandler(),
		ReadHeaderTimeout: time.Second,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, srv, time.Second, zap.NewNop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

type fakeApp struct {
	cfg      config.Config
	logger   *zap.Logger
	window   planner.Window
	summary  crawler.RunSummary
	crawlErr error
	closed   int
}

func (f *fakeApp) Crawl(_ context.Context, w planner.Window) (crawler.RunSummary, error) {
	f.window = w
	return f.summary, f.crawlErr
}

func (f *fakeApp) Load(context.Context, string, store.ChildPolicy) (loader.Summary, error) {
	return loader.Summary{}, nil
}

func (f *fakeApp) Records(context.Context) ([]crawler.RawRecord, error) { return nil, nil }

func (f *fakeApp) Processed() tracker.Set { return tracker.Set{} }

func (f *fakeApp) Stats(context.Context) (store.Stats, error) { return store.Stats{}, nil }

func (f *fakeApp) Ping(context.Context) error { return nil }

func (f *fakeApp) ListRuns(context.Context) ([]crawler.RunSummary, error) { return nil, nil }

func (f *fakeApp) GetRun(context.Context, string) (crawler.RunSummary, error) {
	return crawler.RunSummary{}, crawler.ErrRunNotFound
}

func (f *fakeApp) Migrate(context.Context, bool) error { return nil }

func (f *fakeApp) Config() config.Config { return f.cfg }

func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func (f *fakeApp) Close() { f.closed++ }
