// Package postgres provides the Postgres-backed movie repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/quotes-crawler/internal/naturalkey"
	"github.com/JakeFAU/quotes-crawler/internal/store"
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultSchema = "quotes"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Schema          string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Repository implements store.Repository on Postgres.
type Repository struct {
	pool       pool
	schemaName string
	schema     string
	movies     string
	quotes     string
}

// New connects a pgx pool using cfg.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	repo, err := NewWithPool(p, cfg.Schema)
	if err != nil {
		p.Close()
		return nil, err
	}
	return repo, nil
}

// NewWithPool constructs a repository from an existing pool (primarily for testing).
func NewWithPool(p pool, schema string) (*Repository, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if schema == "" {
		schema = defaultSchema
	}
	if !validIdentifier.MatchString(schema) {
		return nil, fmt.Errorf("invalid schema name %q", schema)
	}
	return &Repository{
		pool:       p,
		schemaName: schema,
		schema:     pgx.Identifier{schema}.Sanitize(),
		movies:     pgx.Identifier{schema, "movies"}.Sanitize(),
		quotes:     pgx.Identifier{schema, "quotes"}.Sanitize(),
	}, nil
}

// Close releases the underlying pool resources.
func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Begin opens one load transaction.
func (r *Repository) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx, repo: r}, nil
}

// Migrate creates the schema objects that do not exist yet. With Reset the
// tables are dropped first.
func (r *Repository) Migrate(ctx context.Context, opts store.MigrateOptions) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if cErr := tx.Commit(ctx); cErr != nil {
			err = fmt.Errorf("commit migration: %w", cErr)
		}
	}()
	for _, stmt := range r.migrationStatements(opts) {
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (r *Repository) migrationStatements(opts store.MigrateOptions) []string {
	var stmts []string
	if opts.Reset {
		stmts = append(stmts,
			fmt.Sprintf(`DROP TABLE IF EXISTS %s`, r.quotes),
			fmt.Sprintf(`DROP TABLE IF EXISTS %s`, r.movies),
		)
	}
	return append(stmts,
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, r.schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          BIGSERIAL PRIMARY KEY,
	title       TEXT NOT NULL,
	year        INTEGER,
	external_id INTEGER,
	url         TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`, r.movies),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id         BIGSERIAL PRIMARY KEY,
	movie_id   BIGINT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
	quote_text TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, r.quotes, r.movies),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS movies_natural_key_idx ON %s (title, year, external_id)`, r.movies),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS quotes_movie_id_idx ON %s (movie_id)`, r.quotes),
	)
}

// Stats returns catalog totals.
func (r *Repository) Stats(ctx context.Context) (store.Stats, error) {
	var stats store.Stats
	query := fmt.Sprintf(`SELECT
	(SELECT COUNT(*) FROM %s),
	(SELECT COUNT(*) FROM %s),
	(SELECT COALESCE(AVG(c), 0)::float8 FROM (SELECT COUNT(*) AS c FROM %s GROUP BY movie_id) per_movie)`,
		r.movies, r.quotes, r.quotes)
	if err := r.pool.QueryRow(ctx, query).Scan(&stats.Movies, &stats.Quotes, &stats.AvgQuotesPerMovie); err != nil {
		return store.Stats{}, fmt.Errorf("query totals: %w", err)
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT UPPER(LEFT(title, 1)) AS letter, COUNT(*)
FROM %s GROUP BY letter ORDER BY letter`, r.movies))
	if err != nil {
		return store.Stats{}, fmt.Errorf("query letters: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var lc store.LetterCount
		if err := rows.Scan(&lc.Letter, &lc.Movies); err != nil {
			return store.Stats{}, fmt.Errorf("scan letter: %w", err)
		}
		stats.ByLetter = append(stats.ByLetter, lc)
	}
	if err := rows.Err(); err != nil {
		return store.Stats{}, fmt.Errorf("iterate letters: %w", err)
	}
	return stats, nil
}

// Tx is a single load unit on Postgres.
type Tx struct {
	tx   pgx.Tx
	repo *Repository
}

// FindMovie returns the best NULL tolerant match for key.
func (t *Tx) FindMovie(ctx context.Context, key naturalkey.Key) (store.Movie, error) {
	query := fmt.Sprintf(`SELECT id, title, year, external_id, COALESCE(url, '')
FROM %s
WHERE title = $1
  AND (year IS NULL OR year = $2::integer)
  AND (external_id IS NULL OR external_id = $3::integer)
ORDER BY (year IS NOT DISTINCT FROM $2::integer)::int + (external_id IS NOT DISTINCT FROM $3::integer)::int DESC, id
LIMIT 1`, t.repo.movies)
	var m store.Movie
	err := t.tx.QueryRow(ctx, query, key.Title, key.Year, key.ExternalID).
		Scan(&m.ID, &m.Title, &m.Year, &m.ExternalID, &m.URL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Movie{}, store.ErrNotFound
		}
		return store.Movie{}, fmt.Errorf("find movie: %w", err)
	}
	return m, nil
}

// InsertMovie inserts a new parent row and returns its id.
func (t *Tx) InsertMovie(ctx context.Context, key naturalkey.Key, url string) (int64, error) {
	query := fmt.Sprintf(`INSERT INTO %s (title, year, external_id, url) VALUES ($1, $2, $3, $4) RETURNING id`, t.repo.movies)
	var id int64
	if err := t.tx.QueryRow(ctx, query, key.Title, key.Year, key.ExternalID, url).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert movie: %w", err)
	}
	return id, nil
}

// BackfillMovie fills NULL year or external id from key.
func (t *Tx) BackfillMovie(ctx context.Context, id int64, key naturalkey.Key) error {
	query := fmt.Sprintf(`UPDATE %s SET year = COALESCE(year, $2), external_id = COALESCE(external_id, $3) WHERE id = $1`, t.repo.movies)
	tag, err := t.tx.Exec(ctx, query, id, key.Year, key.ExternalID)
	if err != nil {
		return fmt.Errorf("backfill movie: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// InsertQuotes bulk inserts quote rows. Append uses COPY; dedupe filters
// against stored rows in a single statement.
func (t *Tx) InsertQuotes(ctx context.Context, movieID int64, texts []string, policy store.ChildPolicy) (int, error) {
	if len(texts) == 0 {
		return 0, nil
	}
	if policy == store.ChildDedupe {
		query := fmt.Sprintf(`INSERT INTO %[1]s (movie_id, quote_text)
SELECT $1, u.q FROM unnest($2::text[]) WITH ORDINALITY AS u(q, ord)
WHERE NOT EXISTS (SELECT 1 FROM %[1]s x WHERE x.movie_id = $1 AND x.quote_text = u.q)
ORDER BY u.ord`, t.repo.quotes)
		tag, err := t.tx.Exec(ctx, query, movieID, store.UniqueTexts(texts))
		if err != nil {
			return 0, fmt.Errorf("insert quotes: %w", err)
		}
		return int(tag.RowsAffected()), nil
	}
	rows := make([][]any, 0, len(texts))
	for _, text := range texts {
		rows = append(rows, []any{movieID, text})
	}
	n, err := t.tx.CopyFrom(ctx, pgx.Identifier{t.repo.schemaName, "quotes"}, []string{"movie_id", "quote_text"}, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy quotes: %w", err)
	}
	return int(n), nil
}

// Commit commits the unit.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback aborts the unit. Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
