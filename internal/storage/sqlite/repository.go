// Package sqlite provides a single-file movie repository backed by SQLite.
// It suits local runs where no Postgres server is available.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/quotes-crawler/internal/naturalkey"
	"github.com/JakeFAU/quotes-crawler/internal/store"
)

// Repository implements store.Repository on a SQLite database file.
type Repository struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database file at path.
func Open(path string) (*Repository, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	dsn := path + "?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)
	return &Repository{db: db, path: path}, nil
}

// Path returns the database file location.
func (r *Repository) Path() string {
	return r.path
}

// Close closes the database handle.
func (r *Repository) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// Ping checks the database handle.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Migrate creates missing tables. Reset drops them first.
func (r *Repository) Migrate(ctx context.Context, opts store.MigrateOptions) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("commit migration: %w", cErr)
		}
	}()

	var stmts []string
	if opts.Reset {
		stmts = append(stmts, `DROP TABLE IF EXISTS quotes`, `DROP TABLE IF EXISTS movies`)
	}
	stmts = append(stmts,
		`CREATE TABLE IF NOT EXISTS movies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		year INTEGER,
		external_id INTEGER,
		url TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
		`CREATE TABLE IF NOT EXISTS quotes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		movie_id INTEGER NOT NULL REFERENCES movies(id) ON DELETE CASCADE,
		quote_text TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
		`CREATE INDEX IF NOT EXISTS idx_movies_natural_key ON movies(title, year, external_id)`,
		`CREATE INDEX IF NOT EXISTS idx_quotes_movie_id ON quotes(movie_id)`,
	)
	for _, stmt := range stmts {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Stats returns catalog totals.
func (r *Repository) Stats(ctx context.Context) (store.Stats, error) {
	var stats store.Stats
	row := r.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM movies),
		(SELECT COUNT(*) FROM quotes),
		(SELECT COALESCE(AVG(c), 0.0) FROM (SELECT COUNT(*) AS c FROM quotes GROUP BY movie_id))`)
	if err := row.Scan(&stats.Movies, &stats.Quotes, &stats.AvgQuotesPerMovie); err != nil {
		return store.Stats{}, fmt.Errorf("query totals: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT UPPER(SUBSTR(title, 1, 1)) AS letter, COUNT(*)
		FROM movies GROUP BY letter ORDER BY letter`)
	if err != nil {
		return store.Stats{}, fmt.Errorf("query letters: %w", err)
	}
	defer func() { _ = rows.Close() }()
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

// Begin opens one load transaction.
func (r *Repository) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx is one load unit on SQLite.
type Tx struct {
	tx *sql.Tx
}

// FindMovie returns the best NULL tolerant match for key.
func (t *Tx) FindMovie(ctx context.Context, key naturalkey.Key) (store.Movie, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT id, title, year, external_id, COALESCE(url, '')
		FROM movies
		WHERE title = ?1
		  AND (year IS NULL OR year = ?2)
		  AND (external_id IS NULL OR external_id = ?3)
		ORDER BY ((year IS ?2) + (external_id IS ?3)) DESC, id
		LIMIT 1`, key.Title, nullInt(key.Year), nullInt(key.ExternalID))
	var (
		m           store.Movie
		year, extID sql.NullInt64
	)
	if err := row.Scan(&m.ID, &m.Title, &year, &extID, &m.URL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Movie{}, store.ErrNotFound
		}
		return store.Movie{}, fmt.Errorf("find movie: %w", err)
	}
	m.Year = fromNull(year)
	m.ExternalID = fromNull(extID)
	return m, nil
}

// InsertMovie inserts a new parent row and returns its id.
func (t *Tx) InsertMovie(ctx context.Context, key naturalkey.Key, url string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `INSERT INTO movies (title, year, external_id, url) VALUES (?, ?, ?, ?)`,
		key.Title, nullInt(key.Year), nullInt(key.ExternalID), url)
	if err != nil {
		return 0, fmt.Errorf("insert movie: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert movie id: %w", err)
	}
	return id, nil
}

// BackfillMovie fills NULL year or external id from key.
func (t *Tx) BackfillMovie(ctx context.Context, id int64, key naturalkey.Key) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE movies SET year = COALESCE(year, ?2), external_id = COALESCE(external_id, ?3) WHERE id = ?1`,
		id, nullInt(key.Year), nullInt(key.ExternalID))
	if err != nil {
		return fmt.Errorf("backfill movie: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("backfill movie: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// InsertQuotes inserts the quote rows with one prepared statement.
func (t *Tx) InsertQuotes(ctx context.Context, movieID int64, texts []string, policy store.ChildPolicy) (int, error) {
	if len(texts) == 0 {
		return 0, nil
	}
	query := `INSERT INTO quotes (movie_id, quote_text) VALUES (?1, ?2)`
	if policy == store.ChildDedupe {
		texts = store.UniqueTexts(texts)
		query = `INSERT INTO quotes (movie_id, quote_text) SELECT ?1, ?2
			WHERE NOT EXISTS (SELECT 1 FROM quotes WHERE movie_id = ?1 AND quote_text = ?2)`
	}
	stmt, err := t.tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare quote insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, text := range texts {
		res, err := stmt.ExecContext(ctx, movieID, text)
		if err != nil {
			return inserted, fmt.Errorf("insert quote: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("insert quote: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// Commit commits the unit.
func (t *Tx) Commit(context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback aborts the unit. Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func fromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	out := int(v.Int64)
	return &out
}
