// Package sqlite stores vectors in an embedded SQLite database (modernc.org
// driver, no cgo). Vectors are float32 BLOBs; search is brute-force cosine
// over the collection. Flush checkpoints the write-ahead log.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vectorstore"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/errors"
	_ "modernc.org/sqlite"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS collections (
		name       TEXT PRIMARY KEY,
		dimension  INTEGER NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
		id         INTEGER NOT NULL,
		text       TEXT NOT NULL,
		embedding  BLOB NOT NULL,
		PRIMARY KEY (collection, id)
	)`,
}

type Store struct {
	path   string
	mu     sync.Mutex
	db     *sql.DB
	logger *slog.Logger
}

func New(path string) *Store {
	return &Store{
		path:   path,
		logger: slog.Default().With("component", "sqlite-store", "path", path),
	}
}

// Connect opens the database file, creating its directory and schema.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperrors.Unavailable("sqlite connect", err)
		}
	}
	db, err := sql.Open("sqlite", s.path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return apperrors.Unavailable("sqlite connect", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return apperrors.Unavailable("sqlite connect", err)
	}
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return apperrors.Unavailable("sqlite connect", fmt.Errorf("migration %d: %w", i, err))
		}
	}
	s.db = db
	s.logger.Info("vector database opened")
	return nil
}

func (s *Store) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, apperrors.Unavailable("sqlite", errors.New("not connected"))
	}
	return s.db, nil
}

func (s *Store) EnsureCollection(ctx context.Context, name string, dim int) (vectorstore.Collection, error) {
	if dim <= 0 {
		return vectorstore.Collection{}, apperrors.Newf(apperrors.ErrInvalidInput, 400, "collection %s: invalid dimension %d", name, dim)
	}
	db, err := s.conn()
	if err != nil {
		return vectorstore.Collection{}, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return vectorstore.Collection{}, apperrors.Unavailable("ensure collection", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	err = tx.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, name).Scan(&existing)
	switch {
	case err == nil && existing == dim:
		return vectorstore.Collection{Name: name, Dimension: dim}, tx.Commit()
	case err == nil:
		s.logger.Warn("dropping collection with mismatched dimension", "collection", name, "have", existing, "want", dim)
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, name); err != nil {
			return vectorstore.Collection{}, apperrors.Unavailable("ensure collection", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
			return vectorstore.Collection{}, apperrors.Unavailable("ensure collection", err)
		}
	case !errors.Is(err, sql.ErrNoRows):
		return vectorstore.Collection{}, apperrors.Unavailable("ensure collection", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO collections (name, dimension, created_at) VALUES (?, ?, ?)`,
		name, dim, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return vectorstore.Collection{}, apperrors.Unavailable("ensure collection", err)
	}
	if err := tx.Commit(); err != nil {
		return vectorstore.Collection{}, apperrors.Unavailable("ensure collection", err)
	}
	return vectorstore.Collection{Name: name, Dimension: dim}, nil
}

func (s *Store) OpenCollection(ctx context.Context, name string) (vectorstore.Collection, error) {
	db, err := s.conn()
	if err != nil {
		return vectorstore.Collection{}, err
	}
	var dim int
	err = db.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, name).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return vectorstore.Collection{}, fmt.Errorf("collection %s: %w", name, apperrors.ErrNotInitialized)
	}
	if err != nil {
		return vectorstore.Collection{}, apperrors.Unavailable("open collection", err)
	}
	return vectorstore.Collection{Name: name, Dimension: dim}, nil
}

func (s *Store) DropCollection(ctx context.Context, name string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Unavailable("drop collection", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, name); err != nil {
		return apperrors.Unavailable("drop collection", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return apperrors.Unavailable("drop collection", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Unavailable("drop collection", err)
	}
	return nil
}

// Insert writes the batch in one transaction. Re-inserting an ID replaces
// the stored record, so a retried batch never duplicates rows.
func (s *Store) Insert(ctx context.Context, c vectorstore.Collection, records []vectorstore.Record) error {
	for _, r := range records {
		if len(r.Vector) != c.Dimension {
			return apperrors.Mismatch(len(r.Vector), c.Dimension)
		}
	}
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Unavailable("insert", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO records (collection, id, text, embedding) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return apperrors.Unavailable("insert", err)
	}
	defer stmt.Close()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, c.Name, r.ID, r.Text, vectorstore.EncodeVector(r.Vector)); err != nil {
			return apperrors.Unavailable("insert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Unavailable("insert", err)
	}
	return nil
}

// Flush checkpoints the WAL into the main database file.
func (s *Store) Flush(ctx context.Context, c vectorstore.Collection) error {
	if _, err := s.OpenCollection(ctx, c.Name); err != nil {
		return err
	}
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return apperrors.Unavailable("flush", err)
	}
	return nil
}

func (s *Store) QueryAll(ctx context.Context, c vectorstore.Collection) ([]vectorstore.Record, error) {
	if _, err := s.OpenCollection(ctx, c.Name); err != nil {
		return nil, err
	}
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT id, text, embedding FROM records WHERE collection = ? ORDER BY id`, c.Name)
	if err != nil {
		return nil, apperrors.Unavailable("query all", err)
	}
	defer rows.Close()

	var out []vectorstore.Record
	for rows.Next() {
		var (
			r    vectorstore.Record
			blob []byte
		)
		if err := rows.Scan(&r.ID, &r.Text, &blob); err != nil {
			return nil, apperrors.Unavailable("query all", err)
		}
		if r.Vector, err = vectorstore.DecodeVector(blob); err != nil {
			return nil, fmt.Errorf("record %d: %w", r.ID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("query all", err)
	}
	return out, nil
}

func (s *Store) Search(ctx context.Context, c vectorstore.Collection, vector []float32, topK int) ([]vectorstore.Hit, error) {
	if len(vector) != c.Dimension {
		return nil, apperrors.Mismatch(len(vector), c.Dimension)
	}
	records, err := s.QueryAll(ctx, c)
	if err != nil {
		return nil, err
	}
	return vectorstore.BruteForce(records, vector, topK), nil
}

func (s *Store) Count(ctx context.Context, c vectorstore.Collection) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE collection = ?`, c.Name).Scan(&n); err != nil {
		return 0, apperrors.Unavailable("count", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

var _ vectorstore.Store = (*Store)(nil)
