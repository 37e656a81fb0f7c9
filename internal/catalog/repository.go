package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/postgres"
)

// Store persists movies.
type Store interface {
	List(ctx context.Context, limit, offset int) ([]Movie, error)
	Get(ctx context.Context, id int64) (Movie, error)
	Create(ctx context.Context, m Movie) (Movie, error)
	Update(ctx context.Context, m Movie) error
	Delete(ctx context.Context, id int64) error
	Import(ctx context.Context, movies []Movie) (int, error)
	// All returns every movie ordered by ID.
	All(ctx context.Context) ([]Movie, error)
}

// Schema creates the movies table.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS movies (
		id     BIGSERIAL PRIMARY KEY,
		title  TEXT NOT NULL,
		genres TEXT NOT NULL DEFAULT ''
	)`,
}

// importBatch bounds the rows written per prepared-statement round.
const importBatch = 500

// Repository is the PostgreSQL Store.
type Repository struct {
	client *postgres.Client
}

// NewRepository applies Schema and returns a Repository.
func NewRepository(ctx context.Context, client *postgres.Client) (*Repository, error) {
	if err := client.Migrate(ctx, Schema...); err != nil {
		return nil, fmt.Errorf("migrating catalog schema: %w", err)
	}
	return &Repository{client: client}, nil
}

func (r *Repository) List(ctx context.Context, limit, offset int) ([]Movie, error) {
	rows, err := r.client.DB.QueryContext(ctx,
		`SELECT id, title, genres FROM movies ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing movies: %w", err)
	}
	return scanMovies(rows)
}

func (r *Repository) All(ctx context.Context) ([]Movie, error) {
	rows, err := r.client.DB.QueryContext(ctx, `SELECT id, title, genres FROM movies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("loading movies: %w", err)
	}
	return scanMovies(rows)
}

func (r *Repository) Get(ctx context.Context, id int64) (Movie, error) {
	var m Movie
	err := r.client.DB.QueryRowContext(ctx,
		`SELECT id, title, genres FROM movies WHERE id = $1`, id).Scan(&m.ID, &m.Title, &m.Genres)
	if errors.Is(err, sql.ErrNoRows) {
		return Movie{}, notFound(id)
	}
	if err != nil {
		return Movie{}, fmt.Errorf("getting movie %d: %w", id, err)
	}
	return m, nil
}

// Create inserts m. A zero ID is assigned from the sequence.
func (r *Repository) Create(ctx context.Context, m Movie) (Movie, error) {
	err := r.client.InTx(ctx, func(tx *sql.Tx) error {
		if m.ID == 0 {
			return tx.QueryRowContext(ctx,
				`INSERT INTO movies (title, genres) VALUES ($1, $2) RETURNING id`,
				m.Title, m.Genres).Scan(&m.ID)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO movies (id, title, genres) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			m.ID, m.Title, m.Genres)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusConflict, "movie %d already exists", m.ID)
		}
		return syncSequence(ctx, tx)
	})
	if err != nil {
		return Movie{}, fmt.Errorf("creating movie: %w", err)
	}
	return m, nil
}

func (r *Repository) Update(ctx context.Context, m Movie) error {
	res, err := r.client.DB.ExecContext(ctx,
		`UPDATE movies SET title = $2, genres = $3 WHERE id = $1`, m.ID, m.Title, m.Genres)
	if err != nil {
		return fmt.Errorf("updating movie %d: %w", m.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(m.ID)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.client.DB.ExecContext(ctx, `DELETE FROM movies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting movie %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(id)
	}
	return nil
}

// Import upserts movies in one transaction and returns the number written.
func (r *Repository) Import(ctx context.Context, movies []Movie) (int, error) {
	written := 0
	err := r.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO movies (id, title, genres) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, genres = EXCLUDED.genres`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for start := 0; start < len(movies); start += importBatch {
			end := min(start+importBatch, len(movies))
			for _, m := range movies[start:end] {
				if _, err := stmt.ExecContext(ctx, m.ID, m.Title, m.Genres); err != nil {
					return fmt.Errorf("movie %d: %w", m.ID, err)
				}
				written++
			}
		}
		return syncSequence(ctx, tx)
	})
	if err != nil {
		return 0, fmt.Errorf("importing movies: %w", err)
	}
	return written, nil
}

// syncSequence moves the id sequence past explicitly inserted IDs.
func syncSequence(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx,
		`SELECT setval(pg_get_serial_sequence('movies', 'id'), COALESCE((SELECT MAX(id) FROM movies), 0) + 1, false)`)
	return err
}

func scanMovies(rows *sql.Rows) ([]Movie, error) {
	defer rows.Close()
	movies := []Movie{}
	for rows.Next() {
		var m Movie
		if err := rows.Scan(&m.ID, &m.Title, &m.Genres); err != nil {
			return nil, fmt.Errorf("scanning movie: %w", err)
		}
		movies = append(movies, m)
	}
	return movies, rows.Err()
}

func notFound(id int64) error {
	return apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "movie %d not found", id)
}

var _ Store = (*Repository)(nil)
