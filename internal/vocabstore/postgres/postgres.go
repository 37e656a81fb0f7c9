// Package postgres stores vocabulary snapshots in PostgreSQL. Terms and IDF
// weights are JSONB columns; a partial unique index guarantees a single
// current row.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vocabstore"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/postgres"
)

// Schema creates the vocabularies table.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS vocabularies (
		version     UUID PRIMARY KEY,
		collection  TEXT NOT NULL,
		terms       JSONB NOT NULL,
		idf         JSONB NOT NULL,
		doc_count   INTEGER NOT NULL,
		checksum    TEXT NOT NULL,
		is_current  BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS vocabularies_one_current ON vocabularies (is_current) WHERE is_current`,
}

type Repository struct {
	client *postgres.Client
}

// New returns a repository over client after applying Schema.
func New(ctx context.Context, client *postgres.Client) (*Repository, error) {
	if err := client.Migrate(ctx, Schema...); err != nil {
		return nil, fmt.Errorf("migrating vocabulary schema: %w", err)
	}
	return &Repository{client: client}, nil
}

func (r *Repository) Save(ctx context.Context, v *vocabulary.Vocabulary) error {
	terms, err := json.Marshal(v.Terms)
	if err != nil {
		return fmt.Errorf("encoding terms: %w", err)
	}
	idf, err := json.Marshal(v.IDF)
	if err != nil {
		return fmt.Errorf("encoding idf: %w", err)
	}
	return r.client.InTx(ctx, func(tx *sql.Tx) error {
		// keep the outgoing current row as the previous version
		if _, err := tx.ExecContext(ctx, `DELETE FROM vocabularies WHERE NOT is_current`); err != nil {
			return fmt.Errorf("pruning vocabularies: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE vocabularies SET is_current = FALSE WHERE is_current`); err != nil {
			return fmt.Errorf("clearing current vocabulary: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO vocabularies (version, collection, terms, idf, doc_count, checksum, is_current, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)`,
			v.Version, v.Collection, terms, idf, v.DocCount, v.Checksum, v.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting vocabulary %s: %w", v.Version, err)
		}
		return nil
	})
}

func (r *Repository) Current(ctx context.Context) (*vocabulary.Vocabulary, error) {
	var (
		version, collection, checksum string
		termsRaw, idfRaw              []byte
		docCount                      int
		createdAt                     time.Time
	)
	err := r.client.DB.QueryRowContext(ctx,
		`SELECT version, collection, terms, idf, doc_count, checksum, created_at
		FROM vocabularies WHERE is_current`,
	).Scan(&version, &collection, &termsRaw, &idfRaw, &docCount, &checksum, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no vocabulary persisted: %w", apperrors.ErrNotInitialized)
	}
	if err != nil {
		return nil, fmt.Errorf("querying current vocabulary: %w", err)
	}
	var terms []string
	if err := json.Unmarshal(termsRaw, &terms); err != nil {
		return nil, fmt.Errorf("decoding terms of %s: %w", version, err)
	}
	var idf map[string]float64
	if err := json.Unmarshal(idfRaw, &idf); err != nil {
		return nil, fmt.Errorf("decoding idf of %s: %w", version, err)
	}
	return vocabstore.Assemble(version, terms, idf, docCount, collection, checksum, createdAt.UTC())
}

// Close is a no-op; the shared client is closed by its owner.
func (r *Repository) Close() error {
	return nil
}

var _ vocabstore.Repository = (*Repository)(nil)
