// Package bolt keeps vocabulary snapshots in a local BoltDB file, for
// single-node deployments without PostgreSQL.
package bolt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vocabstore"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/errors"
	"github.com/boltdb/bolt"
)

var (
	snapshotsBucket = []byte("vocabularies")
	metaBucket      = []byte("meta")
	currentKey      = []byte("current")
)

type Repository struct {
	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating vocabulary directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening vocabulary db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(snapshotsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vocabulary buckets: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Save(_ context.Context, v *vocabulary.Vocabulary) error {
	data, err := vocabstore.Encode(v)
	if err != nil {
		return fmt.Errorf("encoding vocabulary %s: %w", v.Version, err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		snapshots, meta := tx.Bucket(snapshotsBucket), tx.Bucket(metaBucket)
		previous := append([]byte(nil), meta.Get(currentKey)...)
		if err := snapshots.Put([]byte(v.Version), data); err != nil {
			return fmt.Errorf("writing vocabulary %s: %w", v.Version, err)
		}
		if err := meta.Put(currentKey, []byte(v.Version)); err != nil {
			return err
		}
		return prune(snapshots, v.Version, string(previous))
	})
}

// prune deletes every snapshot except the current and previous versions.
func prune(snapshots *bolt.Bucket, keep ...string) error {
	var stale [][]byte
	err := snapshots.ForEach(func(k, _ []byte) error {
		if !slices.Contains(keep, string(k)) {
			stale = append(stale, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range stale {
		if err := snapshots.Delete(k); err != nil {
			return fmt.Errorf("pruning vocabulary %s: %w", k, err)
		}
	}
	return nil
}

func (r *Repository) Current(_ context.Context) (*vocabulary.Vocabulary, error) {
	var v *vocabulary.Vocabulary
	err := r.db.View(func(tx *bolt.Tx) error {
		version := tx.Bucket(metaBucket).Get(currentKey)
		if version == nil {
			return fmt.Errorf("no vocabulary persisted: %w", apperrors.ErrNotInitialized)
		}
		data := tx.Bucket(snapshotsBucket).Get(version)
		if data == nil {
			return fmt.Errorf("current vocabulary %s missing: %w", version, apperrors.ErrNotInitialized)
		}
		var err error
		v, err = vocabstore.Decode(data)
		return err
	})
	return v, err
}

// Versions lists the stored snapshot versions: the current one and the one
// it replaced.
func (r *Repository) Versions() ([]string, error) {
	var out []string
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotsBucket).ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

func (r *Repository) Close() error {
	return r.db.Close()
}

var _ vocabstore.Repository = (*Repository)(nil)
