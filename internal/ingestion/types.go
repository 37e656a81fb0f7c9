// Package ingestion runs an index build: it freezes a vocabulary from the
// corpus, writes TF-IDF vectors to the vector store in batches with retry,
// flush checkpoints and an abort ceiling, and persists the vocabulary only
// when the run completes. It also defines the Kafka event schemas announcing
// corpus changes and finished builds.
package ingestion

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/tracing"
)

// State is a phase of an ingestion run.
type State string

const (
	StateIdle      State = "idle"
	StateBuilding  State = "building"
	StateBatching  State = "batching"
	StateInserting State = "inserting"
	StateRetrying  State = "retrying"
	StateFlushing  State = "flushing"
	StateDone      State = "done"
	StateAborted   State = "aborted"
)

// Config is the batching, retry and abort policy of a run.
type Config struct {
	BatchSize   int
	MaxAttempts int
	Backoff     resilience.Backoff
	// MaxConsecutiveFailures is the number of back-to-back failed batches
	// tolerated; one more aborts the run.
	MaxConsecutiveFailures int
	// FlushEvery checkpoints the store after this many successful batches.
	// Zero disables periodic flushes; the final flush always runs.
	FlushEvery       int
	CollectionPrefix string
}

// ConfigFrom maps the service configuration onto a run policy with a fixed
// delay between insert attempts.
func ConfigFrom(cfg config.IngestionConfig, collectionPrefix string) Config {
	return Config{
		BatchSize:              cfg.BatchSize,
		MaxAttempts:            cfg.MaxAttempts,
		Backoff:                resilience.Fixed(cfg.RetryDelay),
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		FlushEvery:             cfg.FlushEvery,
		CollectionPrefix:       collectionPrefix,
	}
}

// BatchResult describes one attempted batch. ConsecutiveFailures is the
// run's failure counter after the batch.
type BatchResult struct {
	Index               int    `json:"index"`
	Start               int    `json:"start"`
	Size                int    `json:"size"`
	Attempts            int    `json:"attempts"`
	Error               string `json:"error,omitempty"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

// Report summarises a run.
type Report struct {
	RunID               string           `json:"run_id"`
	State               State            `json:"state"`
	VocabularyVersion   string           `json:"vocabulary_version,omitempty"`
	Collection          string           `json:"collection,omitempty"`
	Documents           int              `json:"documents"`
	Dimension           int              `json:"dimension"`
	Batches             []BatchResult    `json:"batches"`
	Inserted            int              `json:"inserted"`
	Flushes             int              `json:"flushes"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	Persisted           bool             `json:"persisted"`
	Trace               []State          `json:"trace"`
	Phases              []tracing.Timing `json:"phases,omitempty"`
	StartedAt           time.Time        `json:"started_at"`
	FinishedAt          time.Time        `json:"finished_at"`
}

// FailedBatches returns the indexes of batches that exhausted their retries.
func (r *Report) FailedBatches() []int {
	var out []int
	for _, b := range r.Batches {
		if b.Error != "" {
			out = append(out, b.Index)
		}
	}
	return out
}

// CorpusChangedEvent is published by the catalog after every mutation of the
// movie records.
type CorpusChangedEvent struct {
	Operation string    `json:"operation"`
	MovieIDs  []int64   `json:"movie_ids,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// IndexBuiltEvent is published when a run finishes, successfully or not.
type IndexBuiltEvent struct {
	RunID             string    `json:"run_id"`
	State             State     `json:"state"`
	VocabularyVersion string    `json:"vocabulary_version,omitempty"`
	Collection        string    `json:"collection,omitempty"`
	Documents         int       `json:"documents"`
	Dimension         int       `json:"dimension"`
	FailedBatches     []int     `json:"failed_batches,omitempty"`
	FinishedAt        time.Time `json:"finished_at"`
}

// Event converts the report into its announcement.
func (r *Report) Event() IndexBuiltEvent {
	return IndexBuiltEvent{
		RunID:             r.RunID,
		State:             r.State,
		VocabularyVersion: r.VocabularyVersion,
		Collection:        r.Collection,
		Documents:         r.Documents,
		Dimension:         r.Dimension,
		FailedBatches:     r.FailedBatches(),
		FinishedAt:        r.FinishedAt,
	}
}
