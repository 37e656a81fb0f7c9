// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, VectorStore, Vocabulary,
// Ingestion, Search, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	VectorStore VectorStoreConfig `yaml:"vectorStore"`
	Vocabulary  VocabularyConfig  `yaml:"vocabulary"`
	Ingestion   IngestionConfig   `yaml:"ingestion"`
	Search      SearchConfig      `yaml:"search"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	CatalogPort     int           `yaml:"catalogPort"`
	IndexerPort     int           `yaml:"indexerPort"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	CorpusChanged string `yaml:"corpusChanged"`
	IndexBuilt    string `yaml:"indexBuilt"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	Type             string        `yaml:"type"`
	CollectionPrefix string        `yaml:"collectionPrefix"`
	SQLite           SQLiteConfig  `yaml:"sqlite"`
	Qdrant           QdrantConfig  `yaml:"qdrant"`
	Breaker          BreakerConfig `yaml:"breaker"`
}

// SQLiteConfig locates the embedded vector database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains connection details for a Qdrant server.
type QdrantConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"apiKey"`
	Timeout time.Duration `yaml:"timeout"`
}

// BreakerConfig controls the circuit breaker guarding remote store calls.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// VocabularyConfig selects where frozen vocabulary snapshots are persisted.
type VocabularyConfig struct {
	Store    string `yaml:"store"`
	BoltPath string `yaml:"boltPath"`
}

// IngestionConfig controls batching, retry and abort policy of an index build.
type IngestionConfig struct {
	BatchSize              int           `yaml:"batchSize"`
	MaxAttempts            int           `yaml:"maxAttempts"`
	RetryDelay             time.Duration `yaml:"retryDelay"`
	MaxConsecutiveFailures int           `yaml:"maxConsecutiveFailures"`
	FlushEvery             int           `yaml:"flushEvery"`
	ConnectAttempts        int           `yaml:"connectAttempts"`
}

// SearchConfig controls query execution limits and timeouts.
type SearchConfig struct {
	DefaultLimit    int           `yaml:"defaultLimit"`
	MaxResults      int           `yaml:"maxResults"`
	Timeout         time.Duration `yaml:"timeout"`
	Mode            string        `yaml:"mode"`
	SparseThreshold float64       `yaml:"sparseThreshold"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.VectorStore.Type {
	case "memory", "sqlite", "qdrant":
	default:
		return fmt.Errorf("unknown vector store type %q", c.VectorStore.Type)
	}
	switch c.Vocabulary.Store {
	case "postgres", "bolt":
	default:
		return fmt.Errorf("unknown vocabulary store %q", c.Vocabulary.Store)
	}
	switch c.Search.Mode {
	case "auto", "native", "fallback":
	default:
		return fmt.Errorf("unknown search mode %q", c.Search.Mode)
	}
	if c.Ingestion.BatchSize < 1 {
		return fmt.Errorf("ingestion.batchSize must be at least 1, got %d", c.Ingestion.BatchSize)
	}
	if c.Ingestion.MaxAttempts < 1 {
		return fmt.Errorf("ingestion.maxAttempts must be at least 1, got %d", c.Ingestion.MaxAttempts)
	}
	if c.Ingestion.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("ingestion.maxConsecutiveFailures must not be negative")
	}
	if c.Ingestion.RetryDelay < 0 {
		return fmt.Errorf("ingestion.retryDelay must not be negative")
	}
	if c.Search.SparseThreshold < 0 {
		return fmt.Errorf("search.sparseThreshold must not be negative")
	}
	return nil
}

// defaultConfig returns a Config with local development defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			CatalogPort:     8001,
			IndexerPort:     8002,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "movies",
			User:            "postgres",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       true,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "tfidf-indexer",
			Topics: KafkaTopics{
				CorpusChanged: "corpus-changed",
				IndexBuilt:    "index-built",
			},
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		VectorStore: VectorStoreConfig{
			Type:             "sqlite",
			CollectionPrefix: "movie_vectors",
			SQLite:           SQLiteConfig{Path: "data/vector_db.sqlite"},
			Qdrant: QdrantConfig{
				URL:     "http://localhost:6333",
				Timeout: 15 * time.Second,
			},
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
			},
		},
		Vocabulary: VocabularyConfig{
			Store:    "postgres",
			BoltPath: "data/vocabulary.db",
		},
		Ingestion: IngestionConfig{
			BatchSize:              20,
			MaxAttempts:            3,
			RetryDelay:             5 * time.Second,
			MaxConsecutiveFailures: 5,
			FlushEvery:             10,
			ConnectAttempts:        3,
		},
		Search: SearchConfig{
			DefaultLimit:    5,
			MaxResults:      100,
			Timeout:         10 * time.Second,
			Mode:            "auto",
			SparseThreshold: 1e-8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads VS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VS_CATALOG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.CatalogPort = port
		}
	}
	if v := os.Getenv("VS_INDEXER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.IndexerPort = port
		}
	}
	if v := os.Getenv("VS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("VS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("VS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("VS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("VS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("VS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("VS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("VS_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("VS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("VS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("VS_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("VS_VECTOR_STORE_TYPE"); v != "" {
		cfg.VectorStore.Type = v
	}
	if v := os.Getenv("VS_SQLITE_PATH"); v != "" {
		cfg.VectorStore.SQLite.Path = v
	}
	if v := os.Getenv("VS_QDRANT_URL"); v != "" {
		cfg.VectorStore.Qdrant.URL = v
	}
	if v := os.Getenv("VS_QDRANT_API_KEY"); v != "" {
		cfg.VectorStore.Qdrant.APIKey = v
	}
	if v := os.Getenv("VS_VOCABULARY_STORE"); v != "" {
		cfg.Vocabulary.Store = v
	}
	if v := os.Getenv("VS_VOCABULARY_BOLT_PATH"); v != "" {
		cfg.Vocabulary.BoltPath = v
	}
	if v := os.Getenv("VS_INGESTION_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingestion.BatchSize = n
		}
	}
	if v := os.Getenv("VS_INGESTION_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ingestion.RetryDelay = d
		}
	}
	if v := os.Getenv("VS_SEARCH_MODE"); v != "" {
		cfg.Search.Mode = v
	}
	if v := os.Getenv("VS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
