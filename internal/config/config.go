// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Server, Postgres, Kafka, Redis, Qdrant, Embedding, ...).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Generator GeneratorConfig `yaml:"generator"`
	Blob      BlobConfig      `yaml:"blob"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP chat API server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the document and
// agent record store.
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

// KafkaConfig holds broker and topic settings for ingestion events.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical event kinds to their Kafka topic strings.
type KafkaTopics struct {
	DocumentFile   string `yaml:"documentFile"`
	DocumentURL    string `yaml:"documentUrl"`
	DocumentQA     string `yaml:"documentQa"`
	DocumentDelete string `yaml:"documentDelete"`
	AgentTrain     string `yaml:"agentTrain"`
	Failed         string `yaml:"failed"`
}

// RedisConfig holds Redis connection parameters for the chat session store.
type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	PoolSize   int           `yaml:"poolSize"`
	SessionTTL time.Duration `yaml:"sessionTTL"`
}

// QdrantConfig holds the vector store connection and index parameters.
type QdrantConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Dimension int    `yaml:"dimension"`
}

// EmbeddingConfig holds the embedding provider endpoint and credentials.
type EmbeddingConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"apiKey"`
	Timeout time.Duration `yaml:"timeout"`
}

// GeneratorConfig holds the generative model settings. The API key is read
// from OPENAI_API_KEY by the client library.
type GeneratorConfig struct {
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// BlobConfig holds blob storage settings for uploaded files.
type BlobConfig struct {
	RootDir string `yaml:"rootDir"`
}

// IngestConfig controls chunking and upload behaviour of the ingestion
// pipeline.
type IngestConfig struct {
	MaxChunkSize int `yaml:"maxChunkSize"`
	OverlapSize  int `yaml:"overlapSize"`
}

// RetrievalConfig controls chat-time retrieval.
type RetrievalConfig struct {
	TopK int `yaml:"topK"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
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
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "docuchat",
			User:            "docuchat",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "docuchat-ingest",
			Topics: KafkaTopics{
				DocumentFile:   "document.file",
				DocumentURL:    "document.url",
				DocumentQA:     "document.qa",
				DocumentDelete: "document.delete",
				AgentTrain:     "agent.train",
				Failed:         "ingestion.failed",
			},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   10,
			SessionTTL: 24 * time.Hour,
		},
		Qdrant: QdrantConfig{
			Host:      "localhost",
			Port:      6334,
			Dimension: 384,
		},
		Embedding: EmbeddingConfig{
			Timeout: 30 * time.Second,
		},
		Generator: GeneratorConfig{
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Blob: BlobConfig{
			RootDir: "./data/uploads",
		},
		Ingest: IngestConfig{
			MaxChunkSize: 1000,
			OverlapSize:  200,
		},
		Retrieval: RetrievalConfig{
			TopK: 40,
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

// applyEnvOverrides reads DC_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DC_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DC_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DC_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = []string{v}
	}
	if v := os.Getenv("DC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("QDRANT_HOST"); v != "" {
		cfg.Qdrant.Host = v
	}
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Qdrant.Port = port
		}
	}
	if v := os.Getenv("EMBEDDING_URL"); v != "" {
		cfg.Embedding.URL = v
	}
	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("DC_BLOB_ROOT"); v != "" {
		cfg.Blob.RootDir = v
	}
	if v := os.Getenv("DC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// validate fails fast on configuration the pipeline cannot run without,
// before any network call is made.
func (c *Config) validate() error {
	if c.Qdrant.Dimension <= 0 {
		return fmt.Errorf("config: qdrant dimension must be positive, got %d", c.Qdrant.Dimension)
	}
	if c.Ingest.MaxChunkSize <= 0 {
		return fmt.Errorf("config: maxChunkSize must be positive, got %d", c.Ingest.MaxChunkSize)
	}
	return nil
}
