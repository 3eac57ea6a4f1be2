// Package main provides the ingestion worker: it consumes ingestion events
// and runs the document pipeline against the vector store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/docuchat/docuchat/internal/blob"
	"github.com/docuchat/docuchat/internal/chunk"
	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/docstore"
	"github.com/docuchat/docuchat/internal/embed"
	"github.com/docuchat/docuchat/internal/ingest"
	"github.com/docuchat/docuchat/internal/logging"
	"github.com/docuchat/docuchat/internal/metrics"
	"github.com/docuchat/docuchat/internal/vectorstore"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "docuchat-worker",
	Short: "Document ingestion worker",
	Long: `Consumes document ingestion events and turns uploads, scraped pages, and
Q&A pairs into queryable vectors.

Environment variables:
  QDRANT_HOST        Qdrant hostname (default: localhost)
  QDRANT_PORT        Qdrant gRPC port (default: 6334)
  EMBEDDING_URL      Embedding provider endpoint (required)
  EMBEDDING_API_KEY  Embedding provider API key (required)
  DC_KAFKA_BROKERS   Kafka broker address`,
	RunE: runWorker,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
}

func main() {
	// Load .env if present (local development), ignore if missing.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger := slog.Default()

	docs, err := docstore.New(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer docs.Close()

	blobs, err := blob.NewFilesystem(cfg.Blob.RootDir)
	if err != nil {
		return err
	}

	vectors, err := vectorstore.New(cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.Dimension, logger)
	if err != nil {
		return fmt.Errorf("connecting to qdrant: %w", err)
	}
	defer vectors.Close()

	embedder, err := embed.NewClient(cfg.Embedding.URL, cfg.Embedding.APIKey, cfg.Qdrant.Dimension, cfg.Embedding.Timeout)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			logger.Info("metrics server listening", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	chunker := chunk.New(cfg.Ingest.MaxChunkSize, cfg.Ingest.OverlapSize)
	pipeline := ingest.New(chunker, embedder, vectors, docs, blobs, m, logger)
	runner := ingest.NewRunner(pipeline, cfg.Kafka)

	logger.Info("ingestion worker starting", "brokers", cfg.Kafka.Brokers)
	return runner.Start(ctx)
}
