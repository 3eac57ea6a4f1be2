// Package main provides the chat API server entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/docuchat/docuchat/internal/blob"
	"github.com/docuchat/docuchat/internal/compose"
	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/docstore"
	"github.com/docuchat/docuchat/internal/embed"
	"github.com/docuchat/docuchat/internal/events"
	"github.com/docuchat/docuchat/internal/logging"
	"github.com/docuchat/docuchat/internal/metrics"
	"github.com/docuchat/docuchat/internal/retrieval"
	"github.com/docuchat/docuchat/internal/server"
	"github.com/docuchat/docuchat/internal/session"
	"github.com/docuchat/docuchat/internal/vectorstore"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "docuchat-server",
	Short: "Chat API server",
	Long: `Serves the chat API: questions are answered only from the asking tenant's
ingested documents.

Environment variables:
  QDRANT_HOST        Qdrant hostname (default: localhost)
  QDRANT_PORT        Qdrant gRPC port (default: 6334)
  EMBEDDING_URL      Embedding provider endpoint (required)
  EMBEDDING_API_KEY  Embedding provider API key (required)
  OPENAI_API_KEY     Generative model API key (required)`,
	RunE: runServer,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
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

	vectors, err := vectorstore.New(cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.Dimension, logger)
	if err != nil {
		return fmt.Errorf("connecting to qdrant: %w", err)
	}
	defer vectors.Close()

	embedder, err := embed.NewClient(cfg.Embedding.URL, cfg.Embedding.APIKey, cfg.Qdrant.Dimension, cfg.Embedding.Timeout)
	if err != nil {
		return err
	}

	composer, err := compose.NewComposer(cfg.Generator.Model)
	if err != nil {
		return err
	}

	sessions, err := session.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer sessions.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	blobs, err := blob.NewFilesystem(cfg.Blob.RootDir)
	if err != nil {
		return fmt.Errorf("preparing blob storage: %w", err)
	}

	var producers []*events.Producer
	producerFor := func(topic string) *events.Producer {
		p := events.NewProducer(cfg.Kafka, topic)
		producers = append(producers, p)
		return p
	}
	defer func() {
		for _, p := range producers {
			_ = p.Close()
		}
	}()
	publish := server.Publishers{
		Files:   producerFor(cfg.Kafka.Topics.DocumentFile),
		URLs:    producerFor(cfg.Kafka.Topics.DocumentURL),
		QAs:     producerFor(cfg.Kafka.Topics.DocumentQA),
		Deletes: producerFor(cfg.Kafka.Topics.DocumentDelete),
		Trains:  producerFor(cfg.Kafka.Topics.AgentTrain),
	}

	engine := retrieval.New(embedder, vectors, cfg.Retrieval.TopK, m, logger)
	chat := server.NewChatService(engine, composer, docs, sessions, m, logger)
	handler := server.NewHandler(chat, docs)
	intake := server.NewDocumentHandler(docs, blobs, publish)
	mux := server.NewMux(handler, intake, cfg.Metrics.Enabled)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("chat server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
