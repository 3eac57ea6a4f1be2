package ingest

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/events"
	"github.com/docuchat/docuchat/internal/logging"
)

// Runner subscribes the pipeline to the ingestion event topics. Each event
// kind has its own consumer; failures are reported on the failed topic and
// the offset is still committed, since the document already carries the
// terminal error status.
type Runner struct {
	pipeline *Pipeline
	cfg      config.KafkaConfig
	failed   *events.Producer
	logger   *slog.Logger
}

// NewRunner creates a Runner publishing failure events to the configured
// failed topic.
func NewRunner(pipeline *Pipeline, cfg config.KafkaConfig) *Runner {
	return &Runner{
		pipeline: pipeline,
		cfg:      cfg,
		failed:   events.NewProducer(cfg, cfg.Topics.Failed),
		logger:   logging.WithComponent("ingest-runner"),
	}
}

// Start runs all consumers until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	consumers := []*events.Consumer{
		events.NewConsumer(r.cfg, r.cfg.Topics.DocumentFile, r.handleFile),
		events.NewConsumer(r.cfg, r.cfg.Topics.DocumentURL, r.handleURL),
		events.NewConsumer(r.cfg, r.cfg.Topics.DocumentQA, r.handleQA),
		events.NewConsumer(r.cfg, r.cfg.Topics.DocumentDelete, r.handleDelete),
		events.NewConsumer(r.cfg, r.cfg.Topics.AgentTrain, r.handleTrain),
	}
	for _, c := range consumers {
		g.Go(func() error { return c.Start(ctx) })
	}
	err := g.Wait()
	if closeErr := r.failed.Close(); closeErr != nil {
		r.logger.Error("failed to close producer", "error", closeErr)
	}
	return err
}

func (r *Runner) handleFile(ctx context.Context, _ []byte, value []byte) error {
	event, err := events.Decode[events.FileUpload](value)
	if err != nil {
		return err
	}
	_, err = r.pipeline.IngestFile(ctx, event.DocumentID, event.TenantID, event.StoragePath, event.Filename)
	if err != nil {
		r.reportFailure(ctx, events.KindDocumentFile, event.DocumentID, "", event.TenantID, err)
	}
	return nil
}

func (r *Runner) handleURL(ctx context.Context, _ []byte, value []byte) error {
	event, err := events.Decode[events.URLScrape](value)
	if err != nil {
		return err
	}
	_, err = r.pipeline.IngestContent(ctx, event.DocumentID, event.TenantID, event.Content)
	if err != nil {
		r.reportFailure(ctx, events.KindDocumentURL, event.DocumentID, "", event.TenantID, err)
	}
	return nil
}

func (r *Runner) handleQA(ctx context.Context, _ []byte, value []byte) error {
	event, err := events.Decode[events.QAPair](value)
	if err != nil {
		return err
	}
	_, err = r.pipeline.IngestQA(ctx, event.DocumentID, event.TenantID, event.Question, event.Answer)
	if err != nil {
		r.reportFailure(ctx, events.KindDocumentQA, event.DocumentID, "", event.TenantID, err)
	}
	return nil
}

func (r *Runner) handleDelete(ctx context.Context, _ []byte, value []byte) error {
	event, err := events.Decode[events.DocumentDelete](value)
	if err != nil {
		return err
	}
	if err := r.pipeline.DeleteDocument(ctx, event.DocumentID); err != nil {
		r.reportFailure(ctx, events.KindDocumentDelete, event.DocumentID, "", event.TenantID, err)
	}
	return nil
}

func (r *Runner) handleTrain(ctx context.Context, _ []byte, value []byte) error {
	event, err := events.Decode[events.AgentTrain](value)
	if err != nil {
		return err
	}
	_, _, err = r.pipeline.TrainAgent(ctx, event.AgentID, event.TenantID, event.DocumentIDs)
	if err != nil {
		r.reportFailure(ctx, events.KindAgentTrain, "", event.AgentID, event.TenantID, err)
	}
	return nil
}

func (r *Runner) reportFailure(ctx context.Context, kind events.Kind, documentID, agentID, tenantID string, cause error) {
	key := documentID
	if key == "" {
		key = agentID
	}
	failure := events.Failed{
		Kind:       kind,
		DocumentID: documentID,
		AgentID:    agentID,
		TenantID:   tenantID,
		Reason:     cause.Error(),
		FailedAt:   time.Now().UTC(),
	}
	if err := r.failed.Publish(ctx, key, failure); err != nil {
		r.logger.Error("failed to publish failure event", "kind", kind, "key", key, "error", err)
	}
}
