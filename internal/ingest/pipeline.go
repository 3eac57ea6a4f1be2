// Package ingest orchestrates the document ingestion pipeline:
// download -> extract -> chunk -> embed -> upsert, persisting every status
// transition. Each step is idempotent with respect to re-execution on the
// same input, so the surrounding job runner may retry a job safely.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docuchat/docuchat/internal/blob"
	"github.com/docuchat/docuchat/internal/chunk"
	"github.com/docuchat/docuchat/internal/docstore"
	"github.com/docuchat/docuchat/internal/embed"
	"github.com/docuchat/docuchat/internal/extract"
	"github.com/docuchat/docuchat/internal/metrics"
	"github.com/docuchat/docuchat/internal/vectorstore"
)

// Step timeouts. Chunking and embedding share one window because embedding
// is chunk-by-chunk and only worth retrying at the job level.
const (
	downloadTimeout = 2 * time.Minute
	extractTimeout  = 3 * time.Minute
	embedTimeout    = 5 * time.Minute
)

// Embedder is the embedding provider slice the pipeline consumes.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the vector store slice the pipeline consumes.
type VectorStore interface {
	EnsureNamespace(ctx context.Context, namespace string) error
	UpsertBatch(ctx context.Context, namespace string, records []vectorstore.Record) error
	ListByDocument(ctx context.Context, namespace, documentID string) ([]vectorstore.Record, error)
	DeleteByDocument(ctx context.Context, namespace, documentID string) error
}

// DocumentStore is the record store slice the pipeline consumes.
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (*docstore.Document, error)
	UpdateStatus(ctx context.Context, id string, status docstore.Status) error
	MarkReady(ctx context.Context, id, namespace string) error
	DeleteDocument(ctx context.Context, id string) error
	GetAgent(ctx context.Context, id string) (*docstore.Agent, error)
	SetAgentNamespace(ctx context.Context, id, namespace string) error
}

// FailedChunk records one chunk that failed at the embedding stage.
type FailedChunk struct {
	ChunkID int
	Reason  string
}

// Result reports one ingestion run: vectors uploaded plus per-chunk
// embedding failures. Ingestion succeeds when at least one vector uploaded.
type Result struct {
	DocumentID   string
	Namespace    string
	Uploaded     int
	FailedChunks []FailedChunk
	Duration     time.Duration
}

// Pipeline runs ingestion jobs. One job per document id; jobs for different
// documents are independent.
type Pipeline struct {
	chunker  *chunk.Chunker
	embedder Embedder
	vectors  VectorStore
	docs     DocumentStore
	blobs    blob.Storage
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Pipeline. metrics may be nil.
func New(
	chunker *chunk.Chunker,
	embedder Embedder,
	vectors VectorStore,
	docs DocumentStore,
	blobs blob.Storage,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		chunker:  chunker,
		embedder: embedder,
		vectors:  vectors,
		docs:     docs,
		blobs:    blobs,
		metrics:  m,
		logger:   logger.With("component", "ingest"),
	}
}

// IngestFile runs the full pipeline for a file stored in blob storage.
func (p *Pipeline) IngestFile(ctx context.Context, documentID, tenantID, storagePath, filename string) (*Result, error) {
	start := time.Now()
	log := p.logger.With("document_id", documentID, "tenant_id", tenantID)

	format, err := extract.FormatFromFilename(filename)
	if err != nil {
		return nil, p.fail(ctx, documentID, "file", start, err)
	}

	// downloading
	if err := p.docs.UpdateStatus(ctx, documentID, docstore.StatusDownloading); err != nil {
		return nil, p.fail(ctx, documentID, "file", start, err)
	}
	raw, err := p.download(ctx, storagePath)
	if err != nil {
		return nil, p.fail(ctx, documentID, "file", start, err)
	}
	log.Debug("downloaded", "path", storagePath, "size", len(raw))

	// extracting
	if err := p.docs.UpdateStatus(ctx, documentID, docstore.StatusExtracting); err != nil {
		return nil, p.fail(ctx, documentID, "file", start, err)
	}
	text, err := p.extractStep(ctx, raw, format)
	if err != nil {
		return nil, p.fail(ctx, documentID, "file", start, err)
	}
	log.Debug("extracted", "format", format, "chars", len(text))

	result, err := p.embedAndUpsert(ctx, documentID, tenantID, p.chunker.Split(text), "file", start)
	if err != nil {
		return nil, err
	}
	log.Info("document ingested",
		"uploaded", result.Uploaded,
		"failed_chunks", len(result.FailedChunks),
		"duration", result.Duration,
	)
	return result, nil
}

// IngestContent runs the pipeline for already-in-memory content (scraped
// page text). It skips downloading and extracting but applies the same
// content validation before chunking.
func (p *Pipeline) IngestContent(ctx context.Context, documentID, tenantID, content string) (*Result, error) {
	start := time.Now()

	text, err := extract.Validate(content)
	if err != nil {
		return nil, p.fail(ctx, documentID, "url", start, err)
	}

	result, err := p.embedAndUpsert(ctx, documentID, tenantID, p.chunker.Split(text), "url", start)
	if err != nil {
		return nil, err
	}
	p.logger.Info("content ingested",
		"document_id", documentID,
		"uploaded", result.Uploaded,
		"failed_chunks", len(result.FailedChunks),
	)
	return result, nil
}

// IngestQA ingests one question/answer pair. Short pairs become a single
// tagged chunk.
func (p *Pipeline) IngestQA(ctx context.Context, documentID, tenantID, question, answer string) (*Result, error) {
	start := time.Now()

	if _, err := extract.Validate(question + " " + answer); err != nil {
		return nil, p.fail(ctx, documentID, "qa-pair", start, err)
	}

	result, err := p.embedAndUpsert(ctx, documentID, tenantID, p.chunker.SplitQA(question, answer), "qa-pair", start)
	if err != nil {
		return nil, err
	}
	p.logger.Info("qa pair ingested", "document_id", documentID, "uploaded", result.Uploaded)
	return result, nil
}

// TrainAgent aggregates the vectors of an agent's ready documents into the
// per-agent namespace, reusing a namespace from prior training when present.
func (p *Pipeline) TrainAgent(ctx context.Context, agentID, tenantID string, documentIDs []string) (string, int, error) {
	log := p.logger.With("agent_id", agentID, "tenant_id", tenantID)

	agent, err := p.docs.GetAgent(ctx, agentID)
	if err != nil {
		return "", 0, err
	}
	namespace := agent.Namespace
	if !strings.HasPrefix(namespace, "agent_") {
		namespace = vectorstore.AgentNamespace(tenantID, agentID)
	}

	tenantNS := vectorstore.TenantNamespace(tenantID)
	var aggregated []vectorstore.Record
	for _, docID := range documentIDs {
		doc, err := p.docs.GetDocument(ctx, docID)
		if err != nil {
			log.Warn("skipping unknown document", "document_id", docID, "error", err)
			continue
		}
		if doc.Status != docstore.StatusReady {
			log.Warn("skipping document that is not ready", "document_id", docID, "status", doc.Status)
			continue
		}
		records, err := p.vectors.ListByDocument(ctx, tenantNS, docID)
		if err != nil {
			return "", 0, fmt.Errorf("listing vectors for document %s: %w", docID, err)
		}
		aggregated = append(aggregated, records...)
	}

	if len(aggregated) == 0 {
		return "", 0, ErrNoTrainingChunks
	}

	if err := p.vectors.EnsureNamespace(ctx, namespace); err != nil {
		return "", 0, err
	}
	if err := p.vectors.UpsertBatch(ctx, namespace, aggregated); err != nil {
		return "", 0, err
	}
	if err := p.docs.SetAgentNamespace(ctx, agentID, namespace); err != nil {
		return "", 0, err
	}

	log.Info("agent trained", "namespace", namespace, "chunks", len(aggregated))
	return namespace, len(aggregated), nil
}

// DeleteDocument cascades a document deletion: vectors first, then the blob
// object, then the record.
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID string) error {
	doc, err := p.docs.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Namespace != "" {
		if err := p.vectors.DeleteByDocument(ctx, doc.Namespace, documentID); err != nil {
			return err
		}
	}
	if doc.StoragePath != "" {
		if err := p.blobs.Delete(doc.StoragePath); err != nil {
			return err
		}
	}
	if err := p.docs.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	p.logger.Info("document deleted", "document_id", documentID)
	return nil
}

func (p *Pipeline) download(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	type downloadResult struct {
		data []byte
		err  error
	}
	done := make(chan downloadResult, 1)
	go func() {
		data, err := p.blobs.Download(path)
		done <- downloadResult{data, err}
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("download timed out: %w", ctx.Err())
	case r := <-done:
		return r.data, r.err
	}
}

func (p *Pipeline) extractStep(ctx context.Context, raw []byte, format extract.Format) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	type extractResult struct {
		text string
		err  error
	}
	done := make(chan extractResult, 1)
	go func() {
		text, err := extract.Extract(raw, format)
		done <- extractResult{text, err}
	}()
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("extraction timed out: %w", ctx.Err())
	case r := <-done:
		return r.text, r.err
	}
}

// embedAndUpsert covers the chunking, embedding, upserting, and ready steps
// shared by every ingestion flavor. Chunks whose embedding fails are
// recorded and excluded; the job fails only when zero vectors result.
func (p *Pipeline) embedAndUpsert(ctx context.Context, documentID, tenantID string, chunks []chunk.Chunk, kind string, start time.Time) (*Result, error) {
	if err := p.docs.UpdateStatus(ctx, documentID, docstore.StatusChunking); err != nil {
		return nil, p.fail(ctx, documentID, kind, start, err)
	}
	if len(chunks) == 0 {
		return nil, p.fail(ctx, documentID, kind, start, extract.ErrEmptyContent)
	}

	if err := p.docs.UpdateStatus(ctx, documentID, docstore.StatusEmbedding); err != nil {
		return nil, p.fail(ctx, documentID, kind, start, err)
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	var records []vectorstore.Record
	var failed []FailedChunk
	for _, c := range chunks {
		vector, err := p.embedder.Embed(embedCtx, embed.Truncate(c.Text))
		if err != nil {
			failed = append(failed, FailedChunk{ChunkID: c.ID, Reason: err.Error()})
			p.logger.Warn("chunk embedding failed",
				"document_id", documentID, "chunk_id", c.ID, "error", err)
			if p.metrics != nil {
				p.metrics.ChunksFailedTotal.Inc()
			}
			continue
		}
		records = append(records, vectorstore.Record{
			DocumentID:     documentID,
			ChunkID:        c.ID,
			Vector:         vector,
			Text:           c.Text,
			OriginalLength: len(c.Text),
			Extra:          c.Metadata,
		})
		if p.metrics != nil {
			p.metrics.ChunksEmbeddedTotal.Inc()
		}
	}

	if len(records) == 0 {
		return nil, p.fail(ctx, documentID, kind, start, ErrNoVectorsCreated)
	}

	namespace := vectorstore.TenantNamespace(tenantID)
	if err := p.docs.UpdateStatus(ctx, documentID, docstore.StatusUpserting); err != nil {
		return nil, p.fail(ctx, documentID, kind, start, err)
	}
	if err := p.vectors.EnsureNamespace(ctx, namespace); err != nil {
		return nil, p.fail(ctx, documentID, kind, start, err)
	}
	if err := p.vectors.UpsertBatch(ctx, namespace, records); err != nil {
		return nil, p.fail(ctx, documentID, kind, start, err)
	}
	if p.metrics != nil {
		p.metrics.VectorsUpsertsTotal.Add(float64(len(records)))
	}

	if err := p.docs.MarkReady(ctx, documentID, namespace); err != nil {
		return nil, p.fail(ctx, documentID, kind, start, err)
	}

	duration := time.Since(start)
	if p.metrics != nil {
		p.metrics.IngestJobsTotal.WithLabelValues(kind, "ready").Inc()
		p.metrics.IngestJobDuration.WithLabelValues(kind).Observe(duration.Seconds())
	}
	return &Result{
		DocumentID:   documentID,
		Namespace:    namespace,
		Uploaded:     len(records),
		FailedChunks: failed,
		Duration:     duration,
	}, nil
}

// fail persists the terminal error status before propagating. No step after
// a fatal failure is applied.
func (p *Pipeline) fail(ctx context.Context, documentID, kind string, start time.Time, cause error) error {
	if err := p.docs.UpdateStatus(ctx, documentID, docstore.StatusError); err != nil &&
		!errors.Is(err, docstore.ErrDocumentNotFound) {
		p.logger.Error("failed to persist error status", "document_id", documentID, "error", err)
	}
	if p.metrics != nil {
		p.metrics.IngestJobsTotal.WithLabelValues(kind, "error").Inc()
		p.metrics.IngestJobDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
	return cause
}
