// Package vectorstore is a namespace-partitioned store of embedded chunks
// backed by Qdrant. Each namespace maps to one Qdrant collection; queries and
// deletes are always namespace-scoped.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

const (
	// UpsertBatchSize is the number of records uploaded per upsert call.
	UpsertBatchSize = 50

	// MaxUpsertRetries bounds retries of one batch on transient failure,
	// after the initial attempt.
	MaxUpsertRetries = 3

	// interBatchDelay keeps sequential batch uploads under provider rate
	// limits.
	interBatchDelay = 200 * time.Millisecond

	retryBaseDelay = 1 * time.Second
)

// Store wraps the Qdrant client with namespace management and batched,
// retried uploads.
type Store struct {
	client    qdrantClient
	dimension int
	logger    *slog.Logger
	// sleep is replaceable in tests.
	sleep func(time.Duration)
}

// qdrantClient is the slice of the Qdrant API the store uses.
type qdrantClient interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error)
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	ScrollAndOffset(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Close() error
}

// New connects to Qdrant and verifies health with exponential backoff,
// failing fast if the store is unreachable.
func New(host string, port int, dimension int, logger *slog.Logger) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		client:    client,
		dimension: dimension,
		logger:    logger.With("component", "vectorstore"),
		sleep:     time.Sleep,
	}

	if err := s.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return s, nil
}

func (s *Store) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (s *Store) Health(ctx context.Context) error {
	reply, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if reply == nil || reply.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// Close closes the underlying Qdrant connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// EnsureNamespace makes sure the collection backing a namespace exists.
// Idempotent. If the collection already exists with a different vector
// dimension, the store logs a warning and keeps operating against the
// existing dimension instead of failing.
func (s *Store) EnsureNamespace(ctx context.Context, namespace string) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}
	for _, name := range collections {
		if name != namespace {
			continue
		}
		info, err := s.client.GetCollectionInfo(ctx, namespace)
		if err != nil {
			return fmt.Errorf("inspecting collection %s: %w", namespace, err)
		}
		if existing := collectionDimension(info); existing > 0 && existing != uint64(s.dimension) {
			s.logger.Warn("namespace exists with different vector dimension, continuing",
				"namespace", namespace,
				"existing", existing,
				"configured", s.dimension,
			)
		}
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: namespace,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", namespace, err)
	}
	s.logger.Info("namespace created", "namespace", namespace, "dimension", s.dimension)
	return nil
}

func collectionDimension(info *qdrant.CollectionInfo) uint64 {
	if info == nil {
		return 0
	}
	cfg := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if cfg == nil {
		return 0
	}
	return cfg.GetSize()
}

// UpsertBatch uploads records in fixed-size batches. Each batch is
// all-or-nothing: transient failures are retried up to MaxUpsertRetries
// times with exponential backoff, non-transient failures abort the whole
// upload.
// A short delay separates successfully-uploaded batches.
func (s *Store) UpsertBatch(ctx context.Context, namespace string, records []Record) error {
	for start := 0; start < len(records); start += UpsertBatchSize {
		end := min(start+UpsertBatchSize, len(records))
		batch := records[start:end]

		points := make([]*qdrant.PointStruct, len(batch))
		for i, record := range batch {
			points[i] = recordToPoint(record)
		}

		err := withRetry(ctx, func() error {
			_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: namespace,
				Points:         points,
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("upserting batch %d-%d into %s: %w", start, end, namespace, err)
		}
		s.logger.Debug("batch upserted", "namespace", namespace, "from", start, "to", end)

		if end < len(records) {
			s.sleep(interBatchDelay)
		}
	}
	return nil
}

// withRetry runs op with bounded exponential backoff, retrying only
// transient failures. MaxUpsertRetries retries after the initial attempt,
// delays doubling from retryBaseDelay.
func withRetry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryBaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(b, MaxUpsertRetries), ctx))
}

func recordToPoint(record Record) *qdrant.PointStruct {
	text := truncateText(record.Text, MetadataTextLimit)
	payload := map[string]any{
		"compositeId":    record.CompositeID(),
		"documentId":     record.DocumentID,
		"chunkId":        int64(record.ChunkID),
		"text":           text,
		"originalLength": int64(record.OriginalLength),
	}
	for k, v := range record.Extra {
		payload[k] = v
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(record.PointUUID()),
		Vectors: qdrant.NewVectors(record.Vector...),
		Payload: qdrant.NewValueMap(payload),
	}
}

// truncateText caps payload text at limit bytes without splitting a UTF-8
// rune; Qdrant rejects invalid UTF-8 in payload strings.
func truncateText(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}

// Query performs a similarity search in one namespace and returns ranked
// matches with metadata. filter, when non-nil, is applied as exact-match
// conditions on payload fields.
func (s *Store) Query(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]string) ([]Match, error) {
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}

	var qf *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for field, value := range filter {
			must = append(must, qdrant.NewMatch(field, value))
		}
		qf = &qdrant.Filter{Must: must}
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: namespace,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qf,
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", namespace, err)
	}

	matches := make([]Match, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		matches = append(matches, Match{
			CompositeID: payload["compositeId"].GetStringValue(),
			DocumentID:  payload["documentId"].GetStringValue(),
			ChunkID:     int(payload["chunkId"].GetIntegerValue()),
			Text:        payload["text"].GetStringValue(),
			Score:       result.Score,
		})
	}
	return matches, nil
}

// ListByDocument returns every record stored for one document using Qdrant's
// filtered Scroll, paging until exhaustion.
func (s *Store) ListByDocument(ctx context.Context, namespace, documentID string) ([]Record, error) {
	var records []Record
	var offset *qdrant.PointId
	pageSize := uint32(100)

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("documentId", documentID)},
	}

	for {
		results, next, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: namespace,
			Filter:         filter,
			Limit:          qdrant.PtrOf(pageSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return nil, fmt.Errorf("scrolling %s for document %s: %w", namespace, documentID, err)
		}

		for _, point := range results {
			payload := point.Payload
			record := Record{
				DocumentID:     payload["documentId"].GetStringValue(),
				ChunkID:        int(payload["chunkId"].GetIntegerValue()),
				Text:           payload["text"].GetStringValue(),
				OriginalLength: int(payload["originalLength"].GetIntegerValue()),
			}
			if vectors := point.Vectors.GetVector(); vectors != nil {
				record.Vector = vectors.GetData()
			}
			records = append(records, record)
		}

		if next == nil {
			break
		}
		offset = next
	}
	return records, nil
}

// DeleteByDocument removes every vector belonging to one document from a
// namespace (cascade for document deletion).
func (s *Store) DeleteByDocument(ctx context.Context, namespace, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: namespace,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("documentId", documentID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("deleting vectors for document %s in %s: %w", documentID, namespace, err)
	}
	return nil
}

// TenantNamespace derives the vector namespace for a tenant.
func TenantNamespace(tenantID string) string {
	return "tenant_" + tenantID
}

// AgentNamespace derives the per-agent namespace used by trained chat agents.
func AgentNamespace(tenantID, agentID string) string {
	return "agent_" + tenantID + "_" + agentID
}
