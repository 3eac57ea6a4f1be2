package ingest

import "errors"

// ErrNoVectorsCreated means every chunk of a document failed embedding.
// Ingestion tolerates per-chunk failures, but a document with zero vectors
// is a failed job.
var ErrNoVectorsCreated = errors.New("no vectors created: all chunks failed embedding")

// ErrNoTrainingChunks is the operator-facing diagnostic for agent training
// that found nothing to aggregate.
var ErrNoTrainingChunks = errors.New(
	"no chunks found for training: check that the documents finished ingestion (status ready), " +
		"that their vectors were written to the tenant namespace, and that the vector search succeeded")
