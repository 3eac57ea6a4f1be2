package vectorstore

import (
	"fmt"

	"github.com/google/uuid"
)

// MetadataTextLimit is the ceiling applied to chunk text stored in vector
// payload. The full original length is preserved alongside it.
const MetadataTextLimit = 500

// Record is the unit stored in the vector store: one embedded chunk.
type Record struct {
	DocumentID     string
	ChunkID        int
	Vector         []float32
	Text           string
	OriginalLength int
	Extra          map[string]string
}

// CompositeID returns the content-addressed id {documentId}_{chunkId}.
// Re-ingesting a document overwrites its own vectors without colliding with
// others.
func (r Record) CompositeID() string {
	return fmt.Sprintf("%s_%d", r.DocumentID, r.ChunkID)
}

// PointUUID maps the composite id onto a deterministic UUID, since Qdrant
// point ids must be UUIDs or integers. The composite id itself is kept in
// payload.
func (r Record) PointUUID() string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(r.CompositeID())).String()
}

// Match is one ranked result of a similarity query.
type Match struct {
	CompositeID string
	DocumentID  string
	ChunkID     int
	Text        string
	Score       float32
}
