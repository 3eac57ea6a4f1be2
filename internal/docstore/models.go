package docstore

import "time"

// Status is the durable ingestion state of a document. The job runner owns
// transitions; ready and error are terminal.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusExtracting  Status = "extracting"
	StatusChunking    Status = "chunking"
	StatusEmbedding   Status = "embedding"
	StatusUpserting   Status = "upserting"
	StatusReady       Status = "ready"
	StatusError       Status = "error"
)

// SourceKind identifies where a document's content came from.
type SourceKind string

const (
	SourceFile SourceKind = "file"
	SourceURL  SourceKind = "url"
	SourceQA   SourceKind = "qa-pair"
)

// Document is one ingested unit owned by a tenant. Only the ingestion
// pipeline mutates status and namespace.
type Document struct {
	ID          string
	TenantID    string
	Name        string
	SourceKind  SourceKind
	Size        int64
	Status      Status
	StoragePath string
	RawContent  string
	Namespace   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Agent is a configured chat persona scoped to one tenant.
type Agent struct {
	ID          string
	TenantID    string
	Name        string
	Description string
	Personality string
	Namespace   string
	DocumentIDs []string
	CreatedAt   time.Time
}
