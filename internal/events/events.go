// Package events carries the typed ingestion events exchanged over Kafka.
// Delivery is at-least-once; correctness relies on step idempotency in the
// ingestion pipeline, with one job per document id (the event key).
package events

import "time"

// Kind names an ingestion event kind and doubles as the topic suffix.
type Kind string

const (
	KindDocumentFile   Kind = "document.file"
	KindDocumentURL    Kind = "document.url"
	KindDocumentQA     Kind = "document.qa"
	KindDocumentDelete Kind = "document.delete"
	KindAgentTrain     Kind = "agent.train"
)

// FileUpload triggers ingestion of a file previously stored in blob storage.
type FileUpload struct {
	DocumentID  string `json:"documentId"`
	TenantID    string `json:"tenantId"`
	StoragePath string `json:"storagePath"`
	Filename    string `json:"filename"`
}

// URLScrape triggers ingestion of already-scraped page text.
type URLScrape struct {
	DocumentID string `json:"documentId"`
	TenantID   string `json:"tenantId"`
	URL        string `json:"url"`
	Content    string `json:"content"`
}

// QAPair triggers ingestion of one question/answer pair.
type QAPair struct {
	DocumentID string `json:"documentId"`
	TenantID   string `json:"tenantId"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
}

// DocumentDelete triggers the cascade removal of a document: vectors, blob
// object, then the record.
type DocumentDelete struct {
	DocumentID string `json:"documentId"`
	TenantID   string `json:"tenantId"`
}

// AgentTrain triggers aggregation of a set of ready documents' vectors into
// a per-agent namespace.
type AgentTrain struct {
	AgentID     string   `json:"agentId"`
	TenantID    string   `json:"tenantId"`
	DocumentIDs []string `json:"documentIds"`
}

// Failed is emitted on the failed topic whenever an ingestion job ends in
// error, for status bookkeeping on the other side.
type Failed struct {
	Kind       Kind      `json:"kind"`
	DocumentID string    `json:"documentId,omitempty"`
	AgentID    string    `json:"agentId,omitempty"`
	TenantID   string    `json:"tenantId"`
	Reason     string    `json:"reason"`
	FailedAt   time.Time `json:"failedAt"`
}
