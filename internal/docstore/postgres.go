// Package docstore persists the minimal relational records the pipeline
// reads and writes: documents (status, namespace pointer), agents, and API
// keys. Backed by PostgreSQL through database/sql and lib/pq.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/docuchat/docuchat/internal/config"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrAgentNotFound    = errors.New("agent not found")
	ErrInvalidAPIKey    = errors.New("invalid api key")
)

// Store wraps the PostgreSQL connection pool.
type Store struct {
	db *sql.DB
}

// New opens a connection pool and verifies connectivity.
func New(cfg config.PostgresConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateDocument inserts a new document record in queued status.
func (s *Store) CreateDocument(ctx context.Context, doc *Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, tenant_id, name, source_kind, size, status, storage_path, raw_content, namespace, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`,
		doc.ID, doc.TenantID, doc.Name, doc.SourceKind, doc.Size, StatusQueued,
		doc.StoragePath, doc.RawContent, doc.Namespace,
	)
	if err != nil {
		return fmt.Errorf("inserting document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument fetches one document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, source_kind, size, status, storage_path, raw_content, namespace, created_at, updated_at
		FROM documents WHERE id = $1`, id)

	var doc Document
	err := row.Scan(&doc.ID, &doc.TenantID, &doc.Name, &doc.SourceKind, &doc.Size,
		&doc.Status, &doc.StoragePath, &doc.RawContent, &doc.Namespace,
		&doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document %s: %w", id, err)
	}
	return &doc, nil
}

// UpdateStatus records a status transition for a document.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("updating status of document %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// MarkReady sets the terminal ready status together with the namespace the
// document's vectors live in.
func (s *Store) MarkReady(ctx context.Context, id, namespace string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = $2, namespace = $3, updated_at = now() WHERE id = $1`,
		id, StatusReady, namespace)
	if err != nil {
		return fmt.Errorf("marking document %s ready: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// DeleteDocument removes the document record. Vector cascade is handled by
// the caller through the vector store.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	return nil
}

// GetAgent fetches one chat agent by id.
func (s *Store) GetAgent(ctx context.Context, id string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, description, personality, namespace, document_ids, created_at
		FROM agents WHERE id = $1`, id)

	var agent Agent
	err := row.Scan(&agent.ID, &agent.TenantID, &agent.Name, &agent.Description,
		&agent.Personality, &agent.Namespace, pq.Array(&agent.DocumentIDs), &agent.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning agent %s: %w", id, err)
	}
	return &agent, nil
}

// SetAgentNamespace records the per-agent namespace after training.
func (s *Store) SetAgentNamespace(ctx context.Context, id, namespace string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE agents SET namespace = $2 WHERE id = $1`, id, namespace)
	if err != nil {
		return fmt.Errorf("setting namespace of agent %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// ResolveAPIKey maps a public chat API key to its agent id.
func (s *Store) ResolveAPIKey(ctx context.Context, key string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT agent_id FROM api_keys WHERE key = $1 AND revoked = false`, key)
	var agentID string
	err := row.Scan(&agentID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidAPIKey
	}
	if err != nil {
		return "", fmt.Errorf("resolving api key: %w", err)
	}
	return agentID, nil
}
