package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/docuchat/docuchat/internal/blob"
	"github.com/docuchat/docuchat/internal/docstore"
	"github.com/docuchat/docuchat/internal/events"
	"github.com/docuchat/docuchat/internal/extract"
	"github.com/docuchat/docuchat/internal/logging"
)

// maxUploadSize bounds one uploaded file.
const maxUploadSize = 20 << 20

// DocumentWriter is the record store slice the intake endpoints consume.
type DocumentWriter interface {
	CreateDocument(ctx context.Context, doc *docstore.Document) error
	GetDocument(ctx context.Context, id string) (*docstore.Document, error)
}

// BlobSaver stores uploaded file bytes before the ingestion event is
// published.
type BlobSaver interface {
	Save(path string, data []byte) error
}

// Publisher publishes one ingestion event.
type Publisher interface {
	Publish(ctx context.Context, key string, value any) error
}

// Publishers groups the per-topic event producers the intake uses.
type Publishers struct {
	Files   Publisher
	URLs    Publisher
	QAs     Publisher
	Deletes Publisher
	Trains  Publisher
}

// DocumentHandler serves the document intake endpoints: uploads, scraped
// content, Q&A pairs, deletion, training, and status polling. Intake is
// asynchronous; every accepted request answers 202 with the document id to
// poll.
type DocumentHandler struct {
	docs    DocumentWriter
	blobs   BlobSaver
	publish Publishers
	logger  *slog.Logger
}

// NewDocumentHandler creates the intake handler set.
func NewDocumentHandler(docs DocumentWriter, blobs BlobSaver, publish Publishers) *DocumentHandler {
	return &DocumentHandler{
		docs:    docs,
		blobs:   blobs,
		publish: publish,
		logger:  logging.WithComponent("intake"),
	}
}

// Upload handles POST /api/documents: multipart form with a "file" part and
// a "tenantId" value. The format is validated from the filename before any
// bytes are stored.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid multipart form")
		return
	}
	tenantID := r.FormValue("tenantId")
	if tenantID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "tenantId is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	if _, err := extract.FormatFromFilename(header.Filename); err != nil {
		writeError(w, h.logger, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "reading upload failed")
		return
	}
	if len(data) > maxUploadSize {
		writeError(w, h.logger, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
		return
	}

	storagePath := blob.ObjectPath(tenantID, header.Filename)
	if err := h.blobs.Save(storagePath, data); err != nil {
		h.logger.Error("failed to store upload", "tenant_id", tenantID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, genericFailure)
		return
	}

	doc := &docstore.Document{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Name:        header.Filename,
		SourceKind:  docstore.SourceFile,
		Size:        int64(len(data)),
		StoragePath: storagePath,
	}
	h.accept(r.Context(), w, doc, h.publish.Files, events.FileUpload{
		DocumentID:  doc.ID,
		TenantID:    tenantID,
		StoragePath: storagePath,
		Filename:    header.Filename,
	})
}

// URLRequest is the scraped-content intake payload.
type URLRequest struct {
	TenantID string `json:"tenantId"`
	URL      string `json:"url"`
	Content  string `json:"content"`
}

// IngestURL handles POST /api/documents/url for already-scraped page text.
func (h *DocumentHandler) IngestURL(w http.ResponseWriter, r *http.Request) {
	var req URLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TenantID == "" || req.URL == "" || req.Content == "" {
		writeError(w, h.logger, http.StatusBadRequest, "tenantId, url, and content are required")
		return
	}

	doc := &docstore.Document{
		ID:         uuid.New().String(),
		TenantID:   req.TenantID,
		Name:       req.URL,
		SourceKind: docstore.SourceURL,
		Size:       int64(len(req.Content)),
		RawContent: req.Content,
	}
	h.accept(r.Context(), w, doc, h.publish.URLs, events.URLScrape{
		DocumentID: doc.ID,
		TenantID:   req.TenantID,
		URL:        req.URL,
		Content:    req.Content,
	})
}

// QARequest is the question/answer intake payload.
type QARequest struct {
	TenantID string `json:"tenantId"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// IngestQA handles POST /api/documents/qa.
func (h *DocumentHandler) IngestQA(w http.ResponseWriter, r *http.Request) {
	var req QARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TenantID == "" || req.Question == "" || req.Answer == "" {
		writeError(w, h.logger, http.StatusBadRequest, "tenantId, question, and answer are required")
		return
	}

	doc := &docstore.Document{
		ID:         uuid.New().String(),
		TenantID:   req.TenantID,
		Name:       req.Question,
		SourceKind: docstore.SourceQA,
		Size:       int64(len(req.Question) + len(req.Answer)),
	}
	h.accept(r.Context(), w, doc, h.publish.QAs, events.QAPair{
		DocumentID: doc.ID,
		TenantID:   req.TenantID,
		Question:   req.Question,
		Answer:     req.Answer,
	})
}

// Status handles GET /api/documents/{id} for ingestion status polling.
func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, docstore.ErrDocumentNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "document not found")
			return
		}
		h.logger.Error("document lookup failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, genericFailure)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"documentId": doc.ID,
		"name":       doc.Name,
		"sourceKind": doc.SourceKind,
		"status":     doc.Status,
		"updatedAt":  doc.UpdatedAt,
	})
}

// Delete handles DELETE /api/documents/{id}. The cascade itself runs in the
// worker; this only publishes the event.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := h.docs.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, docstore.ErrDocumentNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "document not found")
			return
		}
		h.logger.Error("document lookup failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, genericFailure)
		return
	}
	if err := h.publish.Deletes.Publish(r.Context(), id, events.DocumentDelete{
		DocumentID: id,
		TenantID:   doc.TenantID,
	}); err != nil {
		h.logger.Error("failed to publish delete event", "document_id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, genericFailure)
		return
	}
	writeJSON(w, h.logger, http.StatusAccepted, map[string]string{"documentId": id, "status": "deleting"})
}

// TrainRequest is the agent training payload.
type TrainRequest struct {
	TenantID    string   `json:"tenantId"`
	DocumentIDs []string `json:"documentIds"`
}

// Train handles POST /api/agents/{id}/train.
func (h *DocumentHandler) Train(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	var req TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TenantID == "" || len(req.DocumentIDs) == 0 {
		writeError(w, h.logger, http.StatusBadRequest, "tenantId and documentIds are required")
		return
	}
	if err := h.publish.Trains.Publish(r.Context(), agentID, events.AgentTrain{
		AgentID:     agentID,
		TenantID:    req.TenantID,
		DocumentIDs: req.DocumentIDs,
	}); err != nil {
		h.logger.Error("failed to publish train event", "agent_id", agentID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, genericFailure)
		return
	}
	writeJSON(w, h.logger, http.StatusAccepted, map[string]string{"agentId": agentID, "status": "training"})
}

// accept persists the queued record, publishes the ingestion event, and
// answers 202.
func (h *DocumentHandler) accept(ctx context.Context, w http.ResponseWriter, doc *docstore.Document, pub Publisher, event any) {
	if err := h.docs.CreateDocument(ctx, doc); err != nil {
		h.logger.Error("failed to create document record", "tenant_id", doc.TenantID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, genericFailure)
		return
	}
	if err := pub.Publish(ctx, doc.ID, event); err != nil {
		h.logger.Error("failed to publish ingestion event", "document_id", doc.ID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, genericFailure)
		return
	}
	h.logger.Info("document accepted", "document_id", doc.ID, "tenant_id", doc.TenantID, "kind", doc.SourceKind)
	writeJSON(w, h.logger, http.StatusAccepted, map[string]string{
		"documentId": doc.ID,
		"status":     string(docstore.StatusQueued),
	})
}
