package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/docuchat/internal/chunk"
	"github.com/docuchat/docuchat/internal/docstore"
	"github.com/docuchat/docuchat/internal/extract"
	"github.com/docuchat/docuchat/internal/vectorstore"
)

// fakeEmbedder returns a fixed vector, failing for texts matching failOn.
type fakeEmbedder struct {
	failOn string
	calls  int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("provider refused this chunk")
	}
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

// fakeVectors records all store interactions in memory.
type fakeVectors struct {
	ensured   []string
	upserted  map[string][]vectorstore.Record
	listed    map[string][]vectorstore.Record
	deleted   []string
	upsertErr error
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{
		upserted: make(map[string][]vectorstore.Record),
		listed:   make(map[string][]vectorstore.Record),
	}
}

func (f *fakeVectors) EnsureNamespace(ctx context.Context, namespace string) error {
	f.ensured = append(f.ensured, namespace)
	return nil
}

func (f *fakeVectors) UpsertBatch(ctx context.Context, namespace string, records []vectorstore.Record) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted[namespace] = append(f.upserted[namespace], records...)
	return nil
}

func (f *fakeVectors) ListByDocument(ctx context.Context, namespace, documentID string) ([]vectorstore.Record, error) {
	var out []vectorstore.Record
	for _, r := range f.listed[namespace] {
		if r.DocumentID == documentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeVectors) DeleteByDocument(ctx context.Context, namespace, documentID string) error {
	f.deleted = append(f.deleted, namespace+"/"+documentID)
	return nil
}

// fakeDocs tracks status transitions per document.
type fakeDocs struct {
	documents map[string]*docstore.Document
	agents    map[string]*docstore.Agent
	statuses  []docstore.Status
	readyNS   string
	agentNS   map[string]string
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{
		documents: make(map[string]*docstore.Document),
		agents:    make(map[string]*docstore.Agent),
		agentNS:   make(map[string]string),
	}
}

func (f *fakeDocs) GetDocument(ctx context.Context, id string) (*docstore.Document, error) {
	doc, ok := f.documents[id]
	if !ok {
		return nil, docstore.ErrDocumentNotFound
	}
	return doc, nil
}

func (f *fakeDocs) UpdateStatus(ctx context.Context, id string, status docstore.Status) error {
	f.statuses = append(f.statuses, status)
	if doc, ok := f.documents[id]; ok {
		doc.Status = status
	}
	return nil
}

func (f *fakeDocs) MarkReady(ctx context.Context, id, namespace string) error {
	f.statuses = append(f.statuses, docstore.StatusReady)
	f.readyNS = namespace
	if doc, ok := f.documents[id]; ok {
		doc.Status = docstore.StatusReady
		doc.Namespace = namespace
	}
	return nil
}

func (f *fakeDocs) DeleteDocument(ctx context.Context, id string) error {
	if _, ok := f.documents[id]; !ok {
		return docstore.ErrDocumentNotFound
	}
	delete(f.documents, id)
	return nil
}

func (f *fakeDocs) GetAgent(ctx context.Context, id string) (*docstore.Agent, error) {
	agent, ok := f.agents[id]
	if !ok {
		return nil, docstore.ErrAgentNotFound
	}
	return agent, nil
}

func (f *fakeDocs) SetAgentNamespace(ctx context.Context, id, namespace string) error {
	f.agentNS[id] = namespace
	return nil
}

// fakeBlobs is an in-memory blob store.
type fakeBlobs struct {
	objects map[string][]byte
	deleted []string
}

func (f *fakeBlobs) Download(path string) ([]byte, error) {
	data, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("object %s: not found", path)
	}
	return data, nil
}

func (f *fakeBlobs) Delete(path string) error {
	f.deleted = append(f.deleted, path)
	return nil
}

func newTestPipeline(embedder *fakeEmbedder, vectors *fakeVectors, docs *fakeDocs, blobs *fakeBlobs) *Pipeline {
	return New(chunk.New(60, 0), embedder, vectors, docs, blobs, nil, nil)
}

const sampleText = "Alpha sentence about the first topic here. Beta sentence about the second topic here. Gamma sentence about the third topic here."

func TestIngestFile_HappyPath(t *testing.T) {
	embedder := &fakeEmbedder{}
	vectors := newFakeVectors()
	docs := newFakeDocs()
	docs.documents["doc-1"] = &docstore.Document{ID: "doc-1", TenantID: "t1"}
	blobs := &fakeBlobs{objects: map[string][]byte{
		"t1/123_notes.txt": []byte(sampleText),
	}}

	p := newTestPipeline(embedder, vectors, docs, blobs)
	result, err := p.IngestFile(context.Background(), "doc-1", "t1", "t1/123_notes.txt", "notes.txt")
	require.NoError(t, err)

	assert.Equal(t, []docstore.Status{
		docstore.StatusDownloading,
		docstore.StatusExtracting,
		docstore.StatusChunking,
		docstore.StatusEmbedding,
		docstore.StatusUpserting,
		docstore.StatusReady,
	}, docs.statuses)

	assert.Equal(t, "tenant_t1", result.Namespace)
	assert.Equal(t, "tenant_t1", docs.readyNS)
	assert.Equal(t, result.Uploaded, len(vectors.upserted["tenant_t1"]))
	assert.Greater(t, result.Uploaded, 1)
	assert.Empty(t, result.FailedChunks)
	assert.Contains(t, vectors.ensured, "tenant_t1")
}

func TestIngestFile_ChunkIDsAreSequential(t *testing.T) {
	embedder := &fakeEmbedder{}
	vectors := newFakeVectors()
	docs := newFakeDocs()
	docs.documents["doc-1"] = &docstore.Document{ID: "doc-1", TenantID: "t1"}
	blobs := &fakeBlobs{objects: map[string][]byte{"t1/1_a.txt": []byte(sampleText)}}

	p := newTestPipeline(embedder, vectors, docs, blobs)
	_, err := p.IngestFile(context.Background(), "doc-1", "t1", "t1/1_a.txt", "a.txt")
	require.NoError(t, err)

	for i, record := range vectors.upserted["tenant_t1"] {
		assert.Equal(t, i, record.ChunkID)
		assert.Equal(t, "doc-1", record.DocumentID)
	}
}

func TestIngestFile_UnsupportedFormat(t *testing.T) {
	docs := newFakeDocs()
	docs.documents["doc-1"] = &docstore.Document{ID: "doc-1"}
	p := newTestPipeline(&fakeEmbedder{}, newFakeVectors(), docs, &fakeBlobs{})

	_, err := p.IngestFile(context.Background(), "doc-1", "t1", "t1/1_x.png", "x.png")
	require.ErrorIs(t, err, extract.ErrUnsupportedFormat)
	assert.Contains(t, docs.statuses, docstore.StatusError)
}

func TestIngestFile_MissingBlob(t *testing.T) {
	docs := newFakeDocs()
	docs.documents["doc-1"] = &docstore.Document{ID: "doc-1"}
	p := newTestPipeline(&fakeEmbedder{}, newFakeVectors(), docs, &fakeBlobs{objects: map[string][]byte{}})

	_, err := p.IngestFile(context.Background(), "doc-1", "t1", "t1/1_gone.txt", "gone.txt")
	require.Error(t, err)
	assert.Equal(t, docstore.StatusError, docs.documents["doc-1"].Status)
}

func TestIngestContent_PartialEmbeddingFailure(t *testing.T) {
	embedder := &fakeEmbedder{failOn: "Beta"}
	vectors := newFakeVectors()
	docs := newFakeDocs()
	docs.documents["doc-1"] = &docstore.Document{ID: "doc-1"}

	p := newTestPipeline(embedder, vectors, docs, &fakeBlobs{})
	result, err := p.IngestContent(context.Background(), "doc-1", "t1", sampleText)
	require.NoError(t, err, "one failed chunk must not fail the document")

	require.Len(t, result.FailedChunks, 1)
	assert.Contains(t, result.FailedChunks[0].Reason, "provider refused")
	assert.Equal(t, result.Uploaded, len(vectors.upserted["tenant_t1"]))
	assert.Equal(t, docstore.StatusReady, docs.documents["doc-1"].Status)

	for _, record := range vectors.upserted["tenant_t1"] {
		assert.NotContains(t, record.Text, "Beta", "failed chunk must not be upserted")
	}
}

func TestIngestContent_AllChunksFail(t *testing.T) {
	embedder := &fakeEmbedder{failOn: "sentence"}
	vectors := newFakeVectors()
	docs := newFakeDocs()
	docs.documents["doc-1"] = &docstore.Document{ID: "doc-1"}

	p := newTestPipeline(embedder, vectors, docs, &fakeBlobs{})
	_, err := p.IngestContent(context.Background(), "doc-1", "t1", sampleText)
	require.ErrorIs(t, err, ErrNoVectorsCreated)

	assert.Empty(t, vectors.upserted)
	assert.Equal(t, docstore.StatusError, docs.documents["doc-1"].Status)
}

func TestIngestContent_EmptyContent(t *testing.T) {
	docs := newFakeDocs()
	docs.documents["doc-1"] = &docstore.Document{ID: "doc-1"}
	p := newTestPipeline(&fakeEmbedder{}, newFakeVectors(), docs, &fakeBlobs{})

	_, err := p.IngestContent(context.Background(), "doc-1", "t1", "   ")
	require.ErrorIs(t, err, extract.ErrEmptyContent)
	assert.Equal(t, docstore.StatusError, docs.documents["doc-1"].Status)
}

func TestIngestQA_SingleTaggedChunk(t *testing.T) {
	embedder := &fakeEmbedder{}
	vectors := newFakeVectors()
	docs := newFakeDocs()
	docs.documents["doc-1"] = &docstore.Document{ID: "doc-1"}

	p := New(chunk.New(1000, 200), embedder, vectors, docs, &fakeBlobs{}, nil, nil)
	result, err := p.IngestQA(context.Background(), "doc-1", "t1", "What is the return window?", "Thirty days from delivery.")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Uploaded)

	records := vectors.upserted["tenant_t1"]
	require.Len(t, records, 1)
	assert.Equal(t, "qa_pair", records[0].Extra["type"])
	assert.Contains(t, records[0].Text, "Question: What is the return window?")
	assert.Contains(t, records[0].Text, "Answer: Thirty days from delivery.")
}

func TestTrainAgent_AggregatesReadyDocuments(t *testing.T) {
	vectors := newFakeVectors()
	vectors.listed["tenant_t1"] = []vectorstore.Record{
		{DocumentID: "doc-ready", ChunkID: 0, Text: "first"},
		{DocumentID: "doc-ready", ChunkID: 1, Text: "second"},
		{DocumentID: "doc-pending", ChunkID: 0, Text: "not yet"},
	}
	docs := newFakeDocs()
	docs.documents["doc-ready"] = &docstore.Document{ID: "doc-ready", Status: docstore.StatusReady}
	docs.documents["doc-pending"] = &docstore.Document{ID: "doc-pending", Status: docstore.StatusEmbedding}
	docs.agents["agent-1"] = &docstore.Agent{ID: "agent-1", TenantID: "t1"}

	p := newTestPipeline(&fakeEmbedder{}, vectors, docs, &fakeBlobs{})
	namespace, count, err := p.TrainAgent(context.Background(), "agent-1", "t1", []string{"doc-ready", "doc-pending", "doc-unknown"})
	require.NoError(t, err)

	assert.Equal(t, "agent_t1_agent-1", namespace)
	assert.Equal(t, 2, count, "only ready documents contribute chunks")
	assert.Len(t, vectors.upserted[namespace], 2)
	assert.Equal(t, namespace, docs.agentNS["agent-1"])
}

func TestTrainAgent_ReusesExistingNamespace(t *testing.T) {
	vectors := newFakeVectors()
	vectors.listed["tenant_t1"] = []vectorstore.Record{
		{DocumentID: "doc-1", ChunkID: 0, Text: "content"},
	}
	docs := newFakeDocs()
	docs.documents["doc-1"] = &docstore.Document{ID: "doc-1", Status: docstore.StatusReady}
	docs.agents["agent-1"] = &docstore.Agent{ID: "agent-1", TenantID: "t1", Namespace: "agent_t1_agent-1"}

	p := newTestPipeline(&fakeEmbedder{}, vectors, docs, &fakeBlobs{})
	namespace, _, err := p.TrainAgent(context.Background(), "agent-1", "t1", []string{"doc-1"})
	require.NoError(t, err)
	assert.Equal(t, "agent_t1_agent-1", namespace, "retraining overwrites the existing namespace")
}

func TestTrainAgent_NoChunks(t *testing.T) {
	docs := newFakeDocs()
	docs.agents["agent-1"] = &docstore.Agent{ID: "agent-1", TenantID: "t1"}

	p := newTestPipeline(&fakeEmbedder{}, newFakeVectors(), docs, &fakeBlobs{})
	_, _, err := p.TrainAgent(context.Background(), "agent-1", "t1", []string{"doc-missing"})
	require.ErrorIs(t, err, ErrNoTrainingChunks)
}

func TestTrainAgent_UnknownAgent(t *testing.T) {
	p := newTestPipeline(&fakeEmbedder{}, newFakeVectors(), newFakeDocs(), &fakeBlobs{})
	_, _, err := p.TrainAgent(context.Background(), "nope", "t1", []string{"doc-1"})
	require.ErrorIs(t, err, docstore.ErrAgentNotFound)
}

func TestDeleteDocument_Cascades(t *testing.T) {
	vectors := newFakeVectors()
	docs := newFakeDocs()
	docs.documents["doc-1"] = &docstore.Document{
		ID:          "doc-1",
		Namespace:   "tenant_t1",
		StoragePath: "t1/1_notes.txt",
	}
	blobs := &fakeBlobs{objects: map[string][]byte{"t1/1_notes.txt": []byte("x")}}

	p := newTestPipeline(&fakeEmbedder{}, vectors, docs, blobs)
	require.NoError(t, p.DeleteDocument(context.Background(), "doc-1"))

	assert.Equal(t, []string{"tenant_t1/doc-1"}, vectors.deleted)
	assert.Equal(t, []string{"t1/1_notes.txt"}, blobs.deleted)
	assert.NotContains(t, docs.documents, "doc-1", "the record goes last")
}

func TestDeleteDocument_NeverIngested(t *testing.T) {
	vectors := newFakeVectors()
	docs := newFakeDocs()
	docs.documents["doc-1"] = &docstore.Document{ID: "doc-1"}

	p := newTestPipeline(&fakeEmbedder{}, vectors, docs, &fakeBlobs{})
	require.NoError(t, p.DeleteDocument(context.Background(), "doc-1"))
	assert.Empty(t, vectors.deleted, "no namespace means no vectors to delete")
	assert.NotContains(t, docs.documents, "doc-1")
}
