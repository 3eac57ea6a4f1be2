package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/docuchat/internal/docstore"
	"github.com/docuchat/docuchat/internal/session"
)

type stubRetriever struct {
	context string
	err     error
}

func (s *stubRetriever) Retrieve(ctx context.Context, query, namespace string) (string, error) {
	return s.context, s.err
}

type stubGenerator struct {
	answer string
	err    error
}

func (s *stubGenerator) Compose(ctx context.Context, question, contextText, personality, agentName, agentDescription string) (string, error) {
	return s.answer, s.err
}

type stubAgents struct {
	agents  map[string]*docstore.Agent
	apiKeys map[string]string
}

func (s *stubAgents) GetAgent(ctx context.Context, id string) (*docstore.Agent, error) {
	agent, ok := s.agents[id]
	if !ok {
		return nil, docstore.ErrAgentNotFound
	}
	return agent, nil
}

func (s *stubAgents) ResolveAPIKey(ctx context.Context, key string) (string, error) {
	agentID, ok := s.apiKeys[key]
	if !ok {
		return "", docstore.ErrInvalidAPIKey
	}
	return agentID, nil
}

type stubSessions struct {
	turns map[string][]session.Turn
}

func (s *stubSessions) Append(ctx context.Context, sessionID string, turn session.Turn) error {
	if s.turns == nil {
		s.turns = make(map[string][]session.Turn)
	}
	s.turns[sessionID] = append(s.turns[sessionID], turn)
	return nil
}

func (s *stubSessions) History(ctx context.Context, sessionID string) ([]session.Turn, error) {
	return s.turns[sessionID], nil
}

func newTestMux(retriever Retriever, generator Generator, sessions SessionStore) (*http.ServeMux, *stubAgents) {
	agents := &stubAgents{
		agents: map[string]*docstore.Agent{
			"agent-1": {ID: "agent-1", TenantID: "t1", Name: "SupportBot", Personality: "friendly"},
		},
		apiKeys: map[string]string{"sk-valid": "agent-1"},
	}
	chat := NewChatService(retriever, generator, agents, sessions, nil, nil)
	return NewMux(NewHandler(chat, agents), nil, false), agents
}

func postJSON(t *testing.T, mux *http.ServeMux, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestChat_HappyPath(t *testing.T) {
	sessions := &stubSessions{}
	mux, _ := newTestMux(
		&stubRetriever{context: "retrieved context"},
		&stubGenerator{answer: "Here is your answer."},
		sessions,
	)

	rec := postJSON(t, mux, "/api/chat", `{"question":"What now?","agentId":"agent-1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Here is your answer.", resp.Answer)
	assert.NotEmpty(t, resp.SessionID, "a new session id is minted when none given")
	assert.Len(t, sessions.turns[resp.SessionID], 1)
}

func TestChat_ReusesSessionID(t *testing.T) {
	mux, _ := newTestMux(&stubRetriever{context: "c"}, &stubGenerator{answer: "a"}, &stubSessions{})

	rec := postJSON(t, mux, "/api/chat", `{"question":"q","agentId":"agent-1","sessionId":"sess-42"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sess-42", resp.SessionID)
}

func TestChat_MissingFields(t *testing.T) {
	mux, _ := newTestMux(&stubRetriever{}, &stubGenerator{}, nil)

	for _, body := range []string{
		`{}`,
		`{"question":"q"}`,
		`{"agentId":"agent-1"}`,
		`not json`,
	} {
		rec := postJSON(t, mux, "/api/chat", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
	}
}

func TestChat_AgentNotFound(t *testing.T) {
	mux, _ := newTestMux(&stubRetriever{context: "c"}, &stubGenerator{answer: "a"}, nil)

	rec := postJSON(t, mux, "/api/chat", `{"question":"q","agentId":"nope"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChat_ProviderFailureIsGeneric(t *testing.T) {
	mux, _ := newTestMux(
		&stubRetriever{context: "c"},
		&stubGenerator{err: errors.New("openai: invalid api key sk-secret-123")},
		nil,
	)

	rec := postJSON(t, mux, "/api/chat", `{"question":"q","agentId":"agent-1"}`, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), genericFailure)
	assert.NotContains(t, rec.Body.String(), "sk-secret-123", "provider detail must never reach the client")
}

func TestChat_RetrievalFailureIsGeneric(t *testing.T) {
	mux, _ := newTestMux(&stubRetriever{err: errors.New("qdrant down")}, &stubGenerator{}, nil)

	rec := postJSON(t, mux, "/api/chat", `{"question":"q","agentId":"agent-1"}`, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "qdrant")
}

func TestPublicChat_ValidKey(t *testing.T) {
	mux, _ := newTestMux(&stubRetriever{context: "c"}, &stubGenerator{answer: "public answer"}, nil)

	rec := postJSON(t, mux, "/public/chat", `{"question":"q"}`,
		map[string]string{"Authorization": "Bearer sk-valid"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "public answer")
}

func TestPublicChat_MissingKey(t *testing.T) {
	mux, _ := newTestMux(&stubRetriever{}, &stubGenerator{}, nil)

	rec := postJSON(t, mux, "/public/chat", `{"question":"q"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPublicChat_InvalidKey(t *testing.T) {
	mux, _ := newTestMux(&stubRetriever{}, &stubGenerator{}, nil)

	rec := postJSON(t, mux, "/public/chat", `{"question":"q"}`,
		map[string]string{"Authorization": "Bearer sk-wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid api key")
}

func TestPublicChat_IgnoresBodyAgentID(t *testing.T) {
	retriever := &recordingRetriever{}
	mux, _ := newTestMux(retriever, &stubGenerator{answer: "a"}, nil)

	rec := postJSON(t, mux, "/public/chat", `{"question":"q","agentId":"agent-hijack"}`,
		map[string]string{"Authorization": "Bearer sk-valid"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tenant_t1", retriever.namespace, "agent comes from the key, not the payload")
}

type recordingRetriever struct {
	namespace string
}

func (r *recordingRetriever) Retrieve(ctx context.Context, query, namespace string) (string, error) {
	r.namespace = namespace
	return "context", nil
}

func TestSessionHistory(t *testing.T) {
	sessions := &stubSessions{}
	mux, _ := newTestMux(&stubRetriever{context: "c"}, &stubGenerator{answer: "the answer"}, sessions)

	rec := postJSON(t, mux, "/api/chat", `{"question":"q","agentId":"agent-1","sessionId":"sess-7"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/sess-7", nil)
	histRec := httptest.NewRecorder()
	mux.ServeHTTP(histRec, req)

	require.Equal(t, http.StatusOK, histRec.Code)
	var resp struct {
		SessionID string         `json:"sessionId"`
		Turns     []session.Turn `json:"turns"`
	}
	require.NoError(t, json.Unmarshal(histRec.Body.Bytes(), &resp))
	assert.Equal(t, "sess-7", resp.SessionID)
	require.Len(t, resp.Turns, 1)
	assert.Equal(t, "the answer", resp.Turns[0].Answer)
}

func TestSessionHistory_UnknownSessionIsEmpty(t *testing.T) {
	mux, _ := newTestMux(&stubRetriever{}, &stubGenerator{}, &stubSessions{})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/never-seen", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"turns":[]`)
}

func TestHealth(t *testing.T) {
	mux, _ := newTestMux(&stubRetriever{}, &stubGenerator{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestAnswer_AgentNamespacePreferred(t *testing.T) {
	retriever := &recordingRetriever{}
	agents := &stubAgents{agents: map[string]*docstore.Agent{
		"agent-2": {ID: "agent-2", TenantID: "t1", Name: "Trained", Namespace: "agent_t1_agent-2"},
	}}
	chat := NewChatService(retriever, &stubGenerator{answer: "a"}, agents, nil, nil, nil)

	_, err := chat.Answer(context.Background(), "agent-2", "q", "")
	require.NoError(t, err)
	assert.Equal(t, "agent_t1_agent-2", retriever.namespace, "trained agents answer from their own namespace")
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/public/chat", strings.NewReader("{}"))
	assert.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Basic dXNlcg==")
	assert.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Bearer sk-abc ")
	assert.Equal(t, "sk-abc", bearerToken(req))
}
