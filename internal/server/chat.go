package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docuchat/docuchat/internal/docstore"
	"github.com/docuchat/docuchat/internal/metrics"
	"github.com/docuchat/docuchat/internal/session"
	"github.com/docuchat/docuchat/internal/vectorstore"
)

// requestTimeout bounds the three outbound calls (embed, search, generate)
// of one chat request. No retry happens at this layer; interactive latency
// stays predictable.
const requestTimeout = 30 * time.Second

// Retriever assembles context for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query, namespace string) (string, error)
}

// Generator produces the final answer.
type Generator interface {
	Compose(ctx context.Context, question, contextText, personality, agentName, agentDescription string) (string, error)
}

// AgentResolver provides agent lookup and API-key resolution.
type AgentResolver interface {
	GetAgent(ctx context.Context, id string) (*docstore.Agent, error)
	ResolveAPIKey(ctx context.Context, key string) (string, error)
}

// SessionStore persists chat transcripts.
type SessionStore interface {
	Append(ctx context.Context, sessionID string, turn session.Turn) error
	History(ctx context.Context, sessionID string) ([]session.Turn, error)
}

// ChatService answers questions against a chat agent's namespace.
type ChatService struct {
	retriever Retriever
	generator Generator
	agents    AgentResolver
	sessions  SessionStore
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewChatService wires the retrieval and composition pipeline. sessions and
// m may be nil.
func NewChatService(retriever Retriever, generator Generator, agents AgentResolver, sessions SessionStore, m *metrics.Metrics, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		retriever: retriever,
		generator: generator,
		agents:    agents,
		sessions:  sessions,
		metrics:   m,
		logger:    logger.With("component", "chat"),
	}
}

// ChatResponse is the chat API response payload.
type ChatResponse struct {
	Answer    string    `json:"answer"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

// Answer runs retrieval and generation for one question. A missing session
// id starts a new session.
func (s *ChatService) Answer(ctx context.Context, agentID, question, sessionID string) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	start := time.Now()

	agent, err := s.agents.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	namespace := agent.Namespace
	if namespace == "" {
		namespace = vectorstore.TenantNamespace(agent.TenantID)
	}

	contextText, err := s.retriever.Retrieve(ctx, question, namespace)
	if err != nil {
		s.observe("error", start)
		return nil, err
	}

	answer, err := s.generator.Compose(ctx, question, contextText, agent.Personality, agent.Name, agent.Description)
	if err != nil {
		s.observe("error", start)
		return nil, err
	}

	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	now := time.Now().UTC()
	if s.sessions != nil {
		turn := session.Turn{Question: question, Answer: answer, Timestamp: now}
		if err := s.sessions.Append(ctx, sessionID, turn); err != nil {
			s.logger.Warn("failed to persist session turn", "session_id", sessionID, "error", err)
		}
	}

	s.observe("ok", start)
	return &ChatResponse{
		Answer:    answer,
		SessionID: sessionID,
		Timestamp: now,
	}, nil
}

// History returns a session's transcript, empty when no session store is
// configured.
func (s *ChatService) History(ctx context.Context, sessionID string) ([]session.Turn, error) {
	if s.sessions == nil {
		return nil, nil
	}
	return s.sessions.History(ctx, sessionID)
}

func (s *ChatService) observe(outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ChatRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.ChatLatency.Observe(time.Since(start).Seconds())
}
