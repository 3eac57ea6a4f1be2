package server

import (
	"net/http"

	"github.com/docuchat/docuchat/internal/metrics"
)

// NewMux routes the chat and document intake endpoints.
func NewMux(handler *Handler, docs *DocumentHandler, metricsEnabled bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", handler.Chat)
	mux.HandleFunc("POST /public/chat", handler.PublicChat)
	mux.HandleFunc("GET /api/sessions/{id}", handler.SessionHistory)
	if docs != nil {
		mux.HandleFunc("POST /api/documents", docs.Upload)
		mux.HandleFunc("POST /api/documents/url", docs.IngestURL)
		mux.HandleFunc("POST /api/documents/qa", docs.IngestQA)
		mux.HandleFunc("GET /api/documents/{id}", docs.Status)
		mux.HandleFunc("DELETE /api/documents/{id}", docs.Delete)
		mux.HandleFunc("POST /api/agents/{id}/train", docs.Train)
	}
	mux.HandleFunc("GET /health", handler.Health)
	if metricsEnabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}
	return mux
}
