package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/platformx/platformx/internal/handler/dto"
	"github.com/platformx/platformx/internal/model"
	"github.com/platformx/platformx/internal/service"
)

// ChatService is the generation logic ChatHandler serves.
type ChatService interface {
	Generate(ctx context.Context, in service.GenerateInput) (*service.GenerateOutput, error)
	Thread(ctx context.Context, userID, threadID string) ([]*model.ThreadEntry, error)
	Threads(ctx context.Context, userID string, limit int) ([]*model.ThreadSummary, error)
	TodaysUsage(ctx context.Context, userID string) (int64, error)
}

// ChatHandler handles generation and conversation history.
type ChatHandler struct {
	svc    ChatService
	logger *slog.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(svc ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

// Generate handles POST /api/v1/chat.
func (h *ChatHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.GenerateRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	out, err := h.svc.Generate(r.Context(), service.GenerateInput{
		UserID:      userID,
		Prompt:      req.Prompt,
		ModelID:     req.ModelID,
		ThreadID:    req.ThreadID,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	})
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Threads handles GET /api/v1/chat/threads.
func (h *ChatHandler) Threads(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	threads, err := h.svc.Threads(r.Context(), userID, limit)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": threads})
}

// Thread handles GET /api/v1/chat/threads/{threadId}.
func (h *ChatHandler) Thread(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	entries, err := h.svc.Thread(r.Context(), userID, chi.URLParam(r, "threadId"))
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}

// Usage handles GET /api/v1/chat/usage.
func (h *ChatHandler) Usage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	count, err := h.svc.TodaysUsage(r.Context(), userID)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.UsageResponse{Count: count})
}
