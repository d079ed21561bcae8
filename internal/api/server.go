// Package api serves read-only lookups over the synced data: account
// search by phone, an account's conversations, and a conversation's
// messages joined with their classifications.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Sinisterchilll/cs-analytics/internal/models"
	"github.com/Sinisterchilll/cs-analytics/internal/store"
)

const defaultSearchLimit = 20

// Store is the subset of the persistence layer the lookup API reads from.
type Store interface {
	SearchAccounts(ctx context.Context, phone string, limit int) ([]models.Account, error)
	ConversationsByAccount(ctx context.Context, accountID string) ([]models.Conversation, error)
	ConversationMessages(ctx context.Context, conversationID string) ([]store.MessageWithAnalysis, error)
}

type Server struct {
	router *chi.Mux
	db     Store
	port   int
}

func NewServer(port int, db Store) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		db:     db,
		port:   port,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/accounts", s.searchAccounts)
	router.Get("/api/v1/accounts/{accountID}/conversations", s.accountConversations)
	router.Get("/api/v1/conversations/{conversationID}/messages", s.conversationMessages)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type accountJSON struct {
	ID          string    `json:"id"`
	Phone       string    `json:"phone"`
	CreatedTime time.Time `json:"created_time"`
}

func (s *Server) searchAccounts(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		writeError(w, http.StatusBadRequest, "phone query parameter is required")
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	accounts, err := s.db.SearchAccounts(r.Context(), phone, limit)
	if err != nil {
		slog.Error("account search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "account search failed")
		return
	}

	out := make([]accountJSON, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountJSON{ID: a.ID, Phone: a.Phone, CreatedTime: a.CreatedTime})
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out, "count": len(out)})
}

type conversationJSON struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Status      string    `json:"status"`
	Resolved    bool      `json:"resolved"`
	ChannelID   string    `json:"channel_id,omitempty"`
	AssigneeID  string    `json:"assignee_id,omitempty"`
	BotAssigned bool      `json:"bot_assigned"`
	CreatedTime time.Time `json:"created_time"`
	UpdatedTime time.Time `json:"updated_time"`
}

func (s *Server) accountConversations(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	convs, err := s.db.ConversationsByAccount(r.Context(), accountID)
	if err != nil {
		slog.Error("conversation lookup failed", "account_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "conversation lookup failed")
		return
	}

	out := make([]conversationJSON, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationJSON{
			ID:          c.ID,
			AccountID:   c.AccountID,
			Status:      c.Status,
			Resolved:    c.Resolved(),
			ChannelID:   c.ChannelID,
			AssigneeID:  c.AssigneeID,
			BotAssigned: c.BotAssigned,
			CreatedTime: c.CreatedTime,
			UpdatedTime: c.UpdatedTime,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": out, "count": len(out)})
}

type analysisJSON struct {
	Language   string    `json:"language"`
	Category   string    `json:"category"`
	Tag        string    `json:"tag"`
	Confidence float64   `json:"confidence"`
	Model      string    `json:"model"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

type messageJSON struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Role           string        `json:"role"`
	Content        string        `json:"content"`
	CreatedTime    time.Time     `json:"created_time"`
	Rating         *int          `json:"rating,omitempty"`
	Analysis       *analysisJSON `json:"analysis,omitempty"`
}

func (s *Server) conversationMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	items, err := s.db.ConversationMessages(r.Context(), conversationID)
	if err != nil {
		slog.Error("message lookup failed", "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "message lookup failed")
		return
	}

	out := make([]messageJSON, 0, len(items))
	for _, item := range items {
		m := messageJSON{
			ID:             item.Message.ID,
			ConversationID: item.Message.ConversationID,
			Role:           item.Message.Role,
			Content:        item.Message.Content,
			CreatedTime:    item.Message.CreatedTime,
			Rating:         item.Message.Rating,
		}
		if a := item.Analysis; a != nil {
			m.Analysis = &analysisJSON{
				Language:   a.Language,
				Category:   a.Category,
				Tag:        a.Tag,
				Confidence: a.Confidence,
				Model:      a.Model,
				AnalyzedAt: a.AnalyzedAt,
			}
		}
		out = append(out, m)
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out, "count": len(out)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
