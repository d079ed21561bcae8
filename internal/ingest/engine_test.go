package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/Sinisterchilll/cs-analytics/internal/chatapi"
	"github.com/Sinisterchilll/cs-analytics/internal/models"
)

type mockAPI struct {
	users         []chatapi.User
	conversations map[string][]chatapi.ConversationRef
	details       map[string]*chatapi.Conversation
	messages      map[string][]chatapi.Message
	detailErr     map[string]error
}

func (m *mockAPI) ListUsers(ctx context.Context, from, to time.Time) ([]chatapi.User, error) {
	return m.users, nil
}

func (m *mockAPI) ListUserConversations(ctx context.Context, userID string) ([]chatapi.ConversationRef, error) {
	return m.conversations[userID], nil
}

func (m *mockAPI) GetConversation(ctx context.Context, id string) (*chatapi.Conversation, error) {
	if err := m.detailErr[id]; err != nil {
		return nil, err
	}
	detail, ok := m.details[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return detail, nil
}

func (m *mockAPI) ListMessages(ctx context.Context, conversationID string, from time.Time) ([]chatapi.Message, error) {
	return m.messages[conversationID], nil
}

type mockStore struct {
	accounts      map[string]models.Account
	conversations map[string]models.Conversation
	messages      []models.Message
}

func newMockStore() *mockStore {
	return &mockStore{
		accounts:      make(map[string]models.Account),
		conversations: make(map[string]models.Conversation),
	}
}

func (s *mockStore) UpsertAccount(ctx context.Context, a models.Account) error {
	s.accounts[a.ID] = a
	return nil
}

func (s *mockStore) UpsertConversation(ctx context.Context, c models.Conversation) error {
	s.conversations[c.ID] = c
	return nil
}

func (s *mockStore) UpsertMessage(ctx context.Context, m models.Message) error {
	s.messages = append(s.messages, m)
	return nil
}

func newTestEngine(api ChatAPI, store Store) *Engine {
	e := New(api, store, 2*time.Hour, slog.Default())
	e.sleep = func(time.Duration) {}
	return e
}

func parts(text string) json.RawMessage {
	b, _ := json.Marshal([]map[string]any{{"text": map[string]string{"content": text}}})
	return b
}

func TestRun_EndToEndSyncPass(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	api := &mockAPI{
		users: []chatapi.User{{ID: "u1", Phone: "+911234567890", CreatedTime: now.Add(-24 * time.Hour)}},
		conversations: map[string][]chatapi.ConversationRef{
			"u1": {{ID: "c1"}},
		},
		details: map[string]*chatapi.Conversation{
			"c1": {
				ID: "c1", UserID: "u1", Status: "open",
				CreatedTime: now.Add(-time.Hour), UpdatedTime: now.Add(-30 * time.Minute),
			},
		},
		messages: map[string][]chatapi.Message{
			"c1": {
				{ID: "m1", ConversationID: "c1", ActorType: "user", Parts: parts("my bike won't start and it's stuck"), CreatedTime: now.Add(-time.Hour)},
				{ID: "m2", ConversationID: "c1", ActorType: "bot", Parts: parts("let me help"), CreatedTime: now.Add(-59 * time.Minute)},
				{ID: "m3", ConversationID: "c1", ActorType: "system", Parts: parts("conversation assigned"), CreatedTime: now.Add(-58 * time.Minute)},
			},
		},
	}
	store := newMockStore()
	e := newTestEngine(api, store)
	e.now = func() time.Time { return now }

	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Accounts != 1 || sum.Conversations != 1 {
		t.Errorf("accounts=%d conversations=%d, want 1/1", sum.Accounts, sum.Conversations)
	}
	if sum.Messages != 2 {
		t.Fatalf("messages = %d, want 2 (system message filtered)", sum.Messages)
	}
	for _, m := range store.messages {
		if m.Role == models.RoleSystem {
			t.Error("system message was persisted")
		}
	}
	if store.messages[0].Content != "my bike won't start and it's stuck" {
		t.Errorf("content not normalized: %q", store.messages[0].Content)
	}
}

func TestRun_WindowMembershipByUpdatedTime(t *testing.T) {
	// Created before the window but updated inside it: must be included.
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	windowStart := now.Add(-2 * time.Hour)
	api := &mockAPI{
		users:         []chatapi.User{{ID: "u1"}},
		conversations: map[string][]chatapi.ConversationRef{"u1": {{ID: "c1"}}},
		details: map[string]*chatapi.Conversation{
			"c1": {
				ID: "c1", UserID: "u1", Status: "open",
				CreatedTime: windowStart.Add(-time.Second),
				UpdatedTime: windowStart.Add(time.Second),
				AssignedBot: "bot-1",
			},
		},
		messages: map[string][]chatapi.Message{"c1": {}},
	}
	store := newMockStore()
	e := newTestEngine(api, store)
	e.now = func() time.Time { return now }

	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Conversations != 1 {
		t.Errorf("conversations = %d, want 1 (updated-time membership suffices)", sum.Conversations)
	}
	if sum.SkippedOutOfWindow != 0 {
		t.Errorf("skipped_out_of_window = %d, want 0", sum.SkippedOutOfWindow)
	}
}

func TestRun_SkipsConversationOutsideWindow(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	api := &mockAPI{
		users:         []chatapi.User{{ID: "u1"}},
		conversations: map[string][]chatapi.ConversationRef{"u1": {{ID: "c1"}}},
		details: map[string]*chatapi.Conversation{
			"c1": {
				ID: "c1", UserID: "u1", Status: "open",
				CreatedTime: now.Add(-48 * time.Hour),
				UpdatedTime: now.Add(-24 * time.Hour),
			},
		},
	}
	store := newMockStore()
	e := newTestEngine(api, store)
	e.now = func() time.Time { return now }

	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.SkippedOutOfWindow != 1 {
		t.Errorf("skipped_out_of_window = %d, want 1", sum.SkippedOutOfWindow)
	}
	if len(store.conversations) != 0 {
		t.Error("out-of-window conversation was upserted")
	}
	if len(store.messages) != 0 {
		t.Error("messages fetched for out-of-window conversation")
	}
}

func TestRun_SkipsMessagesWithoutBotInvolvement(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	api := &mockAPI{
		users:         []chatapi.User{{ID: "u1"}},
		conversations: map[string][]chatapi.ConversationRef{"u1": {{ID: "c1"}}},
		details: map[string]*chatapi.Conversation{
			"c1": {
				ID: "c1", UserID: "u1", Status: "open",
				CreatedTime: now.Add(-time.Hour), UpdatedTime: now.Add(-time.Hour),
				AssignedAgent: "human-7",
			},
		},
		messages: map[string][]chatapi.Message{
			"c1": {
				{ID: "m1", ConversationID: "c1", ActorType: "user", Parts: parts("hello I need help with my account"), CreatedTime: now.Add(-time.Hour)},
				{ID: "m2", ConversationID: "c1", ActorType: "agent", Parts: parts("sure, checking"), CreatedTime: now.Add(-time.Hour)},
			},
		},
	}
	store := newMockStore()
	e := newTestEngine(api, store)
	e.now = func() time.Time { return now }

	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.SkippedNoBot != 1 {
		t.Errorf("skipped_no_bot = %d, want 1", sum.SkippedNoBot)
	}
	// The conversation itself is still recorded; only its messages are
	// withheld.
	if len(store.conversations) != 1 {
		t.Errorf("conversations stored = %d, want 1", len(store.conversations))
	}
	if len(store.messages) != 0 {
		t.Errorf("messages stored = %d, want 0", len(store.messages))
	}
}

func TestRun_BotAssignmentAloneKeepsMessages(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	api := &mockAPI{
		users:         []chatapi.User{{ID: "u1"}},
		conversations: map[string][]chatapi.ConversationRef{"u1": {{ID: "c1"}}},
		details: map[string]*chatapi.Conversation{
			"c1": {
				ID: "c1", UserID: "u1", Status: "open",
				CreatedTime: now.Add(-time.Hour), UpdatedTime: now.Add(-time.Hour),
				AssignedBot: "bot-1",
			},
		},
		messages: map[string][]chatapi.Message{
			"c1": {
				{ID: "m1", ConversationID: "c1", ActorType: "user", Parts: parts("is my refund processed yet"), CreatedTime: now.Add(-time.Hour)},
			},
		},
	}
	store := newMockStore()
	e := newTestEngine(api, store)
	e.now = func() time.Time { return now }

	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Messages != 1 {
		t.Errorf("messages = %d, want 1 (bot assignment counts as involvement)", sum.Messages)
	}
}

func TestRun_ConversationFailureDoesNotAbortRun(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	api := &mockAPI{
		users:         []chatapi.User{{ID: "u1"}},
		conversations: map[string][]chatapi.ConversationRef{"u1": {{ID: "bad"}, {ID: "good"}}},
		details: map[string]*chatapi.Conversation{
			"good": {
				ID: "good", UserID: "u1", Status: "open",
				CreatedTime: now.Add(-time.Hour), UpdatedTime: now.Add(-time.Hour),
				AssignedBot: "bot-1",
			},
		},
		detailErr: map[string]error{"bad": errors.New("api exploded")},
		messages:  map[string][]chatapi.Message{"good": {}},
	}
	store := newMockStore()
	e := newTestEngine(api, store)
	e.now = func() time.Time { return now }

	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run must absorb per-conversation failures: %v", err)
	}
	if sum.Errors != 1 {
		t.Errorf("errors = %d, want 1", sum.Errors)
	}
	if sum.Conversations != 1 {
		t.Errorf("conversations = %d, want 1 (the healthy one)", sum.Conversations)
	}
}

func TestRun_SynthesizesMessageID(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-time.Hour)
	api := &mockAPI{
		users:         []chatapi.User{{ID: "u1"}},
		conversations: map[string][]chatapi.ConversationRef{"u1": {{ID: "c1"}}},
		details: map[string]*chatapi.Conversation{
			"c1": {
				ID: "c1", UserID: "u1", Status: "open",
				CreatedTime: created, UpdatedTime: created,
				AssignedBot: "bot-1",
			},
		},
		messages: map[string][]chatapi.Message{
			"c1": {
				{ConversationID: "c1", ActorType: "user", Parts: parts("no id on this one from the api"), CreatedTime: created},
			},
		},
	}
	store := newMockStore()
	e := newTestEngine(api, store)
	e.now = func() time.Time { return now }

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(store.messages))
	}
	want := fmt.Sprintf("c1-%d", created.UnixMilli())
	if got := store.messages[0].ID; got != want {
		t.Errorf("synthesized id = %q, want %q", got, want)
	}
}
