package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/Sinisterchilll/cs-analytics/internal/chatapi"
	"github.com/Sinisterchilll/cs-analytics/internal/models"
)

type mockAPI struct {
	details map[string]*chatapi.Conversation
	errs    map[string]error
	calls   int
}

func (m *mockAPI) GetConversation(ctx context.Context, id string) (*chatapi.Conversation, error) {
	m.calls++
	if err := m.errs[id]; err != nil {
		return nil, err
	}
	return m.details[id], nil
}

type mockStore struct {
	unresolved []models.Conversation
	upserts    []models.Conversation
	since      time.Time
}

func (s *mockStore) UnresolvedConversations(ctx context.Context, since time.Time) ([]models.Conversation, error) {
	s.since = since
	return s.unresolved, nil
}

func (s *mockStore) UpsertConversation(ctx context.Context, c models.Conversation) error {
	s.upserts = append(s.upserts, c)
	return nil
}

func newTestEngine(api ChatAPI, store Store) *Engine {
	e := New(api, store, slog.Default())
	e.sleep = func(time.Duration) {}
	return e
}

func TestRun_RefreshesResolvedConversation(t *testing.T) {
	updated := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	newerUpdate := updated.Add(2 * time.Hour)

	store := &mockStore{
		unresolved: []models.Conversation{
			{ID: "c1", AccountID: "u1", Status: "open", UpdatedTime: updated},
		},
	}
	api := &mockAPI{
		details: map[string]*chatapi.Conversation{
			"c1": {ID: "c1", UserID: "u1", Status: models.StatusResolved, UpdatedTime: newerUpdate},
		},
	}

	sum, err := newTestEngine(api, store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("upserts = %d, want exactly 1", len(store.upserts))
	}
	got := store.upserts[0]
	if got.Status != models.StatusResolved {
		t.Errorf("status = %q, want resolved", got.Status)
	}
	if !got.UpdatedTime.Equal(newerUpdate) {
		t.Errorf("updated_time = %v, want %v", got.UpdatedTime, newerUpdate)
	}
	if sum.Resolved != 1 || sum.Refreshed != 1 {
		t.Errorf("summary resolved=%d refreshed=%d, want 1/1", sum.Resolved, sum.Refreshed)
	}
}

func TestRun_UnchangedConversationNotUpserted(t *testing.T) {
	updated := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	store := &mockStore{
		unresolved: []models.Conversation{
			{ID: "c1", AccountID: "u1", Status: "open", UpdatedTime: updated},
		},
	}
	api := &mockAPI{
		details: map[string]*chatapi.Conversation{
			"c1": {ID: "c1", UserID: "u1", Status: "open", UpdatedTime: updated},
		},
	}

	sum, err := newTestEngine(api, store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.upserts) != 0 {
		t.Errorf("unchanged conversation was upserted %d times", len(store.upserts))
	}
	if sum.Unchanged != 1 {
		t.Errorf("unchanged = %d, want 1", sum.Unchanged)
	}
}

func TestRun_StatusChangeWithoutTimestampChangeStillRefreshes(t *testing.T) {
	updated := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	store := &mockStore{
		unresolved: []models.Conversation{
			{ID: "c1", AccountID: "u1", Status: "open", UpdatedTime: updated},
		},
	}
	api := &mockAPI{
		details: map[string]*chatapi.Conversation{
			"c1": {ID: "c1", UserID: "u1", Status: "waiting_on_customer", UpdatedTime: updated},
		},
	}

	sum, err := newTestEngine(api, store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Refreshed != 1 {
		t.Errorf("refreshed = %d, want 1", sum.Refreshed)
	}
	if sum.Resolved != 0 {
		t.Errorf("resolved = %d, want 0 (status changed but not terminal)", sum.Resolved)
	}
}

func TestRun_FetchFailureIsCountedNotFatal(t *testing.T) {
	store := &mockStore{
		unresolved: []models.Conversation{
			{ID: "bad", Status: "open"},
			{ID: "good", Status: "open", UpdatedTime: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)},
		},
	}
	api := &mockAPI{
		errs: map[string]error{"bad": errors.New("timeout")},
		details: map[string]*chatapi.Conversation{
			"good": {ID: "good", Status: models.StatusResolved, UpdatedTime: time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)},
		},
	}

	sum, err := newTestEngine(api, store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run must absorb per-conversation fetch failures: %v", err)
	}
	if sum.Errors != 1 {
		t.Errorf("errors = %d, want 1", sum.Errors)
	}
	if sum.Refreshed != 1 {
		t.Errorf("refreshed = %d, want 1", sum.Refreshed)
	}
}

func TestRun_ScanHorizonIsThirtyDays(t *testing.T) {
	store := &mockStore{}
	api := &mockAPI{}
	e := newTestEngine(api, store)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := now.Add(-30 * 24 * time.Hour)
	if !store.since.Equal(want) {
		t.Errorf("scan since = %v, want %v", store.since, want)
	}
}
