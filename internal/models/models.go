// Package models defines the persisted entities shared by the sync,
// backfill, reconciliation and classification engines.
package models

import "time"

// Actor roles as stored on a message. The set is open: the chat API may
// introduce new actor types, and unknown values are stored as-is.
const (
	RoleUser   = "user"
	RoleBot    = "bot"
	RoleAgent  = "agent"
	RoleSystem = "system"
)

// StatusResolved is the one distinguished conversation status. Everything
// else counts as unresolved.
const StatusResolved = "resolved"

// Account is the external identity of a chat end-user.
type Account struct {
	ID          string
	Phone       string
	CreatedTime time.Time
}

// Conversation is one support thread owned by an account.
type Conversation struct {
	ID          string
	AccountID   string
	Status      string
	ChannelID   string
	AssigneeID  string
	BotAssigned bool
	CreatedTime time.Time
	UpdatedTime time.Time
	Properties  map[string]any
}

// Resolved reports whether the conversation has reached its terminal status.
func (c Conversation) Resolved() bool {
	return c.Status == StatusResolved
}

// Message is a single chat turn. Content is always normalized plain text.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CreatedTime    time.Time
	Rating         *int
}

// MessageAnalysis is the classification result for one message.
// At most one row exists per message ID.
type MessageAnalysis struct {
	MessageID  string
	Language   string
	Category   string
	Tag        string
	Confidence float64
	Model      string
	AnalyzedAt time.Time
}

// FailureKind is the coarse classification of a failed classification call.
type FailureKind string

const (
	FailureRateLimit   FailureKind = "rate-limit"
	FailureServerError FailureKind = "server-error"
	FailureParseError  FailureKind = "parse-error"
	FailureUnknown     FailureKind = "unknown"
)

// MaxAttempts is the poison-pill cutoff: a message that has failed
// classification this many times is permanently excluded from retry.
const MaxAttempts = 3

// AnalysisFailure is one retry-ledger entry, at most one per message ID.
type AnalysisFailure struct {
	MessageID      string
	ConversationID string
	LastError      string
	Kind           FailureKind
	Attempts       int
	LastAttemptAt  time.Time
	NextRetryAt    time.Time
}
