package chatapi

import (
	"encoding/json"
	"time"
)

// User is a chat end-user as returned by the API.
type User struct {
	ID          string    `json:"id"`
	Phone       string    `json:"phone"`
	CreatedTime time.Time `json:"created_time"`
}

// ConversationRef is the summary form returned by the per-user
// conversation listing. Full state requires GetConversation.
type ConversationRef struct {
	ID string `json:"id"`
}

// Conversation is the full detail of a support thread.
type Conversation struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Status        string          `json:"status"`
	ChannelID     string          `json:"channel_id"`
	AssignedAgent string          `json:"assigned_agent_id"`
	AssignedBot   string          `json:"assigned_bot_id"`
	CreatedTime   time.Time       `json:"created_time"`
	UpdatedTime   time.Time       `json:"updated_time"`
	Properties    json.RawMessage `json:"properties"`
}

// Message is one chat turn. Parts is left raw for the content normalizer;
// the API emits several shapes and the client does not interpret them.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	ActorType      string          `json:"actor_type"`
	Parts          json.RawMessage `json:"message_parts"`
	CreatedTime    time.Time       `json:"created_time"`
	Rating         *int            `json:"rating,omitempty"`
}
