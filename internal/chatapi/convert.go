package chatapi

import (
	"encoding/json"
	"fmt"

	"github.com/Sinisterchilll/cs-analytics/internal/content"
	"github.com/Sinisterchilll/cs-analytics/internal/models"
)

// ToAccount maps a wire user to its stored form.
func ToAccount(u User) models.Account {
	return models.Account{
		ID:          u.ID,
		Phone:       u.Phone,
		CreatedTime: u.CreatedTime,
	}
}

// ToConversation maps wire conversation detail to its stored form.
func ToConversation(c Conversation) models.Conversation {
	var props map[string]any
	if len(c.Properties) > 0 {
		// Properties are free-form; a malformed blob is dropped, not fatal.
		_ = json.Unmarshal(c.Properties, &props)
	}
	return models.Conversation{
		ID:          c.ID,
		AccountID:   c.UserID,
		Status:      c.Status,
		ChannelID:   c.ChannelID,
		AssigneeID:  c.AssignedAgent,
		BotAssigned: c.AssignedBot != "",
		CreatedTime: c.CreatedTime,
		UpdatedTime: c.UpdatedTime,
		Properties:  props,
	}
}

// ToMessage maps a wire message to its stored form, normalizing content
// and synthesizing an ID from the conversation and timestamp when the
// remote one is absent.
func ToMessage(m Message) models.Message {
	id := m.ID
	if id == "" {
		id = fmt.Sprintf("%s-%d", m.ConversationID, m.CreatedTime.UnixMilli())
	}
	return models.Message{
		ID:             id,
		ConversationID: m.ConversationID,
		Role:           m.ActorType,
		Content:        content.Normalize(m.Parts),
		CreatedTime:    m.CreatedTime,
		Rating:         m.Rating,
	}
}
