package database

import (
	"github.com/convoapp/convo/internal/types"
)

// Snapshot converts the row into the wire-level user representation.
func (u User) Snapshot() types.User {
	return types.User{
		Id:          u.Id,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
		IsOnline:    u.IsOnline,
		LastOnline:  u.LastOnline,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func (c Conversation) Snapshot() types.Conversation {
	participants := make([]types.User, len(c.Participants))
	for i, p := range c.Participants {
		participants[i] = p.Snapshot()
	}

	snap := types.Conversation{
		Id:           c.Id,
		Name:         c.Name,
		Type:         c.Type,
		Participants: participants,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if c.LastMessageId.Valid {
		snap.LastMessageId = c.LastMessageId.String
	}

	return snap
}

func (m Message) Snapshot() types.Message {
	return types.Message{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		SenderId:       m.SenderId,
		ContentType:    m.ContentType,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}
