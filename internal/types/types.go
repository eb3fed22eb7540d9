package types

import (
	"time"
)

const (
	ConversationTypePrivate = "private"
	ConversationTypeGroup   = "group"
)

const (
	ContentTypeText  = "text"
	ContentTypeImage = "image"
)

type User struct {
	Id          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Avatar      string    `json:"avatar,omitempty"`
	IsOnline    bool      `json:"is_online"`
	LastOnline  time.Time `json:"last_online,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

type Conversation struct {
	Id            string    `json:"id"`
	Name          string    `json:"name,omitempty"`
	Type          string    `json:"type"`
	Participants  []User    `json:"participants"`
	LastMessageId string    `json:"last_message_id,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// ParticipantIds returns the ids of all participants of the conversation.
func (c Conversation) ParticipantIds() []string {
	ids := make([]string, len(c.Participants))
	for i, p := range c.Participants {
		ids[i] = p.Id
	}
	return ids
}

type Message struct {
	Id             string    `json:"id"`
	ConversationId string    `json:"conversation_id"`
	SenderId       string    `json:"sender_id"`
	ContentType    string    `json:"content_type"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// PushRegistration is a browser push endpoint owned by a user. A user may
// have any number of registrations, keyed by endpoint. Registering the same
// endpoint twice is a no-op and removal is idempotent.
type PushRegistration struct {
	Endpoint       string     `json:"endpoint"`
	ExpirationTime *time.Time `json:"expiration_time,omitempty"`
	P256dhKey      string     `json:"p256dh_key"`
	AuthSecret     string     `json:"auth_secret"`
}
