package database

import (
	"database/sql"
	"time"
)

type User struct {
	Id           string
	Username     string
	DisplayName  string
	Avatar       string
	PasswordHash string
	IsOnline     bool
	LastOnline   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Conversation struct {
	Id            string
	Name          string
	Type          string
	LastMessageId sql.NullString
	Participants  []User
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Message struct {
	Id             string
	ConversationId string
	SenderId       string
	ContentType    string
	Content        string
	CreatedAt      time.Time
}

type PushRegistration struct {
	UserId         string
	Endpoint       string
	ExpirationTime sql.NullTime
	P256dhKey      string
	AuthSecret     string
	CreatedAt      time.Time
}

type CreateAccountParams struct {
	Id           string
	Username     string
	DisplayName  string
	Avatar       string
	PasswordHash string
}

type UpdateAccountParams struct {
	UserId       string
	Username     string
	DisplayName  string
	Avatar       string
	PasswordHash string
}

type CreateConversationParams struct {
	Id             string
	Name           string
	Type           string
	ParticipantIds []string
}

type CreateMessageParams struct {
	Id             string
	ConversationId string
	SenderId       string
	ContentType    string
	Content        string
}
