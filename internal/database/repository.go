package database

import (
	"time"

	"github.com/convoapp/convo/internal/types"
)

type ConvoRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	UpdateAccount(params UpdateAccountParams) (User, error)
	GetUserById(userId string) (User, error)
	GetUserByUsername(username string) (User, error)
	ListUsers() ([]User, error)
	SetOnlineStatus(userId string, online bool) (User, error)
	SetLastOnline(userId string, lastOnline time.Time) (User, error)
	CreateConversation(params CreateConversationParams) (Conversation, error)
	GetConversationById(conversationId string) (Conversation, error)
	GetConversationByParticipants(participantIds []string) (Conversation, error)
	ListConversationsByParticipant(userId string) ([]Conversation, error)
	IsParticipant(conversationId, userId string) (bool, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	ListMessagesByConversation(conversationId string) ([]Message, error)
	UpdateLastMessage(conversationId, messageId string) (Conversation, error)
	AddPushRegistration(userId string, reg types.PushRegistration) error
	RemovePushRegistration(userId, endpoint string) error
	ListPushRegistrations(userId string) ([]types.PushRegistration, error)
}
