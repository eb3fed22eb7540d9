package database

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/convoapp/convo/internal/types"
)

type MockConvoRepository struct {
	mock.Mock
}

func (m *MockConvoRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockConvoRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockConvoRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockConvoRepository) GetUserById(userId string) (User, error) {
	args := m.Called(userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockConvoRepository) GetUserByUsername(username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockConvoRepository) ListUsers() ([]User, error) {
	args := m.Called()
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockConvoRepository) SetOnlineStatus(userId string, online bool) (User, error) {
	args := m.Called(userId, online)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockConvoRepository) SetLastOnline(userId string, lastOnline time.Time) (User, error) {
	args := m.Called(userId, lastOnline)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockConvoRepository) CreateConversation(params CreateConversationParams) (Conversation, error) {
	args := m.Called(params)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockConvoRepository) GetConversationById(conversationId string) (Conversation, error) {
	args := m.Called(conversationId)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockConvoRepository) GetConversationByParticipants(participantIds []string) (Conversation, error) {
	args := m.Called(participantIds)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockConvoRepository) ListConversationsByParticipant(userId string) ([]Conversation, error) {
	args := m.Called(userId)
	return args.Get(0).([]Conversation), args.Error(1)
}
func (m *MockConvoRepository) IsParticipant(conversationId, userId string) (bool, error) {
	args := m.Called(conversationId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockConvoRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockConvoRepository) ListMessagesByConversation(conversationId string) ([]Message, error) {
	args := m.Called(conversationId)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockConvoRepository) UpdateLastMessage(conversationId, messageId string) (Conversation, error) {
	args := m.Called(conversationId, messageId)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockConvoRepository) AddPushRegistration(userId string, reg types.PushRegistration) error {
	args := m.Called(userId, reg)
	return args.Error(0)
}
func (m *MockConvoRepository) RemovePushRegistration(userId, endpoint string) error {
	args := m.Called(userId, endpoint)
	return args.Error(0)
}
func (m *MockConvoRepository) ListPushRegistrations(userId string) ([]types.PushRegistration, error) {
	args := m.Called(userId)
	return args.Get(0).([]types.PushRegistration), args.Error(1)
}
