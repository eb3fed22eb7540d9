package bus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/convoapp/convo/internal/types"
)

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) IsParticipant(conversationId, userId string) (bool, error) {
	args := m.Called(conversationId, userId)
	return args.Bool(0), args.Error(1)
}

func TestConversationPredicate(t *testing.T) {
	conv := types.Conversation{Id: "c1", Type: types.ConversationTypePrivate}
	ev := Event{Topic: ConversationCreated, Payload: conv, PublishedAt: time.Now()}

	t.Run("participant receives", func(t *testing.T) {
		oracle := &mockOracle{}
		defer oracle.AssertExpectations(t)
		oracle.On("IsParticipant", "c1", "u1").Return(true, nil)

		pred := ConversationPredicate(oracle)
		assert.True(t, pred(ev, SubscriberContext{UserId: "u1"}))
	})

	t.Run("non-participant is filtered", func(t *testing.T) {
		oracle := &mockOracle{}
		defer oracle.AssertExpectations(t)
		oracle.On("IsParticipant", "c1", "u2").Return(false, nil)

		pred := ConversationPredicate(oracle)
		assert.False(t, pred(ev, SubscriberContext{UserId: "u2"}))
	})

	t.Run("oracle failure fails closed", func(t *testing.T) {
		oracle := &mockOracle{}
		defer oracle.AssertExpectations(t)
		oracle.On("IsParticipant", "c1", "u1").Return(false, errors.New("conversation deleted"))

		pred := ConversationPredicate(oracle)
		assert.False(t, pred(ev, SubscriberContext{UserId: "u1"}))
	})

	t.Run("unexpected payload type is filtered", func(t *testing.T) {
		oracle := &mockOracle{}
		pred := ConversationPredicate(oracle)
		assert.False(t, pred(Event{Topic: ConversationCreated, Payload: "junk"}, SubscriberContext{UserId: "u1"}))
		oracle.AssertNotCalled(t, "IsParticipant", mock.Anything, mock.Anything)
	})
}

func TestMessagePredicate(t *testing.T) {
	msg := types.Message{Id: "m1", ConversationId: "c1", SenderId: "u2"}
	ev := Event{Topic: MessageCreated, Payload: msg, PublishedAt: time.Now()}

	t.Run("participant subscribed to the conversation receives", func(t *testing.T) {
		oracle := &mockOracle{}
		defer oracle.AssertExpectations(t)
		oracle.On("IsParticipant", "c1", "u1").Return(true, nil)

		pred := MessagePredicate(oracle)
		assert.True(t, pred(ev, SubscriberContext{UserId: "u1", ConversationId: "c1"}))
	})

	t.Run("conversation mismatch skips the oracle", func(t *testing.T) {
		oracle := &mockOracle{}
		pred := MessagePredicate(oracle)

		assert.False(t, pred(ev, SubscriberContext{UserId: "u1", ConversationId: "c2"}))
		oracle.AssertNotCalled(t, "IsParticipant", mock.Anything, mock.Anything)
	})

	t.Run("non-participant is filtered even with matching conversation", func(t *testing.T) {
		oracle := &mockOracle{}
		defer oracle.AssertExpectations(t)
		oracle.On("IsParticipant", "c1", "u3").Return(false, nil)

		pred := MessagePredicate(oracle)
		assert.False(t, pred(ev, SubscriberContext{UserId: "u3", ConversationId: "c1"}))
	})

	t.Run("oracle failure fails closed", func(t *testing.T) {
		oracle := &mockOracle{}
		defer oracle.AssertExpectations(t)
		oracle.On("IsParticipant", "c1", "u1").Return(false, errors.New("store unavailable"))

		pred := MessagePredicate(oracle)
		assert.False(t, pred(ev, SubscriberContext{UserId: "u1", ConversationId: "c1"}))
	})
}

func TestUserPredicate(t *testing.T) {
	ev := Event{Topic: UserUpdated, Payload: types.User{Id: "u1", IsOnline: true}}

	pred := UserPredicate()
	assert.True(t, pred(ev, SubscriberContext{UserId: "u2", WatchedUserId: "u1"}))
	assert.False(t, pred(ev, SubscriberContext{UserId: "u2", WatchedUserId: "u3"}))
	assert.False(t, pred(Event{Topic: UserUpdated, Payload: 42}, SubscriberContext{WatchedUserId: "u1"}))
}

func TestPredicateForTopic(t *testing.T) {
	oracle := &mockOracle{}

	for _, topic := range []Topic{ConversationCreated, ConversationUpdated, MessageCreated, UserUpdated} {
		pred, err := PredicateForTopic(topic, oracle)
		assert.NoError(t, err, "topic %s", topic)
		assert.NotNil(t, pred, "topic %s", topic)
	}

	_, err := PredicateForTopic(Topic(99), oracle)
	assert.Error(t, err)
}
