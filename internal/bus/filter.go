package bus

import (
	"fmt"

	"github.com/convoapp/convo/internal/types"
)

// ParticipantOracle answers whether a user belongs to a conversation. Lookup
// failures of any kind are treated as "no" by the predicates below: a
// subscriber whose authorization cannot be established observes nothing.
type ParticipantOracle interface {
	IsParticipant(conversationId, userId string) (bool, error)
}

// ConversationPredicate authorizes conversation_created and
// conversation_updated events: the subscriber must be a participant of the
// conversation in the payload.
func ConversationPredicate(oracle ParticipantOracle) Predicate {
	return func(ev Event, sub SubscriberContext) bool {
		conv, ok := ev.Payload.(types.Conversation)
		if !ok {
			return false
		}

		isParticipant, err := oracle.IsParticipant(conv.Id, sub.UserId)
		if err != nil {
			return false
		}

		return isParticipant
	}
}

// MessagePredicate authorizes message_created events: the message must belong
// to the conversation the subscriber asked for, and the subscriber must be a
// participant of it. The conversation id comparison runs first so a mismatch
// never costs a store round-trip.
func MessagePredicate(oracle ParticipantOracle) Predicate {
	return func(ev Event, sub SubscriberContext) bool {
		msg, ok := ev.Payload.(types.Message)
		if !ok {
			return false
		}

		if sub.ConversationId != msg.ConversationId {
			return false
		}

		isParticipant, err := oracle.IsParticipant(msg.ConversationId, sub.UserId)
		if err != nil {
			return false
		}

		return isParticipant
	}
}

// UserPredicate matches user_updated events for the watched user. Pure
// equality, no store call.
func UserPredicate() Predicate {
	return func(ev Event, sub SubscriberContext) bool {
		user, ok := ev.Payload.(types.User)
		if !ok {
			return false
		}

		return sub.WatchedUserId == user.Id
	}
}

// PredicateForTopic returns the canonical authorization predicate for a
// topic.
func PredicateForTopic(topic Topic, oracle ParticipantOracle) (Predicate, error) {
	switch topic {
	case ConversationCreated, ConversationUpdated:
		return ConversationPredicate(oracle), nil
	case MessageCreated:
		return MessagePredicate(oracle), nil
	case UserUpdated:
		return UserPredicate(), nil
	default:
		return nil, fmt.Errorf("no predicate for topic %s", topic)
	}
}
