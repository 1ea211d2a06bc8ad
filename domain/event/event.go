// Package event defines the conversation event union: a shared envelope
// (conversation, sequence, timestamp, actor) and one payload per event type.
package event

import (
	"github.com/google/uuid"
)

type Type string

const (
	CreatedType             Type = "created"
	ParticipantsAddedType   Type = "participantsAdded"
	ParticipantsEditedType  Type = "participantsEdited"
	ParticipantsRemovedType Type = "participantsRemoved"
	UpdatedType             Type = "updated"
	JoinedType              Type = "joined"
	LeftType                Type = "left"
	MessageSentType         Type = "messageSent"
	TypingType              Type = "typing"
	ReadType                Type = "read"
)

// Class groups event types by how the engine treats them.
type Class int

const (
	// ConversationClass events change conversation state. Sequenced, durable, retransmittable.
	ConversationClass Class = iota
	// MessageClass events carry user messages. Sequenced, durable, retransmittable.
	MessageClass
	// ServiceClass events are ephemeral notifications. Never sequenced nor stored.
	ServiceClass
)

func (t Type) Class() Class {
	switch t {
	case MessageSentType:
		return MessageClass
	case TypingType, ReadType:
		return ServiceClass
	default:
		return ConversationClass
	}
}

// Sequenced reports whether events of this type consume a conversation sequence number.
func (t Type) Sequenced() bool {
	return t.Class() != ServiceClass
}

func (t Type) Retransmittable() bool {
	return t.Sequenced()
}

func (t Type) Valid() bool {
	switch t {
	case CreatedType, ParticipantsAddedType, ParticipantsEditedType, ParticipantsRemovedType,
		UpdatedType, JoinedType, LeftType, MessageSentType, TypingType, ReadType:
		return true
	}
	return false
}

// Event is the envelope shared by every conversation event.
// Sequence is zero for service events. Timestamp is in Unix seconds.
type Event struct {
	Type           Type
	ConversationID uuid.UUID
	Sequence       int64
	Timestamp      int64
	Actor          string
	Payload        Payload
}

// Payload is implemented by every per-type payload.
type Payload interface {
	EventType() Type
}

// New builds an unsequenced event whose type is taken from its payload.
func New(conversationID uuid.UUID, actor string, at int64, payload Payload) Event {
	return Event{
		Type:           payload.EventType(),
		ConversationID: conversationID,
		Timestamp:      at,
		Actor:          actor,
		Payload:        payload,
	}
}
