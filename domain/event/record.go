package event

import (
	"conversation-engine/errors"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Record is the flat, encoding-friendly shape of an Event used on disk and on the wire.
type Record struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Sequence       int64           `json:"sequence"`
	Timestamp      int64           `json:"timestamp"`
	Actor          string          `json:"actor"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

func ToRecord(evt Event) (Record, error) {
	record := Record{
		Type:           string(evt.Type),
		ConversationID: evt.ConversationID.String(),
		Sequence:       evt.Sequence,
		Timestamp:      evt.Timestamp,
		Actor:          evt.Actor,
	}
	if evt.Payload != nil {
		bytes, err := json.Marshal(evt.Payload)
		if err != nil {
			return Record{}, fmt.Errorf("marshal %s payload: %w", evt.Type, err)
		}
		record.Payload = bytes
	}
	return record, nil
}

func FromRecord(record Record) (Event, error) {
	t := Type(record.Type)
	if !t.Valid() {
		return Event{}, fmt.Errorf("%w: unknown event type %q", errors.ErrInvalidPayload, record.Type)
	}
	id, err := uuid.Parse(record.ConversationID)
	if err != nil {
		return Event{}, fmt.Errorf("%w: conversation id: %v", errors.ErrInvalidPayload, err)
	}
	payload, err := decodePayload(t, record.Payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:           t,
		ConversationID: id,
		Sequence:       record.Sequence,
		Timestamp:      record.Timestamp,
		Actor:          record.Actor,
		Payload:        payload,
	}, nil
}

func decodePayload(t Type, raw json.RawMessage) (Payload, error) {
	var payload Payload
	switch t {
	case CreatedType:
		payload = &Created{}
	case ParticipantsAddedType:
		payload = &ParticipantsAdded{}
	case ParticipantsEditedType:
		payload = &ParticipantsEdited{}
	case ParticipantsRemovedType:
		payload = &ParticipantsRemoved{}
	case UpdatedType:
		payload = &Updated{}
	case JoinedType:
		return Joined{}, nil
	case LeftType:
		return Left{}, nil
	case MessageSentType:
		payload = &MessageSent{}
	case TypingType:
		return Typing{}, nil
	case ReadType:
		payload = &Read{}
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, payload); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", errors.ErrInvalidPayload, t, err)
		}
	}
	return deref(payload), nil
}

// deref keeps payloads as values so that type switches never have to handle pointers.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *Created:
		return *v
	case *ParticipantsAdded:
		return *v
	case *ParticipantsEdited:
		return *v
	case *ParticipantsRemoved:
		return *v
	case *Updated:
		return *v
	case *MessageSent:
		return *v
	case *Read:
		return *v
	}
	return p
}
