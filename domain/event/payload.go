package event

import "conversation-engine/domain"

type Created struct {
	Title        string                  `json:"title"`
	Direct       bool                    `json:"direct"`
	Uber         bool                    `json:"uber"`
	PublicJoin   bool                    `json:"public_join"`
	CustomData   []byte                  `json:"custom_data,omitempty"`
	Participants []domain.ParticipantRef `json:"participants"`
}

func (Created) EventType() Type { return CreatedType }

type ParticipantsAdded struct {
	Participants []domain.ParticipantRef `json:"participants"`
}

func (ParticipantsAdded) EventType() Type { return ParticipantsAddedType }

type ParticipantsEdited struct {
	Participants []domain.ParticipantRef `json:"participants"`
}

func (ParticipantsEdited) EventType() Type { return ParticipantsEditedType }

type ParticipantsRemoved struct {
	UserIDs []string `json:"user_ids"`
}

func (ParticipantsRemoved) EventType() Type { return ParticipantsRemovedType }

// Updated only carries the fields that changed. A nil field is left untouched.
type Updated struct {
	Title      *string `json:"title,omitempty"`
	PublicJoin *bool   `json:"public_join,omitempty"`
	CustomData *[]byte `json:"custom_data,omitempty"`
}

func (Updated) EventType() Type { return UpdatedType }

type Joined struct{}

func (Joined) EventType() Type { return JoinedType }

type Left struct{}

func (Left) EventType() Type { return LeftType }

// MessageSent carries a text, a JSON payload or both. Payload numbers are
// float64 once sequenced, as they are when read back from the log.
type MessageSent struct {
	Text    string         `json:"text,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (MessageSent) EventType() Type { return MessageSentType }

type Typing struct{}

func (Typing) EventType() Type { return TypingType }

type Read struct {
	Sequence int64 `json:"sequence"`
}

func (Read) EventType() Type { return ReadType }
