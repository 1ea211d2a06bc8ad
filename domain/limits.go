package domain

import "time"

const (
	// MaxTextLength is counted in runes.
	MaxTextLength = 5000
	// MaxCustomDataSize caps both conversation custom data and message payloads, in bytes.
	MaxCustomDataSize = 5 * 1024
	MaxTitleLength    = 256
	// MaxRetransmitEvents is the largest number of events a single retransmission may resolve to.
	MaxRetransmitEvents = 100
	TypingCooldown      = 10 * time.Second
)

// ConversationConfig is the creation request of a conversation.
type ConversationConfig struct {
	Direct       bool             `json:"direct"`
	PublicJoin   bool             `json:"public_join"`
	Uber         bool             `json:"uber"`
	Title        string           `json:"title" validate:"max=256"`
	CustomData   []byte           `json:"custom_data" validate:"max=5120"`
	Participants []ParticipantRef `json:"participants" validate:"dive"`
}

// ConversationUpdate lists the only fields an owner may change after creation.
// A nil field is left untouched.
type ConversationUpdate struct {
	Title      *string `json:"title,omitempty" validate:"omitempty,max=256"`
	PublicJoin *bool   `json:"public_join,omitempty"`
	CustomData *[]byte `json:"custom_data,omitempty" validate:"omitempty,max=5120"`
}

func (u ConversationUpdate) Empty() bool {
	return u.Title == nil && u.PublicJoin == nil && u.CustomData == nil
}
