// Package domain contains core concepts of the conversation system.
// This file defines participant references and their permission flags.
// No runtime, network, or storage logic should be added here.
package domain

// Flags are the capabilities a participant holds inside one conversation.
type Flags struct {
	CanWrite              bool `json:"can_write"`
	CanManageParticipants bool `json:"can_manage_participants"`
	IsOwner               bool `json:"is_owner"`
}

// OwnerFlags are granted to the creator of a conversation.
var OwnerFlags = Flags{CanWrite: true, CanManageParticipants: true, IsOwner: true}

// MemberFlags are granted to users joining a public conversation by themselves.
var MemberFlags = Flags{CanWrite: true}

// ParticipantRef is the boundary shape used to add or edit participants.
type ParticipantRef struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	Flags  Flags  `json:"flags"`
}
