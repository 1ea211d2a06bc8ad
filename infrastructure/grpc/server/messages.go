package server

import (
	"conversation-engine/domain"
	"conversation-engine/domain/conversation"
	"conversation-engine/domain/event"
	"conversation-engine/domain/search"
	"conversation-engine/errors"
	"conversation-engine/internal/pbstruct"
	"conversation-engine/services"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"google.golang.org/protobuf/types/known/structpb"
)

type conversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

type participantsRequest struct {
	ConversationID string                  `json:"conversation_id"`
	Participants   []domain.ParticipantRef `json:"participants"`
	UserIDs        []string                `json:"user_ids"`
}

type updateRequest struct {
	ConversationID string `json:"conversation_id"`
	domain.ConversationUpdate
}

type messageRequest struct {
	ConversationID string         `json:"conversation_id"`
	Text           string         `json:"text"`
	Payload        map[string]any `json:"payload"`
}

type readRequest struct {
	ConversationID string `json:"conversation_id"`
	Sequence       int64  `json:"sequence"`
}

// retransmitRequest takes one of three shapes: from+to, from+count or to+count.
type retransmitRequest struct {
	ConversationID string `json:"conversation_id"`
	From           *int64 `json:"from,omitempty"`
	To             *int64 `json:"to,omitempty"`
	Count          *int   `json:"count,omitempty"`
}

type searchRequest struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
}

type eventReply struct {
	Event *event.Record `json:"event"`
}

type eventsReply struct {
	Events []event.Record `json:"events"`
}

type participantReply struct {
	UserID   string       `json:"user_id"`
	Flags    domain.Flags `json:"flags"`
	JoinedAt int64        `json:"joined_at"`
	LeftAt   int64        `json:"left_at,omitempty"`
	LastRead int64        `json:"last_read"`
}

type conversationReply struct {
	ID           string             `json:"id"`
	Direct       bool               `json:"direct"`
	Uber         bool               `json:"uber"`
	PublicJoin   bool               `json:"public_join"`
	Title        string             `json:"title"`
	CustomData   []byte             `json:"custom_data,omitempty"`
	CreatedAt    int64              `json:"created_at"`
	LastUpdate   int64              `json:"last_update"`
	LastSequence int64              `json:"last_sequence"`
	Unread       int64              `json:"unread"`
	Participants []participantReply `json:"participants"`
}

type summaryReply struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	LastSequence int64  `json:"last_sequence"`
	Unread       int64  `json:"unread"`
}

type listReply struct {
	Conversations []summaryReply `json:"conversations"`
}

type searchReply struct {
	Hits []search.Hit `json:"hits"`
}

func decode[T any](in *structpb.Struct) (T, error) {
	var v T
	if err := pbstruct.Decode(in, &v); err != nil {
		return v, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	return v, nil
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: conversation_id: %v", errors.ErrInvalidRequest, err)
	}
	return id, nil
}

func toEventReply(evt *event.Event) (eventReply, error) {
	if evt == nil {
		return eventReply{}, nil
	}
	record, err := event.ToRecord(*evt)
	if err != nil {
		return eventReply{}, err
	}
	return eventReply{Event: &record}, nil
}

func toEventsReply(events []event.Event) (eventsReply, error) {
	records := make([]event.Record, 0, len(events))
	for _, evt := range events {
		record, err := event.ToRecord(evt)
		if err != nil {
			return eventsReply{}, err
		}
		records = append(records, record)
	}
	return eventsReply{Events: records}, nil
}

func toConversationReply(c *conversation.Conversation, actor string) conversationReply {
	return conversationReply{
		ID:           c.ID.String(),
		Direct:       c.Direct,
		Uber:         c.Uber,
		PublicJoin:   c.PublicJoin,
		Title:        c.Title,
		CustomData:   c.CustomData,
		CreatedAt:    c.CreatedAt.Unix(),
		LastUpdate:   c.LastUpdate.Unix(),
		LastSequence: c.LastSequence,
		Unread:       c.Unread(actor),
		Participants: lo.Map(c.Participants.Snapshot(), func(p conversation.Participant, _ int) participantReply {
			return participantReply{UserID: p.UserID, Flags: p.Flags, JoinedAt: p.JoinedAt, LeftAt: p.LeftAt, LastRead: p.LastRead}
		}),
	}
}

func toListReply(summaries []services.Summary) listReply {
	return listReply{Conversations: lo.Map(summaries, func(s services.Summary, _ int) summaryReply {
		return summaryReply{ID: s.ID.String(), Title: s.Title, LastSequence: s.LastSequence, Unread: s.Unread}
	})}
}
