package services

import (
	"context"
	"conversation-engine/domain"
	"conversation-engine/domain/conversation"
	"conversation-engine/domain/event"
	"conversation-engine/domain/search"
	"conversation-engine/errors"
	"conversation-engine/runtime"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

type IConversationService interface {
	Create(ctx context.Context, actor string, config domain.ConversationConfig) (event.Event, error)
	AddParticipants(ctx context.Context, actor string, id uuid.UUID, refs []domain.ParticipantRef) (*event.Event, error)
	EditParticipants(ctx context.Context, actor string, id uuid.UUID, refs []domain.ParticipantRef) (*event.Event, error)
	RemoveParticipants(ctx context.Context, actor string, id uuid.UUID, userIDs []string) (*event.Event, error)
	Update(ctx context.Context, actor string, id uuid.UUID, update domain.ConversationUpdate) (*event.Event, error)
	Join(ctx context.Context, actor string, id uuid.UUID) (*event.Event, error)
	Leave(ctx context.Context, actor string, id uuid.UUID) (*event.Event, error)
	SendMessage(ctx context.Context, actor string, id uuid.UUID, text string, payload map[string]any) (event.Event, error)
	MarkAsRead(ctx context.Context, actor string, id uuid.UUID, sequence int64) (event.Event, error)
	Typing(ctx context.Context, actor string, id uuid.UUID) (event.Event, error)
	Retransmit(ctx context.Context, actor string, id uuid.UUID, from, to int64) ([]event.Event, error)
	RetransmitFrom(ctx context.Context, actor string, id uuid.UUID, from int64, count int) ([]event.Event, error)
	RetransmitTo(ctx context.Context, actor string, id uuid.UUID, to int64, count int) ([]event.Event, error)
	Get(ctx context.Context, actor string, id uuid.UUID) (*conversation.Conversation, error)
	List(ctx context.Context, actor string) ([]Summary, error)
	Search(ctx context.Context, actor string, id uuid.UUID, input string) ([]search.Hit, error)
}

// Summary is one line of a user's conversation list.
type Summary struct {
	ID           uuid.UUID
	Title        string
	LastSequence int64
	Unread       int64
}

// ConversationService checks request shapes before they reach the engine,
// so a malformed request never takes a conversation reservation.
type ConversationService struct {
	engine         *runtime.Engine
	retransmission *runtime.Retransmission
}

func NewConversationService(engine *runtime.Engine, retransmission *runtime.Retransmission) *ConversationService {
	return &ConversationService{engine: engine, retransmission: retransmission}
}

func (s *ConversationService) Create(ctx context.Context, actor string, config domain.ConversationConfig) (event.Event, error) {
	if err := validate.Struct(config); err != nil {
		return event.Event{}, invalid(err)
	}
	return s.engine.Create(ctx, actor, config)
}

func (s *ConversationService) AddParticipants(ctx context.Context, actor string, id uuid.UUID, refs []domain.ParticipantRef) (*event.Event, error) {
	if err := validateRefs(refs); err != nil {
		return nil, err
	}
	return s.engine.AddParticipants(ctx, actor, id, refs)
}

func (s *ConversationService) EditParticipants(ctx context.Context, actor string, id uuid.UUID, refs []domain.ParticipantRef) (*event.Event, error) {
	if err := validateRefs(refs); err != nil {
		return nil, err
	}
	return s.engine.EditParticipants(ctx, actor, id, refs)
}

func (s *ConversationService) RemoveParticipants(ctx context.Context, actor string, id uuid.UUID, userIDs []string) (*event.Event, error) {
	if err := validate.Var(userIDs, "required,dive,required,max=128"); err != nil {
		return nil, invalid(err)
	}
	return s.engine.RemoveParticipants(ctx, actor, id, userIDs)
}

func (s *ConversationService) Update(ctx context.Context, actor string, id uuid.UUID, update domain.ConversationUpdate) (*event.Event, error) {
	if err := validate.Struct(update); err != nil {
		return nil, invalid(err)
	}
	return s.engine.Update(ctx, actor, id, update)
}

func (s *ConversationService) Join(ctx context.Context, actor string, id uuid.UUID) (*event.Event, error) {
	return s.engine.Join(ctx, actor, id)
}

func (s *ConversationService) Leave(ctx context.Context, actor string, id uuid.UUID) (*event.Event, error) {
	return s.engine.Leave(ctx, actor, id)
}

// SendMessage caps the encoded payload like conversation custom data.
func (s *ConversationService) SendMessage(ctx context.Context, actor string, id uuid.UUID, text string, payload map[string]any) (event.Event, error) {
	if len(payload) > 0 {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return event.Event{}, invalid(err)
		}
		if len(bytes) > domain.MaxCustomDataSize {
			return event.Event{}, fmt.Errorf("%w: payload exceeds %d bytes", errors.ErrInvalidRequest, domain.MaxCustomDataSize)
		}
	}
	return s.engine.SendMessage(ctx, actor, id, text, payload)
}

func (s *ConversationService) MarkAsRead(ctx context.Context, actor string, id uuid.UUID, sequence int64) (event.Event, error) {
	return s.engine.MarkAsRead(ctx, actor, id, sequence)
}

func (s *ConversationService) Typing(ctx context.Context, actor string, id uuid.UUID) (event.Event, error) {
	return s.engine.Typing(ctx, actor, id)
}

func (s *ConversationService) Retransmit(ctx context.Context, actor string, id uuid.UUID, from, to int64) ([]event.Event, error) {
	return s.retransmission.Retransmit(ctx, actor, id, from, to)
}

func (s *ConversationService) RetransmitFrom(ctx context.Context, actor string, id uuid.UUID, from int64, count int) ([]event.Event, error) {
	return s.retransmission.RetransmitFrom(ctx, actor, id, from, count)
}

func (s *ConversationService) RetransmitTo(ctx context.Context, actor string, id uuid.UUID, to int64, count int) ([]event.Event, error) {
	return s.retransmission.RetransmitTo(ctx, actor, id, to, count)
}

func (s *ConversationService) Get(ctx context.Context, actor string, id uuid.UUID) (*conversation.Conversation, error) {
	return s.engine.Get(ctx, actor, id)
}

// List returns every conversation the user is currently a member of.
func (s *ConversationService) List(ctx context.Context, actor string) ([]Summary, error) {
	ids := s.engine.ConversationsOf(actor)
	summaries := make([]Summary, 0, len(ids))
	for _, id := range ids {
		c, err := s.engine.Get(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, Summary{
			ID:           c.ID,
			Title:        c.Title,
			LastSequence: c.LastSequence,
			Unread:       c.Unread(actor),
		})
	}
	return summaries, nil
}

// Search parses a raw query such as "deploy friday --actor bob --limit 5".
func (s *ConversationService) Search(ctx context.Context, actor string, id uuid.UUID, input string) ([]search.Hit, error) {
	query := search.Parse(input)
	if query.Terms == "" {
		return nil, fmt.Errorf("%w: empty search", errors.ErrInvalidRequest)
	}
	if query.Limit > domain.MaxRetransmitEvents {
		query.Limit = domain.MaxRetransmitEvents
	}
	return s.engine.SearchMessages(ctx, actor, id, query)
}

func validateRefs(refs []domain.ParticipantRef) error {
	if len(refs) == 0 {
		return fmt.Errorf("%w: no participant", errors.ErrInvalidRequest)
	}
	if err := validate.Var(refs, "dive"); err != nil {
		return invalid(err)
	}
	return nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
}
