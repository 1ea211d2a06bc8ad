package runtime

import (
	"context"
	"conversation-engine/contract"
	"conversation-engine/domain"
	"conversation-engine/domain/conversation"
	"conversation-engine/domain/event"
	"conversation-engine/errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// StateReader exposes committed conversation states.
type StateReader interface {
	Snapshot(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error)
}

// Retransmission serves past events straight from the event log.
// Every request resolves to at most domain.MaxRetransmitEvents events and is
// clipped to what the requester may see.
type Retransmission struct {
	log    *slog.Logger
	states StateReader
	events contract.EventLog
}

func NewRetransmission(log *slog.Logger, states StateReader, events contract.EventLog) *Retransmission {
	return &Retransmission{log: log, states: states, events: events}
}

// Retransmit returns the events within [from, to].
func (r *Retransmission) Retransmit(ctx context.Context, actor string, id uuid.UUID, from, to int64) ([]event.Event, error) {
	if from < 1 || to < from {
		return nil, fmt.Errorf("%w: [%d, %d]", errors.ErrInvalidSequence, from, to)
	}
	if to-from+1 > domain.MaxRetransmitEvents {
		return nil, fmt.Errorf("%w: %d events requested", errors.ErrRangeTooLarge, to-from+1)
	}
	current, err := r.authorize(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if to > current.LastSequence {
		return nil, fmt.Errorf("%w: %d is beyond the last sequence %d", errors.ErrInvalidSequence, to, current.LastSequence)
	}
	return r.read(ctx, current, actor, from, to)
}

// RetransmitFrom returns up to count events starting at from.
func (r *Retransmission) RetransmitFrom(ctx context.Context, actor string, id uuid.UUID, from int64, count int) ([]event.Event, error) {
	if from < 1 || count < 1 {
		return nil, fmt.Errorf("%w: from %d count %d", errors.ErrInvalidSequence, from, count)
	}
	if count > domain.MaxRetransmitEvents {
		return nil, fmt.Errorf("%w: %d events requested", errors.ErrRangeTooLarge, count)
	}
	current, err := r.authorize(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if from > current.LastSequence {
		return nil, fmt.Errorf("%w: %d is beyond the last sequence %d", errors.ErrInvalidSequence, from, current.LastSequence)
	}
	return r.read(ctx, current, actor, from, min(from+int64(count)-1, current.LastSequence))
}

// RetransmitTo returns up to count events ending at to.
func (r *Retransmission) RetransmitTo(ctx context.Context, actor string, id uuid.UUID, to int64, count int) ([]event.Event, error) {
	if to < 1 || count < 1 {
		return nil, fmt.Errorf("%w: to %d count %d", errors.ErrInvalidSequence, to, count)
	}
	if count > domain.MaxRetransmitEvents {
		return nil, fmt.Errorf("%w: %d events requested", errors.ErrRangeTooLarge, count)
	}
	current, err := r.authorize(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if to > current.LastSequence {
		return nil, fmt.Errorf("%w: %d is beyond the last sequence %d", errors.ErrInvalidSequence, to, current.LastSequence)
	}
	return r.read(ctx, current, actor, max(1, to-int64(count)+1), to)
}

func (r *Retransmission) authorize(ctx context.Context, actor string, id uuid.UUID) (*conversation.Conversation, error) {
	current, err := r.states.Snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conversation.MayPerform(current, actor, conversation.Retransmit) {
		return nil, denied(actor, conversation.Retransmit)
	}
	return current, nil
}

// read clips [from, to] to the actor's visible windows and drops service events.
// An empty window is not an error.
func (r *Retransmission) read(ctx context.Context, current *conversation.Conversation, actor string, from, to int64) ([]event.Event, error) {
	visibleFrom, visibleTo, ok := current.VisibleRange(actor)
	from, to = max(from, visibleFrom), min(to, visibleTo)
	if !ok || from > to {
		return []event.Event{}, nil
	}

	events, err := r.events.Range(ctx, current.ID, from, to)
	if err != nil {
		r.log.Error("Event range read failed", "conversation_id", current.ID, "from", from, "to", to, "error", err)
		return nil, fmt.Errorf("%w: range: %v", errors.ErrInternal, err)
	}
	return lo.Filter(events, func(evt event.Event, _ int) bool {
		return evt.Type.Retransmittable() && current.CanSee(actor, evt.Sequence)
	}), nil
}
