// Package conversation holds the conversation aggregate: its flags, participants
// and the fold that rebuilds it from its ordered event log.
package conversation

import (
	"conversation-engine/domain"
	"conversation-engine/domain/event"
	"conversation-engine/errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation is the in-memory state derived from one event log.
// Direct conversations are never uber nor public.
type Conversation struct {
	ID           uuid.UUID
	Direct       bool
	Uber         bool
	PublicJoin   bool
	Title        string
	CustomData   []byte
	CreatedAt    time.Time
	LastUpdate   time.Time
	LastSequence int64
	Participants ParticipantSet
}

func New(id uuid.UUID) *Conversation {
	return &Conversation{ID: id, Participants: make(ParticipantSet)}
}

// Clone returns a deep copy that can be mutated without affecting readers of c.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.CustomData = append([]byte(nil), c.CustomData...)
	cp.Participants = c.Participants.clone()
	return &cp
}

// Apply folds one event into the state. Sequenced events must arrive in order without gaps.
func (c *Conversation) Apply(evt event.Event) error {
	if evt.ConversationID != c.ID {
		return fmt.Errorf("%w: event of %s applied to %s", errors.ErrInvalidPayload, evt.ConversationID, c.ID)
	}
	if evt.Type.Sequenced() && evt.Sequence != c.LastSequence+1 {
		return fmt.Errorf("%w: expected %d, got %d", errors.ErrSequenceConflict, c.LastSequence+1, evt.Sequence)
	}

	switch p := evt.Payload.(type) {
	case event.Created:
		if evt.Sequence != 1 {
			return fmt.Errorf("%w: created at sequence %d", errors.ErrSequenceConflict, evt.Sequence)
		}
		c.Title = p.Title
		c.Direct = p.Direct
		c.Uber = p.Uber
		c.PublicJoin = p.PublicJoin
		c.CustomData = p.CustomData
		c.CreatedAt = time.Unix(evt.Timestamp, 0).UTC()
		for _, ref := range p.Participants {
			c.Participants.admit(ref, evt.Sequence)
		}
	case event.ParticipantsAdded:
		for _, ref := range p.Participants {
			c.Participants.admit(ref, evt.Sequence)
		}
	case event.ParticipantsEdited:
		for _, ref := range p.Participants {
			if current, ok := c.Participants[ref.UserID]; ok {
				current.Flags = ref.Flags
			}
		}
	case event.ParticipantsRemoved:
		for _, userID := range p.UserIDs {
			c.Participants.depart(userID, evt.Sequence)
		}
	case event.Updated:
		if p.Title != nil {
			c.Title = *p.Title
		}
		if p.PublicJoin != nil {
			c.PublicJoin = *p.PublicJoin
		}
		if p.CustomData != nil {
			c.CustomData = *p.CustomData
		}
	case event.Joined:
		c.Participants.admit(domain.ParticipantRef{UserID: evt.Actor, Flags: domain.MemberFlags}, evt.Sequence)
	case event.Left:
		c.Participants.depart(evt.Actor, evt.Sequence)
	case event.Read:
		if current, ok := c.Participants[evt.Actor]; ok {
			current.LastRead = p.Sequence
		}
	case event.MessageSent, event.Typing:
	default:
		return fmt.Errorf("%w: unexpected payload %T", errors.ErrInvalidPayload, evt.Payload)
	}

	if evt.Type.Sequenced() {
		c.LastSequence = evt.Sequence
		c.LastUpdate = time.Unix(evt.Timestamp, 0).UTC()
	}
	return nil
}

// Windows returns the inclusive sequence windows the user may read, oldest first.
// Departed users stop at their departure. In uber conversations each membership
// period is its own window, so nothing that happened while the user was away
// becomes readable when they come back.
func (c *Conversation) Windows(userID string) []Period {
	p, ok := c.Participants.Get(userID)
	if !ok {
		return nil
	}
	if !c.Uber {
		to := c.LastSequence
		if !p.Active() {
			to = p.LeftAt
		}
		if to < 1 {
			return nil
		}
		return []Period{{From: 1, To: to}}
	}

	var windows []Period
	for _, period := range p.Periods {
		to := period.To
		if to == 0 {
			to = c.LastSequence
		}
		if period.From <= to {
			windows = append(windows, Period{From: period.From, To: to})
		}
	}
	return windows
}

// VisibleRange returns the smallest window holding everything the user may read.
// Sequences inside it may still be hidden, see CanSee.
func (c *Conversation) VisibleRange(userID string) (from, to int64, ok bool) {
	windows := c.Windows(userID)
	if len(windows) == 0 {
		return 0, 0, false
	}
	return windows[0].From, windows[len(windows)-1].To, true
}

func (c *Conversation) CanSee(userID string, sequence int64) bool {
	for _, w := range c.Windows(userID) {
		if sequence >= w.From && sequence <= w.To {
			return true
		}
	}
	return false
}

// Unread counts the visible events after the user's read marker.
func (c *Conversation) Unread(userID string) int64 {
	p, ok := c.Participants.Get(userID)
	if !ok {
		return 0
	}
	var unread int64
	for _, w := range c.Windows(userID) {
		from := max(w.From, p.LastRead+1)
		if from <= w.To {
			unread += w.To - from + 1
		}
	}
	return unread
}
