// Package runtime sequences conversation events, keeps conversation states in
// memory and propagates committed events to live sessions.
package runtime

import (
	"bytes"
	"context"
	"conversation-engine/contract"
	"conversation-engine/domain"
	"conversation-engine/domain/conversation"
	"conversation-engine/domain/event"
	"conversation-engine/domain/search"
	"conversation-engine/errors"
	"conversation-engine/internal/pbstruct"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Engine applies every conversation operation.
//
// Mutations of one conversation go through its Sequencer reservation: the
// operation is validated against the current state, applied to a clone, appended
// to the event log and only then published as the new state. Readers always see
// a state whose events are durable.
type Engine struct {
	log         *slog.Logger
	events      contract.EventLog
	accounts    contract.AccountDirectory
	markers     contract.ReadMarkerStore
	limiter     contract.TypingLimiter
	broadcaster contract.Broadcaster
	moderator   contract.Moderator
	search      contract.SearchIndex
	sequencer   *Sequencer
	index       *MembershipIndex
	now         func() time.Time

	mu            sync.RWMutex
	conversations map[uuid.UUID]*conversation.Conversation
}

func NewEngine(log *slog.Logger, events contract.EventLog, accounts contract.AccountDirectory,
	markers contract.ReadMarkerStore, limiter contract.TypingLimiter, broadcaster contract.Broadcaster) *Engine {
	return &Engine{
		log:           log,
		events:        events,
		accounts:      accounts,
		markers:       markers,
		limiter:       limiter,
		broadcaster:   broadcaster,
		sequencer:     NewSequencer(events.LastSequence),
		index:         NewMembershipIndex(),
		now:           time.Now,
		conversations: make(map[uuid.UUID]*conversation.Conversation),
	}
}

// WithModerator censors message texts before they are sequenced.
func (e *Engine) WithModerator(moderator contract.Moderator) *Engine {
	e.moderator = moderator
	return e
}

func (e *Engine) WithSearchIndex(index contract.SearchIndex) *Engine {
	e.search = index
	return e
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Restore replays every logged conversation and rebuilds the membership index.
func (e *Engine) Restore(ctx context.Context) error {
	ids, err := e.events.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("%w: list conversations: %v", errors.ErrInternal, err)
	}
	for _, id := range ids {
		if _, err := e.Snapshot(ctx, id); err != nil {
			return err
		}
	}
	e.log.Info("Conversations restored", "count", len(ids))
	return nil
}

// Create starts a conversation. The creator becomes its owner, whatever the
// participant list says about them.
func (e *Engine) Create(ctx context.Context, actor string, config domain.ConversationConfig) (event.Event, error) {
	if config.Direct && (config.Uber || config.PublicJoin) {
		return event.Event{}, fmt.Errorf("%w: direct conversations cannot be uber or public", errors.ErrPermissionDenied)
	}
	if len(config.CustomData) > domain.MaxCustomDataSize {
		return event.Event{}, fmt.Errorf("%w: custom data exceeds %d bytes", errors.ErrInvalidRequest, domain.MaxCustomDataSize)
	}
	creator, err := e.accounts.Lookup(ctx, actor)
	switch {
	case stderrors.Is(err, errors.ErrUnknownUser):
		return event.Event{}, fmt.Errorf("%w: unknown creator %q", errors.ErrPermissionDenied, actor)
	case err != nil:
		return event.Event{}, fmt.Errorf("%w: account lookup: %v", errors.ErrInternal, err)
	case creator.Deleted:
		return event.Event{}, fmt.Errorf("%w: creator %q is deleted", errors.ErrPermissionDenied, actor)
	}

	others := lo.Filter(config.Participants, func(ref domain.ParticipantRef, _ int) bool {
		return ref.UserID != actor
	})
	others = lo.UniqBy(others, func(ref domain.ParticipantRef) string { return ref.UserID })
	if config.Direct && len(others) != 1 {
		return event.Event{}, fmt.Errorf("%w: direct conversations need exactly one other participant, got %d",
			errors.ErrInvalidParticipant, len(others))
	}
	others, err = make(conversation.ParticipantSet).PrepareAdd(ctx, e.accounts, others)
	if err != nil {
		return event.Event{}, err
	}

	id := uuid.New()
	res, err := e.sequencer.Reserve(ctx, id)
	if err != nil {
		return event.Event{}, err
	}
	defer res.Release()

	payload := event.Created{
		Title:        config.Title,
		Direct:       config.Direct,
		Uber:         config.Uber,
		PublicJoin:   config.PublicJoin,
		CustomData:   config.CustomData,
		Participants: append([]domain.ParticipantRef{{UserID: actor, Flags: domain.OwnerFlags}}, others...),
	}
	evt, err := e.commit(ctx, res, conversation.New(id), actor, payload, nil)
	if err != nil {
		return event.Event{}, err
	}
	e.log.Debug("Conversation created", "conversation_id", id, "actor", actor, "participants", len(payload.Participants))
	return evt, nil
}

func (e *Engine) AddParticipants(ctx context.Context, actor string, id uuid.UUID, refs []domain.ParticipantRef) (*event.Event, error) {
	return e.mutate(ctx, id, actor, conversation.AddParticipants,
		func(c *conversation.Conversation) (event.Payload, []string, error) {
			changes, err := c.Participants.PrepareAdd(ctx, e.accounts, refs)
			if err != nil || len(changes) == 0 {
				return nil, nil, err
			}
			return event.ParticipantsAdded{Participants: changes}, nil, nil
		})
}

func (e *Engine) EditParticipants(ctx context.Context, actor string, id uuid.UUID, refs []domain.ParticipantRef) (*event.Event, error) {
	return e.mutate(ctx, id, actor, conversation.EditParticipants,
		func(c *conversation.Conversation) (event.Payload, []string, error) {
			changes, err := c.Participants.PrepareEdit(refs)
			if err != nil || len(changes) == 0 {
				return nil, nil, err
			}
			return event.ParticipantsEdited{Participants: changes}, nil, nil
		})
}

// RemoveParticipants marks the targets as departed. They still receive the removal event.
func (e *Engine) RemoveParticipants(ctx context.Context, actor string, id uuid.UUID, userIDs []string) (*event.Event, error) {
	return e.mutate(ctx, id, actor, conversation.RemoveParticipants,
		func(c *conversation.Conversation) (event.Payload, []string, error) {
			changes, err := c.Participants.PrepareRemove(ctx, e.accounts, userIDs)
			if err != nil || len(changes) == 0 {
				return nil, nil, err
			}
			return event.ParticipantsRemoved{UserIDs: changes}, changes, nil
		})
}

// Update changes the title, the public join flag or the custom data.
// Fields equal to the current state are not part of the event.
func (e *Engine) Update(ctx context.Context, actor string, id uuid.UUID, update domain.ConversationUpdate) (*event.Event, error) {
	if update.CustomData != nil && len(*update.CustomData) > domain.MaxCustomDataSize {
		return nil, fmt.Errorf("%w: custom data exceeds %d bytes", errors.ErrInvalidRequest, domain.MaxCustomDataSize)
	}
	return e.mutate(ctx, id, actor, conversation.Update,
		func(c *conversation.Conversation) (event.Payload, []string, error) {
			if c.Direct && update.PublicJoin != nil && *update.PublicJoin {
				return nil, nil, fmt.Errorf("%w: direct conversations cannot be public", errors.ErrPermissionDenied)
			}
			var payload event.Updated
			if update.Title != nil && *update.Title != c.Title {
				payload.Title = update.Title
			}
			if update.PublicJoin != nil && *update.PublicJoin != c.PublicJoin {
				payload.PublicJoin = update.PublicJoin
			}
			if update.CustomData != nil && !bytes.Equal(*update.CustomData, c.CustomData) {
				payload.CustomData = update.CustomData
			}
			if payload.Title == nil && payload.PublicJoin == nil && payload.CustomData == nil {
				return nil, nil, nil
			}
			return payload, nil, nil
		})
}

// SendMessage sequences a message. A message needs a text, a payload, or both.
func (e *Engine) SendMessage(ctx context.Context, actor string, id uuid.UUID, text string, payload map[string]any) (event.Event, error) {
	evt, err := e.mutate(ctx, id, actor, conversation.SendMessage,
		func(c *conversation.Conversation) (event.Payload, []string, error) {
			if utf8.RuneCountInString(text) > domain.MaxTextLength {
				return nil, nil, fmt.Errorf("%w: %d runes allowed", errors.ErrTextTooLong, domain.MaxTextLength)
			}
			if text == "" && len(payload) == 0 {
				return nil, nil, errors.ErrEmptyMessage
			}
			normalized, err := normalizePayload(payload)
			if err != nil {
				return nil, nil, err
			}
			if e.moderator != nil && text != "" {
				text = e.moderator.Censor(text)
			}
			return event.MessageSent{Text: text, Payload: normalized}, nil, nil
		})
	if err != nil {
		return event.Event{}, err
	}
	return *evt, nil
}

// Join lets a user enter a public conversation on their own.
func (e *Engine) Join(ctx context.Context, actor string, id uuid.UUID) (*event.Event, error) {
	return e.mutate(ctx, id, actor, conversation.Join,
		func(c *conversation.Conversation) (event.Payload, []string, error) {
			account, err := e.accounts.Lookup(ctx, actor)
			if err != nil || account.Deleted {
				return nil, nil, fmt.Errorf("%w: %s cannot join", errors.ErrInvalidParticipant, actor)
			}
			return event.Joined{}, nil, nil
		})
}

// Leave makes the actor a departed participant. The actor receives the event too.
func (e *Engine) Leave(ctx context.Context, actor string, id uuid.UUID) (*event.Event, error) {
	return e.mutate(ctx, id, actor, conversation.Leave,
		func(c *conversation.Conversation) (event.Payload, []string, error) {
			return event.Left{}, []string{actor}, nil
		})
}

// MarkAsRead moves the actor's read marker to sequence, or to 1 when sequence is below 1.
// The marker is persisted, the resulting read event is ephemeral.
func (e *Engine) MarkAsRead(ctx context.Context, actor string, id uuid.UUID, sequence int64) (event.Event, error) {
	res, err := e.sequencer.Reserve(ctx, id)
	if err != nil {
		return event.Event{}, err
	}
	defer res.Release()

	current, err := e.Snapshot(ctx, id)
	if err != nil {
		return event.Event{}, err
	}
	if !conversation.MayPerform(current, actor, conversation.MarkAsRead) {
		return event.Event{}, denied(actor, conversation.MarkAsRead)
	}
	if sequence < 1 {
		sequence = 1
	}
	if sequence > current.LastSequence {
		return event.Event{}, fmt.Errorf("%w: %d is beyond the last sequence %d",
			errors.ErrInvalidSequence, sequence, current.LastSequence)
	}

	if err = e.markers.SaveReadMarker(ctx, id, actor, sequence); err != nil {
		return event.Event{}, fmt.Errorf("%w: save read marker: %v", errors.ErrInternal, err)
	}
	evt := event.New(id, actor, e.now().Unix(), event.Read{Sequence: sequence})
	next := current.Clone()
	if err = next.Apply(evt); err != nil {
		return event.Event{}, fmt.Errorf("%w: %v", errors.ErrInternal, err)
	}
	e.store(next)
	e.broadcaster.Broadcast(evt, next.Participants.ActiveUserIDs())
	return evt, nil
}

// Typing broadcasts an ephemeral typing notification, at most once per cooldown.
func (e *Engine) Typing(ctx context.Context, actor string, id uuid.UUID) (event.Event, error) {
	current, err := e.Snapshot(ctx, id)
	if err != nil {
		return event.Event{}, err
	}
	if !conversation.MayPerform(current, actor, conversation.Typing) {
		return event.Event{}, denied(actor, conversation.Typing)
	}
	allowed, err := e.limiter.Allow(ctx, id, actor)
	if err != nil {
		return event.Event{}, fmt.Errorf("%w: typing limiter: %v", errors.ErrInternal, err)
	}
	if !allowed {
		return event.Event{}, fmt.Errorf("%w: typing already notified", errors.ErrRateLimited)
	}
	evt := event.New(id, actor, e.now().Unix(), event.Typing{})
	e.broadcaster.Broadcast(evt, current.Participants.ActiveUserIDs())
	return evt, nil
}

// Get returns a copy of the conversation state. Departed participants may still read it.
func (e *Engine) Get(ctx context.Context, actor string, id uuid.UUID) (*conversation.Conversation, error) {
	current, err := e.Snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := current.Participants.Get(actor); !ok {
		return nil, notParticipant(actor, id)
	}
	return current.Clone(), nil
}

// ConversationsOf lists the conversations the user is an active member of.
// Conversations not restored nor touched since startup are not indexed.
func (e *Engine) ConversationsOf(userID string) []uuid.UUID {
	return e.index.ConversationsOf(userID)
}

func (e *Engine) UnreadCount(ctx context.Context, actor string, id uuid.UUID) (int64, error) {
	current, err := e.Snapshot(ctx, id)
	if err != nil {
		return 0, err
	}
	if _, ok := current.Participants.Get(actor); !ok {
		return 0, notParticipant(actor, id)
	}
	return current.Unread(actor), nil
}

// SearchMessages looks for messages within the part of the history the actor may read.
func (e *Engine) SearchMessages(ctx context.Context, actor string, id uuid.UUID, query search.Query) ([]search.Hit, error) {
	if e.search == nil {
		return nil, fmt.Errorf("%w: search is disabled", errors.ErrInvalidRequest)
	}
	current, err := e.Snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conversation.MayPerform(current, actor, conversation.Retransmit) {
		return nil, denied(actor, conversation.Retransmit)
	}
	from, to, ok := current.VisibleRange(actor)
	if !ok {
		return nil, nil
	}
	query.ConversationID, query.From, query.To = id, from, to
	hits, err := e.search.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", errors.ErrInternal, err)
	}
	return lo.Filter(hits, func(hit search.Hit, _ int) bool {
		return current.CanSee(actor, hit.Sequence)
	}), nil
}

// Snapshot returns the current state of the conversation, loading it from the
// event log when it is not in memory. The result must not be modified.
func (e *Engine) Snapshot(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	e.mu.RLock()
	current, ok := e.conversations[id]
	e.mu.RUnlock()
	if ok {
		return current, nil
	}

	loaded, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}

	// A committed state may have been stored while loading: it wins.
	e.mu.Lock()
	if current, ok = e.conversations[id]; !ok {
		e.conversations[id] = loaded
		current = loaded
	}
	e.mu.Unlock()
	e.index.Sync(current)
	return current, nil
}

func (e *Engine) load(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	loaded := conversation.New(id)
	err := e.events.Replay(ctx, id, loaded.Apply)
	if err != nil {
		return nil, fmt.Errorf("%w: replay %s: %v", errors.ErrInternal, id, err)
	}
	if loaded.LastSequence == 0 {
		return nil, fmt.Errorf("%w: %s", errors.ErrConversationNotFound, id)
	}

	markers, err := e.markers.ReadMarkers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: read markers of %s: %v", errors.ErrInternal, id, err)
	}
	for userID, sequence := range markers {
		if p, ok := loaded.Participants[userID]; ok {
			p.LastRead = sequence
		}
	}
	return loaded, nil
}

func (e *Engine) store(c *conversation.Conversation) {
	e.mu.Lock()
	e.conversations[c.ID] = c
	e.mu.Unlock()
	e.index.Sync(c)
}

// mutation validates an operation against the current state and returns the
// payload to sequence plus extra recipients. A nil payload means nothing changes.
type mutation func(c *conversation.Conversation) (event.Payload, []string, error)

func (e *Engine) mutate(ctx context.Context, id uuid.UUID, actor string, op conversation.Operation, fn mutation) (*event.Event, error) {
	res, err := e.sequencer.Reserve(ctx, id)
	if err != nil {
		return nil, err
	}
	defer res.Release()

	current, err := e.Snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conversation.MayPerform(current, actor, op) {
		return nil, denied(actor, op)
	}
	payload, recipients, err := fn(current)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}

	evt, err := e.commit(ctx, res, current, actor, payload, recipients)
	if err != nil {
		return nil, err
	}
	return &evt, nil
}

// commit sequences the payload, appends it and publishes the resulting state.
// Nothing is published and the sequencer does not move when the append fails.
func (e *Engine) commit(ctx context.Context, res *Reservation, current *conversation.Conversation,
	actor string, payload event.Payload, recipients []string) (event.Event, error) {
	if res.Last() != current.LastSequence {
		return event.Event{}, fmt.Errorf("%w: sequencer at %d, state at %d",
			errors.ErrInternal, res.Last(), current.LastSequence)
	}

	evt := event.New(current.ID, actor, e.now().Unix(), payload)
	evt.Sequence = res.Sequence()

	next := current.Clone()
	if err := next.Apply(evt); err != nil {
		return event.Event{}, fmt.Errorf("%w: %v", errors.ErrInternal, err)
	}
	if err := e.events.Append(ctx, evt); err != nil {
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return event.Event{}, err
		}
		e.log.Error("Event append failed", "conversation_id", evt.ConversationID, "sequence", evt.Sequence, "error", err)
		return event.Event{}, fmt.Errorf("%w: append: %v", errors.ErrInternal, err)
	}
	res.Commit()
	e.store(next)

	e.broadcaster.Broadcast(evt, append(next.Participants.ActiveUserIDs(), recipients...))
	e.log.Debug("Event committed", "conversation_id", evt.ConversationID, "sequence", evt.Sequence, "type", evt.Type)
	return evt, nil
}

// normalizePayload gives the payload the shape it has once read back from the
// log: JSON values only, every number a float64.
func normalizePayload(payload map[string]any) (map[string]any, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	encoded, err := pbstruct.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	var normalized map[string]any
	if err = pbstruct.Unmarshal(encoded, &normalized); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return normalized, nil
}

func denied(actor string, op conversation.Operation) error {
	return fmt.Errorf("%w: %s may not %s", errors.ErrPermissionDenied, actor, op)
}

func notParticipant(actor string, id uuid.UUID) error {
	return fmt.Errorf("%w: %s never took part in %s", errors.ErrPermissionDenied, actor, id)
}
