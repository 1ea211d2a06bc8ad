package runtime

import (
	"context"
	"conversation-engine/domain"
	"conversation-engine/domain/event"
	"conversation-engine/errors"
	stderrors "errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEngine_Create(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol")

	// When alice creates a conversation listing herself as a plain member
	evt, err := f.engine.Create(ctx, "alice", domain.ConversationConfig{
		Title:        "launch",
		Participants: append(members("alice", "bob", "carol"), members("bob")...),
	})

	// Then the created event is the first of the log
	req.NoError(err)
	req.Equal(event.CreatedType, evt.Type)
	req.Equal(int64(1), evt.Sequence)
	req.Equal(int64(1700000000), evt.Timestamp)

	// And alice owns it while bob and carol are members
	c, err := f.engine.Get(ctx, "bob", evt.ConversationID)
	req.NoError(err)
	req.Equal("launch", c.Title)
	req.Equal([]string{"alice", "bob", "carol"}, c.Participants.ActiveUserIDs())
	alice, _ := c.Participants.Get("alice")
	req.Equal(domain.OwnerFlags, alice.Flags)
	bob, _ := c.Participants.Get("bob")
	req.Equal(domain.MemberFlags, bob.Flags)
	req.Equal(int64(1), bob.JoinedAt)

	// And everybody is notified and indexed
	req.Equal([]string{"alice", "bob", "carol"}, f.broadcasts.last().recipients)
	req.Contains(f.engine.ConversationsOf("carol"), evt.ConversationID)
}

func TestEngine_Create_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol")
	req := require.New(t)
	_, err := f.accounts.Register(ctx, "dave")
	req.NoError(err)
	req.NoError(f.accounts.MarkDeleted(ctx, "dave"))

	tests := []struct {
		name   string
		actor  string
		config domain.ConversationConfig
		err    error
	}{
		{name: "Direct and uber", actor: "alice", config: domain.ConversationConfig{Direct: true, Uber: true, Participants: members("bob")}, err: errors.ErrPermissionDenied},
		{name: "Direct and public", actor: "alice", config: domain.ConversationConfig{Direct: true, PublicJoin: true, Participants: members("bob")}, err: errors.ErrPermissionDenied},
		{name: "Direct with two others", actor: "alice", config: domain.ConversationConfig{Direct: true, Participants: members("bob", "carol")}, err: errors.ErrInvalidParticipant},
		{name: "Direct alone", actor: "alice", config: domain.ConversationConfig{Direct: true, Participants: members("alice")}, err: errors.ErrInvalidParticipant},
		{name: "Unknown participant", actor: "alice", config: domain.ConversationConfig{Participants: members("bob", "ghost")}, err: errors.ErrInvalidParticipant},
		{name: "Deleted participant", actor: "alice", config: domain.ConversationConfig{Participants: members("dave")}, err: errors.ErrInvalidParticipant},
		{name: "Unknown creator", actor: "ghost", config: domain.ConversationConfig{Participants: members("bob")}, err: errors.ErrPermissionDenied},
		{name: "Custom data too large", actor: "alice", config: domain.ConversationConfig{CustomData: make([]byte, domain.MaxCustomDataSize+1)}, err: errors.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Create(ctx, tt.actor, tt.config)
			require.ErrorIs(t, err, tt.err)
		})
	}

	// Then nothing was logged
	ids, err := f.events.Conversations(ctx)
	req.NoError(err)
	req.Empty(ids)
}

func TestEngine_SendMessage_Gapless_Under_Concurrency(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	users := []string{"alice", "bob", "carol", "dave"}
	f := newFixture(t, users...)
	id := f.create(t, "alice", domain.ConversationConfig{Participants: members(users...)})
	other := f.create(t, "bob", domain.ConversationConfig{Participants: members(users...)})

	const perUser = 15
	var wg sync.WaitGroup
	var mu sync.Mutex
	var got []int64
	errs := make(chan error, len(users)*perUser*2)

	// When every user sends messages concurrently to two conversations
	for _, user := range users {
		for i := 0; i < perUser; i++ {
			wg.Add(2)
			go func(user string) {
				defer wg.Done()
				evt, err := f.engine.SendMessage(ctx, user, id, "hello", nil)
				if err != nil {
					errs <- err
					return
				}
				mu.Lock()
				got = append(got, evt.Sequence)
				mu.Unlock()
			}(user)
			go func(user string) {
				defer wg.Done()
				if _, err := f.engine.SendMessage(ctx, user, other, "hello", nil); err != nil {
					errs <- err
				}
			}(user)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	// Then each conversation log is strictly increasing without gaps nor duplicates
	total := int64(len(users)*perUser + 1)
	events, err := f.events.Range(ctx, id, 1, total+10)
	req.NoError(err)
	req.Equal(span(1, total), sequences(events))
	events, err = f.events.Range(ctx, other, 1, total+10)
	req.NoError(err)
	req.Equal(span(1, total), sequences(events))

	// And every caller got its own sequence
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	req.Equal(span(2, total), got)

	c, err := f.engine.Get(ctx, "alice", id)
	req.NoError(err)
	req.Equal(total, c.LastSequence)
}

func TestEngine_SendMessage_Validation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol")
	id := f.create(t, "alice", domain.ConversationConfig{Participants: []domain.ParticipantRef{
		{UserID: "bob", Flags: domain.MemberFlags},
		{UserID: "carol", Flags: domain.Flags{}},
	}})

	// Exactly the limit is accepted
	evt, err := f.engine.SendMessage(ctx, "bob", id, strings.Repeat("é", domain.MaxTextLength), nil)
	req.NoError(err)
	req.Equal(int64(2), evt.Sequence)

	// One rune more is not
	_, err = f.engine.SendMessage(ctx, "bob", id, strings.Repeat("é", domain.MaxTextLength+1), nil)
	req.ErrorIs(err, errors.ErrTextTooLong)

	// Neither text nor payload
	_, err = f.engine.SendMessage(ctx, "bob", id, "", nil)
	req.ErrorIs(err, errors.ErrEmptyMessage)

	// A payload alone is a message
	evt, err = f.engine.SendMessage(ctx, "bob", id, "", map[string]any{"kind": "sticker"})
	req.NoError(err)
	req.Equal(event.MessageSent{Payload: map[string]any{"kind": "sticker"}}, evt.Payload)

	// Carol cannot write, dave is not a member
	_, err = f.engine.SendMessage(ctx, "carol", id, "hi", nil)
	req.ErrorIs(err, errors.ErrPermissionDenied)
	_, err = f.engine.SendMessage(ctx, "dave", id, "hi", nil)
	req.ErrorIs(err, errors.ErrPermissionDenied)

	// Then only the two accepted messages were logged
	last, err := f.events.LastSequence(ctx, id)
	req.NoError(err)
	req.Equal(int64(3), last)
}

func TestEngine_SendMessage_Payload_Matches_Retransmitted(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, "alice", "bob")
	id := f.create(t, "alice", domain.ConversationConfig{Participants: members("bob")})

	// When a payload with integers and nested values is sent
	live, err := f.engine.SendMessage(ctx, "bob", id, "", map[string]any{
		"count": 3,
		"tags":  []string{"a", "b"},
		"meta":  map[string]any{"size": int64(42)},
	})
	req.NoError(err)

	// Then the live event already has its logged shape
	expected := map[string]any{
		"count": float64(3),
		"tags":  []any{"a", "b"},
		"meta":  map[string]any{"size": float64(42)},
	}
	req.Equal(expected, live.Payload.(event.MessageSent).Payload)
	req.Equal(expected, f.broadcasts.last().evt.Payload.(event.MessageSent).Payload)

	events, err := f.retransmission.Retransmit(ctx, "bob", id, live.Sequence, live.Sequence)
	req.NoError(err)
	req.Len(events, 1)
	req.Equal(live, events[0])

	// And a payload that cannot be encoded is refused before sequencing
	_, err = f.engine.SendMessage(ctx, "bob", id, "", map[string]any{"ch": make(chan int)})
	req.ErrorIs(err, errors.ErrInvalidPayload)
	last, err := f.events.LastSequence(ctx, id)
	req.NoError(err)
	req.Equal(live.Sequence, last)
}

func TestEngine_MarkAsRead(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, "alice", "bob")
	id := f.create(t, "alice", domain.ConversationConfig{Participants: members("bob")})
	last := f.send(t, "alice", id, 4)
	req.Equal(int64(5), last)

	// When bob reads up to 3
	evt, err := f.engine.MarkAsRead(ctx, "bob", id, 3)

	// Then his marker is exactly 3 and an ephemeral read event is broadcast
	req.NoError(err)
	req.Equal(event.ReadType, evt.Type)
	req.Equal(int64(0), evt.Sequence)
	req.Equal(event.Read{Sequence: 3}, evt.Payload)
	req.Equal(evt, f.broadcasts.last().evt)
	unread, err := f.engine.UnreadCount(ctx, "bob", id)
	req.NoError(err)
	req.Equal(int64(2), unread)

	// When the marker is moved backwards below 1
	_, err = f.engine.MarkAsRead(ctx, "bob", id, 0)
	req.NoError(err)

	// Then every event except the first one is unread
	unread, err = f.engine.UnreadCount(ctx, "bob", id)
	req.NoError(err)
	req.Equal(last-1, unread)

	// And reading beyond the log is refused
	_, err = f.engine.MarkAsRead(ctx, "bob", id, last+1)
	req.ErrorIs(err, errors.ErrInvalidSequence)
	_, err = f.engine.MarkAsRead(ctx, "mallory", id, 1)
	req.ErrorIs(err, errors.ErrPermissionDenied)

	// And read events never consume a sequence
	logged, err := f.events.LastSequence(ctx, id)
	req.NoError(err)
	req.Equal(last, logged)

	// And the marker survives a restart
	f.restart()
	c, err := f.engine.Get(ctx, "bob", id)
	req.NoError(err)
	bob, _ := c.Participants.Get("bob")
	req.Equal(int64(1), bob.LastRead)
}

func TestEngine_Typing_Cooldown(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, "alice", "bob")
	id := f.create(t, "alice", domain.ConversationConfig{Participants: members("bob")})

	// First notification goes through
	evt, err := f.engine.Typing(ctx, "bob", id)
	req.NoError(err)
	req.Equal(event.TypingType, evt.Type)
	req.Equal([]string{"alice", "bob"}, f.broadcasts.last().recipients)

	// A second one within 10 seconds is rate limited
	f.clock.Advance(9 * time.Second)
	_, err = f.engine.Typing(ctx, "bob", id)
	req.ErrorIs(err, errors.ErrRateLimited)

	// Alice has her own cooldown
	_, err = f.engine.Typing(ctx, "alice", id)
	req.NoError(err)

	// After 10 seconds bob may type again
	f.clock.Advance(time.Second)
	_, err = f.engine.Typing(ctx, "bob", id)
	req.NoError(err)

	// Non members are refused before the limiter
	_, err = f.engine.Typing(ctx, "mallory", id)
	req.ErrorIs(err, errors.ErrPermissionDenied)

	// And typing is never logged
	last, err := f.events.LastSequence(ctx, id)
	req.NoError(err)
	req.Equal(int64(1), last)
}

func TestEngine_Typing_Concurrent_Calls_Notify_Once(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, "alice", "bob")
	id := f.create(t, "alice", domain.ConversationConfig{Participants: members("bob")})
	before := f.broadcasts.count()

	// When bob's clients send typing notifications at the same instant
	var mu sync.Mutex
	accepted, limited := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Typing(ctx, "bob", id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case stderrors.Is(err, errors.ErrRateLimited):
				limited++
			}
		}()
	}
	wg.Wait()

	// Then exactly one is broadcast and the others are rate limited
	req.Equal(1, accepted)
	req.Equal(63, limited)
	req.Equal(before+1, f.broadcasts.count())
}

func TestEngine_AddParticipants(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol", "dave")
	id := f.create(t, "alice", domain.ConversationConfig{Participants: members("bob")})

	// When alice adds carol twice and bob who is already there
	evt, err := f.engine.AddParticipants(ctx, "alice", id, members("carol", "bob", "carol"))

	// Then only carol is part of the event
	req.NoError(err)
	req.Equal(event.ParticipantsAdded{Participants: members("carol")}, evt.Payload)
	req.Equal(int64(2), evt.Sequence)

	// Adding only active members changes nothing
	evt, err = f.engine.AddParticipants(ctx, "alice", id, members("bob"))
	req.NoError(err)
	req.Nil(evt)

	// Unknown users are rejected as a whole
	_, err = f.engine.AddParticipants(ctx, "alice", id, members("dave", "ghost"))
	req.ErrorIs(err, errors.ErrInvalidParticipant)

	// Bob cannot manage participants
	_, err = f.engine.AddParticipants(ctx, "bob", id, members("dave"))
	req.ErrorIs(err, errors.ErrPermissionDenied)

	c, err := f.engine.Get(ctx, "alice", id)
	req.NoError(err)
	req.Equal(int64(2), c.LastSequence)
	req.Equal([]string{"alice", "bob", "carol"}, c.Participants.ActiveUserIDs())
}

func TestEngine_AddParticipants_Direct_Denied(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol")
	id := f.create(t, "alice", domain.ConversationConfig{Direct: true, Participants: members("bob")})

	// Given alice can manage participants
	c, err := f.engine.Get(ctx, "alice", id)
	req.NoError(err)
	alice, _ := c.Participants.Get("alice")
	req.True(alice.Flags.CanManageParticipants)

	// When she adds carol to the direct conversation
	evt, err := f.engine.AddParticipants(ctx, "alice", id, members("carol"))

	// Then it is denied
	req.ErrorIs(err, errors.ErrPermissionDenied)
	req.Nil(evt)

	// And removing is denied too
	_, err = f.engine.RemoveParticipants(ctx, "alice", id, []string{"bob"})
	req.ErrorIs(err, errors.ErrPermissionDenied)
}

func TestEngine_EditParticipants(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol")
	id := f.create(t, "alice", domain.ConversationConfig{Participants: members("bob")})
	manager := domain.Flags{CanWrite: true, CanManageParticipants: true}

	// When alice promotes bob
	evt, err := f.engine.EditParticipants(ctx, "alice", id, []domain.ParticipantRef{{UserID: "bob", Flags: manager}})
	req.NoError(err)
	req.Equal(event.ParticipantsEditedType, evt.Type)

	// Then bob can add carol
	_, err = f.engine.AddParticipants(ctx, "bob", id, members("carol"))
	req.NoError(err)

	// Editing with identical flags is a no-op
	evt, err = f.engine.EditParticipants(ctx, "alice", id, []domain.ParticipantRef{{UserID: "bob", Flags: manager}})
	req.NoError(err)
	req.Nil(evt)

	// Non members cannot be edited
	_, err = f.engine.EditParticipants(ctx, "alice", id, []domain.ParticipantRef{{UserID: "ghost", Flags: manager}})
	req.ErrorIs(err, errors.ErrInvalidParticipant)
}

func TestEngine_RemoveParticipants(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol", "dave")
	id := f.create(t, "alice", domain.ConversationConfig{Participants: members("bob", "carol")})

	// When alice removes bob
	evt, err := f.engine.RemoveParticipants(ctx, "alice", id, []string{"bob"})

	// Then bob departs and still receives the event
	req.NoError(err)
	req.Equal(event.ParticipantsRemoved{UserIDs: []string{"bob"}}, evt.Payload)
	req.Contains(f.broadcasts.last().recipients, "bob")
	req.NotContains(f.engine.ConversationsOf("bob"), id)
	c, err := f.engine.Get(ctx, "bob", id)
	req.NoError(err)
	bob, _ := c.Participants.Get("bob")
	req.Equal(evt.Sequence, bob.LeftAt)

	// Removing him again is refused
	_, err = f.engine.RemoveParticipants(ctx, "alice", id, []string{"bob"})
	req.ErrorIs(err, errors.ErrAlreadyRemoved)

	// Unless his account was deleted meanwhile
	req.NoError(f.accounts.MarkDeleted(ctx, "bob"))
	evt, err = f.engine.RemoveParticipants(ctx, "alice", id, []string{"bob"})
	req.NoError(err)
	req.Nil(evt)

	// Never members and unknown users are invalid
	_, err = f.engine.RemoveParticipants(ctx, "alice", id, []string{"dave"})
	req.ErrorIs(err, errors.ErrInvalidParticipant)
	_, err = f.engine.RemoveParticipants(ctx, "alice", id, []string{"ghost"})
	req.ErrorIs(err, errors.ErrInvalidParticipant)

	// A removed participant can be added back with a new join sequence
	evt, err = f.engine.AddParticipants(ctx, "alice", id, members("carol", "dave"))
	req.NoError(err)
	req.Equal(event.ParticipantsAdded{Participants: members("dave")}, evt.Payload)
}

func TestEngine_Update(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, "alice", "bob")
	id := f.create(t, "alice", domain.ConversationConfig{Title: "before", Participants: members("bob")})
	broadcasts := f.broadcasts.count()
	title := "after"

	// When bob, who is not an owner, updates the title
	evt, err := f.engine.Update(ctx, "bob", id, domain.ConversationUpdate{Title: &title})

	// Then it is denied without event nor state change
	req.ErrorIs(err, errors.ErrPermissionDenied)
	req.Nil(evt)
	req.Equal(broadcasts, f.broadcasts.count())
	c, err := f.engine.Get(ctx, "alice", id)
	req.NoError(err)
	req.Equal("before", c.Title)
	req.Equal(int64(1), c.LastSequence)

	// When alice updates the title and re-sends the same custom data
	public := true
	data := []byte(nil)
	evt, err = f.engine.Update(ctx, "alice", id, domain.ConversationUpdate{Title: &title, PublicJoin: &public, CustomData: &data})

	// Then only the changed fields are part of the event
	req.NoError(err)
	payload := evt.Payload.(event.Updated)
	req.Equal("after", *payload.Title)
	req.True(*payload.PublicJoin)
	req.Nil(payload.CustomData)

	// And an update without change is a no-op
	evt, err = f.engine.Update(ctx, "alice", id, domain.ConversationUpdate{Title: &title})
	req.NoError(err)
	req.Nil(evt)
}

func TestEngine_Update_Direct_Cannot_Become_Public(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, "alice", "bob")
	id := f.create(t, "alice", domain.ConversationConfig{Direct: true, Participants: members("bob")})
	public := true

	_, err := f.engine.Update(ctx, "alice", id, domain.ConversationUpdate{PublicJoin: &public})
	req.ErrorIs(err, errors.ErrPermissionDenied)

	// The title can still change
	title := "us"
	evt, err := f.engine.Update(ctx, "alice", id, domain.ConversationUpdate{Title: &title})
	req.NoError(err)
	req.NotNil(evt)
}

func TestEngine_Join_Leave(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol")
	public := f.create(t, "alice", domain.ConversationConfig{PublicJoin: true})
	private := f.create(t, "alice", domain.ConversationConfig{})

	// Bob joins the public conversation
	evt, err := f.engine.Join(ctx, "bob", public)
	req.NoError(err)
	req.Equal(event.JoinedType, evt.Type)
	c, err := f.engine.Get(ctx, "bob", public)
	req.NoError(err)
	bob, ok := c.Participants.Active("bob")
	req.True(ok)
	req.Equal(domain.MemberFlags, bob.Flags)

	// He cannot join twice nor join a private conversation
	_, err = f.engine.Join(ctx, "bob", public)
	req.ErrorIs(err, errors.ErrPermissionDenied)
	_, err = f.engine.Join(ctx, "bob", private)
	req.ErrorIs(err, errors.ErrPermissionDenied)

	// Unknown users cannot join
	_, err = f.engine.Join(ctx, "ghost", public)
	req.ErrorIs(err, errors.ErrInvalidParticipant)

	// When bob leaves
	evt, err = f.engine.Leave(ctx, "bob", public)
	req.NoError(err)
	req.Contains(f.broadcasts.last().recipients, "bob")

	// Then he can no longer write but may join again
	_, err = f.engine.SendMessage(ctx, "bob", public, "hi", nil)
	req.ErrorIs(err, errors.ErrPermissionDenied)
	_, err = f.engine.Leave(ctx, "bob", public)
	req.ErrorIs(err, errors.ErrPermissionDenied)
	_, err = f.engine.Join(ctx, "bob", public)
	req.NoError(err)
}

func TestEngine_Restore(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol")
	id := f.create(t, "alice", domain.ConversationConfig{Title: "kept", Uber: true, Participants: members("bob", "carol")})
	f.send(t, "bob", id, 3)
	_, err := f.engine.RemoveParticipants(ctx, "alice", id, []string{"carol"})
	req.NoError(err)
	before, err := f.engine.Get(ctx, "alice", id)
	req.NoError(err)

	// When the process restarts and restores from the log
	f.restart()
	req.Empty(f.engine.ConversationsOf("bob"))
	req.NoError(f.engine.Restore(ctx))

	// Then state and membership index are rebuilt
	after, err := f.engine.Get(ctx, "alice", id)
	req.NoError(err)
	req.Equal(before.Title, after.Title)
	req.Equal(before.Uber, after.Uber)
	req.Equal(before.LastSequence, after.LastSequence)
	req.Equal(before.Participants.Snapshot(), after.Participants.Snapshot())
	req.Equal(before.CreatedAt, after.CreatedAt)
	req.Contains(f.engine.ConversationsOf("bob"), id)
	req.NotContains(f.engine.ConversationsOf("carol"), id)

	// And sequencing resumes after the last logged event
	evt, err := f.engine.SendMessage(ctx, "bob", id, "back", nil)
	req.NoError(err)
	req.Equal(before.LastSequence+1, evt.Sequence)
}

func TestEngine_Unknown_Conversation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "alice")
	_, err := f.engine.SendMessage(context.Background(), "alice", uuid.New(), "hi", nil)
	req.ErrorIs(err, errors.ErrConversationNotFound)
}

func TestEngine_Unknown_Conversations_Leave_No_Sequencer_State(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, "alice", "bob")

	// Given one real conversation
	id := f.create(t, "alice", domain.ConversationConfig{Participants: members("bob")})

	// When many operations target conversations that do not exist
	for i := 0; i < 1000; i++ {
		_, err := f.engine.SendMessage(ctx, "alice", uuid.New(), "hi", nil)
		req.ErrorIs(err, errors.ErrConversationNotFound)
		_, err = f.engine.MarkAsRead(ctx, "alice", uuid.New(), 1)
		req.ErrorIs(err, errors.ErrConversationNotFound)
	}

	// Then only the real conversation keeps a sequencer slot
	f.engine.sequencer.mu.Lock()
	slots := len(f.engine.sequencer.slots)
	f.engine.sequencer.mu.Unlock()
	req.Equal(1, slots)

	// And it still sequences after its last event
	evt, err := f.engine.SendMessage(ctx, "bob", id, "still here", nil)
	req.NoError(err)
	req.Equal(int64(2), evt.Sequence)
}
