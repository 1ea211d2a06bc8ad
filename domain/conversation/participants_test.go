package conversation

import (
	"context"
	"conversation-engine/domain"
	"conversation-engine/errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func refs(ids ...string) []domain.ParticipantRef {
	var res []domain.ParticipantRef
	for _, id := range ids {
		res = append(res, domain.ParticipantRef{UserID: id, Flags: domain.MemberFlags})
	}
	return res
}

func TestParticipantSet_PrepareAdd(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	c := New(id)
	require.NoError(t, c.Apply(created(id, false, "bob")))

	t.Run("skips active members and duplicates", func(t *testing.T) {
		req := require.New(t)
		changes, err := c.Participants.PrepareAdd(ctx, newDirectory("alice", "bob", "carol"), refs("bob", "carol", "carol"))
		req.NoError(err)
		req.Equal(refs("carol"), changes)
	})

	t.Run("adding only present users is a no-op", func(t *testing.T) {
		req := require.New(t)
		changes, err := c.Participants.PrepareAdd(ctx, newDirectory("alice", "bob"), refs("alice", "bob"))
		req.NoError(err)
		req.Empty(changes)
	})

	t.Run("unknown user fails the whole call", func(t *testing.T) {
		req := require.New(t)
		_, err := c.Participants.PrepareAdd(ctx, newDirectory("alice", "carol"), refs("carol", "ghost"))
		req.ErrorIs(err, errors.ErrInvalidParticipant)
	})

	t.Run("deleted account cannot be added", func(t *testing.T) {
		req := require.New(t)
		dir := newDirectory("alice")
		dir["dave"] = domain.Account{ID: "dave", Deleted: true}
		_, err := c.Participants.PrepareAdd(ctx, dir, refs("dave"))
		req.ErrorIs(err, errors.ErrInvalidParticipant)
	})
}

func TestParticipantSet_PrepareEdit(t *testing.T) {
	req := require.New(t)
	id := uuid.New()
	c := New(id)
	req.NoError(c.Apply(created(id, false, "bob")))

	changes, err := c.Participants.PrepareEdit([]domain.ParticipantRef{
		{UserID: "bob", Flags: domain.OwnerFlags},
		{UserID: "alice", Flags: domain.OwnerFlags},
	})
	req.NoError(err)
	req.Equal([]domain.ParticipantRef{{UserID: "bob", Flags: domain.OwnerFlags}}, changes)

	_, err = c.Participants.PrepareEdit(refs("carol"))
	req.ErrorIs(err, errors.ErrInvalidParticipant)
}

func TestParticipantSet_PrepareRemove(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	c := New(id)
	require.NoError(t, c.Apply(created(id, false, "bob", "carol")))
	c.Participants.depart("carol", 2)
	c.LastSequence = 2

	t.Run("active member departs", func(t *testing.T) {
		req := require.New(t)
		changes, err := c.Participants.PrepareRemove(ctx, newDirectory("alice", "bob", "carol"), []string{"bob", "bob"})
		req.NoError(err)
		req.Equal([]string{"bob"}, changes)
	})

	t.Run("double removal of an ordinary account", func(t *testing.T) {
		req := require.New(t)
		_, err := c.Participants.PrepareRemove(ctx, newDirectory("alice", "bob", "carol"), []string{"carol"})
		req.ErrorIs(err, errors.ErrAlreadyRemoved)
	})

	t.Run("double removal of a deleted account is tolerated", func(t *testing.T) {
		req := require.New(t)
		dir := newDirectory("alice", "bob")
		dir["carol"] = domain.Account{ID: "carol", Deleted: true}
		changes, err := c.Participants.PrepareRemove(ctx, dir, []string{"carol", "bob"})
		req.NoError(err)
		req.Equal([]string{"bob"}, changes)
	})

	t.Run("never a member", func(t *testing.T) {
		req := require.New(t)
		_, err := c.Participants.PrepareRemove(ctx, newDirectory("alice", "erin"), []string{"erin"})
		req.ErrorIs(err, errors.ErrInvalidParticipant)
	})

	t.Run("unknown account", func(t *testing.T) {
		req := require.New(t)
		_, err := c.Participants.PrepareRemove(ctx, newDirectory("alice"), []string{"ghost"})
		req.ErrorIs(err, errors.ErrInvalidParticipant)
	})
}
