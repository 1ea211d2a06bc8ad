package conversation

import (
	"context"
	"conversation-engine/domain"
	"conversation-engine/errors"
	stderrors "errors"
	"fmt"
	"sort"
)

// Directory is the account oracle consulted before participants are added or removed.
type Directory interface {
	Lookup(ctx context.Context, userID string) (domain.Account, error)
}

// Period is one stretch of membership, To is zero while it is still open.
type Period struct {
	From int64
	To   int64
}

// Participant is a user's membership in one conversation.
// JoinedAt is the sequence of the event that made the user an active member,
// LeftAt the sequence of their departure (zero while active). Periods keeps
// every membership stretch, oldest first.
type Participant struct {
	UserID   string
	Flags    domain.Flags
	JoinedAt int64
	LeftAt   int64
	LastRead int64
	Periods  []Period
}

func (p Participant) Active() bool { return p.LeftAt == 0 }

func (p Participant) Ref() domain.ParticipantRef {
	return domain.ParticipantRef{UserID: p.UserID, Flags: p.Flags}
}

// ParticipantSet is owned by its conversation. Departed participants stay in the set.
type ParticipantSet map[string]*Participant

func (s ParticipantSet) Get(userID string) (Participant, bool) {
	p, ok := s[userID]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Active returns the participant only when they are a current member.
func (s ParticipantSet) Active(userID string) (Participant, bool) {
	p, ok := s.Get(userID)
	if !ok || !p.Active() {
		return Participant{}, false
	}
	return p, true
}

// Snapshot lists every participant, departed ones included, sorted by user id.
func (s ParticipantSet) Snapshot() []Participant {
	res := make([]Participant, 0, len(s))
	for _, p := range s {
		res = append(res, *p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UserID < res[j].UserID })
	return res
}

func (s ParticipantSet) ActiveUserIDs() []string {
	var res []string
	for id, p := range s {
		if p.Active() {
			res = append(res, id)
		}
	}
	sort.Strings(res)
	return res
}

func (s ParticipantSet) clone() ParticipantSet {
	res := make(ParticipantSet, len(s))
	for id, p := range s {
		cp := *p
		cp.Periods = append([]Period(nil), p.Periods...)
		res[id] = &cp
	}
	return res
}

// PrepareAdd validates an add request and returns the refs that actually change membership.
// Users that are already active are skipped, departed users are re-admitted.
func (s ParticipantSet) PrepareAdd(ctx context.Context, dir Directory, refs []domain.ParticipantRef) ([]domain.ParticipantRef, error) {
	var changes []domain.ParticipantRef
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref.UserID]; ok {
			continue
		}
		seen[ref.UserID] = struct{}{}

		account, err := lookup(ctx, dir, ref.UserID)
		if err != nil {
			return nil, err
		}
		if account.Deleted {
			return nil, fmt.Errorf("%w: %s is deleted", errors.ErrInvalidParticipant, ref.UserID)
		}
		if _, ok := s.Active(ref.UserID); ok {
			continue
		}
		changes = append(changes, ref)
	}
	return changes, nil
}

// PrepareEdit validates an edit request. Every target must be an active member.
// Refs whose flags are unchanged are dropped from the result.
func (s ParticipantSet) PrepareEdit(refs []domain.ParticipantRef) ([]domain.ParticipantRef, error) {
	var changes []domain.ParticipantRef
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref.UserID]; ok {
			continue
		}
		seen[ref.UserID] = struct{}{}

		current, ok := s.Active(ref.UserID)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a member", errors.ErrInvalidParticipant, ref.UserID)
		}
		if current.Flags == ref.Flags {
			continue
		}
		changes = append(changes, ref)
	}
	return changes, nil
}

// PrepareRemove validates a remove request and returns the user ids that will depart.
// Removing a departed participant is tolerated only when their account is deleted.
func (s ParticipantSet) PrepareRemove(ctx context.Context, dir Directory, userIDs []string) ([]string, error) {
	var changes []string
	seen := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}

		account, err := lookup(ctx, dir, userID)
		if err != nil {
			return nil, err
		}
		current, ok := s.Get(userID)
		switch {
		case !ok:
			return nil, fmt.Errorf("%w: %s was never a member", errors.ErrInvalidParticipant, userID)
		case current.Active():
			changes = append(changes, userID)
		case account.Deleted:
			continue
		default:
			return nil, fmt.Errorf("%w: %s left at sequence %d", errors.ErrAlreadyRemoved, userID, current.LeftAt)
		}
	}
	return changes, nil
}

func lookup(ctx context.Context, dir Directory, userID string) (domain.Account, error) {
	if userID == "" {
		return domain.Account{}, fmt.Errorf("%w: empty user id", errors.ErrInvalidParticipant)
	}
	account, err := dir.Lookup(ctx, userID)
	switch {
	case stderrors.Is(err, errors.ErrUnknownUser):
		return domain.Account{}, fmt.Errorf("%w: %s does not exist", errors.ErrInvalidParticipant, userID)
	case err != nil:
		return domain.Account{}, fmt.Errorf("%w: account lookup: %v", errors.ErrInternal, err)
	}
	return account, nil
}

func (s ParticipantSet) admit(ref domain.ParticipantRef, sequence int64) {
	p, ok := s[ref.UserID]
	if !ok {
		s[ref.UserID] = &Participant{
			UserID:   ref.UserID,
			Flags:    ref.Flags,
			JoinedAt: sequence,
			Periods:  []Period{{From: sequence}},
		}
		return
	}
	p.Flags = ref.Flags
	if p.Active() {
		return
	}
	p.JoinedAt, p.LeftAt = sequence, 0
	p.Periods = append(p.Periods, Period{From: sequence})
}

func (s ParticipantSet) depart(userID string, sequence int64) {
	p, ok := s[userID]
	if !ok || !p.Active() {
		return
	}
	p.LeftAt = sequence
	if n := len(p.Periods); n > 0 {
		p.Periods[n-1].To = sequence
	}
}
