package runtime

import (
	"context"
	"conversation-engine/errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// SeedFunc returns the last durable sequence of a conversation, zero when it has no events.
type SeedFunc func(ctx context.Context, id uuid.UUID) (int64, error)

// Sequencer hands out gapless sequence numbers, one conversation at a time.
//
// A Reservation owns the conversation until it is released: nobody else can
// reserve the same conversation meanwhile, while other conversations are not
// affected. The counter only moves on Commit, so a reservation released after
// a failed append leaves no gap.
type Sequencer struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*slot
	seed  SeedFunc
}

type slot struct {
	sem    chan struct{}
	last   int64
	seeded bool
	// refs counts the reservations held or awaited, guarded by Sequencer.mu.
	refs int
}

func NewSequencer(seed SeedFunc) *Sequencer {
	return &Sequencer{slots: make(map[uuid.UUID]*slot), seed: seed}
}

func (s *Sequencer) acquire(id uuid.UUID) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok {
		sl = &slot{sem: make(chan struct{}, 1)}
		s.slots[id] = sl
	}
	sl.refs++
	return sl
}

// forget drops the caller's reference. A slot nobody refers to and that never
// saw a durable event is removed, so unknown conversations leave nothing behind.
// last is only read once no reservation can be writing it.
func (s *Sequencer) forget(id uuid.UUID, sl *slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl.refs--
	if sl.refs == 0 && sl.last == 0 {
		delete(s.slots, id)
	}
}

// Reserve waits for exclusive access to the conversation, bounded by ctx.
// The caller must Release the reservation, committed or not.
func (s *Sequencer) Reserve(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	sl := s.acquire(id)
	select {
	case sl.sem <- struct{}{}:
	case <-ctx.Done():
		s.forget(id, sl)
		return nil, ctx.Err()
	}

	if !sl.seeded {
		last, err := s.seed(ctx, id)
		if err != nil {
			s.forget(id, sl)
			<-sl.sem
			return nil, fmt.Errorf("%w: seed sequence of %s: %v", errors.ErrInternal, id, err)
		}
		sl.last, sl.seeded = last, true
	}
	return &Reservation{sequencer: s, id: id, slot: sl}, nil
}

type Reservation struct {
	sequencer *Sequencer
	id        uuid.UUID
	slot      *slot
	committed bool
	released  bool
}

// Last is the highest committed sequence at reservation time.
func (r *Reservation) Last() int64 { return r.slot.last }

// Sequence is the number the next durable event must carry.
func (r *Reservation) Sequence() int64 {
	if r.committed {
		return r.slot.last
	}
	return r.slot.last + 1
}

// Commit advances the counter. It must only be called once the event is durable.
func (r *Reservation) Commit() {
	if r.committed || r.released {
		return
	}
	r.slot.last++
	r.committed = true
}

// Release leaves the critical section. Releasing twice is a no-op.
func (r *Reservation) Release() {
	if r == nil || r.released {
		return
	}
	r.released = true
	r.sequencer.forget(r.id, r.slot)
	<-r.slot.sem
}
