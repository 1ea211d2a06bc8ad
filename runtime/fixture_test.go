package runtime

import (
	"context"
	"conversation-engine/domain"
	"conversation-engine/domain/event"
	"conversation-engine/repositories"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Unix(1700000000, 0).UTC()}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type broadcast struct {
	evt        event.Event
	recipients []string
}

type recorder struct {
	mu         sync.Mutex
	broadcasts []broadcast
}

func (r *recorder) Broadcast(evt event.Event, recipients []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, broadcast{evt: evt, recipients: recipients})
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.broadcasts)
}

func (r *recorder) last() broadcast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broadcasts[len(r.broadcasts)-1]
}

type fixture struct {
	engine         *Engine
	retransmission *Retransmission
	events         *repositories.EventLog
	accounts       *repositories.AccountRepository
	markers        *repositories.ReadMarkerRepository
	broadcasts     *recorder
	clock          *clock
}

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newFixture builds an engine over a real badger store with the given registered users.
func newFixture(t *testing.T, users ...string) *fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelError)
	db := openDB(t)
	f := &fixture{
		events:   repositories.NewEventLog(db, log),
		accounts: repositories.NewAccountRepository(db),
		markers:  repositories.NewReadMarkerRepository(db, log),
		clock:    newClock(),
	}
	for _, user := range users {
		_, err := f.accounts.Register(context.Background(), user)
		require.NoError(t, err)
	}
	f.restart()
	return f
}

// restart drops every in-memory state, as a process restart would.
func (f *fixture) restart() {
	log := logs.GetLoggerFromLevel(slog.LevelError)
	f.broadcasts = &recorder{}
	f.engine = NewEngine(log, f.events, f.accounts, f.markers,
		NewTypingLimiter(domain.TypingCooldown, f.clock.Now), f.broadcasts).
		WithClock(f.clock.Now)
	f.retransmission = NewRetransmission(log, f.engine, f.events)
}

func (f *fixture) create(t *testing.T, actor string, config domain.ConversationConfig) uuid.UUID {
	t.Helper()
	evt, err := f.engine.Create(context.Background(), actor, config)
	require.NoError(t, err)
	return evt.ConversationID
}

// send posts n messages and returns the last sequence.
func (f *fixture) send(t *testing.T, actor string, id uuid.UUID, n int) int64 {
	t.Helper()
	var last int64
	for i := 0; i < n; i++ {
		evt, err := f.engine.SendMessage(context.Background(), actor, id, fmt.Sprintf("message %d", i), nil)
		require.NoError(t, err)
		last = evt.Sequence
	}
	return last
}

func members(userIDs ...string) []domain.ParticipantRef {
	refs := make([]domain.ParticipantRef, 0, len(userIDs))
	for _, userID := range userIDs {
		refs = append(refs, domain.ParticipantRef{UserID: userID, Flags: domain.MemberFlags})
	}
	return refs
}

func sequences(events []event.Event) []int64 {
	res := make([]int64, 0, len(events))
	for _, evt := range events {
		res = append(res, evt.Sequence)
	}
	return res
}

func span(from, to int64) []int64 {
	res := make([]int64, 0, to-from+1)
	for seq := from; seq <= to; seq++ {
		res = append(res, seq)
	}
	return res
}
