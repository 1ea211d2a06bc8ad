//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"conversation-engine/domain"
	"conversation-engine/domain/event"
	"conversation-engine/domain/search"
	"reflect"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventLog is the durable, append-only, per-conversation log of sequenced events.
type EventLog interface {
	Append(ctx context.Context, evt event.Event) error
	Range(ctx context.Context, id uuid.UUID, from, to int64) ([]event.Event, error)
	RangeFrom(ctx context.Context, id uuid.UUID, from int64, count int) ([]event.Event, error)
	RangeTo(ctx context.Context, id uuid.UUID, to int64, count int) ([]event.Event, error)
	LastSequence(ctx context.Context, id uuid.UUID) (int64, error)
	Replay(ctx context.Context, id uuid.UUID, fn func(event.Event) error) error
	Conversations(ctx context.Context) ([]uuid.UUID, error)
}

// AccountDirectory answers whether a user exists and whether the account is deleted.
type AccountDirectory interface {
	Lookup(ctx context.Context, userID string) (domain.Account, error)
}

type ReadMarkerStore interface {
	SaveReadMarker(ctx context.Context, id uuid.UUID, userID string, sequence int64) error
	ReadMarkers(ctx context.Context, id uuid.UUID) (map[string]int64, error)
}

type SearchIndex interface {
	Index(ctx context.Context, evt event.Event) error
	Search(ctx context.Context, query search.Query) ([]search.Hit, error)
}

// TypingLimiter reports whether a typing notification may be emitted now.
// The check and the update of the cooldown are atomic.
type TypingLimiter interface {
	Allow(ctx context.Context, id uuid.UUID, userID string) (bool, error)
}

type Moderator interface {
	Censor(text string) string
}

type EventSink interface {
	Consume(ctx context.Context, evt event.Event) error
}

// Broadcaster delivers an event to the live sessions of the recipients.
// It must not block the caller.
type Broadcaster interface {
	Broadcast(evt event.Event, recipients []string)
}

type IRegistry interface {
	Subscribe(sessionID, userID string, sink EventSink)
	Unsubscribe(sessionID string)
	GetSinksForUsers(userIDs []string) []EventSink
}
