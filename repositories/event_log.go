package repositories

import (
	"context"
	"conversation-engine/domain/event"
	"conversation-engine/errors"
	"conversation-engine/internal/pbstruct"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	eventPrefix        = "evt:"
	conversationPrefix = "conv:"
	maxSequenceKey     = "9999999999999999999"
)

// EventLog is the durable, append-only log of every conversation.
//
// Events are stored under "evt:{conversation}:{sequence_padded}" so that a prefix
// scan returns them in sequence order. The 19-digit zero padding keeps the
// lexicographical order equal to the numeric one.
type EventLog struct {
	db  *badger.DB
	log *slog.Logger
}

func NewEventLog(db *badger.DB, log *slog.Logger) *EventLog {
	return &EventLog{db: db, log: log}
}

type conversationEntry struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

func eventKey(id uuid.UUID, sequence int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d", eventPrefix, id, sequence))
}

func eventKeyPrefix(id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:", eventPrefix, id))
}

// Append stores a sequenced event. The write is refused when the sequence is
// already taken or when the previous sequence is missing, so the log can neither
// hold duplicates nor gaps. The first event of a conversation also registers it
// in the conversation catalog.
func (l *EventLog) Append(ctx context.Context, evt event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !evt.Type.Sequenced() || evt.Sequence < 1 {
		return fmt.Errorf("%w: %s event with sequence %d cannot be appended",
			errors.ErrInvalidPayload, evt.Type, evt.Sequence)
	}
	record, err := event.ToRecord(evt)
	if err != nil {
		return err
	}
	bytes, err := pbstruct.Marshal(record)
	if err != nil {
		return err
	}

	return l.db.Update(func(txn *badger.Txn) error {
		key := eventKey(evt.ConversationID, evt.Sequence)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: %s already holds sequence %d",
				errors.ErrSequenceConflict, evt.ConversationID, evt.Sequence)
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if evt.Sequence > 1 {
			if _, err := txn.Get(eventKey(evt.ConversationID, evt.Sequence-1)); stderrors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s is missing sequence %d",
					errors.ErrSequenceConflict, evt.ConversationID, evt.Sequence-1)
			} else if err != nil {
				return err
			}
		} else {
			entry, err := pbstruct.Marshal(conversationEntry{ID: evt.ConversationID.String(), CreatedAt: evt.Timestamp})
			if err != nil {
				return err
			}
			if err = txn.Set([]byte(conversationPrefix+evt.ConversationID.String()), entry); err != nil {
				return err
			}
		}
		return txn.Set(key, bytes)
	})
}

// Range returns the events whose sequence is within [from, to], in ascending order.
func (l *EventLog) Range(ctx context.Context, id uuid.UUID, from, to int64) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if from < 1 {
		from = 1
	}
	if to < from {
		return nil, nil
	}

	var events []event.Event
	err := l.db.View(func(txn *badger.Txn) error {
		prefix := eventKeyPrefix(id)
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		options.PrefetchSize = int(min(to-from+1, 100))
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(eventKey(id, from)); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			sequence, err := strconv.ParseInt(string(item.Key()[len(prefix):]), 10, 64)
			if err != nil {
				return fmt.Errorf("corrupted key %q: %w", item.Key(), err)
			}
			if sequence > to {
				break
			}
			err = item.Value(func(value []byte) error {
				evt, err := decodeEvent(value)
				if err != nil {
					return err
				}
				events = append(events, evt)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// RangeFrom returns at most count events starting at from.
func (l *EventLog) RangeFrom(ctx context.Context, id uuid.UUID, from int64, count int) ([]event.Event, error) {
	if count < 1 {
		return nil, nil
	}
	return l.Range(ctx, id, from, from+int64(count)-1)
}

// RangeTo returns at most count events ending at to.
func (l *EventLog) RangeTo(ctx context.Context, id uuid.UUID, to int64, count int) ([]event.Event, error) {
	if count < 1 {
		return nil, nil
	}
	return l.Range(ctx, id, max(1, to-int64(count)+1), to)
}

// LastSequence returns the highest sequence stored for the conversation, zero when empty.
func (l *EventLog) LastSequence(ctx context.Context, id uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var last int64
	err := l.db.View(func(txn *badger.Txn) error {
		prefix := eventKeyPrefix(id)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		it.Seek(append(prefix, []byte(maxSequenceKey)...))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		sequence, err := strconv.ParseInt(string(it.Item().Key()[len(prefix):]), 10, 64)
		if err != nil {
			return fmt.Errorf("corrupted key %q: %w", it.Item().Key(), err)
		}
		last = sequence
		return nil
	})
	return last, err
}

// Replay streams the whole log of a conversation, in order, to fn.
func (l *EventLog) Replay(ctx context.Context, id uuid.UUID, fn func(event.Event) error) error {
	return l.db.View(func(txn *badger.Txn) error {
		prefix := eventKeyPrefix(id)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var evt event.Event
			err := it.Item().Value(func(value []byte) error {
				decoded, err := decodeEvent(value)
				evt = decoded
				return err
			})
			if err != nil {
				return err
			}
			if err = fn(evt); err != nil {
				return err
			}
		}
		return nil
	})
}

// Conversations lists every conversation that has at least one event.
func (l *EventLog) Conversations(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := l.db.View(func(txn *badger.Txn) error {
		prefix := []byte(conversationPrefix)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := uuid.ParseBytes(it.Item().Key()[len(prefix):])
			if err != nil {
				l.log.Warn("Skipping corrupted conversation key", "key", string(it.Item().Key()), "error", err)
				continue
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

// CreatedAt returns when the conversation was registered in the catalog.
func (l *EventLog) CreatedAt(ctx context.Context, id uuid.UUID) (time.Time, error) {
	var entry conversationEntry
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(conversationPrefix + id.String()))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrConversationNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return pbstruct.Unmarshal(value, &entry)
		})
	})
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(entry.CreatedAt, 0).UTC(), ctx.Err()
}

func decodeEvent(value []byte) (event.Event, error) {
	var record event.Record
	if err := pbstruct.Unmarshal(value, &record); err != nil {
		return event.Event{}, err
	}
	return event.FromRecord(record)
}
