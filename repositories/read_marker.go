package repositories

import (
	"context"
	"conversation-engine/internal/pbstruct"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const readMarkerPrefix = "read:"

// ReadMarkerRepository persists the last read sequence of every participant
// under "read:{conversation}:{user}".
type ReadMarkerRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewReadMarkerRepository(db *badger.DB, log *slog.Logger) *ReadMarkerRepository {
	return &ReadMarkerRepository{db: db, log: log}
}

type diskReadMarker struct {
	UserID   string `json:"user_id"`
	Sequence int64  `json:"sequence"`
}

func readMarkerKeyPrefix(id uuid.UUID) string {
	return fmt.Sprintf("%s%s:", readMarkerPrefix, id)
}

func (r *ReadMarkerRepository) SaveReadMarker(ctx context.Context, id uuid.UUID, userID string, sequence int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := pbstruct.Marshal(diskReadMarker{UserID: userID, Sequence: sequence})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(readMarkerKeyPrefix(id)+userID), data)
	})
}

// ReadMarkers returns the markers of every participant of the conversation, keyed by user.
func (r *ReadMarkerRepository) ReadMarkers(ctx context.Context, id uuid.UUID) (map[string]int64, error) {
	markers := make(map[string]int64)
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(readMarkerKeyPrefix(id))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(value []byte) error {
				var marker diskReadMarker
				if err := pbstruct.Unmarshal(value, &marker); err != nil {
					return err
				}
				markers[marker.UserID] = marker.Sequence
				return nil
			})
			if err != nil {
				r.log.Warn("Skipping unreadable read marker", "key", string(it.Item().Key()), "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return markers, nil
}
