package sink

import (
	"context"
	"conversation-engine/domain/event"
	"conversation-engine/internal/pbstruct"
	"fmt"
	"log/slog"
)

type Publisher interface {
	Publish(subject string, data []byte) error
}

// NatsSink republishes every event for consumers outside the process.
// Subjects are "{prefix}.{conversation_id}.{type}", bodies the protobuf JSON of the event record.
type NatsSink struct {
	publisher Publisher
	prefix    string
	log       *slog.Logger
}

func NewNatsSink(publisher Publisher, prefix string, log *slog.Logger) NatsSink {
	return NatsSink{publisher: publisher, prefix: prefix, log: log}
}

func Subject(prefix string, e event.Event) string {
	return fmt.Sprintf("%s.%s.%s", prefix, e.ConversationID, e.Type)
}

func (n NatsSink) Consume(ctx context.Context, e event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record, err := event.ToRecord(e)
	if err != nil {
		return err
	}
	data, err := pbstruct.MarshalJSON(record)
	if err != nil {
		return err
	}
	if err = n.publisher.Publish(Subject(n.prefix, e), data); err != nil {
		n.log.Warn("Failed to publish event", "conversation_id", e.ConversationID, "sequence", e.Sequence, "error", err)
		return err
	}
	return nil
}
