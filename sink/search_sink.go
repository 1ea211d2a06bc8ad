package sink

import (
	"context"
	"conversation-engine/contract"
	"conversation-engine/domain/event"
	"log/slog"
)

// SearchSink feeds committed messages to the full-text index.
type SearchSink struct {
	index contract.SearchIndex
	log   *slog.Logger
}

func NewSearchSink(index contract.SearchIndex, log *slog.Logger) SearchSink {
	return SearchSink{index: index, log: log}
}

func (s SearchSink) Consume(ctx context.Context, e event.Event) error {
	if e.Type != event.MessageSentType {
		return nil
	}
	if err := s.index.Index(ctx, e); err != nil {
		s.log.Warn("Failed to index message",
			"conversation_id", e.ConversationID, "sequence", e.Sequence, "error", err)
		return err
	}
	return nil
}
