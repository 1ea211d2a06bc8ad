package repositories

import (
	"context"
	"conversation-engine/domain/event"
	"conversation-engine/domain/search"
	"fmt"
	"log/slog"

	"github.com/blugelabs/bluge"
)

const (
	fieldConversation = "conversation"
	fieldSequence     = "sequence"
	fieldActor        = "actor"
	fieldText         = "text"
)

// SearchIndex keeps a full-text index of message texts in Bluge.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger) *SearchIndex {
	return &SearchIndex{writer: writer, log: log}
}

// Index stores the text of a message event. Other events are ignored.
// Indexing the same event twice overwrites the previous document.
func (s *SearchIndex) Index(ctx context.Context, evt event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, ok := evt.Payload.(event.MessageSent)
	if !ok || msg.Text == "" {
		return nil
	}
	doc := bluge.NewDocument(fmt.Sprintf("%s:%019d", evt.ConversationID, evt.Sequence)).
		AddField(bluge.NewKeywordField(fieldConversation, evt.ConversationID.String())).
		AddField(bluge.NewNumericField(fieldSequence, float64(evt.Sequence)).StoreValue().Sortable()).
		AddField(bluge.NewKeywordField(fieldActor, evt.Actor).StoreValue()).
		AddField(bluge.NewTextField(fieldText, msg.Text).StoreValue())
	if err := s.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index %s:%d: %w", evt.ConversationID, evt.Sequence, err)
	}
	return nil
}

// Search returns matching messages ordered by sequence.
func (s *SearchIndex) Search(ctx context.Context, query search.Query) ([]search.Hit, error) {
	if query.Terms == "" || query.From > query.To {
		return nil, nil
	}
	if query.Limit <= 0 {
		query.Limit = search.DefaultLimit
	}
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open search reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.log.Warn("Failed to close search reader", "error", err)
		}
	}()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(query.ConversationID.String()).SetField(fieldConversation)).
		AddMust(bluge.NewMatchQuery(query.Terms).SetField(fieldText)).
		AddMust(bluge.NewNumericRangeInclusiveQuery(float64(query.From), float64(query.To), true, true).
			SetField(fieldSequence))
	if query.Actor != "" {
		q.AddMust(bluge.NewTermQuery(query.Actor).SetField(fieldActor))
	}
	request := bluge.NewTopNSearch(query.Limit, q).SortBy([]string{fieldSequence})

	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", query.ConversationID, err)
	}

	var hits []search.Hit
	match, err := matches.Next()
	for err == nil && match != nil {
		var hit search.Hit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case fieldSequence:
				sequence, decodeErr := bluge.DecodeNumericFloat64(value)
				if decodeErr == nil {
					hit.Sequence = int64(sequence)
				}
			case fieldActor:
				hit.Actor = string(value)
			case fieldText:
				hit.Text = string(value)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}
