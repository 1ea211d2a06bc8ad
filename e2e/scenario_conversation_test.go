package e2e

import (
	"context"
	"conversation-engine/domain/event"
	"conversation-engine/infrastructure/grpc/client"
	"conversation-engine/infrastructure/grpc/server"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ConversationScenarioSuite struct {
	BaseGrpcSuite
}

func TestConversationScenario(t *testing.T) {
	suite.Run(t, new(ConversationScenarioSuite))
}

type eventReply struct {
	Event *event.Record `json:"event"`
}

type eventsReply struct {
	Events []event.Record `json:"events"`
}

func (s *ConversationScenarioSuite) TestMessages_Are_Sequenced_And_Retransmitted() {
	var conversationID string
	var last int64

	s.WithUser("create a conversation", s.Config.Owner, func(ctx context.Context, c *client.ConversationClient) {
		var created eventReply
		err := c.Call(ctx, server.ConversationService_Create_FullMethodName, map[string]any{
			"title":        "e2e",
			"participants": []map[string]any{{"user_id": s.Config.Member, "flags": map[string]any{"can_write": true}}},
		}, &created)
		s.Require().NoError(err)
		s.Require().Equal(int64(1), created.Event.Sequence)
		conversationID = created.Event.ConversationID
	})

	s.WithUser("send three messages", s.Config.Owner, func(ctx context.Context, c *client.ConversationClient) {
		for i, text := range []string{"one", "two", "three"} {
			var sent eventReply
			err := c.Call(ctx, server.ConversationService_SendMessage_FullMethodName,
				map[string]any{"conversation_id": conversationID, "text": text}, &sent)
			s.Require().NoError(err)
			s.Require().Equal(int64(i+2), sent.Event.Sequence)
			last = sent.Event.Sequence
		}
	})

	s.WithUser("retransmit the whole log", s.Config.Member, func(ctx context.Context, c *client.ConversationClient) {
		var reply eventsReply
		err := c.Call(ctx, server.ConversationService_Retransmit_FullMethodName,
			map[string]any{"conversation_id": conversationID, "from": 1, "to": last}, &reply)
		s.Require().NoError(err)
		s.Require().Len(reply.Events, int(last))
		for i, record := range reply.Events {
			s.Equal(int64(i+1), record.Sequence)
		}
	})
}
