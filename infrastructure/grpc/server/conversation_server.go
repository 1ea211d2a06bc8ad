package server

import (
	"context"
	"conversation-engine/auth"
	"conversation-engine/contract"
	"conversation-engine/domain"
	"conversation-engine/domain/event"
	"conversation-engine/errors"
	"conversation-engine/internal/pbstruct"
	"conversation-engine/services"
	"conversation-engine/sink"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

type ConversationServer struct {
	service              services.IConversationService
	registry             contract.IRegistry
	log                  *slog.Logger
	connectionBufferSize int
	deliveryTimeout      time.Duration
}

func NewConversationServer(log *slog.Logger, service services.IConversationService, registry contract.IRegistry,
	connectionBufferSize int, deliveryTimeout time.Duration) *ConversationServer {
	return &ConversationServer{
		service:              service,
		registry:             registry,
		log:                  log,
		connectionBufferSize: connectionBufferSize,
		deliveryTimeout:      deliveryTimeout,
	}
}

// handle runs one unary call on behalf of the authenticated actor and maps
// its outcome onto the wire.
func handle[T any](ctx context.Context, in *structpb.Struct, call func(actor string, req T) (any, error)) (*structpb.Struct, error) {
	actor, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return nil, errors.MapToGRPCError(errors.ErrUnauthenticated)
	}
	req, err := decode[T](in)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	reply, err := call(actor, req)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	out, err := pbstruct.Encode(reply)
	if err != nil {
		return nil, errors.MapToGRPCError(fmt.Errorf("%w: %v", errors.ErrInternal, err))
	}
	return out, nil
}

func (s *ConversationServer) Create(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, in, func(actor string, config domain.ConversationConfig) (any, error) {
		evt, err := s.service.Create(ctx, actor, config)
		if err != nil {
			return nil, err
		}
		return toEventReply(&evt)
	})
}

func (s *ConversationServer) AddParticipants(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, in, func(actor string, req participantsRequest) (any, error) {
		id, err := parseID(req.ConversationID)
		if err != nil {
			return nil, err
		}
		evt, err := s.service.AddParticipants(ctx, actor, id, req.Participants)
		if err != nil {
			return nil, err
		}
		return toEventReply(evt)
	})
}

func (s *ConversationServer) EditParticipants(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, in, func(actor string, req participantsRequest) (any, error) {
		id, err := parseID(req.ConversationID)
		if err != nil {
			return nil, err
		}
		evt, err := s.service.EditParticipants(ctx, actor, id, req.Participants)
		if err != nil {
			return nil, err
		}
		return toEventReply(evt)
	})
}

func (s *ConversationServer) RemoveParticipants(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, in, func(actor string, req participantsRequest) (any, error) {
		id, err := parseID(req.ConversationID)
		if err != nil {
			return nil, err
		}
		evt, err := s.service.RemoveParticipants(ctx, actor, id, req.UserIDs)
		if err != nil {
			return nil, err
		}
		return toEventReply(evt)
	})
}

func (s *ConversationServer) Update(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, in, func(actor string, req updateRequest) (any, error) {
		id, err := parseID(req.ConversationID)
		if err != nil {
			return nil, err
		}
		evt, err := s.service.Update(ctx, actor, id, req.ConversationUpdate)
		if err != nil {
			return nil, err
		}
		return toEventReply(evt)
	})
}

func (s *ConversationServer) Join(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, in, func(actor string, req conversationRequest) (any, error) {
		id, err := parseID(req.ConversationID)
		if err != nil {
			return nil, err
		}
		evt, err := s.service.Join(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		return toEventReply(evt)
	})
}

func (s *ConversationServer) Leave(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, in, func(actor string, req conversationRequest) (any, error) {
		id, err := parseID(req.ConversationID)
		if err != nil {
			return nil, err
		}
		evt, err := s.service.Leave(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		return toEventReply(evt)
	})
}

// SendMessage returns the sequenced event. Other members, and the sender's
// other sessions, receive it through Connect.
func (s *ConversationServer) SendMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, in, func(actor string, req messageRequest) (any, error) {
		id, err := parseID(req.ConversationID)
		if err != nil {
			return nil, err
		}
		evt, err := s.service.SendMessage(ctx, actor, id, req.Text, req.Payload)
		if err != nil {
			return nil, err
		}
		return toEventReply(&evt)
	})
}

func (s *ConversationServer) MarkAsRead(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, in, func(actor string, req readRequest) (any, error) {
		id, err := parseID(req.ConversationID)
		if err != nil {
			return nil, err
		}
		evt, err := s.service.MarkAsRead(ctx, actor, id, req.Sequence)
		if err != nil {
			return nil, err
		}
		return toEventReply(&evt)
	})
}

func (s *ConversationServer) Typing(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, in, func(actor string, req conversationRequest) (any, error) {
		id, err := parseID(req.ConversationID)
		if err != nil {
			return nil, err
		}
		evt, err := s.service.Typing(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		return toEventReply(&evt)
	})
}

func (s *ConversationServer) Retransmit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, in, func(actor string, req retransmitRequest) (any, error) {
		id, err := parseID(req.ConversationID)
		if err != nil {
			return nil, err
		}
		events, err := s.retransmit(ctx, actor, id, req)
		if err != nil {
			return nil, err
		}
		return toEventsReply(events)
	})
}

func (s *ConversationServer) retransmit(ctx context.Context, actor string, id uuid.UUID, req retransmitRequest) ([]event.Event, error) {
	switch {
	case req.From != nil && req.To != nil && req.Count == nil:
		return s.service.Retransmit(ctx, actor, id, *req.From, *req.To)
	case req.From != nil && req.Count != nil && req.To == nil:
		return s.service.RetransmitFrom(ctx, actor, id, *req.From, *req.Count)
	case req.To != nil && req.Count != nil && req.From == nil:
		return s.service.RetransmitTo(ctx, actor, id, *req.To, *req.Count)
	}
	return nil, fmt.Errorf("%w: expected from+to, from+count or to+count", errors.ErrInvalidRequest)
}

func (s *ConversationServer) Get(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, in, func(actor string, req conversationRequest) (any, error) {
		id, err := parseID(req.ConversationID)
		if err != nil {
			return nil, err
		}
		c, err := s.service.Get(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		return toConversationReply(c, actor), nil
	})
}

func (s *ConversationServer) List(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, in, func(actor string, _ struct{}) (any, error) {
		summaries, err := s.service.List(ctx, actor)
		if err != nil {
			return nil, err
		}
		return toListReply(summaries), nil
	})
}

func (s *ConversationServer) Search(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return handle(ctx, in, func(actor string, req searchRequest) (any, error) {
		id, err := parseID(req.ConversationID)
		if err != nil {
			return nil, err
		}
		hits, err := s.service.Search(ctx, actor, id, req.Query)
		if err != nil {
			return nil, err
		}
		return searchReply{Hits: hits}, nil
	})
}

// Connect streams every event addressed to the user until the client goes away.
// Each stream is its own session, a user may hold several at once.
func (s *ConversationServer) Connect(_ *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	actor, ok := auth.UserIDFromContext(stream.Context())
	if !ok {
		return errors.MapToGRPCError(errors.ErrUnauthenticated)
	}
	sessionID := uuid.NewString()
	grpcSink := sink.NewGrpcSink(s.connectionBufferSize, s.deliveryTimeout)
	s.registry.Subscribe(sessionID, actor, grpcSink)
	defer s.registry.Unsubscribe(sessionID)
	s.log.Debug("Session connected", "user_id", actor, "session_id", sessionID)

	for {
		select {
		case <-stream.Context().Done():
			s.log.Debug("Session disconnected", "user_id", actor, "session_id", sessionID)
			return nil
		case evt := <-grpcSink.ConnectedUserEvent:
			record, err := event.ToRecord(evt)
			if err != nil {
				s.log.Error("Failed to encode event", "conversation_id", evt.ConversationID, "error", err)
				continue
			}
			out, err := pbstruct.Encode(record)
			if err != nil {
				s.log.Error("Failed to encode event", "conversation_id", evt.ConversationID, "error", err)
				continue
			}
			if err = stream.Send(out); err != nil {
				s.log.Error("Failed to push event to stream",
					"user_id", actor,
					"session_id", sessionID,
					"error", err)
				return err
			}
		}
	}
}
