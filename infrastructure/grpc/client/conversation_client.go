package client

import (
	"context"
	"conversation-engine/domain/event"
	"conversation-engine/infrastructure/grpc/server"
	"conversation-engine/internal/pbstruct"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// ConversationClient calls the conversation service with plain json-tagged
// request values, encoded as Struct messages.
type ConversationClient struct {
	cc    grpc.ClientConnInterface
	token string
}

func NewConversationClient(cc grpc.ClientConnInterface, token string) *ConversationClient {
	return &ConversationClient{cc: cc, token: token}
}

// WithToken returns a client acting as another user over the same connection.
func (c *ConversationClient) WithToken(token string) *ConversationClient {
	return &ConversationClient{cc: c.cc, token: token}
}

func (c *ConversationClient) authorize(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

// Call invokes a unary method and decodes the reply into out, when out is not nil.
func (c *ConversationClient) Call(ctx context.Context, method string, in any, out any, opts ...grpc.CallOption) error {
	req, err := pbstruct.Encode(in)
	if err != nil {
		return err
	}
	reply := new(structpb.Struct)
	if err = c.cc.Invoke(c.authorize(ctx), method, req, reply, opts...); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return pbstruct.Decode(reply, out)
}

// Events is the receiving side of a Connect stream.
type Events struct {
	stream grpc.ServerStreamingClient[structpb.Struct]
}

func (c *ConversationClient) Connect(ctx context.Context, opts ...grpc.CallOption) (*Events, error) {
	stream, err := c.cc.NewStream(c.authorize(ctx), &server.ConversationService_ServiceDesc.Streams[0],
		server.ConversationService_Connect_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err = x.ClientStream.SendMsg(&structpb.Struct{}); err != nil {
		return nil, err
	}
	if err = x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return &Events{stream: x}, nil
}

// Recv blocks until the next event arrives.
func (e *Events) Recv() (event.Event, error) {
	msg, err := e.stream.Recv()
	if err != nil {
		return event.Event{}, err
	}
	var record event.Record
	if err = pbstruct.Decode(msg, &record); err != nil {
		return event.Event{}, err
	}
	return event.FromRecord(record)
}
