package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Requests and replies travel as google.protobuf.Struct, shaped by the json
// tags of the records in messages.go.
const ServiceName = "conversation.v1.ConversationService"

const (
	ConversationService_Create_FullMethodName             = "/" + ServiceName + "/Create"
	ConversationService_AddParticipants_FullMethodName    = "/" + ServiceName + "/AddParticipants"
	ConversationService_EditParticipants_FullMethodName   = "/" + ServiceName + "/EditParticipants"
	ConversationService_RemoveParticipants_FullMethodName = "/" + ServiceName + "/RemoveParticipants"
	ConversationService_Update_FullMethodName             = "/" + ServiceName + "/Update"
	ConversationService_Join_FullMethodName               = "/" + ServiceName + "/Join"
	ConversationService_Leave_FullMethodName              = "/" + ServiceName + "/Leave"
	ConversationService_SendMessage_FullMethodName        = "/" + ServiceName + "/SendMessage"
	ConversationService_MarkAsRead_FullMethodName         = "/" + ServiceName + "/MarkAsRead"
	ConversationService_Typing_FullMethodName             = "/" + ServiceName + "/Typing"
	ConversationService_Retransmit_FullMethodName         = "/" + ServiceName + "/Retransmit"
	ConversationService_Get_FullMethodName                = "/" + ServiceName + "/Get"
	ConversationService_List_FullMethodName               = "/" + ServiceName + "/List"
	ConversationService_Search_FullMethodName             = "/" + ServiceName + "/Search"
	ConversationService_Connect_FullMethodName            = "/" + ServiceName + "/Connect"
)

type ConversationServiceServer interface {
	Create(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddParticipants(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EditParticipants(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveParticipants(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Join(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Leave(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarkAsRead(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Typing(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Retransmit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	List(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Search(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Connect(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

func RegisterConversationServiceServer(s grpc.ServiceRegistrar, srv ConversationServiceServer) {
	s.RegisterService(&ConversationService_ServiceDesc, srv)
}

type unaryMethod func(ConversationServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, method unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(ConversationServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(srv.(ConversationServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ConversationServiceServer).Connect(m, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

var ConversationService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ConversationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Create", Handler: unaryHandler(ConversationService_Create_FullMethodName, ConversationServiceServer.Create)},
		{MethodName: "AddParticipants", Handler: unaryHandler(ConversationService_AddParticipants_FullMethodName, ConversationServiceServer.AddParticipants)},
		{MethodName: "EditParticipants", Handler: unaryHandler(ConversationService_EditParticipants_FullMethodName, ConversationServiceServer.EditParticipants)},
		{MethodName: "RemoveParticipants", Handler: unaryHandler(ConversationService_RemoveParticipants_FullMethodName, ConversationServiceServer.RemoveParticipants)},
		{MethodName: "Update", Handler: unaryHandler(ConversationService_Update_FullMethodName, ConversationServiceServer.Update)},
		{MethodName: "Join", Handler: unaryHandler(ConversationService_Join_FullMethodName, ConversationServiceServer.Join)},
		{MethodName: "Leave", Handler: unaryHandler(ConversationService_Leave_FullMethodName, ConversationServiceServer.Leave)},
		{MethodName: "SendMessage", Handler: unaryHandler(ConversationService_SendMessage_FullMethodName, ConversationServiceServer.SendMessage)},
		{MethodName: "MarkAsRead", Handler: unaryHandler(ConversationService_MarkAsRead_FullMethodName, ConversationServiceServer.MarkAsRead)},
		{MethodName: "Typing", Handler: unaryHandler(ConversationService_Typing_FullMethodName, ConversationServiceServer.Typing)},
		{MethodName: "Retransmit", Handler: unaryHandler(ConversationService_Retransmit_FullMethodName, ConversationServiceServer.Retransmit)},
		{MethodName: "Get", Handler: unaryHandler(ConversationService_Get_FullMethodName, ConversationServiceServer.Get)},
		{MethodName: "List", Handler: unaryHandler(ConversationService_List_FullMethodName, ConversationServiceServer.List)},
		{MethodName: "Search", Handler: unaryHandler(ConversationService_Search_FullMethodName, ConversationServiceServer.Search)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       connectHandler,
			ServerStreams: true,
		},
	},
	Metadata: "conversation/v1/conversation.proto",
}
