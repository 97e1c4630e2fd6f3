/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package controlapi

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/friendsincode/audioengine/internal/control"
	"github.com/friendsincode/audioengine/internal/eventhub"
)

// serverAPI is the interface the hand-rolled ServiceDesc below dispatches
// to; Service is its only implementation, kept distinct so the dispatch
// plumbing can be tested against a fake.
type serverAPI interface {
	Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Events(req *structpb.Struct, stream eventsServerStream) error
}

// eventsServerStream is the narrow send-side contract Events needs from a
// gRPC server-stream, so it can be satisfied by both the generated-style
// wrapper below and a fake in tests.
type eventsServerStream interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

// Service implements the control API over the engine's control router and
// event hub. It owns no state of its own beyond a subscriber buffer size.
type Service struct {
	logger zerolog.Logger
	router *control.Router
	hub    *eventhub.Hub

	eventBuffer int
}

// New constructs a Service. router and hub must already be started.
func New(logger zerolog.Logger, router *control.Router, hub *eventhub.Hub) *Service {
	return &Service{
		logger:      logger.With().Str("component", "controlapi").Logger(),
		router:      router,
		hub:         hub,
		eventBuffer: 64,
	}
}

// Submit decodes a command envelope, runs it through the control router,
// and returns the Immediate result (or the accepted/pending result for an
// async wait category).
func (s *Service) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	creq, err := requestFromStruct(req)
	if err != nil {
		return nil, err
	}
	cf := s.router.Submit(creq)
	return structFromFinished(cf)
}

// Events streams every engine event to the caller until the stream's
// context is cancelled. req is currently unused but kept in the envelope
// contract for future filtering (by plugin id or event kind).
func (s *Service) Events(req *structpb.Struct, stream eventsServerStream) error {
	id, ch := s.hub.Subscribe(s.eventBuffer)
	defer s.hub.Unsubscribe(id)

	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			envelope, err := structFromEvent(ev)
			if err != nil {
				s.logger.Warn().Err(err).Msg("dropping event that could not be encoded")
				continue
			}
			if err := stream.Send(envelope); err != nil {
				return err
			}
		}
	}
}

// controlAPIEventsServer adapts a raw grpc.ServerStream to the typed
// eventsServerStream contract Events expects, the same pattern
// protoc-gen-go-grpc emits for a server-streaming method.
type controlAPIEventsServer struct {
	grpc.ServerStream
}

func (x *controlAPIEventsServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

const serviceName = "audioengine.controlapi.ControlAPI"

func submitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(serverAPI).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Submit"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(serverAPI).Submit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(serverAPI).Events(in, &controlAPIEventsServer{ServerStream: stream})
}

// serviceDesc is a hand-built grpc.ServiceDesc: this service has no
// .proto file, so there is no protoc-gen-go-grpc stub to register
// instead. Request/response/event payloads are all structpb.Struct, a
// real proto.Message the protobuf module already ships, so the wire
// format is still standard protobuf-over-gRPC; only the request/response
// *naming* is generic rather than per-RPC generated types.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*serverAPI)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Events", Handler: eventsHandler, ServerStreams: true},
	},
	Metadata: "controlapi.proto",
}

// Register attaches Service to server under the control-API service
// descriptor. It adds no interceptors: authentication is whatever server
// was built with (see NewServer and AuthServerOptions).
func Register(server *grpc.Server, svc *Service) {
	server.RegisterService(&serviceDesc, svc)
}

// NewServer builds a *grpc.Server with the control API registered and,
// when secret is non-empty, JWT bearer-token authentication enforced on
// every call.
func NewServer(svc *Service, secret []byte) *grpc.Server {
	var opts []grpc.ServerOption
	if len(secret) > 0 {
		opts = append(opts,
			grpc.UnaryInterceptor(authUnaryInterceptor(secret)),
			grpc.StreamInterceptor(authStreamInterceptor(secret)),
		)
	}
	server := grpc.NewServer(opts...)
	Register(server, svc)
	return server
}
