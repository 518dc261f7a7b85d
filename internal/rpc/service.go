// Package rpc exposes the engine over gRPC. Messages are
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP
// API, so the service needs no generated code.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lazypower/affinity/internal/engine"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "affinity.v1.Affinity"

const (
	methodUpdate       = "/" + ServiceName + "/Update"
	methodQuery        = "/" + ServiceName + "/Query"
	methodAgentMessage = "/" + ServiceName + "/RecordAgentMessage"
)

// Query names accepted by the Query method.
const (
	QuerySummary           = "summary"
	QueryOutreach          = "outreach"
	QueryFilter            = "filter"
	QueryTone              = "tone"
	QueryResistance        = "resistance"
	QueryPassiveAggressive = "passive_aggressive"
	QueryCategory          = "category"
	QueryTemporal          = "temporal"
)

// AffinityServer is the server API for the Affinity service.
type AffinityServer interface {
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Query(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordAgentMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the Affinity service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AffinityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Update", Handler: unary(methodUpdate, AffinityServer.Update)},
		{MethodName: "Query", Handler: unary(methodQuery, AffinityServer.Query)},
		{MethodName: "RecordAgentMessage", Handler: unary(methodAgentMessage, AffinityServer.RecordAgentMessage)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "affinity.proto",
}

type unaryMethod func(AffinityServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(fullMethod string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AffinityServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AffinityServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Register adds the Affinity service backed by eng to s.
func Register(s *grpc.Server, eng *engine.Engine) {
	s.RegisterService(&ServiceDesc, &Service{engine: eng})
}

// Service implements AffinityServer over an engine.
type Service struct {
	engine *engine.Engine
}

// request is the common envelope of every call.
type request struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Query     string `json:"query,omitempty"`
	engine.UpdateRequest
}

func (r request) key() engine.Key {
	return engine.Key{UserID: r.UserID, SessionID: r.SessionID}
}

func decodeRequest(in *structpb.Struct) (request, error) {
	var req request
	if err := fromStruct(in, &req); err != nil {
		return req, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	return req, nil
}

func (s *Service) Update(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequest(in)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Update(ctx, req.key(), req.UpdateRequest)
	if err != nil {
		return nil, toStatus(req.key(), "update", err)
	}
	return toStruct(res)
}

func (s *Service) RecordAgentMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequest(in)
	if err != nil {
		return nil, err
	}
	n, err := s.engine.RecordAgentMessage(ctx, req.key())
	if err != nil {
		return nil, toStatus(req.key(), "agent message", err)
	}
	return toStruct(map[string]any{"unanswered_message_count": n})
}

func (s *Service) Query(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequest(in)
	if err != nil {
		return nil, err
	}
	key := req.key()

	var out any
	switch req.Query {
	case QuerySummary, "":
		out, err = s.engine.Summary(ctx, key)
	case QueryOutreach:
		out, err = s.engine.Outreach(ctx, key)
	case QueryFilter:
		var f float64
		f, err = s.engine.FilterEffectiveness(ctx, key)
		out = map[string]any{"filter_effectiveness": f}
	case QueryTone:
		out, err = s.engine.Tone(ctx, key)
	case QueryResistance:
		out, err = s.engine.Resistance(ctx, key)
	case QueryPassiveAggressive:
		var (
			send   bool
			reason string
		)
		send, reason, err = s.engine.PassiveAggressive(ctx, key)
		out = map[string]any{"send": send, "reason": reason}
	case QueryCategory:
		c, cerr := s.engine.Category(ctx, key)
		out, err = map[string]any{"category": string(c)}, cerr
	case QueryTemporal:
		out, err = s.engine.Temporal(ctx, key)
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown query %q", req.Query)
	}
	if err != nil {
		return nil, toStatus(key, req.Query, err)
	}
	return toStruct(out)
}

func toStatus(key engine.Key, op string, err error) error {
	if errors.Is(err, engine.ErrInvalidKey) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	log.Printf("rpc: %s %s: %v", op, key, err)
	return status.Error(codes.Internal, err.Error())
}

// toStruct converts v to a Struct through its JSON encoding.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes a Struct into v through JSON.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
