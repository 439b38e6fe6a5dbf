// Package server exposes the controller over a small gRPC admin service.
//
// The service is described by hand with protobuf well-known types
// (structpb / emptypb), so no generated stubs are needed:
//
//	service AdminService {
//	  rpc GetStatus(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc GetSchedule(google.protobuf.Empty) returns (google.protobuf.ListValue);
//	  rpc Deliver(google.protobuf.Struct) returns (google.protobuf.Empty);
//	}
package server

import (
	"context"
	"errors"
	"time"

	"github.com/ChuLiYu/wfh-check/internal/controller"
	"github.com/ChuLiYu/wfh-check/internal/schedule"
	"github.com/ChuLiYu/wfh-check/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "wfhcheck.admin.v1.AdminService"

const (
	methodGetStatus   = "/" + ServiceName + "/GetStatus"
	methodGetSchedule = "/" + ServiceName + "/GetSchedule"
	methodDeliver     = "/" + ServiceName + "/Deliver"
)

// AdminServer is the server API for AdminService.
type AdminServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetSchedule(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	Deliver(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// RegisterAdminServer attaches srv to a gRPC server.
func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&AdminServiceDesc, srv)
}

// AdminServiceDesc is the grpc.ServiceDesc for AdminService.
var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: getStatusHandler},
		{MethodName: "GetSchedule", Handler: getScheduleHandler},
		{MethodName: "Deliver", Handler: deliverHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wfhcheck/admin/v1/admin.proto",
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetStatus}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getScheduleHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).GetSchedule(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetSchedule}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).GetSchedule(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodDeliver}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).Deliver(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Backend is the part of the controller the admin service reads and feeds.
type Backend interface {
	GetStatus() controller.Status
	Schedule() schedule.DailySchedule
	Deliver(msg types.InboundMessage) error
}

// Server implements AdminServer on top of a Backend.
type Server struct {
	backend Backend
}

// NewServer creates a new admin server instance.
func NewServer(backend Backend) *Server {
	return &Server{backend: backend}
}

// GetStatus returns the controller status as a JSON-like struct.
func (s *Server) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st := s.backend.GetStatus()

	sched := make([]any, len(st.Schedule))
	for i, v := range st.Schedule {
		sched[i] = v
	}

	out, err := structpb.NewStruct(map[string]any{
		"session_id":       st.SessionID,
		"date":             st.Date,
		"round":            st.Round,
		"schedule":         sched,
		"next_probe":       st.NextProbe,
		"next_cutoff":      st.NextCutoff.Format(time.RFC3339),
		"pending_timeouts": st.PendingTimeouts,
		"employees":        st.Employees,
		"checked_in":       st.CheckedIn,
		"late":             st.Late,
		"checked_out":      st.CheckedOut,
		"uptime_seconds":   st.Uptime.Seconds(),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	return out, nil
}

// GetSchedule returns today's probe times as HH:MM strings.
func (s *Server) GetSchedule(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	times := s.backend.Schedule().Strings()
	values := make([]any, len(times))
	for i, v := range times {
		values[i] = v
	}

	out, err := structpb.NewList(values)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode schedule: %v", err)
	}
	return out, nil
}

// Deliver injects an inbound message, e.g. when the webhook is unreachable.
// Fields: chat_id, sender_id, sender_handle, text, at (RFC 3339, optional).
func (s *Server) Deliver(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	fields := req.GetFields()
	str := func(key string) string { return fields[key].GetStringValue() }

	msg := types.InboundMessage{
		ChatID:       str("chat_id"),
		SenderID:     types.EmployeeID(str("sender_id")),
		SenderHandle: str("sender_handle"),
		Text:         str("text"),
	}
	if msg.ChatID == "" || msg.SenderID == "" {
		return nil, status.Error(codes.InvalidArgument, "chat_id and sender_id are required")
	}
	if raw := str("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "at: %v", err)
		}
		msg.At = t
	}

	switch err := s.backend.Deliver(msg); {
	case err == nil:
		return &emptypb.Empty{}, nil
	case errors.Is(err, controller.ErrInboxFull):
		return nil, status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, controller.ErrStopped):
		return nil, status.Error(codes.Unavailable, err.Error())
	default:
		return nil, status.Error(codes.Internal, err.Error())
	}
}

// ============================================================================
// Client
// ============================================================================

// AdminClient is the client API for AdminService.
type AdminClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminClient wraps an established connection.
func NewAdminClient(cc grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{cc: cc}
}

func (c *AdminClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetStatus, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) GetSchedule(ctx context.Context, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, methodGetSchedule, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) Deliver(ctx context.Context, msg types.InboundMessage, opts ...grpc.CallOption) error {
	fields := map[string]any{
		"chat_id":       msg.ChatID,
		"sender_id":     string(msg.SenderID),
		"sender_handle": msg.SenderHandle,
		"text":          msg.Text,
	}
	if !msg.At.IsZero() {
		fields["at"] = msg.At.Format(time.RFC3339)
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return err
	}
	return c.cc.Invoke(ctx, methodDeliver, in, new(emptypb.Empty), opts...)
}
