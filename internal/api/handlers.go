package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"venuebook/internal/booking"
	"venuebook/internal/identity"
	"venuebook/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const bookingServiceName = "venuebook.v1.BookingService"

// bookingServer is the gRPC surface of the booking workflow. Messages are
// google.protobuf.Struct values carrying the same JSON documents as the HTTP
// API.
type bookingServer interface {
	Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListMine(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListAll(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Decide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Stats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Notifications(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	MarkNotificationRead(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type BookingGRPCService struct {
	svc Services
}

func NewBookingGRPCService(svc Services) *BookingGRPCService {
	return &BookingGRPCService{svc: svc}
}

func principalFrom(ctx context.Context) (identity.Principal, error) {
	p, ok := identity.FromContext(ctx)
	if !ok {
		return identity.Principal{}, status.Error(codes.Unauthenticated, identity.ErrUnauthenticated.Error())
	}
	return p, nil
}

func (g *BookingGRPCService) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}

	b, err := g.svc.Bookings.Submit(ctx, p, booking.Request{
		Venue:               stringField(req, "venue"),
		Date:                stringField(req, "date"),
		StartTime:           stringField(req, "startTime"),
		EndTime:             stringField(req, "endTime"),
		Purpose:             stringField(req, "purpose"),
		Participants:        stringField(req, "participants"),
		SpecialRequirements: stringField(req, "specialRequirements"),
	})
	if err != nil {
		return nil, grpcStatus(err, service.SubmitFailureMessage)
	}
	return toStruct(map[string]any{"message": service.SubmitSuccessMessage, "booking": b})
}

func (g *BookingGRPCService) CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	conflicts, err := g.svc.Bookings.CheckAvailability(ctx,
		stringField(req, "venue"), stringField(req, "date"), stringField(req, "start"), stringField(req, "end"))
	if err != nil {
		return nil, grpcStatus(err, internalErrorMessage)
	}
	return toStruct(map[string]any{"available": len(conflicts) == 0, "conflicts": conflicts})
}

func (g *BookingGRPCService) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	id := stringField(req, "id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	b, err := g.svc.Bookings.Get(ctx, p, id)
	if err != nil {
		return nil, grpcStatus(err, internalErrorMessage)
	}
	return toStruct(b)
}

func (g *BookingGRPCService) ListMine(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	bookings, err := g.svc.Bookings.ListMine(ctx, p, stringField(req, "search"))
	if err != nil {
		return nil, grpcStatus(err, internalErrorMessage)
	}
	return toStruct(map[string]any{"bookings": bookings})
}

func (g *BookingGRPCService) ListAll(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	st, ok := booking.ParseStatusFilter(stringField(req, "status"))
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "invalid status filter")
	}
	bookings, err := g.svc.Bookings.ListAll(ctx, p, booking.Filter{Status: st, Search: stringField(req, "search")})
	if err != nil {
		return nil, grpcStatus(err, internalErrorMessage)
	}
	return toStruct(map[string]any{"bookings": bookings})
}

func (g *BookingGRPCService) Decide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	b, err := g.svc.Bookings.Decide(ctx, p, stringField(req, "id"), stringField(req, "decision"), stringField(req, "reason"))
	if err != nil {
		return nil, grpcStatus(err, internalErrorMessage)
	}
	return toStruct(b)
}

func (g *BookingGRPCService) Stats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := g.svc.Bookings.Stats(ctx, p)
	if err != nil {
		return nil, grpcStatus(err, internalErrorMessage)
	}
	return toStruct(counts)
}

func (g *BookingGRPCService) Notifications(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	unread := req.GetFields()["unreadOnly"].GetBoolValue()
	list, err := g.svc.Bookings.Notifications(ctx, p, unread)
	if err != nil {
		return nil, grpcStatus(err, internalErrorMessage)
	}
	return toStruct(map[string]any{"notifications": list})
}

func (g *BookingGRPCService) MarkNotificationRead(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := g.svc.Bookings.MarkNotificationRead(ctx, p, stringField(req, "id")); err != nil {
		return nil, grpcStatus(err, internalErrorMessage)
	}
	return &structpb.Struct{}, nil
}

// stringField reads key as text. Numbers are formatted without a fraction
// when they are whole.
func stringField(s *structpb.Struct, key string) string {
	v, ok := s.GetFields()[key]
	if !ok {
		return ""
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue)
	default:
		return ""
	}
}

// toStruct converts v through its JSON form so the gRPC payload matches the
// HTTP document.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

type structMethod func(*BookingGRPCService, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, m structMethod) grpc.MethodHandler {
	fullMethod := fmt.Sprintf("/%s/%s", bookingServiceName, name)
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(*BookingGRPCService)
		if interceptor == nil {
			return m(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return m(s, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: bookingServiceName,
	HandlerType: (*bookingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: unaryHandler("Submit", (*BookingGRPCService).Submit)},
		{MethodName: "CheckAvailability", Handler: unaryHandler("CheckAvailability", (*BookingGRPCService).CheckAvailability)},
		{MethodName: "Get", Handler: unaryHandler("Get", (*BookingGRPCService).Get)},
		{MethodName: "ListMine", Handler: unaryHandler("ListMine", (*BookingGRPCService).ListMine)},
		{MethodName: "ListAll", Handler: unaryHandler("ListAll", (*BookingGRPCService).ListAll)},
		{MethodName: "Decide", Handler: unaryHandler("Decide", (*BookingGRPCService).Decide)},
		{MethodName: "Stats", Handler: unaryHandler("Stats", (*BookingGRPCService).Stats)},
		{MethodName: "Notifications", Handler: unaryHandler("Notifications", (*BookingGRPCService).Notifications)},
		{MethodName: "MarkNotificationRead", Handler: unaryHandler("MarkNotificationRead", (*BookingGRPCService).MarkNotificationRead)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "venuebook/v1/booking.proto",
}

func isBookingMethod(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, "/"+bookingServiceName+"/")
}
