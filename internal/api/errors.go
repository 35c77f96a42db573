package api

import (
	"errors"
	"net/http"

	"venuebook/internal/booking"
	"venuebook/internal/database"
	"venuebook/internal/identity"
	"venuebook/internal/service"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const internalErrorMessage = "internal error"

// errorBody is the JSON shape of every failed HTTP response.
type errorBody struct {
	Error  string   `json:"error"`
	Kind   string   `json:"kind,omitempty"`
	Fields []string `json:"fields,omitempty"`
}

// httpStatus maps err to a status code and a message that is safe to show.
// Unknown errors map to 500 with fallback as the message.
func httpStatus(err error, fallback string) (int, errorBody) {
	var berr *booking.Error
	if errors.As(err, &berr) {
		code := http.StatusBadRequest
		if berr.Kind == booking.KindVenueConflict || berr.Kind == booking.KindAlreadyDecided {
			code = http.StatusConflict
		}
		return code, errorBody{Error: berr.Message, Kind: string(berr.Kind), Fields: berr.Fields}
	}

	switch {
	case errors.Is(err, identity.ErrUnauthenticated):
		return http.StatusUnauthorized, errorBody{Error: identity.ErrUnauthenticated.Error()}
	case errors.Is(err, identity.ErrForbidden):
		return http.StatusForbidden, errorBody{Error: identity.ErrForbidden.Error()}
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "not found"}
	case errors.Is(err, service.ErrRateLimited), errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests, errorBody{Error: err.Error()}
	case errors.Is(err, service.ErrInvalidRole), errors.Is(err, service.ErrInvalidChatID):
		return http.StatusBadRequest, errorBody{Error: err.Error()}
	}
	return http.StatusInternalServerError, errorBody{Error: fallback}
}

// grpcStatus converts err into a gRPC status error.
func grpcStatus(err error, fallback string) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var berr *booking.Error
	if errors.As(err, &berr) {
		switch berr.Kind {
		case booking.KindVenueConflict:
			return status.Error(codes.AlreadyExists, berr.Message)
		case booking.KindAlreadyDecided:
			return status.Error(codes.FailedPrecondition, berr.Message)
		default:
			return status.Error(codes.InvalidArgument, berr.Message)
		}
	}

	switch {
	case errors.Is(err, identity.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, identity.ErrUnauthenticated.Error())
	case errors.Is(err, identity.ErrForbidden):
		return status.Error(codes.PermissionDenied, identity.ErrForbidden.Error())
	case errors.Is(err, database.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, service.ErrRateLimited), errors.Is(err, errRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, service.ErrInvalidRole), errors.Is(err, service.ErrInvalidChatID):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, fallback)
}
