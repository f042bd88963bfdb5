package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/motorland/carmarket/internal/auth"
)

// errorKindTrailer carries the failure kind so callers can distinguish
// failures that share a gRPC code. The status message matches the REST
// error body message for the same failure.
const errorKindTrailer = "x-error-kind"

// codeForKind maps failure kinds onto gRPC status codes.
func codeForKind(kind auth.Kind) codes.Code {
	switch kind {
	case auth.KindInvalidCredentials, auth.KindInvalidRefreshToken, auth.KindUnauthorized:
		return codes.Unauthenticated
	case auth.KindForbidden:
		return codes.PermissionDenied
	case auth.KindTooManyRequests:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// mapErrors converts classified auth failures into gRPC status errors.
// It sits outside the auth and rate limit interceptors so every failure
// on the pipeline is mapped exactly once.
func mapErrors() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}

		var authErr *auth.Error
		if errors.As(err, &authErr) {
			// Trailer set may fail outside a server stream; the status
			// alone still carries the mapped code and message.
			_ = grpc.SetTrailer(ctx, metadata.Pairs(errorKindTrailer, string(authErr.Kind)))
			return nil, status.Error(codeForKind(authErr.Kind), authErr.Message)
		}

		if _, ok := status.FromError(err); ok {
			return nil, err
		}

		return nil, status.Error(codes.Internal, "internal error")
	}
}
