package interceptors

import (
	"context"

	"recipe-api/apperr"
	"recipe-api/auth"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// AuthInterceptor resolves the bearer token in the "authorization" metadata
// and stores the user in the context for auth.UserFromContext. Methods listed
// in publicMethods skip the check.
func AuthInterceptor(issuer *auth.Issuer, logger *zap.Logger, publicMethods ...string) grpc.UnaryServerInterceptor {
	public := make(map[string]bool, len(publicMethods))
	for _, m := range publicMethods {
		public[m] = true
	}

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if public[info.FullMethod] {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "metadata is not provided")
		}
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "authorization token is not provided")
		}
		token, ok := auth.BearerToken(values[0])
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "invalid authorization header format")
		}

		user, err := issuer.Resolve(ctx, token)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				logger.Error("Token resolution failed", zap.String("method", info.FullMethod), zap.Error(err))
				return nil, status.Error(codes.Internal, "could not verify token")
			}
			return nil, status.Error(apperr.GRPCCode(err), apperr.ErrUnauthenticated.Message)
		}

		return handler(auth.WithUser(ctx, user), req)
	}
}
