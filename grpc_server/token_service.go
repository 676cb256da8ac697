package grpcserver

import (
	"context"

	"recipe-api/apperr"
	"recipe-api/auth"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	TokenServiceName             = "recipe.auth.v1.TokenService"
	TokenServiceIntrospectMethod = "/" + TokenServiceName + "/Introspect"
)

// TokenServiceServer lets internal callers check a bearer token. The reply is
// a Struct with the fields valid, user_id, email and error.
type TokenServiceServer interface {
	Introspect(ctx context.Context, token *wrapperspb.StringValue) (*structpb.Struct, error)
}

var TokenServiceDesc = grpc.ServiceDesc{
	ServiceName: TokenServiceName,
	HandlerType: (*TokenServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Introspect", Handler: introspectHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "recipe/auth/v1/token.proto",
}

func RegisterTokenServiceServer(s grpc.ServiceRegistrar, srv TokenServiceServer) {
	s.RegisterService(&TokenServiceDesc, srv)
}

func introspectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenServiceServer).Introspect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TokenServiceIntrospectMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TokenServiceServer).Introspect(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

type tokenServiceServer struct {
	issuer *auth.Issuer
	logger *zap.Logger
}

func NewTokenServiceServer(issuer *auth.Issuer, logger *zap.Logger) TokenServiceServer {
	return &tokenServiceServer{issuer: issuer, logger: logger}
}

// Introspect reports whether the token belongs to an active session. Like any
// other use of the token it extends the idle expiry.
func (s *tokenServiceServer) Introspect(ctx context.Context, token *wrapperspb.StringValue) (*structpb.Struct, error) {
	if token.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "token is required")
	}

	user, err := s.issuer.Resolve(ctx, token.GetValue())
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			s.logger.Error("Token introspection failed", zap.Error(err))
			return nil, status.Error(codes.Internal, "could not verify token")
		}
		return structpb.NewStruct(map[string]any{
			"valid": false,
			"error": apperr.ErrUnauthenticated.Message,
		})
	}

	return structpb.NewStruct(map[string]any{
		"valid":   true,
		"user_id": user.ID,
		"email":   user.Email,
	})
}

// TokenServiceClient is the client side of TokenService.
type TokenServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewTokenServiceClient(cc grpc.ClientConnInterface) *TokenServiceClient {
	return &TokenServiceClient{cc: cc}
}

func (c *TokenServiceClient) Introspect(ctx context.Context, token *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, TokenServiceIntrospectMethod, token, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
