// Package grpcserver exposes token introspection and recipe listing to
// internal callers over gRPC.
//
// The services are described with hand-written grpc.ServiceDesc values whose
// messages are protobuf well-known types, so no generated code is needed.
package grpcserver

import (
	"recipe-api/auth"
	"recipe-api/interceptors"
	"recipe-api/services"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// PublicMethods can be called without a bearer token.
var PublicMethods = []string{
	TokenServiceIntrospectMethod,
	healthpb.Health_Check_FullMethodName,
}

// NewServer builds the gRPC server with logging, recovery and auth
// interceptors and registers every service. The health server starts out
// SERVING for the overall server and each service.
func NewServer(issuer *auth.Issuer, recipes services.RecipeService, logger *zap.Logger) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptors.ZapLoggingInterceptor(logger),
			interceptors.RecoveryInterceptor(logger),
			interceptors.AuthInterceptor(issuer, logger, PublicMethods...),
		),
	)

	RegisterTokenServiceServer(server, NewTokenServiceServer(issuer, logger))
	RegisterRecipeServiceServer(server, NewRecipeServiceServer(recipes, logger))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	for _, name := range []string{"", TokenServiceName, RecipeServiceName} {
		healthServer.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}

	return server, healthServer
}
