package grpcserver

import (
	"context"

	"recipe-api/apperr"
	"recipe-api/auth"
	"recipe-api/repositories"
	"recipe-api/services"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	RecipeServiceName              = "recipe.v1.RecipeService"
	RecipeServiceListRecipesMethod = "/" + RecipeServiceName + "/ListRecipes"
)

// RecipeServiceServer lists the caller's recipes. The request Struct may hold
// "tags" and "ingredients" as comma separated id lists, the same filters the
// REST listing accepts.
type RecipeServiceServer interface {
	ListRecipes(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var RecipeServiceDesc = grpc.ServiceDesc{
	ServiceName: RecipeServiceName,
	HandlerType: (*RecipeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListRecipes", Handler: listRecipesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "recipe/v1/recipe.proto",
}

func RegisterRecipeServiceServer(s grpc.ServiceRegistrar, srv RecipeServiceServer) {
	s.RegisterService(&RecipeServiceDesc, srv)
}

func listRecipesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecipeServiceServer).ListRecipes(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RecipeServiceListRecipesMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RecipeServiceServer).ListRecipes(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type recipeServiceServer struct {
	recipes services.RecipeService
	logger  *zap.Logger
}

func NewRecipeServiceServer(recipes services.RecipeService, logger *zap.Logger) RecipeServiceServer {
	return &recipeServiceServer{recipes: recipes, logger: logger}
}

func (s *recipeServiceServer) ListRecipes(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, apperr.ErrUnauthenticated.Message)
	}

	fields := req.GetFields()
	tagIDs, err := services.ParseIDList("tags", fields["tags"].GetStringValue())
	if err != nil {
		return nil, s.toStatus(err)
	}
	ingredientIDs, err := services.ParseIDList("ingredients", fields["ingredients"].GetStringValue())
	if err != nil {
		return nil, s.toStatus(err)
	}

	recipes, err := s.recipes.List(ctx, user, repositories.RecipeFilter{TagIDs: tagIDs, IngredientIDs: ingredientIDs})
	if err != nil {
		return nil, s.toStatus(err)
	}

	list := make([]any, 0, len(recipes))
	for i := range recipes {
		r := services.NewRecipeResponse(&recipes[i], s.recipes.ImageURL(recipes[i].Image))
		list = append(list, map[string]any{
			"id":           r.ID,
			"title":        r.Title,
			"tags":         idsToList(r.Tags),
			"ingredients":  idsToList(r.Ingredients),
			"time_minutes": r.TimeMinutes,
			"price":        r.Price,
			"link":         r.Link,
			"image":        r.Image,
		})
	}
	return structpb.NewStruct(map[string]any{"recipes": list})
}

func (s *recipeServiceServer) toStatus(err error) error {
	code := apperr.GRPCCode(err)
	if code == codes.Internal {
		s.logger.Error("Recipe listing failed", zap.Error(err))
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

func idsToList(ids []uint) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, id)
	}
	return out
}

// RecipeServiceClient is the client side of RecipeService.
type RecipeServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewRecipeServiceClient(cc grpc.ClientConnInterface) *RecipeServiceClient {
	return &RecipeServiceClient{cc: cc}
}

func (c *RecipeServiceClient) ListRecipes(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RecipeServiceListRecipesMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
