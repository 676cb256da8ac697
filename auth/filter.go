package auth

import (
	"context"

	"recipe-api/apperr"
	"recipe-api/models"

	restful "github.com/emicklei/go-restful/v3"
	"go.uber.org/zap"
)

const (
	userAttribute  = "user"
	tokenAttribute = "token"
)

// AuthFilter creates a go-restful FilterFunction that resolves the bearer
// token and stores the user in the request attributes.
func AuthFilter(issuer *Issuer, logger *zap.Logger) restful.FilterFunction {
	return func(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
		token, ok := BearerToken(req.HeaderParameter("Authorization"))
		if !ok {
			writeUnauthorized(resp)
			return
		}

		user, err := issuer.Resolve(req.Request.Context(), token)
		if err != nil {
			if apperr.KindOf(err) != apperr.KindUnauthenticated {
				logger.Error("Token resolution failed", zap.Error(err))
				_ = resp.WriteHeaderAndJson(apperr.HTTPStatus(err), apperr.ToBody(err), restful.MIME_JSON)
				return
			}
			writeUnauthorized(resp)
			return
		}

		req.SetAttribute(userAttribute, user)
		req.SetAttribute(tokenAttribute, token)
		req.Request = req.Request.WithContext(WithUser(req.Request.Context(), user))

		chain.ProcessFilter(req, resp)
	}
}

func writeUnauthorized(resp *restful.Response) {
	resp.AddHeader("WWW-Authenticate", `Bearer realm="api"`)
	_ = resp.WriteHeaderAndJson(apperr.HTTPStatus(apperr.ErrUnauthenticated), apperr.ToBody(apperr.ErrUnauthenticated), restful.MIME_JSON)
}

// CurrentUser returns the user set by AuthFilter.
func CurrentUser(req *restful.Request) (*models.User, bool) {
	user, ok := req.Attribute(userAttribute).(*models.User)
	return user, ok && user != nil
}

// CurrentToken returns the raw bearer token accepted by AuthFilter.
func CurrentToken(req *restful.Request) (string, bool) {
	token, ok := req.Attribute(tokenAttribute).(string)
	return token, ok && token != ""
}

type contextKey string

const userContextKey contextKey = "user"

// WithUser attaches an authenticated user to ctx. The gRPC auth interceptor uses it too.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userContextKey).(*models.User)
	return user, ok && user != nil
}
