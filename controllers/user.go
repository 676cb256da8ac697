package controllers

import (
	"net/http"

	"recipe-api/auth"
	"recipe-api/services"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"go.uber.org/zap"
)

type UserController struct {
	userService services.UserService
	issuer      *auth.Issuer
	logger      *zap.Logger
}

func NewUserController(userService services.UserService, issuer *auth.Issuer, logger *zap.Logger) *UserController {
	return &UserController{userService: userService, issuer: issuer, logger: logger}
}

// TokenRequest is the body of POST /users/token.
type TokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRoutes sets up the user-related routes for a go-restful WebService.
func (ctl *UserController) RegisterRoutes(ws *restful.WebService, authFilter restful.FilterFunction) {
	ws.Path("/users").Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	tags := []string{"users"}

	ws.Route(ws.POST("/create").To(ctl.createUserHandler).
		Doc("Register a new user").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(services.CreateUserInput{}).
		Returns(http.StatusCreated, "User created", services.UserResponse{}).
		Returns(http.StatusBadRequest, "Invalid input or email already registered", nil))

	ws.Route(ws.POST("/token").To(ctl.createTokenHandler).
		Doc("Exchange credentials for a bearer token").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(TokenRequest{}).
		Returns(http.StatusOK, "Token issued", auth.IssuedToken{}).
		Returns(http.StatusBadRequest, "Invalid credentials", nil))

	ws.Route(ws.DELETE("/token").Filter(authFilter).To(ctl.revokeTokenHandler).
		Doc("Revoke the presented token").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Returns(http.StatusNoContent, "Token revoked", nil).
		Returns(http.StatusUnauthorized, "Unauthorized", nil))

	ws.Route(ws.GET("/me").Filter(authFilter).To(ctl.getMeHandler).
		Doc("Get the authenticated user").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes(services.UserResponse{}).
		Returns(http.StatusOK, "OK", services.UserResponse{}).
		Returns(http.StatusUnauthorized, "Unauthorized", nil))

	ws.Route(ws.PUT("/me").Filter(authFilter).To(ctl.updateMeHandler(false)).
		Doc("Replace the authenticated user's profile").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(services.UpdateProfileInput{}).
		Writes(services.UserResponse{}).
		Returns(http.StatusOK, "Profile updated", services.UserResponse{}).
		Returns(http.StatusBadRequest, "Invalid input", nil).
		Returns(http.StatusUnauthorized, "Unauthorized", nil))

	ws.Route(ws.PATCH("/me").Filter(authFilter).To(ctl.updateMeHandler(true)).
		Doc("Partially update the authenticated user's profile").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(services.UpdateProfileInput{}).
		Writes(services.UserResponse{}).
		Returns(http.StatusOK, "Profile updated", services.UserResponse{}).
		Returns(http.StatusBadRequest, "Invalid input", nil).
		Returns(http.StatusUnauthorized, "Unauthorized", nil))
}

// createUserHandler (Handles POST /users/create)
func (ctl *UserController) createUserHandler(request *restful.Request, response *restful.Response) {
	input := new(services.CreateUserInput)
	if !readEntity(request, response, input) {
		return
	}

	user, err := ctl.userService.CreateUser(request.Request.Context(), input)
	if err != nil {
		writeError(ctl.logger, request, response, err)
		return
	}

	_ = response.WriteHeaderAndJson(http.StatusCreated, services.NewUserResponse(user), restful.MIME_JSON)
}

// createTokenHandler (Handles POST /users/token)
func (ctl *UserController) createTokenHandler(request *restful.Request, response *restful.Response) {
	input := new(TokenRequest)
	if !readEntity(request, response, input) {
		return
	}

	token, err := ctl.issuer.Issue(request.Request.Context(), input.Email, input.Password)
	if err != nil {
		writeError(ctl.logger, request, response, err)
		return
	}

	_ = response.WriteHeaderAndJson(http.StatusOK, token, restful.MIME_JSON)
}

// revokeTokenHandler (Handles DELETE /users/token)
func (ctl *UserController) revokeTokenHandler(request *restful.Request, response *restful.Response) {
	token, _ := auth.CurrentToken(request)
	if err := ctl.issuer.Revoke(request.Request.Context(), token); err != nil {
		writeError(ctl.logger, request, response, err)
		return
	}
	response.WriteHeader(http.StatusNoContent)
}

// getMeHandler (Handles GET /users/me)
func (ctl *UserController) getMeHandler(request *restful.Request, response *restful.Response) {
	user, ok := requestingUser(request, response)
	if !ok {
		return
	}
	_ = response.WriteHeaderAndJson(http.StatusOK, services.NewUserResponse(user), restful.MIME_JSON)
}

// updateMeHandler handles PUT (partial=false) and PATCH (partial=true) on /users/me.
func (ctl *UserController) updateMeHandler(partial bool) restful.RouteFunction {
	return func(request *restful.Request, response *restful.Response) {
		user, ok := requestingUser(request, response)
		if !ok {
			return
		}

		input := new(services.UpdateProfileInput)
		if !readEntity(request, response, input) {
			return
		}

		updated, err := ctl.userService.UpdateProfile(request.Request.Context(), user, input, partial)
		if err != nil {
			writeError(ctl.logger, request, response, err)
			return
		}

		_ = response.WriteHeaderAndJson(http.StatusOK, services.NewUserResponse(updated), restful.MIME_JSON)
	}
}
