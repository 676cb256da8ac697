package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"

	"recipe-api/apperr"
	"recipe-api/auth"
	"recipe-api/models"

	restful "github.com/emicklei/go-restful/v3"
	"go.uber.org/zap"
)

// writeError translates service errors to HTTP responses. Internal errors
// are logged and reported without their cause.
func writeError(logger *zap.Logger, request *restful.Request, response *restful.Response, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Unhandled service error",
			zap.String("method", request.Request.Method),
			zap.String("path", request.Request.URL.Path),
			zap.Error(err),
		)
	}
	if status == http.StatusUnauthorized {
		response.AddHeader("WWW-Authenticate", `Bearer realm="api"`)
	}
	_ = response.WriteHeaderAndJson(status, apperr.ToBody(err), restful.MIME_JSON)
}

// readEntity decodes the JSON body into entity and answers 400 on malformed input.
func readEntity(request *restful.Request, response *restful.Response, entity any) bool {
	if err := request.ReadEntity(entity); err != nil {
		_ = response.WriteHeaderAndJson(http.StatusBadRequest, apperr.ToBody(decodeError(err)), restful.MIME_JSON)
		return false
	}
	return true
}

// decodeError turns a JSON decoding failure into a validation error keyed by
// the offending field. Decoder internals never reach the client.
func decodeError(err error) error {
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		return ae
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return apperr.Field("non_field_errors", "Invalid data. Expected a dictionary.")
		}
		return apperr.Field(typeErr.Field, typeMismatchMessage(typeErr))
	}
	return &apperr.AppError{Kind: apperr.KindValidation, Message: "Malformed JSON body.", Err: err}
}

func typeMismatchMessage(typeErr *json.UnmarshalTypeError) string {
	switch typeErr.Type.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "A valid integer is required."
	case reflect.Float32, reflect.Float64:
		return "A valid number is required."
	case reflect.String:
		return "Not a valid string."
	case reflect.Bool:
		return "Must be a valid boolean."
	case reflect.Slice, reflect.Array:
		return fmt.Sprintf("Expected a list of items but got type %q.", typeErr.Value)
	default:
		return "Invalid value."
	}
}

// requestingUser returns the user set by the AuthFilter or answers 401.
func requestingUser(request *restful.Request, response *restful.Response) (*models.User, bool) {
	user, ok := auth.CurrentUser(request)
	if !ok {
		response.AddHeader("WWW-Authenticate", `Bearer realm="api"`)
		_ = response.WriteHeaderAndJson(http.StatusUnauthorized, apperr.ToBody(apperr.ErrUnauthenticated), restful.MIME_JSON)
		return nil, false
	}
	return user, true
}

// pathID parses a numeric path parameter. Anything else is reported as not found.
func pathID(request *restful.Request, name string) (uint, error) {
	id, err := strconv.ParseUint(request.PathParameter(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.NotFoundf(err, "Not found.")
	}
	return uint(id), nil
}
