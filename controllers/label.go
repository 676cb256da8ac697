package controllers

import (
	"net/http"
	"strconv"

	"recipe-api/apperr"
	"recipe-api/models"
	"recipe-api/services"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"go.uber.org/zap"
)

// LabelController serves the list and create endpoints of one label kind.
type LabelController[T models.Label] struct {
	service services.LabelService[T]
	path    string
	noun    string
	logger  *zap.Logger
}

func NewTagController(service services.LabelService[models.Tag], logger *zap.Logger) *LabelController[models.Tag] {
	return &LabelController[models.Tag]{service: service, path: "/tags", noun: "tag", logger: logger}
}

func NewIngredientController(service services.LabelService[models.Ingredient], logger *zap.Logger) *LabelController[models.Ingredient] {
	return &LabelController[models.Ingredient]{service: service, path: "/ingredients", noun: "ingredient", logger: logger}
}

func (ctl *LabelController[T]) RegisterRoutes(ws *restful.WebService, authFilter restful.FilterFunction) {
	ws.Path(ctl.path).Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON).Filter(authFilter)
	tags := []string{ctl.path[1:]}

	ws.Route(ws.GET("").To(ctl.listHandler).
		Doc("List the authenticated user's "+ctl.noun+"s").
		Param(ws.QueryParameter("assigned_only", "1 to return only those attached to a recipe").DataType("integer").DefaultValue("0")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes([]services.LabelResponse{}).
		Returns(http.StatusOK, "OK", []services.LabelResponse{}).
		Returns(http.StatusUnauthorized, "Unauthorized", nil))

	ws.Route(ws.POST("").To(ctl.createHandler).
		Doc("Create a "+ctl.noun).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(services.LabelInput{}).
		Returns(http.StatusCreated, "Created", services.LabelResponse{}).
		Returns(http.StatusBadRequest, "Invalid input", nil).
		Returns(http.StatusUnauthorized, "Unauthorized", nil))
}

func (ctl *LabelController[T]) listHandler(request *restful.Request, response *restful.Response) {
	user, ok := requestingUser(request, response)
	if !ok {
		return
	}

	assignedOnly, err := parseFlag("assigned_only", request.QueryParameter("assigned_only"))
	if err != nil {
		writeError(ctl.logger, request, response, err)
		return
	}

	labels, err := ctl.service.List(request.Request.Context(), user, assignedOnly)
	if err != nil {
		writeError(ctl.logger, request, response, err)
		return
	}

	_ = response.WriteHeaderAndJson(http.StatusOK, services.NewLabelResponses(labels), restful.MIME_JSON)
}

func (ctl *LabelController[T]) createHandler(request *restful.Request, response *restful.Response) {
	user, ok := requestingUser(request, response)
	if !ok {
		return
	}

	input := new(services.LabelInput)
	if !readEntity(request, response, input) {
		return
	}

	label, err := ctl.service.Create(request.Request.Context(), user, input.Name)
	if err != nil {
		writeError(ctl.logger, request, response, err)
		return
	}

	_ = response.WriteHeaderAndJson(http.StatusCreated, services.NewLabelResponse(*label), restful.MIME_JSON)
}

// parseFlag reads an integer query flag such as assigned_only=1.
func parseFlag(name, raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return false, apperr.Field(name, "A valid integer is required.")
	}
	return n != 0, nil
}
