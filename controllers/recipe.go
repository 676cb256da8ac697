package controllers

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"recipe-api/apperr"
	"recipe-api/repositories"
	"recipe-api/services"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"go.uber.org/zap"
)

const (
	recipeIDParam  = "recipe-id"
	mimeMultipart  = "multipart/form-data"
	imageFormField = "image"
)

type RecipeController struct {
	recipeService  services.RecipeService
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewRecipeController(recipeService services.RecipeService, maxUploadBytes int64, logger *zap.Logger) *RecipeController {
	return &RecipeController{recipeService: recipeService, maxUploadBytes: maxUploadBytes, logger: logger}
}

// RegisterRoutes sets up the recipe routes. Every route requires authentication.
func (ctl *RecipeController) RegisterRoutes(ws *restful.WebService, authFilter restful.FilterFunction) {
	ws.Path("/recipes").Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON).Filter(authFilter)
	tags := []string{"recipes"}
	idParam := ws.PathParameter(recipeIDParam, "Identifier of the recipe").DataType("integer")

	ws.Route(ws.GET("").To(ctl.listHandler).
		Doc("List the authenticated user's recipes").
		Param(ws.QueryParameter("tags", "Comma separated tag ids").DataType("string")).
		Param(ws.QueryParameter("ingredients", "Comma separated ingredient ids").DataType("string")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes([]services.RecipeResponse{}).
		Returns(http.StatusOK, "OK", []services.RecipeResponse{}).
		Returns(http.StatusBadRequest, "Malformed filter", nil).
		Returns(http.StatusUnauthorized, "Unauthorized", nil))

	ws.Route(ws.POST("").To(ctl.createHandler).
		Doc("Create a recipe").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(services.RecipeInput{}).
		Returns(http.StatusCreated, "Created", services.RecipeDetailResponse{}).
		Returns(http.StatusBadRequest, "Invalid input", nil).
		Returns(http.StatusUnauthorized, "Unauthorized", nil))

	ws.Route(ws.GET("/{"+recipeIDParam+"}").To(ctl.getHandler).
		Doc("Get a recipe").
		Param(idParam).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes(services.RecipeDetailResponse{}).
		Returns(http.StatusOK, "OK", services.RecipeDetailResponse{}).
		Returns(http.StatusUnauthorized, "Unauthorized", nil).
		Returns(http.StatusNotFound, "Recipe not found", nil))

	ws.Route(ws.PUT("/{"+recipeIDParam+"}").To(ctl.updateHandler(false)).
		Doc("Replace a recipe").
		Param(idParam).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(services.RecipeInput{}).
		Writes(services.RecipeDetailResponse{}).
		Returns(http.StatusOK, "Updated", services.RecipeDetailResponse{}).
		Returns(http.StatusBadRequest, "Invalid input", nil).
		Returns(http.StatusUnauthorized, "Unauthorized", nil).
		Returns(http.StatusNotFound, "Recipe not found", nil))

	ws.Route(ws.PATCH("/{"+recipeIDParam+"}").To(ctl.updateHandler(true)).
		Doc("Partially update a recipe").
		Param(idParam).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(services.RecipeInput{}).
		Writes(services.RecipeDetailResponse{}).
		Returns(http.StatusOK, "Updated", services.RecipeDetailResponse{}).
		Returns(http.StatusBadRequest, "Invalid input", nil).
		Returns(http.StatusUnauthorized, "Unauthorized", nil).
		Returns(http.StatusNotFound, "Recipe not found", nil))

	ws.Route(ws.DELETE("/{"+recipeIDParam+"}").To(ctl.deleteHandler).
		Doc("Delete a recipe").
		Param(idParam).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Returns(http.StatusNoContent, "Deleted", nil).
		Returns(http.StatusUnauthorized, "Unauthorized", nil).
		Returns(http.StatusNotFound, "Recipe not found", nil))

	ws.Route(ws.POST("/{"+recipeIDParam+"}/upload-image").To(ctl.uploadImageHandler).
		Doc("Upload the recipe image").
		Consumes(mimeMultipart).
		Param(idParam).
		Param(ws.FormParameter(imageFormField, "Image file (jpeg, png, gif, webp or bmp)").DataType("file")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Returns(http.StatusOK, "Image stored", services.RecipeImageResponse{}).
		Returns(http.StatusBadRequest, "Not an image", nil).
		Returns(http.StatusUnauthorized, "Unauthorized", nil).
		Returns(http.StatusNotFound, "Recipe not found", nil))
}

// RegisterMediaRoutes serves stored images under prefix to the owners of the
// recipes that reference them.
func (ctl *RecipeController) RegisterMediaRoutes(ws *restful.WebService, prefix string, authFilter restful.FilterFunction) {
	ws.Path(strings.TrimRight(prefix, "/")).Filter(authFilter)

	ws.Route(ws.GET("/uploads/recipe/{file}").To(ctl.serveImageHandler).
		Doc("Download a recipe image").
		Param(ws.PathParameter("file", "Stored file name")).
		Produces("image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp").
		Metadata(restfulspec.KeyOpenAPITags, []string{"media"}).
		Returns(http.StatusOK, "Image bytes", nil).
		Returns(http.StatusUnauthorized, "Unauthorized", nil).
		Returns(http.StatusNotFound, "Not found", nil))
}

func (ctl *RecipeController) listHandler(request *restful.Request, response *restful.Response) {
	user, ok := requestingUser(request, response)
	if !ok {
		return
	}

	tagIDs, err := services.ParseIDList("tags", request.QueryParameter("tags"))
	if err != nil {
		writeError(ctl.logger, request, response, err)
		return
	}
	ingredientIDs, err := services.ParseIDList("ingredients", request.QueryParameter("ingredients"))
	if err != nil {
		writeError(ctl.logger, request, response, err)
		return
	}

	recipes, err := ctl.recipeService.List(request.Request.Context(), user, repositories.RecipeFilter{
		TagIDs:        tagIDs,
		IngredientIDs: ingredientIDs,
	})
	if err != nil {
		writeError(ctl.logger, request, response, err)
		return
	}

	out := make([]services.RecipeResponse, 0, len(recipes))
	for i := range recipes {
		out = append(out, services.NewRecipeResponse(&recipes[i], ctl.recipeService.ImageURL(recipes[i].Image)))
	}
	_ = response.WriteHeaderAndJson(http.StatusOK, out, restful.MIME_JSON)
}

func (ctl *RecipeController) createHandler(request *restful.Request, response *restful.Response) {
	user, ok := requestingUser(request, response)
	if !ok {
		return
	}

	input := new(services.RecipeInput)
	if !readEntity(request, response, input) {
		return
	}

	recipe, err := ctl.recipeService.Create(request.Request.Context(), user, input)
	if err != nil {
		writeError(ctl.logger, request, response, err)
		return
	}

	detail := services.NewRecipeDetailResponse(recipe, ctl.recipeService.ImageURL(recipe.Image))
	_ = response.WriteHeaderAndJson(http.StatusCreated, detail, restful.MIME_JSON)
}

func (ctl *RecipeController) getHandler(request *restful.Request, response *restful.Response) {
	user, ok := requestingUser(request, response)
	if !ok {
		return
	}
	id, err := pathID(request, recipeIDParam)
	if err != nil {
		writeError(ctl.logger, request, response, err)
		return
	}

	recipe, err := ctl.recipeService.Get(request.Request.Context(), user, id)
	if err != nil {
		writeError(ctl.logger, request, response, err)
		return
	}

	detail := services.NewRecipeDetailResponse(recipe, ctl.recipeService.ImageURL(recipe.Image))
	_ = response.WriteHeaderAndJson(http.StatusOK, detail, restful.MIME_JSON)
}

func (ctl *RecipeController) updateHandler(partial bool) restful.RouteFunction {
	return func(request *restful.Request, response *restful.Response) {
		user, ok := requestingUser(request, response)
		if !ok {
			return
		}
		id, err := pathID(request, recipeIDParam)
		if err != nil {
			writeError(ctl.logger, request, response, err)
			return
		}

		input := new(services.RecipeInput)
		if !readEntity(request, response, input) {
			return
		}

		recipe, err := ctl.recipeService.Update(request.Request.Context(), user, id, input, partial)
		if err != nil {
			writeError(ctl.logger, request, response, err)
			return
		}

		detail := services.NewRecipeDetailResponse(recipe, ctl.recipeService.ImageURL(recipe.Image))
		_ = response.WriteHeaderAndJson(http.StatusOK, detail, restful.MIME_JSON)
	}
}

func (ctl *RecipeController) deleteHandler(request *restful.Request, response *restful.Response) {
	user, ok := requestingUser(request, response)
	if !ok {
		return
	}
	id, err := pathID(request, recipeIDParam)
	if err != nil {
		writeError(ctl.logger, request, response, err)
		return
	}

	if err := ctl.recipeService.Delete(request.Request.Context(), user, id); err != nil {
		writeError(ctl.logger, request, response, err)
		return
	}
	response.WriteHeader(http.StatusNoContent)
}

func (ctl *RecipeController) uploadImageHandler(request *restful.Request, response *restful.Response) {
	user, ok := requestingUser(request, response)
	if !ok {
		return
	}
	id, err := pathID(request, recipeIDParam)
	if err != nil {
		writeError(ctl.logger, request, response, err)
		return
	}

	// Leave headroom for the multipart envelope; the store enforces the image limit.
	request.Request.Body = http.MaxBytesReader(response.ResponseWriter, request.Request.Body, ctl.maxUploadBytes+1<<20)
	file, header, err := request.Request.FormFile(imageFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		msg := "No file was submitted."
		if errors.As(err, &tooLarge) {
			msg = "Upload a valid image. The file you uploaded was too large."
		}
		writeError(ctl.logger, request, response, apperr.Field(imageFormField, msg))
		return
	}
	defer file.Close()

	recipe, err := ctl.recipeService.UploadImage(request.Request.Context(), user, id, header.Filename, file)
	if err != nil {
		writeError(ctl.logger, request, response, err)
		return
	}

	out := services.RecipeImageResponse{ID: recipe.ID, Image: ctl.recipeService.ImageURL(recipe.Image)}
	_ = response.WriteHeaderAndJson(http.StatusOK, out, restful.MIME_JSON)
}

func (ctl *RecipeController) serveImageHandler(request *restful.Request, response *restful.Response) {
	user, ok := requestingUser(request, response)
	if !ok {
		return
	}

	name := request.PathParameter("file")
	if name == "" || strings.ContainsAny(name, `/\`) {
		writeError(ctl.logger, request, response, apperr.ErrNotFound)
		return
	}

	file, err := ctl.recipeService.OpenImage(request.Request.Context(), user, path.Join("uploads/recipe", name))
	if err != nil {
		writeError(ctl.logger, request, response, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		writeError(ctl.logger, request, response, err)
		return
	}
	response.AddHeader("Cache-Control", "private")
	http.ServeContent(response.ResponseWriter, request.Request, name, info.ModTime(), file)
}
