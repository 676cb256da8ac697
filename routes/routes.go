// Package routes assembles the go-restful container served over HTTP.
package routes

import (
	"context"
	"net/http"
	"time"

	"recipe-api/auth"
	"recipe-api/controllers"
	"recipe-api/filters"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"github.com/go-openapi/spec"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const apiDocsPath = "/apidocs.json"

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouteRegistrar is implemented by controllers that own one web service.
type RouteRegistrar interface {
	RegisterRoutes(ws *restful.WebService, authFilter restful.FilterFunction)
}

type Options struct {
	ServiceName    string
	MediaURLPrefix string
	AllowedOrigins []string
	Logger         *zap.Logger
	Registry       *prometheus.Registry
	DB             Pinger

	Issuer      *auth.Issuer
	Users       RouteRegistrar
	Tags        RouteRegistrar
	Ingredients RouteRegistrar
	Recipes     *controllers.RecipeController
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// NewContainer registers every web service and the container-wide filters.
func NewContainer(opts Options) *restful.Container {
	container := restful.NewContainer()
	container.DoNotRecover(false)
	container.RecoverHandler(filters.Recover(opts.Logger))

	if len(opts.AllowedOrigins) > 0 {
		cors := restful.CrossOriginResourceSharing{
			AllowedDomains: opts.AllowedOrigins,
			AllowedHeaders: []string{"Content-Type", "Accept", "Authorization"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
			CookiesAllowed: false,
			Container:      container,
		}
		container.Filter(cors.Filter)
		container.Filter(container.OPTIONSFilter)
	}

	metrics := filters.NewMetrics(opts.Registry)
	container.Filter(filters.AccessLog(opts.Logger))
	container.Filter(metrics.Filter)

	authFilter := auth.AuthFilter(opts.Issuer, opts.Logger)

	for _, ctl := range []RouteRegistrar{opts.Users, opts.Tags, opts.Ingredients, opts.Recipes} {
		ws := new(restful.WebService)
		ctl.RegisterRoutes(ws, authFilter)
		container.Add(ws)
	}

	mediaWS := new(restful.WebService)
	opts.Recipes.RegisterMediaRoutes(mediaWS, opts.MediaURLPrefix, authFilter)
	container.Add(mediaWS)

	container.Add(healthService(opts.ServiceName, opts.DB))

	// The document only covers the API services registered above.
	container.Add(restfulspec.NewOpenAPIService(restfulspec.Config{
		WebServices:                   container.RegisteredWebServices(),
		APIPath:                       apiDocsPath,
		PostBuildSwaggerObjectHandler: enrichSwaggerObject(opts.ServiceName),
	}))

	container.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))

	return container
}

func healthService(serviceName string, db Pinger) *restful.WebService {
	ws := new(restful.WebService)
	ws.Path("/health").Produces(restful.MIME_JSON)
	ws.Route(ws.GET("").To(func(request *restful.Request, response *restful.Response) {
		ctx, cancel := context.WithTimeout(request.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			_ = response.WriteHeaderAndJson(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Service: serviceName}, restful.MIME_JSON)
			return
		}
		_ = response.WriteHeaderAndJson(http.StatusOK, HealthResponse{Status: "ok", Service: serviceName}, restful.MIME_JSON)
	}).
		Doc("Liveness and database reachability").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Returns(http.StatusOK, "Healthy", HealthResponse{}).
		Returns(http.StatusServiceUnavailable, "Database unreachable", HealthResponse{}))
	return ws
}

func enrichSwaggerObject(serviceName string) func(*spec.Swagger) {
	return func(swo *spec.Swagger) {
		swo.Info = &spec.Info{
			InfoProps: spec.InfoProps{
				Title:       serviceName,
				Description: "Recipe management API: accounts, tags, ingredients, recipes and images.",
				Version:     "1.0.0",
			},
		}
		swo.SecurityDefinitions = spec.SecurityDefinitions{
			"bearer": spec.APIKeyAuth("Authorization", "header"),
		}
		swo.Tags = []spec.Tag{
			{TagProps: spec.TagProps{Name: "users", Description: "Accounts and tokens"}},
			{TagProps: spec.TagProps{Name: "tags", Description: "Recipe tags"}},
			{TagProps: spec.TagProps{Name: "ingredients", Description: "Recipe ingredients"}},
			{TagProps: spec.TagProps{Name: "recipes", Description: "Recipes and images"}},
		}
	}
}
