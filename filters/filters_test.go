package filters

import (
	"net/http"
	"net/http/httptest"
	"testing"

	restful "github.com/emicklei/go-restful/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newContainer(t *testing.T, filters ...restful.FilterFunction) *restful.Container {
	t.Helper()
	container := restful.NewContainer()
	for _, f := range filters {
		container.Filter(f)
	}
	ws := new(restful.WebService)
	ws.Path("/items")
	ws.Route(ws.GET("/{id}").To(func(req *restful.Request, resp *restful.Response) {
		resp.WriteHeader(http.StatusTeapot)
	}))
	container.Add(ws)
	return container
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	container := newContainer(t, AccessLog(zap.New(core)))

	req := httptest.NewRequest(http.MethodGet, "/items/7", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	container.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "10.0.0.1", fields["client_ip"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status_code"])
	assert.Equal(t, "/items/7", fields["path"])
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	container := newContainer(t, metrics.Filter)

	for i := 0; i < 2; i++ {
		container.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/1", nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.requests.WithLabelValues(http.MethodGet, "/items/{id}", "418")))
}

func TestRecover(t *testing.T) {
	container := restful.NewContainer()
	container.DoNotRecover(false)
	container.RecoverHandler(Recover(zap.NewNop()))
	ws := new(restful.WebService)
	ws.Route(ws.GET("/boom").To(func(*restful.Request, *restful.Response) { panic("boom") }))
	container.Add(ws)

	w := httptest.NewRecorder()
	container.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"message":"An internal error occurred"}`, w.Body.String())
}
