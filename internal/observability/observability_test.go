package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelopeOmitsEmptyMeta(t *testing.T) {
	env := NewEnvelope("presence.changed.v1", "", "", map[string]int{"userId": 1})
	body, err := json.Marshal(env)
	require.NoError(t, err)

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.NotEmpty(t, raw["meta"]["id"])
	assert.NotContains(t, raw["meta"], "producer")
	assert.NotContains(t, raw["meta"], "correlation_id")
	assert.Empty(t, env.Headers())
}

func TestEnvelopeHeadersCarryCorrelation(t *testing.T) {
	env := NewEnvelope("messages.read.v1", "chat-realtime", "req-1", nil)
	assert.Equal(t, map[string]string{"x-request-id": "req-1"}, env.Headers())
	require.NotNil(t, env.Meta.Producer)
	assert.Equal(t, "chat-realtime", *env.Meta.Producer)
}

func TestRequestIDMiddlewareGeneratesID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = RequestID(c)
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "given")
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "given", seen)
}

func TestIPFromRequestPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	assert.Equal(t, "10.0.0.1", IPFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:5123"
	assert.Equal(t, "192.168.1.5", IPFromRequest(req))
}

func TestMessageCounters(t *testing.T) {
	before := testutil.ToFloat64(messagesTotal.WithLabelValues("direct", OutcomeOffline))
	IncMessage("direct", OutcomeOffline)
	assert.Equal(t, before+1, testutil.ToFloat64(messagesTotal.WithLabelValues("direct", OutcomeOffline)))

	SetOnlineUsers(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(onlineUsers))
}

func TestHTTPMetricsMiddlewareUsesRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(HTTPMetricsMiddleware())
	r.GET("/groups/:group_id", func(c *gin.Context) { c.Status(http.StatusOK) })

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/groups/:group_id", "200")
	before := testutil.ToFloat64(counter)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/groups/5", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestSplitFullMethod(t *testing.T) {
	service, method := splitFullMethod("/grpc.health.v1.Health/Check")
	assert.Equal(t, "grpc.health.v1.Health", service)
	assert.Equal(t, "Check", method)

	service, method = splitFullMethod("bogus")
	assert.Equal(t, "unknown", service)
	assert.Equal(t, "unknown", method)
}
