package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodhisatwazer00ne/WAA-100/pkg/middleware/requestid"
)

func TestResponseMetaCarriesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware(), WithResponseMeta())

	var meta map[string]interface{}
	r.GET("/x", func(c *gin.Context) {
		meta = MetaWithTiming(c, time.Now())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.NotNil(t, meta)
	assert.NotEmpty(t, meta["request_id"])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestMetaWithTimingWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Nil(t, ExtractMeta(c))
	meta := MetaWithTiming(c, time.Now())
	assert.Contains(t, meta, "processing_time_ms")
}

func TestBearerToken(t *testing.T) {
	token, err := bearerToken("bearer  abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	for _, header := range []string{"", "Bearer", "Bearer   ", "Basic abc"} {
		_, err := bearerToken(header)
		assert.Error(t, err, header)
	}
}
