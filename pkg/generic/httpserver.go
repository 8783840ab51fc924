package generic

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
	"plcgateway/pkg/apis"
	"plcgateway/pkg/utils/uuidutil"
)

// Default returns the engine every server starts from. An empty allowOrigins allows any origin.
func Default(allowOrigins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(logger(), gin.Recovery(), corsMiddleware(allowOrigins))
	return engine
}

func corsMiddleware(allowOrigins []string) gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	config.AllowHeaders = append(config.AllowHeaders, apis.RequestID)
	config.ExposeHeaders = []string{apis.RequestID}
	if len(allowOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowOrigins
	}
	return cors.New(config)
}

func logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Start timer
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		requestID := c.GetHeader(apis.RequestID)
		if len(requestID) == 0 {
			requestID = uuidutil.UUID()
		}
		c.Set(apis.RequestIDKey, requestID)
		c.Header(apis.RequestID, requestID)

		// Process request
		c.Next()

		// Stop timer
		latency := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}

		klog.V(4).InfoS("Received HTTP request",
			"verb", c.Request.Method,
			"URI", path,
			"status", c.Writer.Status(),
			"latency", latency,
			"requestId", requestID,
			"client", c.ClientIP(),
		)
	}
}
