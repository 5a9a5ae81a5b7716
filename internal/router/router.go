package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"smart-card-relay-go/internal/handler"
)

// polled endpoints are kept out of the access log
var quietPaths = []string{"/healthz", "/metrics", "/api/v1/logs"}

// SetupRouter configures the Gin router with routes and middleware
func SetupRouter(h *handler.Handlers) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(accessLog())
	h.SetupRoutes(r)
	return r
}

// accessLog writes one line per request through logrus at info level
func accessLog() gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		Output:    logrus.StandardLogger().WriterLevel(logrus.InfoLevel),
		SkipPaths: quietPaths,
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s %s %s %d %s %q %s\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method+" "+param.Path,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	})
}
