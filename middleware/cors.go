package middleware

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// 浏览器端跨域调用时要放行的 trace 头
var traceHeaders = []string{"traceparent", "tracestate", "baggage"}

// CORS origins 为空或含 * 时放行所有来源
func CORS(origins ...string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  append([]string{"Origin", "Content-Type", "Accept", "Authorization"}, traceHeaders...),
		ExposeHeaders: traceHeaders,
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
