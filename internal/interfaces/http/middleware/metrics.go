// Package middleware 提供 HTTP 中间件
package middleware

import (
	"strconv"
	"time"

	"z-novel-pipeline/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics Prometheus 指标采集中间件
// 事件流连接时间很长，只计数不记录耗时
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		method := c.Request.Method

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		if !isStreamPath(path) {
			metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		}
	}
}

func isStreamPath(path string) bool {
	return path == "/v1/events" || path == "/v1/ws"
}
