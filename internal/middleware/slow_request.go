package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lold2424/LessURL-Service/internal/model"
)

// SlowRequestRecorder stores PERFORMANCE events
type SlowRequestRecorder interface {
	RecordSlowRequest(ctx context.Context, data model.PerformanceData)
}

// SlowRequests records every request slower than threshold. The event is
// written after the response, detached from the request's cancellation.
func SlowRequests(recorder SlowRequestRecorder, threshold time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		if threshold <= 0 || elapsed < threshold {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		recorder.RecordSlowRequest(context.WithoutCancel(c.Request.Context()), model.PerformanceData{
			Path:     path,
			URL:      c.Request.URL.String(),
			Duration: elapsed.Milliseconds(),
		})
	}
}
