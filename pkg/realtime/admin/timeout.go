package admin

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// Timeout 为请求注入带超时的 context
// handler 通过 ctx.Done() 感知超时；连接尝试本身不受影响，会继续为其他调用方执行
func Timeout(d time.Duration, excludePaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(excludePaths))
	for _, p := range excludePaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if d <= 0 || skip[c.Request.URL.Path] {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
