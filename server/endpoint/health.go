package endpoint

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/gridstore/component"
	"github.com/kbukum/gridstore/observability"
	"github.com/kbukum/gridstore/version"
)

// HealthChecker returns health status for registered components.
type HealthChecker func(ctx context.Context) []component.Health

// Health reports service health with every component's status. A down
// service answers 503; degraded still answers 200.
func Health(serviceName string, checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		sh := observability.NewServiceHealth(serviceName, version.Version)
		if checker != nil {
			sh.AddComponents(checker(c.Request.Context()))
		}
		status := http.StatusOK
		if !sh.IsUp() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, sh)
	}
}
