package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthTimeout = 5 * time.Second

// GET /api/v1/health
func Health(c *gin.Context) {
	deps, ok := dependencies(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	healthy := true
	checks := gin.H{}
	check := func(name string, ping func(ctx context.Context) error) {
		if err := ping(ctx); err != nil {
			healthy = false
			checks[name] = gin.H{"status": "unhealthy", "error": err.Error()}
			deps.logger().Warn("health check failed", "check", name, "error", err)
			return
		}
		checks[name] = gin.H{"status": "healthy"}
	}

	check("database", deps.Database.Ping)
	check("chatwoot", func(ctx context.Context) error {
		_, err := deps.Chatwoot.ListTeams(ctx)
		return err
	})
	check("dify", deps.Assistant.Ping)

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
		return
	}
	RespondSuccess(c, gin.H{"status": "healthy", "checks": checks})
}
