package handler

import (
	"context"
	"net/http"
	"time"

	"pluto/pkg/response"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing dependency is reachable
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/ping", h.Ping)
	router.GET("/health", h.Health)
}

// Ping is a liveness probe
// @Summary  Ping
// @Tags     health
// @Produce  plain
// @Success  200  {string}  string  "pong"
// @Router   /ping [get]
func (h *HealthHandler) Ping(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

// Health checks every registered dependency
// @Summary  Health
// @Tags     health
// @Produce  json
// @Success  200  {object}  response.Response
// @Failure  503  {object}  response.Response
// @Router   /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	if status != http.StatusOK {
		res := response.Error(status, "unhealthy")
		res.Data = results
		c.JSON(status, res)
		return
	}
	c.JSON(status, response.Success(status, results))
}
