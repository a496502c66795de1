package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterOps mounts /healthz and /metrics. state reports the worker state.
func RegisterOps(r *gin.Engine, g prometheus.Gatherer, state func() string) {
	r.GET("/healthz", func(c *gin.Context) {
		s := state()
		if s == "stopped" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "worker": s})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "worker": s})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}
