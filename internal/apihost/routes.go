package apihost

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forensics/cgnatlog/internal/metrics"
)

func registerRoutes(r *gin.Engine, h *handler) {
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	api := r.Group("/api/v1")
	api.GET("/search", h.search)
	api.GET("/daily-summary/:date", h.dailySummary)
	api.GET("/dates", h.availableDates)
	api.GET("/chart-aggregates/:date", h.chartAggregates)
}
