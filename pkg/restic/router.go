package restic

import (
	"github.com/gin-gonic/gin"

	"github.com/restic115/gateway/pkg/metrics"
)

// GetRouter wires the full restic REST v2 surface onto a fresh gin
// engine. There is no inbound authentication: the gateway trusts
// whatever reaches it and authenticates itself outbound to the cloud
// provider instead.
func GetRouter(metricsListenAddress string, handlers *Handlers, withMetrics bool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), GinLogger())
	if withMetrics {
		router.Use(metrics.PromReqMiddleware())
		go metrics.Server(metricsListenAddress)
	}

	router.GET("/healthz", handlers.HealthCheckEndpoint)

	router.POST("/", handlers.CreateRepository)
	router.DELETE("/", handlers.DeleteRepository)

	router.HEAD("/config", handlers.HeadConfig)
	router.GET("/config", handlers.GetConfig)
	router.POST("/config", handlers.PostConfig)

	router.GET("/:type/", handlers.ListType)
	router.HEAD("/:type/:name", handlers.HeadObject)
	router.GET("/:type/:name", handlers.GetObject)
	router.POST("/:type/:name", handlers.PostObject)
	router.DELETE("/:type/:name", handlers.DeleteObject)

	return router
}
