package http

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter configures the gin router with all compliance routes. The
// verify route is protected; run snapshots and session status are readable
// with the run id or address alone.
func SetupRouter(handlers *ComplianceHandlers, apiToken string) *gin.Engine {
	router := gin.Default()

	compliance := router.Group("/compliance")
	{
		compliance.POST("/verify", AuthMiddleware(apiToken), handlers.Verify)
		compliance.GET("/runs/:id", handlers.Run)
		compliance.GET("/runs/:id/events", handlers.RunEvents)
		compliance.GET("/status/:address", handlers.Status)
	}

	return router
}
