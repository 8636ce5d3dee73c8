package router

import (
	"scansync/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitSyncRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	strictAuthRouter := r.Group("/sync").Use(middleware.StrictAuth(deps.JWT, deps.Logger))
	{
		strictAuthRouter.POST("/start", deps.SyncHandler.StartSync)
		strictAuthRouter.POST("/stop", deps.SyncHandler.StopSync)
		strictAuthRouter.POST("/retry-failed", deps.SyncHandler.RetryFailed)
		strictAuthRouter.GET("/status", deps.SyncHandler.GetStatus)
		strictAuthRouter.GET("/stats", deps.SyncHandler.GetStats)
		strictAuthRouter.GET("/history", deps.SyncHandler.GetHistory)
		strictAuthRouter.GET("/config", deps.SyncHandler.GetConfig)
		strictAuthRouter.PUT("/config", deps.SyncHandler.UpdateConfig)
		strictAuthRouter.POST("/clear-state", deps.SyncHandler.ClearState)
		strictAuthRouter.GET("/progress", deps.SyncHandler.Progress)
	}
}
