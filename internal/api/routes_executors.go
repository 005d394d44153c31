package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/everkeep/internal/handlers"
)

func registerExecutorRoutes(authenticated *gin.RouterGroup, executors *handlers.ExecutorHandler, executorships *handlers.ExecutorshipHandler) {
	planner := authenticated.Group("/executors")
	{
		planner.POST("", executors.Invite)
		planner.GET("", executors.List)
		planner.POST("/:id/reissue", executors.Reissue)
		planner.POST("/:id/revoke", executors.Revoke)
	}

	executor := authenticated.Group("/executorships")
	{
		executor.GET("", executorships.List)
		executor.GET("/:plannerID/status", executorships.Status)
		executor.POST("/:plannerID/death-certificate", executorships.SubmitDeathCertificate)
		executor.GET("/:plannerID/estate", executorships.Estate)
	}
}
