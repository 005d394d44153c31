package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/everkeep/internal/handlers"
)

func registerInvitationRoutes(public, authenticated *gin.RouterGroup, handler *handlers.InvitationHandler) {
	invitations := public.Group("/invitations")
	{
		invitations.GET("/info", handler.Info)
		invitations.POST("/accept-new", handler.AcceptNew)
		invitations.POST("/continuation", handler.Continuation)
	}

	authenticated.POST("/invitations/accept", handler.Accept)
}
