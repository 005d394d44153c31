package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/everkeep/internal/handlers"
)

func registerAuthRoutes(public, authenticated *gin.RouterGroup, handler *handlers.AuthHandler) {
	auth := public.Group("/auth")
	{
		auth.POST("/signup", handler.Signup)
		auth.POST("/login", handler.Login)
		auth.POST("/refresh", handler.Refresh)
	}

	authenticated.GET("/auth/me", handler.Me)
	authenticated.POST("/auth/logout", handler.Logout)
}
