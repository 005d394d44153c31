package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/everkeep/internal/handlers"
)

func registerEstateRoutes(authenticated *gin.RouterGroup, handler *handlers.EstateHandler) {
	authenticated.GET("/estate", handler.View)

	assets := authenticated.Group("/assets")
	{
		assets.GET("", handler.ListAssets)
		assets.POST("", handler.CreateAsset)
		assets.PUT("/:id", handler.UpdateAsset)
		assets.DELETE("/:id", handler.DeleteAsset)
	}

	wishes := authenticated.Group("/wishes")
	{
		wishes.GET("", handler.ListWishes)
		wishes.POST("", handler.CreateWish)
		wishes.PUT("/:id", handler.UpdateWish)
		wishes.DELETE("/:id", handler.DeleteWish)
	}

	documents := authenticated.Group("/documents")
	{
		documents.GET("", handler.ListDocuments)
		documents.DELETE("/:id", handler.DeleteDocument)
	}
}
