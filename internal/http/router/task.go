package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/forge/internal/http/handler"
)

func TaskRouter(router *gin.RouterGroup, handler *handler.QueueHandler) {
	router.POST("", handler.Enqueue)
	router.GET("/:task_id", handler.Get)
	router.DELETE("/:task_id", handler.Cancel)
}
