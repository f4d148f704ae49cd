package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/forge/internal/http/handler"
)

type Handlers struct {
	Webhook *handler.WebhookHandler
	Queue   *handler.QueueHandler
	Events  *handler.EventsHandler
}

func SetupRoutes(router *gin.Engine, handlers Handlers) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	router.POST("/webhooks/gitlab", handlers.Webhook.HandleGitLab)

	v1 := router.Group("/api/v1")
	{
		tasks := v1.Group("/tasks")
		TaskRouter(tasks, handlers.Queue)

		v1.GET("/queue/stats", handlers.Queue.Stats)
		v1.GET("/agents", handlers.Queue.Agents)
		v1.PATCH("/agents/:agent_id/state", handlers.Queue.SetAgentState)
		v1.GET("/events", handlers.Events.Stream)
	}
}
