// Package server exposes the REST surface over the service layer.
// Handlers translate transport concerns (binding, query parsing, status
// codes); every domain rule lives in the services.
package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"fitgent/auth"
	"fitgent/errors"
)

// fail writes the uniform error envelope with the status code mapped from the
// domain error taxonomy.
func fail(c *gin.Context, err error) {
	c.JSON(errors.MapToHTTPStatus(err), gin.H{
		"status":  "error",
		"message": err.Error(),
	})
}

func success(c *gin.Context, code int, data gin.H) {
	c.JSON(code, gin.H{"status": "success", "data": data})
}

// NewRouter assembles the full route table. Auth endpoints are public,
// everything else sits behind the JWT middleware.
func NewRouter(authServer *AuthServer, chatServer *ChatServer, notificationServer *NotificationServer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.POST("/auth/register", authServer.Register)
	router.POST("/auth/login", authServer.Login)

	protected := router.Group("/", auth.Middleware())

	protected.GET("/conversations", chatServer.ListConversations)
	protected.POST("/conversations", chatServer.CreateConversation)
	protected.GET("/conversations/:id", chatServer.GetConversation)
	protected.GET("/conversations/:id/messages", chatServer.ListMessages)
	protected.GET("/conversations/:id/messages/search", chatServer.SearchMessages)
	protected.POST("/conversations/:id/messages", chatServer.SendMessage)
	protected.PUT("/conversations/:id/read", chatServer.MarkConversationRead)
	protected.POST("/conversations/:id/participants", chatServer.AddParticipants)
	protected.DELETE("/messages/:id", chatServer.DeleteMessage)

	protected.GET("/notifications", notificationServer.List)
	protected.GET("/notifications/count", notificationServer.Count)
	protected.PUT("/notifications/read-all", notificationServer.MarkAllRead)
	protected.PUT("/notifications/:id/read", notificationServer.MarkRead)
	protected.DELETE("/notifications/:id", notificationServer.Delete)
	protected.DELETE("/notifications", notificationServer.DeleteRead)
	protected.POST("/notifications", notificationServer.Create)

	return router
}
