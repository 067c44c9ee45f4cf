package router

import (
	"net/http"

	"github.com/futureproofmusicschool/futureproof-feedback/internal/handlers"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine) {
	// Handlers
	sessionHandler := handlers.NewSessionHandler()
	postHandler := handlers.NewPostHandler()
	commentHandler := handlers.NewCommentHandler()
	voteHandler := handlers.NewVoteHandler()
	notificationHandler := handlers.NewNotificationHandler()
	uploadHandler := handlers.NewUploadHandler()

	// Health check stays outside the identity gate.
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Everything else requires the trusted identity header.
	api := r.Group("/api")
	api.Use(middleware.Identity())
	{
		api.GET("/session", sessionHandler.Resolve)

		api.GET("/posts", postHandler.List)
		api.POST("/posts", postHandler.Create)
		api.GET("/posts/:id", postHandler.Detail)
		api.DELETE("/posts/:id", postHandler.Delete)
		api.GET("/posts/:id/signed-url", postHandler.SignedURL)
		api.POST("/posts/:id/vote", voteHandler.VotePost)

		api.GET("/comments", commentHandler.List)
		api.POST("/comments", commentHandler.Create)
		api.DELETE("/comments/:id", commentHandler.Delete)
		api.POST("/comments/:id/vote", voteHandler.VoteComment)

		api.GET("/notifications", notificationHandler.List)
		api.POST("/notifications/mark-read", notificationHandler.MarkRead)
		api.POST("/notifications/clear", notificationHandler.ClearAll)

		api.POST("/upload/signed-url", uploadHandler.SignAudioUpload)
		api.POST("/upload/image-signed-url", uploadHandler.SignImageUpload)
	}
}
