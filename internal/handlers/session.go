package handlers

import (
	"net/http"

	"github.com/futureproofmusicschool/futureproof-feedback/internal/middleware"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct{}

func NewSessionHandler() *SessionHandler {
	return &SessionHandler{}
}

// Resolve returns the caller's user record. The identity middleware has
// already upserted it, so this is a pure echo of the resolved session.
func (h *SessionHandler) Resolve(c *gin.Context) {
	user := middleware.CurrentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"id":        user.ID,
		"username":  user.Username,
		"createdAt": user.CreatedAt,
	})
}
