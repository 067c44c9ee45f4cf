package handlers

import (
	"github.com/gin-gonic/gin"
)

// JSONError writes the structured error payload every failure path uses.
// Internal details stay in the logs; callers only see a short message.
func JSONError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}
