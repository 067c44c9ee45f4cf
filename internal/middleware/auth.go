package middleware

import (
	"net/http"

	"github.com/futureproofmusicschool/futureproof-feedback/internal/db"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

const UserKey = "user"

// HeaderUsername is set by the host platform's edge; the query param is the
// fallback used when the app is framed directly.
const HeaderUsername = "X-Username"

// Identity is the trust boundary: every request must carry a username from
// the host platform. Missing identity is a hard 401 before any other logic.
// The matching local user is found or created idempotently and stashed in
// the request context.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.GetHeader(HeaderUsername)
		if username == "" {
			username = c.Query("u")
		}
		if username == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing x-username header"})
			return
		}

		user, err := ResolveUser(username)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve user"})
			return
		}

		c.Set(UserKey, user)
		c.Next()
	}
}

// ResolveUser finds or creates the user for a username. Concurrent first-time
// calls race at the unique index; DoNothing plus the follow-up read keeps the
// operation idempotent without creating duplicates.
func ResolveUser(username string) (*models.User, error) {
	candidate := models.User{
		ID:       uuid.New().String(),
		Username: username,
	}
	if err := db.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoNothing: true,
	}).Create(&candidate).Error; err != nil {
		return nil, err
	}

	var user models.User
	if err := db.DB.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CurrentUser pulls the resolved user out of the gin context.
func CurrentUser(c *gin.Context) *models.User {
	return c.MustGet(UserKey).(*models.User)
}
