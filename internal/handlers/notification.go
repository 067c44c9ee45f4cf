package handlers

import (
	"net/http"
	"time"

	"github.com/futureproofmusicschool/futureproof-feedback/internal/db"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/middleware"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/models"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/utils"

	"github.com/gin-gonic/gin"
)

const (
	unreadListCap = 50
	allListCap    = 200

	snippetLength = 140
)

type NotificationHandler struct{}

func NewNotificationHandler() *NotificationHandler {
	return &NotificationHandler{}
}

type notificationSummary struct {
	ID             string                  `json:"id"`
	Type           models.NotificationType `json:"type"`
	CreatedAt      time.Time               `json:"createdAt"`
	IsRead         bool                    `json:"isRead"`
	PostID         string                  `json:"postId"`
	PostTitle      string                  `json:"postTitle"`
	CommentID      string                  `json:"commentId"`
	CommentSnippet string                  `json:"commentSnippet"`
	Actor          string                  `json:"actor"`
}

// List returns the caller's notifications, newest first, enriched with the
// post title, a comment snippet, and the actor's name. Rows whose post,
// comment, or actor no longer resolve (deleted since) are dropped rather
// than erroring.
func (h *NotificationHandler) List(c *gin.Context) {
	user := middleware.CurrentUser(c)

	status := c.DefaultQuery("status", "unread")
	query := db.DB.Preload("Post").Preload("Comment").Preload("Actor").
		Where("user_id = ?", user.ID).
		Order("created_at DESC")

	limit := allListCap
	if status == "unread" {
		query = query.Where("is_read = ?", false)
		limit = unreadListCap
	}

	var notifications []models.Notification
	if err := query.Limit(limit).Find(&notifications).Error; err != nil {
		JSONError(c, http.StatusInternalServerError, "Failed to fetch notifications")
		return
	}

	summaries := make([]notificationSummary, 0, len(notifications))
	for _, n := range notifications {
		if n.Post == nil || n.Comment == nil || n.Actor == nil {
			continue
		}
		summaries = append(summaries, notificationSummary{
			ID:             n.ID,
			Type:           n.Type,
			CreatedAt:      n.CreatedAt,
			IsRead:         n.IsRead,
			PostID:         n.Post.ID,
			PostTitle:      n.Post.Title,
			CommentID:      n.Comment.ID,
			CommentSnippet: utils.Truncate(n.Comment.Body, snippetLength),
			Actor:          n.Actor.Username,
		})
	}

	c.JSON(http.StatusOK, summaries)
}

type markReadRequest struct {
	NotificationIDs []string `json:"notificationIds"`
}

// MarkRead flips is_read for the caller-owned unread notifications among the
// given ids. Ids the caller does not own are silently ignored; partial
// success is normal.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.NotificationIDs) == 0 {
		JSONError(c, http.StatusBadRequest, "notificationIds must be a non-empty array")
		return
	}

	now := time.Now()
	result := db.DB.Model(&models.Notification{}).
		Where("id IN ? AND user_id = ? AND is_read = ?", req.NotificationIDs, user.ID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if result.Error != nil {
		JSONError(c, http.StatusInternalServerError, "Failed to update notifications")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "updated": result.RowsAffected})
}

// ClearAll marks every unread notification for the caller as read.
func (h *NotificationHandler) ClearAll(c *gin.Context) {
	user := middleware.CurrentUser(c)

	now := time.Now()
	result := db.DB.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", user.ID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if result.Error != nil {
		JSONError(c, http.StatusInternalServerError, "Failed to clear notifications")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "cleared": result.RowsAffected})
}
