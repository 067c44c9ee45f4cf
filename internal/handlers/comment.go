package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/futureproofmusicschool/futureproof-feedback/internal/db"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/middleware"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/models"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/services"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CommentHandler struct{}

func NewCommentHandler() *CommentHandler {
	return &CommentHandler{}
}

type commentSummary struct {
	ID              string    `json:"id"`
	PostID          string    `json:"postId"`
	ParentCommentID *string   `json:"parentCommentId"`
	Body            string    `json:"body"`
	BodyHTML        string    `json:"bodyHtml"`
	Author          string    `json:"author"`
	CreatedAt       time.Time `json:"createdAt"`
	Score           int       `json:"score"`
	UserVote        int       `json:"userVote"`
}

// List returns every comment on a post, all depths flattened in creation
// order; the client assembles the thread. `view=tree` returns the nested
// form instead, built server-side.
func (h *CommentHandler) List(c *gin.Context) {
	user := middleware.CurrentUser(c)

	postID := c.Query("postId")
	if postID == "" {
		JSONError(c, http.StatusBadRequest, "Missing postId parameter")
		return
	}

	var comments []models.Comment
	if err := db.DB.Preload("User").
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Find(&comments).Error; err != nil {
		JSONError(c, http.StatusInternalServerError, "Failed to fetch comments")
		return
	}

	if c.Query("view") == "tree" {
		c.JSON(http.StatusOK, utils.BuildCommentTree(comments))
		return
	}

	votesByComment, err := loadCommentVotes(comments)
	if err != nil {
		JSONError(c, http.StatusInternalServerError, "Failed to fetch comments")
		return
	}

	summaries := make([]commentSummary, len(comments))
	for i, comment := range comments {
		score, userVote := utils.Aggregate(votesByComment[comment.ID], user.ID)
		summaries[i] = commentSummary{
			ID:              comment.ID,
			PostID:          comment.PostID,
			ParentCommentID: comment.ParentID,
			Body:            comment.Body,
			BodyHTML:        utils.RenderMarkdown(comment.Body),
			Author:          comment.User.Username,
			CreatedAt:       comment.CreatedAt,
			Score:           score,
			UserVote:        userVote,
		}
	}

	c.JSON(http.StatusOK, summaries)
}

type createCommentRequest struct {
	PostID          string `json:"postId"`
	ParentCommentID string `json:"parentCommentId"`
	Body            string `json:"body"`
}

// Create validates everything up front (no partial writes on bad input),
// inserts the comment, then runs the best-effort tail: self-upvote and
// notification fan-out. Neither failure rolls the comment back.
func (h *CommentHandler) Create(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, "Missing required fields")
		return
	}
	if req.PostID == "" || req.Body == "" {
		JSONError(c, http.StatusBadRequest, "Missing required fields")
		return
	}

	var post models.Post
	if err := db.DB.First(&post, "id = ?", req.PostID).Error; err != nil {
		JSONError(c, http.StatusNotFound, "Post not found")
		return
	}

	var parentComment *models.Comment
	var parentID *string
	if req.ParentCommentID != "" {
		var parent models.Comment
		if err := db.DB.First(&parent, "id = ?", req.ParentCommentID).Error; err != nil {
			JSONError(c, http.StatusNotFound, "Parent comment not found")
			return
		}
		if parent.PostID != post.ID {
			JSONError(c, http.StatusBadRequest, "Parent comment does not belong to the same post")
			return
		}
		parentComment = &parent
		parentID = &parent.ID
	}

	comment := models.Comment{
		ID:       uuid.New().String(),
		PostID:   post.ID,
		UserID:   user.ID,
		ParentID: parentID,
		Body:     req.Body,
	}
	if err := db.DB.Create(&comment).Error; err != nil {
		JSONError(c, http.StatusInternalServerError, "Failed to create comment")
		return
	}

	selfVote := models.CommentVote{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		CommentID: comment.ID,
		Value:     1,
	}
	if err := db.DB.Create(&selfVote).Error; err != nil {
		log.Printf("self-vote failed for comment %s: %v", comment.ID, err)
	}

	services.PersistFanOut(&post, &comment, parentComment)

	comment.User = *user
	c.JSON(http.StatusCreated, comment)
}

// Delete removes a caller-owned comment and its votes. Replies stay; the
// tree builder drops branches whose parent no longer resolves.
func (h *CommentHandler) Delete(c *gin.Context) {
	user := middleware.CurrentUser(c)
	commentID := c.Param("id")

	var comment models.Comment
	if err := db.DB.First(&comment, "id = ?", commentID).Error; err != nil {
		JSONError(c, http.StatusNotFound, "Comment not found")
		return
	}
	if comment.UserID != user.ID {
		JSONError(c, http.StatusForbidden, "You can only delete your own comments")
		return
	}

	db.DB.Where("comment_id = ?", comment.ID).Delete(&models.CommentVote{})
	db.DB.Where("comment_id = ?", comment.ID).Delete(&models.Notification{})

	if err := db.DB.Delete(&comment).Error; err != nil {
		JSONError(c, http.StatusInternalServerError, "Failed to delete comment")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func loadCommentVotes(comments []models.Comment) (map[string][]utils.VoteRef, error) {
	grouped := make(map[string][]utils.VoteRef, len(comments))
	if len(comments) == 0 {
		return grouped, nil
	}

	commentIDs := make([]string, len(comments))
	for i, cm := range comments {
		commentIDs[i] = cm.ID
	}

	var votes []models.CommentVote
	if err := db.DB.Where("comment_id IN ?", commentIDs).Find(&votes).Error; err != nil {
		return nil, err
	}
	for _, v := range votes {
		grouped[v.CommentID] = append(grouped[v.CommentID], utils.VoteRef{UserID: v.UserID, Value: v.Value})
	}
	return grouped, nil
}
