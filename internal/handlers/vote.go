package handlers

import (
	"net/http"

	"github.com/futureproofmusicschool/futureproof-feedback/internal/db"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/middleware"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

type VoteHandler struct{}

func NewVoteHandler() *VoteHandler {
	return &VoteHandler{}
}

type voteRequest struct {
	Value *int `json:"value"`
}

func parseVoteValue(c *gin.Context) (int, bool) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Value == nil {
		JSONError(c, http.StatusBadRequest, "Vote value must be -1, 0, or 1")
		return 0, false
	}
	v := *req.Value
	if v != -1 && v != 0 && v != 1 {
		JSONError(c, http.StatusBadRequest, "Vote value must be -1, 0, or 1")
		return 0, false
	}
	return v, true
}

// VotePost sets, changes, or (value 0) removes the caller's vote on a post,
// then refreshes the post's denormalized score cache from the live vote rows.
func (h *VoteHandler) VotePost(c *gin.Context) {
	user := middleware.CurrentUser(c)
	postID := c.Param("id")

	value, ok := parseVoteValue(c)
	if !ok {
		return
	}

	var post models.Post
	if err := db.DB.First(&post, "id = ?", postID).Error; err != nil {
		JSONError(c, http.StatusNotFound, "Post not found")
		return
	}

	if value == 0 {
		if err := db.DB.Where("user_id = ? AND post_id = ?", user.ID, postID).
			Delete(&models.PostVote{}).Error; err != nil {
			JSONError(c, http.StatusInternalServerError, "Failed to vote")
			return
		}
	} else {
		vote := models.PostVote{
			ID:     uuid.New().String(),
			UserID: user.ID,
			PostID: postID,
			Value:  value,
		}
		// Conflicts on (user_id, post_id) overwrite the prior value;
		// concurrent writes resolve last-write-wins at the store.
		if err := db.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "post_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&vote).Error; err != nil {
			JSONError(c, http.StatusInternalServerError, "Failed to vote")
			return
		}
	}

	if err := refreshPostScore(postID); err != nil {
		JSONError(c, http.StatusInternalServerError, "Failed to vote")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "newVote": value})
}

// VoteComment mirrors VotePost for comments. Comments carry no score cache,
// so there is nothing to refresh.
func (h *VoteHandler) VoteComment(c *gin.Context) {
	user := middleware.CurrentUser(c)
	commentID := c.Param("id")

	value, ok := parseVoteValue(c)
	if !ok {
		return
	}

	var comment models.Comment
	if err := db.DB.First(&comment, "id = ?", commentID).Error; err != nil {
		JSONError(c, http.StatusNotFound, "Comment not found")
		return
	}

	if value == 0 {
		if err := db.DB.Where("user_id = ? AND comment_id = ?", user.ID, commentID).
			Delete(&models.CommentVote{}).Error; err != nil {
			JSONError(c, http.StatusInternalServerError, "Failed to vote")
			return
		}
	} else {
		vote := models.CommentVote{
			ID:        uuid.New().String(),
			UserID:    user.ID,
			CommentID: commentID,
			Value:     value,
		}
		if err := db.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "comment_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&vote).Error; err != nil {
			JSONError(c, http.StatusInternalServerError, "Failed to vote")
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "newVote": value})
}

// refreshPostScore recomputes score_cached as the full sum of the post's vote
// values. The cache is an eager optimization only; ranking always recomputes
// from the vote rows at read time.
func refreshPostScore(postID string) error {
	var votes []models.PostVote
	if err := db.DB.Where("post_id = ?", postID).Find(&votes).Error; err != nil {
		return err
	}
	score := 0
	for _, v := range votes {
		score += v.Value
	}
	return db.DB.Model(&models.Post{}).Where("id = ?", postID).
		UpdateColumn("score_cached", score).Error
}
