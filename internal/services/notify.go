package services

import (
	"log"

	"github.com/futureproofmusicschool/futureproof-feedback/internal/db"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/models"

	"github.com/google/uuid"
)

// recipientEntry keeps the rule evaluation order so dedup is deterministic:
// the first rule to claim a recipient decides the notification type.
type recipientEntry struct {
	userID string
	ntype  models.NotificationType
}

// FanOut determines who gets notified about a freshly created comment.
// Rules, in order:
//  1. the post author (COMMENT_ON_POST)
//  2. the parent comment's author, when replying (REPLY_TO_COMMENT)
//
// At most one notification per distinct recipient per event; a user who is
// both post author and parent author gets a single COMMENT_ON_POST. A user
// is never notified about their own action. Pure function, no store access.
func FanOut(post *models.Post, comment *models.Comment, parentComment *models.Comment) []models.Notification {
	var ordered []recipientEntry
	claimed := make(map[string]bool)

	add := func(userID string, ntype models.NotificationType) {
		if userID == comment.UserID || claimed[userID] {
			return
		}
		claimed[userID] = true
		ordered = append(ordered, recipientEntry{userID: userID, ntype: ntype})
	}

	add(post.UserID, models.NotificationTypeCommentOnPost)
	if parentComment != nil {
		add(parentComment.UserID, models.NotificationTypeReplyToComment)
	}

	notifications := make([]models.Notification, 0, len(ordered))
	for _, entry := range ordered {
		notifications = append(notifications, models.Notification{
			ID:        uuid.New().String(),
			UserID:    entry.userID,
			Type:      entry.ntype,
			PostID:    post.ID,
			CommentID: comment.ID,
			ActorID:   comment.UserID,
		})
	}
	return notifications
}

// PersistFanOut writes the notifications in one batch. Failure is tolerated:
// the surrounding comment creation is never rolled back over a lost
// notification, so errors are only logged.
func PersistFanOut(post *models.Post, comment *models.Comment, parentComment *models.Comment) {
	notifications := FanOut(post, comment, parentComment)
	if len(notifications) == 0 {
		return
	}
	if err := db.DB.Create(&notifications).Error; err != nil {
		log.Printf("notification fan-out failed for comment %s: %v", comment.ID, err)
	}
}
