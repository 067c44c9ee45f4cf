package handlers

import (
	"log"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/futureproofmusicschool/futureproof-feedback/internal/db"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/middleware"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/models"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/services"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100

	// Audio playback URLs are minted per fetch and expire after an hour;
	// clients re-request rather than cache them long-term.
	signedURLTTL = time.Hour

	// Duration ceiling for uploaded audio.
	maxDurationSeconds = 600
)

type PostHandler struct {
	storage *services.StorageService
}

func NewPostHandler() *PostHandler {
	return &PostHandler{
		storage: services.NewStorageService(),
	}
}

// postSummary is the feed/detail JSON shape.
type postSummary struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Genre           string    `json:"genre"`
	Description     string    `json:"description"`
	StorageURL      string    `json:"storageUrl"`
	CoverImageURL   string    `json:"coverImageUrl,omitempty"`
	MimeType        string    `json:"mimeType"`
	DurationSeconds int       `json:"durationSeconds"`
	Author          string    `json:"author"`
	CreatedAt       time.Time `json:"createdAt"`
	Score           int       `json:"score"`
	Hot             float64   `json:"hot"`
	UserVote        int       `json:"userVote"`
	CommentCount    int       `json:"commentCount"`
}

// fillCommentCounts batch-fills CommentCount for a page of posts. Counts
// include replies at any depth; every comment row carries its post_id.
func fillCommentCounts(posts []models.Post) {
	if len(posts) == 0 {
		return
	}

	postIDs := make([]string, len(posts))
	for i, p := range posts {
		postIDs[i] = p.ID
	}

	type countResult struct {
		PostID string
		Count  int
	}
	var results []countResult
	db.DB.Model(&models.Comment{}).
		Select("post_id, COUNT(*) as count").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&results)

	countMap := make(map[string]int)
	for _, r := range results {
		countMap[r.PostID] = r.Count
	}
	for i := range posts {
		posts[i].CommentCount = countMap[posts[i].ID]
	}
}

// List is the feed ranking pipeline: page at the store level, aggregate votes
// and hot scores per post, mint signed playback URLs, then order the page.
// Pagination runs before the in-memory hot/top sort, so those orderings are
// only correct within a page. Known limitation, kept as-is.
func (h *PostHandler) List(c *gin.Context) {
	user := middleware.CurrentUser(c)

	sortBy := c.DefaultQuery("sort", "hot")
	limit := utils.StringToInt(c.DefaultQuery("limit", "25"), defaultPageSize)
	offset := utils.StringToInt(c.DefaultQuery("offset", "0"), 0)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	var posts []models.Post
	if err := db.DB.Preload("User").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error; err != nil {
		JSONError(c, http.StatusInternalServerError, "Failed to fetch posts")
		return
	}

	fillCommentCounts(posts)
	votesByPost, err := loadPostVotes(posts)
	if err != nil {
		JSONError(c, http.StatusInternalServerError, "Failed to fetch posts")
		return
	}

	summaries := make([]postSummary, len(posts))

	// One signed-URL mint per post in the page; parallelize the fan-out so
	// page latency is one round-trip, not one per post.
	g, ctx := errgroup.WithContext(c.Request.Context())
	for i := range posts {
		g.Go(func() error {
			post := posts[i]
			score, userVote := utils.Aggregate(votesByPost[post.ID], user.ID)

			signedURL, err := h.storage.SignDownload(ctx, h.storage.AudioBucket, post.StoragePath, signedURLTTL)
			if err != nil {
				log.Printf("signed url mint failed for post %s: %v", post.ID, err)
				signedURL = post.StorageURL // stale fallback beats a broken player
			}

			summaries[i] = postSummary{
				ID:              post.ID,
				Title:           post.Title,
				Genre:           post.Genre,
				Description:     post.Description,
				StorageURL:      signedURL,
				CoverImageURL:   post.CoverImageURL,
				MimeType:        post.MimeType,
				DurationSeconds: post.DurationSeconds,
				Author:          post.User.Username,
				CreatedAt:       post.CreatedAt,
				Score:           score,
				Hot:             utils.HotScore(score, post.CreatedAt),
				UserVote:        userVote,
				CommentCount:    post.CommentCount,
			}
			return nil
		})
	}
	_ = g.Wait()

	switch sortBy {
	case "top":
		sort.SliceStable(summaries, func(i, j int) bool {
			if summaries[i].Score != summaries[j].Score {
				return summaries[i].Score > summaries[j].Score
			}
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		})
	case "hot":
		// Stable sort: exact hot-score ties keep the store's recency order.
		sort.SliceStable(summaries, func(i, j int) bool {
			return summaries[i].Hot > summaries[j].Hot
		})
	default:
		// "new" is already ordered by the store.
	}

	c.JSON(http.StatusOK, summaries)
}

type createPostRequest struct {
	Title           string  `json:"title"`
	Genre           string  `json:"genre"`
	Description     string  `json:"description"`
	FilePath        string  `json:"filePath"`
	CoverImagePath  string  `json:"coverImagePath"`
	MimeType        string  `json:"mimeType"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// Create inserts the post, then performs the best-effort tail: the author's
// self-upvote and the outbound webhook. Failure of either is logged, never
// fatal; validation failures happen before any write.
func (h *PostHandler) Create(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, "Missing required fields")
		return
	}
	if req.Title == "" || req.Genre == "" || req.Description == "" || req.FilePath == "" || req.MimeType == "" || req.DurationSeconds == 0 {
		JSONError(c, http.StatusBadRequest, "Missing required fields")
		return
	}
	if req.DurationSeconds >= maxDurationSeconds {
		JSONError(c, http.StatusBadRequest, "Audio duration must be less than 10 minutes")
		return
	}

	coverImageURL := ""
	if req.CoverImagePath != "" {
		coverImageURL = h.storage.PublicURL(h.storage.ImageBucket, req.CoverImagePath)
	}

	post := models.Post{
		ID:              uuid.New().String(),
		UserID:          user.ID,
		Title:           req.Title,
		Genre:           req.Genre,
		Description:     req.Description,
		StoragePath:     req.FilePath,
		StorageURL:      "", // signed on demand
		CoverImagePath:  req.CoverImagePath,
		CoverImageURL:   coverImageURL,
		MimeType:        req.MimeType,
		DurationSeconds: int(math.Floor(req.DurationSeconds)),
	}

	if err := db.DB.Create(&post).Error; err != nil {
		JSONError(c, http.StatusInternalServerError, "Failed to create post")
		return
	}

	selfVote := models.PostVote{
		ID:     uuid.New().String(),
		UserID: user.ID,
		PostID: post.ID,
		Value:  1,
	}
	if err := db.DB.Create(&selfVote).Error; err != nil {
		// Post without its self-vote is a tolerated inconsistency.
		log.Printf("self-vote failed for post %s: %v", post.ID, err)
	} else if err := refreshPostScore(post.ID); err != nil {
		log.Printf("score cache refresh failed for post %s: %v", post.ID, err)
	}

	services.GetWebhookService().NotifyNewTrack(post.Title, user.Username, post.Genre, post.ID)

	post.User = *user
	c.JSON(http.StatusCreated, post)
}

// Detail returns the full post, with a freshly signed playback URL and a
// sanitized HTML rendering of the description.
func (h *PostHandler) Detail(c *gin.Context) {
	user := middleware.CurrentUser(c)
	postID := c.Param("id")

	var post models.Post
	if err := db.DB.Preload("User").First(&post, "id = ?", postID).Error; err != nil {
		JSONError(c, http.StatusNotFound, "Post not found")
		return
	}

	var votes []models.PostVote
	if err := db.DB.Where("post_id = ?", post.ID).Find(&votes).Error; err != nil {
		JSONError(c, http.StatusInternalServerError, "Failed to fetch post")
		return
	}
	score, userVote := utils.Aggregate(postVoteRefs(votes), user.ID)

	var commentCount int64
	db.DB.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&commentCount)

	signedURL, err := h.storage.SignDownload(c.Request.Context(), h.storage.AudioBucket, post.StoragePath, signedURLTTL)
	if err != nil {
		log.Printf("signed url mint failed for post %s: %v", post.ID, err)
		signedURL = post.StorageURL
	}

	c.JSON(http.StatusOK, gin.H{
		"id":              post.ID,
		"title":           post.Title,
		"genre":           post.Genre,
		"description":     post.Description,
		"descriptionHtml": utils.RenderMarkdown(post.Description),
		"storageUrl":      signedURL,
		"coverImageUrl":   post.CoverImageURL,
		"mimeType":        post.MimeType,
		"durationSeconds": post.DurationSeconds,
		"author":          post.User.Username,
		"createdAt":       post.CreatedAt,
		"score":           score,
		"hot":             utils.HotScore(score, post.CreatedAt),
		"userVote":        userVote,
		"commentCount":    commentCount,
	})
}

// SignedURL re-mints the time-limited playback URL for a post.
func (h *PostHandler) SignedURL(c *gin.Context) {
	postID := c.Param("id")

	var post models.Post
	if err := db.DB.Select("storage_path").First(&post, "id = ?", postID).Error; err != nil {
		JSONError(c, http.StatusNotFound, "Post not found")
		return
	}

	signedURL, err := h.storage.SignDownload(c.Request.Context(), h.storage.AudioBucket, post.StoragePath, signedURLTTL)
	if err != nil {
		log.Printf("signed url mint failed for post %s: %v", postID, err)
		JSONError(c, http.StatusInternalServerError, "Failed to generate signed URL")
		return
	}

	c.JSON(http.StatusOK, gin.H{"signedUrl": signedURL})
}

// Delete removes a caller-owned post and everything hanging off it. The
// underlying audio object is removed best-effort first; an orphaned blob is
// preferred over a blocked delete.
func (h *PostHandler) Delete(c *gin.Context) {
	user := middleware.CurrentUser(c)
	postID := c.Param("id")

	var post models.Post
	if err := db.DB.First(&post, "id = ?", postID).Error; err != nil {
		JSONError(c, http.StatusNotFound, "Post not found")
		return
	}
	if post.UserID != user.ID {
		JSONError(c, http.StatusForbidden, "You can only delete your own posts")
		return
	}

	if err := h.storage.Remove(c.Request.Context(), h.storage.AudioBucket, post.StoragePath); err != nil {
		log.Printf("storage delete failed for post %s: %v", post.ID, err)
	}

	// Cascade by hand: votes on the post and its comments, the comments,
	// notifications referencing the post, then the post itself.
	var commentIDs []string
	db.DB.Model(&models.Comment{}).Where("post_id = ?", post.ID).Pluck("id", &commentIDs)
	if len(commentIDs) > 0 {
		db.DB.Where("comment_id IN ?", commentIDs).Delete(&models.CommentVote{})
	}
	db.DB.Where("post_id = ?", post.ID).Delete(&models.Comment{})
	db.DB.Where("post_id = ?", post.ID).Delete(&models.PostVote{})
	db.DB.Where("post_id = ?", post.ID).Delete(&models.Notification{})

	if err := db.DB.Delete(&post).Error; err != nil {
		JSONError(c, http.StatusInternalServerError, "Failed to delete post")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// loadPostVotes fetches every vote for a page of posts in one query and
// groups them by post.
func loadPostVotes(posts []models.Post) (map[string][]utils.VoteRef, error) {
	grouped := make(map[string][]utils.VoteRef, len(posts))
	if len(posts) == 0 {
		return grouped, nil
	}

	postIDs := make([]string, len(posts))
	for i, p := range posts {
		postIDs[i] = p.ID
	}

	var votes []models.PostVote
	if err := db.DB.Where("post_id IN ?", postIDs).Find(&votes).Error; err != nil {
		return nil, err
	}
	for _, v := range votes {
		grouped[v.PostID] = append(grouped[v.PostID], utils.VoteRef{UserID: v.UserID, Value: v.Value})
	}
	return grouped, nil
}

func postVoteRefs(votes []models.PostVote) []utils.VoteRef {
	refs := make([]utils.VoteRef, len(votes))
	for i, v := range votes {
		refs[i] = utils.VoteRef{UserID: v.UserID, Value: v.Value}
	}
	return refs
}
