package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/futureproofmusicschool/futureproof-feedback/internal/db"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/models"
	"github.com/futureproofmusicschool/futureproof-feedback/internal/router"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupAPI wires the full router against an in-memory database and a stub
// object-storage server.
func setupAPI(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusOK)
		case strings.HasPrefix(r.URL.Path, "/object/upload/"):
			json.NewEncoder(w).Encode(map[string]string{"url": r.URL.Path + "?token=up"})
		default:
			json.NewEncoder(w).Encode(map[string]string{"signedURL": r.URL.Path + "?token=dl"})
		}
	}))
	t.Cleanup(storage.Close)

	os.Setenv("STORAGE_URL", storage.URL)
	os.Setenv("STORAGE_SERVICE_KEY", "test-key")
	os.Unsetenv("WEBHOOK_URL")

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// A second pool connection would see an empty in-memory database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(gdb))
	db.DB = gdb

	r := gin.New()
	router.RegisterRoutes(r)
	return r
}

func perform(r *gin.Engine, method, path, username string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if username != "" {
		req.Header.Set("X-Username", username)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func createPost(t *testing.T, r *gin.Engine, username, title string) string {
	t.Helper()
	w := perform(r, http.MethodPost, "/api/posts", username, map[string]interface{}{
		"title":           title,
		"genre":           "techno",
		"description":     "feedback welcome",
		"filePath":        fmt.Sprintf("uploads/%s.mp3", uuid.New().String()),
		"mimeType":        "audio/mpeg",
		"durationSeconds": 120.7,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var post map[string]interface{}
	decode(t, w, &post)
	return post["id"].(string)
}

func createComment(t *testing.T, r *gin.Engine, username, postID, parentID, body string) string {
	t.Helper()
	payload := map[string]interface{}{"postId": postID, "body": body}
	if parentID != "" {
		payload["parentCommentId"] = parentID
	}
	w := perform(r, http.MethodPost, "/api/comments", username, payload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var comment map[string]interface{}
	decode(t, w, &comment)
	return comment["id"].(string)
}

func listPosts(t *testing.T, r *gin.Engine, username, query string) []map[string]interface{} {
	t.Helper()
	w := perform(r, http.MethodGet, "/api/posts"+query, username, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var posts []map[string]interface{}
	decode(t, w, &posts)
	return posts
}

func listNotifications(t *testing.T, r *gin.Engine, username, status string) []map[string]interface{} {
	t.Helper()
	w := perform(r, http.MethodGet, "/api/notifications?status="+status, username, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var notifications []map[string]interface{}
	decode(t, w, &notifications)
	return notifications
}

func TestIdentityRequired(t *testing.T) {
	r := setupAPI(t)

	w := perform(r, http.MethodGet, "/api/posts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Health stays open.
	w = perform(r, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIdentityQueryParamFallback(t *testing.T) {
	r := setupAPI(t)

	w := perform(r, http.MethodGet, "/api/session?u=alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var session map[string]interface{}
	decode(t, w, &session)
	assert.Equal(t, "alice", session["username"])
}

func TestResolveUserIdempotent(t *testing.T) {
	r := setupAPI(t)

	var first, second map[string]interface{}
	w := perform(r, http.MethodGet, "/api/session", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &first)

	w = perform(r, http.MethodGet, "/api/session", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &second)

	assert.Equal(t, first["id"], second["id"])

	var count int64
	db.DB.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(1), count)

	// Usernames are case-sensitive: Alice is a different user.
	w = perform(r, http.MethodGet, "/api/session", "Alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	db.DB.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestCreatePostSelfVote(t *testing.T) {
	r := setupAPI(t)
	createPost(t, r, "alice", "First Track")

	posts := listPosts(t, r, "alice", "")
	require.Len(t, posts, 1)
	assert.Equal(t, "First Track", posts[0]["title"])
	assert.Equal(t, "alice", posts[0]["author"])
	assert.Equal(t, float64(1), posts[0]["score"])
	assert.Equal(t, float64(1), posts[0]["userVote"])
	assert.Equal(t, float64(0), posts[0]["commentCount"])
	assert.Equal(t, float64(120), posts[0]["durationSeconds"])
	assert.NotEmpty(t, posts[0]["storageUrl"])
}

func TestCreatePostValidation(t *testing.T) {
	r := setupAPI(t)

	w := perform(r, http.MethodPost, "/api/posts", "alice", map[string]interface{}{
		"title": "no file",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(r, http.MethodPost, "/api/posts", "alice", map[string]interface{}{
		"title":           "too long",
		"genre":           "dnb",
		"description":     "d",
		"filePath":        "uploads/long.mp3",
		"mimeType":        "audio/mpeg",
		"durationSeconds": 600,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var count int64
	db.DB.Model(&models.Post{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestVoteFlow(t *testing.T) {
	r := setupAPI(t)
	postID := createPost(t, r, "alice", "Voted Track")

	// Bob downvotes: alice's self-vote cancels out.
	w := perform(r, http.MethodPost, "/api/posts/"+postID+"/vote", "bob", map[string]int{"value": -1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	posts := listPosts(t, r, "bob", "")
	require.Len(t, posts, 1)
	assert.Equal(t, float64(0), posts[0]["score"])
	assert.Equal(t, float64(-1), posts[0]["userVote"])

	var post models.Post
	require.NoError(t, db.DB.First(&post, "id = ?", postID).Error)
	assert.Equal(t, 0, post.ScoreCached)

	// Changing the vote overwrites, not duplicates.
	w = perform(r, http.MethodPost, "/api/posts/"+postID+"/vote", "bob", map[string]int{"value": 1})
	require.Equal(t, http.StatusOK, w.Code)
	var voteCount int64
	db.DB.Model(&models.PostVote{}).Where("post_id = ?", postID).Count(&voteCount)
	assert.Equal(t, int64(2), voteCount)

	// Value 0 deletes the row entirely.
	w = perform(r, http.MethodPost, "/api/posts/"+postID+"/vote", "bob", map[string]int{"value": 0})
	require.Equal(t, http.StatusOK, w.Code)
	db.DB.Model(&models.PostVote{}).Where("post_id = ?", postID).Count(&voteCount)
	assert.Equal(t, int64(1), voteCount)

	posts = listPosts(t, r, "bob", "")
	assert.Equal(t, float64(1), posts[0]["score"])
	assert.Equal(t, float64(0), posts[0]["userVote"])

	// Out-of-range values are rejected.
	w = perform(r, http.MethodPost, "/api/posts/"+postID+"/vote", "bob", map[string]int{"value": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(r, http.MethodPost, "/api/posts/"+uuid.New().String()+"/vote", "bob", map[string]int{"value": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommentNotificationFlow(t *testing.T) {
	r := setupAPI(t)
	postID := createPost(t, r, "alice", "Feedback Please")

	// Bob comments on alice's post.
	commentID := createComment(t, r, "bob", postID, "", "nice bassline")

	unread := listNotifications(t, r, "alice", "unread")
	require.Len(t, unread, 1)
	assert.Equal(t, "COMMENT_ON_POST", unread[0]["type"])
	assert.Equal(t, "bob", unread[0]["actor"])
	assert.Equal(t, "Feedback Please", unread[0]["postTitle"])
	assert.Equal(t, "nice bassline", unread[0]["commentSnippet"])

	// Alice replies to bob's comment.
	createComment(t, r, "alice", postID, commentID, "thanks!")

	bobUnread := listNotifications(t, r, "bob", "unread")
	require.Len(t, bobUnread, 1)
	assert.Equal(t, "REPLY_TO_COMMENT", bobUnread[0]["type"])
	assert.Equal(t, "alice", bobUnread[0]["actor"])

	// Alice got nothing new from her own reply.
	assert.Len(t, listNotifications(t, r, "alice", "unread"), 1)

	// Both comments carry their authors' self-upvotes.
	w := perform(r, http.MethodGet, "/api/comments?postId="+postID, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var comments []map[string]interface{}
	decode(t, w, &comments)
	require.Len(t, comments, 2)
	assert.Equal(t, float64(1), comments[0]["score"])
	assert.Equal(t, "bob", comments[0]["author"])
	assert.Nil(t, comments[0]["parentCommentId"])
	assert.Equal(t, commentID, comments[1]["parentCommentId"])

	// Comment count includes replies at any depth.
	posts := listPosts(t, r, "alice", "")
	assert.Equal(t, float64(2), posts[0]["commentCount"])
}

func TestNotificationDedup(t *testing.T) {
	r := setupAPI(t)
	postID := createPost(t, r, "alice", "Dedup Track")

	aliceComment := createComment(t, r, "alice", postID, "", "what do you think?")
	assert.Empty(t, listNotifications(t, r, "alice", "unread"), "self-comment must not notify")

	// Bob replies to alice's comment on alice's post: both rules hit alice,
	// she gets exactly one notification, typed by the post-author rule.
	createComment(t, r, "bob", postID, aliceComment, "love it")

	unread := listNotifications(t, r, "alice", "unread")
	require.Len(t, unread, 1)
	assert.Equal(t, "COMMENT_ON_POST", unread[0]["type"])
}

func TestCommentParentValidation(t *testing.T) {
	r := setupAPI(t)
	postA := createPost(t, r, "alice", "Track A")
	postB := createPost(t, r, "alice", "Track B")
	commentOnA := createComment(t, r, "bob", postA, "", "on A")

	// Parent belongs to a different post: rejected, nothing written.
	w := perform(r, http.MethodPost, "/api/comments", "carol", map[string]interface{}{
		"postId":          postB,
		"parentCommentId": commentOnA,
		"body":            "crossed wires",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var count int64
	db.DB.Model(&models.Comment{}).Count(&count)
	assert.Equal(t, int64(1), count)

	w = perform(r, http.MethodPost, "/api/comments", "carol", map[string]interface{}{
		"postId":          postB,
		"parentCommentId": uuid.New().String(),
		"body":            "no such parent",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = perform(r, http.MethodPost, "/api/comments", "carol", map[string]interface{}{
		"postId": uuid.New().String(),
		"body":   "no such post",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommentTreeView(t *testing.T) {
	r := setupAPI(t)
	postID := createPost(t, r, "alice", "Tree Track")
	top := createComment(t, r, "bob", postID, "", "root")
	mid := createComment(t, r, "carol", postID, top, "child")
	createComment(t, r, "alice", postID, mid, "grandchild")

	w := perform(r, http.MethodGet, "/api/comments?postId="+postID+"&view=tree", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var roots []struct {
		Comment  models.Comment `json:"comment"`
		Children []struct {
			Comment  models.Comment `json:"comment"`
			Children []struct {
				Comment models.Comment `json:"comment"`
			} `json:"children"`
		} `json:"children"`
	}
	decode(t, w, &roots)
	require.Len(t, roots, 1)
	assert.Equal(t, "root", roots[0].Comment.Body)
	require.Len(t, roots[0].Children, 1)
	assert.Equal(t, "child", roots[0].Children[0].Comment.Body)
	require.Len(t, roots[0].Children[0].Children, 1)
	assert.Equal(t, "grandchild", roots[0].Children[0].Children[0].Comment.Body)
}

func TestMarkReadOwnership(t *testing.T) {
	r := setupAPI(t)
	postID := createPost(t, r, "alice", "Owned Track")
	createComment(t, r, "bob", postID, "", "first")
	createComment(t, r, "carol", postID, "", "second")

	unread := listNotifications(t, r, "alice", "unread")
	require.Len(t, unread, 2)
	ids := []string{unread[0]["id"].(string), unread[1]["id"].(string)}

	// Bob doesn't own these: silently ignored, nothing flips.
	w := perform(r, http.MethodPost, "/api/notifications/mark-read", "bob",
		map[string]interface{}{"notificationIds": ids})
	require.Equal(t, http.StatusOK, w.Code)
	var result map[string]interface{}
	decode(t, w, &result)
	assert.Equal(t, float64(0), result["updated"])
	assert.Len(t, listNotifications(t, r, "alice", "unread"), 2)

	// Alice marks one.
	w = perform(r, http.MethodPost, "/api/notifications/mark-read", "alice",
		map[string]interface{}{"notificationIds": ids[:1]})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &result)
	assert.Equal(t, float64(1), result["updated"])
	assert.Len(t, listNotifications(t, r, "alice", "unread"), 1)

	var n models.Notification
	require.NoError(t, db.DB.First(&n, "id = ?", ids[0]).Error)
	assert.True(t, n.IsRead)
	assert.NotNil(t, n.ReadAt)

	// Clear-all flips the rest; read rows remain listable under status=all.
	w = perform(r, http.MethodPost, "/api/notifications/clear", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &result)
	assert.Equal(t, float64(1), result["cleared"])
	assert.Empty(t, listNotifications(t, r, "alice", "unread"))
	assert.Len(t, listNotifications(t, r, "alice", "all"), 2)
}

func TestNotificationOrphansDropped(t *testing.T) {
	r := setupAPI(t)
	postID := createPost(t, r, "alice", "Ghost Track")
	commentID := createComment(t, r, "bob", postID, "", "soon gone")

	require.Len(t, listNotifications(t, r, "alice", "unread"), 1)

	// Simulate a since-deleted comment that left its notification behind.
	require.NoError(t, db.DB.Where("id = ?", commentID).Delete(&models.Comment{}).Error)
	assert.Empty(t, listNotifications(t, r, "alice", "unread"))
}

func TestUnreadCapAt50(t *testing.T) {
	r := setupAPI(t)
	postID := createPost(t, r, "alice", "Busy Track")
	commentID := createComment(t, r, "bob", postID, "", "seed")

	var alice models.User
	require.NoError(t, db.DB.First(&alice, "username = ?", "alice").Error)
	var bob models.User
	require.NoError(t, db.DB.First(&bob, "username = ?", "bob").Error)

	rows := make([]models.Notification, 0, 60)
	for i := 0; i < 60; i++ {
		rows = append(rows, models.Notification{
			ID:        uuid.New().String(),
			UserID:    alice.ID,
			Type:      models.NotificationTypeCommentOnPost,
			PostID:    postID,
			CommentID: commentID,
			ActorID:   bob.ID,
		})
	}
	require.NoError(t, db.DB.Create(&rows).Error)

	assert.Len(t, listNotifications(t, r, "alice", "unread"), 50)
	assert.Len(t, listNotifications(t, r, "alice", "all"), 61)
}

func TestDeletePost(t *testing.T) {
	r := setupAPI(t)
	postID := createPost(t, r, "alice", "Doomed Track")
	createComment(t, r, "bob", postID, "", "gone with it")

	w := perform(r, http.MethodDelete, "/api/posts/"+postID, "bob", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = perform(r, http.MethodDelete, "/api/posts/"+postID, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = perform(r, http.MethodGet, "/api/posts/"+postID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var count int64
	db.DB.Model(&models.Comment{}).Count(&count)
	assert.Equal(t, int64(0), count)
	db.DB.Model(&models.PostVote{}).Count(&count)
	assert.Equal(t, int64(0), count)
	db.DB.Model(&models.CommentVote{}).Count(&count)
	assert.Equal(t, int64(0), count)
	db.DB.Model(&models.Notification{}).Count(&count)
	assert.Equal(t, int64(0), count)

	w = perform(r, http.MethodDelete, "/api/posts/"+uuid.New().String(), "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteComment(t *testing.T) {
	r := setupAPI(t)
	postID := createPost(t, r, "alice", "Track")
	commentID := createComment(t, r, "bob", postID, "", "regret this")

	w := perform(r, http.MethodDelete, "/api/comments/"+commentID, "alice", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = perform(r, http.MethodDelete, "/api/comments/"+commentID, "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	db.DB.Model(&models.Comment{}).Count(&count)
	assert.Equal(t, int64(0), count)
	db.DB.Model(&models.CommentVote{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestFeedSorts(t *testing.T) {
	r := setupAPI(t)

	oldID := createPost(t, r, "alice", "Old But Loved")
	newID := createPost(t, r, "bob", "Fresh Drop")

	// Age the first post a day and pile votes onto it.
	require.NoError(t, db.DB.Model(&models.Post{}).Where("id = ?", oldID).
		UpdateColumn("created_at", time.Now().Add(-24*time.Hour)).Error)
	for _, voter := range []string{"u1", "u2", "u3", "u4"} {
		w := perform(r, http.MethodPost, "/api/posts/"+oldID+"/vote", voter, map[string]int{"value": 1})
		require.Equal(t, http.StatusOK, w.Code)
	}

	// new: recency wins.
	posts := listPosts(t, r, "alice", "?sort=new")
	require.Len(t, posts, 2)
	assert.Equal(t, newID, posts[0]["id"])

	// top: score wins (5 vs 1).
	posts = listPosts(t, r, "alice", "?sort=top")
	assert.Equal(t, oldID, posts[0]["id"])
	assert.Equal(t, float64(5), posts[0]["score"])

	// hot: a day of age costs ~1.92 units, log10(5) buys back only ~0.7,
	// so the fresh post still wins.
	posts = listPosts(t, r, "alice", "?sort=hot")
	assert.Equal(t, newID, posts[0]["id"])
	assert.Greater(t, posts[0]["hot"].(float64), posts[1]["hot"].(float64))
}

func TestUploadSignedURLs(t *testing.T) {
	r := setupAPI(t)

	w := perform(r, http.MethodPost, "/api/upload/signed-url", "alice",
		map[string]string{"filename": "track.mp3", "contentType": "video/mp4"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(r, http.MethodPost, "/api/upload/signed-url", "alice",
		map[string]string{"filename": "my track.mp3", "contentType": "audio/mpeg"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result map[string]interface{}
	decode(t, w, &result)
	assert.NotEmpty(t, result["uploadUrl"])
	assert.Contains(t, result["filePath"], "uploads/")
	assert.Contains(t, result["filePath"], "my_track.mp3")

	w = perform(r, http.MethodPost, "/api/upload/image-signed-url", "alice",
		map[string]string{"filename": "cover.png", "contentType": "image/png"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(r, http.MethodPost, "/api/upload/image-signed-url", "alice",
		map[string]string{"filename": "cover.jpg", "contentType": "image/jpeg"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPostDetail(t *testing.T) {
	r := setupAPI(t)
	postID := createPost(t, r, "alice", "Detail Track")
	createComment(t, r, "bob", postID, "", "depth 0")

	w := perform(r, http.MethodGet, "/api/posts/"+postID, "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var detail map[string]interface{}
	decode(t, w, &detail)
	assert.Equal(t, "Detail Track", detail["title"])
	assert.Equal(t, "alice", detail["author"])
	assert.Equal(t, float64(1), detail["score"])
	assert.Equal(t, float64(0), detail["userVote"])
	assert.Equal(t, float64(1), detail["commentCount"])
	assert.NotEmpty(t, detail["storageUrl"])
	assert.NotEmpty(t, detail["descriptionHtml"])

	w = perform(r, http.MethodGet, "/api/posts/"+postID+"/signed-url", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var signed map[string]interface{}
	decode(t, w, &signed)
	assert.NotEmpty(t, signed["signedUrl"])
}
