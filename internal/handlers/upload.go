package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/futureproofmusicschool/futureproof-feedback/internal/services"

	"github.com/gin-gonic/gin"
)

type UploadHandler struct {
	storage *services.StorageService
}

func NewUploadHandler() *UploadHandler {
	return &UploadHandler{
		storage: services.NewStorageService(),
	}
}

type signUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

// SignAudioUpload mints a time-limited upload slot for an audio file. The
// client uploads directly to object storage and then submits the returned
// filePath with the post.
func (h *UploadHandler) SignAudioUpload(c *gin.Context) {
	var req signUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Filename == "" || req.ContentType == "" {
		JSONError(c, http.StatusBadRequest, "Missing filename or contentType")
		return
	}
	if !strings.HasPrefix(req.ContentType, "audio/") {
		JSONError(c, http.StatusBadRequest, "Only audio files are allowed")
		return
	}

	filePath := services.ObjectPath(req.Filename)
	uploadURL, err := h.storage.SignUpload(c.Request.Context(), h.storage.AudioBucket, filePath)
	if err != nil {
		log.Printf("sign audio upload failed: %v", err)
		JSONError(c, http.StatusInternalServerError, "Failed to generate upload URL")
		return
	}

	c.JSON(http.StatusOK, gin.H{"uploadUrl": uploadURL, "filePath": filePath})
}

// SignImageUpload mints an upload slot for a cover image. JPG only.
func (h *UploadHandler) SignImageUpload(c *gin.Context) {
	var req signUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Filename == "" || req.ContentType == "" {
		JSONError(c, http.StatusBadRequest, "Missing required fields: filename, contentType")
		return
	}
	contentType := strings.ToLower(req.ContentType)
	if contentType != "image/jpeg" && contentType != "image/jpg" {
		JSONError(c, http.StatusBadRequest, "Only JPG images are allowed")
		return
	}

	filePath := services.ObjectPath(req.Filename)
	uploadURL, err := h.storage.SignUpload(c.Request.Context(), h.storage.ImageBucket, filePath)
	if err != nil {
		log.Printf("sign image upload failed: %v", err)
		JSONError(c, http.StatusInternalServerError, "Failed to generate upload URL")
		return
	}

	c.JSON(http.StatusOK, gin.H{"uploadUrl": uploadURL, "filePath": filePath})
}
