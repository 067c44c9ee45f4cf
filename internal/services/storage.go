package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/futureproofmusicschool/futureproof-feedback/internal/utils"
)

// StorageService talks to a Supabase-compatible object storage API. It mints
// time-limited signed upload and download URLs; the actual bytes never pass
// through this server.
type StorageService struct {
	BaseURL     string // e.g. https://xyz.supabase.co/storage/v1
	ServiceKey  string
	AudioBucket string
	ImageBucket string
	client      *http.Client
}

func NewStorageService() *StorageService {
	audioBucket := os.Getenv("STORAGE_AUDIO_BUCKET")
	if audioBucket == "" {
		audioBucket = "audio"
	}
	imageBucket := os.Getenv("STORAGE_IMAGE_BUCKET")
	if imageBucket == "" {
		imageBucket = "images"
	}
	return &StorageService{
		BaseURL:     strings.TrimSuffix(os.Getenv("STORAGE_URL"), "/"),
		ServiceKey:  os.Getenv("STORAGE_SERVICE_KEY"),
		AudioBucket: audioBucket,
		ImageBucket: imageBucket,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// ObjectPath builds the storage path for a fresh upload:
// uploads/{timestamp}-{sanitized filename}.
func ObjectPath(filename string) string {
	sanitized := unsafePathChars.ReplaceAllString(filename, "_")
	return fmt.Sprintf("uploads/%d-%s", time.Now().UnixMilli(), sanitized)
}

type signUploadResponse struct {
	URL string `json:"url"`
}

type signDownloadResponse struct {
	SignedURL string `json:"signedURL"`
}

// SignUpload mints a time-limited write slot for path in bucket.
func (s *StorageService) SignUpload(ctx context.Context, bucket, path string) (string, error) {
	endpoint := fmt.Sprintf("%s/object/upload/sign/%s/%s", s.BaseURL, bucket, path)
	body, err := s.post(ctx, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("sign upload: %w", err)
	}

	var parsed signUploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("sign upload: decode response: %w", err)
	}
	if parsed.URL == "" {
		return "", fmt.Errorf("sign upload: empty url in response")
	}
	// The API returns a path relative to the storage root.
	return s.BaseURL + "/" + strings.TrimPrefix(parsed.URL, "/"), nil
}

// SignDownload mints a time-limited read URL for path in bucket. Results are
// cached for half the expiry so feed pages don't re-mint per request while
// callers still never receive an about-to-expire URL.
func (s *StorageService) SignDownload(ctx context.Context, bucket, path string, expiresIn time.Duration) (string, error) {
	cacheKey := fmt.Sprintf("signed:%s:%s", bucket, path)
	if cached := utils.GetCache().Get(cacheKey); cached != nil {
		if signed, ok := cached.(string); ok {
			return signed, nil
		}
	}

	endpoint := fmt.Sprintf("%s/object/sign/%s/%s", s.BaseURL, bucket, path)
	payload, _ := json.Marshal(map[string]int{"expiresIn": int(expiresIn.Seconds())})
	body, err := s.post(ctx, endpoint, payload)
	if err != nil {
		return "", fmt.Errorf("sign download: %w", err)
	}

	var parsed signDownloadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("sign download: decode response: %w", err)
	}
	if parsed.SignedURL == "" {
		return "", fmt.Errorf("sign download: empty url in response")
	}

	signed := s.BaseURL + "/" + strings.TrimPrefix(parsed.SignedURL, "/")
	utils.GetCache().Set(cacheKey, signed, expiresIn/2)
	return signed, nil
}

// Remove deletes an object. Callers treat failure as best-effort.
func (s *StorageService) Remove(ctx context.Context, bucket, path string) error {
	endpoint := fmt.Sprintf("%s/object/%s/%s", s.BaseURL, bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.ServiceKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("remove object: status %d", resp.StatusCode)
	}
	return nil
}

// PublicURL returns the permanent public URL for an object. No request is
// made; public buckets serve directly.
func (s *StorageService) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/object/public/%s/%s", s.BaseURL, bucket, path)
}

func (s *StorageService) post(ctx context.Context, endpoint string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.ServiceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
