package services

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// NewTrackEvent is the payload sent to the automation webhook when a post is
// created.
type NewTrackEvent struct {
	Title       string `json:"title"`
	Username    string `json:"username"`
	Genre       string `json:"genre"`
	PostID      string `json:"postId"`
	PostURL     string `json:"postUrl"`
	NewBoardURL string `json:"newBoardUrl"`
	Timestamp   string `json:"timestamp"`
}

// WebhookService delivers post-created events to an external automation
// endpoint. Delivery is strictly fire-and-forget: a buffered queue feeds a
// single background worker, a full queue drops the event, and failures are
// logged but never retried or surfaced to the caller.
type WebhookService struct {
	url     string
	baseURL string
	queue   chan NewTrackEvent
	client  *http.Client
}

var (
	webhookService *WebhookService
	webhookOnce    sync.Once
)

// GetWebhookService returns the singleton dispatcher, starting its worker on
// first use.
func GetWebhookService() *WebhookService {
	webhookOnce.Do(func() {
		baseURL := os.Getenv("APP_BASE_URL")
		if baseURL == "" {
			baseURL = "https://learn.futureproofmusicschool.com/feedback"
		}
		webhookService = &WebhookService{
			url:     os.Getenv("WEBHOOK_URL"),
			baseURL: strings.TrimSuffix(baseURL, "/"),
			queue:   make(chan NewTrackEvent, 100),
			client:  &http.Client{Timeout: 15 * time.Second},
		}
		go webhookService.worker()
	})
	return webhookService
}

// NotifyNewTrack enqueues a post-created event. Never blocks.
func (s *WebhookService) NotifyNewTrack(title, username, genre, postID string) {
	if s.url == "" {
		return
	}
	event := NewTrackEvent{
		Title:       title,
		Username:    username,
		Genre:       genre,
		PostID:      postID,
		PostURL:     s.baseURL + "/#/posts/" + postID,
		NewBoardURL: s.baseURL + "/#/?sort=new",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	select {
	case s.queue <- event:
	default:
		log.Printf("webhook queue full, dropping event for post %s", postID)
	}
}

func (s *WebhookService) worker() {
	for event := range s.queue {
		s.deliver(event)
	}
}

func (s *WebhookService) deliver(event NewTrackEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("webhook: marshal event: %v", err)
		return
	}

	resp, err := s.client.Post(s.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Printf("webhook: delivery failed for post %s: %v", event.PostID, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("webhook: delivery for post %s returned status %d", event.PostID, resp.StatusCode)
	}
}
