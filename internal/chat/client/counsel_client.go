package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotParticipant  = errors.New("sender is not a participant")
	ErrSessionClosed   = errors.New("session is closed")
)

// CounselClient wraps the counselling session service HTTP API. It is
// the persistence collaborator of the gateway: messages are stored
// here before they are broadcast.
type CounselClient struct {
	baseURL      string
	serviceToken string
	httpClient   *http.Client
	cache        map[string]*cachedParticipants
	cacheTTL     time.Duration
	mu           sync.RWMutex
}

type cachedParticipants struct {
	participants []string
	expiresAt    time.Time
}

// StoredMessage is a message as stored by the session service.
type StoredMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type appendMessageRequest struct {
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
	ID       string `json:"id,omitempty"`
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type participantsData struct {
	SessionID    string   `json:"session_id"`
	Participants []string `json:"participants"`
}

// NewCounselClient creates a new session service client.
func NewCounselClient(baseURL, serviceToken string, timeout, cacheTTL time.Duration) *CounselClient {
	return &CounselClient{
		baseURL:      baseURL,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:    make(map[string]*cachedParticipants),
		cacheTTL: cacheTTL,
	}
}

// AppendMessage persists a message and returns its stored form. The
// returned ID and CreatedAt are authoritative; timestamps are assigned
// by the session service, never taken from clients.
func (c *CounselClient) AppendMessage(ctx context.Context, sessionID, senderID, content, id string) (*StoredMessage, error) {
	body, err := json.Marshal(&appendMessageRequest{
		SenderID: senderID,
		Content:  content,
		ID:       id,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/sessions/%s/messages", c.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.serviceToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNotFound:
		return nil, ErrSessionNotFound
	case http.StatusForbidden:
		return nil, ErrNotParticipant
	case http.StatusConflict:
		return nil, ErrSessionClosed
	default:
		return nil, fmt.Errorf("session service returned status: %d", resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("session service error: %s", envelopeError(&envelope))
	}

	var msg StoredMessage
	if err := json.Unmarshal(envelope.Data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}

	return &msg, nil
}

// GetParticipants returns the user IDs allowed in a session. Results
// are cached briefly; membership only changes on claim.
func (c *CounselClient) GetParticipants(ctx context.Context, sessionID string) ([]string, error) {
	if participants := c.getFromCache(sessionID); participants != nil {
		return participants, nil
	}

	url := fmt.Sprintf("%s/api/v1/sessions/%s/participants", c.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch participants: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrSessionNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session service returned status: %d", resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("session service error: %s", envelopeError(&envelope))
	}

	var data participantsData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}

	c.addToCache(sessionID, data.Participants)

	return data.Participants, nil
}

// InvalidateCache removes a session's participants from the cache.
func (c *CounselClient) InvalidateCache(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, sessionID)
}

func (c *CounselClient) getFromCache(sessionID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if cached, ok := c.cache[sessionID]; ok {
		if time.Now().Before(cached.expiresAt) {
			return cached.participants
		}
	}
	return nil
}

func (c *CounselClient) addToCache(sessionID string, participants []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[sessionID] = &cachedParticipants{
		participants: participants,
		expiresAt:    time.Now().Add(c.cacheTTL),
	}
}

func envelopeError(e *apiEnvelope) string {
	if e.Error != nil {
		return e.Error.Message
	}
	return "unknown error"
}
