package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrForbidden       = errors.New("not a participant of this session")
	ErrSessionClosed   = errors.New("session is closed")
)

// History reads and writes session messages through the session
// service HTTP API.
type History struct {
	baseURL    string
	token      string
	httpClient *http.Client
	pageSize   int
}

type historyPage struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor"`
	HasMore    bool      `json:"has_more"`
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

// NewHistory creates a history client authenticated with the user's
// bearer token.
func NewHistory(baseURL, token string, pageSize int) *History {
	if pageSize < 1 {
		pageSize = 50
	}
	return &History{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		pageSize: pageSize,
	}
}

// FetchMessages pages through the full history of a session and
// returns every message in ascending (created_at, id) order.
func (h *History) FetchMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var all []Message
	cursor := ""

	for {
		page, err := h.fetchPage(ctx, sessionID, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Messages...)

		if !page.HasMore || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	return all, nil
}

func (h *History) fetchPage(ctx context.Context, sessionID, cursor string) (*historyPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(h.pageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	reqURL := fmt.Sprintf("%s/api/v1/sessions/%s/messages?%s", h.baseURL, sessionID, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrSessionNotFound
	case http.StatusForbidden:
		return nil, ErrForbidden
	default:
		return nil, fmt.Errorf("session service returned status: %d", resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("session service error: %s", envelopeMessage(&envelope))
	}

	var page historyPage
	if err := json.Unmarshal(envelope.Data, &page); err != nil {
		return nil, fmt.Errorf("failed to decode history page: %w", err)
	}

	return &page, nil
}

// Append stores a message durably, bypassing the gateway. Useful when
// the socket is down; the id keeps retries and later refreshes matched
// to the same entry.
func (h *History) Append(ctx context.Context, sessionID, senderID, content, id string) (Message, error) {
	body, err := json.Marshal(map[string]string{
		"sender_id": senderID,
		"content":   content,
		"id":        id,
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal append request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/api/v1/sessions/%s/messages", h.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return Message{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return Message{}, fmt.Errorf("failed to append message: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNotFound:
		return Message{}, ErrSessionNotFound
	case http.StatusForbidden:
		return Message{}, ErrForbidden
	case http.StatusConflict:
		return Message{}, ErrSessionClosed
	default:
		return Message{}, fmt.Errorf("session service returned status: %d", resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return Message{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if !envelope.Success {
		return Message{}, fmt.Errorf("session service error: %s", envelopeMessage(&envelope))
	}

	var msg Message
	if err := json.Unmarshal(envelope.Data, &msg); err != nil {
		return Message{}, fmt.Errorf("failed to decode message: %w", err)
	}
	msg.State = StateConfirmed

	return msg, nil
}

// Participants returns the user IDs attached to a session.
func (h *History) Participants(ctx context.Context, sessionID string) ([]string, error) {
	reqURL := fmt.Sprintf("%s/api/v1/sessions/%s/participants", h.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := h.httpClient.Do(req)
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
		return nil, fmt.Errorf("session service error: %s", envelopeMessage(&envelope))
	}

	var data struct {
		SessionID    string   `json:"session_id"`
		Participants []string `json:"participants"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}

	return data.Participants, nil
}

func envelopeMessage(e *apiEnvelope) string {
	if e.Error != nil {
		return e.Error.Message
	}
	return "unknown error"
}
