package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/etutorng/imara-messaging/internal/counsel/cache"
	"github.com/etutorng/imara-messaging/internal/counsel/domain"
	"github.com/etutorng/imara-messaging/internal/counsel/repository"
	"github.com/etutorng/imara-messaging/internal/counsel/service"
	"github.com/etutorng/imara-messaging/pkg/auth"
	"github.com/etutorng/imara-messaging/pkg/database"
	"github.com/etutorng/imara-messaging/pkg/middleware"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router *gin.Engine
	tokens *auth.Manager
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(db, &domain.SessionModel{}, &domain.MessageModel{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	sessionRepo := repository.NewGormSessionRepository(db)
	messageRepo := repository.NewGormMessageRepository(db)
	historyCache := cache.NewMemoryHistoryCache("test:history")

	sessionService := service.NewSessionService(sessionRepo, 3)
	historyService := service.NewHistoryService(sessionRepo, messageRepo, historyCache, time.Minute)

	tokens := auth.NewManager("test-secret", time.Hour, "imara")
	authMiddleware := middleware.NewAuthMiddleware(tokens)

	h := NewHandler(sessionService, historyService, authMiddleware, 50)

	router := gin.New()
	h.RegisterRoutes(router)

	return &testServer{router: router, tokens: tokens}
}

func (ts *testServer) token(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	token, err := ts.tokens.GenerateToken(userID, userID, roles)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, w.Body.String())
	}
	if !env.Success {
		t.Fatalf("response not successful: %s", w.Body.String())
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func (ts *testServer) createSession(t *testing.T, requester string) domain.SessionResponse {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/v1/sessions", ts.token(t, requester),
		gin.H{"topic": "exam stress"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create session status = %d: %s", w.Code, w.Body.String())
	}
	var session domain.SessionResponse
	decodeData(t, w, &session)
	return session
}

func TestCreateSessionRequiresAuth(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/sessions", "", gin.H{"topic": "t"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	ts := setupServer(t)

	session := ts.createSession(t, "requester-1")
	if session.Status != domain.SessionStatusPending {
		t.Errorf("Status = %q, want pending", session.Status)
	}

	// Pending list shows it.
	w := ts.do(t, http.MethodGet, "/api/v1/sessions/pending", ts.token(t, "counsellor-1"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pending status = %d", w.Code)
	}
	var list domain.ListSessionsResponse
	decodeData(t, w, &list)
	if list.Total != 1 {
		t.Errorf("pending total = %d, want 1", list.Total)
	}

	// Claim it.
	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/claim", session.ID), ts.token(t, "counsellor-1"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("claim status = %d: %s", w.Code, w.Body.String())
	}

	// Second claim conflicts.
	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/claim", session.ID), ts.token(t, "counsellor-2"), nil)
	if w.Code != http.StatusConflict {
		t.Errorf("second claim status = %d, want 409", w.Code)
	}

	// Participants now include both users.
	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/sessions/%s/participants", session.ID), ts.token(t, "requester-1"), nil)
	var participants domain.ParticipantsResponse
	decodeData(t, w, &participants)
	if len(participants.Participants) != 2 {
		t.Errorf("participants = %v, want 2 entries", participants.Participants)
	}

	// Complete it.
	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/complete", session.ID), ts.token(t, "requester-1"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("complete status = %d: %s", w.Code, w.Body.String())
	}
}

func TestAppendMessageSenderMismatch(t *testing.T) {
	ts := setupServer(t)
	session := ts.createSession(t, "requester-1")

	// A user cannot write messages as someone else.
	w := ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/messages", session.ID),
		ts.token(t, "requester-1"),
		gin.H{"sender_id": "someone-else", "content": "hi"})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestAppendMessageAsService(t *testing.T) {
	ts := setupServer(t)
	session := ts.createSession(t, "requester-1")

	// The gateway's service token may write on behalf of participants.
	w := ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/messages", session.ID),
		ts.token(t, "chatd-1", RoleService),
		gin.H{"sender_id": "requester-1", "content": "hello"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var msg domain.Message
	decodeData(t, w, &msg)
	if msg.ID == "" || msg.SenderID != "requester-1" {
		t.Errorf("stored message = %+v", msg)
	}
}

func TestHistoryOverHTTP(t *testing.T) {
	ts := setupServer(t)
	session := ts.createSession(t, "requester-1")

	for i := 0; i < 3; i++ {
		w := ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/messages", session.ID),
			ts.token(t, "requester-1"),
			gin.H{"sender_id": "requester-1", "content": fmt.Sprintf("message %d", i)})
		if w.Code != http.StatusCreated {
			t.Fatalf("append %d status = %d", i, w.Code)
		}
	}

	w := ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/sessions/%s/messages?limit=10", session.ID),
		ts.token(t, "requester-1"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d: %s", w.Code, w.Body.String())
	}

	var page domain.HistoryResponse
	decodeData(t, w, &page)
	if len(page.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(page.Messages))
	}
	if page.HasMore {
		t.Error("HasMore = true, want false")
	}

	// Outsiders are rejected.
	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/sessions/%s/messages", session.ID),
		ts.token(t, "stranger"), nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("outsider history status = %d, want 403", w.Code)
	}
}

func TestAppendMessageToClosedSession(t *testing.T) {
	ts := setupServer(t)
	session := ts.createSession(t, "requester-1")

	w := ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/cancel", session.ID), ts.token(t, "requester-1"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", w.Code)
	}

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/messages", session.ID),
		ts.token(t, "requester-1"),
		gin.H{"sender_id": "requester-1", "content": "too late"})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}
