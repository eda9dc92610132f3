package chatclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	chatclient "github.com/etutorng/imara-messaging/internal/chat/client"
	chatconfig "github.com/etutorng/imara-messaging/internal/chat/config"
	chathandler "github.com/etutorng/imara-messaging/internal/chat/handler"
	"github.com/etutorng/imara-messaging/internal/chat/hub"
	chatservice "github.com/etutorng/imara-messaging/internal/chat/service"
	"github.com/etutorng/imara-messaging/internal/counsel/cache"
	counseldomain "github.com/etutorng/imara-messaging/internal/counsel/domain"
	counselhandler "github.com/etutorng/imara-messaging/internal/counsel/handler"
	"github.com/etutorng/imara-messaging/internal/counsel/repository"
	counselservice "github.com/etutorng/imara-messaging/internal/counsel/service"
	"github.com/etutorng/imara-messaging/pkg/auth"
	"github.com/etutorng/imara-messaging/pkg/database"
	"github.com/etutorng/imara-messaging/pkg/middleware"
)

type stack struct {
	counselURL string
	gatewayURL string
	tokens     *auth.Manager
	sessions   counselservice.SessionService
}

// setupStack runs the full pipeline: session service backed by sqlite,
// the gateway in front of it, and nothing faked.
func setupStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(db, &counseldomain.SessionModel{}, &counseldomain.MessageModel{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	sessionRepo := repository.NewGormSessionRepository(db)
	messageRepo := repository.NewGormMessageRepository(db)
	sessionService := counselservice.NewSessionService(sessionRepo, 10)
	historyService := counselservice.NewHistoryService(sessionRepo, messageRepo,
		cache.NewMemoryHistoryCache("test:history"), time.Minute)

	tokens := auth.NewManager("test-secret", time.Hour, "imara")
	authMiddleware := middleware.NewAuthMiddleware(tokens)

	counselRouter := gin.New()
	counselhandler.NewHandler(sessionService, historyService, authMiddleware, 50).RegisterRoutes(counselRouter)
	counselSrv := httptest.NewServer(counselRouter)
	t.Cleanup(counselSrv.Close)

	serviceToken, err := tokens.GenerateToken("chatd-1", "chatd-1", []string{counselhandler.RoleService})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	wsCfg := chatconfig.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	}

	counselClient := chatclient.NewCounselClient(counselSrv.URL, serviceToken, 5*time.Second, time.Minute)

	wsHub := hub.NewHub(wsCfg)
	go wsHub.Run()

	chatSvc := chatservice.NewChatService(wsHub, tokens, counselClient, nil, "test-instance", false)
	wsHandler := chathandler.NewWSHandler(wsHub, chatSvc, wsCfg)

	mux := http.NewServeMux()
	wsHandler.RegisterRoutes(mux)
	gatewaySrv := httptest.NewServer(mux)
	t.Cleanup(gatewaySrv.Close)

	return &stack{
		counselURL: counselSrv.URL,
		gatewayURL: "ws" + strings.TrimPrefix(gatewaySrv.URL, "http") + "/chat/ws",
		tokens:     tokens,
		sessions:   sessionService,
	}
}

func (s *stack) activeSession(t *testing.T, requesterID, counsellorID string) string {
	t.Helper()
	ctx := context.Background()

	created, err := s.sessions.CreateSession(ctx, requesterID, &counseldomain.CreateSessionRequest{Topic: "exam stress"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := s.sessions.ClaimSession(ctx, counsellorID, created.ID); err != nil {
		t.Fatalf("ClaimSession: %v", err)
	}
	return created.ID
}

func (s *stack) open(t *testing.T, userID, sessionID string) *Client {
	t.Helper()

	token, err := s.tokens.GenerateToken(userID, userID, nil)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Open(ctx, Config{
		GatewayURL: s.gatewayURL,
		CounselURL: s.counselURL,
		Token:      token,
		UserID:     userID,
	}, sessionID)
	if err != nil {
		t.Fatalf("Open for %s: %v", userID, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSendConfirmsOptimisticEcho(t *testing.T) {
	s := setupStack(t)
	sessionID := s.activeSession(t, "requester-1", "counsellor-1")

	c := s.open(t, "requester-1", sessionID)

	id, err := c.Send("hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	// The optimistic echo is in the feed immediately; the broadcast may
	// already have confirmed it on a fast loopback.
	if _, ok := c.Feed().Get(id); !ok {
		t.Fatal("optimistic echo missing from feed")
	}

	// The gateway broadcast carries the same id and confirms the echo.
	waitFor(t, func() bool {
		msg, ok := c.Feed().Get(id)
		return ok && msg.State == StateConfirmed
	}, "send confirmation")
}

func TestPeerReceivesAndHistorySeeds(t *testing.T) {
	s := setupStack(t)
	sessionID := s.activeSession(t, "requester-1", "counsellor-1")

	requester := s.open(t, "requester-1", sessionID)
	counsellor := s.open(t, "counsellor-1", sessionID)

	if _, err := requester.Send("first"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitFor(t, func() bool { return counsellor.Feed().Len() == 1 }, "peer delivery")

	got := counsellor.Feed().Messages()
	if got[0].Content != "first" || got[0].SenderID != "requester-1" {
		t.Errorf("peer saw %+v", got[0])
	}

	// A client joining later seeds its feed from history.
	late := s.open(t, "counsellor-1", sessionID)
	if late.Feed().Len() != 1 {
		t.Errorf("late joiner feed len = %d, want 1", late.Feed().Len())
	}
}

func TestRefreshReconcilesFeed(t *testing.T) {
	s := setupStack(t)
	sessionID := s.activeSession(t, "requester-1", "counsellor-1")

	requester := s.open(t, "requester-1", sessionID)
	counsellor := s.open(t, "counsellor-1", sessionID)

	for _, content := range []string{"one", "two", "three"} {
		if _, err := requester.Send(content); err != nil {
			t.Fatalf("Send %s: %v", content, err)
		}
		waitFor(t, func() bool {
			for _, m := range requester.Feed().Messages() {
				if m.Content == content && m.State == StateConfirmed {
					return true
				}
			}
			return false
		}, "confirmation of "+content)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Refresh replaces the live view with the server's ordering.
	if err := counsellor.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	got := counsellor.Feed().Messages()
	if len(got) != 3 {
		t.Fatalf("feed len = %d, want 3", len(got))
	}
	want := []string{"one", "two", "three"}
	for i, content := range want {
		if got[i].Content != content {
			t.Errorf("messages[%d].Content = %q, want %q", i, got[i].Content, content)
		}
		if got[i].State != StateConfirmed {
			t.Errorf("messages[%d].State = %q, want confirmed", i, got[i].State)
		}
	}
}
