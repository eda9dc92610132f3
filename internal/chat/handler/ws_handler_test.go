package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	chatclient "github.com/etutorng/imara-messaging/internal/chat/client"
	"github.com/etutorng/imara-messaging/internal/chat/config"
	"github.com/etutorng/imara-messaging/internal/chat/domain"
	"github.com/etutorng/imara-messaging/internal/chat/hub"
	"github.com/etutorng/imara-messaging/internal/chat/service"
	"github.com/etutorng/imara-messaging/pkg/auth"
)

type gatewayFixture struct {
	wsURL  string
	tokens *auth.Manager
}

// stubCounsel fakes the session service persistence API.
func stubCounsel(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sessions/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/messages"):
			var req struct {
				SenderID string `json:"sender_id"`
				Content  string `json:"content"`
				ID       string `json:"id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}

			parts := strings.Split(r.URL.Path, "/")
			sessionID := parts[len(parts)-2]

			if sessionID == "closed-session" {
				w.WriteHeader(http.StatusConflict)
				json.NewEncoder(w).Encode(map[string]interface{}{"success": false})
				return
			}

			id := req.ID
			if id == "" {
				id = fmt.Sprintf("msg-%d", time.Now().UnixNano())
			}

			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data": map[string]interface{}{
					"id":         id,
					"session_id": sessionID,
					"sender_id":  req.SenderID,
					"content":    req.Content,
					"created_at": time.Now().UTC().Format(time.RFC3339Nano),
				},
			})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setupGateway(t *testing.T) *gatewayFixture {
	t.Helper()

	counsel := stubCounsel(t)

	wsCfg := config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	}

	tokens := auth.NewManager("test-secret", time.Hour, "imara")
	counselClient := chatclient.NewCounselClient(counsel.URL, "service-token", 5*time.Second, time.Minute)

	wsHub := hub.NewHub(wsCfg)
	go wsHub.Run()

	chatSvc := service.NewChatService(wsHub, tokens, counselClient, nil, "test-instance", false)
	wsHandler := NewWSHandler(wsHub, chatSvc, wsCfg)

	mux := http.NewServeMux()
	wsHandler.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &gatewayFixture{
		wsURL:  "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws",
		tokens: tokens,
	}
}

func (g *gatewayFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(g.wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (g *gatewayFixture) authToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := g.tokens.GenerateToken(userID, userID, nil)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

func sendJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]interface{}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	return frame
}

func expectType(t *testing.T, conn *websocket.Conn, wantType string) map[string]interface{} {
	t.Helper()
	frame := readFrame(t, conn)
	if frame["type"] != wantType {
		t.Fatalf("frame type = %v, want %s (frame: %v)", frame["type"], wantType, frame)
	}
	return frame
}

// connect authenticates and joins a session.
func (g *gatewayFixture) connect(t *testing.T, userID, sessionID string) *websocket.Conn {
	t.Helper()

	conn := g.dial(t)
	sendJSON(t, conn, map[string]string{"type": "auth", "token": g.authToken(t, userID)})
	frame := expectType(t, conn, domain.MsgTypeAuthResult)
	if frame["success"] != true {
		t.Fatalf("auth failed: %v", frame)
	}

	sendJSON(t, conn, map[string]string{"type": "join_session", "session_id": sessionID})
	expectType(t, conn, domain.MsgTypeSessionJoined)

	return conn
}

func TestSendBeforeAuthRejected(t *testing.T) {
	g := setupGateway(t)
	conn := g.dial(t)

	sendJSON(t, conn, map[string]string{"type": "send_message", "content": "hi"})

	frame := expectType(t, conn, domain.MsgTypeError)
	if frame["code"] != domain.ErrCodeUnauthorized {
		t.Errorf("code = %v, want UNAUTHORIZED", frame["code"])
	}
}

func TestAuthWithBadToken(t *testing.T) {
	g := setupGateway(t)
	conn := g.dial(t)

	sendJSON(t, conn, map[string]string{"type": "auth", "token": "garbage"})

	frame := expectType(t, conn, domain.MsgTypeAuthResult)
	if frame["success"] != false {
		t.Errorf("auth should fail: %v", frame)
	}
}

func TestMessageFlowBetweenParticipants(t *testing.T) {
	g := setupGateway(t)

	requester := g.connect(t, "requester-1", "sess-1")
	counsellor := g.connect(t, "counsellor-1", "sess-1")

	sendJSON(t, requester, map[string]string{
		"type":       "send_message",
		"session_id": "sess-1",
		"content":    "hello there",
	})

	// Both the peer and the sender receive the stored message.
	for _, conn := range []*websocket.Conn{requester, counsellor} {
		frame := expectType(t, conn, domain.MsgTypeReceiveMessage)
		if frame["content"] != "hello there" {
			t.Errorf("content = %v", frame["content"])
		}
		if frame["sender_id"] != "requester-1" {
			t.Errorf("sender_id = %v, want requester-1", frame["sender_id"])
		}
		if frame["id"] == "" || frame["id"] == nil {
			t.Error("broadcast missing message id")
		}
	}
}

func TestSenderIdentityOverridesPayload(t *testing.T) {
	g := setupGateway(t)

	conn := g.connect(t, "requester-1", "sess-1")

	// The payload claims to be someone else; the gateway overwrites it
	// with the authenticated identity.
	sendJSON(t, conn, map[string]string{
		"type":       "send_message",
		"session_id": "sess-1",
		"sender_id":  "impostor",
		"content":    "spoofed",
	})

	frame := expectType(t, conn, domain.MsgTypeReceiveMessage)
	if frame["sender_id"] != "requester-1" {
		t.Errorf("sender_id = %v, want requester-1", frame["sender_id"])
	}
}

func TestMalformedSendSilentlyDropped(t *testing.T) {
	g := setupGateway(t)

	conn := g.connect(t, "requester-1", "sess-1")

	// Unparseable payload, then empty content: neither produces a reply.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"send_message","content":123}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	sendJSON(t, conn, map[string]string{"type": "send_message", "session_id": "sess-1", "content": ""})

	// A valid send afterwards is the next frame the client sees.
	sendJSON(t, conn, map[string]string{"type": "send_message", "session_id": "sess-1", "content": "still alive"})

	frame := expectType(t, conn, domain.MsgTypeReceiveMessage)
	if frame["content"] != "still alive" {
		t.Errorf("content = %v, want still alive", frame["content"])
	}
}

func TestSendToClosedSession(t *testing.T) {
	g := setupGateway(t)

	conn := g.connect(t, "requester-1", "closed-session")

	sendJSON(t, conn, map[string]string{
		"type":       "send_message",
		"session_id": "closed-session",
		"content":    "too late",
	})

	frame := expectType(t, conn, domain.MsgTypeError)
	if frame["code"] != domain.ErrCodeSessionClosed {
		t.Errorf("code = %v, want SESSION_CLOSED", frame["code"])
	}
}

func TestSendOutsideJoinedSession(t *testing.T) {
	g := setupGateway(t)

	conn := g.connect(t, "requester-1", "sess-1")

	sendJSON(t, conn, map[string]string{
		"type":       "send_message",
		"session_id": "sess-other",
		"content":    "wrong room",
	})

	frame := expectType(t, conn, domain.MsgTypeError)
	if frame["code"] != domain.ErrCodeNotInSession {
		t.Errorf("code = %v, want NOT_IN_SESSION", frame["code"])
	}
}

func TestLeaveSessionStopsDelivery(t *testing.T) {
	g := setupGateway(t)

	requester := g.connect(t, "requester-1", "sess-1")
	counsellor := g.connect(t, "counsellor-1", "sess-1")

	sendJSON(t, counsellor, map[string]string{"type": "leave_session"})

	// Give the leave time to land before broadcasting.
	time.Sleep(50 * time.Millisecond)

	sendJSON(t, requester, map[string]string{
		"type":       "send_message",
		"session_id": "sess-1",
		"content":    "anyone there?",
	})

	expectType(t, requester, domain.MsgTypeReceiveMessage)

	counsellor.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var frame map[string]interface{}
	if err := counsellor.ReadJSON(&frame); err == nil {
		t.Fatalf("departed client received frame: %v", frame)
	}
}

func TestPingPong(t *testing.T) {
	g := setupGateway(t)
	conn := g.dial(t)

	sendJSON(t, conn, map[string]string{"type": "ping"})
	expectType(t, conn, domain.MsgTypePong)
}

func TestUnknownMessageType(t *testing.T) {
	g := setupGateway(t)
	conn := g.dial(t)

	sendJSON(t, conn, map[string]string{"type": "teleport"})

	frame := expectType(t, conn, domain.MsgTypeError)
	if frame["code"] != domain.ErrCodeBadRequest {
		t.Errorf("code = %v, want BAD_REQUEST", frame["code"])
	}
}
