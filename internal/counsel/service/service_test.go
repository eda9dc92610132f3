package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/etutorng/imara-messaging/internal/counsel/cache"
	"github.com/etutorng/imara-messaging/internal/counsel/domain"
	"github.com/etutorng/imara-messaging/internal/counsel/repository"
	"github.com/etutorng/imara-messaging/pkg/database"
)

func setupServices(t *testing.T) (SessionService, HistoryService) {
	t.Helper()

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

	return NewSessionService(sessionRepo, 3),
		NewHistoryService(sessionRepo, messageRepo, historyCache, time.Minute)
}

func activeSession(t *testing.T, sessions SessionService) *domain.SessionResponse {
	t.Helper()
	ctx := context.Background()

	created, err := sessions.CreateSession(ctx, "requester-1", &domain.CreateSessionRequest{Topic: "exam stress"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	claimed, err := sessions.ClaimSession(ctx, "counsellor-1", created.ID)
	if err != nil {
		t.Fatalf("ClaimSession: %v", err)
	}
	return claimed
}

func TestCreateSessionLimit(t *testing.T) {
	sessions, _ := setupServices(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := sessions.CreateSession(ctx, "requester-1", &domain.CreateSessionRequest{Topic: "t"}); err != nil {
			t.Fatalf("CreateSession %d: %v", i, err)
		}
	}

	if _, err := sessions.CreateSession(ctx, "requester-1", &domain.CreateSessionRequest{Topic: "t"}); !errors.Is(err, ErrMaxSessions) {
		t.Errorf("CreateSession error = %v, want ErrMaxSessions", err)
	}
}

func TestClaimOwnSession(t *testing.T) {
	sessions, _ := setupServices(t)
	ctx := context.Background()

	created, err := sessions.CreateSession(ctx, "requester-1", &domain.CreateSessionRequest{Topic: "t"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, err := sessions.ClaimSession(ctx, "requester-1", created.ID); !errors.Is(err, ErrOwnSession) {
		t.Errorf("ClaimSession error = %v, want ErrOwnSession", err)
	}
}

func TestClaimTwice(t *testing.T) {
	sessions, _ := setupServices(t)
	ctx := context.Background()

	session := activeSession(t, sessions)

	if _, err := sessions.ClaimSession(ctx, "counsellor-2", session.ID); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("ClaimSession error = %v, want ErrAlreadyClaimed", err)
	}
}

func TestCompleteByOutsider(t *testing.T) {
	sessions, _ := setupServices(t)
	ctx := context.Background()

	session := activeSession(t, sessions)

	if err := sessions.CompleteSession(ctx, "stranger", session.ID); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("CompleteSession error = %v, want ErrNotParticipant", err)
	}
	if err := sessions.CompleteSession(ctx, "counsellor-1", session.ID); err != nil {
		t.Errorf("CompleteSession by counsellor: %v", err)
	}
	if err := sessions.CancelSession(ctx, "requester-1", session.ID); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("CancelSession on terminal error = %v, want ErrSessionClosed", err)
	}
}

func TestAppendMessageValidation(t *testing.T) {
	sessions, history := setupServices(t)
	ctx := context.Background()

	session := activeSession(t, sessions)

	// Outsiders cannot write.
	_, err := history.AppendMessage(ctx, session.ID, &domain.AppendMessageRequest{
		SenderID: "stranger",
		Content:  "hi",
	})
	if !errors.Is(err, ErrNotParticipant) {
		t.Errorf("AppendMessage error = %v, want ErrNotParticipant", err)
	}

	// Participants can.
	msg, err := history.AppendMessage(ctx, session.ID, &domain.AppendMessageRequest{
		SenderID: "requester-1",
		Content:  "hello",
	})
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Errorf("stored message missing defaults: %+v", msg)
	}

	// Terminal sessions reject writes.
	if err := sessions.CompleteSession(ctx, "requester-1", session.ID); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	_, err = history.AppendMessage(ctx, session.ID, &domain.AppendMessageRequest{
		SenderID: "requester-1",
		Content:  "too late",
	})
	if !errors.Is(err, ErrSessionClosed) {
		t.Errorf("AppendMessage on closed error = %v, want ErrSessionClosed", err)
	}
}

func TestGetHistoryAccessAndPaging(t *testing.T) {
	sessions, history := setupServices(t)
	ctx := context.Background()

	session := activeSession(t, sessions)

	for i := 0; i < 5; i++ {
		_, err := history.AppendMessage(ctx, session.ID, &domain.AppendMessageRequest{
			SenderID: "requester-1",
			Content:  "m",
		})
		if err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
	}

	// Outsiders cannot read.
	if _, err := history.GetHistory(ctx, "stranger", session.ID, "", 10); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("GetHistory error = %v, want ErrNotParticipant", err)
	}

	// First page, then follow the cursor to exhaustion.
	var all []domain.Message
	cursor := ""
	pages := 0
	for {
		resp, err := history.GetHistory(ctx, "counsellor-1", session.ID, cursor, 2)
		if err != nil {
			t.Fatalf("GetHistory page %d: %v", pages, err)
		}
		all = append(all, resp.Messages...)
		pages++
		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	if len(all) != 5 {
		t.Fatalf("collected %d messages over %d pages, want 5", len(all), pages)
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Fatalf("history out of order at %d", i)
		}
	}
}

func TestAppendMessageDuplicateReturnsStoredRow(t *testing.T) {
	sessions, history := setupServices(t)
	ctx := context.Background()

	session := activeSession(t, sessions)

	stored, err := history.AppendMessage(ctx, session.ID, &domain.AppendMessageRequest{
		SenderID: "requester-1",
		Content:  "original",
		ID:       "msg-retry-1",
	})
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	// A retry with the same id is idempotent: the canonical row comes
	// back, not the retry's payload.
	retried, err := history.AppendMessage(ctx, session.ID, &domain.AppendMessageRequest{
		SenderID: "requester-1",
		Content:  "mutated on retry",
		ID:       "msg-retry-1",
	})
	if err != nil {
		t.Fatalf("retry AppendMessage: %v", err)
	}
	if retried.Content != "original" {
		t.Errorf("retry Content = %q, want original", retried.Content)
	}
	if !retried.CreatedAt.Equal(stored.CreatedAt) {
		t.Errorf("retry CreatedAt = %v, want %v", retried.CreatedAt, stored.CreatedAt)
	}

	// Reusing the id from a different sender is rejected.
	if _, err := history.AppendMessage(ctx, session.ID, &domain.AppendMessageRequest{
		SenderID: "counsellor-1",
		Content:  "hijack",
		ID:       "msg-retry-1",
	}); !errors.Is(err, ErrDuplicateMessage) {
		t.Errorf("foreign-id AppendMessage error = %v, want ErrDuplicateMessage", err)
	}
}

func TestGetHistoryInvalidCursor(t *testing.T) {
	sessions, history := setupServices(t)
	ctx := context.Background()

	session := activeSession(t, sessions)

	if _, err := history.GetHistory(ctx, "requester-1", session.ID, "!!!not-base64!!!", 10); !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("GetHistory error = %v, want ErrInvalidCursor", err)
	}
}
