package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/etutorng/imara-messaging/internal/counsel/audit"
	"github.com/etutorng/imara-messaging/internal/counsel/domain"
	"github.com/etutorng/imara-messaging/internal/counsel/service"
	"github.com/etutorng/imara-messaging/pkg/log"
	"github.com/etutorng/imara-messaging/pkg/middleware"
	"github.com/etutorng/imara-messaging/pkg/response"
)

// RoleService marks tokens issued to internal services. A service
// caller may append messages on behalf of any participant; ordinary
// users may only append as themselves.
const RoleService = "service"

// Handler handles HTTP requests for the counselling session service.
type Handler struct {
	sessionService service.SessionService
	historyService service.HistoryService
	authMiddleware *middleware.AuthMiddleware
	historyLimit   int
}

// NewHandler creates a new HTTP handler.
func NewHandler(
	sessionService service.SessionService,
	historyService service.HistoryService,
	authMiddleware *middleware.AuthMiddleware,
	historyLimit int,
) *Handler {
	return &Handler{
		sessionService: sessionService,
		historyService: historyService,
		authMiddleware: authMiddleware,
		historyLimit:   historyLimit,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		sessions := api.Group("/sessions", h.authMiddleware.RequireAuth())
		{
			sessions.POST("", h.CreateSession)
			sessions.GET("", h.ListSessions)
			sessions.GET("/pending", h.ListPendingSessions)
			sessions.GET("/my", h.GetMySessions)
			sessions.GET("/:id", h.GetSession)
			sessions.POST("/:id/claim", h.ClaimSession)
			sessions.POST("/:id/complete", h.CompleteSession)
			sessions.POST("/:id/cancel", h.CancelSession)
			sessions.GET("/:id/participants", h.GetParticipants)
			sessions.GET("/:id/messages", h.GetHistory)
			sessions.POST("/:id/messages", h.AppendMessage)
		}
	}
}

// Health reports service liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

// CreateSession opens a new pending session for the caller.
func (h *Handler) CreateSession(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req domain.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind create session request")
		response.BadRequest(c, err.Error())
		return
	}

	session, err := h.sessionService.CreateSession(ctx, userID, &req)
	if err != nil {
		if errors.Is(err, service.ErrMaxSessions) {
			response.Error(c, 429, "MAX_SESSIONS_REACHED", "you have reached the maximum number of open sessions")
			return
		}
		l.Error().Err(err).Msg("failed to create session")
		response.InternalError(c, "failed to create session")
		return
	}

	audit.Log(ctx, audit.ActionCreateSession, userID, "session created")
	response.Created(c, session)
}

// GetSession retrieves a session by ID.
func (h *Handler) GetSession(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	sessionID := c.Param("id")

	session, err := h.sessionService.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.NotFound(c, "session not found")
			return
		}
		l.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to get session")
		response.InternalError(c, "failed to get session")
		return
	}

	response.Success(c, session)
}

// ListSessions lists sessions with pagination.
func (h *Handler) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.ListSessionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.sessionService.ListSessions(ctx, req.Page, req.PageSize, req.Status)
	if err != nil {
		l.Error().Err(err).Msg("failed to list sessions")
		response.InternalError(c, "failed to list sessions")
		return
	}

	response.Success(c, result)
}

// ListPendingSessions lists unclaimed sessions for counsellors.
func (h *Handler) ListPendingSessions(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.ListSessionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.sessionService.ListPendingSessions(ctx, req.Page, req.PageSize)
	if err != nil {
		l.Error().Err(err).Msg("failed to list pending sessions")
		response.InternalError(c, "failed to list pending sessions")
		return
	}

	response.Success(c, result)
}

// GetMySessions retrieves the caller's sessions.
func (h *Handler) GetMySessions(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	sessions, err := h.sessionService.GetMySessions(ctx, userID)
	if err != nil {
		l.Error().Err(err).Msg("failed to get my sessions")
		response.InternalError(c, "failed to get sessions")
		return
	}

	response.Success(c, gin.H{"sessions": sessions})
}

// ClaimSession assigns the calling counsellor to a pending session.
func (h *Handler) ClaimSession(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	sessionID := c.Param("id")

	session, err := h.sessionService.ClaimSession(ctx, userID, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			response.NotFound(c, "session not found")
		case errors.Is(err, service.ErrAlreadyClaimed):
			response.Conflict(c, "session already claimed")
		case errors.Is(err, service.ErrOwnSession):
			response.Forbidden(c, "cannot claim your own session")
		default:
			l.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to claim session")
			response.InternalError(c, "failed to claim session")
		}
		return
	}

	audit.LogWithDetail(ctx, audit.ActionClaimSession, userID, sessionID, "session claimed")
	response.Success(c, session)
}

// CompleteSession marks a session completed.
func (h *Handler) CompleteSession(c *gin.Context) {
	h.closeSession(c, domain.SessionStatusCompleted)
}

// CancelSession marks a session cancelled.
func (h *Handler) CancelSession(c *gin.Context) {
	h.closeSession(c, domain.SessionStatusCancelled)
}

func (h *Handler) closeSession(c *gin.Context, status domain.SessionStatus) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	sessionID := c.Param("id")

	var err error
	var action string
	if status == domain.SessionStatusCompleted {
		err = h.sessionService.CompleteSession(ctx, userID, sessionID)
		action = audit.ActionCompleteSession
	} else {
		err = h.sessionService.CancelSession(ctx, userID, sessionID)
		action = audit.ActionCancelSession
	}
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			response.NotFound(c, "session not found")
		case errors.Is(err, service.ErrNotParticipant):
			response.Forbidden(c, "you are not a participant of this session")
		case errors.Is(err, service.ErrSessionClosed):
			response.Conflict(c, "session is already closed")
		default:
			l.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to close session")
			response.InternalError(c, "failed to close session")
		}
		return
	}

	audit.LogWithDetail(ctx, action, userID, sessionID, "session closed")
	response.Success(c, gin.H{"message": "session closed successfully"})
}

// GetParticipants lists the user IDs attached to a session.
func (h *Handler) GetParticipants(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	sessionID := c.Param("id")

	participants, err := h.sessionService.GetParticipants(ctx, sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.NotFound(c, "session not found")
			return
		}
		l.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to get participants")
		response.InternalError(c, "failed to get participants")
		return
	}

	response.Success(c, participants)
}

// GetHistory returns a page of session messages in ascending order.
func (h *Handler) GetHistory(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	sessionID := c.Param("id")

	var req domain.HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Limit < 1 {
		req.Limit = h.historyLimit
	}

	result, err := h.historyService.GetHistory(ctx, userID, sessionID, req.Cursor, req.Limit)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			response.NotFound(c, "session not found")
		case errors.Is(err, service.ErrNotParticipant):
			response.Forbidden(c, "you are not a participant of this session")
		case errors.Is(err, service.ErrInvalidCursor):
			response.BadRequest(c, "invalid cursor")
		default:
			l.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to get history")
			response.InternalError(c, "failed to get history")
		}
		return
	}

	response.Success(c, result)
}

// AppendMessage stores a message in a session.
func (h *Handler) AppendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	sessionID := c.Param("id")

	var req domain.AppendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind append message request")
		response.BadRequest(c, err.Error())
		return
	}

	// Ordinary users may only append as themselves.
	if req.SenderID != userID && !hasRole(c, RoleService) {
		response.Forbidden(c, "sender does not match authenticated user")
		return
	}

	msg, err := h.historyService.AppendMessage(ctx, sessionID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			response.NotFound(c, "session not found")
		case errors.Is(err, service.ErrNotParticipant):
			response.Forbidden(c, "sender is not a participant of this session")
		case errors.Is(err, service.ErrSessionClosed):
			response.Conflict(c, "session is closed")
		case errors.Is(err, service.ErrDuplicateMessage):
			response.Conflict(c, "message id already used")
		default:
			l.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to append message")
			response.InternalError(c, "failed to append message")
		}
		return
	}

	audit.LogWithDetail(ctx, audit.ActionAppendMessage, req.SenderID, sessionID, "message appended")
	response.Created(c, msg)
}

func hasRole(c *gin.Context, role string) bool {
	for _, r := range middleware.GetRoles(c) {
		if r == role {
			return true
		}
	}
	return false
}
