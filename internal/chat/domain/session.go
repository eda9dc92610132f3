package domain

import (
	"sync"
	"time"
)

// Conn tracks the state of one WebSocket connection: authentication
// and the counselling session it is currently joined to.
type Conn struct {
	ID               string
	UserID           string
	Username         string
	Roles            []string
	Authenticated    bool
	CurrentSessionID string
	CreatedAt        time.Time
	LastActiveAt     time.Time
	mu               sync.RWMutex
}

func NewConn(id string) *Conn {
	now := time.Now()
	return &Conn{
		ID:           id,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

func (c *Conn) Authenticate(userID, username string, roles []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.UserID = userID
	c.Username = username
	c.Roles = roles
	c.Authenticated = true
	c.LastActiveAt = time.Now()
}

func (c *Conn) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Authenticated
}

func (c *Conn) JoinSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CurrentSessionID = sessionID
	c.LastActiveAt = time.Now()
}

func (c *Conn) LeaveSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CurrentSessionID = ""
	c.LastActiveAt = time.Now()
}

func (c *Conn) GetCurrentSession() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.CurrentSessionID
}

func (c *Conn) GetUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.UserID
}

func (c *Conn) GetUsername() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Username
}

func (c *Conn) IsInSession() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.CurrentSessionID != ""
}

func (c *Conn) UpdateActivity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastActiveAt = time.Now()
}
