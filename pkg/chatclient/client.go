package chatclient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Client ties the pieces of a chat participant together: history seeds
// the feed, the socket streams live pushes into it, and sends are
// echoed optimistically until the server's broadcast confirms them.
type Client struct {
	history   *History
	socket    *Socket
	feed      *Feed
	sessionID string
	userID    string
	cancel    context.CancelFunc
}

// Config holds the endpoints and identity for one client.
type Config struct {
	GatewayURL string // ws://host:port/chat/ws
	CounselURL string // http://host:port
	Token      string
	UserID     string
	PageSize   int
}

// Open connects a client to a session: fetches history, dials the
// gateway, joins the session room, and starts merging pushes into the
// feed.
func Open(ctx context.Context, cfg Config, sessionID string) (*Client, error) {
	history := NewHistory(cfg.CounselURL, cfg.Token, cfg.PageSize)

	messages, err := history.FetchMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	feed := NewFeed()
	feed.Seed(messages)

	socket, err := Dial(ctx, cfg.GatewayURL, cfg.Token)
	if err != nil {
		return nil, err
	}

	if err := socket.Join(ctx, sessionID); err != nil {
		socket.Close()
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	socket.Listen(listenCtx)

	c := &Client{
		history:   history,
		socket:    socket,
		feed:      feed,
		sessionID: sessionID,
		userID:    cfg.UserID,
		cancel:    cancel,
	}

	go c.pump()

	return c, nil
}

func (c *Client) pump() {
	for msg := range c.socket.Messages() {
		c.feed.ApplyPush(msg)
	}
}

// Send submits a message with an optimistic local echo. The returned
// ID identifies the pending feed entry.
func (c *Client) Send(content string) (string, error) {
	id := fmt.Sprintf("msg-%s", uuid.New().String())

	c.feed.AppendOptimistic(Message{
		ID:        id,
		SessionID: c.sessionID,
		SenderID:  c.userID,
		Content:   content,
		CreatedAt: time.Now(),
	})

	if err := c.socket.Send(c.sessionID, content, id); err != nil {
		c.feed.Fail(id)
		return id, err
	}

	return id, nil
}

// Refresh re-fetches the full history and reconciles the feed against
// it. Pending sends the server never stored stay pending; everything
// else adopts the server's ordering.
func (c *Client) Refresh(ctx context.Context) error {
	messages, err := c.history.FetchMessages(ctx, c.sessionID)
	if err != nil {
		return err
	}
	c.feed.Refresh(messages)
	return nil
}

// Feed returns the client's merged message view.
func (c *Client) Feed() *Feed {
	return c.feed
}

// Close tears down the socket and stops the merge loop.
func (c *Client) Close() error {
	c.cancel()
	return c.socket.Close()
}
