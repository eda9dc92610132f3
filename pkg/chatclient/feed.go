package chatclient

import (
	"sort"
	"sync"
	"time"
)

// MessageState tracks a feed entry's delivery status.
type MessageState string

const (
	// StatePending marks an optimistic local echo not yet confirmed by
	// the server.
	StatePending MessageState = "pending"
	// StateConfirmed marks a message the server has stored.
	StateConfirmed MessageState = "confirmed"
	// StateFailed marks an optimistic send the client gave up on.
	StateFailed MessageState = "failed"
)

// Message is one chat message as seen by the client.
type Message struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	SenderID  string       `json:"sender_id"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
	State     MessageState `json:"state"`
}

// Feed is the client's merged view of a session's messages: server
// history, live pushes, and optimistic local echoes. Entries are
// deduplicated by ID and ordered by (CreatedAt, ID), matching the
// server's authoritative ordering.
type Feed struct {
	messages map[string]Message
	mu       sync.RWMutex
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{
		messages: make(map[string]Message),
	}
}

// Seed loads server history into the feed. Seeded messages are
// confirmed by definition.
func (f *Feed) Seed(messages []Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, msg := range messages {
		msg.State = StateConfirmed
		f.messages[msg.ID] = msg
	}
}

// ApplyPush merges a live broadcast into the feed. A push carrying the
// ID of a pending optimistic entry confirms it; the server's copy of
// the message wins.
func (f *Feed) ApplyPush(msg Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg.State = StateConfirmed
	f.messages[msg.ID] = msg
}

// AppendOptimistic adds a local echo before the server has stored the
// message. The caller supplies the ID it sent to the server so the
// eventual push or refresh matches it.
func (f *Feed) AppendOptimistic(msg Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Never downgrade a message the server already confirmed.
	if existing, ok := f.messages[msg.ID]; ok && existing.State == StateConfirmed {
		return
	}

	msg.State = StatePending
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	f.messages[msg.ID] = msg
}

// Confirm marks an optimistic entry as stored, adopting the server's
// authoritative copy.
func (f *Feed) Confirm(id string, stored Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.messages, id)
	stored.State = StateConfirmed
	f.messages[stored.ID] = stored
}

// Fail marks an optimistic entry as undeliverable. Confirmed messages
// are left alone.
func (f *Feed) Fail(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg, ok := f.messages[id]
	if !ok || msg.State == StateConfirmed {
		return
	}
	msg.State = StateFailed
	f.messages[id] = msg
}

// Refresh replaces the feed's confirmed view with fresh server
// history. Pending and failed optimistic entries whose IDs the server
// does not know survive; a history row with a matching ID supersedes
// the optimistic copy.
func (f *Feed) Refresh(messages []Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	merged := make(map[string]Message, len(messages))

	for id, msg := range f.messages {
		if msg.State != StateConfirmed {
			merged[id] = msg
		}
	}

	for _, msg := range messages {
		msg.State = StateConfirmed
		merged[msg.ID] = msg
	}

	f.messages = merged
}

// Messages returns a snapshot of the feed in (CreatedAt, ID) order.
func (f *Feed) Messages() []Message {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Message, 0, len(f.messages))
	for _, msg := range f.messages {
		out = append(out, msg)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}

// Len returns the number of entries in the feed.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.messages)
}

// Get returns the entry with the given ID.
func (f *Feed) Get(id string) (Message, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	msg, ok := f.messages[id]
	return msg, ok
}
