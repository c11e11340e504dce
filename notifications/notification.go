package notifications

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notification is one inbound realtime message
type Notification struct {
	ID        string          `json:"id"`
	Type      string          `json:"type,omitempty"`
	Title     string          `json:"title,omitempty"`
	Message   string          `json:"message,omitempty"`
	ShopID    int64           `json:"shop_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Decode parses a frame. Missing ids and timestamps are filled in.
func Decode(frame []byte, now time.Time) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(frame, &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.Raw = append(json.RawMessage(nil), frame...)
	return n, nil
}

// Log keeps the most recent notifications, oldest first
type Log struct {
	mu    sync.RWMutex
	items []Notification
	size  int
}

func NewLog(size int) *Log {
	if size <= 0 {
		size = 100
	}
	return &Log{size: size}
}

func (l *Log) Append(n Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, n)
	if over := len(l.items) - l.size; over > 0 {
		l.items = append(l.items[:0:0], l.items[over:]...)
	}
}

func (l *Log) List() []Notification {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Notification, len(l.items))
	copy(out, l.items)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}
