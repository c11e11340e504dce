package notifications

import (
	"context"
	"sync"
	"time"
)

// Hub keeps at most one subscription per console session
type Hub struct {
	wsBase    string
	logSize   int
	reconnect time.Duration
	opts      []SubscriptionOption

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[string]*hubEntry
}

type hubEntry struct {
	sub *Subscription

	mu     sync.RWMutex
	access string
}

func (e *hubEntry) token() (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.access, e.access != ""
}

func (e *hubEntry) setToken(access string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.access = access
}

func NewHub(wsBase string, logSize int, reconnect time.Duration, opts ...SubscriptionOption) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		wsBase:    wsBase,
		logSize:   logSize,
		reconnect: reconnect,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		subs:      make(map[string]*hubEntry),
	}
}

// Open starts the session's subscription, or refreshes its token when already open
func (h *Hub) Open(sessionID, access string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.subs[sessionID]; ok {
		e.setToken(access)
		return
	}
	e := &hubEntry{access: access}
	opts := append([]SubscriptionOption{WithReconnectInterval(h.reconnect)}, h.opts...)
	e.sub = Subscribe(h.ctx, h.wsBase, e.token, NewLog(h.logSize), opts...)
	h.subs[sessionID] = e
}

// Touch refreshes the token of an open subscription
func (h *Hub) Touch(sessionID, access string) {
	h.mu.Lock()
	e, ok := h.subs[sessionID]
	h.mu.Unlock()
	if ok {
		e.setToken(access)
	}
}

func (h *Hub) IsOpen(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.subs[sessionID]
	return ok
}

// List returns the session's notifications, nil when no subscription is open
func (h *Hub) List(sessionID string) []Notification {
	h.mu.Lock()
	e, ok := h.subs[sessionID]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return e.sub.Log().List()
}

// Close ends the session's subscription
func (h *Hub) Close(sessionID string) {
	h.mu.Lock()
	e, ok := h.subs[sessionID]
	delete(h.subs, sessionID)
	h.mu.Unlock()
	if ok {
		e.sub.Close()
	}
}

// Shutdown closes every subscription
func (h *Hub) Shutdown() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*hubEntry)
	h.mu.Unlock()
	h.cancel()
	for _, e := range subs {
		e.sub.Close()
	}
}
