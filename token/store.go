package token

import "sync"

// Store persists the access/refresh token pair. Every operation is synchronous and local.
type Store interface {
	GetAccessToken() (string, bool)
	GetRefreshToken() (string, bool)
	// SetTokens stores a new pair. An empty refresh keeps the current refresh token;
	// an empty access removes both tokens.
	SetTokens(access, refresh string)
	RemoveTokens()
}

// Pair is the token pair as exchanged with the remote auth endpoints
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the pair in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

func NewMemoryStore(access, refresh string) *MemoryStore {
	return &MemoryStore{access: access, refresh: refresh}
}

func (s *MemoryStore) GetAccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access, s.access != ""
}

func (s *MemoryStore) GetRefreshToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh, s.refresh != ""
}

func (s *MemoryStore) SetTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if access == "" {
		s.access, s.refresh = "", ""
		return
	}
	if refresh == "" {
		refresh = s.refresh
	}
	if refresh == "" {
		s.access, s.refresh = "", ""
		return
	}
	s.access, s.refresh = access, refresh
}

func (s *MemoryStore) RemoveTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access, s.refresh = "", ""
}
