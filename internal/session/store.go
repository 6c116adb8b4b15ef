package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Store maps opaque session tokens to user ids. Entries expire after the TTL
// and are swept in the background.
type Store struct {
	cache *cache.Cache
}

// NewStore creates a session store whose tokens live for ttl
func NewStore(ttl time.Duration) *Store {
	cleanup := ttl / 2
	if cleanup <= 0 || cleanup > time.Hour {
		cleanup = time.Hour
	}
	return &Store{cache: cache.New(ttl, cleanup)}
}

// Create issues a new token for a user
func (s *Store) Create(userID uint64) string {
	token := uuid.NewString()
	s.cache.SetDefault(token, userID)
	return token
}

// Lookup returns the user bound to a token
func (s *Store) Lookup(token string) (uint64, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, false
	}
	value, ok := s.cache.Get(token)
	if !ok {
		return 0, false
	}
	userID, ok := value.(uint64)
	return userID, ok
}

// Delete revokes a token
func (s *Store) Delete(token string) {
	s.cache.Delete(strings.TrimSpace(token))
}

// RevokeUser drops every token issued to a user
func (s *Store) RevokeUser(userID uint64) int {
	revoked := 0
	for token, item := range s.cache.Items() {
		if id, ok := item.Object.(uint64); ok && id == userID {
			s.cache.Delete(token)
			revoked++
		}
	}
	return revoked
}

// Count returns the number of live sessions
func (s *Store) Count() int {
	return s.cache.ItemCount()
}
