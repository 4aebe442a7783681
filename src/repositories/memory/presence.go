package memory

import (
	"context"
	"crewcomms/src/models"
	"sort"
	"sync"
	"time"
)

type presenceEntry struct {
	presence  models.UserPresence
	expiresAt time.Time
}

// PresenceStore keeps presence and typing keys with lazy TTL expiry.
type PresenceStore struct {
	mu       sync.Mutex
	presence map[string]presenceEntry
	typing   map[string]map[string]time.Time
	now      func() time.Time
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{
		presence: map[string]presenceEntry{},
		typing:   map[string]map[string]time.Time{},
		now:      time.Now,
	}
}

func (s *PresenceStore) SetPresence(ctx context.Context, p *models.UserPresence, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	c.TypingIn = nil
	s.presence[p.UserID] = presenceEntry{presence: c, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *PresenceStore) GetPresence(ctx context.Context, userID string) (*models.UserPresence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.presence[userID]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.presence, userID)
		return nil, nil
	}
	c := e.presence
	return &c, nil
}

func (s *PresenceStore) DeletePresence(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.presence, userID)
	delete(s.typing, userID)
	return nil
}

func (s *PresenceStore) SetTyping(ctx context.Context, userID, conversationID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typing[userID] == nil {
		s.typing[userID] = map[string]time.Time{}
	}
	s.typing[userID][conversationID] = s.now().Add(ttl)
	return nil
}

func (s *PresenceStore) ClearTyping(ctx context.Context, userID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.typing[userID], conversationID)
	if len(s.typing[userID]) == 0 {
		delete(s.typing, userID)
	}
	return nil
}

func (s *PresenceStore) TypingIn(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var out []string
	for conv, exp := range s.typing[userID] {
		if now.Before(exp) {
			out = append(out, conv)
		} else {
			delete(s.typing[userID], conv)
		}
	}
	sort.Strings(out)
	return out, nil
}
