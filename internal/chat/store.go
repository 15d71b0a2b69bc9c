package chat

import (
	"context"
	"sort"
	"sync"

	"github.com/franckalain/dietplanner/internal/models"
)

// DefaultMaxSessions is the store capacity used when none is configured
const DefaultMaxSessions = 50

// Store persists chat sessions. Implementations keep at most their configured
// number of sessions, dropping the least recently updated ones on Put.
type Store interface {
	// List returns sessions, most recently updated first
	List(ctx context.Context) ([]models.ChatSession, error)
	// Get returns models.ErrSessionNotFound for unknown ids
	Get(ctx context.Context, id string) (*models.ChatSession, error)
	Put(ctx context.Context, session *models.ChatSession) error
	// Delete removes a session; deleting an unknown id is not an error
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.ChatSession
	capacity int
}

// NewMemoryStore creates a MemoryStore holding at most capacity sessions
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMaxSessions
	}
	return &MemoryStore{
		sessions: make(map[string]models.ChatSession),
		capacity: capacity,
	}
}

func (s *MemoryStore) List(ctx context.Context) ([]models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ChatSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, clone(sess))
	}
	SortByRecency(out)
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	c := clone(sess)
	return &c, nil
}

func (s *MemoryStore) Put(ctx context.Context, session *models.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = clone(*session)
	for len(s.sessions) > s.capacity {
		delete(s.sessions, s.oldestLocked())
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) oldestLocked() string {
	all := make([]models.ChatSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	SortByRecency(all)
	return all[len(all)-1].ID
}

// SortByRecency orders sessions by UpdatedAt descending, breaking ties by id
func SortByRecency(sessions []models.ChatSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if !sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
		}
		return sessions[i].ID > sessions[j].ID
	})
}

func clone(s models.ChatSession) models.ChatSession {
	s.Messages = append([]models.ChatMessage(nil), s.Messages...)
	return s
}
