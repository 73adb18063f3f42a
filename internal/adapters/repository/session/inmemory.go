package sessionrepo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/seehiong/micronaut-optimizer/internal/app/usecases"
)

var (
	ErrNilSession       = errors.New("session cannot be nil")
	ErrDuplicateSession = errors.New("session already registered")
	ErrRegistryFull     = errors.New("session limit reached")
)

// InMemoryRegistry keeps live editor sessions
// PRINCIPLES:
// - KISS: Simple map-based storage
// - SRP: Only responsible for session lookup
// - Thread-safe
type InMemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*usecases.Session
	limit    int
}

// NewInMemoryRegistry creates a registry holding at most limit sessions;
// zero means no limit.
func NewInMemoryRegistry(limit int) *InMemoryRegistry {
	return &InMemoryRegistry{
		sessions: make(map[string]*usecases.Session),
		limit:    limit,
	}
}

func (r *InMemoryRegistry) Put(ctx context.Context, s *usecases.Session) error {
	if s == nil {
		return ErrNilSession
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, s.ID())
	}
	if r.limit > 0 && len(r.sessions) >= r.limit {
		return ErrRegistryFull
	}
	r.sessions[s.ID()] = s
	return nil
}

func (r *InMemoryRegistry) Get(ctx context.Context, id string) (*usecases.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", usecases.ErrSessionNotFound, id)
	}
	return s, nil
}

func (r *InMemoryRegistry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", usecases.ErrSessionNotFound, id)
	}
	delete(r.sessions, id)
	return nil
}

// List returns the sessions oldest first.
func (r *InMemoryRegistry) List(ctx context.Context) ([]*usecases.Session, error) {
	r.mu.RLock()
	out := make([]*usecases.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].ID() < out[j].ID()
		}
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	return out, nil
}

// Len returns the number of live sessions.
func (r *InMemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

var _ usecases.SessionStore = (*InMemoryRegistry)(nil)
