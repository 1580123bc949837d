package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrUnknownSession is returned when a registry lookup misses.
var ErrUnknownSession = errors.New("engine: unknown session")

// Registry tracks live and finished sessions by id so the control
// surface can look them up while their controller loops run.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// Get looks a session up by id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// Remove drops a session from the registry. The session itself is
// unaffected.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// IDs returns all registered session ids, sorted for stable listings.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// PruneTerminated drops sessions that terminated more than ttl ago.
// Their exports live on in the archive; the registry only serves live
// lookups.
func (r *Registry) PruneTerminated(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	pruned := 0
	for id, s := range r.sessions {
		if s.State() != StateTerminated {
			continue
		}
		if ended := s.EndedAt(); !ended.IsZero() && ended.Before(cutoff) {
			delete(r.sessions, id)
			pruned++
		}
	}
	return pruned
}

// StartJanitor prunes terminated sessions on an interval until the
// context ends.
func (r *Registry) StartJanitor(ctx context.Context, interval, ttl time.Duration, log *slog.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.PruneTerminated(ttl); n > 0 {
					log.Info("pruned terminated sessions", "count", n)
				}
			}
		}
	}()
}
