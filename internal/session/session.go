package session

import (
	"sort"
	"sync"
	"time"

	"github.com/stlalpha/cardbasic/internal/keyboard"
)

// Session is one connected appliance.
type Session struct {
	ID         string // uuid
	User       string
	RemoteAddr string
	TermType   string
	StartTime  time.Time

	kb *keyboard.Keyboard
}

// Name is the short form of the session id used in log lines.
func (s *Session) Name() string {
	if len(s.ID) > 8 {
		return "Session " + s.ID[:8]
	}
	return "Session " + s.ID
}

// SetKeyboardTiming changes the translator timing while the session runs.
func (s *Session) SetKeyboardTiming(longThreshold, repeatDelay, repeatRate uint) {
	if s.kb == nil {
		return
	}
	s.kb.SetLongThreshold(longThreshold)
	s.kb.Translator.SetRepeat(repeatDelay, repeatRate)
}

// Registry tracks all active sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// TryRegister adds s unless limit sessions are already active. A limit of
// zero or less means no limit.
func (r *Registry) TryRegister(s *Session, limit int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit > 0 && len(r.sessions) >= limit {
		return false
	}
	r.sessions[s.ID] = s
	return true
}

func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ListActive returns the active sessions, oldest first.
func (r *Registry) ListActive() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].ID < result[j].ID
		}
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result
}
