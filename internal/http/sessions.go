package http

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"ledger/internal/services"
)

// DefaultSessionTTL is how long an unused session survives without open streams.
const DefaultSessionTTL = 30 * time.Minute

type sessionEntry struct {
	session  *services.Session
	lastUsed time.Time
	streams  int
}

// sessionRegistry maps client session IDs to list sessions. It implements
// cache.Cleaner so the cache manager prunes abandoned sessions.
type sessionRegistry struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	open     func() *services.Session
	sessions map[string]*sessionEntry
}

func newSessionRegistry(open func() *services.Session, ttl time.Duration) *sessionRegistry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &sessionRegistry{
		ttl:      ttl,
		now:      time.Now,
		open:     open,
		sessions: make(map[string]*sessionEntry),
	}
}

func (r *sessionRegistry) create() (string, *services.Session) {
	id := uuid.NewString()
	s := r.open()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionEntry{session: s, lastUsed: r.now()}
	return id, s
}

func (r *sessionRegistry) get(id string) (*services.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastUsed = r.now()
	return e.session, true
}

// attach pins the session while a stream is open. release must be called
// once the stream ends.
func (r *sessionRegistry) attach(id string) (*services.Session, func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, nil, false
	}
	e.streams++
	e.lastUsed = r.now()

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			e.streams--
			e.lastUsed = r.now()
		})
	}
	return e.session, release, true
}

func (r *sessionRegistry) remove(id string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		e.session.Close()
	}
	return ok
}

// CleanExpired closes sessions idle for longer than the TTL.
func (r *sessionRegistry) CleanExpired() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*services.Session
	for id, e := range r.sessions {
		if e.streams == 0 && e.lastUsed.Before(cutoff) {
			expired = append(expired, e.session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	return len(expired)
}

func (r *sessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *sessionRegistry) closeAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*sessionEntry)
	r.mu.Unlock()

	for _, e := range all {
		e.session.Close()
	}
}
