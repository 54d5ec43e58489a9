package session

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/case-forecast/internal/metrics"
	"github.com/sells-group/case-forecast/internal/model"
)

type entry struct {
	session   *Session
	expiresAt time.Time
}

// MemoryStore is a size-bounded in-process Store. The least recently used
// session is evicted when full and every session expires ttl after its
// last save. A zero ttl disables expiry. The stored count is published
// after every change through observe.
type MemoryStore struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, *entry]
	ttl     time.Duration
	now     func() time.Time
	observe func(n int)
}

// NewMemoryStore creates a MemoryStore holding at most size sessions.
func NewMemoryStore(size int, ttl time.Duration) (*MemoryStore, error) {
	cache, err := lru.New[string, *entry](size)
	if err != nil {
		return nil, eris.Wrap(err, "session: create lru")
	}
	m := &MemoryStore{cache: cache, ttl: ttl, now: time.Now, observe: metrics.SetActiveSessions}
	m.observe(0)
	return m, nil
}

// Create stores a new session for ds.
func (m *MemoryStore) Create(_ context.Context, ds *model.Dataset) (*Session, error) {
	s := newSession(ds, m.now())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(s)
	return copySession(s), nil
}

// Get returns the session or model.ErrNotFound. Expired sessions are
// removed on access.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.cache.Get(id)
	if !ok {
		return nil, eris.Wrapf(model.ErrNotFound, "session: %s", id)
	}
	if m.expired(e) {
		m.remove(id)
		return nil, eris.Wrapf(model.ErrNotFound, "session: %s expired", id)
	}
	return copySession(e.session), nil
}

// Save replaces a stored session and refreshes its expiry.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.cache.Peek(s.ID)
	if !ok || m.expired(e) {
		return eris.Wrapf(model.ErrNotFound, "session: %s", s.ID)
	}
	saved := copySession(s)
	saved.UpdatedAt = m.now()
	m.put(saved)
	return nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(id)
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Len()
}

// CleanupExpired removes every expired session and returns how many were
// removed.
func (m *MemoryStore) CleanupExpired() int {
	if m.ttl == 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, id := range m.cache.Keys() {
		if e, ok := m.cache.Peek(id); ok && m.expired(e) && m.remove(id) {
			removed++
		}
	}
	return removed
}

// Close drops all sessions.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Purge()
	m.observe(0)
	return nil
}

// remove reports whether id was present. Callers hold mu.
func (m *MemoryStore) remove(id string) bool {
	present := m.cache.Remove(id)
	if present {
		m.observe(m.cache.Len())
	}
	return present
}

func (m *MemoryStore) put(s *Session) {
	var expiresAt time.Time
	if m.ttl > 0 {
		expiresAt = m.now().Add(m.ttl)
	}
	// Add evicts the oldest session when full, so the count is read after.
	m.cache.Add(s.ID, &entry{session: s, expiresAt: expiresAt})
	m.observe(m.cache.Len())
}

func (m *MemoryStore) expired(e *entry) bool {
	return m.ttl > 0 && m.now().After(e.expiresAt)
}

// copySession is shallow: Dataset and Result are replaced, never mutated.
func copySession(s *Session) *Session {
	c := *s
	return &c
}
