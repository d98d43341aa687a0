package workflow

import (
	"sync"
	"time"

	"kubeagentic/pkg/logx"
)

// Session store limits. Sessions idle past the TTL are swept by a background
// janitor; when the store is full the least recently used idle session is
// evicted to make room.
const (
	DefaultSessionTTL  = 30 * time.Minute
	DefaultMaxSessions = 1000

	janitorInterval = time.Minute
)

// SessionStore holds per-conversation state and serializes access to it. Each
// conversation has its own lock, so concurrent requests for different
// conversations proceed in parallel while requests for the same conversation
// queue.
type SessionStore struct {
	mu          sync.Mutex
	sessions    map[string]*sessionEntry
	ttl         time.Duration
	maxSessions int
	onEvict     func(conversationID string)
	logger      *logx.Logger
	stop        chan struct{}
	stopOnce    sync.Once
}

// sessionEntry pairs a conversation's state with its lock. refs counts
// goroutines holding or waiting on the lock; entries with refs > 0 are never
// evicted.
type sessionEntry struct {
	mu         sync.Mutex
	refs       int
	state      map[string]string
	lastAccess time.Time
}

// NewSessionStore creates a store and starts its eviction janitor. Callers
// must Close the store to stop the janitor. Non-positive ttl or maxSessions
// select the defaults.
func NewSessionStore(ttl time.Duration, maxSessions int) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	s := &SessionStore{
		sessions:    make(map[string]*sessionEntry),
		ttl:         ttl,
		maxSessions: maxSessions,
		logger:      logx.NewLogger("sessions"),
		stop:        make(chan struct{}),
	}
	go s.janitor()
	return s
}

// SetEvictionHook registers a callback invoked with the conversation ID of
// every evicted session. Set it before the store sees traffic.
func (s *SessionStore) SetEvictionHook(fn func(conversationID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = fn
}

// WithLock runs fn while holding the conversation's lock. The state map
// passed to fn is the live session state: mutations persist for later runs.
// New conversations start with state holding only their conversation ID.
func (s *SessionStore) WithLock(conversationID string, fn func(state map[string]string) error) error {
	entry := s.acquire(conversationID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		s.release(entry)
	}()
	return fn(entry.state)
}

// Snapshot returns a copy of a conversation's state, or false when the
// conversation is unknown.
func (s *SessionStore) Snapshot(conversationID string) (map[string]string, bool) {
	s.mu.Lock()
	entry, ok := s.sessions[conversationID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	copied := make(map[string]string, len(entry.state))
	for k, v := range entry.state {
		copied[k] = v
	}
	return copied, true
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops the eviction janitor. Session state remains readable.
func (s *SessionStore) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *SessionStore) acquire(conversationID string) *sessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[conversationID]
	if !ok {
		entry = &sessionEntry{
			state: map[string]string{KeyConversationID: conversationID},
		}
		s.sessions[conversationID] = entry
		if len(s.sessions) > s.maxSessions {
			s.evictOldestLocked(conversationID)
		}
	}
	entry.refs++
	entry.lastAccess = time.Now()
	return entry
}

func (s *SessionStore) release(entry *sessionEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.refs--
	entry.lastAccess = time.Now()
}

// evictOldestLocked removes the least recently used idle session. Sessions
// with waiters and the one just added are exempt; if every session is busy
// the store temporarily exceeds its cap. Caller holds s.mu.
func (s *SessionStore) evictOldestLocked(justAdded string) {
	var oldestID string
	var oldestEntry *sessionEntry
	for id, entry := range s.sessions {
		if id == justAdded || entry.refs > 0 {
			continue
		}
		if oldestEntry == nil || entry.lastAccess.Before(oldestEntry.lastAccess) {
			oldestID = id
			oldestEntry = entry
		}
	}
	if oldestEntry == nil {
		return
	}
	delete(s.sessions, oldestID)
	s.logger.Debug("Evicted session %s (store at capacity %d)", oldestID, s.maxSessions)
	if s.onEvict != nil {
		go s.onEvict(oldestID)
	}
}

func (s *SessionStore) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

// sweep removes sessions idle past the TTL. Sessions with an active or
// waiting caller are skipped.
func (s *SessionStore) sweep(now time.Time) int {
	s.mu.Lock()
	var evicted []string
	for id, entry := range s.sessions {
		if entry.refs > 0 {
			continue
		}
		if now.Sub(entry.lastAccess) > s.ttl {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	onEvict := s.onEvict
	s.mu.Unlock()

	if len(evicted) > 0 {
		s.logger.Debug("Swept %d idle sessions", len(evicted))
		if onEvict != nil {
			for _, id := range evicted {
				onEvict(id)
			}
		}
	}
	return len(evicted)
}
