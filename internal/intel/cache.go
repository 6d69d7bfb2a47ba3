package intel

import (
	"sync"
	"time"
)

const (
	// DefaultMaxSessions bounds the number of live explain sessions.
	DefaultMaxSessions = 10
	// DefaultSessionTTL is the idle timeout after which a session expires.
	DefaultSessionTTL = 30 * time.Minute
)

// Turn is one history entry of a session's conversation.
type Turn struct {
	Role string // "user" or "model"
	Text string
}

// session holds everything cached for one (agent, video) pair. Its mutex is
// the per-key critical section: at most one LLM round-trip per session is
// in flight at a time.
type session struct {
	key  SessionKey
	chat Chat

	mu           sync.Mutex
	history      []Turn
	explanations map[Mode]string
}

// SessionKey identifies an explain session.
type SessionKey struct {
	AgentID string
	VideoID string
}

type cacheEntry struct {
	sess        *session
	lastTouched time.Time
}

// sessionCache bounds live sessions by count and idle time. Eviction runs
// on every ensure: first every session idle for ttl or longer goes, then
// LRU entries go until the count is below max, then the requested session
// is created if absent. Touching happens on every use.
type sessionCache struct {
	mu  sync.Mutex
	max int
	ttl time.Duration
	now func() time.Time
	m   map[SessionKey]*cacheEntry
}

func newSessionCache(max int, ttl time.Duration, now func() time.Time) *sessionCache {
	if max <= 0 {
		max = DefaultMaxSessions
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &sessionCache{max: max, ttl: ttl, now: now, m: make(map[SessionKey]*cacheEntry)}
}

// ensure returns the session for the key, creating it via create when
// absent. Expired and LRU-excess sessions are evicted first.
func (c *sessionCache) ensure(key SessionKey, create func() *session) *session {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.m {
		if now.Sub(e.lastTouched) >= c.ttl {
			delete(c.m, k)
		}
	}

	if e, ok := c.m[key]; ok {
		e.lastTouched = now
		return e.sess
	}

	for len(c.m) >= c.max {
		var oldest SessionKey
		var oldestAt time.Time
		first := true
		for k, e := range c.m {
			if first || e.lastTouched.Before(oldestAt) {
				oldest, oldestAt, first = k, e.lastTouched, false
			}
		}
		delete(c.m, oldest)
	}

	sess := create()
	c.m[key] = &cacheEntry{sess: sess, lastTouched: now}
	return sess
}

// get returns the session without creating, touching it if present.
func (c *sessionCache) get(key SessionKey) (*session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return nil, false
	}
	e.lastTouched = c.now()
	return e.sess, true
}

// has reports liveness without touching; used to detect eviction races.
func (c *sessionCache) has(key SessionKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.m[key]
	return ok
}

func (c *sessionCache) delete(key SessionKey) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

func (c *sessionCache) deleteAgent(agentID string) {
	c.mu.Lock()
	for k := range c.m {
		if k.AgentID == agentID {
			delete(c.m, k)
		}
	}
	c.mu.Unlock()
}

func (c *sessionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func (c *sessionCache) keys() []SessionKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SessionKey, 0, len(c.m))
	for k := range c.m {
		out = append(out, k)
	}
	return out
}
