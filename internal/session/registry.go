package session

import (
	"sort"
	"sync"
	"time"
)

// DefaultGroundPressure is the sea-level standard pressure in hPa, used when
// no deployment-specific ground pressure is configured.
const DefaultGroundPressure = 1013.25

// Config carries the per-session parameters applied to every new session.
type Config struct {
	GroundPressure float64 // Integration seed pressure in hPa
	WindowSize     int     // Dedup window capacity in packets
	HistoryLimit   int     // Max readings kept in memory per session, 0 = unbounded
}

func (c *Config) applyDefaults() {
	if c.GroundPressure <= 0 {
		c.GroundPressure = DefaultGroundPressure
	}
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
}

// Registry owns the mapping from sonde serial number to live Session.
// Sessions are created lazily on first sight of a serial and live until the
// process exits or a new launch is declared via Reset. The registry itself
// never guesses launch boundaries; that is the caller's call.
type Registry struct {
	cfg Config
	now func() time.Time

	mu       sync.RWMutex
	sessions map[uint32]*Session
}

// WithRegistryClock overrides the wall clock used to stamp session starts.
func WithRegistryClock(now func() time.Time) func(*Registry) {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty Registry applying cfg to every session it
// creates.
func NewRegistry(cfg Config, options ...func(*Registry)) *Registry {
	cfg.applyDefaults()

	r := Registry{
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[uint32]*Session),
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// GetOrCreate returns the live session for serial, creating one seeded with
// the registry config if the serial has not been seen before.
func (r *Registry) GetOrCreate(serial uint32) *Session {
	r.mu.RLock()
	s, ok := r.sessions[serial]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok = r.sessions[serial]; ok {
		return s
	}

	s = newSession(serial, r.now(), r.cfg)
	r.sessions[serial] = s
	return s
}

// Get returns the live session for serial, if any.
func (r *Registry) Get(serial uint32) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[serial]
	return s, ok
}

// Reset replaces the session for serial with a fresh one, discarding the
// integrator state, dedup window and history. This is the explicit
// new-launch boundary for a serial that is being reused.
func (r *Registry) Reset(serial uint32) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := newSession(serial, r.now(), r.cfg)
	r.sessions[serial] = s
	return s
}

// Sessions returns a snapshot of all live sessions, ordered by serial for
// stable listings.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].serial < sessions[j].serial
	})
	return sessions
}
