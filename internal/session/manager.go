package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTTL is how long an idle session survives before eviction.
	DefaultTTL = 30 * time.Minute

	cleanupInterval = time.Minute
)

// Session binds one browser session to its engine and controller.
type Session struct {
	ID         string
	Controller *Controller

	lastSeen time.Time
}

// Factory builds the engine+controller pair for a new session.
type Factory func(sessionID string) *Controller

// Manager is the keyed session registry with idle eviction.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	factory  Factory
	ttl      time.Duration
	log      logrus.FieldLogger

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

func NewManager(factory Factory, ttl time.Duration, log logrus.FieldLogger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		sessions:    make(map[string]*Session),
		factory:     factory,
		ttl:         ttl,
		log:         log,
		stopCleanup: make(chan struct{}),
	}

	m.wg.Add(1)
	go m.cleanupLoop()

	return m
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictIdle()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Manager) evictIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.ttl)
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			m.log.WithField("session", id).Debug("idle session evicted")
		}
	}
}

// Get returns an existing session and refreshes its idle timer.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if ok {
		s.lastSeen = time.Now()
	}
	return s, ok
}

// GetOrCreate returns the session for id, creating one when absent. An empty
// id gets a fresh identifier.
func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		if s, ok := m.sessions[id]; ok {
			s.lastSeen = time.Now()
			return s
		}
	} else {
		id = uuid.New().String()
	}

	s := &Session{
		ID:         id,
		Controller: m.factory(id),
		lastSeen:   time.Now(),
	}
	m.sessions[id] = s
	return s
}

// Dispatch routes an auth event to the session's controller, creating the
// session when it does not exist yet.
func (m *Manager) Dispatch(id string, event AuthEvent) {
	m.GetOrCreate(id).Controller.Handle(event)
}

// Len reports the live session count.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops the cleanup loop and waits for it to finish.
func (m *Manager) Close() {
	close(m.stopCleanup)
	m.wg.Wait()
}
