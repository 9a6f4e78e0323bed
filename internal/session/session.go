// Package session keeps one cart engine and identity hub per device.
// A device is identified by its opaque cookie ID; sessions are created
// lazily on first use and evicted after an idle period.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pastavicenzo/storefront/internal/cartsync"
	"github.com/pastavicenzo/storefront/internal/identity"
)

// DefaultIdleTimeout is how long a session survives without being
// touched before the janitor evicts it.
const DefaultIdleTimeout = 30 * time.Minute

// Session binds a device's identity hub to its cart engine. The engine
// subscribes to the hub once at creation, so sign-in and sign-out
// events drive merges without further wiring.
type Session struct {
	ID     string
	Hub    *identity.Hub
	Engine *cartsync.Engine

	unsubscribe func()
	lastSeen    time.Time

	userMu sync.Mutex
	user   *identity.TokenInfo
}

// SetUser records the verified principal for the session; nil on sign-out.
func (s *Session) SetUser(info *identity.TokenInfo) {
	s.userMu.Lock()
	s.user = info
	s.userMu.Unlock()
}

// User returns the verified principal, or nil when signed out.
func (s *Session) User() *identity.TokenInfo {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	return s.user
}

// Config wires a Manager's collaborators and eviction policy.
type Config struct {
	Local  cartsync.LocalStore
	Remote cartsync.RemoteStore

	Debounce       time.Duration
	ClearOnSignOut bool
	// IdleTimeout is the eviction threshold; DefaultIdleTimeout when zero.
	IdleTimeout time.Duration

	Logger *zap.Logger
}

// Manager owns the live sessions. Evicting a session closes its engine,
// which flushes any pending remote write.
type Manager struct {
	cfg  Config
	lg   *zap.Logger
	ctx  context.Context
	stop context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	janitorDone chan struct{}
}

// NewManager creates a Manager and starts its eviction janitor. ctx
// bounds the lifetime of all engines' detached persistence.
func NewManager(ctx context.Context, cfg Config) *Manager {
	lg := cfg.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}

	ctx, stop := context.WithCancel(ctx)
	m := &Manager{
		cfg:         cfg,
		lg:          lg,
		ctx:         ctx,
		stop:        stop,
		sessions:    make(map[string]*Session),
		janitorDone: make(chan struct{}),
	}
	go m.janitor()
	return m
}

// GetOrCreate returns the device's session, creating and hydrating it
// on first use. The call refreshes the session's idle deadline.
func (m *Manager) GetOrCreate(deviceID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}

	if s, ok := m.sessions[deviceID]; ok {
		s.lastSeen = time.Now()
		return s
	}

	hub := identity.NewHub()
	engine := cartsync.New(m.ctx, cartsync.Config{
		LocalKey:       deviceID,
		Local:          m.cfg.Local,
		Remote:         m.cfg.Remote,
		Debounce:       m.cfg.Debounce,
		ClearOnSignOut: m.cfg.ClearOnSignOut,
		Logger:         m.lg.With(zap.String("device_id", deviceID)),
	})
	s := &Session{
		ID:          deviceID,
		Hub:         hub,
		Engine:      engine,
		unsubscribe: hub.Subscribe(engine.OnIdentityChanged),
		lastSeen:    time.Now(),
	}
	m.sessions[deviceID] = s
	m.lg.Debug("session created", zap.String("device_id", deviceID))
	return s
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close evicts every session and stops the janitor. Each engine flush
// runs before Close returns.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = nil
	m.mu.Unlock()

	for _, s := range sessions {
		s.unsubscribe()
		s.Engine.Close()
	}
	m.stop()
	<-m.janitorDone
}

func (m *Manager) janitor() {
	defer close(m.janitorDone)

	interval := m.cfg.IdleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	cutoff := time.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.unsubscribe()
		s.Engine.Close()
		m.lg.Debug("session evicted", zap.String("device_id", s.ID))
	}
}
