package session

import (
	"context"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ctagard/jdwp-mcp/internal/adapters"
	"github.com/ctagard/jdwp-mcp/internal/config"
	"github.com/ctagard/jdwp-mcp/internal/errors"
	"github.com/ctagard/jdwp-mcp/internal/jdwp"
	"github.com/ctagard/jdwp-mcp/pkg/types"
)

// Manager manages multiple debug sessions
type Manager struct {
	cfg      *config.Config
	registry *adapters.Registry
	log      *logrus.Entry

	mu       sync.RWMutex
	sessions map[string]*Session
	pending  int

	maxSessions    int
	sessionTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a session manager and starts expiring idle sessions
func NewManager(cfg *config.Config, registry *adapters.Registry, log *logrus.Entry) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:            cfg,
		registry:       registry,
		log:            log,
		sessions:       make(map[string]*Session),
		maxSessions:    cfg.MaxSessions,
		sessionTimeout: time.Duration(cfg.SessionTimeout),
		ctx:            ctx,
		cancel:         cancel,
	}

	go m.cleanupLoop()

	return m
}

// cleanupLoop periodically terminates idle sessions
func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.expireIdle(time.Now())
		}
	}
}

// expireIdle terminates sessions unused for longer than the session timeout
func (m *Manager) expireIdle(now time.Time) {
	if m.sessionTimeout <= 0 {
		return
	}
	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if now.Sub(s.idleSince()) > m.sessionTimeout {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.log.Info("session expired")
		s.terminate(false)
	}
}

// reserve claims a session slot for a session being created.
func (m *Manager) reserve() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions)+m.pending >= m.maxSessions {
		return errors.SessionLimitReached(m.maxSessions)
	}
	m.pending++
	return nil
}

// release returns a reserved slot, registering s in it when non-nil.
func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending--
	if s != nil {
		m.sessions[s.ID] = s
	}
}

func (m *Manager) newSession(target string) *Session {
	id := uuid.New().String()
	return newSession(id, target, m.log.WithField("session", id), time.Duration(m.cfg.JDWP.ReplyTimeout))
}

// connConfig returns the connection settings for s, with s observing
// events from the first packet on.
func (m *Manager) connConfig(s *Session) jdwp.Config {
	cfg := m.cfg.ConnConfig(s.log)
	cfg.Listeners = []jdwp.Listener{s.observe}
	return cfg
}

// Launch starts a JVM under the debug agent and attaches to it. The VM
// starts suspended; it is resumed after the requested breakpoints are set
// unless StopOnEntry is true.
func (m *Manager) Launch(ctx context.Context, req types.LaunchRequest) (*Session, error) {
	adapter, err := m.registry.Get(req.Language)
	if err != nil {
		return nil, errors.InvalidParameter("language", req.Language, "java, kotlin or scala")
	}
	if err := m.reserve(); err != nil {
		return nil, err
	}

	s := m.newSession(req.Target())
	s.Launched = true

	// The process must outlive this request, so it is bound to the manager.
	conn, proc, err := adapters.SpawnAndConnect(m.ctx, adapter, req, m.connConfig(s))
	if err != nil {
		m.release(nil)
		return nil, err
	}
	s.Address = proc.Address
	s.start(conn, proc, m.cfg.JDWP.EventQueueSize)
	m.describeVM(ctx, s)

	for _, bp := range req.Breakpoints {
		if _, err := s.SetBreakpoint(ctx, bp.Class, bp.Line); err != nil {
			s.log.WithError(err).WithField("class", bp.Class).WithField("line", bp.Line).Warn("failed to set launch breakpoint")
		}
	}
	if !req.StopOnEntry {
		if err := s.Resume(ctx); err != nil {
			s.terminate(true)
			m.release(nil)
			return nil, errors.LaunchFailed(req.Target(), err)
		}
	}

	m.release(s)
	s.log.WithField("pid", proc.PID()).WithField("target", s.Target).Info("session launched")
	return s, nil
}

// Attach connects to a JVM already listening for a debugger
func (m *Manager) Attach(ctx context.Context, req types.AttachRequest) (*Session, error) {
	if req.Port <= 0 || req.Port > 65535 {
		return nil, errors.InvalidParameter("port", req.Port, "a TCP port between 1 and 65535")
	}
	host := req.Host
	if host == "" {
		host = "127.0.0.1"
	}
	address := net.JoinHostPort(host, strconv.Itoa(req.Port))

	if err := m.reserve(); err != nil {
		return nil, err
	}

	s := m.newSession(address)
	s.Address = address

	dctx := ctx
	if timeout := time.Duration(m.cfg.JDWP.DialTimeout); timeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	conn, err := adapters.Connect(dctx, address, m.connConfig(s), 1)
	if err != nil {
		m.release(nil)
		return nil, err
	}
	s.start(conn, nil, m.cfg.JDWP.EventQueueSize)
	m.describeVM(ctx, s)

	m.release(s)
	s.log.WithField("address", address).Info("session attached")
	return s, nil
}

// describeVM records the target's version string on s.
func (m *Manager) describeVM(ctx context.Context, s *Session) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	v, err := s.conn.Version(ctx)
	if err != nil {
		s.log.WithError(err).Debug("failed to read VM version")
		return
	}
	s.mu.Lock()
	s.vm = v.VMName + " " + v.VMVersion
	s.mu.Unlock()
}

// Get retrieves a session by ID
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.SessionNotFound(id)
	}
	return s, nil
}

// List returns all sessions, oldest first
func (m *Manager) List() []types.SessionInfo {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.Before(sessions[j].CreatedAt) })
	infos := make([]types.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Terminate ends a session and removes it. Launched targets are always
// killed; attached ones only when terminateDebuggee is set.
func (m *Manager) Terminate(id string, terminateDebuggee bool) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return errors.SessionNotFound(id)
	}
	s.terminate(terminateDebuggee)
	return nil
}

// Close terminates every session and stops the manager
func (m *Manager) Close() {
	m.cancel()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.terminate(false)
	}
}
