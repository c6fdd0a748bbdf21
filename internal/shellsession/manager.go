package shellsession

import (
	"fmt"
	"strings"
	"sync"
)

// Manager owns a connection_string -> Session map. It is created and held
// by a single caller (e.g. one agent run); it is deliberately not a
// package-level singleton so multiple independent runs never share shell
// state.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]Session
	dialers  map[string]func() (Session, error)
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]Session),
		dialers:  make(map[string]func() (Session, error)),
	}
}

// Local returns (creating if absent) the local session registered under
// connStr, e.g. "local" or a working-directory tag.
func (m *Manager) Local(connStr, shell, dir string) (Session, error) {
	return m.getOrDial(connStr, func() (Session, error) {
		return NewLocalSession(shell, dir)
	})
}

// Remote returns (creating if absent) the SSH session registered under
// connStr, dialing addr/user/auth on first use.
func (m *Manager) Remote(connStr, addr, user string, auth RemoteAuth) (Session, error) {
	return m.getOrDial(connStr, func() (Session, error) {
		return DialRemote(addr, user, auth)
	})
}

// Dial routes a connection string to the right session kind:
// "ssh://user@host[:port]" dials an SSH remote with auth, anything else
// is a local PTY session keyed by connStr.
func (m *Manager) Dial(connStr, shell, dir string, auth RemoteAuth) (Session, error) {
	if addr, user, ok := ParseRemoteConnString(connStr); ok {
		return m.Remote(connStr, addr, user, auth)
	}
	return m.Local(connStr, shell, dir)
}

// ParseRemoteConnString recognizes "ssh://user@host[:port]" connection
// strings, returning the dial address (port defaulting to 22) and user.
func ParseRemoteConnString(connStr string) (addr, user string, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(connStr), "ssh://")
	if !found {
		return "", "", false
	}
	user, host, found := strings.Cut(rest, "@")
	if !found || user == "" || host == "" {
		return "", "", false
	}
	if !strings.Contains(host, ":") {
		host += ":22"
	}
	return host, user, true
}

func (m *Manager) getOrDial(connStr string, dial func() (Session, error)) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[connStr]; ok {
		if sess.IsAlive() {
			return sess, nil
		}
		_ = sess.Close()
		delete(m.sessions, connStr)
	}

	sess, err := dial()
	if err != nil {
		return nil, fmt.Errorf("shellsession: dial %q: %w", connStr, err)
	}
	m.sessions[connStr] = sess
	return sess, nil
}

// Get returns the session already registered under connStr, if any.
func (m *Manager) Get(connStr string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[connStr]
	return sess, ok
}

// Close terminates and forgets the session registered under connStr.
func (m *Manager) Close(connStr string) error {
	m.mu.Lock()
	sess, ok := m.sessions[connStr]
	delete(m.sessions, connStr)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return sess.Close()
}

// CloseAll terminates every session the Manager owns. Callers should invoke
// this when the owning run ends to avoid leaking shell processes.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		_ = sess.Close()
	}
}
