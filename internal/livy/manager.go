package livy

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lakehouse-tools/livygo/internal/config"
)

// Manager owns the single shared Livy session for a process. One mutex
// serializes connect and disconnect end to end, so at most one remote
// create/destroy is ever in flight; callers racing to connect block and
// then observe the ready session.
type Manager struct {
	cfg       *config.Config
	auth      HeaderProvider
	logger    *slog.Logger
	shortcuts ShortcutProvisioner

	mu      sync.Mutex
	session *Session
}

func NewManager(cfg *config.Config, auth HeaderProvider, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		auth:   auth,
		logger: logger,
	}
}

// SetShortcutProvisioner wires the optional shortcut client used after the
// first successful session creation.
func (m *Manager) SetShortcutProvisioner(p ShortcutProvisioner) {
	m.shortcuts = p
}

// Connect ensures a valid session exists and returns a connection handle
// backed by it.
func (m *Manager) Connect(ctx context.Context) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.session == nil:
		sess := newSession(m.cfg, m.auth, m.logger)
		if err := sess.create(ctx); err != nil {
			return nil, err
		}
		m.session = sess
		m.provisionShortcuts(ctx)

	case !m.session.isValid(ctx):
		m.logger.Debug("existing session is invalid, creating a new one",
			"session_id", m.session.ID())
		if err := m.session.delete(ctx); err != nil {
			m.logger.Debug("cleanup of old session failed", "error", err)
		}
		sess := newSession(m.cfg, m.auth, m.logger)
		if err := sess.create(ctx); err != nil {
			return nil, err
		}
		m.session = sess

	case m.session.restartRequired():
		if err := m.session.create(ctx); err != nil {
			return nil, err
		}

	default:
		m.logger.Debug("reusing session", "session_id", m.session.ID())
	}

	return newConnection(m, m.session), nil
}

// provisionShortcuts is best-effort: a failure here must never fail the
// connect it is ancillary to.
func (m *Manager) provisionShortcuts(ctx context.Context) {
	if m.shortcuts == nil || !m.cfg.CreateShortcuts {
		return
	}
	if err := m.shortcuts.CreateShortcuts(ctx, m.cfg.ShortcutsJSON); err != nil {
		m.logger.Error("unable to create shortcuts", "error", err)
	}
}

// Disconnect deletes the remote session if one is alive and marks local
// state as needing a fresh session. Calling it without a live session is a
// no-op, so it is safe to call repeatedly.
func (m *Manager) Disconnect(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && m.session.isValid(ctx) {
		if err := m.session.delete(ctx); err != nil {
			m.logger.Error("unable to close livy session",
				"session_id", m.session.ID(), "error", err)
		}
		m.session.markNeedsNew(true)
	} else {
		m.logger.Debug("no session to disconnect")
	}
}
