package agent

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/diagnose-ai/internal/gateway"
	"github.com/ashureev/diagnose-ai/internal/session"
)

// SessionKey identifies one wizard: a client device plus a browser tab.
type SessionKey struct {
	ClientID  string
	SessionID string
}

// ChangeFunc receives every snapshot a wizard publishes.
type ChangeFunc func(key SessionKey, snap session.Snapshot)

type registryEntry struct {
	wizard     *session.Wizard
	lastActive time.Time
}

// Registry holds one in-memory wizard per client tab. Wizards are created on
// first use and dropped by Sweep once idle.
type Registry struct {
	gateway  gateway.Generator
	logger   *slog.Logger
	onChange ChangeFunc
	now      func() time.Time

	mu      sync.Mutex
	entries map[SessionKey]*registryEntry
}

// NewRegistry creates an empty registry. onChange may be nil.
func NewRegistry(gw gateway.Generator, onChange ChangeFunc, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		gateway:  gw,
		logger:   logger,
		onChange: onChange,
		now:      time.Now,
		entries:  make(map[SessionKey]*registryEntry),
	}
}

// Wizard returns the wizard for key, creating it if needed, and marks it active.
func (r *Registry) Wizard(key SessionKey) *session.Wizard {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key]; ok {
		e.lastActive = r.now()
		return e.wizard
	}

	opts := []session.WizardOption{session.WithWizardLogger(r.logger.With("client_id", key.ClientID, "session_id", key.SessionID))}
	if r.onChange != nil {
		onChange := r.onChange
		opts = append(opts, session.WithOnChange(func(snap session.Snapshot) { onChange(key, snap) }))
	}
	e := &registryEntry{wizard: session.NewWizard(r.gateway, opts...), lastActive: r.now()}
	r.entries[key] = e
	r.logger.Debug("Wizard created", "client_id", key.ClientID, "session_id", key.SessionID)
	return e.wizard
}

// Snapshot returns the current snapshot for key without creating a wizard.
func (r *Registry) Snapshot(key SessionKey) session.Snapshot {
	r.mu.Lock()
	e, ok := r.entries[key]
	r.mu.Unlock()
	if !ok {
		return session.Snapshot{State: session.StateIdle}
	}
	return e.wizard.Snapshot()
}

// Sweep drops wizards idle for longer than idle. Busy wizards are kept.
// It returns the keys removed.
func (r *Registry) Sweep(idle time.Duration) []SessionKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	var removed []SessionKey
	for key, e := range r.entries {
		if e.lastActive.After(cutoff) || e.wizard.Snapshot().Busy {
			continue
		}
		delete(r.entries, key)
		removed = append(removed, key)
	}
	if len(removed) > 0 {
		r.logger.Info("Idle wizards swept", "count", len(removed))
	}
	return removed
}

// CloseClient drops every wizard of a client and returns how many were removed.
func (r *Registry) CloseClient(clientID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for key := range r.entries {
		if key.ClientID == clientID {
			delete(r.entries, key)
			n++
		}
	}
	return n
}

// Len returns the number of live wizards.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
