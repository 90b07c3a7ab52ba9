// Package registry keeps the ordered collection of chat sessions and
// mirrors it to a storage.Store after every change.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"chipchip/internal/events"
	"chipchip/internal/models"
	"chipchip/internal/storage"
)

var (
	ErrNotFound           = errors.New("session not found")
	ErrInvalidSession     = errors.New("session id is empty")
	ErrUnsupportedVersion = errors.New("unsupported history version")
)

// Keys names the store entries used by the registry
type Keys struct {
	// History holds the versioned session record
	History string
	// Legacy holds the flat message array written by older clients
	Legacy string
}

// DefaultKeys returns the keys used by the browser client
func DefaultKeys() Keys {
	return Keys{
		History: "chipchip_chat_history",
		Legacy:  "chipchip_chat_memory",
	}
}

// Registry is the in-memory session collection backed by a store.
// At most one session exists per id and insertion order is preserved.
type Registry struct {
	mu       sync.RWMutex
	store    storage.Store
	keys     Keys
	sessions []models.Session
	index    map[string]int
}

// New creates an empty registry; call Load to read the store
func New(store storage.Store, keys Keys) *Registry {
	return &Registry{
		store: store,
		keys:  keys,
		index: make(map[string]int),
	}
}

// Load replaces the registry contents with what the store holds.
// Corrupt history is removed from the store and yields an empty registry.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, found, err := r.store.Get(r.keys.History)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if !found {
		return r.migrateLegacyLocked()
	}

	sessions, migrated, err := decode(raw)
	if errors.Is(err, ErrUnsupportedVersion) {
		return err
	}
	if err != nil {
		slog.Warn("discarding corrupt chat history",
			slog.String("key", r.keys.History),
			slog.Any("error", err),
		)
		r.replaceLocked(nil)
		if err := r.store.Remove(r.keys.History); err != nil {
			return fmt.Errorf("clear corrupt history: %w", err)
		}
		return nil
	}

	r.replaceLocked(sessions)
	slog.Debug("loaded chat history",
		slog.Int("sessions", len(r.sessions)),
		slog.Bool("migrated", migrated),
	)

	if migrated {
		return r.persistLocked()
	}
	return nil
}

func (r *Registry) migrateLegacyLocked() error {
	r.replaceLocked(nil)
	if r.keys.Legacy == "" {
		return nil
	}

	raw, found, err := r.store.Get(r.keys.Legacy)
	if err != nil {
		return fmt.Errorf("read legacy history: %w", err)
	}
	if !found {
		return nil
	}

	messages, err := decodeLegacy(raw)
	if err != nil {
		slog.Warn("discarding corrupt legacy chat memory",
			slog.String("key", r.keys.Legacy),
			slog.Any("error", err),
		)
		return r.store.Remove(r.keys.Legacy)
	}

	if len(messages) > 0 {
		session := models.Session{
			ID:       models.NewSessionID(),
			Name:     models.DeriveName(messages),
			Messages: messages,
		}
		r.replaceLocked([]models.Session{session})
		if err := r.persistLocked(); err != nil {
			return err
		}
		slog.Info("migrated legacy chat memory",
			slog.String("session_id", session.ID),
			slog.Int("messages", len(messages)),
		)
	}

	// the history key is written first so a failure here never loses data
	if err := r.store.Remove(r.keys.Legacy); err != nil {
		return fmt.Errorf("clear legacy history: %w", err)
	}
	return nil
}

// Upsert inserts the session or replaces the one with the same id, then persists.
func (r *Registry) Upsert(session models.Session) error {
	if session.ID == "" {
		return ErrInvalidSession
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session = session.Clone()
	if i, ok := r.index[session.ID]; ok {
		r.sessions[i] = session
	} else {
		r.index[session.ID] = len(r.sessions)
		r.sessions = append(r.sessions, session)
	}
	return r.persistLocked()
}

// Remove deletes the session with the given id and persists the remainder.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[id]
	if !ok {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}

	remaining := make([]models.Session, 0, len(r.sessions)-1)
	remaining = append(remaining, r.sessions[:i]...)
	remaining = append(remaining, r.sessions[i+1:]...)
	r.replaceLocked(remaining)

	return r.persistLocked()
}

// Rename changes a session name. An empty name means the rename was
// cancelled and nothing changes.
func (r *Registry) Rename(id, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[id]
	if !ok {
		return fmt.Errorf("rename %s: %w", id, ErrNotFound)
	}
	r.sessions[i].Name = newName
	return r.persistLocked()
}

// Get returns a copy of the session with the given id
func (r *Registry) Get(id string) (models.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return models.Session{}, false
	}
	return r.sessions[i].Clone(), true
}

// List returns copies of all sessions in registry order
func (r *Registry) List() []models.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Session, len(r.sessions))
	for i, s := range r.sessions {
		out[i] = s.Clone()
	}
	return out
}

// Len returns the number of sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Subscribe upserts every session snapshot published as SessionChanged.
func (r *Registry) Subscribe(bus *events.Bus) func() {
	return bus.Subscribe(func(e events.Event) {
		if e.Kind != events.SessionChanged {
			return
		}
		if err := r.Upsert(e.Session); err != nil {
			slog.Error("failed to persist session",
				slog.String("session_id", e.SessionID),
				slog.Any("error", err),
			)
		}
	})
}

func (r *Registry) replaceLocked(sessions []models.Session) {
	r.sessions = r.sessions[:0:0]
	r.index = make(map[string]int, len(sessions))
	for _, s := range sessions {
		if i, ok := r.index[s.ID]; ok {
			r.sessions[i] = s
			continue
		}
		r.index[s.ID] = len(r.sessions)
		r.sessions = append(r.sessions, s)
	}
}

func (r *Registry) persistLocked() error {
	raw, err := encode(r.sessions)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := r.store.Set(r.keys.History, raw); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}
