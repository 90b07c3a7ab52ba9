// Package chat drives the active chat session: it appends messages, calls
// the transport and announces every change on the event bus.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chipchip/internal/events"
	"chipchip/internal/export"
	"chipchip/internal/models"
	"chipchip/internal/registry"
	"chipchip/internal/transport"
)

// ApologyText replaces the bot reply when a request fails
const ApologyText = "⚠️ Sorry, something went wrong."

// Registry is the part of registry.Registry the controller needs
type Registry interface {
	Get(id string) (models.Session, bool)
	Remove(id string) error
	Rename(id, newName string) error
}

var _ Registry = (*registry.Registry)(nil)

// forgetter is implemented by transports that keep per-session state
type forgetter interface {
	Forget(sessionID string)
}

// Snapshot is a copy of the controller state for rendering
type Snapshot struct {
	CurrentID string
	Messages  []models.Message
	Loading   bool
}

// Controller owns the visible transcript. Sends run concurrently; calls to
// the transport for one session are serialized in submission order.
type Controller struct {
	asker    transport.Asker
	registry Registry
	bus      *events.Bus
	now      func() time.Time

	// commitMu orders registry writes: a session snapshot is published
	// before any later snapshot, delete or rename can happen
	commitMu sync.Mutex

	mu        sync.Mutex
	currentID string
	messages  []models.Message
	// epoch advances whenever the visible transcript switches session
	epoch   uint64
	pending int
	// turns holds, per session, the channel closed when its latest send is done
	turns map[string]chan struct{}
}

// Option configures a Controller
type Option func(*Controller)

// WithClock overrides the time source used for message timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a controller with a fresh empty session
func NewController(asker transport.Asker, reg Registry, bus *events.Bus, opts ...Option) *Controller {
	c := &Controller{
		asker:     asker,
		registry:  reg,
		bus:       bus,
		now:       time.Now,
		currentID: models.NewSessionID(),
		turns:     make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns a copy of the active session state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		CurrentID: c.currentID,
		Messages:  append([]models.Message(nil), c.messages...),
		Loading:   c.pending > 0,
	}
}

// CurrentID returns the active session id
func (c *Controller) CurrentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentID
}

// Loading reports whether any request is in flight
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending > 0
}

// StartNewChat switches to a fresh empty session. The previous session
// stays in the registry.
func (c *Controller) StartNewChat() string {
	c.mu.Lock()
	id := c.switchLocked(models.NewSessionID(), nil)
	c.mu.Unlock()

	slog.Debug("started new chat", slog.String("session_id", id))
	c.bus.Publish(events.Event{Kind: events.ActiveChanged, SessionID: id})
	return id
}

// LoadChat makes a stored session the active one
func (c *Controller) LoadChat(id string) error {
	c.commitMu.Lock()
	session, ok := c.registry.Get(id)
	if !ok {
		c.commitMu.Unlock()
		return fmt.Errorf("load chat %s: %w", id, registry.ErrNotFound)
	}

	c.mu.Lock()
	c.switchLocked(id, session.Messages)
	c.mu.Unlock()
	c.commitMu.Unlock()

	c.bus.Publish(events.Event{Kind: events.ActiveChanged, SessionID: id})
	return nil
}

// DeleteChat removes a session; deleting the active one starts a new chat.
func (c *Controller) DeleteChat(id string) error {
	c.commitMu.Lock()
	err := c.registry.Remove(id)

	c.mu.Lock()
	active := id == c.currentID
	// the active session may not be stored yet if it has no messages
	if err != nil && !(active && errors.Is(err, registry.ErrNotFound)) {
		c.mu.Unlock()
		c.commitMu.Unlock()
		return err
	}
	var newID string
	if active {
		newID = c.switchLocked(models.NewSessionID(), nil)
	}
	c.mu.Unlock()
	c.commitMu.Unlock()

	if f, ok := c.asker.(forgetter); ok {
		f.Forget(id)
	}
	slog.Debug("deleted chat", slog.String("session_id", id), slog.Bool("active", active))
	c.bus.Publish(events.Event{Kind: events.SessionRemoved, SessionID: id})
	if active {
		c.bus.Publish(events.Event{Kind: events.ActiveChanged, SessionID: newID})
	}
	return nil
}

// RenameChat changes a session name; an empty name is ignored.
func (c *Controller) RenameChat(id, newName string) error {
	if strings.TrimSpace(newName) == "" {
		return nil
	}

	c.commitMu.Lock()
	err := c.registry.Rename(id, newName)
	c.commitMu.Unlock()
	if err != nil {
		return err
	}

	c.bus.Publish(events.Event{Kind: events.SessionRenamed, SessionID: id})
	return nil
}

// ExportChat writes the session transcript as a PDF to w
func (c *Controller) ExportChat(id string, w io.Writer) error {
	session, ok := c.registry.Get(id)
	if !ok {
		return fmt.Errorf("export chat %s: %w", id, registry.ErrNotFound)
	}
	return export.WritePDF(w, session)
}

// Send appends the question to the active session, asks the transport and
// appends the answer. Blank questions are ignored. Transport failures are
// logged and answered with ApologyText; Send never returns them.
func (c *Controller) Send(ctx context.Context, question string) {
	if strings.TrimSpace(question) == "" {
		return
	}

	userMsg := models.NewMessage(models.SenderUser, question, c.now())

	c.commitMu.Lock()
	c.mu.Lock()
	id, epoch := c.currentID, c.epoch
	c.messages = append(c.messages, userMsg)
	session := c.sessionLocked(id, c.messages)
	c.pending++
	prev, done := c.turns[id], make(chan struct{})
	c.turns[id] = done
	c.mu.Unlock()
	c.bus.Publish(events.Event{Kind: events.SessionChanged, SessionID: id, Session: session})
	c.commitMu.Unlock()

	c.bus.Publish(events.Event{Kind: events.StateChanged, SessionID: id, Loading: true})

	// calls for one session go out in submission order
	var answer string
	err := waitTurn(ctx, prev)
	if err == nil {
		prev = nil
		answer, err = c.asker.Ask(ctx, question, id)
	}
	defer c.finish(id, prev, done)

	if err != nil {
		slog.Error("chat request failed",
			slog.String("session_id", id),
			slog.Any("error", err),
		)
		answer = ApologyText
	}
	c.deliver(id, epoch, models.NewMessage(models.SenderBot, answer, c.now()))
}

// deliver appends a bot reply. A reply issued against an older epoch never
// reaches the visible transcript; it goes to its own session record, or is
// dropped when that session no longer exists.
func (c *Controller) deliver(id string, epoch uint64, msg models.Message) {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	c.mu.Lock()
	var base []models.Message
	switch {
	case epoch == c.epoch && id == c.currentID:
		base = c.messages
	default:
		stored, ok := c.registry.Get(id)
		if !ok {
			c.mu.Unlock()
			slog.Warn("discarding reply for deleted session", slog.String("session_id", id))
			return
		}
		base = stored.Messages
	}

	updated := append(append([]models.Message(nil), base...), msg)
	if id == c.currentID {
		c.messages = updated
	}
	session := c.sessionLocked(id, updated)
	c.mu.Unlock()

	c.bus.Publish(events.Event{Kind: events.SessionChanged, SessionID: id, Session: session})
}

func (c *Controller) finish(id string, prev, done chan struct{}) {
	// a turn that gave up waiting hands on its slot only after the one ahead
	if prev != nil {
		go func() {
			<-prev
			c.release(id, done)
		}()
	} else {
		c.release(id, done)
	}

	c.mu.Lock()
	c.pending--
	loading := c.pending > 0
	c.mu.Unlock()

	c.bus.Publish(events.Event{Kind: events.StateChanged, SessionID: id, Loading: loading})
}

func (c *Controller) release(id string, done chan struct{}) {
	c.mu.Lock()
	close(done)
	if c.turns[id] == done {
		delete(c.turns, id)
	}
	c.mu.Unlock()
}

// waitTurn blocks until the previous call for the session is done
func waitTurn(ctx context.Context, prev <-chan struct{}) error {
	if prev == nil {
		return nil
	}
	select {
	case <-prev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sessionLocked builds the record for id, keeping an explicit name
func (c *Controller) sessionLocked(id string, messages []models.Message) models.Session {
	name := models.DeriveName(messages)
	if stored, ok := c.registry.Get(id); ok && stored.Name != "" {
		name = stored.Name
	}
	return models.Session{
		ID:       id,
		Name:     name,
		Messages: append([]models.Message(nil), messages...),
	}
}

func (c *Controller) switchLocked(id string, messages []models.Message) string {
	c.currentID = id
	c.messages = append([]models.Message(nil), messages...)
	c.epoch++
	return id
}
