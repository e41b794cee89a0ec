package draft

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/killallgit/chatnote/pkg/clock"
	"github.com/killallgit/chatnote/pkg/logger"
)

// TimestampLayout formats the human readable save time
const TimestampLayout = "15:04:05"

const defaultNamespace = "chat"

// Draft is unsent input text for one conversation
type Draft struct {
	Key     string
	Text    string
	SavedAt string
}

// Options configures a Manager
type Options struct {
	Namespace string
	// Primary is the durable backend tried first
	Primary Backend
	// Fallback takes over for the rest of the Manager's life once a write
	// to Primary fails
	Fallback Backend
	Bus      Bus
	Clock    clock.Clock
	// Origin tags changes published by this Manager. Generated when empty.
	Origin string
}

// Manager saves, restores and clears drafts keyed by conversation
type Manager struct {
	mu         sync.RWMutex
	ns         string
	primary    Backend
	fallback   Backend
	active     Backend
	downgraded bool
	bus        Bus
	clock      clock.Clock
	origin     string
}

// NewManager creates a Manager. If the fallback already records that it is
// the active backend, the Manager starts downgraded.
func NewManager(opts Options) *Manager {
	m := &Manager{
		ns:       opts.Namespace,
		primary:  opts.Primary,
		fallback: opts.Fallback,
		bus:      opts.Bus,
		clock:    opts.Clock,
		origin:   opts.Origin,
	}
	if m.ns == "" {
		m.ns = defaultNamespace
	}
	if m.primary == nil {
		m.primary = Disabled()
	}
	if m.clock == nil {
		m.clock = clock.Real()
	}
	if m.origin == "" {
		m.origin = uuid.NewString()
	}

	m.active = m.primary
	if m.fallback != nil {
		if name, ok, err := m.fallback.Get(m.StorageTypeKey()); err == nil && ok && name == m.fallback.Name() {
			m.active = m.fallback
			m.downgraded = true
		}
	}
	return m
}

// TextKey returns the storage key of a conversation's draft text
func (m *Manager) TextKey(conversationID string) string {
	return m.ns + "_draft_" + conversationID
}

// TimestampKey returns the storage key of a conversation's save time
func (m *Manager) TimestampKey(conversationID string) string {
	return m.ns + "_draft_timestamp_" + conversationID
}

// StorageTypeKey returns the key recording the active backend
func (m *Manager) StorageTypeKey() string {
	return m.ns + "_storage_type"
}

// Origin returns the tag carried by this Manager's published changes
func (m *Manager) Origin() string {
	return m.origin
}

// Backend returns the backend currently in use
func (m *Manager) Backend() Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Downgraded reports whether the Manager has switched to the fallback
func (m *Manager) Downgraded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.downgraded
}

// Save writes text and the current time for the conversation and returns
// the formatted save time. Storage failures are absorbed; an empty result
// means nothing was stored.
func (m *Manager) Save(conversationID, text string) string {
	savedAt := m.clock.Now().Format(TimestampLayout)

	if !m.write(entry{m.TextKey(conversationID), text}, entry{m.TimestampKey(conversationID), savedAt}) {
		return ""
	}

	m.publish(Change{Key: m.TextKey(conversationID), Value: text})
	m.publish(Change{Key: m.TimestampKey(conversationID), Value: savedAt})
	return savedAt
}

// Restore reads the conversation's draft from the active backend
func (m *Manager) Restore(conversationID string) (Draft, bool) {
	backend := m.Backend()
	key := m.TextKey(conversationID)

	text, ok, err := backend.Get(key)
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			logger.Warn("failed to restore draft %s from %s: %v", key, backend.Name(), err)
		}
		return Draft{}, false
	}
	if !ok {
		return Draft{}, false
	}

	savedAt, _, err := backend.Get(m.TimestampKey(conversationID))
	if err != nil {
		logger.Debug("draft %s has no readable timestamp: %v", key, err)
	}
	return Draft{Key: key, Text: text, SavedAt: savedAt}, true
}

// Clear removes the conversation's draft. Clearing an absent draft does
// nothing.
func (m *Manager) Clear(conversationID string) {
	m.mu.RLock()
	backend, primary, downgraded := m.active, m.primary, m.downgraded
	m.mu.RUnlock()

	textKey := m.TextKey(conversationID)
	keys := []string{textKey, m.TimestampKey(conversationID)}

	// a draft saved before the switch still sits in the primary, where the
	// next process would restore it
	if downgraded {
		for _, key := range keys {
			if err := primary.Remove(key); err != nil {
				logger.Debug("failed to clear draft %s from %s: %v", key, primary.Name(), err)
			}
		}
	}

	if _, ok, err := backend.Get(textKey); err != nil || !ok {
		return
	}

	for _, key := range keys {
		if err := backend.Remove(key); err != nil {
			logger.Warn("failed to clear draft %s from %s: %v", key, backend.Name(), err)
		}
	}

	m.publish(Change{Key: textKey, Deleted: true})
	m.publish(Change{Key: m.TimestampKey(conversationID), Deleted: true})
}

// Watch calls onText and onSavedAt when another Manager changes the
// conversation's draft. A deleted draft is reported as empty text. The
// returned function stops watching.
func (m *Manager) Watch(conversationID string, onText, onSavedAt func(string)) func() {
	if m.bus == nil {
		return func() {}
	}

	textKey := m.TextKey(conversationID)
	tsKey := m.TimestampKey(conversationID)

	return m.bus.Subscribe(func(c Change) {
		if c.Origin == m.origin {
			return
		}
		value := c.Value
		if c.Deleted {
			value = ""
		}
		switch c.Key {
		case textKey:
			if onText != nil {
				onText(value)
			}
		case tsKey:
			if onSavedAt != nil {
				onSavedAt(value)
			}
		}
	})
}

type entry struct {
	key   string
	value string
}

// write stores the entries in order, switching to the fallback on the first
// failed write and storing every entry there. It reports whether the first
// entry was stored.
func (m *Manager) write(entries ...entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.setAll(entries)
	if err == nil {
		return true
	}
	if errors.Is(err, ErrUnavailable) {
		return false
	}

	if m.downgraded || m.fallback == nil {
		logger.Warn("failed to save draft to %s: %v", m.active.Name(), err)
		return m.stored(entries[0])
	}

	logger.Info("draft storage %s failed (%v), switching to %s", m.active.Name(), err, m.fallback.Name())
	m.active = m.fallback
	m.downgraded = true
	if err := m.fallback.Set(m.StorageTypeKey(), m.fallback.Name()); err != nil {
		logger.Warn("failed to record draft storage type: %v", err)
	}

	if err := m.setAll(entries); err != nil {
		logger.Warn("failed to save draft to %s: %v", m.active.Name(), err)
		return m.stored(entries[0])
	}
	return true
}

func (m *Manager) setAll(entries []entry) error {
	for _, e := range entries {
		if err := m.active.Set(e.key, e.value); err != nil {
			return fmt.Errorf("failed to write %s: %w", e.key, err)
		}
	}
	return nil
}

// stored reports whether the active backend holds e
func (m *Manager) stored(e entry) bool {
	v, ok, err := m.active.Get(e.key)
	return err == nil && ok && v == e.value
}

func (m *Manager) publish(c Change) {
	if m.bus == nil {
		return
	}
	c.Origin = m.origin
	if err := m.bus.Publish(c); err != nil {
		logger.Warn("failed to publish draft change for %s: %v", c.Key, err)
	}
}
