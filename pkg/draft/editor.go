package draft

import (
	"sync"
	"time"
)

// State is the lifecycle position of a draft in an Editor
type State int

const (
	StateEmpty State = iota
	StateDirty
	StateSaved
	StateCleared
	// StateRestored is entered on open when a saved draft exists. It
	// behaves like StateSaved.
	StateRestored
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateDirty:
		return "dirty"
	case StateSaved:
		return "saved"
	case StateCleared:
		return "cleared"
	case StateRestored:
		return "restored"
	default:
		return "unknown"
	}
}

// Editor tracks the input text of one conversation, saves it after the
// input has been still for the debounce delay and applies changes made by
// other Managers.
type Editor struct {
	mu             sync.Mutex
	manager        *Manager
	conversationID string
	state          State
	text           string
	savedAt        string

	setText    func(string)
	setSavedAt func(string)

	debounce *Debouncer
	unwatch  func()
}

// Open restores the conversation's draft and starts watching for
// external changes. setText and setSavedAt receive values written by
// other Managers; either may be nil.
func (m *Manager) Open(conversationID string, delay time.Duration, setText, setSavedAt func(string)) *Editor {
	e := &Editor{
		manager:        m,
		conversationID: conversationID,
		state:          StateEmpty,
		setText:        setText,
		setSavedAt:     setSavedAt,
	}
	e.debounce = NewDebouncer(m.clock, delay, e.save)

	if d, ok := m.Restore(conversationID); ok {
		e.state = StateRestored
		e.text = d.Text
		e.savedAt = d.SavedAt
	}

	e.unwatch = m.Watch(conversationID, e.externalText, e.externalSavedAt)
	return e
}

// Text returns the current input text
func (e *Editor) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

// SavedAt returns the last save time shown to the user
func (e *Editor) SavedAt() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.savedAt
}

// State returns the current lifecycle state
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Edit records new input text and restarts the debounce window
func (e *Editor) Edit(text string) {
	e.mu.Lock()
	e.text = text
	e.state = StateDirty
	e.mu.Unlock()

	e.debounce.Trigger()
}

// Flush saves pending input immediately
func (e *Editor) Flush() {
	e.debounce.Flush()
}

// Clear discards the draft, for example after the message was sent
func (e *Editor) Clear() {
	e.debounce.Cancel()
	e.manager.Clear(e.conversationID)

	e.mu.Lock()
	e.text = ""
	e.savedAt = ""
	e.state = StateCleared
	e.mu.Unlock()
}

// Close saves pending input and stops watching
func (e *Editor) Close() {
	e.debounce.Flush()
	if e.unwatch != nil {
		e.unwatch()
	}
}

func (e *Editor) save() {
	e.mu.Lock()
	text := e.text
	e.mu.Unlock()

	savedAt := e.manager.Save(e.conversationID, text)

	e.mu.Lock()
	if e.text == text && e.state == StateDirty {
		e.state = StateSaved
		if savedAt != "" {
			e.savedAt = savedAt
		}
	}
	e.mu.Unlock()
}

func (e *Editor) externalText(value string) {
	e.mu.Lock()
	if value == e.text {
		e.mu.Unlock()
		return
	}
	e.text = value
	if value == "" {
		e.state = StateCleared
	} else {
		e.state = StateSaved
	}
	setText := e.setText
	e.mu.Unlock()

	// the other writer's value wins over our pending save
	e.debounce.Cancel()
	if setText != nil {
		setText(value)
	}
}

func (e *Editor) externalSavedAt(value string) {
	e.mu.Lock()
	if value == e.savedAt {
		e.mu.Unlock()
		return
	}
	e.savedAt = value
	setSavedAt := e.setSavedAt
	e.mu.Unlock()

	if setSavedAt != nil {
		setSavedAt(value)
	}
}
