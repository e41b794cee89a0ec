// Package reminder delivers recurring reflection reminders.
package reminder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/killallgit/chatnote/pkg/api"
	"github.com/killallgit/chatnote/pkg/clock"
	"github.com/killallgit/chatnote/pkg/logger"
)

const (
	Title = "Reflection reminder"

	Daily  = 24 * time.Hour
	Weekly = 7 * Daily
)

// ErrClosed is returned by Start after Close
var ErrClosed = errors.New("reminder service is closed")

// Notification is a single reminder
type Notification struct {
	Title    string
	Body     string
	Question string
	At       time.Time
}

// Sink shows notifications to the user
type Sink interface {
	Notify(n Notification) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(Notification) error

func (f SinkFunc) Notify(n Notification) error {
	return f(n)
}

// Service schedules reminders on a clock. Reminders scheduled before Start
// are dropped, the way a denied notification permission would drop them.
type Service struct {
	sink  Sink
	clock clock.Clock

	mu      sync.Mutex
	started bool
	closed  bool
	timers  map[string]clock.Timer
}

// New creates a stopped Service. A nil clock uses the real one.
func New(sink Sink, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{
		sink:   sink,
		clock:  clk,
		timers: make(map[string]clock.Timer),
	}
}

func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.started = true
	logger.Debug("reminder service started")
	return nil
}

// Close cancels every pending reminder
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for q, t := range s.timers {
		t.Stop()
		delete(s.timers, q)
	}
	s.closed = true
	s.started = false
	return nil
}

// Pending returns the number of questions with a reminder armed
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// ScheduleReflectionReminder notifies about question now and again every
// day or week. Custom frequencies are accepted and ignored. Scheduling a
// question again replaces its previous reminder.
func (s *Service) ScheduleReflectionReminder(question string, frequency api.Frequency) {
	var period time.Duration
	switch frequency {
	case api.FrequencyDaily:
		period = Daily
	case api.FrequencyWeekly:
		period = Weekly
	case api.FrequencyCustom:
		return
	default:
		logger.Warn("ignoring reminder with unknown frequency %q", frequency)
		return
	}

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		logger.Debug("reminder service not started, dropping reminder for %q", question)
		return
	}
	if old, ok := s.timers[question]; ok {
		old.Stop()
		delete(s.timers, question)
	}
	s.mu.Unlock()

	s.deliver(question)
	s.arm(question, period)
}

func (s *Service) arm(question string, period time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}

	var t clock.Timer
	t = s.clock.AfterFunc(period, func() {
		s.mu.Lock()
		current, ok := s.timers[question]
		s.mu.Unlock()
		if !ok || current != t {
			return
		}
		s.deliver(question)
		s.arm(question, period)
	})
	s.timers[question] = t
}

func (s *Service) deliver(question string) {
	n := Notification{
		Title:    Title,
		Body:     fmt.Sprintf("Time to reflect on this question: %s", question),
		Question: question,
		At:       s.clock.Now(),
	}
	if err := s.sink.Notify(n); err != nil {
		logger.Warn("failed to deliver reminder for %q: %v", question, err)
	}
}
