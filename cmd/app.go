package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/killallgit/chatnote/pkg/api"
	"github.com/killallgit/chatnote/pkg/cards"
	"github.com/killallgit/chatnote/pkg/clock"
	"github.com/killallgit/chatnote/pkg/config"
	"github.com/killallgit/chatnote/pkg/draft"
	"github.com/killallgit/chatnote/pkg/logger"
	"github.com/killallgit/chatnote/pkg/reflection"
	"github.com/killallgit/chatnote/pkg/reminder"
	"github.com/killallgit/chatnote/pkg/stream"
)

// app holds the services a command needs, built from the loaded config
type app struct {
	cfg       *config.Config
	statePath string
	state     config.State
	out       io.Writer

	client    *api.Client
	ingestor  *stream.Ingestor
	drafts    *draft.Manager
	store     *draft.SQLiteBackend
	reminders *reminder.Service

	closers []func() error
}

func newApp(out io.Writer) (*app, error) {
	cfg := config.Get()
	a := &app{
		cfg:       cfg,
		statePath: config.StatePath(),
		out:       out,
	}

	st, err := config.LoadState(a.statePath)
	if err != nil {
		logger.Warn("ignoring unreadable state: %v", err)
	}
	a.state = st

	token := cfg.API.Token
	if token == "" {
		token = st.Token
	}
	a.client = api.NewClient(cfg.API.BaseURL,
		api.WithToken(token),
		api.WithTimeout(cfg.API.Timeout),
		api.WithUnauthorizedHandler(a.logout),
	)

	a.ingestor = stream.NewIngestor(stream.Options{
		ReadTimeout: cfg.Stream.ReadTimeout,
		ChunkSize:   cfg.Stream.ChunkSize,
	})

	a.drafts = a.openDrafts()
	return a, nil
}

// openDrafts wires the SQLite store with an in-memory fallback, sharing
// changes with other processes through the watch directory
func (a *app) openDrafts() *draft.Manager {
	dc := a.cfg.Drafts
	opts := draft.Options{
		Namespace: dc.Namespace,
		Primary:   draft.Disabled(),
		Clock:     clock.Real(),
	}
	if !dc.Enabled {
		return draft.NewManager(opts)
	}

	opts.Fallback = draft.NewMemoryBackend(dc.QuotaBytes)
	store, err := draft.OpenSQLite(resolve(dc.Database), dc.QuotaBytes)
	if err != nil {
		logger.Warn("draft database unavailable, keeping drafts in memory: %v", err)
		opts.Primary = opts.Fallback
	} else {
		a.store = store
		opts.Primary = store
		a.closers = append(a.closers, store.Close)
	}

	if dc.WatchDir != "" {
		bus, err := draft.NewWatchBus(resolve(dc.WatchDir))
		if err != nil {
			logger.Warn("draft sync disabled: %v", err)
		} else {
			opts.Bus = bus
			a.closers = append(a.closers, bus.Close)
		}
	}
	if opts.Bus == nil {
		opts.Bus = draft.NewLocalBus()
	}
	return draft.NewManager(opts)
}

// startReminders starts the reminder service when enabled. Reminders are
// printed to the app's output.
func (a *app) startReminders() *reminder.Service {
	if a.reminders != nil || !a.cfg.Reminders.Enabled {
		return a.reminders
	}
	svc := reminder.New(reminder.SinkFunc(func(n reminder.Notification) error {
		_, err := fmt.Fprintf(a.out, "%s %s\n", reminderStyle.Render(n.Title), n.Body)
		return err
	}), clock.Real())
	if err := svc.Start(); err != nil {
		logger.Warn("reminders unavailable: %v", err)
		return nil
	}
	a.reminders = svc
	a.closers = append(a.closers, svc.Close)
	return svc
}

func (a *app) reflection() *reflection.Service {
	if svc := a.startReminders(); svc != nil {
		return reflection.NewService(a.client, svc)
	}
	return reflection.NewService(a.client, nil)
}

func (a *app) cards() (*cards.Service, error) {
	ic := a.cfg.Cards.Index
	if !ic.Enabled {
		return cards.NewService(a.client, nil), nil
	}
	embedder, err := cards.NewEmbedder(cards.EmbedderConfig{
		Provider:   ic.Embedder.Provider,
		Model:      ic.Embedder.Model,
		BaseURL:    ic.Embedder.BaseURL,
		Dimensions: ic.Embedder.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	dir := ic.PersistenceDir
	if dir != "" {
		dir = resolve(dir)
	}
	index, err := cards.NewIndex(embedder, dir)
	if err != nil {
		return nil, err
	}
	return cards.NewService(a.client, index), nil
}

// logout forgets the stored token after the server rejected it
func (a *app) logout() {
	if _, err := config.UpdateState(a.statePath, func(st *config.State) { st.Token = "" }); err != nil {
		logger.Warn("failed to forget token: %v", err)
	}
	fmt.Fprintln(os.Stderr, errorStyle.Render("Session expired, run `chatnote login` again."))
}

func (a *app) remember(fn func(*config.State)) {
	st, err := config.UpdateState(a.statePath, fn)
	if err != nil {
		logger.Warn("failed to save state: %v", err)
		return
	}
	a.state = st
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// resolve places relative paths in the settings directory
func resolve(path string) string {
	return config.ResolvePath(path)
}

// interruptible returns a context cancelled by Ctrl-C
func interruptible(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
