// Package cards manages note cards and searches them by meaning.
package cards

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/killallgit/chatnote/pkg/api"
	"github.com/killallgit/chatnote/pkg/logger"
)

// Backend is the part of the API the card service needs
type Backend interface {
	ListCards(ctx context.Context) ([]api.Card, error)
	CreateCard(ctx context.Context, in api.CardInput) (*api.Card, error)
	UpdateCard(ctx context.Context, id string, in api.CardInput) (*api.Card, error)
	DeleteCard(ctx context.Context, id string) error
}

var (
	ErrEmptyCard    = errors.New("card needs a title or content")
	ErrNoIndex      = errors.New("card search is disabled")
	ErrCardNotFound = errors.New("card not found")
)

// Service mirrors the server's cards locally and keeps the search index
// in step with every change
type Service struct {
	backend Backend
	index   *Index

	mu    sync.RWMutex
	cache map[string]api.Card
	order []string
}

// NewService creates a Service. index may be nil to disable search.
func NewService(backend Backend, index *Index) *Service {
	return &Service{
		backend: backend,
		index:   index,
		cache:   make(map[string]api.Card),
	}
}

// List fetches all cards and refreshes the cache and index
func (s *Service) List(ctx context.Context) ([]api.Card, error) {
	cards, err := s.backend.ListCards(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache = make(map[string]api.Card, len(cards))
	s.order = s.order[:0]
	for _, c := range cards {
		s.cache[c.ID] = c
		s.order = append(s.order, c.ID)
	}
	s.mu.Unlock()

	if s.index != nil {
		if err := s.index.Sync(ctx, cards); err != nil {
			logger.Warn("card index sync failed: %v", err)
		}
	}
	return cards, nil
}

// Cached returns the cards from the last refresh in server order
func (s *Service) Cached() []api.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Card, 0, len(s.order))
	for _, id := range s.order {
		if c, ok := s.cache[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Get returns a card from the cache
func (s *Service) Get(id string) (api.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cache[id]
	if !ok {
		return api.Card{}, ErrCardNotFound
	}
	return c, nil
}

func (s *Service) Create(ctx context.Context, title, content string) (*api.Card, error) {
	in, err := cardInput(title, content)
	if err != nil {
		return nil, err
	}
	card, err := s.backend.CreateCard(ctx, in)
	if err != nil {
		return nil, err
	}
	s.remember(*card)
	return card, nil
}

func (s *Service) Update(ctx context.Context, id, title, content string) (*api.Card, error) {
	in, err := cardInput(title, content)
	if err != nil {
		return nil, err
	}
	card, err := s.backend.UpdateCard(ctx, id, in)
	if err != nil {
		return nil, err
	}
	if card.ID == "" {
		card.ID = id
	}
	s.remember(*card)
	return card, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.backend.DeleteCard(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.cache, id)
	for n, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:n], s.order[n+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if s.index != nil {
		if err := s.index.Remove(ctx, id); err != nil {
			logger.Warn("failed to drop card %s from index: %v", id, err)
		}
	}
	return nil
}

// Search refreshes the cards and returns the k most similar to query
func (s *Service) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if s.index == nil {
		return nil, ErrNoIndex
	}
	if _, err := s.List(ctx); err != nil {
		return nil, err
	}
	hits, err := s.index.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	return hits, nil
}

func (s *Service) remember(card api.Card) {
	s.mu.Lock()
	if _, ok := s.cache[card.ID]; !ok {
		s.order = append(s.order, card.ID)
	}
	s.cache[card.ID] = card
	s.mu.Unlock()

	if s.index != nil {
		if err := s.index.Upsert(context.Background(), card); err != nil {
			logger.Warn("failed to index card %s: %v", card.ID, err)
		}
	}
}

func cardInput(title, content string) (api.CardInput, error) {
	in := api.CardInput{Title: strings.TrimSpace(title), Content: strings.TrimSpace(content)}
	if in.Title == "" && in.Content == "" {
		return api.CardInput{}, ErrEmptyCard
	}
	return in, nil
}
