package cards

import (
	"context"
	"fmt"
	"sync"

	"github.com/killallgit/chatnote/pkg/api"
	"github.com/philippgille/chromem-go"
)

const collectionName = "cards"

// Hit is a card matched by a search
type Hit struct {
	Card  api.Card
	Score float32
}

// Index is a semantic search index over cards
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	mu         sync.RWMutex
	cards      map[string]api.Card
}

// NewIndex creates an index. A non-empty persistenceDir keeps the
// collection on disk.
func NewIndex(embedder Embedder, persistenceDir string) (*Index, error) {
	var db *chromem.DB
	if persistenceDir != "" {
		var err error
		db, err = chromem.NewPersistentDB(persistenceDir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to create persistent chromem DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedText(ctx, text)
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to open card collection: %w", err)
	}

	return &Index{
		db:         db,
		collection: col,
		embedder:   embedder,
		cards:      make(map[string]api.Card),
	}, nil
}

func documentText(c api.Card) string {
	return c.Title + "\n\n" + c.Content
}

// Upsert indexes or re-indexes cards
func (i *Index) Upsert(ctx context.Context, cards ...api.Card) error {
	if len(cards) == 0 {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	texts := make([]string, len(cards))
	for n, c := range cards {
		texts[n] = documentText(c)
	}
	vectors, err := i.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed cards: %w", err)
	}

	for n, c := range cards {
		if _, ok := i.cards[c.ID]; ok {
			if err := i.collection.Delete(ctx, nil, nil, c.ID); err != nil {
				return fmt.Errorf("failed to replace card %s: %w", c.ID, err)
			}
		}
		doc := chromem.Document{
			ID:        c.ID,
			Content:   texts[n],
			Metadata:  map[string]string{"title": c.Title},
			Embedding: vectors[n],
		}
		if err := i.collection.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("failed to index card %s: %w", c.ID, err)
		}
		i.cards[c.ID] = c
	}
	return nil
}

// Remove drops a card from the index
func (i *Index) Remove(ctx context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.cards[id]; !ok {
		return nil
	}
	if err := i.collection.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("failed to remove card %s: %w", id, err)
	}
	delete(i.cards, id)
	return nil
}

// Sync makes the index hold exactly the given cards
func (i *Index) Sync(ctx context.Context, cards []api.Card) error {
	keep := make(map[string]bool, len(cards))
	var changed []api.Card

	i.mu.RLock()
	for _, c := range cards {
		keep[c.ID] = true
		if old, ok := i.cards[c.ID]; !ok || old.Title != c.Title || old.Content != c.Content {
			changed = append(changed, c)
		}
	}
	var stale []string
	for id := range i.cards {
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	i.mu.RUnlock()

	for _, id := range stale {
		if err := i.Remove(ctx, id); err != nil {
			return err
		}
	}
	return i.Upsert(ctx, changed...)
}

// Count returns the number of indexed cards
func (i *Index) Count() int {
	return i.collection.Count()
}

// Search returns up to k cards most similar to query
func (i *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	count := i.collection.Count()
	if count == 0 || k <= 0 {
		return []Hit{}, nil
	}
	if k > count {
		k = count
	}

	results, err := i.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		card, ok := i.cards[r.ID]
		if !ok {
			card = api.Card{ID: r.ID, Title: r.Metadata["title"], Content: r.Content}
		}
		hits = append(hits, Hit{Card: card, Score: r.Similarity})
	}
	return hits, nil
}
