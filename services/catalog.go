package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"cardex-server/models"
)

// CardLister is the read side of the card repository.
type CardLister interface {
	List(ctx context.Context) ([]models.Card, int, error)
}

// LoadResult is one materialized view of the card collection.
type LoadResult struct {
	Cards    []models.Card `json:"cards"`
	Skipped  int           `json:"skipped"`
	LoadedAt time.Time     `json:"loaded_at"`
}

// CardCatalog is a session-local view of all cards, decorated with their
// category. It is never shared between sessions.
type CardCatalog struct {
	source CardLister
	now    func() time.Time

	mu     sync.RWMutex
	view   *LoadResult
	gen    uint64
	loadMu sync.Mutex
}

func NewCardCatalog(source CardLister) *CardCatalog {
	return &CardCatalog{source: source, now: time.Now}
}

// Load fetches the whole collection. On failure the previous view, if
// any, is left in place and the error is returned so the caller can retry.
// A result fetched across an Invalidate is returned but not kept.
func (c *CardCatalog) Load(ctx context.Context) (LoadResult, error) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	cards, skipped, err := c.source.List(ctx)
	if err != nil {
		return LoadResult{}, err
	}
	decorated := make([]models.Card, len(cards))
	for i, card := range cards {
		card.Category = Classify(card.Role)
		card.Color = card.DisplayColor()
		decorated[i] = card
	}
	view := &LoadResult{Cards: decorated, Skipped: skipped, LoadedAt: c.now()}

	c.mu.Lock()
	if c.gen == gen {
		c.view = view
	}
	c.mu.Unlock()
	return view.copy(), nil
}

// Cards returns the current view, loading it first if needed.
func (c *CardCatalog) Cards(ctx context.Context) (LoadResult, error) {
	c.mu.RLock()
	view := c.view
	c.mu.RUnlock()
	if view != nil {
		return view.copy(), nil
	}
	return c.Load(ctx)
}

// Invalidate drops the view; the next Cards call reloads.
func (c *CardCatalog) Invalidate() {
	c.mu.Lock()
	c.view = nil
	c.gen++
	c.mu.Unlock()
}

func (r *LoadResult) copy() LoadResult {
	out := *r
	out.Cards = make([]models.Card, len(r.Cards))
	copy(out.Cards, r.Cards)
	return out
}

// Filter keeps cards whose name, role or company contains searchText
// (case insensitive) and whose category matches. Only empty text and the
// empty or All category match everything. Order is preserved.
func Filter(cards []models.Card, searchText string, category models.Category) []models.Card {
	text := strings.ToLower(searchText)
	anyCategory := category == "" || category == models.CategoryAll

	out := []models.Card{}
	for _, card := range cards {
		if !anyCategory && cardCategory(card) != category {
			continue
		}
		if text != "" && !matchesText(card, text) {
			continue
		}
		out = append(out, card)
	}
	return out
}

func matchesText(card models.Card, lowered string) bool {
	return strings.Contains(strings.ToLower(card.Name), lowered) ||
		strings.Contains(strings.ToLower(card.Role), lowered) ||
		strings.Contains(strings.ToLower(card.Company), lowered)
}

func cardCategory(card models.Card) models.Category {
	if card.Category != "" {
		return card.Category
	}
	return Classify(card.Role)
}
