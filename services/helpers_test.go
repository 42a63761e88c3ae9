package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"cardex-server/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu        sync.Mutex
	cards     []models.CardEvent
	exchanges []models.ExchangeEvent
}

func (p *recordingPublisher) PublishCardEvent(e models.CardEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cards = append(p.cards, e)
}

func (p *recordingPublisher) PublishExchangeEvent(e models.ExchangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exchanges = append(p.exchanges, e)
}

func (p *recordingPublisher) exchangeEvents() []models.ExchangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.ExchangeEvent(nil), p.exchanges...)
}

// failingCardStore fails every call with err.
type failingCardStore struct{ err error }

func (s failingCardStore) List(context.Context) ([]models.Card, int, error) { return nil, 0, s.err }
func (s failingCardStore) Get(context.Context, string) (models.Card, error) {
	return models.Card{}, s.err
}
func (s failingCardStore) Replace(context.Context, models.Card) error { return s.err }
func (s failingCardStore) Delete(context.Context, string) error        { return s.err }
func (s failingCardStore) Count(context.Context) (int64, error)        { return 0, s.err }

// failingLedgerStore fails every write with err and counts attempts.
type failingLedgerStore struct {
	MemoryLedgerStore
	err    error
	writes int
}

func (s *failingLedgerStore) AddToSet(context.Context, string, string) (bool, error) {
	s.writes++
	return false, s.err
}

func (s *failingLedgerStore) Pull(context.Context, string, string) error {
	s.writes++
	return s.err
}

// blockingLedger blocks Add until release is closed or ctx is done.
type blockingLedger struct {
	started chan struct{}
	release chan struct{}
	inner   ContactAdder
}

func (b *blockingLedger) Add(ctx context.Context, owner, target string) (models.AddResult, error) {
	close(b.started)
	select {
	case <-b.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return b.inner.Add(ctx, owner, target)
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func seedCards(t *testing.T, store CardStore, cards ...models.Card) {
	t.Helper()
	for _, c := range cards {
		require.NoError(t, store.Replace(context.Background(), c))
	}
}

func card(id, name, role, company string) models.Card {
	return models.Card{ID: id, Name: name, Role: role, Company: company}
}

func cardAt(id, name, role string, lat, lon float64) models.Card {
	c := card(id, name, role, "")
	c.Location = models.NewGeoPoint(lat, lon)
	return c
}

func ids(cards []models.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}

var errBackend = fmt.Errorf("backend down")
