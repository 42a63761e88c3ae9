package services

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"cardex-server/models"
	"cardex-server/utils/errors"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	cardCacheTTL     = 24 * time.Hour
	cardTombstoneTTL = time.Hour
	cardTombstone    = "deleted"
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// CardService is the card repository: validation, caching and indexing
// around a CardStore.
type CardService struct {
	store       CardStore
	redisClient *redis.Client
	geo         *GeoService
	events      EventPublisher
	now         func() time.Time
}

func NewCardService(store CardStore, redisClient *redis.Client, geo *GeoService, events EventPublisher) *CardService {
	if events == nil {
		events = NopPublisher{}
	}
	if geo == nil {
		geo = NewGeoService(redisClient)
	}
	return &CardService{
		store:       store,
		redisClient: redisClient,
		geo:         geo,
		events:      events,
		now:         time.Now,
	}
}

// List fetches every card. Either the full set is returned or
// ErrRepositoryUnavailable; skipped counts malformed documents.
func (s *CardService) List(ctx context.Context) ([]models.Card, int, error) {
	cards, skipped, err := s.store.List(ctx)
	if err != nil {
		log.Errorf("Failed to list cards: %v", err)
		return nil, 0, errors.WithDetails(errors.ErrRepositoryUnavailable, err)
	}
	if skipped > 0 {
		log.Warnf("Skipped %d malformed card documents", skipped)
	}
	return cards, skipped, nil
}

// Get retrieves a card from Redis or the store.
func (s *CardService) Get(ctx context.Context, id string) (models.Card, error) {
	if strings.TrimSpace(id) == "" {
		return models.Card{}, errors.ErrInvalidInput
	}
	if card, ok, deleted := s.cached(ctx, id); deleted {
		return models.Card{}, errors.Withf(errors.ErrNotFound, "card %s", id)
	} else if ok {
		return card, nil
	}

	card, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return models.Card{}, err
		}
		return models.Card{}, errors.WithDetails(errors.ErrRepositoryUnavailable, err)
	}
	s.fill(ctx, card)
	return card, nil
}

// Put replaces the caller's card wholesale. A card naming another owner
// is rejected.
func (s *CardService) Put(ctx context.Context, callerID string, card models.Card) (models.Card, error) {
	if callerID == "" {
		return models.Card{}, errors.ErrUnauthorized
	}
	if card.ID != "" && card.ID != callerID {
		return models.Card{}, errors.Withf(errors.ErrForbidden, "card %s belongs to another user", card.ID)
	}
	card.ID = callerID
	card.Category = ""
	card.UpdatedAt = s.now().UTC()
	if err := ValidateCard(card); err != nil {
		return models.Card{}, err
	}

	if err := s.store.Replace(ctx, card); err != nil {
		log.Errorf("Failed to save card %s: %v", callerID, err)
		return models.Card{}, errors.WithDetails(errors.ErrRepositoryUnavailable, err)
	}
	s.cache(ctx, card)
	if err := s.geo.Index(ctx, card); err != nil {
		log.Warnf("Failed to update geo index for card %s: %v", card.ID, err)
	}
	s.events.PublishCardEvent(models.CardEvent{CardID: card.ID, At: card.UpdatedAt})
	log.Infof("Saved card %s", card.ID)
	return card, nil
}

// Delete removes the caller's card, cache entry and geo entry.
func (s *CardService) Delete(ctx context.Context, callerID string) error {
	if callerID == "" {
		return errors.ErrUnauthorized
	}
	if err := s.store.Delete(ctx, callerID); err != nil {
		return errors.WithDetails(errors.ErrRepositoryUnavailable, err)
	}
	s.bury(ctx, callerID)
	if err := s.geo.Remove(ctx, callerID); err != nil {
		log.Warnf("Failed to remove card %s from geo index: %v", callerID, err)
	}
	s.events.PublishCardEvent(models.CardEvent{CardID: callerID, Deleted: true, At: s.now().UTC()})
	log.Infof("Deleted card %s", callerID)
	return nil
}

// Nearby returns indexed cards within radiusKm of (lat, lon), closest
// first, excluding excludeID.
func (s *CardService) Nearby(ctx context.Context, lat, lon, radiusKm float64, excludeID string) ([]models.RankedAnnotation, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 || radiusKm <= 0 {
		return nil, errors.ErrInvalidInput
	}
	hits, err := s.geo.Nearby(ctx, lat, lon, radiusKm)
	if err != nil {
		return nil, errors.WithDetails(errors.ErrRepositoryUnavailable, err)
	}

	results := []models.RankedAnnotation{}
	for _, hit := range hits {
		if hit.CardID == excludeID {
			continue
		}
		card, err := s.Get(ctx, hit.CardID)
		if err != nil {
			log.Warnf("Failed to get card %s for nearby result: %v", hit.CardID, err)
			continue
		}
		results = append(results, models.RankedAnnotation{
			MapAnnotation: models.MapAnnotation{
				CardID:   card.ID,
				Name:     card.Name,
				Role:     card.Role,
				Category: Classify(card.Role),
				Color:    card.DisplayColor(),
				Lat:      hit.Lat,
				Lon:      hit.Lon,
			},
			Distance:     hit.Distance,
			DistanceText: FormatDistance(hit.Distance),
		})
	}
	return results, nil
}

// ReindexGeo rebuilds the Redis geo set from the store.
func (s *CardService) ReindexGeo(ctx context.Context) (int, error) {
	cards, _, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	return s.geo.Reindex(ctx, cards)
}

// ValidateCard checks the fields a client may set.
func ValidateCard(card models.Card) error {
	if strings.TrimSpace(card.ID) == "" {
		return errors.Withf(errors.ErrInvalidInput, "card id is required")
	}
	if strings.TrimSpace(card.Name) == "" {
		return errors.Withf(errors.ErrInvalidInput, "name is required")
	}
	if card.Color != "" && !hexColor.MatchString(card.Color) {
		return errors.Withf(errors.ErrInvalidInput, "color %q is not a #RRGGBB hex value", card.Color)
	}
	if card.Location != nil && !card.Location.Valid() {
		return errors.Withf(errors.ErrInvalidInput, "location must be a [lon, lat] pair in range")
	}
	return nil
}

// cached reads card:<id>. deleted is true when the entry is a tombstone
// left by Delete.
func (s *CardService) cached(ctx context.Context, id string) (card models.Card, ok, deleted bool) {
	if s.redisClient == nil {
		return models.Card{}, false, false
	}
	cardJSON, err := s.redisClient.Get(ctx, cardKey(id)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warnf("Redis get for card %s failed: %v", id, err)
		}
		return models.Card{}, false, false
	}
	if cardJSON == cardTombstone {
		return models.Card{}, false, true
	}
	if err := json.Unmarshal([]byte(cardJSON), &card); err != nil {
		log.Warnf("Failed to unmarshal cached card %s: %v", id, err)
		return models.Card{}, false, false
	}
	return card, true, false
}

// fill caches a card read from the store. SetNX keeps a newer entry
// written by Put or Delete in the meantime.
func (s *CardService) fill(ctx context.Context, card models.Card) {
	if s.redisClient == nil {
		return
	}
	cardJSON, err := json.Marshal(card)
	if err != nil {
		return
	}
	if err := s.redisClient.SetNX(ctx, cardKey(card.ID), cardJSON, cardCacheTTL).Err(); err != nil {
		log.Warnf("Failed to cache card %s: %v", card.ID, err)
	}
}

// cache writes a saved card through to Redis. If that fails the entry is
// evicted so a stale copy is not served.
func (s *CardService) cache(ctx context.Context, card models.Card) {
	if s.redisClient == nil {
		return
	}
	cardJSON, err := json.Marshal(card)
	if err == nil {
		err = s.redisClient.Set(ctx, cardKey(card.ID), cardJSON, cardCacheTTL).Err()
	}
	if err != nil {
		log.Warnf("Failed to cache card %s: %v", card.ID, err)
		s.evict(ctx, card.ID)
	}
}

// bury replaces the cache entry of a deleted card with a tombstone.
func (s *CardService) bury(ctx context.Context, id string) {
	if s.redisClient == nil {
		return
	}
	if err := s.redisClient.Set(ctx, cardKey(id), cardTombstone, cardTombstoneTTL).Err(); err != nil {
		log.Warnf("Failed to mark cached card %s deleted: %v", id, err)
		s.evict(ctx, id)
	}
}

func (s *CardService) evict(ctx context.Context, id string) {
	if s.redisClient == nil {
		return
	}
	if err := s.redisClient.Del(ctx, cardKey(id)).Err(); err != nil {
		log.Warnf("Failed to evict cached card %s: %v", id, err)
	}
}

func cardKey(id string) string {
	return "card:" + id
}
