package services

import (
	"context"
	"fmt"
	"sync"

	"cardex-server/models"
	"cardex-server/utils/errors"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const cardsCollection = "cards"

// CardStore is the persistence boundary of the card repository.
type CardStore interface {
	// List returns every well-formed card in storage order and the number
	// of documents skipped because they failed to decode or validate.
	List(ctx context.Context) ([]models.Card, int, error)
	Get(ctx context.Context, id string) (models.Card, error)
	Replace(ctx context.Context, card models.Card) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// storedCardValid is the minimum a stored document needs to be shown.
func storedCardValid(c models.Card) bool {
	return c.ID != "" && c.Name != ""
}

type MongoCardStore struct {
	collection *mongo.Collection
}

func NewMongoCardStore(db *mongo.Database) *MongoCardStore {
	return &MongoCardStore{collection: db.Collection(cardsCollection)}
}

func (s *MongoCardStore) List(ctx context.Context) ([]models.Card, int, error) {
	cursor, err := s.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "$natural", Value: 1}}))
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	cards := []models.Card{}
	skipped := 0
	for cursor.Next(ctx) {
		var card models.Card
		if err := cursor.Decode(&card); err != nil {
			log.Warnf("Skipping malformed card document %v: %v", cursor.Current.Lookup("_id"), err)
			skipped++
			continue
		}
		if !storedCardValid(card) {
			log.Warnf("Skipping incomplete card document %q", card.ID)
			skipped++
			continue
		}
		cards = append(cards, card)
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, err
	}
	return cards, skipped, nil
}

func (s *MongoCardStore) Get(ctx context.Context, id string) (models.Card, error) {
	var card models.Card
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&card)
	if err == mongo.ErrNoDocuments {
		return models.Card{}, errors.Withf(errors.ErrNotFound, "card %s", id)
	}
	if err != nil {
		return models.Card{}, err
	}
	return card, nil
}

// Replace writes the whole document; there is no field level merge.
func (s *MongoCardStore) Replace(ctx context.Context, card models.Card) error {
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": card.ID}, card, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoCardStore) Delete(ctx context.Context, id string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *MongoCardStore) Count(ctx context.Context) (int64, error) {
	return s.collection.CountDocuments(ctx, bson.M{})
}

// MemoryCardStore keeps cards in process memory in insertion order.
type MemoryCardStore struct {
	mu    sync.RWMutex
	order []string
	cards map[string]models.Card
}

func NewMemoryCardStore() *MemoryCardStore {
	return &MemoryCardStore{cards: make(map[string]models.Card)}
}

func (s *MemoryCardStore) List(ctx context.Context) ([]models.Card, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	cards := make([]models.Card, 0, len(s.order))
	skipped := 0
	for _, id := range s.order {
		card := s.cards[id]
		if !storedCardValid(card) {
			skipped++
			continue
		}
		cards = append(cards, card)
	}
	return cards, skipped, nil
}

func (s *MemoryCardStore) Get(ctx context.Context, id string) (models.Card, error) {
	if err := ctx.Err(); err != nil {
		return models.Card{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	card, ok := s.cards[id]
	if !ok {
		return models.Card{}, errors.Withf(errors.ErrNotFound, "card %s", id)
	}
	return card, nil
}

func (s *MemoryCardStore) Replace(ctx context.Context, card models.Card) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if card.ID == "" {
		return fmt.Errorf("card without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[card.ID]; !ok {
		s.order = append(s.order, card.ID)
	}
	s.cards[card.ID] = card
	return nil
}

func (s *MemoryCardStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[id]; !ok {
		return nil
	}
	delete(s.cards, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryCardStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.cards)), nil
}
