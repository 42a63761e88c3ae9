package services

import (
	"context"
	"sync"

	"cardex-server/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const savedContactsCollection = "saved_contacts"

// LedgerStore persists one duplicate free set of card ids per owner.
type LedgerStore interface {
	IDs(ctx context.Context, ownerID string) ([]string, error)
	// AddToSet reports whether targetID was newly added. It must be atomic
	// with respect to concurrent calls for the same owner.
	AddToSet(ctx context.Context, ownerID, targetID string) (bool, error)
	Pull(ctx context.Context, ownerID, targetID string) error
	Drop(ctx context.Context, ownerID string) error
}

type MongoLedgerStore struct {
	collection *mongo.Collection
}

func NewMongoLedgerStore(db *mongo.Database) *MongoLedgerStore {
	return &MongoLedgerStore{collection: db.Collection(savedContactsCollection)}
}

func (s *MongoLedgerStore) IDs(ctx context.Context, ownerID string) ([]string, error) {
	var doc models.SavedContacts
	err := s.collection.FindOne(ctx, bson.M{"_id": ownerID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	// Ledgers written by older clients stored a plain array.
	return dedupe(doc.CardIDs), nil
}

func (s *MongoLedgerStore) AddToSet(ctx context.Context, ownerID, targetID string) (bool, error) {
	update := bson.M{
		"$addToSet": bson.M{
			"card_ids": targetID,
		},
	}
	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": ownerID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0 || res.UpsertedCount > 0, nil
}

func (s *MongoLedgerStore) Pull(ctx context.Context, ownerID, targetID string) error {
	update := bson.M{
		"$pull": bson.M{
			"card_ids": targetID,
		},
	}
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": ownerID}, update)
	return err
}

func (s *MongoLedgerStore) Drop(ctx context.Context, ownerID string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": ownerID})
	return err
}

type MemoryLedgerStore struct {
	mu     sync.Mutex
	ledger map[string][]string
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{ledger: make(map[string][]string)}
}

func (s *MemoryLedgerStore) IDs(ctx context.Context, ownerID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.ledger[ownerID]))
	copy(ids, s.ledger[ownerID])
	return ids, nil
}

func (s *MemoryLedgerStore) AddToSet(ctx context.Context, ownerID, targetID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.ledger[ownerID] {
		if id == targetID {
			return false, nil
		}
	}
	s.ledger[ownerID] = append(s.ledger[ownerID], targetID)
	return true, nil
}

func (s *MemoryLedgerStore) Pull(ctx context.Context, ownerID, targetID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.ledger[ownerID]
	for i, id := range ids {
		if id == targetID {
			s.ledger[ownerID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryLedgerStore) Drop(ctx context.Context, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ledger, ownerID)
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
