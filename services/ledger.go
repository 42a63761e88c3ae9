package services

import (
	"context"
	"strings"

	"cardex-server/models"
	"cardex-server/utils/errors"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const savedCardsConcurrency = 8

// CardGetter resolves a single card by id.
type CardGetter interface {
	Get(ctx context.Context, id string) (models.Card, error)
}

// SavedContactsLedger is the per-user set of saved card ids.
type SavedContactsLedger struct {
	store LedgerStore
	cards CardGetter
}

// SavedCards is the resolved form of a ledger.
type SavedCards struct {
	Cards   []models.Card `json:"cards"`
	Missing []string      `json:"missing,omitempty"`
}

func NewSavedContactsLedger(store LedgerStore, cards CardGetter) *SavedContactsLedger {
	return &SavedContactsLedger{store: store, cards: cards}
}

// Add saves targetID for ownerID. Adding an id twice is a no-op that
// reports AlreadyPresent.
func (l *SavedContactsLedger) Add(ctx context.Context, ownerID, targetID string) (models.AddResult, error) {
	if err := validateLedgerIDs(ownerID, targetID); err != nil {
		return "", err
	}
	added, err := l.store.AddToSet(ctx, ownerID, targetID)
	if err != nil {
		log.Errorf("Failed to add %s to saved contacts of %s: %v", targetID, ownerID, err)
		return "", errors.WithDetails(errors.ErrPersistence, err)
	}
	if !added {
		return models.AlreadyPresent, nil
	}
	log.Infof("User %s saved card %s", ownerID, targetID)
	return models.Added, nil
}

// Remove deletes targetID from the ledger. Absent ids and absent ledgers
// are not errors.
func (l *SavedContactsLedger) Remove(ctx context.Context, ownerID, targetID string) error {
	if err := validateLedgerIDs(ownerID, targetID); err != nil {
		return err
	}
	if err := l.store.Pull(ctx, ownerID, targetID); err != nil {
		log.Errorf("Failed to remove %s from saved contacts of %s: %v", targetID, ownerID, err)
		return errors.WithDetails(errors.ErrPersistence, err)
	}
	return nil
}

// List returns the saved ids, empty when the owner never saved anything.
func (l *SavedContactsLedger) List(ctx context.Context, ownerID string) ([]string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, errors.ErrUnauthorized
	}
	ids, err := l.store.IDs(ctx, ownerID)
	if err != nil {
		return nil, errors.WithDetails(errors.ErrPersistence, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Cards resolves the ledger to cards in ledger order. Ids whose card no
// longer exists are reported in Missing instead of failing the call.
func (l *SavedContactsLedger) Cards(ctx context.Context, ownerID string) (SavedCards, error) {
	ids, err := l.List(ctx, ownerID)
	if err != nil {
		return SavedCards{}, err
	}

	resolved := make([]*models.Card, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(savedCardsConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			card, err := l.cards.Get(gctx, id)
			if errors.Is(err, errors.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			card.Category = Classify(card.Role)
			card.Color = card.DisplayColor()
			resolved[i] = &card
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SavedCards{}, err
	}

	out := SavedCards{Cards: []models.Card{}}
	for i, card := range resolved {
		if card == nil {
			out.Missing = append(out.Missing, ids[i])
			continue
		}
		out.Cards = append(out.Cards, *card)
	}
	return out, nil
}

// Drop deletes the owner's ledger entirely.
func (l *SavedContactsLedger) Drop(ctx context.Context, ownerID string) error {
	if err := l.store.Drop(ctx, ownerID); err != nil {
		return errors.WithDetails(errors.ErrPersistence, err)
	}
	return nil
}

func validateLedgerIDs(ownerID, targetID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return errors.ErrUnauthorized
	}
	if strings.TrimSpace(targetID) == "" {
		return errors.Withf(errors.ErrInvalidInput, "card id is required")
	}
	return nil
}
