package models

// SavedContacts is the ledger document of one owner. CardIDs is kept
// duplicate free by the store.
type SavedContacts struct {
	OwnerID string   `json:"owner_id" bson:"_id"`
	CardIDs []string `json:"card_ids" bson:"card_ids"`
}

// AddResult distinguishes a new saved contact from one already present.
type AddResult string

const (
	Added          AddResult = "added"
	AlreadyPresent AddResult = "already_present"
)
