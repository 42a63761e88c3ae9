package models

import "time"

// ExchangeState is a step of the card exchange state machine.
type ExchangeState string

const (
	StateIdle       ExchangeState = "idle"
	StatePresenting ExchangeState = "presenting"
	StateDetected   ExchangeState = "detected"
	StateResolving  ExchangeState = "resolving"
	StateSaved      ExchangeState = "saved"
	StateFailed     ExchangeState = "failed"
)

// Terminal reports whether s ends an exchange attempt.
func (s ExchangeState) Terminal() bool {
	return s == StateSaved || s == StateFailed
}

// Transport is the channel a card identifier travels over.
type Transport string

const (
	TransportQR      Transport = "qr"
	TransportNFC     Transport = "nfc"
	TransportGesture Transport = "gesture"
)

func (t Transport) Valid() bool {
	switch t {
	case TransportQR, TransportNFC, TransportGesture:
		return true
	}
	return false
}

// ExchangeSnapshot is the externally visible view of an exchange attempt.
type ExchangeSnapshot struct {
	ID         string        `json:"id"`
	ViewerID   string        `json:"viewer_id"`
	Transport  Transport     `json:"transport"`
	State      ExchangeState `json:"state"`
	DetectedID string        `json:"detected_id,omitempty"`
	Result     AddResult     `json:"result,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	ErrorCode  string        `json:"error_code,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Presentation is what the presenting side displays or transmits.
type Presentation struct {
	Transport Transport         `json:"transport"`
	Text      string            `json:"text,omitempty"`
	NDEF      []byte            `json:"ndef,omitempty"`
	Bundle    map[string]string `json:"bundle,omitempty"`
}

// ExchangeEvent is published when an exchange saves a contact.
type ExchangeEvent struct {
	ExchangeID string    `json:"exchange_id"`
	ViewerID   string    `json:"viewer_id"`
	CardID     string    `json:"card_id"`
	Transport  Transport `json:"transport"`
	Result     AddResult `json:"result"`
	At         time.Time `json:"at"`
}

// CardEvent is published when a card is saved or deleted by its owner.
type CardEvent struct {
	CardID  string    `json:"card_id"`
	Deleted bool      `json:"deleted,omitempty"`
	At      time.Time `json:"at"`
}
