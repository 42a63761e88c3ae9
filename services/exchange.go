package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"cardex-server/models"
	"cardex-server/utils/errors"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ContactAdder is the ledger write used by an exchange.
type ContactAdder interface {
	Add(ctx context.Context, ownerID, targetID string) (models.AddResult, error)
}

// Exchange is one card exchange attempt of a viewer:
//
//	Idle -> Presenting -> Detected -> Resolving -> Saved | Failed -> Idle
//
// A failed attempt never writes to the ledger. Abandon is valid in every
// state and always lands in Idle.
type Exchange struct {
	id        string
	viewerID  string
	transport models.Transport

	ledger ContactAdder
	cards  CardGetter
	events EventPublisher
	now    func() time.Time

	mu         sync.Mutex
	state      models.ExchangeState
	detectedID string
	result     models.AddResult
	reason     string
	errCode    string
	updatedAt  time.Time
	cancel     context.CancelFunc
	generation uint64
}

func newExchange(viewerID string, transport models.Transport, ledger ContactAdder, cards CardGetter, events EventPublisher) *Exchange {
	if events == nil {
		events = NopPublisher{}
	}
	e := &Exchange{
		id:        uuid.New().String(),
		viewerID:  viewerID,
		transport: transport,
		ledger:    ledger,
		cards:     cards,
		events:    events,
		now:       time.Now,
		state:     models.StateIdle,
	}
	e.updatedAt = e.now()
	return e
}

func (e *Exchange) ID() string { return e.id }

// Snapshot returns the current externally visible state.
func (e *Exchange) Snapshot() models.ExchangeSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Exchange) snapshotLocked() models.ExchangeSnapshot {
	return models.ExchangeSnapshot{
		ID:         e.id,
		ViewerID:   e.viewerID,
		Transport:  e.transport,
		State:      e.state,
		DetectedID: e.detectedID,
		Result:     e.result,
		Reason:     e.reason,
		ErrorCode:  e.errCode,
		UpdatedAt:  e.updatedAt,
	}
}

// Present arms the transport with the viewer's own identifier.
func (e *Exchange) Present() (models.Presentation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != models.StateIdle && e.state != models.StatePresenting {
		return models.Presentation{}, e.illegalLocked("present")
	}
	p, err := Present(e.transport, e.viewerID)
	if err != nil {
		return models.Presentation{}, err
	}
	e.setStateLocked(models.StatePresenting)
	return p, nil
}

// Detect records the identifier read from the transport. Malformed
// payloads and the viewer's own identifier end the attempt as Failed.
func (e *Exchange) Detect(payload DetectPayload) (models.ExchangeSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != models.StateIdle && e.state != models.StatePresenting {
		return e.snapshotLocked(), e.illegalLocked("detect")
	}

	id, err := DecodeIdentifier(e.transport, payload)
	if err != nil {
		e.failLocked(err)
		return e.snapshotLocked(), nil
	}
	e.detectedID = id
	if id == e.viewerID {
		e.failLocked(errors.ErrSelfExchange)
		return e.snapshotLocked(), nil
	}
	e.setStateLocked(models.StateDetected)
	return e.snapshotLocked(), nil
}

// Resolve saves the detected card to the viewer's ledger. The lock is not
// held across I/O; an Abandon during that window cancels ctx and the
// outcome is discarded.
func (e *Exchange) Resolve(ctx context.Context) (models.ExchangeSnapshot, error) {
	e.mu.Lock()
	if e.state != models.StateDetected {
		err := e.illegalLocked("resolve")
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap, err
	}
	target := e.detectedID
	if strings.TrimSpace(target) == "" {
		e.failLocked(errors.Withf(errors.ErrMalformedPayload, "identifier is empty"))
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap, nil
	}
	if target == e.viewerID {
		e.failLocked(errors.ErrSelfExchange)
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.generation++
	gen := e.generation
	e.setStateLocked(models.StateResolving)
	e.mu.Unlock()
	defer cancel()

	result, err := e.save(ctx, target)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != gen || e.state != models.StateResolving {
		log.Infof("Exchange %s abandoned while resolving", e.id)
		return e.snapshotLocked(), nil
	}
	e.cancel = nil
	if err != nil {
		e.failLocked(err)
		return e.snapshotLocked(), nil
	}
	e.result = result
	e.setStateLocked(models.StateSaved)
	e.events.PublishExchangeEvent(models.ExchangeEvent{
		ExchangeID: e.id,
		ViewerID:   e.viewerID,
		CardID:     target,
		Transport:  e.transport,
		Result:     result,
		At:         e.updatedAt,
	})
	return e.snapshotLocked(), nil
}

func (e *Exchange) save(ctx context.Context, target string) (models.AddResult, error) {
	if _, err := e.cards.Get(ctx, target); err != nil {
		return "", err
	}
	return e.ledger.Add(ctx, e.viewerID, target)
}

// Fail records a transport failure reported by the client, such as an NFC
// read timeout or a denied camera permission.
func (e *Exchange) Fail(reason string) (models.ExchangeSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Terminal() || e.state == models.StateResolving {
		return e.snapshotLocked(), e.illegalLocked("fail")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "transport error"
	}
	e.reason = reason
	e.errCode = "TRANSPORT_ERROR"
	e.setStateLocked(models.StateFailed)
	return e.snapshotLocked(), nil
}

// Reset returns a finished exchange to Idle so it can be presented again.
func (e *Exchange) Reset() (models.ExchangeSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Terminal() {
		return e.snapshotLocked(), e.illegalLocked("reset")
	}
	e.detectedID = ""
	e.result = ""
	e.reason = ""
	e.errCode = ""
	e.setStateLocked(models.StateIdle)
	return e.snapshotLocked(), nil
}

// Abandon returns the exchange to Idle from any state.
func (e *Exchange) Abandon() models.ExchangeSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.generation++
	e.detectedID = ""
	e.result = ""
	e.reason = ""
	e.errCode = ""
	e.setStateLocked(models.StateIdle)
	return e.snapshotLocked()
}

func (e *Exchange) failLocked(err error) {
	apiErr := errors.Wrap(err, "EXCHANGE_FAILED", "Exchange failed", 500)
	e.errCode = apiErr.Code
	e.reason = apiErr.Message
	if apiErr.Details != "" {
		e.reason += ": " + apiErr.Details
	}
	e.result = ""
	e.setStateLocked(models.StateFailed)
	log.Infof("Exchange %s failed: %s", e.id, e.reason)
}

func (e *Exchange) illegalLocked(op string) error {
	return errors.Withf(errors.ErrConflict, "cannot %s exchange in state %s", op, e.state)
}

func (e *Exchange) setStateLocked(s models.ExchangeState) {
	e.state = s
	e.updatedAt = e.now()
}

func (e *Exchange) lastUpdate() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updatedAt
}
