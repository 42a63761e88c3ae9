package broker

import (
	"encoding/json"

	"cardex-server/models"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const (
	TopicCardUpdated  = "cards.updated"
	TopicExchangeSave = "exchange.saved"
)

// Connect dials NATS. An empty url means the broker is disabled and
// (nil, nil) is returned.
func Connect(url, token string) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}
	opts := []nats.Option{
		nats.Name("cardex-server"),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	return nats.Connect(url, opts...)
}

// Broker publishes card and exchange events and relays card updates from
// other instances. A Broker without a connection only logs.
type Broker struct {
	Conn       *nats.Conn
	instanceID string
}

type envelope[T any] struct {
	Origin string `json:"origin"`
	Event  T      `json:"event"`
}

func NewBroker(nc *nats.Conn, instanceID string) *Broker {
	return &Broker{Conn: nc, instanceID: instanceID}
}

func (b *Broker) PublishCardEvent(e models.CardEvent) {
	payload, err := json.Marshal(envelope[models.CardEvent]{Origin: b.instanceID, Event: e})
	if err != nil {
		log.Errorf("error [PublishCardEvent] unable to marshal event for card %s: %s", e.CardID, err)
		return
	}
	b.Publish(TopicCardUpdated, payload)
}

func (b *Broker) PublishExchangeEvent(e models.ExchangeEvent) {
	payload, err := json.Marshal(envelope[models.ExchangeEvent]{Origin: b.instanceID, Event: e})
	if err != nil {
		log.Errorf("error [PublishExchangeEvent] unable to marshal exchange %s: %s", e.ExchangeID, err)
		return
	}
	b.Publish(TopicExchangeSave, payload)
}

// SubscribeCardUpdates calls onUpdate for card events published by other
// instances. Events this instance published are ignored.
func (b *Broker) SubscribeCardUpdates(onUpdate func(models.CardEvent)) (*nats.Subscription, error) {
	if b.Conn == nil {
		return nil, nil
	}
	return b.Conn.Subscribe(TopicCardUpdated, func(msg *nats.Msg) {
		b.handleCardUpdate(msg, onUpdate)
	})
}

func (b *Broker) handleCardUpdate(msg *nats.Msg, onUpdate func(models.CardEvent)) {
	var env envelope[models.CardEvent]
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		log.Errorf("Error nats message on %s: %s", msg.Subject, err)
		return
	}
	if env.Origin == b.instanceID {
		return
	}
	onUpdate(env.Event)
}

func (b *Broker) Publish(topic string, payload []byte) error {
	if b.Conn == nil {
		log.Debugf("broker disabled, dropping message on %s", topic)
		return nil
	}
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}
	return nil
}

func (b *Broker) Close() {
	if b.Conn != nil {
		b.Conn.Drain()
	}
}
