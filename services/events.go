package services

import "cardex-server/models"

// EventPublisher fans domain events out to other instances.
type EventPublisher interface {
	PublishCardEvent(e models.CardEvent)
	PublishExchangeEvent(e models.ExchangeEvent)
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishCardEvent(models.CardEvent)         {}
func (NopPublisher) PublishExchangeEvent(models.ExchangeEvent) {}
