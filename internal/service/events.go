package service

import "venture-plan-server/internal/domain"

// EventPublisher fans venture events out to live subscribers.
type EventPublisher interface {
	PublishVentureEvent(event domain.VentureEvent)
}

func publish(p EventPublisher, event domain.VentureEvent) {
	if p == nil {
		return
	}
	p.PublishVentureEvent(event)
}
