package pubsub

import "context"

type EventType string

const (
	CreatedEvent EventType = "created"
	UpdatedEvent EventType = "updated"
	DeletedEvent EventType = "deleted"
)

// Event pairs a payload with what happened to it.
type Event[T any] struct {
	Type    EventType
	Payload T
}

// Subscriber is the read side of a Broker, embeddable in service interfaces.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}
