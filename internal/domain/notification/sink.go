package notification

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_sink.go -package=mocks . Sink

import "context"

// Sink delivers notifications to external subscribers.
type Sink interface {
	Publish(ctx context.Context, n *Notification) error
}

// Hub manages in-process subscribers.
type Hub interface {
	Sink
	Subscribe(s *Subscriber)
	Unsubscribe(id string)
	Count() int
	Stop()
}
