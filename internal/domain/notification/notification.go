package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/p2pmarket/marketd/internal/protocol"
)

var (
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrChannelFull        = errors.New("subscriber channel full")
)

// Notification is the uniform event emitted after an incoming message is applied.
type Notification struct {
	NotificationID uuid.UUID           `json:"notificationId"`
	Event          protocol.ActionType `json:"event"`
	ObjectID       uuid.UUID           `json:"objectId"`
	ObjectHash     string              `json:"objectHash"`
	From           string              `json:"from"`
	To             string              `json:"to"`
	Target         string              `json:"target,omitempty"`
	MsgID          string              `json:"msgid,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
}

// New creates a notification for an applied object.
func New(event protocol.ActionType, objectID uuid.UUID, objectHash, from, to, target string) *Notification {
	return &Notification{
		NotificationID: uuid.New(),
		Event:          event,
		ObjectID:       objectID,
		ObjectHash:     objectHash,
		From:           from,
		To:             to,
		Target:         target,
		CreatedAt:      time.Now().UTC(),
	}
}

// Fanout publishes to every sink and joins their errors.
type Fanout []Sink

// Publish sends n to every sink.
func (f Fanout) Publish(ctx context.Context, n *Notification) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscriber is a local consumer of notifications, such as an event stream.
type Subscriber struct {
	ID           string
	Addresses    []string
	Events       []protocol.ActionType
	SubscribedAt time.Time
	C            chan *Notification
}

// NewSubscriber creates a subscriber. Empty filters match everything.
func NewSubscriber(id string, addresses []string, events []protocol.ActionType) *Subscriber {
	return &Subscriber{
		ID:           id,
		Addresses:    addresses,
		Events:       events,
		SubscribedAt: time.Now().UTC(),
		C:            make(chan *Notification, 100),
	}
}

// Close closes the subscriber channel.
func (s *Subscriber) Close() {
	close(s.C)
}

// Wants reports whether n passes the subscriber filters.
func (s *Subscriber) Wants(n *Notification) bool {
	if len(s.Events) > 0 {
		found := false
		for _, e := range s.Events {
			if e == n.Event {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(s.Addresses) == 0 {
		return true
	}
	for _, a := range s.Addresses {
		if a == n.To || a == n.From {
			return true
		}
	}
	return false
}
