package notify

import (
	"context"
	"errors"
)

// Recipient addresses a notification. Email may be empty when the user
// directory has no address on record.
type Recipient struct {
	UserID string
	Name   string
	Email  string
}

// Message is a rendered notification ready for delivery.
type Message struct {
	Event    string
	LessonID string
	Subject  string
	Body     string
	To       []Recipient
	Cc       []Recipient
}

// Notifier delivers messages through one channel.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Hub delivers a message through every registered channel. Errors from all
// channels are joined so a single failing channel still triggers a retry.
type Hub struct {
	notifiers []Notifier
}

// NewHub creates a Hub with the given notifiers.
func NewHub(notifiers ...Notifier) *Hub {
	return &Hub{notifiers: notifiers}
}

// Send implements Notifier.
func (h *Hub) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range h.notifiers {
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
