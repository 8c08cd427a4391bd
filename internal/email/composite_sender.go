package email

import (
	"context"
	"errors"
	"fmt"
)

// CompositeEmailSender delivers every message through each of its senders.
type CompositeEmailSender struct {
	senders []Sender
}

func NewCompositeEmailSender(senders ...Sender) *CompositeEmailSender {
	return &CompositeEmailSender{senders: senders}
}

func (cs *CompositeEmailSender) AddSender(sender Sender) {
	if sender != nil {
		cs.senders = append(cs.senders, sender)
	}
}

// Send tries every sender and joins the failures.
func (cs *CompositeEmailSender) Send(ctx context.Context, msg Message) error {
	if len(cs.senders) == 0 {
		return fmt.Errorf("no senders configured in CompositeEmailSender")
	}
	var errs []error
	for _, sender := range cs.senders {
		if err := sender.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("composite email send failed: %w", errors.Join(errs...))
	}
	return nil
}
