package notifications

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pcforge/storefront/internal/events"
)

// Sender delivers a message to a customer. The production sender is the
// retailer's messaging provider; LogSender stands in everywhere else.
type Sender interface {
	Send(userID, subject, body string) error
}

type LogSender struct {
	Logger *logrus.Logger
}

func (s *LogSender) Send(userID, subject, body string) error {
	s.Logger.WithFields(logrus.Fields{
		"user_id": userID,
		"subject": subject,
	}).Info(body)
	return nil
}

// Notifier turns order lifecycle events into customer notifications. It is
// the consumer-group handler behind the notifier binary.
type Notifier struct {
	sender Sender
	logger *logrus.Logger
}

func NewNotifier(sender Sender, logger *logrus.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		logger: logger,
	}
}

func (n *Notifier) HandleOrderEvent(topic string, event events.OrderEvent) error {
	subject, body, ok := composeMessage(topic, event)
	if !ok {
		n.logger.WithField("topic", topic).Warn("No notification template for topic")
		return nil
	}

	if err := n.sender.Send(event.UserID, subject, body); err != nil {
		return fmt.Errorf("failed to send notification for order %s: %w", event.OrderID, err)
	}

	n.logger.WithFields(logrus.Fields{
		"order_id": event.OrderID,
		"user_id":  event.UserID,
		"topic":    topic,
	}).Info("Notification dispatched")
	return nil
}

func composeMessage(topic string, event events.OrderEvent) (subject, body string, ok bool) {
	switch topic {
	case events.OrderCreatedTopic:
		return "Order received",
			fmt.Sprintf("We received your order %s for %.2f. Complete payment to start processing.", event.OrderID, event.TotalAmount),
			true
	case events.OrderPaidTopic:
		return "Payment confirmed",
			fmt.Sprintf("Payment for order %s is confirmed. Your build is now being processed.", event.OrderID),
			true
	case events.OrderCancelledTopic:
		return "Order cancelled",
			fmt.Sprintf("Order %s has been cancelled and reserved stock released.", event.OrderID),
			true
	case events.OrderStatusChangedTopic:
		body := fmt.Sprintf("Order %s is now %s.", event.OrderID, event.Status)
		if event.TrackingNumber != "" {
			body = fmt.Sprintf("Order %s is now %s. Tracking number: %s.", event.OrderID, event.Status, event.TrackingNumber)
		}
		return "Order update", body, true
	}
	return "", "", false
}
