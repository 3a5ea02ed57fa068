package notifications

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcforge/storefront/internal/events"
)

type recordingSender struct {
	userIDs  []string
	subjects []string
	bodies   []string
	fail     bool
}

func (s *recordingSender) Send(userID, subject, body string) error {
	if s.fail {
		return errors.New("provider rejected message")
	}
	s.userIDs = append(s.userIDs, userID)
	s.subjects = append(s.subjects, subject)
	s.bodies = append(s.bodies, body)
	return nil
}

func testNotifier() (*Notifier, *recordingSender) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	sender := &recordingSender{}
	return NewNotifier(sender, logger), sender
}

func TestHandleOrderEvent(t *testing.T) {
	event := events.OrderEvent{
		OrderID:     "order-1",
		UserID:      "alice",
		Status:      "SHIPPED",
		TotalAmount: 1748.75,
	}

	tests := []struct {
		topic   string
		subject string
	}{
		{events.OrderCreatedTopic, "Order received"},
		{events.OrderPaidTopic, "Payment confirmed"},
		{events.OrderCancelledTopic, "Order cancelled"},
		{events.OrderStatusChangedTopic, "Order update"},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			notifier, sender := testNotifier()
			require.NoError(t, notifier.HandleOrderEvent(tt.topic, event))
			require.Len(t, sender.subjects, 1)
			assert.Equal(t, tt.subject, sender.subjects[0])
			assert.Equal(t, []string{"alice"}, sender.userIDs)
			assert.Contains(t, sender.bodies[0], "order-1")
		})
	}
}

func TestStatusChangeIncludesTracking(t *testing.T) {
	notifier, sender := testNotifier()
	require.NoError(t, notifier.HandleOrderEvent(events.OrderStatusChangedTopic, events.OrderEvent{
		OrderID:        "order-1",
		UserID:         "alice",
		Status:         "SHIPPED",
		TrackingNumber: "TRK-123",
	}))
	assert.Contains(t, sender.bodies[0], "TRK-123")
}

func TestUnknownTopicIsIgnored(t *testing.T) {
	notifier, sender := testNotifier()
	require.NoError(t, notifier.HandleOrderEvent("order.unknown", events.OrderEvent{OrderID: "order-1"}))
	assert.Empty(t, sender.subjects)
}

func TestSenderFailureIsSurfaced(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	notifier := NewNotifier(&recordingSender{fail: true}, logger)

	err := notifier.HandleOrderEvent(events.OrderPaidTopic, events.OrderEvent{OrderID: "order-1", UserID: "alice"})
	assert.Error(t, err)
}
