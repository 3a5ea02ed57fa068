package events

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/pcforge/storefront/pkg/models"
)

const (
	OrderCreatedTopic       = "order.created"
	OrderPaidTopic          = "order.paid"
	OrderCancelledTopic     = "order.cancelled"
	OrderStatusChangedTopic = "order.status_changed"
)

// OrderEvent is the single payload shape published on every order lifecycle
// topic; the topic carries the event kind.
type OrderEvent struct {
	OrderID        string    `json:"order_id"`
	UserID         string    `json:"user_id"`
	Status         string    `json:"status"`
	PaymentStatus  string    `json:"payment_status"`
	TotalAmount    float64   `json:"total_amount"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	TrackingNumber string    `json:"tracking_number,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	EventTime      time.Time `json:"event_time"`
}

type KafkaProducer struct {
	producer sarama.SyncProducer
	logger   *logrus.Logger
}

func NewKafkaProducer(brokers string, logger *logrus.Logger) (*KafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(strings.Split(brokers, ","), config)
	if err != nil {
		return nil, err
	}

	return &KafkaProducer{
		producer: producer,
		logger:   logger,
	}, nil
}

func (p *KafkaProducer) OrderCreated(order *models.Order) error {
	return p.publish(OrderCreatedTopic, eventFromOrder(order))
}

func (p *KafkaProducer) OrderPaid(order *models.Order) error {
	return p.publish(OrderPaidTopic, eventFromOrder(order))
}

func (p *KafkaProducer) OrderCancelled(order *models.Order) error {
	return p.publish(OrderCancelledTopic, eventFromOrder(order))
}

func (p *KafkaProducer) OrderStatusChanged(order *models.Order, previous models.OrderStatus) error {
	event := eventFromOrder(order)
	event.PreviousStatus = string(previous)
	return p.publish(OrderStatusChangedTopic, event)
}

func (p *KafkaProducer) publish(topic string, event OrderEvent) error {
	event.EventTime = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.OrderID),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithField("topic", topic).Error("Failed to send message to Kafka")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"topic":     topic,
		"partition": partition,
		"offset":    offset,
		"order_id":  event.OrderID,
	}).Info("Event published to Kafka")

	return nil
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}

func eventFromOrder(order *models.Order) OrderEvent {
	return OrderEvent{
		OrderID:        order.ID,
		UserID:         order.UserID,
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		TotalAmount:    order.TotalAmount,
		TrackingNumber: order.TrackingNumber,
		CreatedAt:      order.CreatedAt,
	}
}
