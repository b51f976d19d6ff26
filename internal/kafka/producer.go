package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-booking/internal/models"
)

type Producer struct {
	bookingWriter *kafka.Writer
	paymentWriter *kafka.Writer
}

func NewProducer(brokers []string, bookingTopic, paymentTopic string) *Producer {
	return &Producer{
		bookingWriter: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   bookingTopic,
		}),
		paymentWriter: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   paymentTopic,
		}),
	}
}

// PublishBookingEvent streams a booking lifecycle event, keyed by booking id.
func (p *Producer) PublishBookingEvent(eventType string, booking models.Booking) error {
	event := models.BookingEvent{
		Type:      eventType,
		BookingID: booking.BookingID,
		Booking:   &booking,
		Timestamp: time.Now(),
	}
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.bookingWriter.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(booking.BookingID),
			Value: msgBytes,
		},
	)
}

// PublishPaymentEvent streams a payment lifecycle event, keyed by booking id
// so booking and payment events for one booking land in order.
func (p *Producer) PublishPaymentEvent(eventType string, payment models.Payment) error {
	event := models.PaymentEvent{
		Type:      eventType,
		PaymentID: payment.PaymentID,
		BookingID: payment.BookingID,
		Payment:   &payment,
		Timestamp: time.Now(),
	}
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.paymentWriter.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(payment.BookingID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	if err := p.bookingWriter.Close(); err != nil {
		p.paymentWriter.Close()
		return err
	}
	return p.paymentWriter.Close()
}
