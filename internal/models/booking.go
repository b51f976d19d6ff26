package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "Pending"
	BookingPaid      BookingStatus = "Paid"
	BookingFailed    BookingStatus = "Failed"
	BookingCancelled BookingStatus = "Cancelled"
)

// validTransitions is the closed transition table for bookings. A booking is
// created Pending and moves to exactly one terminal state; every write goes
// through a compare-and-set on the stored status.
var validTransitions = map[BookingStatus]map[BookingStatus]bool{
	BookingPending:   {BookingPaid: true, BookingFailed: true, BookingCancelled: true},
	BookingPaid:      {},
	BookingFailed:    {},
	BookingCancelled: {},
}

func CanTransition(from, to BookingStatus) bool {
	return validTransitions[from][to]
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	BookingID   string        `bun:"booking_id,pk" json:"booking_id"`
	UserID      string        `bun:"user_id,notnull" json:"user_id"`
	EventID     string        `bun:"event_id,notnull" json:"event_id"`
	Quantity    int           `bun:"quantity,notnull" json:"quantity"`
	TotalAmount int64         `bun:"total_amount,notnull" json:"total_amount"`
	Status      BookingStatus `bun:"booking_status,notnull" json:"booking_status"`
	CreatedAt   time.Time     `bun:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `bun:"updated_at" json:"updated_at"`
}

type BookingRequest struct {
	UserID   string `json:"user_id"`
	EventID  string `json:"event_id"`
	Quantity int    `json:"quantity"`
}

type BookingResponse struct {
	BookingID   string `json:"booking_id"`
	EventID     string `json:"event_id"`
	Quantity    int    `json:"quantity"`
	TotalAmount int64  `json:"total_amount"`
	Status      string `json:"booking_status"`
}

// BookingStatusView is the polling response joining booking and payment state.
// PaymentStatus is omitted while no payment attempt exists for the booking.
type BookingStatusView struct {
	BookingID     string `json:"booking_id"`
	Status        string `json:"booking_status"`
	PaymentStatus string `json:"payment_status,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}
