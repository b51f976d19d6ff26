package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentSuccess PaymentStatus = "Success"
	PaymentFailed  PaymentStatus = "Failed"
)

type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	PaymentID         string        `bun:"payment_id,pk" json:"payment_id"`
	BookingID         string        `bun:"booking_id,notnull" json:"booking_id"`
	Amount            int64         `bun:"amount,notnull" json:"amount"`
	Status            PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	PaymentMethod     string        `bun:"payment_method" json:"payment_method"`
	TransactionID     string        `bun:"transaction_id,nullzero" json:"transaction_id,omitempty"`
	CheckoutSessionID string        `bun:"checkout_session_id" json:"checkout_session_id"`
	CreatedAt         time.Time     `bun:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `bun:"updated_at" json:"updated_at"`
}

// CorrelationEntry maps an external checkout session to the booking it pays
// for. A row exists only while the payment result is outstanding; Claim
// removes it, which is what makes reconciliation single-shot.
type CorrelationEntry struct {
	bun.BaseModel `bun:"table:payment_correlations"`

	CheckoutSessionID string    `bun:"checkout_session_id,pk" json:"checkout_session_id"`
	BookingID         string    `bun:"booking_id,notnull" json:"booking_id"`
	CreatedAt         time.Time `bun:"created_at" json:"created_at"`
}

// PaymentAlert records reconciliation outcomes that need an operator:
// amount mismatches and payments that succeeded for a booking no longer
// claimable.
type PaymentAlert struct {
	bun.BaseModel `bun:"table:payment_alerts"`

	AlertID           string    `bun:"alert_id,pk" json:"alert_id"`
	BookingID         string    `bun:"booking_id" json:"booking_id"`
	CheckoutSessionID string    `bun:"checkout_session_id" json:"checkout_session_id"`
	TransactionID     string    `bun:"transaction_id,nullzero" json:"transaction_id,omitempty"`
	Amount            int64     `bun:"amount" json:"amount"`
	Reason            string    `bun:"reason,notnull" json:"reason"`
	CreatedAt         time.Time `bun:"created_at" json:"created_at"`
}

const (
	AlertAmountMismatch = "amount_mismatch"
	AlertLateSuccess    = "late_success"
)

type PaymentRequest struct {
	BookingID string `json:"booking_id"`
	Phone     string `json:"phone"`
}

type PaymentResponse struct {
	BookingID         string `json:"booking_id"`
	PaymentID         string `json:"payment_id"`
	CheckoutSessionID string `json:"checkout_session_id"`
	CustomerMessage   string `json:"customer_message,omitempty"`
}

// PaymentNotification is the normalized form of an inbound gateway callback
// after the transport envelope has been unpacked.
type PaymentNotification struct {
	CheckoutSessionID string
	ResultCode        int
	ResultDesc        string
	Amount            int64
	TransactionID     string
}

// ReconcileOutcome classifies what HandleNotification did with a callback.
type ReconcileOutcome string

const (
	OutcomeAccepted           ReconcileOutcome = "accepted"
	OutcomeDuplicateOrUnknown ReconcileOutcome = "duplicate_or_unknown"
	OutcomeRejected           ReconcileOutcome = "rejected"
)
