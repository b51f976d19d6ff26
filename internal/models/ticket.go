package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID  string    `bun:"ticket_id,pk" json:"ticket_id"`
	BookingID string    `bun:"booking_id,notnull" json:"booking_id"`
	EventID   string    `bun:"event_id,notnull" json:"event_id"`
	UserID    string    `bun:"user_id,notnull" json:"user_id"`
	QRCode    []byte    `bun:"qr_code" json:"qr_code"`
	IssuedAt  time.Time `bun:"issued_at" json:"issued_at"`
}
