package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	EventID      string    `bun:"event_id,pk" json:"event_id"`
	Title        string    `bun:"title,notnull" json:"title"`
	Venue        string    `bun:"venue" json:"venue"`
	Category     string    `bun:"category" json:"category"`
	EventDate    time.Time `bun:"event_date,notnull" json:"event_date"`
	TicketPrice  int64     `bun:"ticket_price,notnull" json:"ticket_price"`
	TicketsTotal int       `bun:"tickets_total,notnull" json:"tickets_total"`
	TicketsSold  int       `bun:"tickets_sold,notnull,default:0" json:"tickets_sold"`
	CreatedAt    time.Time `bun:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bun:"updated_at" json:"updated_at"`
}

// TicketsAvailable is derived, never stored. tickets_sold is mutated only by
// the conditional reserve/release updates in booking/db.
func (e *Event) TicketsAvailable() int {
	return e.TicketsTotal - e.TicketsSold
}
