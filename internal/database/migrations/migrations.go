package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-booking/internal/models"
)

// Migrate creates every table the service owns. CreateTable with IfNotExists
// keeps startup idempotent; column changes go through new releases, not
// in-place drops.
func Migrate(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{
		(*models.User)(nil),
		(*models.Event)(nil),
		(*models.Booking)(nil),
		(*models.Payment)(nil),
		(*models.CorrelationEntry)(nil),
		(*models.PaymentAlert)(nil),
		(*models.Ticket)(nil),
	}

	for _, table := range tables {
		if _, err := db.NewCreateTable().Model(table).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", table, err)
		}
	}

	return nil
}
