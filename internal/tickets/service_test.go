package tickets_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/tickets"
	ticketdb "ms-booking/internal/tickets/db"
	"ms-booking/internal/tickets/qr"
)

func setupTestService(t *testing.T) (*tickets.Service, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := bunDB.NewCreateTable().Model((*models.Ticket)(nil)).Exec(context.Background()); err != nil {
		t.Fatalf("Failed to create ticket table: %v", err)
	}

	store := &ticketdb.DB{Bun: bunDB}
	svc := tickets.NewService(store, qr.NewQRGenerator("test-secret-key"), logger.NewLogger())
	return svc, bunDB
}

func TestIssueForBooking(t *testing.T) {
	svc, bunDB := setupTestService(t)
	defer bunDB.Close()
	ctx := context.Background()

	booking := models.Booking{
		BookingID: "booking-1",
		UserID:    "user-1",
		EventID:   "event-1",
		Quantity:  3,
		Status:    models.BookingPaid,
	}

	err := svc.IssueForBooking(ctx, booking)
	require.NoError(t, err)

	issued, err := svc.ListByBooking(ctx, "booking-1")
	require.NoError(t, err)
	require.Len(t, issued, 3)

	for _, ticket := range issued {
		assert.NotEmpty(t, ticket.TicketID)
		assert.Equal(t, "booking-1", ticket.BookingID)
		assert.Equal(t, "event-1", ticket.EventID)
		assert.Equal(t, "user-1", ticket.UserID)
		assert.NotEmpty(t, ticket.QRCode, "every ticket carries a QR image")
	}
}

func TestListByBooking_Empty(t *testing.T) {
	svc, bunDB := setupTestService(t)
	defer bunDB.Close()

	issued, err := svc.ListByBooking(context.Background(), "booking-none")
	require.NoError(t, err)
	assert.NotNil(t, issued)
	assert.Empty(t, issued)
}
