package db_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-booking/internal/booking/db"
	"ms-booking/internal/models"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	// Connect to an in-memory SQLite DB for testing
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	// A single connection keeps every goroutine on the same in-memory DB
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.User)(nil),
		(*models.Event)(nil),
		(*models.Booking)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(ctx); err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}

	return &db.DB{Bun: bunDB}, bunDB
}

func insertEvent(t *testing.T, bunDB *bun.DB, eventID string, price int64, total, sold int) {
	event := models.Event{
		EventID:      eventID,
		Title:        "Test Concert",
		Venue:        "Arena",
		EventDate:    time.Now().Add(72 * time.Hour),
		TicketPrice:  price,
		TicketsTotal: total,
		TicketsSold:  sold,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&event).Exec(context.Background())
	require.NoError(t, err)
}

func insertBooking(t *testing.T, bunDB *bun.DB, booking models.Booking) {
	_, err := bunDB.NewInsert().Model(&booking).Exec(context.Background())
	require.NoError(t, err)
}

func TestReserveTickets_RefusesBeyondCapacity(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	// 9 of 10 tickets already sold, so only 1 remains
	insertEvent(t, bunDB, "event-1", 650, 10, 9)

	// Requesting 2 must fail even though 1 is still available
	reserved, err := store.ReserveTickets(ctx, "event-1", 2)
	assert.NoError(t, err)
	assert.False(t, reserved)

	// The failed attempt must not have consumed anything
	event, err := store.GetEvent(ctx, "event-1")
	require.NoError(t, err)
	assert.Equal(t, 1, event.TicketsAvailable())

	// Requesting the last ticket succeeds
	reserved, err = store.ReserveTickets(ctx, "event-1", 1)
	assert.NoError(t, err)
	assert.True(t, reserved)

	// Now the event is sold out
	reserved, err = store.ReserveTickets(ctx, "event-1", 1)
	assert.NoError(t, err)
	assert.False(t, reserved)

	event, err = store.GetEvent(ctx, "event-1")
	require.NoError(t, err)
	assert.Equal(t, 0, event.TicketsAvailable())
}

func TestReserveTickets_ConcurrentNeverOversells(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	insertEvent(t, bunDB, "event-rush", 500, 5, 0)

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reserved, err := store.ReserveTickets(ctx, "event-rush", 1)
			if err == nil && reserved {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, successes, "exactly the available tickets should be reserved")

	event, err := store.GetEvent(ctx, "event-rush")
	require.NoError(t, err)
	assert.Equal(t, 5, event.TicketsSold)
	assert.Equal(t, 0, event.TicketsAvailable())
}

func TestReleaseTickets_GuardsAgainstNegativeSold(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	insertEvent(t, bunDB, "event-2", 650, 10, 3)

	// Releasing more than were ever sold is refused
	err := store.ReleaseTickets(ctx, "event-2", 4)
	assert.Error(t, err)

	event, err := store.GetEvent(ctx, "event-2")
	require.NoError(t, err)
	assert.Equal(t, 3, event.TicketsSold)

	// A valid release hands the tickets back
	err = store.ReleaseTickets(ctx, "event-2", 3)
	assert.NoError(t, err)

	event, err = store.GetEvent(ctx, "event-2")
	require.NoError(t, err)
	assert.Equal(t, 0, event.TicketsSold)
}

func TestUpdateBookingStatus_CompareAndSet(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	bookingID := uuid.NewString()
	insertBooking(t, bunDB, models.Booking{
		BookingID:   bookingID,
		UserID:      "user-1",
		EventID:     "event-1",
		Quantity:    2,
		TotalAmount: 1300,
		Status:      models.BookingPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	})

	// First transition wins
	ok, err := store.UpdateBookingStatus(ctx, bookingID, models.BookingPending, models.BookingPaid)
	assert.NoError(t, err)
	assert.True(t, ok)

	// A competing Pending -> Cancelled loses, the booking already left Pending
	ok, err = store.UpdateBookingStatus(ctx, bookingID, models.BookingPending, models.BookingCancelled)
	assert.NoError(t, err)
	assert.False(t, ok)

	// Terminal states never transition
	ok, err = store.UpdateBookingStatus(ctx, bookingID, models.BookingPaid, models.BookingCancelled)
	assert.NoError(t, err)
	assert.False(t, ok)

	stored, err := store.GetBookingByID(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPaid, stored.Status)
}

func TestUpdateBookingStatus_UnknownBooking(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()

	ok, err := store.UpdateBookingStatus(context.Background(), "missing", models.BookingPending, models.BookingPaid)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestGetExpiredPending(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	oldPendingID := uuid.NewString()
	insertBooking(t, bunDB, models.Booking{
		BookingID: oldPendingID,
		UserID:    "user-1",
		EventID:   "event-1",
		Quantity:  1,
		Status:    models.BookingPending,
		CreatedAt: time.Now().Add(-30 * time.Minute),
	})
	insertBooking(t, bunDB, models.Booking{
		BookingID: uuid.NewString(),
		UserID:    "user-1",
		EventID:   "event-1",
		Quantity:  1,
		Status:    models.BookingPending,
		CreatedAt: time.Now().Add(-2 * time.Minute),
	})
	insertBooking(t, bunDB, models.Booking{
		BookingID: uuid.NewString(),
		UserID:    "user-2",
		EventID:   "event-1",
		Quantity:  1,
		Status:    models.BookingPaid,
		CreatedAt: time.Now().Add(-30 * time.Minute),
	})

	expired, err := store.GetExpiredPending(ctx, time.Now().Add(-15*time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, oldPendingID, expired[0].BookingID)
}

func TestGetBookingsByUser(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	insertBooking(t, bunDB, models.Booking{
		BookingID: uuid.NewString(),
		UserID:    "user-1",
		EventID:   "event-1",
		Quantity:  2,
		Status:    models.BookingPending,
		CreatedAt: time.Now(),
	})
	insertBooking(t, bunDB, models.Booking{
		BookingID: uuid.NewString(),
		UserID:    "user-2",
		EventID:   "event-1",
		Quantity:  1,
		Status:    models.BookingPaid,
		CreatedAt: time.Now(),
	})

	list, err := store.GetBookingsByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// Unknown users get an empty list, not nil
	list, err = store.GetBookingsByUser(ctx, "user-unknown")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestUserExists(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	user := models.User{UserID: "user-1", FirstName: "Amina", Email: "amina@example.com", CreatedAt: time.Now()}
	_, err := bunDB.NewInsert().Model(&user).Exec(ctx)
	require.NoError(t, err)

	exists, err := store.UserExists(ctx, "user-1")
	assert.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.UserExists(ctx, "user-ghost")
	assert.NoError(t, err)
	assert.False(t, exists)
}
