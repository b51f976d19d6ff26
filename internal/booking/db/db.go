package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-booking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- EVENT INVENTORY ----------------

func (d *DB) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ReserveTickets increments tickets_sold by quantity only while the
// availability predicate still holds. The check and the write are one
// conditional UPDATE, so two concurrent reservations can never both succeed
// past capacity; the caller must check the returned flag.
func (d *DB) ReserveTickets(ctx context.Context, eventID string, quantity int) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("tickets_sold = tickets_sold + ?", quantity).
		Set("updated_at = ?", time.Now()).
		Where("event_id = ?", eventID).
		Where("tickets_sold + ? <= tickets_total", quantity).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ReleaseTickets is the compensation for ReserveTickets, used when a Pending
// booking fails, expires or is cancelled. Callers guard it with the booking
// status compare-and-set so it runs at most once per booking.
func (d *DB) ReleaseTickets(ctx context.Context, eventID string, quantity int) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("tickets_sold = tickets_sold - ?", quantity).
		Set("updated_at = ?", time.Now()).
		Where("event_id = ?", eventID).
		Where("tickets_sold - ? >= 0", quantity).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.New("release would drop tickets_sold below zero")
	}
	return nil
}

// ---------------- BOOKINGS ----------------

func (d *DB) CreateBooking(ctx context.Context, booking models.Booking) error {
	_, err := d.Bun.NewInsert().Model(&booking).Exec(ctx)
	return err
}

func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("booking_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// UpdateBookingStatus is a compare-and-set: the write lands only if the
// stored status still equals from. Returns false when another writer got
// there first (or the booking does not exist).
func (d *DB) UpdateBookingStatus(ctx context.Context, id string, from, to models.BookingStatus) (bool, error) {
	if !models.CanTransition(from, to) {
		return false, nil
	}
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("booking_status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("booking_id = ?", id).
		Where("booking_status = ?", from).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (d *DB) GetBookingsByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	return bookings, nil
}

// GetExpiredPending returns Pending bookings created before the cutoff,
// candidates for the expiry sweep.
func (d *DB) GetExpiredPending(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("booking_status = ?", models.BookingPending).
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// ---------------- COLLABORATOR LOOKUPS ----------------

func (d *DB) UserExists(ctx context.Context, userID string) (bool, error) {
	exists, err := d.Bun.NewSelect().
		Model((*models.User)(nil)).
		Where("user_id = ?", userID).
		Exists(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	return exists, nil
}
