package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-booking/internal/models"
)

// ErrSessionExists reports a checkout session id collision on Register. The
// gateway generates these ids; a duplicate means broken configuration, not a
// retryable condition.
var ErrSessionExists = errors.New("checkout session already registered")

type DB struct {
	Bun *bun.DB
}

// ---------------- PAYMENTS ----------------

func (d *DB) CreatePayment(ctx context.Context, payment models.Payment) error {
	_, err := d.Bun.NewInsert().Model(&payment).Exec(ctx)
	return err
}

func (d *DB) GetPaymentBySession(ctx context.Context, checkoutSessionID string) (*models.Payment, error) {
	var payment models.Payment
	err := d.Bun.NewSelect().
		Model(&payment).
		Where("checkout_session_id = ?", checkoutSessionID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (d *DB) GetPaymentByBooking(ctx context.Context, bookingID string) (*models.Payment, error) {
	var payment models.Payment
	err := d.Bun.NewSelect().
		Model(&payment).
		Where("booking_id = ?", bookingID).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdatePaymentSession points an existing pending payment at a fresh checkout
// session after a re-initiation.
func (d *DB) UpdatePaymentSession(ctx context.Context, paymentID, checkoutSessionID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("checkout_session_id = ?", checkoutSessionID).
		Set("updated_at = ?", time.Now()).
		Where("payment_id = ?", paymentID).
		Exec(ctx)
	return err
}

// UpdatePaymentStatus is a compare-and-set from Pending to a terminal status.
// Returns false when the payment already left Pending, which makes the write
// safe to repeat during crash recovery.
func (d *DB) UpdatePaymentStatus(ctx context.Context, paymentID string, to models.PaymentStatus, transactionID string) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("payment_status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("payment_id = ?", paymentID).
		Where("payment_status = ?", models.PaymentPending)
	if transactionID != "" {
		q = q.Set("transaction_id = ?", transactionID)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ---------------- CORRELATION TABLE ----------------

func (d *DB) RegisterCorrelation(ctx context.Context, checkoutSessionID, bookingID string) error {
	entry := models.CorrelationEntry{
		CheckoutSessionID: checkoutSessionID,
		BookingID:         bookingID,
		CreatedAt:         time.Now(),
	}
	existing, err := d.Bun.NewSelect().
		Model((*models.CorrelationEntry)(nil)).
		Where("checkout_session_id = ?", checkoutSessionID).
		Exists(ctx)
	if err != nil {
		return err
	}
	if existing {
		return ErrSessionExists
	}
	_, err = d.Bun.NewInsert().Model(&entry).Exec(ctx)
	return err
}

// ClaimCorrelation atomically reads and removes the entry for a session. The
// conditional DELETE decides the race: whichever caller's delete affects the
// row gets the booking id, everyone else gets claimed=false. This is the
// single idempotency guard for the whole reconciliation path.
func (d *DB) ClaimCorrelation(ctx context.Context, checkoutSessionID string) (string, bool, error) {
	var bookingID string
	claimed := false

	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var entry models.CorrelationEntry
		err := tx.NewSelect().
			Model(&entry).
			Where("checkout_session_id = ?", checkoutSessionID).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		res, err := tx.NewDelete().
			Model((*models.CorrelationEntry)(nil)).
			Where("checkout_session_id = ?", checkoutSessionID).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 1 {
			bookingID = entry.BookingID
			claimed = true
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return bookingID, claimed, nil
}

func (d *DB) RemoveCorrelation(ctx context.Context, checkoutSessionID string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.CorrelationEntry)(nil)).
		Where("checkout_session_id = ?", checkoutSessionID).
		Exec(ctx)
	return err
}

// RebuildCorrelations restores correlation entries whose loss would strand a
// payment. Two gaps are covered: payments still Pending with a session
// (crash between the payment insert and Register), and settled payments
// whose booking never left Pending (crash between the payment status write
// and the booking status write). Re-registered sessions are completed by the
// gateway's retried notification; the status writes are compare-and-sets, so
// replaying the finished steps is harmless. Safe to run at every startup.
func (d *DB) RebuildCorrelations(ctx context.Context) (int, error) {
	var stranded []models.Payment
	err := d.Bun.NewSelect().
		Model(&stranded).
		Where("payment_status = ?", models.PaymentPending).
		Where("checkout_session_id <> ''").
		Scan(ctx)
	if err != nil {
		return 0, err
	}

	var interrupted []models.Payment
	err = d.Bun.NewSelect().
		Model(&interrupted).
		Where("payment_status IN (?, ?)", models.PaymentSuccess, models.PaymentFailed).
		Where("checkout_session_id <> ''").
		Where("booking_id IN (SELECT booking_id FROM bookings WHERE booking_status = ?)", models.BookingPending).
		Scan(ctx)
	if err != nil {
		return 0, err
	}

	rebuilt := 0
	for _, p := range append(stranded, interrupted...) {
		entry := models.CorrelationEntry{
			CheckoutSessionID: p.CheckoutSessionID,
			BookingID:         p.BookingID,
			CreatedAt:         time.Now(),
		}
		res, err := d.Bun.NewInsert().
			Model(&entry).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		if err != nil {
			return rebuilt, err
		}
		if rows, err := res.RowsAffected(); err == nil && rows == 1 {
			rebuilt++
		}
	}
	return rebuilt, nil
}

// ---------------- ALERTS ----------------

func (d *DB) InsertAlert(ctx context.Context, alert models.PaymentAlert) error {
	_, err := d.Bun.NewInsert().Model(&alert).Exec(ctx)
	return err
}

func (d *DB) ListAlerts(ctx context.Context) ([]models.PaymentAlert, error) {
	var alerts []models.PaymentAlert
	err := d.Bun.NewSelect().
		Model(&alerts).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return alerts, nil
}
