package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

var (
	ErrBookingNotFound   = errors.New("booking not found")
	ErrBookingNotPending = errors.New("booking is not pending")
)

const paymentMethod = "M-Pesa"

type DBLayer interface {
	CreatePayment(ctx context.Context, payment models.Payment) error
	GetPaymentBySession(ctx context.Context, checkoutSessionID string) (*models.Payment, error)
	GetPaymentByBooking(ctx context.Context, bookingID string) (*models.Payment, error)
	UpdatePaymentSession(ctx context.Context, paymentID, checkoutSessionID string) error
	UpdatePaymentStatus(ctx context.Context, paymentID string, to models.PaymentStatus, transactionID string) (bool, error)
	RegisterCorrelation(ctx context.Context, checkoutSessionID, bookingID string) error
	ClaimCorrelation(ctx context.Context, checkoutSessionID string) (string, bool, error)
	RemoveCorrelation(ctx context.Context, checkoutSessionID string) error
	RebuildCorrelations(ctx context.Context) (int, error)
	InsertAlert(ctx context.Context, alert models.PaymentAlert) error
	ListAlerts(ctx context.Context) ([]models.PaymentAlert, error)
}

// Ledger is the slice of the booking store the reconciliation engine drives.
type Ledger interface {
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, from, to models.BookingStatus) (bool, error)
	ReleaseTickets(ctx context.Context, eventID string, quantity int) error
}

type Gateway interface {
	InitiateSTKPush(ctx context.Context, phone string, amount int64, accountRef, description string) (*models.STKPushResponse, error)
}

type KafkaPublisher interface {
	PublishPaymentEvent(eventType string, payment models.Payment) error
}

// TicketIssuer turns a paid booking into tickets. Issuance is best effort;
// a failure is logged and retried out of band, never fed back to the gateway.
type TicketIssuer interface {
	IssueForBooking(ctx context.Context, booking models.Booking) error
}

type Service struct {
	DB      DBLayer
	Ledger  Ledger
	Gateway Gateway
	Kafka   KafkaPublisher
	Tickets TicketIssuer
	Logger  *logger.Logger
}

func NewService(db DBLayer, ledger Ledger, gateway Gateway, kafka KafkaPublisher, tickets TicketIssuer, log *logger.Logger) *Service {
	return &Service{DB: db, Ledger: ledger, Gateway: gateway, Kafka: kafka, Tickets: tickets, Logger: log}
}

// InitiatePayment starts a charge for a Pending booking. On gateway failure
// the booking stays Pending and no correlation entry is created, so the
// caller can simply retry. A repeated initiation reuses the booking's pending
// payment record and swaps in the fresh checkout session.
func (s *Service) InitiatePayment(ctx context.Context, bookingID, phone string) (*models.PaymentResponse, error) {
	booking, err := s.Ledger.GetBookingByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to load booking %s: %w", bookingID, err)
	}
	if booking.Status != models.BookingPending {
		return nil, ErrBookingNotPending
	}

	existing, err := s.DB.GetPaymentByBooking(ctx, bookingID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load payment for booking %s: %w", bookingID, err)
	}

	result, err := s.Gateway.InitiateSTKPush(ctx, phone, booking.TotalAmount, "booking-"+bookingID, "Ticket payment")
	if err != nil {
		return nil, err
	}
	session := result.CheckoutRequestID

	var paymentID string
	if existing != nil && existing.Status == models.PaymentPending {
		// Drop the stale correlation before pointing the payment at the new
		// session; a callback for the old session must not find a match.
		if existing.CheckoutSessionID != "" {
			if err := s.DB.RemoveCorrelation(ctx, existing.CheckoutSessionID); err != nil {
				return nil, fmt.Errorf("failed to remove stale correlation: %w", err)
			}
		}
		if err := s.DB.UpdatePaymentSession(ctx, existing.PaymentID, session); err != nil {
			return nil, fmt.Errorf("failed to update payment session: %w", err)
		}
		paymentID = existing.PaymentID
	} else {
		now := time.Now()
		payment := models.Payment{
			PaymentID:         utils.GeneratePaymentID(),
			BookingID:         bookingID,
			Amount:            booking.TotalAmount,
			Status:            models.PaymentPending,
			PaymentMethod:     paymentMethod,
			CheckoutSessionID: session,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.DB.CreatePayment(ctx, payment); err != nil {
			return nil, fmt.Errorf("failed to create payment record: %w", err)
		}
		paymentID = payment.PaymentID
	}

	if err := s.DB.RegisterCorrelation(ctx, session, bookingID); err != nil {
		// A session id collision means the gateway handed out a duplicate;
		// surface it loudly, this is configuration-level breakage.
		s.Logger.Error("PAYMENT", fmt.Sprintf("failed to register correlation %s -> %s: %v", session, bookingID, err))
		return nil, err
	}

	s.Logger.LogPayment("INITIATE", paymentID, fmt.Sprintf("booking %s, session %s, amount %d", bookingID, session, booking.TotalAmount))

	return &models.PaymentResponse{
		BookingID:         bookingID,
		PaymentID:         paymentID,
		CheckoutSessionID: session,
		CustomerMessage:   result.CustomerMessage,
	}, nil
}

// HandleNotification applies an asynchronous payment result exactly once.
//
// The single-claim delete on the correlation entry is the idempotency guard:
// duplicate deliveries find no entry and turn into harmless no-ops. After a
// successful claim the steps run in a fixed order (payment, booking,
// inventory), each one an idempotent compare-and-set. A crash mid-sequence
// leaves the payment settled while the booking is still Pending;
// RebuildCorrelations re-registers exactly that shape at startup, and the
// gateway's retried notification replays the sequence, with the already
// finished compare-and-sets falling through as no-ops.
func (s *Service) HandleNotification(ctx context.Context, n models.PaymentNotification) (models.ReconcileOutcome, error) {
	bookingID, claimed, err := s.DB.ClaimCorrelation(ctx, n.CheckoutSessionID)
	if err != nil {
		return models.OutcomeRejected, fmt.Errorf("failed to claim session %s: %w", n.CheckoutSessionID, err)
	}
	if !claimed {
		s.Logger.Info("RECONCILE", fmt.Sprintf("no correlation entry for session %s, duplicate or unknown", n.CheckoutSessionID))
		return models.OutcomeDuplicateOrUnknown, nil
	}

	payment, err := s.DB.GetPaymentBySession(ctx, n.CheckoutSessionID)
	if err != nil {
		// A claimed entry without a payment record breaks the registration
		// invariant; this is data corruption, not a user-facing condition.
		s.Logger.Error("RECONCILE", fmt.Sprintf("invariant violation: claimed session %s for booking %s has no payment record: %v", n.CheckoutSessionID, bookingID, err))
		return models.OutcomeRejected, fmt.Errorf("no payment record for claimed session %s: %w", n.CheckoutSessionID, err)
	}

	if n.ResultCode != 0 {
		s.Logger.LogPayment("RESULT", payment.PaymentID, fmt.Sprintf("gateway reported failure for booking %s: code=%d desc=%s", bookingID, n.ResultCode, n.ResultDesc))
		s.failPaymentAndBooking(ctx, payment, bookingID, "")
		return models.OutcomeAccepted, nil
	}

	if n.Amount != payment.Amount {
		s.Logger.Error("RECONCILE", fmt.Sprintf("amount mismatch for booking %s: notified %d, recorded %d", bookingID, n.Amount, payment.Amount))
		s.recordAlert(ctx, models.PaymentAlert{
			BookingID:         bookingID,
			CheckoutSessionID: n.CheckoutSessionID,
			TransactionID:     n.TransactionID,
			Amount:            n.Amount,
			Reason:            models.AlertAmountMismatch,
		})
		s.failPaymentAndBooking(ctx, payment, bookingID, n.TransactionID)
		return models.OutcomeRejected, nil
	}

	if _, err := s.DB.UpdatePaymentStatus(ctx, payment.PaymentID, models.PaymentSuccess, n.TransactionID); err != nil {
		return models.OutcomeRejected, fmt.Errorf("failed to mark payment %s successful: %w", payment.PaymentID, err)
	}
	payment.Status = models.PaymentSuccess
	payment.TransactionID = n.TransactionID

	ok, err := s.Ledger.UpdateBookingStatus(ctx, bookingID, models.BookingPending, models.BookingPaid)
	if err != nil {
		return models.OutcomeRejected, fmt.Errorf("failed to mark booking %s paid: %w", bookingID, err)
	}
	if !ok {
		// Money arrived for a booking that already expired or was cancelled.
		// Acknowledge the gateway so it stops retrying, but never drop the
		// payment silently: flag it for manual reconciliation.
		s.Logger.Error("RECONCILE", fmt.Sprintf("payment %s succeeded but booking %s is no longer pending; flagged for manual review", payment.PaymentID, bookingID))
		s.recordAlert(ctx, models.PaymentAlert{
			BookingID:         bookingID,
			CheckoutSessionID: n.CheckoutSessionID,
			TransactionID:     n.TransactionID,
			Amount:            n.Amount,
			Reason:            models.AlertLateSuccess,
		})
		s.publish(models.EventPaymentUnmatched, *payment)
		return models.OutcomeAccepted, nil
	}

	s.Logger.LogPayment("RESULT", payment.PaymentID, fmt.Sprintf("booking %s paid, transaction %s", bookingID, n.TransactionID))
	s.publish(models.EventPaymentSuccess, *payment)

	if s.Tickets != nil {
		booking, err := s.Ledger.GetBookingByID(ctx, bookingID)
		if err != nil {
			s.Logger.Error("TICKETS", fmt.Sprintf("failed to load paid booking %s for ticket issuance: %v", bookingID, err))
		} else if err := s.Tickets.IssueForBooking(ctx, *booking); err != nil {
			s.Logger.Error("TICKETS", fmt.Sprintf("failed to issue tickets for booking %s: %v", bookingID, err))
		}
	}

	return models.OutcomeAccepted, nil
}

// failPaymentAndBooking drives both records to Failed and, when this caller
// wins the booking CAS, releases the reserved inventory. Each step is a CAS,
// so replays cannot double-release.
func (s *Service) failPaymentAndBooking(ctx context.Context, payment *models.Payment, bookingID, transactionID string) {
	if _, err := s.DB.UpdatePaymentStatus(ctx, payment.PaymentID, models.PaymentFailed, transactionID); err != nil {
		s.Logger.Error("RECONCILE", fmt.Sprintf("failed to mark payment %s failed: %v", payment.PaymentID, err))
	}
	payment.Status = models.PaymentFailed

	ok, err := s.Ledger.UpdateBookingStatus(ctx, bookingID, models.BookingPending, models.BookingFailed)
	if err != nil {
		s.Logger.Error("RECONCILE", fmt.Sprintf("failed to mark booking %s failed: %v", bookingID, err))
		return
	}
	if ok {
		booking, err := s.Ledger.GetBookingByID(ctx, bookingID)
		if err != nil {
			s.Logger.Error("RECONCILE", fmt.Sprintf("failed to load failed booking %s for release: %v", bookingID, err))
		} else if err := s.Ledger.ReleaseTickets(ctx, booking.EventID, booking.Quantity); err != nil {
			s.Logger.Error("RECONCILE", fmt.Sprintf("failed to release tickets for booking %s: %v", bookingID, err))
		}
	}

	s.publish(models.EventPaymentFailed, *payment)
}

func (s *Service) recordAlert(ctx context.Context, alert models.PaymentAlert) {
	alert.AlertID = utils.GenerateAlertID()
	alert.CreatedAt = time.Now()
	if err := s.DB.InsertAlert(ctx, alert); err != nil {
		s.Logger.Error("RECONCILE", fmt.Sprintf("failed to record %s alert for booking %s: %v", alert.Reason, alert.BookingID, err))
	}
}

func (s *Service) publish(eventType string, payment models.Payment) {
	if s.Kafka == nil {
		return
	}
	if err := s.Kafka.PublishPaymentEvent(eventType, payment); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("publish %s for payment %s: %v", eventType, payment.PaymentID, err))
	}
}

// BookingStatusView joins booking and payment state for client polling.
// payment_status stays empty until a payment record exists so a booking with
// no attempt yet is distinguishable from one with a charge in flight.
func (s *Service) BookingStatusView(ctx context.Context, bookingID string) (*models.BookingStatusView, error) {
	booking, err := s.Ledger.GetBookingByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	view := &models.BookingStatusView{
		BookingID: booking.BookingID,
		Status:    string(booking.Status),
	}

	payment, err := s.DB.GetPaymentByBooking(ctx, bookingID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return view, nil
	}

	view.PaymentStatus = string(payment.Status)
	view.TransactionID = payment.TransactionID
	return view, nil
}

// ListAlerts exposes the manual-review queue to operators.
func (s *Service) ListAlerts(ctx context.Context) ([]models.PaymentAlert, error) {
	return s.DB.ListAlerts(ctx)
}

// RecoverCorrelations is run at startup to restore entries lost to a crash,
// whether between payment creation and registration or partway through
// applying a claimed notification.
func (s *Service) RecoverCorrelations(ctx context.Context) error {
	rebuilt, err := s.DB.RebuildCorrelations(ctx)
	if err != nil {
		return err
	}
	if rebuilt > 0 {
		s.Logger.Warn("RECONCILE", fmt.Sprintf("rebuilt %d correlation entries for unfinished payments", rebuilt))
	}
	return nil
}
