package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

var (
	ErrInvalidQuantity   = errors.New("quantity must be a positive integer")
	ErrEventNotFound     = errors.New("event not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrBookingNotPending = errors.New("booking is not pending")
)

// InsufficientInventoryError reports how many tickets were still available
// when the reservation was refused, so callers can retry with a smaller
// quantity.
type InsufficientInventoryError struct {
	EventID   string
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("only %d tickets available for event %s (requested %d)", e.Available, e.EventID, e.Requested)
}

type DBLayer interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	ReserveTickets(ctx context.Context, eventID string, quantity int) (bool, error)
	ReleaseTickets(ctx context.Context, eventID string, quantity int) error
	CreateBooking(ctx context.Context, booking models.Booking) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, from, to models.BookingStatus) (bool, error)
	GetBookingsByUser(ctx context.Context, userID string) ([]models.Booking, error)
	GetExpiredPending(ctx context.Context, cutoff time.Time) ([]models.Booking, error)
	UserExists(ctx context.Context, userID string) (bool, error)
}

type KafkaPublisher interface {
	PublishBookingEvent(eventType string, booking models.Booking) error
}

type Service struct {
	DB     DBLayer
	Kafka  KafkaPublisher
	Logger *logger.Logger
}

func NewService(db DBLayer, kafka KafkaPublisher, log *logger.Logger) *Service {
	return &Service{DB: db, Kafka: kafka, Logger: log}
}

// CreateBooking reserves quantity tickets against the event's remaining
// capacity and records a Pending booking. The reservation is a single
// conditional update, so overselling cannot happen no matter how many
// requests race on the same event.
func (s *Service) CreateBooking(ctx context.Context, userID, eventID string, quantity int) (*models.Booking, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	exists, err := s.DB.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check user %s: %w", userID, err)
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	event, err := s.DB.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to load event %s: %w", eventID, err)
	}

	reserved, err := s.DB.ReserveTickets(ctx, eventID, quantity)
	if err != nil {
		return nil, fmt.Errorf("reservation failed for event %s: %w", eventID, err)
	}
	if !reserved {
		// Re-read for the current availability; the count is advisory and
		// may already be stale by the time the caller sees it.
		current, err := s.DB.GetEvent(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload event %s: %w", eventID, err)
		}
		return nil, &InsufficientInventoryError{
			EventID:   eventID,
			Requested: quantity,
			Available: current.TicketsAvailable(),
		}
	}

	now := time.Now()
	booking := models.Booking{
		BookingID:   uuid.NewString(),
		UserID:      userID,
		EventID:     eventID,
		Quantity:    quantity,
		TotalAmount: event.TicketPrice * int64(quantity),
		Status:      models.BookingPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.DB.CreateBooking(ctx, booking); err != nil {
		// The seats were already taken from inventory; hand them back before
		// reporting the failure.
		if relErr := s.DB.ReleaseTickets(ctx, eventID, quantity); relErr != nil {
			s.Logger.Error("BOOKING", fmt.Sprintf("failed to release %d tickets for event %s after insert failure: %v", quantity, eventID, relErr))
		}
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.Logger.LogBooking("CREATE", booking.BookingID, fmt.Sprintf("reserved %d tickets for event %s, total %d", quantity, eventID, booking.TotalAmount))

	if s.Kafka != nil {
		if err := s.Kafka.PublishBookingEvent(models.EventBookingCreated, booking); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("publish booking.created for %s: %v", booking.BookingID, err))
		}
	}

	return &booking, nil
}

func (s *Service) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return booking, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	return s.DB.GetBookingsByUser(ctx, userID)
}

// CancelBooking is the administrative Pending -> Cancelled transition. The
// compare-and-set guards the inventory release: whoever wins the CAS owns
// the one and only release for this booking.
func (s *Service) CancelBooking(ctx context.Context, id string) error {
	booking, err := s.GetBooking(ctx, id)
	if err != nil {
		return err
	}

	ok, err := s.DB.UpdateBookingStatus(ctx, id, models.BookingPending, models.BookingCancelled)
	if err != nil {
		return fmt.Errorf("failed to cancel booking %s: %w", id, err)
	}
	if !ok {
		return ErrBookingNotPending
	}

	if err := s.DB.ReleaseTickets(ctx, booking.EventID, booking.Quantity); err != nil {
		s.Logger.Error("BOOKING", fmt.Sprintf("failed to release tickets for cancelled booking %s: %v", id, err))
		return err
	}

	booking.Status = models.BookingCancelled
	s.Logger.LogBooking("CANCEL", id, fmt.Sprintf("released %d tickets for event %s", booking.Quantity, booking.EventID))

	if s.Kafka != nil {
		if err := s.Kafka.PublishBookingEvent(models.EventBookingCancelled, *booking); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("publish booking.cancelled for %s: %v", id, err))
		}
	}

	return nil
}

// ExpirePending sweeps Pending bookings older than ttl to Cancelled and
// releases their inventory. Correlation entries are deliberately left in
// place: a payment result that arrives after expiry must still claim its
// entry so it can be flagged for manual review instead of vanishing.
func (s *Service) ExpirePending(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	expired, err := s.DB.GetExpiredPending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired pending bookings: %w", err)
	}

	swept := 0
	for _, booking := range expired {
		ok, err := s.DB.UpdateBookingStatus(ctx, booking.BookingID, models.BookingPending, models.BookingCancelled)
		if err != nil {
			s.Logger.Error("SWEEP", fmt.Sprintf("failed to expire booking %s: %v", booking.BookingID, err))
			continue
		}
		if !ok {
			// Reconciled or cancelled between the list and the CAS.
			continue
		}

		if err := s.DB.ReleaseTickets(ctx, booking.EventID, booking.Quantity); err != nil {
			s.Logger.Error("SWEEP", fmt.Sprintf("failed to release tickets for expired booking %s: %v", booking.BookingID, err))
			continue
		}

		swept++
		booking.Status = models.BookingCancelled
		s.Logger.LogSweep("EXPIRE", fmt.Sprintf("booking %s expired after %s, released %d tickets", booking.BookingID, ttl, booking.Quantity))

		if s.Kafka != nil {
			if err := s.Kafka.PublishBookingEvent(models.EventBookingExpired, booking); err != nil {
				s.Logger.Error("KAFKA", fmt.Sprintf("publish booking.expired for %s: %v", booking.BookingID, err))
			}
		}
	}

	return swept, nil
}
