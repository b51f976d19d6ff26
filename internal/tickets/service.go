package tickets

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/tickets/qr"
)

type DBLayer interface {
	CreateTicket(ctx context.Context, ticket models.Ticket) error
	GetTicketsByBooking(ctx context.Context, bookingID string) ([]models.Ticket, error)
}

type Service struct {
	DB     DBLayer
	QR     *qr.QRGenerator
	Logger *logger.Logger
}

func NewService(db DBLayer, generator *qr.QRGenerator, log *logger.Logger) *Service {
	return &Service{DB: db, QR: generator, Logger: log}
}

// IssueForBooking mints one QR ticket per seat of a paid booking.
func (s *Service) IssueForBooking(ctx context.Context, booking models.Booking) error {
	for i := 0; i < booking.Quantity; i++ {
		ticket := models.Ticket{
			TicketID:  uuid.NewString(),
			BookingID: booking.BookingID,
			EventID:   booking.EventID,
			UserID:    booking.UserID,
			IssuedAt:  time.Now(),
		}

		qrBytes, err := s.QR.GenerateEncryptedQR(ticket)
		if err != nil {
			return fmt.Errorf("failed to generate QR for ticket %s: %w", ticket.TicketID, err)
		}
		ticket.QRCode = qrBytes

		if err := s.DB.CreateTicket(ctx, ticket); err != nil {
			return fmt.Errorf("failed to store ticket %s: %w", ticket.TicketID, err)
		}
	}

	s.Logger.LogBooking("TICKETS", booking.BookingID, fmt.Sprintf("issued %d tickets", booking.Quantity))
	return nil
}

func (s *Service) ListByBooking(ctx context.Context, bookingID string) ([]models.Ticket, error) {
	return s.DB.GetTicketsByBooking(ctx, bookingID)
}
