package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"
	"ms-booking/internal/tickets"
	"ms-booking/internal/utils"
)

type Handler struct {
	Bookings *booking.Service
	Payments *payment.Service
	Tickets  *tickets.Service
	Logger   *logger.Logger
}

func NewHandler(bookings *booking.Service, payments *payment.Service, ticketSvc *tickets.Service, log *logger.Logger) *Handler {
	return &Handler{Bookings: bookings, Payments: payments, Tickets: ticketSvc, Logger: log}
}

// Routes mounts every endpoint of the service.
func (h *Handler) Routes(callbackLimiter func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/bookings", h.CreateBooking)
		r.Get("/bookings/{bookingId}", h.GetBooking)
		r.Get("/bookings/{bookingId}/status", h.GetBookingStatus)
		r.Get("/bookings/{bookingId}/tickets", h.GetBookingTickets)
		r.Delete("/bookings/{bookingId}", h.CancelBooking)
		r.Get("/users/{userId}/bookings", h.ListUserBookings)

		r.Post("/payments/stkpush", h.InitiatePayment)
		r.Get("/payments/alerts", h.ListPaymentAlerts)

		r.Group(func(r chi.Router) {
			if callbackLimiter != nil {
				r.Use(callbackLimiter)
			}
			r.Post("/payments/callback", h.PaymentCallback)
		})
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateBooking: failed to decode request body: %v", err))
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.Bookings.CreateBooking(r.Context(), req.UserID, req.EventID, req.Quantity)
	if err != nil {
		var insufficient *booking.InsufficientInventoryError
		switch {
		case errors.Is(err, booking.ErrInvalidQuantity):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, booking.ErrEventNotFound), errors.Is(err, booking.ErrUserNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &insufficient):
			writeJSON(w, http.StatusConflict, utils.ErrorResponse("Insufficient inventory", insufficient.Error()))
		default:
			h.Logger.Error("API", fmt.Sprintf("CreateBooking: %v", err))
			writeError(w, http.StatusInternalServerError, "Failed to create booking")
		}
		return
	}

	h.Logger.LogAPI(r.Method, r.URL.Path, "201", "-")
	writeJSON(w, http.StatusCreated, models.BookingResponse{
		BookingID:   result.BookingID,
		EventID:     result.EventID,
		Quantity:    result.Quantity,
		TotalAmount: result.TotalAmount,
		Status:      string(result.Status),
	})
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	result, err := h.Bookings.GetBooking(r.Context(), bookingID)
	if err != nil {
		if errors.Is(err, booking.ErrBookingNotFound) {
			writeError(w, http.StatusNotFound, "Booking not found")
			return
		}
		h.Logger.Error("API", fmt.Sprintf("GetBooking: %v", err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch booking")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) GetBookingStatus(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	view, err := h.Payments.BookingStatusView(r.Context(), bookingID)
	if err != nil {
		if errors.Is(err, payment.ErrBookingNotFound) {
			writeError(w, http.StatusNotFound, "Booking not found")
			return
		}
		h.Logger.Error("API", fmt.Sprintf("GetBookingStatus: %v", err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch booking status")
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) GetBookingTickets(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	list, err := h.Tickets.ListByBooking(r.Context(), bookingID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetBookingTickets: %v", err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch tickets")
		return
	}

	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) ListUserBookings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	list, err := h.Bookings.ListByUser(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListUserBookings: %v", err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch bookings")
		return
	}

	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	err := h.Bookings.CancelBooking(r.Context(), bookingID)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrBookingNotFound):
			writeError(w, http.StatusNotFound, "Booking not found")
		case errors.Is(err, booking.ErrBookingNotPending):
			writeError(w, http.StatusConflict, "Cannot cancel a non-pending booking")
		default:
			h.Logger.Error("API", fmt.Sprintf("CancelBooking: %v", err))
			writeError(w, http.StatusInternalServerError, "Failed to cancel booking")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, utils.ErrorResponse(http.StatusText(status), message))
}
